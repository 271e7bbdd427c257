// Package bar defines the immutable OHLCV record the whole pipeline is
// driven by (component C1 of SPEC_FULL.md), and a minimal in-memory store
// of per-symbol, time-ordered bar sequences.
package bar

import (
	"fmt"
	"math"

	"github.com/sawpanic/tradecore/internal/fatal"
)

// Bar is one immutable OHLCV observation for a symbol at a millisecond
// timestamp. Bars are never mutated once constructed.
type Bar struct {
	TimestampMs int64
	Symbol      string
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// Validate checks the invariants from spec §3: low <= min(open,close) <=
// max(open,close) <= high, low > 0, volume >= 0. It does not check
// monotonic timestamps — that is a Store-level (cross-bar) invariant.
func (b Bar) Validate() error {
	if math.IsNaN(b.Open) || math.IsNaN(b.High) || math.IsNaN(b.Low) || math.IsNaN(b.Close) || math.IsNaN(b.Volume) {
		return fmt.Errorf("bar %s@%d: NaN field", b.Symbol, b.TimestampMs)
	}
	if b.Low <= 0 {
		return fmt.Errorf("bar %s@%d: low %.8f must be > 0", b.Symbol, b.TimestampMs, b.Low)
	}
	lo := math.Min(b.Open, b.Close)
	hi := math.Max(b.Open, b.Close)
	if !(b.Low <= lo && lo <= hi && hi <= b.High) {
		return fmt.Errorf("bar %s@%d: ohlc ordering violated (low=%.8f open=%.8f close=%.8f high=%.8f)",
			b.Symbol, b.TimestampMs, b.Low, b.Open, b.Close, b.High)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%d: volume %.8f must be >= 0", b.Symbol, b.TimestampMs, b.Volume)
	}
	return nil
}

// TypicalPrice is the (high+low+close)/3 price used by the VWAP detector.
func (b Bar) TypicalPrice() float64 {
	return (b.High + b.Low + b.Close) / 3.0
}

// DayBucket buckets a timestamp into a UTC calendar day, used by the ORB
// detector's opening-range reset per spec §4.1.
func DayBucket(timestampMs int64) int64 {
	return timestampMs / 86_400_000
}

// Store holds immutable, strictly time-ordered bar sequences keyed by
// symbol. Append-only: Append panics via fatal.Raise on an out-of-order or
// invalid bar, since that implies a bug in whatever produced the sequence.
type Store struct {
	bySymbol map[string][]Bar
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{bySymbol: make(map[string][]Bar)}
}

// Append adds a bar to its symbol's sequence. It is fatal for the bar to be
// invalid, or for its timestamp not to strictly increase over the last bar
// appended for that symbol.
func (s *Store) Append(b Bar) {
	if err := b.Validate(); err != nil {
		panic(fatal.Wrap("bar.Store", "invalid bar", err))
	}
	seq := s.bySymbol[b.Symbol]
	if len(seq) > 0 && b.TimestampMs <= seq[len(seq)-1].TimestampMs {
		fatal.Raisef("bar.Store", "symbol %s: timestamp %d does not strictly increase over %d",
			b.Symbol, b.TimestampMs, seq[len(seq)-1].TimestampMs)
	}
	s.bySymbol[b.Symbol] = append(seq, b)
}

// Series returns the full bar sequence for symbol, oldest first. The
// returned slice must not be mutated by callers.
func (s *Store) Series(symbol string) []Bar {
	return s.bySymbol[symbol]
}

// At returns the bar at index i for symbol, and whether it exists.
func (s *Store) At(symbol string, i int) (Bar, bool) {
	seq := s.bySymbol[symbol]
	if i < 0 || i >= len(seq) {
		return Bar{}, false
	}
	return seq[i], true
}

// Len returns the number of bars stored for symbol.
func (s *Store) Len(symbol string) int {
	return len(s.bySymbol[symbol])
}

// Symbols returns every symbol with at least one bar stored. Order is not
// significant — callers that need determinism should sort it.
func (s *Store) Symbols() []string {
	out := make([]string, 0, len(s.bySymbol))
	for sym := range s.bySymbol {
		out = append(out, sym)
	}
	return out
}
