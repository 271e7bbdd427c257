// Package indicator maintains the rolling windows the signal aggregator's
// detectors read from (component C3 of SPEC_FULL.md): SMA/σ, RSI, VWAP,
// opening-range, gains/losses, and volume. Grounded on the teacher's
// neutral-on-insufficient-data idiom in its CalculateRSI.
package indicator

import "math"

// bufCap bounds every rolling buffer per spec §5 ("each buffer is bounded
// (cap 2048) and trimmed at each update").
const bufCap = 2048

// Snapshot is the rolling state the aggregator's detectors read, for one
// symbol, as of the most recently observed bar.
type Snapshot struct {
	Closes  []float64
	Volumes []float64

	// Opening-range-breakout state for the current UTC day bucket.
	orbDayBucket  int64
	orbBarsInDay  int
	orbRangeHigh  float64
	orbRangeLow   float64
	orbRangeKnown bool
}

// Cache owns one Snapshot per symbol and updates them bar by bar. It is
// owned exclusively by the aggregator, per spec §5.
type Cache struct {
	bySymbol map[string]*Snapshot
}

// NewCache returns an empty indicator cache.
func NewCache() *Cache {
	return &Cache{bySymbol: make(map[string]*Snapshot)}
}

// snapshotFor returns (creating if needed) the Snapshot for symbol.
func (c *Cache) snapshotFor(symbol string) *Snapshot {
	s, ok := c.bySymbol[symbol]
	if !ok {
		s = &Snapshot{}
		c.bySymbol[symbol] = s
	}
	return s
}

// Update folds one bar into symbol's rolling state. dayBucket is the bar's
// UTC calendar-day bucket (see bar.DayBucket); it drives ORB window resets.
func (c *Cache) Update(symbol string, dayBucket int64, open, high, low, close, volume float64) {
	s := c.snapshotFor(symbol)

	s.Closes = appendBounded(s.Closes, close)
	s.Volumes = appendBounded(s.Volumes, volume)

	if !s.orbRangeKnown || s.orbDayBucket != dayBucket {
		s.orbDayBucket = dayBucket
		s.orbBarsInDay = 0
		s.orbRangeHigh = high
		s.orbRangeLow = low
		s.orbRangeKnown = true
	}
	if s.orbBarsInDay < 30 {
		s.orbRangeHigh = math.Max(s.orbRangeHigh, high)
		s.orbRangeLow = math.Min(s.orbRangeLow, low)
	}
	s.orbBarsInDay++
}

func appendBounded(buf []float64, v float64) []float64 {
	buf = append(buf, v)
	if len(buf) > bufCap {
		buf = buf[len(buf)-bufCap:]
	}
	return buf
}

// Snapshot returns the current rolling state for symbol, or nil if the
// symbol has never been updated.
func (c *Cache) Snapshot(symbol string) *Snapshot {
	return c.bySymbol[symbol]
}

// SMA returns the simple moving average of the last n closes, and whether
// enough history exists.
func (s *Snapshot) SMA(n int) (float64, bool) {
	if s == nil || len(s.Closes) < n || n <= 0 {
		return 0, false
	}
	window := s.Closes[len(s.Closes)-n:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	return sum / float64(n), true
}

// StdDev returns the population standard deviation of the last n closes.
func (s *Snapshot) StdDev(n int) (float64, bool) {
	mean, ok := s.SMA(n)
	if !ok {
		return 0, false
	}
	window := s.Closes[len(s.Closes)-n:]
	sumSq := 0.0
	for _, v := range window {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n)), true
}

// RSI computes the Wilder-smoothed RSI over the last period+1 closes,
// returning 50 (neutral) when there is insufficient history — the same
// fallback idiom as the teacher's CalculateRSI.
func (s *Snapshot) RSI(period int) float64 {
	if s == nil || len(s.Closes) < period+1 {
		return 50.0
	}
	closes := s.Closes
	start := len(closes) - period - 1
	window := closes[start:]

	gains := make([]float64, 0, period)
	losses := make([]float64, 0, period)
	for i := 1; i < len(window); i++ {
		d := window[i] - window[i-1]
		if d > 0 {
			gains = append(gains, d)
			losses = append(losses, 0)
		} else {
			gains = append(gains, 0)
			losses = append(losses, -d)
		}
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 0; i < period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	alpha := 1.0 / float64(period)
	for i := period; i < len(gains); i++ {
		avgGain = avgGain*(1-alpha) + gains[i]*alpha
		avgLoss = avgLoss*(1-alpha) + losses[i]*alpha
	}
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// VWAP computes the n-bar typical-price volume-weighted average price.
// Requires a matching window of typical prices; callers pass it in since
// Snapshot only stores closes/volumes (typical price needs high/low too,
// which the aggregator has from the current and recent bars).
func VWAP(typicalPrices, volumes []float64) (float64, bool) {
	if len(typicalPrices) == 0 || len(typicalPrices) != len(volumes) {
		return 0, false
	}
	var num, den float64
	for i := range typicalPrices {
		num += typicalPrices[i] * volumes[i]
		den += volumes[i]
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

// Momentum returns the n-bar return close_t/close_{t-n} - 1.
func (s *Snapshot) Momentum(n int) (float64, bool) {
	if s == nil || len(s.Closes) < n+1 {
		return 0, false
	}
	cur := s.Closes[len(s.Closes)-1]
	prev := s.Closes[len(s.Closes)-1-n]
	if prev == 0 {
		return 0, false
	}
	return cur/prev - 1.0, true
}

// OpeningRange returns the first-30-bars-of-day high/low range for the
// current day bucket, and whether it has been established.
func (s *Snapshot) OpeningRange() (high, low float64, ok bool) {
	if s == nil || !s.orbRangeKnown {
		return 0, 0, false
	}
	return s.orbRangeHigh, s.orbRangeLow, true
}

// Warmed reports whether enough bars have accumulated for warmup (spec
// §4.1: the aggregator only emits signals once warmup_bars observations
// have been seen).
func (s *Snapshot) Warmed(warmupBars int) bool {
	return s != nil && len(s.Closes) >= warmupBars
}
