// Package leverage deterministically reconstructs leveraged and inverse
// instrument OHLCV from a base instrument's bar sequence (component C2 of
// SPEC_FULL.md), by compounding daily returns with a fixed decay and
// expense-ratio cost. Grounded on the teacher's per-symbol, per-bar-pair
// backtest processing loop shape.
package leverage

import (
	"fmt"
	"math"

	"github.com/sawpanic/tradecore/internal/bar"
)

// Spec describes one synthetic leveraged/inverse instrument derived from a
// base instrument.
type Spec struct {
	TargetSymbol    string
	BaseSymbol      string
	Leverage        float64 // signed: negative for inverse instruments
	DailyDecayRate  float64
	ExpenseRatio    float64 // annualized; divided by 252 trading days per bar
	StartPrice      float64 // fixed per-family starting close
	VolumeScaleBase float64 // base volume-scaling factor, < 1, refined by |Leverage|
}

// Registry is the authoritative source for which leveraged/inverse symbols
// exist and their synthesis parameters — see SPEC_FULL.md §9's resolution
// of the inverse-whitelist-vs-registry open question: the registry decides
// *existence and leverage factor*, the portfolio package's fixed whitelist
// is the conflict-check tie-breaker.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry builds the registry with the fixed QQQ-family leveraged/
// inverse specs the rest of the pipeline assumes exist.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]Spec)}
	r.Register(Spec{TargetSymbol: "TQQQ", BaseSymbol: "QQQ", Leverage: 3.0, StartPrice: 100, VolumeScaleBase: 0.6})
	r.Register(Spec{TargetSymbol: "PSQ", BaseSymbol: "QQQ", Leverage: -1.0, StartPrice: 50, VolumeScaleBase: 0.4})
	r.Register(Spec{TargetSymbol: "SQQQ", BaseSymbol: "QQQ", Leverage: -3.0, StartPrice: 50, VolumeScaleBase: 0.5})
	return r
}

// Register adds or replaces a synthesis spec.
func (r *Registry) Register(s Spec) { r.specs[s.TargetSymbol] = s }

// Spec looks up the synthesis spec for a target symbol.
func (r *Registry) Spec(targetSymbol string) (Spec, bool) {
	s, ok := r.specs[targetSymbol]
	return s, ok
}

// Generate reconstructs the leveraged/inverse bar sequence for spec.TargetSymbol
// from baseBars (the base instrument's own sequence, ascending by time). The
// base instrument cannot be regenerated from itself: spec.BaseSymbol must
// differ from spec.TargetSymbol, and baseBars must already be that base
// symbol's series.
func Generate(baseBars []bar.Bar, spec Spec) ([]bar.Bar, error) {
	if spec.TargetSymbol == "" || spec.BaseSymbol == "" {
		return nil, fmt.Errorf("leverage: target and base symbol are required")
	}
	if spec.TargetSymbol == spec.BaseSymbol {
		return nil, fmt.Errorf("leverage: target %q cannot equal base %q", spec.TargetSymbol, spec.BaseSymbol)
	}
	if len(baseBars) == 0 {
		return nil, nil
	}
	if spec.StartPrice <= 0 {
		return nil, fmt.Errorf("leverage: start price must be > 0, got %.4f", spec.StartPrice)
	}

	out := make([]bar.Bar, 0, len(baseBars))
	inverse := spec.Leverage < 0
	cost := spec.DailyDecayRate + spec.ExpenseRatio/252.0
	volumeScale := spec.VolumeScaleBase / math.Max(math.Abs(spec.Leverage), 1.0)

	// First synthetic bar carries no prior-close return; it opens flat at
	// StartPrice with intraday range scaled from the base bar's own range.
	first := synthesizeFirst(baseBars[0], spec, inverse, volumeScale)
	out = append(out, first)
	prevClose := first.Close

	for i := 1; i < len(baseBars); i++ {
		prev := baseBars[i-1]
		cur := baseBars[i]
		if prev.Close <= 0 || cur.Close <= 0 {
			return nil, fmt.Errorf("leverage: non-positive base close at index %d", i)
		}
		r := cur.Close/prev.Close - 1.0
		rHat := spec.Leverage * r
		closeLev := prevClose * (1 + rHat - cost)
		if closeLev < 0.01 {
			closeLev = 0.01
		}

		openLev := prevClose
		b, err := scaleIntraday(cur, prev, openLev, closeLev, spec, inverse, volumeScale)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		prevClose = closeLev
	}
	return out, nil
}

func synthesizeFirst(base bar.Bar, spec Spec, inverse bool, volumeScale float64) bar.Bar {
	// Scale the base bar's own intraday spread (as a fraction of its close)
	// onto StartPrice, so the very first synthetic bar still has a sane
	// high/low range instead of a degenerate single point.
	baseRangeFrac := 0.0
	if base.Close > 0 {
		baseRangeFrac = (base.High - base.Low) / base.Close
	}
	half := spec.StartPrice * baseRangeFrac * math.Abs(spec.Leverage) / 2.0
	high := spec.StartPrice + half
	low := spec.StartPrice - half
	if low < 0.01 {
		low = 0.01
	}
	if high < low {
		high = low
	}
	if inverse {
		// swap nothing needed here: open==close==StartPrice for the seed bar
	}
	return bar.Bar{
		TimestampMs: base.TimestampMs,
		Symbol:      spec.TargetSymbol,
		Open:        spec.StartPrice,
		Close:       spec.StartPrice,
		High:        high,
		Low:         low,
		Volume:      base.Volume * volumeScale,
	}
}

// scaleIntraday derives the synthetic bar's high/low from the base bar's
// own high/low movement relative to its open/close, scaled by |Leverage|,
// with inverse instruments swapping which side the excursion lands on, per
// spec §4.5 step 5.
func scaleIntraday(cur, prevBase bar.Bar, openLev, closeLev float64, spec Spec, inverse bool, volumeScale float64) (bar.Bar, error) {
	l := math.Abs(spec.Leverage)

	upExcursion := 0.0
	downExcursion := 0.0
	if cur.Close > 0 {
		upExcursion = (cur.High - math.Max(cur.Open, cur.Close)) / cur.Close * l
		downExcursion = (math.Min(cur.Open, cur.Close) - cur.Low) / cur.Close * l
	}

	bodyHigh := math.Max(openLev, closeLev)
	bodyLow := math.Min(openLev, closeLev)

	var high, low float64
	if !inverse {
		high = bodyHigh * (1 + upExcursion)
		low = bodyLow * (1 - downExcursion)
	} else {
		// Inverse instruments swap which excursion stretches which side,
		// since a base up-move is a synthetic down-move.
		high = bodyHigh * (1 + downExcursion)
		low = bodyLow * (1 - upExcursion)
	}
	if low < 0.01 {
		low = 0.01
	}
	if high < bodyHigh {
		high = bodyHigh
	}
	if low > bodyLow {
		low = bodyLow
	}

	b := bar.Bar{
		TimestampMs: cur.TimestampMs,
		Symbol:      spec.TargetSymbol,
		Open:        openLev,
		Close:       closeLev,
		High:        high,
		Low:         low,
		Volume:      cur.Volume * volumeScale,
	}
	if err := b.Validate(); err != nil {
		return bar.Bar{}, fmt.Errorf("leverage: synthesized bar failed validation: %w", err)
	}
	return b, nil
}
