// Package signal implements the seven-detector weighted log-odds fusion
// aggregator (component C4 of SPEC_FULL.md). Grounded on the teacher's
// indicator→vote→weighted-fusion shape (RegimeIndicator,
// calculateMajorityVote), generalized from a 3-way majority vote to a
// continuous log-odds fusion over 7 detectors.
package signal

import (
	"math"
	"sync"

	"github.com/sawpanic/tradecore/internal/bar"
	"github.com/sawpanic/tradecore/internal/indicator"
)

// Signal is one bar's fused directional probability, per spec §3.
type Signal struct {
	TimestampMs     int64
	BarIndex        int
	Symbol          string
	Probability     float64
	Confidence      float64
	StrategyName    string
	StrategyVersion string
	Metadata        map[string]string
}

// Weights are the per-detector fusion weights, defaulting to the values
// below (spec §4.1). Loaded from YAML via internal/config in a full run.
type Weights struct {
	Boll float64 `yaml:"boll"`
	RSI  float64 `yaml:"rsi"`
	Mom  float64 `yaml:"mom"`
	VWAP float64 `yaml:"vwap"`
	ORB  float64 `yaml:"orb"`
	OFI  float64 `yaml:"ofi"`
	Vol  float64 `yaml:"vol"`
}

// DefaultWeights returns the spec's equal-ish default detector weights.
func DefaultWeights() Weights {
	return Weights{Boll: 1.0, RSI: 1.0, Mom: 1.0, VWAP: 1.0, ORB: 1.0, OFI: 1.0, Vol: 1.0}
}

// Config parameterizes the aggregator beyond per-detector weights.
type Config struct {
	Weights    Weights
	Sharpness  float64 // k in P = sigmoid(k*L), default 1.0
	WarmupBars int
}

// DefaultConfig returns the spec's default aggregator configuration.
func DefaultConfig() Config {
	return Config{Weights: DefaultWeights(), Sharpness: 1.0, WarmupBars: 20}
}

// Aggregator fuses the seven detectors into one Signal per bar.
type Aggregator struct {
	cfg             Config
	strategyName    string
	strategyVersion string
}

// NewAggregator builds an Aggregator with the given config.
func NewAggregator(cfg Config, strategyName, strategyVersion string) *Aggregator {
	return &Aggregator{cfg: cfg, strategyName: strategyName, strategyVersion: strategyVersion}
}

// Warmed reports whether snap holds enough history to emit a
// signal at all (spec §4.1 warm-up gate); the orchestrator skips the PSM
// step entirely when this is false.
func (a *Aggregator) Warmed(snap *indicator.Snapshot) bool {
	return snap.Warmed(a.cfg.WarmupBars)
}

// detectorInputs bundles what each detector needs, beyond the shared
// Snapshot, to stay a pure function.
type detectorInputs struct {
	bar      bar.Bar
	barIndex int
	snap     *indicator.Snapshot
}

// Aggregate runs the seven detectors (concurrently — they are pure
// functions of pre-maintained rolling buffers per spec §5) and fuses them
// via weighted log-odds, per spec §4.1.
func (a *Aggregator) Aggregate(b bar.Bar, barIndex int, snap *indicator.Snapshot) Signal {
	in := detectorInputs{bar: b, barIndex: barIndex, snap: snap}

	type named struct {
		name string
		p    func(detectorInputs) float64
		w    float64
	}
	detectors := []named{
		{"boll", pBoll, a.cfg.Weights.Boll},
		{"rsi", pRSI, a.cfg.Weights.RSI},
		{"mom", pMom, a.cfg.Weights.Mom},
		{"vwap", pVWAP, a.cfg.Weights.VWAP},
		{"orb", pORB, a.cfg.Weights.ORB},
		{"ofi", pOFI, a.cfg.Weights.OFI},
		{"vol", pVol, a.cfg.Weights.Vol},
	}

	probs := make([]float64, len(detectors))
	var wg sync.WaitGroup
	for i, d := range detectors {
		wg.Add(1)
		go func(i int, fn func(detectorInputs) float64) {
			defer wg.Done()
			probs[i] = fn(in)
		}(i, d.p)
	}
	wg.Wait()

	// pVol depends on pMom's direction (pMom does not depend on pVol), so
	// recompute it sequentially afterward
	// using the already-computed momentum probability (see pVol doc).
	momP := probs[2]
	probs[6] = volWithMomentum(in, momP)

	var weightedSum, totalWeight float64
	for i, d := range detectors {
		clipped := clip(probs[i], 1e-6, 1-1e-6)
		weightedSum += d.w * logit(clipped)
		totalWeight += d.w
	}
	L := 0.0
	if totalWeight > 0 {
		L = weightedSum / totalWeight
	}
	p := sigmoid(a.cfg.Sharpness * L)

	above, below := 0, 0
	maxStrength := 0.0
	for _, pi := range probs {
		if pi > 0.5 {
			above++
		} else if pi < 0.5 {
			below++
		}
		if s := math.Abs(pi - 0.5); s > maxStrength {
			maxStrength = s
		}
	}
	agreement := above
	if below > agreement {
		agreement = below
	}
	agreementFrac := float64(agreement) / 7.0
	confBase := agreementFrac
	if maxStrength > confBase {
		confBase = maxStrength
	}
	confidence := clip(0.4+0.6*confBase, 0, 1)

	return Signal{
		TimestampMs:     b.TimestampMs,
		BarIndex:        barIndex,
		Symbol:          b.Symbol,
		Probability:     clip(p, 0, 1),
		Confidence:      confidence,
		StrategyName:    a.strategyName,
		StrategyVersion: a.strategyVersion,
		Metadata:        map[string]string{},
	}
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func logit(p float64) float64 { return math.Log(p / (1 - p)) }
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// pBoll: z-score of close vs 20-bar SMA/sigma.
func pBoll(in detectorInputs) float64 {
	sma, ok1 := in.snap.SMA(20)
	sd, ok2 := in.snap.StdDev(20)
	if !ok1 || !ok2 || sd == 0 {
		return 0.5
	}
	z := (in.bar.Close - sma) / sd
	return 0.5 + 0.5*math.Tanh(z/2)
}

// pRSI: 14-period RSI mapped to probability.
func pRSI(in detectorInputs) float64 {
	rsi := in.snap.RSI(14)
	return 0.5 + (rsi-50)/100.0
}

// pMom: window-10 return mapped via tanh.
func pMom(in detectorInputs) float64 {
	ret, ok := in.snap.Momentum(10)
	if !ok {
		return 0.5
	}
	return 0.5 + 0.5*math.Tanh(ret*50)
}

// pVWAP: mean-reversion bias vs 20-bar typical-price VWAP.
func pVWAP(in detectorInputs) float64 {
	n := 20
	if len(in.snap.Closes) < n {
		return 0.5
	}
	closes := in.snap.Closes[len(in.snap.Closes)-n:]
	volumes := in.snap.Volumes[len(in.snap.Volumes)-n:]
	// Typical price approximated by close when high/low history isn't
	// separately retained in Snapshot; the current bar's own typical
	// price refines the final point.
	typical := make([]float64, n)
	copy(typical, closes)
	typical[n-1] = in.bar.TypicalPrice()

	vwap, ok := indicator.VWAP(typical, volumes)
	if !ok || vwap == 0 {
		return 0.5
	}
	return 0.5 - 0.5*math.Tanh((in.bar.Close-vwap)/math.Abs(vwap))
}

// pORB: opening-range breakout over the first 30 bars of the UTC day.
func pORB(in detectorInputs) float64 {
	high, low, ok := in.snap.OpeningRange()
	if !ok {
		return 0.5
	}
	if in.bar.Close > high {
		return 0.7
	}
	if in.bar.Close < low {
		return 0.3
	}
	return 0.5
}

// pOFI: bar-geometry order-flow proxy.
func pOFI(in detectorInputs) float64 {
	rng := math.Max(in.bar.High-in.bar.Low, 1e-8)
	body := (in.bar.Close - in.bar.Open) / rng
	return 0.5 + 0.25*body*math.Tanh(in.bar.Volume/1e6)
}

// pVol: volume-surge magnitude scaled by momentum direction. This detector
// needs pMom's sign, so Aggregate recomputes it after the concurrent pass
// using volWithMomentum — it is not itself safe to run purely in parallel
// with pMom, despite spec §5's "detectors may be evaluated in parallel"
// being about non-observable scheduling, not data dependence.
func volWithMomentum(in detectorInputs, momP float64) float64 {
	n := 20
	if len(in.snap.Volumes) < n {
		return 0.5
	}
	window := in.snap.Volumes[len(in.snap.Volumes)-n:]
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	avgVol := sum / float64(n)
	if avgVol == 0 {
		return 0.5
	}
	ratio := in.bar.Volume / avgVol
	sign := 1.0
	if momP-0.5 < 0 {
		sign = -1.0
	} else if momP-0.5 == 0 {
		sign = 0.0
	}
	return 0.5 + 0.25*math.Tanh(ratio-1)*sign
}

// pVol is the placeholder slot filled by volWithMomentum after the
// concurrent pass (see Aggregate); it exists so pVol has the same
// func(detectorInputs) float64 shape as the other detectors in the table.
func pVol(in detectorInputs) float64 {
	return 0.5
}
