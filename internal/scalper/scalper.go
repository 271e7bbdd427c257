// Package scalper implements the optional SMA-crossover veto overlay (C12
// of SPEC_FULL.md §4.8): a pluggable, non-learned filter that can downgrade
// a BUY or SELL signal to HOLD when price sits on the wrong side of a fast
// moving average. Grounded on the teacher's percent-vs-moving-average vote
// idiom (analyzeMovingAveragePosition), adapted from a three-way regime
// vote to a two-way buy/sell veto.
package scalper

import "github.com/sawpanic/tradecore/internal/indicator"

// Overlay is a feature-flagged veto layer; a disabled Overlay is a no-op
// pass-through, per spec §9's resolution that the scalper layer must be
// optional.
type Overlay struct {
	Enabled  bool
	FastSMA  int
	MinEdgeP float64 // minimum |price - sma| / sma fraction required to confirm a side
}

// NewOverlay returns a disabled Overlay with spec-default parameters; call
// Enable to turn it on.
func NewOverlay() *Overlay {
	return &Overlay{Enabled: false, FastSMA: 20, MinEdgeP: 0.002}
}

// Enable turns the overlay on with the given fast SMA period and minimum
// price/SMA edge fraction.
func (o *Overlay) Enable(fastSMA int, minEdgeP float64) {
	o.Enabled = true
	o.FastSMA = fastSMA
	o.MinEdgeP = minEdgeP
}

// Vote is the overlay's opinion on one bar: whether BUY and SELL sides are
// confirmed by the fast-SMA position.
type Vote struct {
	ConfirmsBuy  bool
	ConfirmsSell bool
	PctAboveSMA  float64
}

// Evaluate computes the overlay's vote for the current close against snap's
// fast SMA. When disabled, both sides are always confirmed (a no-op veto).
func (o *Overlay) Evaluate(close float64, snap *indicator.Snapshot) Vote {
	if !o.Enabled {
		return Vote{ConfirmsBuy: true, ConfirmsSell: true}
	}

	sma, ok := snap.SMA(o.FastSMA)
	if !ok || sma <= 0 {
		return Vote{ConfirmsBuy: true, ConfirmsSell: true}
	}

	pctAbove := (close - sma) / sma
	return Vote{
		ConfirmsBuy:  pctAbove > o.MinEdgeP,
		ConfirmsSell: pctAbove < -o.MinEdgeP,
		PctAboveSMA:  pctAbove,
	}
}

// VetoBuy reports whether the overlay vetoes a pending BUY decision.
func (o *Overlay) VetoBuy(close float64, snap *indicator.Snapshot) bool {
	return !o.Evaluate(close, snap).ConfirmsBuy
}

// VetoSell reports whether the overlay vetoes a pending SELL decision.
func (o *Overlay) VetoSell(close float64, snap *indicator.Snapshot) bool {
	return !o.Evaluate(close, snap).ConfirmsSell
}
