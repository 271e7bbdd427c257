// Package portfolio implements the Portfolio Executor (component C8 of
// SPEC_FULL.md): Position/PortfolioState, the directional conflict
// manager, mark-to-market, and the BUY/SELL/HOLD decision rule (both the
// PSM-driven and direct-threshold execution modes — see SPEC_FULL.md §9).
// Grounded on the teacher's precedence-coded, typed-reason result struct
// idiom (ExitResult/ExitReason).
package portfolio

import "strconv"

// Position is one non-negative holding. Short exposure is always expressed
// by holding an inverse instrument, never by a negative quantity, per
// spec §3.
type Position struct {
	Symbol        string
	Quantity      float64
	AvgPrice      float64
	CurrentPrice  float64
	UnrealizedPnL float64
	RealizedPnL   float64
}

// State is the mutable portfolio owned exclusively by the orchestrator/
// executor within one run, per spec §5. TotalEquity and UnrealizedPnL are
// cached snapshots refreshed by Recompute/MarkToMarket rather than plain
// derived methods, matching spec §3's listing of them as PortfolioState
// fields — callers must not read them before a Recompute after mutating
// Positions directly.
type State struct {
	CashBalance   float64
	Positions     map[string]*Position
	TotalEquity   float64
	UnrealizedPnL float64
	RealizedPnL   float64
	TimestampMs   int64
}

// NewState returns a fresh all-cash portfolio with the given starting cash.
func NewState(startingCash float64) *State {
	s := &State{
		CashBalance: startingCash,
		Positions:   make(map[string]*Position),
	}
	s.Recompute()
	return s
}

// Recompute refreshes TotalEquity and UnrealizedPnL from CashBalance and
// Positions, enforcing spec §3's identity total_equity = cash + sum(qty *
// current_price).
func (s *State) Recompute() {
	var posValue, unrealized float64
	for _, p := range s.Positions {
		posValue += p.Quantity * p.CurrentPrice
		unrealized += p.UnrealizedPnL
	}
	s.TotalEquity = s.CashBalance + posValue
	s.UnrealizedPnL = unrealized
}

// MarkToMarket updates current_price and unrealized_pnl for every held
// symbol from the latest close, then recomputes equity — spec §4.4's
// "before evaluation, update current_price... and recompute
// unrealized_pnl" step, run once per bar before the executor decides.
func (s *State) MarkToMarket(closes map[string]float64) {
	for sym, p := range s.Positions {
		if close, ok := closes[sym]; ok {
			p.CurrentPrice = close
			p.UnrealizedPnL = (p.CurrentPrice - p.AvgPrice) * p.Quantity
		}
	}
	s.Recompute()
}

// Quantities returns the non-dust-inclusive quantity map the PSM uses for
// state classification — dust filtering happens in psm.ClassifyState, not
// here, since a just-reduced-to-near-zero position is still a real
// Position entry until the executor prunes it.
func (s *State) Quantities() map[string]float64 {
	out := make(map[string]float64, len(s.Positions))
	for sym, p := range s.Positions {
		out[sym] = p.Quantity
	}
	return out
}

// PositionsSummary renders the "SYM:qty,SYM:qty,..." string spec §6
// requires on trade records, including only non-dust entries.
func (s *State) PositionsSummary() string {
	out := ""
	for sym, p := range s.Positions {
		q := p.Quantity
		if q < 0 {
			q = -q
		}
		if q < dustThreshold {
			continue
		}
		if out != "" {
			out += ","
		}
		out += sym + ":" + formatQty(p.Quantity)
	}
	return out
}

const dustThreshold = 1e-6

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
