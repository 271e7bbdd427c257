package portfolio

import (
	"math"

	"github.com/sawpanic/tradecore/internal/costmodel"
	"github.com/sawpanic/tradecore/internal/fatal"
	"github.com/sawpanic/tradecore/internal/psm"
)

// Action is the executor's decision for one symbol on one bar.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Decision is the executor's full output for one (signal, bar) pair — the
// portfolio-side half of spec §3's TradeRecord; the orchestrator/tradelog
// layer adds run_id/bar_index and writes it out.
type Decision struct {
	Symbol               string
	Action               Action
	Quantity             float64
	Price                float64
	TradeValue           float64
	Fees                 float64
	BeforeState          State
	AfterState           State
	SignalProbability    float64
	SignalConfidence     float64
	ExecutionReason      string
	RejectionReason      string
	ConflictCheckPassed  bool
	RealizedPnLDelta     float64
	UnrealizedAfter      float64
	PositionsSummary     string
}

// Executor mutates a portfolio.State exactly once per call, per spec §4.4.
type Executor struct {
	CostModel costmodel.Model
	Manager   *StaticPositionManager
}

// NewExecutor builds an Executor with the given cost model and a fresh
// conflict manager.
func NewExecutor(model costmodel.Model) *Executor {
	return &Executor{CostModel: model, Manager: NewStaticPositionManager()}
}

// checkPreconditions panics (fatal.Violation) on any of spec §4.4's
// precondition violations: bad symbol, out-of-range probability/
// confidence, non-positive price, or symbol/bar mismatch.
func checkPreconditions(signalSymbol, barSymbol string, probability, confidence, price float64) {
	if signalSymbol == "" || barSymbol == "" {
		fatal.Raise("portfolio.Executor", "symbol must not be empty")
	}
	if signalSymbol != barSymbol {
		fatal.Raisef("portfolio.Executor", "signal symbol %q does not match bar symbol %q", signalSymbol, barSymbol)
	}
	if math.IsNaN(probability) || math.IsInf(probability, 0) || probability < 0 || probability > 1 {
		fatal.Raisef("portfolio.Executor", "probability %v out of [0,1]", probability)
	}
	if math.IsNaN(confidence) || math.IsInf(confidence, 0) || confidence < 0 || confidence > 1 {
		fatal.Raisef("portfolio.Executor", "confidence %v out of [0,1]", confidence)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		fatal.Raisef("portfolio.Executor", "price %v must be finite and > 0", price)
	}
}

// ExecuteDirect applies spec §4.4's probability-threshold decision rule
// directly against Signal.Probability, independent of the PSM.
func (e *Executor) ExecuteDirect(pf *State, symbol string, barSymbol string, price, probability, confidence, tBuy, tSell float64) Decision {
	checkPreconditions(symbol, barSymbol, probability, confidence, price)

	before := snapshot(pf)
	_, held := pf.Positions[symbol]

	switch {
	case probability > tBuy && confidence > 0.5 && !held:
		return e.buy(pf, symbol, price, probability, confidence, before, "Direct threshold buy signal")
	case probability < tSell && held:
		return e.sell(pf, symbol, price, probability, confidence, before, "Direct threshold sell signal")
	default:
		return e.hold(pf, symbol, price, probability, confidence, before, "No direct threshold crossed")
	}
}

// ExecutePSM applies the PSM's chosen transition to symbol: BUY if symbol
// enters the target state's holdings, SELL if it leaves, HOLD otherwise.
// From an INVALID state every held symbol is sold (emergency liquidation).
func (e *Executor) ExecutePSM(pf *State, symbol string, barSymbol string, price, probability, confidence float64, transition psm.StateTransition) Decision {
	checkPreconditions(symbol, barSymbol, probability, confidence, price)

	before := snapshot(pf)
	fromSet := psm.SymbolsFor(transition.CurrentState)
	toSet := psm.SymbolsFor(transition.TargetState)

	switch {
	case transition.CurrentState == psm.Invalid:
		return e.sell(pf, symbol, price, probability, confidence, before, transition.OptimalAction)
	case fromSet[symbol] && !toSet[symbol]:
		return e.sell(pf, symbol, price, probability, confidence, before, transition.OptimalAction)
	case !fromSet[symbol] && toSet[symbol]:
		return e.buy(pf, symbol, price, probability, confidence, before, transition.OptimalAction)
	default:
		return e.hold(pf, symbol, price, probability, confidence, before, transition.TheoreticalBasis)
	}
}

// ForceHold builds a HOLD Decision without touching pf, for callers (e.g.
// the scalper veto overlay) that need to veto an action the PSM/direct
// rule would otherwise take, while still recording why.
func (e *Executor) ForceHold(pf *State, symbol string, price, probability, confidence float64, reason string) Decision {
	checkPreconditions(symbol, symbol, probability, confidence, price)
	before := snapshot(pf)
	return e.hold(pf, symbol, price, probability, confidence, before, reason)
}

func (e *Executor) buy(pf *State, symbol string, price, probability, confidence float64, before State, reason string) Decision {
	if !e.Manager.AllowsBuy(symbol) {
		return e.rejected(pf, symbol, price, probability, confidence, before, "Conflict detected")
	}

	sizeFrac := clip((probability-0.5)*2, 0, 1)
	positionSize := pf.CashBalance * sizeFrac
	quantity := positionSize / price
	tradeValue := quantity * price
	fees := costmodel.Fee(e.CostModel, tradeValue)

	if pf.CashBalance <= 0 || pf.CashBalance < tradeValue+fees {
		return e.rejected(pf, symbol, price, probability, confidence, before, "Insufficient capital")
	}
	if quantity <= 0 {
		return e.hold(pf, symbol, price, probability, confidence, before, "Signal too weak to size a position")
	}

	pos, existed := pf.Positions[symbol]
	if !existed {
		pos = &Position{Symbol: symbol, CurrentPrice: price}
		pf.Positions[symbol] = pos
	}
	newQty := pos.Quantity + quantity
	pos.AvgPrice = (pos.Quantity*pos.AvgPrice + quantity*price) / newQty
	pos.Quantity = newQty
	pos.CurrentPrice = price
	pos.UnrealizedPnL = (pos.CurrentPrice - pos.AvgPrice) * pos.Quantity

	pf.CashBalance -= tradeValue + fees
	if pf.CashBalance < -1e-9 {
		fatal.Raisef("portfolio.Executor", "cash balance went negative: %.8f", pf.CashBalance)
	}
	if pf.CashBalance < 0 {
		pf.CashBalance = 0
	}
	e.Manager.RecordBuy(symbol)
	pf.Recompute()

	return e.finish(pf, symbol, Buy, quantity, price, tradeValue, fees, probability, confidence, before, reason, "", true, 0)
}

func (e *Executor) sell(pf *State, symbol string, price, probability, confidence float64, before State, reason string) Decision {
	pos, held := pf.Positions[symbol]
	if !held || pos.Quantity <= 0 {
		return e.hold(pf, symbol, price, probability, confidence, before, "No position to sell")
	}

	quantity := pos.Quantity
	tradeValue := quantity * price
	fees := costmodel.Fee(e.CostModel, tradeValue)
	realizedDelta := (price-pos.AvgPrice)*quantity - fees

	pos.RealizedPnL += realizedDelta
	pf.RealizedPnL += realizedDelta
	pf.CashBalance += tradeValue - fees
	if pf.CashBalance < -1e-9 {
		fatal.Raisef("portfolio.Executor", "cash balance went negative: %.8f", pf.CashBalance)
	}
	if pf.CashBalance < 0 {
		pf.CashBalance = 0
	}
	delete(pf.Positions, symbol)
	e.Manager.RecordSell(symbol)
	pf.Recompute()

	return e.finish(pf, symbol, Sell, quantity, price, tradeValue, fees, probability, confidence, before, reason, "", true, realizedDelta)
}

func (e *Executor) hold(pf *State, symbol string, price, probability, confidence float64, before State, reason string) Decision {
	pf.Recompute()
	return e.finish(pf, symbol, Hold, 0, price, 0, 0, probability, confidence, before, reason, "", true, 0)
}

func (e *Executor) rejected(pf *State, symbol string, price, probability, confidence float64, before State, rejectionReason string) Decision {
	pf.Recompute()
	conflictPassed := rejectionReason != "Conflict detected"
	return e.finish(pf, symbol, Hold, 0, price, 0, 0, probability, confidence, before, "", rejectionReason, conflictPassed, 0)
}

func (e *Executor) finish(pf *State, symbol string, action Action, quantity, price, tradeValue, fees, probability, confidence float64, before State, execReason, rejectReason string, conflictPassed bool, realizedDelta float64) Decision {
	unrealizedAfter := 0.0
	if pos, ok := pf.Positions[symbol]; ok {
		unrealizedAfter = pos.UnrealizedPnL
	}
	return Decision{
		Symbol:              symbol,
		Action:               action,
		Quantity:             quantity,
		Price:                price,
		TradeValue:           tradeValue,
		Fees:                 fees,
		BeforeState:          before,
		AfterState:           snapshot(pf),
		SignalProbability:    probability,
		SignalConfidence:     confidence,
		ExecutionReason:      execReason,
		RejectionReason:      rejectReason,
		ConflictCheckPassed:  conflictPassed,
		RealizedPnLDelta:     realizedDelta,
		UnrealizedAfter:      unrealizedAfter,
		PositionsSummary:     pf.PositionsSummary(),
	}
}

// snapshot returns a value copy of pf's scalar fields and a shallow copy of
// Positions, suitable for a TradeRecord's before_state/after_state — deep
// enough that later mutation of pf.Positions' map entries does not retroactively
// change a snapshot already taken, since Position values (not pointers) are
// copied in.
func snapshot(pf *State) State {
	cp := State{
		CashBalance:   pf.CashBalance,
		TotalEquity:   pf.TotalEquity,
		UnrealizedPnL: pf.UnrealizedPnL,
		RealizedPnL:   pf.RealizedPnL,
		TimestampMs:   pf.TimestampMs,
		Positions:     make(map[string]*Position, len(pf.Positions)),
	}
	for sym, p := range pf.Positions {
		copyP := *p
		cp.Positions[sym] = &copyP
	}
	return cp
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
