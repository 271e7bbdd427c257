package psm

// MarketConditions is a deliberately thin placeholder for whatever market
// context (regime, liquidity) a future caller wants to pass the PSM — the
// contract in spec §4.2 takes it; none of the 28 table cells read it, and
// the validation rule reads only its capital fields, for the minimum cash
// buffer check; the scalper overlay (C12) is the
// layer that actually reacts to trend/regime, applied after OptimalTransition
// returns.
type MarketConditions struct {
	AvailableCapital float64
	NominalCapital   float64 // base for the minimum cash buffer check; default 100000
}

// DefaultNominalCapital is the nominal base spec §4.2 computes the minimum
// cash buffer against when callers don't override it.
const DefaultNominalCapital = 100_000.0

// minCashBufferFraction is the 10% minimum-cash-buffer validation rule.
const minCashBufferFraction = 0.10

// Engine evaluates the PSM: classify, look up, risk-adjust, validate.
type Engine struct {
	baseBuy, baseSell float64
}

// NewEngine builds a PSM engine with base (unadjusted) buy/sell
// thresholds, before per-state adjustment (C7).
func NewEngine(baseBuy, baseSell float64) *Engine {
	return &Engine{baseBuy: baseBuy, baseSell: baseSell}
}

// OptimalTransition is the PSM's total function: (state-derived-from-
// holdings, signal probability, market) -> StateTransition, per spec §4.2.
func (e *Engine) OptimalTransition(quantities map[string]float64, probability float64, market MarketConditions) StateTransition {
	state := ClassifyState(quantities)

	if state == Invalid {
		return StateTransition{
			CurrentState:     Invalid,
			SignalClass:      Neutral,
			TargetState:      CashOnly,
			OptimalAction:    "Emergency liquidation",
			TheoreticalBasis: "Portfolio holds an unrecognized symbol combination",
			ExpectedReturn:   0,
			RiskScore:        0,
			Confidence:       1,
		}
	}

	tBuy, tSell := AdjustThresholds(e.baseBuy, e.baseSell, state)
	class := ClassifySignal(probability, tBuy, tSell)

	if class == Neutral {
		return StateTransition{
			CurrentState:     state,
			SignalClass:      Neutral,
			TargetState:      state,
			OptimalAction:    "Hold",
			TheoreticalBasis: "Signal in neutral zone",
			ExpectedReturn:   0,
			RiskScore:        0,
			Confidence:       0.5,
		}
	}

	c, ok := lookup(state, class)
	if !ok {
		// Unreachable given the table's totality over (7 states x 4
		// classes), but fall back to a safe self-loop rather than a zero
		// value if the table is ever edited incompletely.
		return selfLoop(state, class, "No transition defined for this cell")
	}

	risk := clampF(c.risk*riskFactor(state), 0, 1)
	transition := StateTransition{
		CurrentState:     state,
		SignalClass:      class,
		TargetState:      c.target,
		OptimalAction:    c.action,
		TheoreticalBasis: basisFor(state, class),
		ExpectedReturn:   c.expectedReturn,
		RiskScore:        risk,
		Confidence:       c.confidence,
	}

	if rejectReason, rejected := validate(transition, state, market); rejected {
		downgraded := selfLoop(state, class, rejectReason)
		return downgraded
	}
	return transition
}

func selfLoop(state State, class SignalClass, reason string) StateTransition {
	return StateTransition{
		CurrentState:     state,
		SignalClass:      class,
		TargetState:      state,
		OptimalAction:    "Hold",
		TheoreticalBasis: reason,
		ExpectedReturn:   0,
		RiskScore:        0,
		Confidence:       0.5,
	}
}

// validate applies spec §4.2's rejection rules: risk too high, confidence
// too low, capital below the minimum cash buffer, or INVALID -> non-CASH
// (the latter is structurally unreachable here since Invalid states are
// handled before lookup, but is listed for completeness against the spec).
func validate(t StateTransition, fromState State, market MarketConditions) (reason string, rejected bool) {
	if t.RiskScore > 0.9 {
		return "Risk score exceeds maximum", true
	}
	if t.Confidence < 0.3 {
		return "Confidence below minimum", true
	}
	nominal := market.NominalCapital
	if nominal <= 0 {
		nominal = DefaultNominalCapital
	}
	if market.AvailableCapital < nominal*minCashBufferFraction {
		return "Available capital below minimum cash buffer", true
	}
	if fromState == Invalid && t.TargetState != CashOnly {
		return "Invalid state must route to cash", true
	}
	return "", false
}

func basisFor(state State, class SignalClass) string {
	return state.String() + " + " + class.String()
}
