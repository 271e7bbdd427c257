package psm

// StateTransition is the PSM's total-function output for one
// (State, SignalClass) cell, per spec §3.
type StateTransition struct {
	CurrentState    State
	SignalClass     SignalClass
	TargetState     State
	OptimalAction   string
	TheoreticalBasis string
	ExpectedReturn  float64
	RiskScore       float64
	Confidence      float64
}

// cell is the raw (unadjusted) table entry: target state, action label,
// expected return, risk score, confidence — the risk-adjustment factor
// from §4.2 is applied after lookup, not baked into the table.
type cell struct {
	target         State
	action         string
	expectedReturn float64
	risk           float64
	confidence     float64
}

// transitionTable holds the 7 states (excluding Invalid, which is handled
// separately as forced emergency liquidation) x 4 non-neutral signal
// classes = 28 entries from spec §4.2's table. NEUTRAL is always a
// self-loop and is not stored here.
var transitionTable = map[State]map[SignalClass]cell{
	CashOnly: {
		StrongBuy:  {TQQQOnly, "Enter leveraged long", 0.15, 0.80, 0.90},
		WeakBuy:    {QQQOnly, "Enter long", 0.08, 0.40, 0.70},
		WeakSell:   {PSQOnly, "Enter inverse", 0.06, 0.40, 0.60},
		StrongSell: {SQQQOnly, "Enter leveraged inverse", 0.12, 0.80, 0.85},
	},
	QQQOnly: {
		StrongBuy:  {QQQTQQQ, "Add leveraged long", 0.18, 0.60, 0.85},
		WeakBuy:    {QQQOnly, "Hold long", 0.05, 0.30, 0.60},
		WeakSell:   {QQQOnly, "Hold long, weak sell noise", 0.02, 0.20, 0.50},
		StrongSell: {CashOnly, "Exit to cash", 0.00, 0.10, 0.90},
	},
	TQQQOnly: {
		StrongBuy:  {QQQTQQQ, "Add long alongside leveraged", 0.12, 0.50, 0.80},
		WeakBuy:    {TQQQOnly, "Hold leveraged long", 0.08, 0.70, 0.60},
		WeakSell:   {QQQOnly, "De-lever to unleveraged long", 0.03, 0.30, 0.70},
		StrongSell: {CashOnly, "Exit to cash", 0.00, 0.10, 0.95},
	},
	PSQOnly: {
		StrongBuy:  {CashOnly, "Exit inverse to cash", 0.00, 0.20, 0.90},
		WeakBuy:    {PSQOnly, "Hold inverse, weak buy noise", 0.02, 0.30, 0.60},
		WeakSell:   {PSQOnly, "Hold inverse", 0.04, 0.40, 0.60},
		StrongSell: {PSQSQQQ, "Add leveraged inverse", 0.15, 0.70, 0.80},
	},
	SQQQOnly: {
		StrongBuy:  {CashOnly, "Exit to cash", 0.00, 0.10, 0.95},
		WeakBuy:    {PSQOnly, "De-lever to unleveraged inverse", 0.02, 0.40, 0.70},
		WeakSell:   {SQQQOnly, "Hold leveraged inverse", 0.06, 0.80, 0.60},
		StrongSell: {PSQSQQQ, "Add inverse alongside leveraged", 0.10, 0.60, 0.80},
	},
	QQQTQQQ: {
		StrongBuy:  {QQQTQQQ, "Hold combined long", 0.20, 0.80, 0.90},
		WeakBuy:    {QQQTQQQ, "Hold combined long, weak buy noise", 0.06, 0.40, 0.60},
		WeakSell:   {QQQOnly, "De-lever to unleveraged long", 0.02, 0.30, 0.70},
		StrongSell: {CashOnly, "Exit to cash", 0.00, 0.10, 0.95},
	},
	PSQSQQQ: {
		StrongBuy:  {CashOnly, "Exit to cash", 0.00, 0.10, 0.95},
		WeakBuy:    {PSQOnly, "De-lever to unleveraged inverse", 0.02, 0.40, 0.70},
		WeakSell:   {PSQSQQQ, "Hold combined inverse, weak sell noise", 0.05, 0.50, 0.60},
		StrongSell: {PSQSQQQ, "Hold combined inverse", 0.18, 0.80, 0.85},
	},
}

// riskFactor returns the state-dependent multiplicative risk adjustment
// applied after table lookup, per spec §4.2.
func riskFactor(s State) float64 {
	switch s {
	case TQQQOnly, SQQQOnly:
		return 1.30
	case QQQTQQQ, PSQSQQQ:
		return 1.20
	case CashOnly:
		return 0.50
	default:
		return 1.0
	}
}

// lookup returns the raw table cell for (state, class); class must not be
// Neutral — callers handle the neutral self-loop separately. Totality over
// the 7 valid states x 4 non-neutral classes is guaranteed by the map
// literal above covering every combination.
func lookup(state State, class SignalClass) (cell, bool) {
	row, ok := transitionTable[state]
	if !ok {
		return cell{}, false
	}
	c, ok := row[class]
	return c, ok
}
