package portfolio

// Direction tags the portfolio's current directional exposure, tracked by
// StaticPositionManager so a BUY that would straddle long and inverse
// groups is rejected before it reaches cash/position mutation.
type Direction int

const (
	DirNeutral Direction = iota
	DirLong
	DirShort
)

// inverseETFs is the fixed whitelist spec §4.4 uses for conflict
// classification — the tie-breaker over the leverage registry, per
// SPEC_FULL.md §9's resolution of the whitelist-vs-registry question.
var inverseETFs = map[string]bool{
	"PSQ": true, "SH": true, "SDS": true, "SPXS": true,
	"SQQQ": true, "QID": true, "DXD": true, "SDOW": true, "DOG": true,
}

// IsInverse reports whether symbol is a recognized inverse instrument.
func IsInverse(symbol string) bool {
	return inverseETFs[symbol]
}

// StaticPositionManager tracks the portfolio's directional tag and a
// per-symbol open-position counter, enforcing spec §4.4's conflict rule:
// a portfolio never mixes long-group and inverse-group positions.
type StaticPositionManager struct {
	direction Direction
	counts    map[string]int
}

// NewStaticPositionManager returns a manager with no open positions.
func NewStaticPositionManager() *StaticPositionManager {
	return &StaticPositionManager{direction: DirNeutral, counts: make(map[string]int)}
}

// Direction returns the manager's current directional tag.
func (m *StaticPositionManager) Direction() Direction { return m.direction }

// AllowsBuy reports whether a BUY in symbol is permitted given the
// manager's current direction, per spec §4.4: SHORT direction blocks a
// non-inverse buy, LONG direction blocks an inverse buy.
func (m *StaticPositionManager) AllowsBuy(symbol string) bool {
	switch m.direction {
	case DirShort:
		return IsInverse(symbol)
	case DirLong:
		return !IsInverse(symbol)
	default:
		return true
	}
}

// RecordBuy registers a successful BUY in symbol, setting direction to
// LONG or SHORT as appropriate.
func (m *StaticPositionManager) RecordBuy(symbol string) {
	m.counts[symbol]++
	if IsInverse(symbol) {
		m.direction = DirShort
	} else {
		m.direction = DirLong
	}
}

// RecordSell registers a full SELL of symbol's position, decrementing its
// counter and resetting direction to NEUTRAL once no positions remain.
func (m *StaticPositionManager) RecordSell(symbol string) {
	if m.counts[symbol] > 0 {
		m.counts[symbol]--
	}
	if m.counts[symbol] <= 0 {
		delete(m.counts, symbol)
	}
	if len(m.counts) == 0 {
		m.direction = DirNeutral
	}
}

// Reset rebuilds the manager's direction/counts from a portfolio's current
// non-dust holdings — used when constructing a manager alongside a
// pre-populated State (e.g. resuming a run), rather than trusting a fresh
// NewStaticPositionManager to match State's actual positions.
func (m *StaticPositionManager) Reset(state *State) {
	m.counts = make(map[string]int)
	m.direction = DirNeutral
	for sym, p := range state.Positions {
		q := p.Quantity
		if q < 0 {
			q = -q
		}
		if q < dustThreshold {
			continue
		}
		m.counts[sym] = 1
		if IsInverse(sym) {
			m.direction = DirShort
		} else {
			m.direction = DirLong
		}
	}
}
