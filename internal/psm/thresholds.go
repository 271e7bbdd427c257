package psm

// stateFactor is the multiplicative (buy, sell) adjustment applied to the
// base thresholds for a given state, per spec §4.3.
type stateFactor struct {
	buy, sell float64
}

func factorFor(s State) stateFactor {
	switch s {
	case QQQTQQQ, PSQSQQQ:
		return stateFactor{0.95, 1.05}
	case TQQQOnly, SQQQOnly:
		return stateFactor{0.90, 1.10}
	case CashOnly:
		return stateFactor{1.05, 0.95}
	case Invalid:
		return stateFactor{0.80, 1.20}
	default: // QQQOnly, PSQOnly
		return stateFactor{1.00, 1.00}
	}
}

// AdjustThresholds transforms base (buy, sell) thresholds for the current
// state, per spec §4.3: scale, then enforce a minimum 0.05 gap by
// centering around the midpoint, then clamp to the spec's valid ranges.
// It is a pure function of its inputs, so two calls with the same
// (baseBuy, baseSell, state) always agree — spec §8's threshold-centering
// idempotence law.
func AdjustThresholds(baseBuy, baseSell float64, state State) (tBuy, tSell float64) {
	f := factorFor(state)
	buy := baseBuy * f.buy
	sell := baseSell * f.sell

	const minGap = 0.05
	if buy-sell < minGap {
		mid := (buy + sell) / 2
		buy = mid + minGap/2
		sell = mid - minGap/2
	}

	buy = clampF(buy, 0.51, 0.90)
	sell = clampF(sell, 0.10, 0.49)
	return buy, sell
}

func clampF(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
