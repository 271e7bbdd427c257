// Package costmodel implements the portfolio executor's pluggable fee
// models (spec §4.4). Grounded on the teacher's named, swappable strategy
// config idiom (provider configs keyed by name), generalized to a fee
// model keyed by a fixed enum of model names.
package costmodel

import (
	"fmt"
	"math"

	"github.com/sawpanic/tradecore/internal/fatal"
)

// Model names the pluggable cost model, per spec §4.4's table.
type Model string

const (
	Zero       Model = "ZERO"
	Fixed      Model = "FIXED"
	Percentage Model = "PERCENTAGE"
	Alpaca     Model = "ALPACA"
)

// fixedFee is the flat per-trade fee under the FIXED model.
const fixedFee = 1.0

// percentageRate is the proportional fee under the PERCENTAGE model.
const percentageRate = 0.001

// Fee computes the fee for a trade of the given value under model. A
// non-finite tradeValue or an unrecognized model is a precondition
// violation — it is fatal, not a business rejection, per spec §7.
func Fee(model Model, tradeValue float64) float64 {
	if math.IsNaN(tradeValue) || math.IsInf(tradeValue, 0) {
		fatal.Raisef("costmodel", "non-finite trade value %v", tradeValue)
	}
	switch model {
	case Zero, Alpaca:
		return 0
	case Fixed:
		return fixedFee
	case Percentage:
		return percentageRate * tradeValue
	default:
		fatal.Raise("costmodel", fmt.Sprintf("unknown cost model %q", model))
		return 0 // unreachable
	}
}
