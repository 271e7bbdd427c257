package portfolio

import (
	"testing"

	"github.com/sawpanic/tradecore/internal/costmodel"
	"github.com/sawpanic/tradecore/internal/psm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteDirect_EmptyStartStrongBuy(t *testing.T) {
	pf := NewState(100_000)
	ex := NewExecutor(costmodel.Alpaca)

	d := ex.ExecuteDirect(pf, "TQQQ", "TQQQ", 100, 0.90, 0.8, 0.60, 0.40)

	require.Equal(t, Buy, d.Action)
	assert.InDelta(t, 800, d.Quantity, 1e-9)
	assert.Equal(t, 0.0, d.Fees)
	assert.InDelta(t, 20_000, pf.CashBalance, 1e-9)
}

func TestExecuteDirect_StrongSellOnExistingLong(t *testing.T) {
	pf := NewState(0)
	pf.Positions["QQQ"] = &Position{Symbol: "QQQ", Quantity: 100, AvgPrice: 50, CurrentPrice: 55}
	pf.Recompute()
	ex := NewExecutor(costmodel.Alpaca)

	d := ex.ExecuteDirect(pf, "QQQ", "QQQ", 55, 0.10, 0.9, 0.60, 0.40)

	require.Equal(t, Sell, d.Action)
	assert.InDelta(t, 500, d.RealizedPnLDelta, 1e-9)
	assert.InDelta(t, 5500, pf.CashBalance, 1e-9)
	_, stillHeld := pf.Positions["QQQ"]
	assert.False(t, stillHeld)
}

func TestExecuteDirect_ConflictRejected(t *testing.T) {
	pf := NewState(10_000)
	pf.Positions["PSQ"] = &Position{Symbol: "PSQ", Quantity: 50, AvgPrice: 20, CurrentPrice: 20}
	pf.Recompute()
	ex := NewExecutor(costmodel.Alpaca)
	ex.Manager.RecordBuy("PSQ")

	d := ex.ExecuteDirect(pf, "QQQ", "QQQ", 100, 0.80, 0.9, 0.60, 0.40)

	assert.Equal(t, Hold, d.Action)
	assert.Equal(t, "Conflict detected", d.RejectionReason)
	assert.False(t, d.ConflictCheckPassed)
}

func TestExecuteDirect_InsufficientCapitalRejected(t *testing.T) {
	pf := NewState(0)
	ex := NewExecutor(costmodel.Alpaca)

	d := ex.ExecuteDirect(pf, "QQQ", "QQQ", 100, 0.80, 0.9, 0.60, 0.40)

	assert.Equal(t, Hold, d.Action)
	assert.Equal(t, "Insufficient capital", d.RejectionReason)
}

func TestExecuteDirect_NeutralZoneHold(t *testing.T) {
	pf := NewState(10_000)
	pf.Positions["QQQ"] = &Position{Symbol: "QQQ", Quantity: 10, AvgPrice: 50, CurrentPrice: 50}
	pf.Recompute()
	before := pf.CashBalance
	ex := NewExecutor(costmodel.Alpaca)

	d := ex.ExecuteDirect(pf, "QQQ", "QQQ", 50, 0.55, 0.9, 0.60, 0.40)

	assert.Equal(t, Hold, d.Action)
	assert.Equal(t, before, pf.CashBalance)
}

func TestExecutePSM_EmergencyLiquidation(t *testing.T) {
	pf := NewState(0)
	pf.Positions["QQQ"] = &Position{Symbol: "QQQ", Quantity: 10, AvgPrice: 50, CurrentPrice: 50}
	pf.Positions["SQQQ"] = &Position{Symbol: "SQQQ", Quantity: 5, AvgPrice: 20, CurrentPrice: 20}
	pf.Recompute()

	engine := psm.NewEngine(0.60, 0.40)
	transition := engine.OptimalTransition(pf.Quantities(), 0.5, psm.MarketConditions{AvailableCapital: 0, NominalCapital: 100_000})
	require.Equal(t, psm.Invalid, transition.CurrentState)
	require.Equal(t, psm.CashOnly, transition.TargetState)

	ex := NewExecutor(costmodel.Alpaca)
	ex.Manager.Reset(pf)

	d1 := ex.ExecutePSM(pf, "QQQ", "QQQ", 50, 0.5, 1.0, transition)
	require.Equal(t, Sell, d1.Action)
	d2 := ex.ExecutePSM(pf, "SQQQ", "SQQQ", 20, 0.5, 1.0, transition)
	require.Equal(t, Sell, d2.Action)

	assert.Len(t, pf.Positions, 0)
}

func TestAccountingIdentity_EquityDeltaMatchesTrade(t *testing.T) {
	pf := NewState(100_000)
	ex := NewExecutor(costmodel.Fixed)

	before := pf.TotalEquity
	d := ex.ExecuteDirect(pf, "TQQQ", "TQQQ", 100, 0.90, 0.8, 0.60, 0.40)
	after := pf.TotalEquity

	// BUY: equity changes only by -fees (cash -> position value 1:1 at the
	// fill price, no unrealized P&L yet since current_price == avg_price).
	assert.InDelta(t, before-d.Fees, after, 1e-6)
}

func TestCashNeverNegative(t *testing.T) {
	pf := NewState(100)
	ex := NewExecutor(costmodel.Fixed)
	d := ex.ExecuteDirect(pf, "QQQ", "QQQ", 1000, 0.99, 0.99, 0.60, 0.40)
	_ = d
	assert.GreaterOrEqual(t, pf.CashBalance, -1e-9)
}
