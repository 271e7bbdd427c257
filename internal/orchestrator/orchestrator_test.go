package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradecore/internal/audit"
	"github.com/sawpanic/tradecore/internal/bar"
	"github.com/sawpanic/tradecore/internal/config"
	"github.com/sawpanic/tradecore/internal/costmodel"
	"github.com/sawpanic/tradecore/internal/indicator"
	"github.com/sawpanic/tradecore/internal/portfolio"
	"github.com/sawpanic/tradecore/internal/psm"
	"github.com/sawpanic/tradecore/internal/signal"
	"github.com/sawpanic/tradecore/internal/tradelog"
)

func trendingBars(symbol string, n int) []bar.Bar {
	bars := make([]bar.Bar, n)
	price := 100.0
	for i := 0; i < n; i++ {
		price += 0.5
		bars[i] = bar.Bar{
			TimestampMs: int64(i) * 60_000,
			Symbol:      symbol,
			Open:        price - 0.25,
			High:        price + 0.5,
			Low:         price - 0.5,
			Close:       price,
			Volume:      1_000_000,
		}
	}
	return bars
}

func TestRun_DirectMode_ProcessesAllBars(t *testing.T) {
	bars := trendingBars("QQQ", 40)
	var buf bytes.Buffer

	o := &Orchestrator{
		Mode:              config.ModeDirect,
		DrivingSymbol:     "QQQ",
		Bars:              map[string][]bar.Bar{"QQQ": bars},
		Indicators:        indicator.NewCache(),
		Aggregator:        signal.NewAggregator(signal.DefaultConfig(), "tradecore", "1"),
		Executor:          portfolio.NewExecutor(costmodel.Zero),
		BaseBuyThreshold:  0.55,
		BaseSellThreshold: 0.45,
		TradeLog:          tradelog.NewWriter(&buf),
		Audit:             audit.NewCollector(),
	}

	pf := portfolio.NewState(100_000)
	result := o.Run(context.Background(), pf, 0, len(bars))

	require.NoError(t, result.FatalErr)
	assert.Equal(t, len(bars), result.BarsProcessed)
	assert.NotEmpty(t, result.RunID)
}

func TestRun_PSMMode_ProcessesAllBars(t *testing.T) {
	qqq := trendingBars("QQQ", 40)
	tqqq := trendingBars("TQQQ", 40)
	var buf bytes.Buffer

	o := &Orchestrator{
		Mode:          config.ModePSM,
		DrivingSymbol: "QQQ",
		Bars:          map[string][]bar.Bar{"QQQ": qqq, "TQQQ": tqqq},
		Indicators:    indicator.NewCache(),
		Aggregator:    signal.NewAggregator(signal.DefaultConfig(), "tradecore", "1"),
		PSM:           psm.NewEngine(0.55, 0.45),
		Executor:      portfolio.NewExecutor(costmodel.Zero),
		TradeLog:      tradelog.NewWriter(&buf),
		Audit:         audit.NewCollector(),
	}

	pf := portfolio.NewState(100_000)
	result := o.Run(context.Background(), pf, 0, len(qqq))

	require.NoError(t, result.FatalErr)
	assert.Equal(t, len(qqq), result.BarsProcessed)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("simulated disk failure")
}

func TestRun_TradeLogFailureIsFatalButPriorBarsStillProcessed(t *testing.T) {
	bars := trendingBars("QQQ", 40)

	o := &Orchestrator{
		Mode:              config.ModeDirect,
		DrivingSymbol:     "QQQ",
		Bars:              map[string][]bar.Bar{"QQQ": bars},
		Indicators:        indicator.NewCache(),
		Aggregator:        signal.NewAggregator(signal.DefaultConfig(), "tradecore", "1"),
		Executor:          portfolio.NewExecutor(costmodel.Zero),
		BaseBuyThreshold:  0.55,
		BaseSellThreshold: 0.45,
		TradeLog:          tradelog.NewWriter(failingWriter{}),
	}

	pf := portfolio.NewState(100_000)
	result := o.Run(context.Background(), pf, 0, len(bars))

	require.Error(t, result.FatalErr)
	assert.Less(t, result.BarsProcessed, len(bars))
}

// recordingAppender captures the Symbol of every appended Record, in call
// order, so tests can assert on the touched-symbol processing order
// without depending on JSONL formatting.
type recordingAppender struct {
	symbols []string
}

func (a *recordingAppender) Append(r tradelog.Record) error {
	a.symbols = append(a.symbols, r.Symbol)
	return nil
}

func TestPSMActionRank_SellsBeforeHoldsBeforeBuys(t *testing.T) {
	fromSet := map[string]bool{"TQQQ": true, "SQQQ": true}
	toSet := map[string]bool{"QQQ": true, "PSQ": true, "SQQQ": true}

	assert.Equal(t, 0, psmActionRank(fromSet, toSet, "TQQQ"), "TQQQ leaves the book: a sell")
	assert.Equal(t, 1, psmActionRank(fromSet, toSet, "SQQQ"), "SQQQ stays in both sets: a hold")
	assert.Equal(t, 2, psmActionRank(fromSet, toSet, "QQQ"), "QQQ newly entered: a buy")
	assert.Equal(t, 2, psmActionRank(fromSet, toSet, "PSQ"), "PSQ newly entered: a buy")
}

func TestRunPSM_TouchedSymbolOrderIsDeterministicAcrossRuns(t *testing.T) {
	qqq := trendingBars("QQQ", 10)
	tqqq := trendingBars("TQQQ", 10)
	sqqq := trendingBars("SQQQ", 10)
	psq := trendingBars("PSQ", 10)

	buildAndRun := func() []string {
		appender := &recordingAppender{}
		o := &Orchestrator{
			Mode:          config.ModePSM,
			DrivingSymbol: "QQQ",
			Bars: map[string][]bar.Bar{
				"QQQ": qqq, "TQQQ": tqqq, "SQQQ": sqqq, "PSQ": psq,
			},
			Indicators: indicator.NewCache(),
			Aggregator: signal.NewAggregator(signal.DefaultConfig(), "tradecore", "1"),
			PSM:        psm.NewEngine(0.55, 0.45),
			Executor:   portfolio.NewExecutor(costmodel.Zero),
			TradeLog:   appender,
			Audit:      audit.NewCollector(),
		}
		pf := portfolio.NewState(100_000)
		o.Run(context.Background(), pf, 0, len(qqq))
		return appender.symbols
	}

	first := buildAndRun()
	second := buildAndRun()

	require.Equal(t, first, second, "same inputs must produce the same per-bar symbol processing order every run")
}
