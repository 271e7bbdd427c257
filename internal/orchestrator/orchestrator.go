// Package orchestrator drives the per-bar run loop (C10 of SPEC_FULL.md
// §4.6): bar -> indicator update -> mark-to-market and equity recording ->
// signal aggregation -> optional collaborator fold-in -> PSM lookup or
// direct threshold rule -> optional scalper veto -> execution -> trade log
// append, over a windowed block of bars.
// Grounded on the teacher's coordinate-detector-then-apply-adaptation
// orchestrator shape, generalized from a single factor-reweighting step to
// the full signal->PSM->execution chain, and on fatal.Violation's
// documented recovery boundary (spec §7).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/tradecore/internal/bar"
	"github.com/sawpanic/tradecore/internal/collaborator"
	"github.com/sawpanic/tradecore/internal/config"
	"github.com/sawpanic/tradecore/internal/fatal"
	"github.com/sawpanic/tradecore/internal/indicator"
	"github.com/sawpanic/tradecore/internal/metrics"
	"github.com/sawpanic/tradecore/internal/portfolio"
	"github.com/sawpanic/tradecore/internal/psm"
	"github.com/sawpanic/tradecore/internal/scalper"
	"github.com/sawpanic/tradecore/internal/signal"
	"github.com/sawpanic/tradecore/internal/tradelog"
)

// TradeLogAppender is what Orchestrator writes each bar's Decision to.
// *tradelog.Writer satisfies it directly; *tradelog.Sink additionally fans
// each append out to the optional Postgres mirror and hot cache described
// in SPEC_FULL.md §6.
type TradeLogAppender interface {
	Append(r tradelog.Record) error
}

// RunResult summarizes one orchestrator Run: how far it got and, if it
// stopped early, the fatal.Violation that ended it (per spec §7, a run
// terminates on the first fatal violation but its trade log up to that
// point remains durable).
type RunResult struct {
	RunID         string
	BarsProcessed int
	FatalErr      error
}

// Orchestrator wires together one run's components. Bars holds every
// traded symbol's aligned bar series (same index == same point in time);
// DrivingSymbol is the symbol the signal aggregator reads (spec §4.1's
// "primary instrument", e.g. QQQ), with TQQQ/PSQ/SQQQ bars produced by the
// leverage synthesizer (C2) sharing its index space.
type Orchestrator struct {
	Mode          config.Mode
	DrivingSymbol string
	Bars          map[string][]bar.Bar

	Indicators   *indicator.Cache
	Aggregator   *signal.Aggregator
	PSM          *psm.Engine // nil in ModeDirect
	Executor     *portfolio.Executor
	Scalper      *scalper.Overlay
	Collaborator *collaborator.Client // nil disables the external opinion fold-in

	BaseBuyThreshold  float64
	BaseSellThreshold float64

	TradeLog TradeLogAppender
	Audit    interface{ Record(equity float64) }
	Metrics  *metrics.Registry // nil disables stage timing and rejection counters

	// OnBar, if set, is called after each bar with (bars processed so far,
	// total bars in the window) — wired by the CLI to drive a progress
	// indicator when stderr is a terminal.
	OnBar func(current, total int)
}

// timeStage runs fn, recording its duration against stage when metrics are
// enabled; a no-op wrapper when o.Metrics is nil.
func (o *Orchestrator) timeStage(stage string, fn func()) {
	if o.Metrics == nil {
		fn()
		return
	}
	timer := o.Metrics.StartStageTimer(stage)
	fn()
	timer.Stop()
}

// Run processes bars [startIdx, endIdx) of the driving symbol's series
// against pf, generating a fresh run_id. A fatal.Violation panicking out of
// any component is recovered here and reported on RunResult, per spec §7 —
// everything already appended to TradeLog stays on disk.
func (o *Orchestrator) Run(ctx context.Context, pf *portfolio.State, startIdx, endIdx int) (result RunResult) {
	result.RunID = "trade_" + time.Now().UTC().Format("20060102T150405Z") + "_" + uuid.New().String()[:8]

	if o.Metrics != nil {
		o.Metrics.ActiveRuns.Inc()
		defer o.Metrics.ActiveRuns.Dec()
	}

	defer func() {
		if r := recover(); r != nil {
			v, ok := r.(*fatal.Violation)
			if !ok {
				panic(r)
			}
			result.FatalErr = v
		}
	}()

	for i := startIdx; i < endIdx; i++ {
		if err := ctx.Err(); err != nil {
			result.FatalErr = fmt.Errorf("orchestrator: run cancelled at bar %d: %w", i, err)
			return
		}
		o.processBar(ctx, pf, result.RunID, i)
		result.BarsProcessed++
		if o.Metrics != nil {
			o.Metrics.BarsProcessed.Inc()
		}
		if o.OnBar != nil {
			o.OnBar(result.BarsProcessed, endIdx-startIdx)
		}
	}
	return
}

func (o *Orchestrator) processBar(ctx context.Context, pf *portfolio.State, runID string, i int) {
	drivingSeries := o.Bars[o.DrivingSymbol]
	if i >= len(drivingSeries) {
		return
	}
	driving := drivingSeries[i]
	pf.TimestampMs = driving.TimestampMs

	o.timeStage(metrics.StageIndicatorUpdate, func() {
		for sym, series := range o.Bars {
			if i >= len(series) {
				continue
			}
			b := series[i]
			o.Indicators.Update(sym, bar.DayBucket(b.TimestampMs), b.Open, b.High, b.Low, b.Close, b.Volume)
		}
	})

	closes := make(map[string]float64, len(o.Bars))
	for sym, series := range o.Bars {
		if i < len(series) {
			closes[sym] = series[i].Close
		}
	}
	pf.MarkToMarket(closes)
	if o.Audit != nil {
		o.Audit.Record(pf.TotalEquity)
	}

	snap := o.Indicators.Snapshot(o.DrivingSymbol)
	if !o.Aggregator.Warmed(snap) {
		return // data gap / warmup: spec §4.1 neutral silence, no decision this bar
	}

	var sig signal.Signal
	o.timeStage(metrics.StageSignalAggregate, func() {
		sig = o.Aggregator.Aggregate(driving, i, snap)
	})
	probability, confidence := sig.Probability, sig.Confidence

	if o.Collaborator != nil {
		var op collaborator.Opinion
		var err error
		o.timeStage(metrics.StageCollaborator, func() {
			op, err = o.Collaborator.SignalFor(ctx, driving)
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				fatal.Raisef("orchestrator", "collaborator timeout at bar %d: %v", i, err)
			}
			// Any other collaborator failure (breaker open, rate budget,
			// transient error) degrades to the aggregator's own signal —
			// a data gap, not a fatal precondition violation.
		} else {
			probability = (probability + op.Probability) / 2
			if op.Confidence > confidence {
				confidence = op.Confidence
			}
		}
	}

	if o.Mode == config.ModePSM {
		o.runPSM(pf, runID, i, driving, probability, confidence)
		return
	}
	o.runDirect(pf, runID, i, driving, probability, confidence)
}

func (o *Orchestrator) runDirect(pf *portfolio.State, runID string, barIndex int, driving bar.Bar, probability, confidence float64) {
	tBuy, tSell := o.BaseBuyThreshold, o.BaseSellThreshold

	if o.Scalper != nil && o.Scalper.Enabled {
		snap := o.Indicators.Snapshot(driving.Symbol)
		if probability > tBuy && o.Scalper.VetoBuy(driving.Close, snap) {
			probability = tBuy
		}
		if probability < tSell && o.Scalper.VetoSell(driving.Close, snap) {
			probability = tSell
		}
	}

	var d portfolio.Decision
	o.timeStage(metrics.StageExecute, func() {
		d = o.Executor.ExecuteDirect(pf, driving.Symbol, driving.Symbol, driving.Close, probability, confidence, tBuy, tSell)
	})
	o.writeDecision(runID, barIndex, d)
}

func (o *Orchestrator) runPSM(pf *portfolio.State, runID string, barIndex int, driving bar.Bar, probability, confidence float64) {
	market := psm.MarketConditions{AvailableCapital: pf.CashBalance, NominalCapital: psm.DefaultNominalCapital}
	transition := o.PSM.OptimalTransition(pf.Quantities(), probability, market)

	fromSet := psm.SymbolsFor(transition.CurrentState)
	if transition.CurrentState == psm.Invalid {
		// Emergency liquidation: every held symbol is an exit.
		for sym := range pf.Positions {
			fromSet[sym] = true
		}
	}
	toSet := psm.SymbolsFor(transition.TargetState)

	touchedSet := make(map[string]bool, 4)
	for sym := range fromSet {
		touchedSet[sym] = true
	}
	for sym := range toSet {
		touchedSet[sym] = true
	}

	// Iterating a map gives nondeterministic order; sort sells before buys
	// (holds in between), then by symbol name, so the trade log is
	// reproducible run-to-run for the same inputs.
	touched := make([]string, 0, len(touchedSet))
	for sym := range touchedSet {
		touched = append(touched, sym)
	}
	sort.Slice(touched, func(i, j int) bool {
		ri, rj := psmActionRank(fromSet, toSet, touched[i]), psmActionRank(fromSet, toSet, touched[j])
		if ri != rj {
			return ri < rj
		}
		return touched[i] < touched[j]
	})

	for _, sym := range touched {
		series, ok := o.Bars[sym]
		if !ok || barIndex >= len(series) {
			continue
		}
		price := series[barIndex].Close

		wouldBuy := !fromSet[sym] && toSet[sym]
		if wouldBuy && o.Scalper != nil && o.Scalper.Enabled {
			snap := o.Indicators.Snapshot(sym)
			if o.Scalper.VetoBuy(price, snap) {
				d := o.Executor.ForceHold(pf, sym, price, probability, confidence, "Scalper overlay vetoed entry")
				o.writeDecision(runID, barIndex, d)
				continue
			}
		}

		var d portfolio.Decision
		o.timeStage(metrics.StageExecute, func() {
			d = o.Executor.ExecutePSM(pf, sym, sym, price, probability, confidence, transition)
		})
		o.writeDecision(runID, barIndex, d)
	}
}

// psmActionRank orders a touched symbol's transition-processing position:
// exits first, then holds, then entries, so the trade log's within-bar
// ordering matches a deterministic "sells before buys" convention rather
// than map iteration order.
func psmActionRank(fromSet, toSet map[string]bool, sym string) int {
	switch {
	case fromSet[sym] && !toSet[sym]:
		return 0 // pure sell
	case fromSet[sym] && toSet[sym]:
		return 1 // held, no trade
	default:
		return 2 // pure buy
	}
}

func (o *Orchestrator) writeDecision(runID string, barIndex int, d portfolio.Decision) {
	if o.Metrics != nil && d.RejectionReason != "" {
		o.Metrics.RecordRejection(d.RejectionReason)
	}
	if o.TradeLog == nil {
		return
	}
	o.timeStage(metrics.StageTradeLogWrite, func() {
		rec := tradelog.FromDecision(runID, barIndex, d)
		if err := o.TradeLog.Append(rec); err != nil {
			fatal.Raisef("orchestrator", "trade log append failed at bar %d: %v", barIndex, err)
		}
	})
}
