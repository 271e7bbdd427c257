package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/tradecore/internal/audit"
	"github.com/sawpanic/tradecore/internal/bar"
	"github.com/sawpanic/tradecore/internal/config"
	"github.com/sawpanic/tradecore/internal/indicator"
	"github.com/sawpanic/tradecore/internal/io/csvbars"
	"github.com/sawpanic/tradecore/internal/leverage"
	progresslog "github.com/sawpanic/tradecore/internal/log"
	"github.com/sawpanic/tradecore/internal/orchestrator"
	"github.com/sawpanic/tradecore/internal/portfolio"
	"github.com/sawpanic/tradecore/internal/psm"
	"github.com/sawpanic/tradecore/internal/scalper"
	"github.com/sawpanic/tradecore/internal/signal"
	"github.com/sawpanic/tradecore/internal/tradelog"
)

// buildRun assembles the shared pieces of the strattest/trade pipelines:
// config, the driving symbol's bars plus its leverage-synthesized
// companions, and a wired Orchestrator. The two commands differ only in
// how they choose the [startBar,endBar) window and what they do with pf
// afterward.
type runAssembly struct {
	orchestrator *orchestrator.Orchestrator
	cfg          config.Config
	bars         map[string][]bar.Bar
	auditC       *audit.Collector
	writer       *tradelog.Writer // the orchestrator's primary JSONL sink, exposed so callers may wrap it in a tradelog.Sink
	closeFn      func() error
}

func buildRun(cfgPath, barsPath, drivingSymbol, outDir string) (*runAssembly, error) {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	drivingBars, rowErrs, err := csvbars.LoadFile(barsPath, drivingSymbol)
	if err != nil {
		return nil, fmt.Errorf("load bars: %w", err)
	}
	for _, e := range rowErrs {
		log.Warn().Err(e).Str("file", barsPath).Msg("skipped malformed bar row")
	}

	allBars := map[string][]bar.Bar{drivingSymbol: drivingBars}
	registry := leverage.NewRegistry()
	for _, sym := range []string{"TQQQ", "PSQ", "SQQQ"} {
		spec, ok := registry.Spec(sym)
		if !ok || spec.BaseSymbol != drivingSymbol {
			continue
		}
		synthesized, err := leverage.Generate(drivingBars, spec)
		if err != nil {
			return nil, fmt.Errorf("synthesize %s: %w", sym, err)
		}
		allBars[sym] = synthesized
	}

	if err := ensureDir(outDir); err != nil {
		return nil, err
	}
	tradeLogPath := filepath.Join(outDir, "trades.jsonl")
	writer, file, err := createJSONL(tradeLogPath)
	if err != nil {
		return nil, err
	}

	overlay := scalper.NewOverlay()
	if cfg.Scalper.Enabled {
		overlay.Enable(cfg.Scalper.FastSMA, cfg.Scalper.MinEdgeP)
	}

	var psmEngine *psm.Engine
	if cfg.Mode == config.ModePSM {
		psmEngine = psm.NewEngine(cfg.BaseBuyThreshold, cfg.BaseSellThreshold)
	}

	auditC := audit.NewCollector()

	o := &orchestrator.Orchestrator{
		Mode:              cfg.Mode,
		DrivingSymbol:     drivingSymbol,
		Bars:              allBars,
		Indicators:        indicator.NewCache(),
		Aggregator:        signal.NewAggregator(signal.Config{Weights: cfg.Weights, Sharpness: cfg.Sharpness, WarmupBars: cfg.WarmupBars}, appName, version),
		PSM:               psmEngine,
		Executor:          portfolio.NewExecutor(cfg.CostModel),
		Scalper:           overlay,
		BaseBuyThreshold:  cfg.BaseBuyThreshold,
		BaseSellThreshold: cfg.BaseSellThreshold,
		TradeLog:          writer,
		Audit:             auditC,
	}

	return &runAssembly{orchestrator: o, cfg: cfg, bars: allBars, auditC: auditC, writer: writer, closeFn: file.Close}, nil
}

func runStrattest(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	barsPath, _ := cmd.Flags().GetString("bars")
	symbol, _ := cmd.Flags().GetString("symbol")
	outDir, _ := cmd.Flags().GetString("out")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	if barsPath == "" {
		return fmt.Errorf("strattest: --bars is required")
	}

	ra, err := buildRun(cfgPath, barsPath, symbol, outDir)
	if err != nil {
		return err
	}
	defer ra.closeFn()

	metricsReg, stopMetrics, err := startMetricsServer(metricsAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()
	ra.orchestrator.Metrics = metricsReg

	pf := portfolio.NewState(ra.cfg.StartingCash)
	ctx := context.Background()

	total := len(ra.bars[symbol])
	if term.IsTerminal(int(os.Stderr.Fd())) {
		progress := progresslog.NewProgressIndicator("strattest", total, progresslog.DefaultProgressConfig())
		ra.orchestrator.OnBar = func(current, _ int) { progress.Update(current) }
		defer progress.Finish()
	}

	result := ra.orchestrator.Run(ctx, pf, 0, total)
	if result.FatalErr != nil {
		return fmt.Errorf("strattest: run %s stopped at bar %d: %w", result.RunID, result.BarsProcessed, result.FatalErr)
	}

	summary := ra.auditC.Summarize()

	log.Info().
		Str("run_id", result.RunID).
		Int("bars_processed", result.BarsProcessed).
		Float64("end_equity", pf.TotalEquity).
		Float64("total_return", summary.TotalReturn).
		Float64("sharpe_ratio", summary.SharpeRatio).
		Float64("max_drawdown", summary.MaxDrawdown).
		Msg("strattest run completed")
	return nil
}
