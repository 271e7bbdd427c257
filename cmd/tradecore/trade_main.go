package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	progresslog "github.com/sawpanic/tradecore/internal/log"
	"github.com/sawpanic/tradecore/internal/portfolio"
	"github.com/sawpanic/tradecore/internal/tradelog"
)

// checkpointPath returns where a run's portfolio state is persisted between
// windowed trade invocations.
func checkpointPath(outDir string) string {
	return filepath.Join(outDir, "portfolio.json")
}

// loadOrInitPortfolio resumes a persisted portfolio from outDir, or starts a
// fresh all-cash one at startingCash if no checkpoint exists yet.
func loadOrInitPortfolio(outDir string, startingCash float64) (*portfolio.State, error) {
	raw, err := os.ReadFile(checkpointPath(outDir))
	if os.IsNotExist(err) {
		return portfolio.NewState(startingCash), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read portfolio checkpoint: %w", err)
	}
	var pf portfolio.State
	if err := json.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("decode portfolio checkpoint: %w", err)
	}
	return &pf, nil
}

// savePortfolio persists pf to outDir so the next trade invocation resumes
// from it.
func savePortfolio(outDir string, pf *portfolio.State) error {
	raw, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return fmt.Errorf("encode portfolio checkpoint: %w", err)
	}
	tmp := checkpointPath(outDir) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write portfolio checkpoint: %w", err)
	}
	return os.Rename(tmp, checkpointPath(outDir))
}

func runTrade(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	barsPath, _ := cmd.Flags().GetString("bars")
	symbol, _ := cmd.Flags().GetString("symbol")
	outDir, _ := cmd.Flags().GetString("out")
	startBar, _ := cmd.Flags().GetInt("start-bar")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	mirror, _ := cmd.Flags().GetBool("mirror")

	if barsPath == "" {
		return fmt.Errorf("trade: --bars is required")
	}

	ra, err := buildRun(cfgPath, barsPath, symbol, outDir)
	if err != nil {
		return err
	}
	defer ra.closeFn()

	if mirror {
		pgMirror, closeMirror, err := buildMirror()
		if err != nil {
			return fmt.Errorf("trade: %w", err)
		}
		defer func() {
			if closeErr := closeMirror(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("failed to close postgres mirror connection")
			}
		}()
		ra.orchestrator.TradeLog = &tradelog.Sink{
			Writer:   ra.writer,
			Mirror:   pgMirror,
			HotCache: tradelog.NewHotCacheAuto(),
		}
	}

	metricsReg, stopMetrics, err := startMetricsServer(metricsAddr)
	if err != nil {
		return err
	}
	defer stopMetrics()
	ra.orchestrator.Metrics = metricsReg

	pf, err := loadOrInitPortfolio(outDir, ra.cfg.StartingCash)
	if err != nil {
		return err
	}
	ra.orchestrator.Executor.Manager.Reset(pf)

	total := len(ra.bars[symbol])
	if startBar >= total {
		return fmt.Errorf("trade: start-bar %d is past the last available bar %d", startBar, total-1)
	}
	endBar := startBar + ra.cfg.BlockSize
	if endBar > total {
		endBar = total
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		progress := progresslog.NewProgressIndicator("trade", endBar-startBar, progresslog.DefaultProgressConfig())
		ra.orchestrator.OnBar = func(current, _ int) { progress.Update(current) }
		defer progress.Finish()
	}

	ctx := context.Background()
	result := ra.orchestrator.Run(ctx, pf, startBar, endBar)

	if saveErr := savePortfolio(outDir, pf); saveErr != nil {
		log.Error().Err(saveErr).Msg("failed to persist portfolio checkpoint")
	}

	if result.FatalErr != nil {
		return fmt.Errorf("trade: run %s stopped at bar %d: %w", result.RunID, startBar+result.BarsProcessed, result.FatalErr)
	}

	summary := ra.auditC.Summarize()
	log.Info().
		Str("run_id", result.RunID).
		Int("window_start", startBar).
		Int("window_end", endBar).
		Int("bars_processed", result.BarsProcessed).
		Float64("end_equity", pf.TotalEquity).
		Float64("sharpe_ratio", summary.SharpeRatio).
		Float64("max_drawdown", summary.MaxDrawdown).
		Msg("trade window completed")
	return nil
}
