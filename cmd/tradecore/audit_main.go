package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/tradecore/internal/audit"
	"github.com/sawpanic/tradecore/internal/tradelog"
)

func runAudit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("tradelog")
	if path == "" {
		return fmt.Errorf("audit: --tradelog is required")
	}

	records, err := tradelog.ReadAll(path)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("audit: %s contains no records", path)
	}

	collector := audit.NewCollector()
	for _, r := range records {
		collector.Record(r.EquityAfter)
	}
	summary := collector.Summarize()

	log.Info().
		Str("tradelog", path).
		Int("bars", summary.Bars).
		Float64("start_equity", summary.StartEquity).
		Float64("end_equity", summary.EndEquity).
		Float64("total_return", summary.TotalReturn).
		Float64("sharpe_ratio", summary.SharpeRatio).
		Float64("max_drawdown", summary.MaxDrawdown).
		Int("max_drawdown_at", summary.MaxDrawdownAt).
		Msg("trade log audit")
	return nil
}
