// Command tradecore is TradeCore's CLI entry point: strattest (backtest),
// trade (windowed live-style run against a persisted portfolio), and audit
// (summarize an existing trade log). Grounded on cmd/cryptorun/main.go's
// cobra root command plus zerolog console-writer init, narrowed from that
// menu-first multi-domain CLI down to TradeCore's three subcommands.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "TradeCore"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "tradecore",
		Short:   "Leveraged-ETF signal, PSM, and execution pipeline",
		Version: version,
		Long: `TradeCore fuses per-bar technical signals, runs them through a
position state machine, and executes trades across QQQ/TQQQ/PSQ/SQQQ with
pluggable cost models.`,
	}

	strattestCmd := &cobra.Command{
		Use:   "strattest",
		Short: "Replay historical bars through the full pipeline",
		Long:  "Loads bars from CSV, runs the configured mode (direct or PSM) end to end, and writes a trade log plus an audit summary",
		RunE:  runStrattest,
	}
	strattestCmd.Flags().String("config", "", "path to run config YAML (optional, defaults used if omitted)")
	strattestCmd.Flags().String("bars", "", "path to the driving symbol's OHLCV CSV (required)")
	strattestCmd.Flags().String("symbol", "QQQ", "driving symbol")
	strattestCmd.Flags().String("out", "out/tradecore", "output directory for the trade log")
	strattestCmd.Flags().String("metrics-addr", "", "host:port to serve /metrics and /healthz on (disabled if empty)")

	tradeCmd := &cobra.Command{
		Use:   "trade",
		Short: "Run one windowed block against a persisted portfolio",
		Long:  "Loads bars, resumes (or starts) a portfolio, processes one block_size window, and persists the resulting portfolio state",
		RunE:  runTrade,
	}
	tradeCmd.Flags().String("config", "", "path to run config YAML (optional, defaults used if omitted)")
	tradeCmd.Flags().String("bars", "", "path to the driving symbol's OHLCV CSV (required)")
	tradeCmd.Flags().String("symbol", "QQQ", "driving symbol")
	tradeCmd.Flags().String("out", "out/tradecore", "output directory for the trade log and portfolio checkpoint")
	tradeCmd.Flags().Int("start-bar", 0, "first bar index of this window")
	tradeCmd.Flags().String("metrics-addr", "", "host:port to serve /metrics and /healthz on (disabled if empty)")
	tradeCmd.Flags().Bool("mirror", false, "mirror each trade record to Postgres (POSTGRES_DSN) and a hot read cache (REDIS_ADDR, optional)")

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Summarize an existing trade log's Sharpe ratio and drawdown",
		Long:  "Reads a trade log JSONL file and reports Sharpe ratio and maximum drawdown over its equity_after series",
		RunE:  runAudit,
	}
	auditCmd.Flags().String("tradelog", "", "path to a trade log JSONL file (required)")

	rootCmd.AddCommand(strattestCmd)
	rootCmd.AddCommand(tradeCmd)
	rootCmd.AddCommand(auditCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
