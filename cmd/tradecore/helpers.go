package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	opshttp "github.com/sawpanic/tradecore/internal/interfaces/http"
	"github.com/sawpanic/tradecore/internal/metrics"
	"github.com/sawpanic/tradecore/internal/tradelog"
)

// ensureDir makes dir (and any missing parents) if it doesn't already
// exist.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// createJSONL opens path for append-only writing and wraps it in a
// tradelog.Writer. The caller owns closing the returned file once the run
// completes.
func createJSONL(path string) (*tradelog.Writer, *os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return tradelog.NewWriter(file), file, nil
}

// startMetricsServer parses "host:port" and starts TradeCore's /metrics and
// /healthz server in the background. An empty addr disables it and returns
// a nil registry (Orchestrator.Metrics stays nil). The returned shutdown
// func stops the server; it is a no-op when metrics are disabled.
func startMetricsServer(addr string) (*metrics.Registry, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}

	host, port, err := splitHostPort(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics-addr %q: %w", addr, err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	cfg := opshttp.DefaultServerConfig()
	cfg.Host, cfg.Port = host, port
	srv := opshttp.NewServer(cfg, reg)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("ops server stopped")
		}
	}()

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("ops server shutdown error")
		}
	}
	return m, shutdown, nil
}

// mirrorConnectTimeout bounds how long buildMirror waits for the Postgres
// connection to come up before giving up.
const mirrorConnectTimeout = 5 * time.Second

// buildMirror opens a *tradelog.PostgresMirror against the POSTGRES_DSN
// environment variable, per SPEC_FULL.md §6's side-mirror of the trade
// log. It errors if POSTGRES_DSN is unset or unreachable; callers only
// invoke it once --mirror has actually been passed, so a missing DSN is a
// misconfiguration worth failing loudly on, not a silent no-op.
func buildMirror() (*tradelog.PostgresMirror, func() error, error) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		return nil, nil, fmt.Errorf("--mirror requires POSTGRES_DSN to be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), mirrorConnectTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres mirror: %w", err)
	}
	return tradelog.NewPostgresMirror(db, mirrorConnectTimeout), db.Close, nil
}

func splitHostPort(addr string) (string, int, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return "", 0, fmt.Errorf("expected host:port")
	}
	port, err := strconv.Atoi(addr[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid port: %w", err)
	}
	return addr[:idx], port, nil
}
