// Package http serves TradeCore's read-only ops surface: /metrics
// (Prometheus scrape) and /healthz, on a loopback port, separate from the
// core decision pipeline. Grounded on the teacher's mux.Router/graceful-
// shutdown server shape, narrowed down from a larger candidates/explain/
// regime API to the two endpoints SPEC_FULL.md §6 actually calls for.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/tradecore/internal/metrics"
)

// ServerConfig holds the ops server's bind address and timeouts.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig binds to loopback-only on :9090 by default.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "127.0.0.1",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is TradeCore's read-only metrics/health endpoint.
type Server struct {
	server *http.Server
	config ServerConfig
}

// NewServer wires /metrics and /healthz against reg.
func NewServer(config ServerConfig, reg *prometheus.Registry) *Server {
	router := mux.NewRouter()
	router.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)
	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	return &Server{
		config: config,
		server: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

// Start runs the server until Shutdown is called or it fails to bind.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting ops server")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Address returns the configured bind address.
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
