// Package metrics exposes TradeCore's per-stage duration and rejection
// counters as Prometheus collectors (C10/C11's ops surface, SPEC_FULL.md
// §6). Grounded on the teacher's MetricsRegistry/StepTimer idiom, narrowed
// from a cache/regime/websocket gauge set down to the stages TradeCore's
// orchestrator actually runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stage names passed to StartStageTimer, matching the orchestrator's
// per-bar pipeline steps.
const (
	StageIndicatorUpdate = "indicator_update"
	StageSignalAggregate = "signal_aggregate"
	StageCollaborator    = "collaborator"
	StageExecute         = "execute"
	StageTradeLogWrite   = "tradelog_write"
)

// Registry holds every Prometheus collector TradeCore registers.
type Registry struct {
	StageDuration *prometheus.HistogramVec
	BarsProcessed prometheus.Counter
	Rejections    *prometheus.CounterVec
	ActiveRuns    prometheus.Gauge
}

// NewRegistry builds and registers TradeCore's metrics against reg.
// Callers should pass a fresh prometheus.NewRegistry() per process (or per
// test) rather than the global DefaultRegisterer, to avoid
// duplicate-registration panics across repeated test runs.
func NewRegistry(reg *prometheus.Registry) *Registry {
	m := &Registry{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradecore_stage_duration_seconds",
				Help:    "Duration of each per-bar pipeline stage in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		BarsProcessed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecore_bars_processed_total",
				Help: "Total number of bars processed across all runs",
			},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_rejections_total",
				Help: "Total number of rejected trade attempts by reason",
			},
			[]string{"reason"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecore_active_runs",
				Help: "Number of orchestrator runs currently in progress",
			},
		),
	}

	reg.MustRegister(m.StageDuration, m.BarsProcessed, m.Rejections, m.ActiveRuns)
	return m
}

// StageTimer measures one stage's duration and records it on Stop.
type StageTimer struct {
	m     *Registry
	stage string
	start time.Time
}

// StartStageTimer begins timing stage.
func (m *Registry) StartStageTimer(stage string) *StageTimer {
	return &StageTimer{m: m, stage: stage, start: time.Now()}
}

// Stop records the elapsed duration since StartStageTimer.
func (t *StageTimer) Stop() {
	t.m.StageDuration.WithLabelValues(t.stage).Observe(time.Since(t.start).Seconds())
}

// RecordRejection increments the rejection counter for reason.
func (m *Registry) RecordRejection(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}

// Handler returns the Prometheus scrape endpoint for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
