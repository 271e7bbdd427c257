package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_StageTimerRecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	timer := m.StartStageTimer(StageSignalAggregate)
	timer.Stop()

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range metricFamilies {
		if mf.GetName() != "tradecore_stage_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "stage" && label.GetValue() == StageSignalAggregate {
					found = true
					assert.Equal(t, uint64(1), metric.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	assert.True(t, found, "expected a stage_duration sample labeled %q", StageSignalAggregate)
}

func TestRegistry_RecordRejectionIncrementsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.RecordRejection("conflict")
	m.RecordRejection("conflict")
	m.RecordRejection("insufficient_cash")

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, mf := range metricFamilies {
		if mf.GetName() != "tradecore_rejections_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "reason" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(2), counts["conflict"])
	assert.Equal(t, float64(1), counts["insufficient_cash"])
}

func TestRegistry_ActiveRunsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)

	m.ActiveRuns.Inc()
	m.ActiveRuns.Inc()
	m.ActiveRuns.Dec()

	var gauge dto.Metric
	require.NoError(t, m.ActiveRuns.Write(&gauge))
	assert.Equal(t, float64(1), gauge.GetGauge().GetValue())
}

func TestHandler_ServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRegistry(reg)
	m.BarsProcessed.Add(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "tradecore_bars_processed_total 3")
}
