package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_EmptyCurve(t *testing.T) {
	c := NewCollector()
	s := c.Summarize()
	assert.Equal(t, 0, s.Bars)
	assert.Equal(t, 0.0, s.SharpeRatio)
}

func TestSummarize_MonotonicGain_NoDrawdown(t *testing.T) {
	c := NewCollector()
	for _, e := range []float64{100_000, 101_000, 102_000, 103_000} {
		c.Record(e)
	}
	s := c.Summarize()
	assert.Equal(t, 4, s.Bars)
	assert.InDelta(t, 0.03, s.TotalReturn, 1e-9)
	assert.Equal(t, 0.0, s.MaxDrawdown)
	assert.Greater(t, s.SharpeRatio, 0.0)
}

func TestSummarize_DrawdownDetected(t *testing.T) {
	c := NewCollector()
	for _, e := range []float64{100_000, 110_000, 90_000, 95_000} {
		c.Record(e)
	}
	s := c.Summarize()
	assert.InDelta(t, (110_000.0-90_000.0)/110_000.0, s.MaxDrawdown, 1e-9)
	assert.Equal(t, 2, s.MaxDrawdownAt)
}

func TestSummarize_ConstantEquity_ZeroSharpe(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 5; i++ {
		c.Record(100_000)
	}
	s := c.Summarize()
	assert.Equal(t, 0.0, s.SharpeRatio)
	assert.Equal(t, 0.0, s.MaxDrawdown)
}
