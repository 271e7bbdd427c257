package signaljsonl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradecore/internal/signal"
)

func TestWriteThenReadAll_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.jsonl")
	w, f, err := Create(path)
	require.NoError(t, err)

	want := []signal.Signal{
		{TimestampMs: 1, BarIndex: 0, Symbol: "QQQ", Probability: 0.6, Confidence: 0.7, StrategyName: "tradecore", StrategyVersion: "1"},
		{TimestampMs: 2, BarIndex: 1, Symbol: "QQQ", Probability: 0.4, Confidence: 0.8, StrategyName: "tradecore", StrategyVersion: "1"},
	}
	for _, s := range want {
		require.NoError(t, w.Append(s))
	}
	require.NoError(t, f.Close())

	got, err := ReadAll(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
