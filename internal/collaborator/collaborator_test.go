package collaborator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/tradecore/internal/bar"
)

func TestSignalFor_HappyPath(t *testing.T) {
	fetch := func(ctx context.Context, b bar.Bar) (Opinion, error) {
		return Opinion{Probability: 0.7, Confidence: 0.8, Source: "ml-v1"}, nil
	}
	c := NewClient(fetch, DefaultConfig("test"))

	op, err := c.SignalFor(context.Background(), bar.Bar{Symbol: "QQQ", Close: 100, High: 100, Low: 100, Open: 100})
	require.NoError(t, err)
	assert.Equal(t, 0.7, op.Probability)
}

func TestSignalFor_TripsBreakerAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, b bar.Bar) (Opinion, error) {
		calls++
		return Opinion{}, errors.New("boom")
	}
	cfg := DefaultConfig("test")
	cfg.ConsecutiveFailures = 2
	c := NewClient(fetch, cfg)

	b := bar.Bar{Symbol: "QQQ", Close: 100, High: 100, Low: 100, Open: 100}
	_, err1 := c.SignalFor(context.Background(), b)
	_, err2 := c.SignalFor(context.Background(), b)
	_, err3 := c.SignalFor(context.Background(), b)

	require.Error(t, err1)
	require.Error(t, err2)
	require.Error(t, err3)
	assert.Equal(t, 2, calls) // third call short-circuited by the open breaker
}
