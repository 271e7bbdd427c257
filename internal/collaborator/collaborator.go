// Package collaborator wraps the external ML signal provider (spec §5/§6):
// a context-bounded call behind a circuit breaker and a per-run call-budget
// limiter. Grounded on the teacher's gobreaker circuit-breaker wiring and
// golang.org/x/time/rate token-bucket budget idiom for per-provider API
// access, narrowed from a multi-provider manager to the single collaborator
// endpoint spec §5 describes.
package collaborator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/tradecore/internal/bar"
)

// CallTimeout is the fixed per-call deadline spec §5 assigns the
// collaborator boundary; a call exceeding it is a fatal collaborator
// timeout, per spec §7.
const CallTimeout = 10 * time.Second

// Opinion is the collaborator's contribution for one bar: an extra
// probability/confidence pair the aggregator may fold in alongside its own
// detectors, per spec §6.
type Opinion struct {
	Probability float64
	Confidence  float64
	Source      string
}

// Fetcher is the external call the collaborator wraps. Implementations
// must respect ctx's deadline.
type Fetcher func(ctx context.Context, b bar.Bar) (Opinion, error)

// Client guards a Fetcher with a circuit breaker and a requests-per-second
// budget, per spec §5's "only independent runs and pure detector
// evaluation may run concurrently; the collaborator call is a blocking
// boundary."
type Client struct {
	fetch   Fetcher
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// Config tunes the breaker and budget around a Fetcher.
type Config struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	RequestsPerSecond   float64
	Burst               int
}

// DefaultConfig returns spec §5's collaborator defaults: a breaker that
// trips after 3 consecutive failures and a 1 req/s budget with burst 2.
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxRequests:         1,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 3,
		RequestsPerSecond:   1,
		Burst:               2,
	}
}

// NewClient builds a Client around fetch using cfg's breaker/budget
// settings.
func NewClient(fetch Fetcher, cfg Config) *Client {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("collaborator", name).Str("from", from.String()).Str("to", to.String()).Msg("collaborator circuit state change")
		},
	}
	return &Client{
		fetch:   fetch,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// SignalFor calls the wrapped Fetcher within CallTimeout, subject to the
// rate budget and circuit breaker. An exhausted budget blocks until a token
// frees up, returning an error without invoking the Fetcher only if ctx ends
// (or its deadline would pass) first. A breaker-open call returns an error
// at once without invoking the Fetcher, so a misbehaving collaborator
// cannot stall every later bar; the orchestrator
// treats a returned error as spec §7's "collaborator timeout" fatal case
// only when it is a context deadline, and as a neutral data gap otherwise.
func (c *Client) SignalFor(ctx context.Context, b bar.Bar) (Opinion, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Opinion{}, fmt.Errorf("collaborator: rate budget wait: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(callCtx, b)
	})
	if err != nil {
		return Opinion{}, fmt.Errorf("collaborator: %w", err)
	}
	return result.(Opinion), nil
}
