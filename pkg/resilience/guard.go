// Package resilience bounds calls to slow or failing dependencies with a
// timeout and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"time"

	"kazichain-ussd/pkg/logging"
	"kazichain-ussd/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	ErrCircuitOpen = errors.New("resilience: circuit breaker open")
	ErrTimeout     = errors.New("resilience: operation timeout")
)

// Guard runs calls to one dependency through a circuit breaker and timeout.
type Guard struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	ignore  func(error) bool
	metrics metrics.Collector
	logger  *logging.Logger
}

// NewGuard creates a guard named after the dependency it protects.
func NewGuard(name string, config Config, collector metrics.Collector) *Guard {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	logger := logging.Global().Named("resilience").Named(name)

	g := &Guard{
		name:    name,
		timeout: config.Timeout,
		ignore:  config.Ignore,
		metrics: collector,
		logger:  logger,
	}

	cbc := config.CircuitBreakerConfig
	g.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cbc.MaxRequests,
		Interval:    cbc.Interval,
		Timeout:     cbc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cbc.ReadyToTrip != nil {
				return cbc.ReadyToTrip(Counts{
					Requests:             counts.Requests,
					TotalSuccesses:       counts.TotalSuccesses,
					TotalFailures:        counts.TotalFailures,
					ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
					ConsecutiveFailures:  counts.ConsecutiveFailures,
				})
			}
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || (g.ignore != nil && g.ignore(err))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			g.metrics.RecordCircuitState(name, toCircuitState(to))
		},
	})

	logger.Debug("guard initialized",
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", cbc.MaxRequests),
		zap.Duration("circuit_timeout", cbc.Timeout),
	)

	return g
}

func toCircuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// Name returns the guarded dependency's name.
func (g *Guard) Name() string {
	return g.name
}

// State returns the breaker state.
func (g *Guard) State() metrics.CircuitState {
	return toCircuitState(g.cb.State())
}

// Execute runs fn with the guard's deadline applied to ctx. The deadline is
// only enforced if fn honours ctx.
func (g *Guard) Execute(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, g, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do is Execute for calls that return a value.
func Do[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := g.cb.Execute(func() (interface{}, error) {
		v, err := fn(ctx)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return v, ErrTimeout
		}
		return v, err
	})
	v, _ := result.(T)
	if err == nil {
		return v, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		g.logger.Warn("circuit breaker open - request rejected", zap.String("operation", op))
		return zero, ErrCircuitOpen
	case errors.Is(err, ErrTimeout):
		g.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.Duration("timeout", g.timeout),
			zap.Duration("elapsed", time.Since(start)),
		)
		return zero, ErrTimeout
	}

	return v, err
}
