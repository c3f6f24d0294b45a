// Package resilience wraps calls to hosted APIs with exponential backoff
// retries and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnavailable is returned when the circuit breaker rejects a call.
var ErrUnavailable = errors.New("dependency unavailable")

// RetryConfig holds exponential backoff settings.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	Enabled             bool
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Executor runs operations against a single dependency.
type Executor struct {
	name    string
	retry   RetryConfig
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewExecutor creates an executor for the named dependency.
func NewExecutor(name string, retry RetryConfig, breaker BreakerConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = 100 * time.Millisecond
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = time.Second
	}

	e := &Executor{
		name:   name,
		retry:  retry,
		logger: logger,
	}

	if breaker.Enabled {
		threshold := breaker.ConsecutiveFailures
		if threshold == 0 {
			threshold = 5
		}
		e.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: breaker.MaxRequests,
			Interval:    breaker.Interval,
			Timeout:     breaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit breaker state change",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}

	return e
}

// Do runs op, retrying transient failures with exponential backoff.
// Errors wrapped with Permanent are not retried.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = e.retry.InitialInterval
	expo.MaxInterval = e.retry.MaxInterval
	expo.MaxElapsedTime = 0

	var bo backoff.BackOff = expo
	if e.retry.MaxRetries >= 0 {
		bo = backoff.WithMaxRetries(expo, uint64(e.retry.MaxRetries))
	}
	bo = backoff.WithContext(bo, ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := e.call(ctx, op)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		e.logger.Debug("dependency call failed",
			zap.String("dependency", e.name),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}, bo)

	return err
}

func (e *Executor) call(ctx context.Context, op func(ctx context.Context) error) error {
	if e.breaker == nil {
		return op(ctx)
	}

	_, err := e.breaker.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(ErrUnavailable, err)
	}
	return err
}

// State returns the breaker state name, or "disabled".
func (e *Executor) State() string {
	if e.breaker == nil {
		return "disabled"
	}
	return e.breaker.State().String()
}

// Name returns the dependency name.
func (e *Executor) Name() string {
	return e.name
}

// Permanent marks err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
