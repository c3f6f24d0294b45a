package maintenance

import (
	"context"
	"time"
)

// CacheSweeper drops expired cache entries.
type CacheSweeper interface {
	Sweep() int
}

// AbandonedSweeper retires sessions whose calls ended without a status
// callback.
type AbandonedSweeper interface {
	SweepAbandoned(ctx context.Context, idle time.Duration) (int, error)
}

// SweepCache returns a job that sweeps a cache.
func SweepCache(c CacheSweeper) JobFunc {
	return func(context.Context) (int, error) {
		return c.Sweep(), nil
	}
}

// SweepAbandoned returns a job that retires sessions idle longer than idle.
func SweepAbandoned(s AbandonedSweeper, idle time.Duration) JobFunc {
	return func(ctx context.Context) (int, error) {
		return s.SweepAbandoned(ctx, idle)
	}
}
