package maintenance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingCache struct {
	sweeps atomic.Int32
}

func (c *countingCache) Sweep() int {
	c.sweeps.Add(1)
	return 2
}

type fakeSweeper struct {
	idle time.Duration
	err  error
}

func (f *fakeSweeper) SweepAbandoned(_ context.Context, idle time.Duration) (int, error) {
	f.idle = idle
	return 1, f.err
}

func TestScheduler_RejectsInvalidSpec(t *testing.T) {
	s := NewScheduler(time.Second, zap.NewNop())
	err := s.Add("bad", "every five minutes", SweepCache(&countingCache{}))
	assert.Error(t, err)
}

func TestScheduler_RunAll(t *testing.T) {
	s := NewScheduler(time.Second, zap.NewNop())
	cache := &countingCache{}
	sweeper := &fakeSweeper{err: errors.New("redis down")}

	require.NoError(t, s.Add("audio-cache", "@every 10m", SweepCache(cache)))
	require.NoError(t, s.Add("abandoned-calls", "*/5 * * * *", SweepAbandoned(sweeper, 30*time.Minute)))

	s.RunAll(context.Background())

	assert.Equal(t, int32(1), cache.sweeps.Load())
	assert.Equal(t, 30*time.Minute, sweeper.idle)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := NewScheduler(time.Second, zap.NewNop())
	cache := &countingCache{}
	require.NoError(t, s.Add("audio-cache", "@every 1s", SweepCache(cache)))

	s.Start()
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		return cache.sweeps.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}
