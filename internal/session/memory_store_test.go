package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Second)
	ctx := context.Background()

	s := testSession("CA1")
	require.NoError(t, store.Save(ctx, s))

	// Mutating the caller's copy must not leak into the store.
	s.Turn = 99

	got, err := store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Turn)

	require.NoError(t, store.Delete(ctx, "CA1"))
	_, err = store.Get(ctx, "CA1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ExpiryAndSweep(t *testing.T) {
	store := NewMemoryStore(time.Minute, time.Second)
	now := time.Date(2025, 10, 15, 14, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("CA1")))
	require.NoError(t, store.Save(ctx, testSession("CA2")))

	now = now.Add(2 * time.Minute)
	require.NoError(t, store.Save(ctx, testSession("CA3")))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "CA3", sessions[0].CallSID)

	assert.Equal(t, 2, store.Sweep())
	_, err = store.Get(ctx, "CA1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Lock(t *testing.T) {
	store := NewMemoryStore(time.Hour, 50*time.Millisecond)
	ctx := context.Background()

	release, err := store.Lock(ctx, "CA1")
	require.NoError(t, err)

	_, err = store.Lock(ctx, "CA1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	other, err := store.Lock(ctx, "CA2")
	require.NoError(t, err)
	other()

	release()
	release()

	again, err := store.Lock(ctx, "CA1")
	require.NoError(t, err)
	again()

	assert.Empty(t, store.locks)
}

func TestMemoryStore_LockHonoursContext(t *testing.T) {
	store := NewMemoryStore(time.Hour, time.Minute)

	release, err := store.Lock(context.Background(), "CA1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Lock(ctx, "CA1")
	assert.ErrorIs(t, err, context.Canceled)
}
