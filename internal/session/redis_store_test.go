package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
)

func newTestRedisStore(t *testing.T, cfg RedisConfig) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreWithClient(client, cfg, zap.NewNop()), mr
}

func testSession(sid string) *dialog.Session {
	s := dialog.NewSession(sid, "+15551234567", "+15559990000", time.Date(2025, 10, 15, 14, 0, 0, 0, time.UTC))
	s.State = dialog.StateCollectAddress
	s.Turn = 4
	s.Booking.Name = "Jane Doe"
	s.LastReply = &dialog.Reply{Text: "What's the address?", Listen: true}
	return s
}

func TestRedisStore_SaveGetDelete(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{SessionTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("CA1")))
	assert.True(t, mr.Exists(sessionPrefix+"CA1"))
	assert.Equal(t, time.Hour, mr.TTL(sessionPrefix+"CA1"))

	got, err := store.Get(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, dialog.StateCollectAddress, got.State)
	assert.Equal(t, 4, got.Turn)
	assert.Equal(t, "Jane Doe", got.Booking.Name)
	require.NotNil(t, got.LastReply)
	assert.Equal(t, "What's the address?", got.LastReply.Text)

	require.NoError(t, store.Delete(ctx, "CA1"))
	_, err = store.Get(ctx, "CA1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Expires(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{SessionTTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("CA1")))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "CA1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_GetCorrupt(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{})
	require.NoError(t, mr.Set(sessionPrefix+"CA1", "{not json"))

	_, err := store.Get(context.Background(), "CA1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_List(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("CA1")))
	require.NoError(t, store.Save(ctx, testSession("CA2")))
	require.NoError(t, mr.Set(sessionPrefix+"CA3", "garbage"))
	require.NoError(t, mr.Set("other:key", "x"))

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	sids := []string{}
	for _, s := range sessions {
		sids = append(sids, s.CallSID)
	}
	assert.ElementsMatch(t, []string{"CA1", "CA2"}, sids)
}

func TestRedisStore_Lock(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{LockTTL: 10 * time.Second, LockWait: 100 * time.Millisecond})
	ctx := context.Background()

	release, err := store.Lock(ctx, "CA1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockPrefix+"CA1"))

	_, err = store.Lock(ctx, "CA1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()
	assert.False(t, mr.Exists(lockPrefix+"CA1"))

	release2, err := store.Lock(ctx, "CA1")
	require.NoError(t, err)
	release2()
}

func TestRedisStore_ReleaseDoesNotStealExpiredLock(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{LockTTL: time.Second, LockWait: 50 * time.Millisecond})
	ctx := context.Background()

	release, err := store.Lock(ctx, "CA1")
	require.NoError(t, err)

	// The first holder's lock expires and another webhook takes it.
	mr.FastForward(2 * time.Second)
	release2, err := store.Lock(ctx, "CA1")
	require.NoError(t, err)

	release()
	assert.True(t, mr.Exists(lockPrefix+"CA1"), "stale holder must not release the new lock")

	release2()
	assert.False(t, mr.Exists(lockPrefix+"CA1"))
}

func TestRedisStore_LockWaitsForRelease(t *testing.T) {
	store, _ := newTestRedisStore(t, RedisConfig{LockWait: 2 * time.Second})
	ctx := context.Background()

	release, err := store.Lock(ctx, "CA1")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	release2, err := store.Lock(ctx, "CA1")
	require.NoError(t, err)
	release2()
}

func TestRedisStore_Ping(t *testing.T) {
	store, mr := newTestRedisStore(t, RedisConfig{})
	assert.NoError(t, store.Ping(context.Background()))

	mr.SetError("ERR server unavailable")
	assert.Error(t, store.Ping(context.Background()))
}
