package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
)

const (
	sessionPrefix = "hvac:session:"
	lockPrefix    = "hvac:lock:"
	lockPoll      = 25 * time.Millisecond
)

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds Redis session store settings.
type RedisConfig struct {
	Host       string
	Port       int
	Password   string
	DB         int
	SessionTTL time.Duration
	LockTTL    time.Duration
	LockWait   time.Duration
}

// RedisStore implements Store for Redis
type RedisStore struct {
	client     *redis.Client
	sessionTTL time.Duration
	lockTTL    time.Duration
	lockWait   time.Duration
	logger     *zap.Logger
}

// NewRedisStore connects to Redis and creates a session store
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreWithClient(client, cfg, logger), nil
}

// NewRedisStoreWithClient creates a session store on an existing client
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 2 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	return &RedisStore{
		client:     client,
		sessionTTL: cfg.SessionTTL,
		lockTTL:    cfg.LockTTL,
		lockWait:   cfg.LockWait,
		logger:     logger,
	}
}

// Get loads a session
func (s *RedisStore) Get(ctx context.Context, callSID string) (*dialog.Session, error) {
	data, err := s.client.Get(ctx, sessionPrefix+callSID).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

// Save stores a session and refreshes its TTL
func (s *RedisStore) Save(ctx context.Context, sess *dialog.Session) error {
	data, err := encode(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := s.client.Set(ctx, sessionPrefix+sess.CallSID, data, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes a session
func (s *RedisStore) Delete(ctx context.Context, callSID string) error {
	return s.client.Del(ctx, sessionPrefix+callSID).Err()
}

// List scans every live session. Sessions that vanish or fail to decode
// mid-scan are skipped.
func (s *RedisStore) List(ctx context.Context) ([]*dialog.Session, error) {
	var sessions []*dialog.Session
	iter := s.client.Scan(ctx, 0, sessionPrefix+"*", 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return sessions, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		sess, err := decode([]byte(raw))
		if err != nil {
			s.logger.Warn("Skipping undecodable session",
				zap.String("key", keys[i]),
				zap.Error(err))
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Lock acquires the per-call lock with SET NX PX, polling until the wait
// budget runs out.
func (s *RedisStore) Lock(ctx context.Context, callSID string) (func(), error) {
	key := lockPrefix + callSID
	token := uuid.New().String()
	deadline := time.Now().Add(s.lockWait)

	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire session lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}

	return func() {
		// Release outlives a cancelled request context.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, s.client, []string{key}, token).Err(); err != nil {
			s.logger.Warn("Failed to release session lock",
				zap.String("call_sid", callSID),
				zap.Error(err))
		}
	}, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
