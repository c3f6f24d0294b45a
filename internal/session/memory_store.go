package session

import (
	"context"
	"sync"
	"time"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
)

type lockSlot struct {
	ch   chan struct{}
	refs int
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore implements Store in process memory for development and
// tests. Sessions are stored encoded so callers never share pointers.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	locks    map[string]*lockSlot
	ttl      time.Duration
	lockWait time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory session store
func NewMemoryStore(ttl, lockWait time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		locks:    make(map[string]*lockSlot),
		ttl:      ttl,
		lockWait: lockWait,
		now:      time.Now,
	}
}

// Get loads a session
func (m *MemoryStore) Get(ctx context.Context, callSID string) (*dialog.Session, error) {
	m.mu.Lock()
	entry, ok := m.sessions[callSID]
	if ok && m.now().After(entry.expiresAt) {
		delete(m.sessions, callSID)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decode(entry.data)
}

// Save stores a session and refreshes its TTL
func (m *MemoryStore) Save(ctx context.Context, s *dialog.Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sessions[s.CallSID] = memoryEntry{data: data, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

// Delete removes a session
func (m *MemoryStore) Delete(ctx context.Context, callSID string) error {
	m.mu.Lock()
	delete(m.sessions, callSID)
	m.mu.Unlock()
	return nil
}

// List returns every unexpired session
func (m *MemoryStore) List(ctx context.Context) ([]*dialog.Session, error) {
	m.mu.Lock()
	now := m.now()
	raw := make([][]byte, 0, len(m.sessions))
	for _, e := range m.sessions {
		if now.After(e.expiresAt) {
			continue
		}
		raw = append(raw, e.data)
	}
	m.mu.Unlock()

	sessions := make([]*dialog.Session, 0, len(raw))
	for _, data := range raw {
		s, err := decode(data)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// Lock acquires the per-call lock, waiting up to the configured budget.
func (m *MemoryStore) Lock(ctx context.Context, callSID string) (func(), error) {
	m.mu.Lock()
	slot, ok := m.locks[callSID]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		m.locks[callSID] = slot
	}
	slot.refs++
	m.mu.Unlock()

	timer := time.NewTimer(m.lockWait)
	defer timer.Stop()

	var err error
	select {
	case slot.ch <- struct{}{}:
	case <-timer.C:
		err = ErrLockTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		m.unref(callSID, slot)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			m.unref(callSID, slot)
		})
	}, nil
}

func (m *MemoryStore) unref(callSID string, slot *lockSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(m.locks, callSID)
	}
}

// Sweep drops expired sessions, returning how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for sid, e := range m.sessions {
		if now.After(e.expiresAt) {
			delete(m.sessions, sid)
			removed++
		}
	}
	return removed
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}
