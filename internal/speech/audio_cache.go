package speech

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// AudioCache holds synthesized audio keyed by content hash. It is bounded
// by entry count and TTL; the oldest entry is evicted first.
type AudioCache struct {
	mu         sync.RWMutex
	entries    map[string]*list.Element
	order      *list.List
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

type cacheEntry struct {
	key       string
	audio     []byte
	createdAt time.Time
}

// NewAudioCache creates a cache. A non-positive ttl disables expiry.
func NewAudioCache(maxEntries int, ttl time.Duration) *AudioCache {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &AudioCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}
}

// Key returns the cache key for text spoken in a voice.
func Key(voiceID, text string) string {
	sum := sha256.Sum256([]byte(voiceID + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// Get returns cached audio for a key.
func (c *AudioCache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.expired(entry) {
		return nil, false
	}
	return entry.audio, true
}

// Put stores audio, evicting the oldest entries beyond capacity.
func (c *AudioCache) Put(key string, audio []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	for c.order.Len() >= c.maxEntries {
		c.removeElement(c.order.Front())
	}
	c.entries[key] = c.order.PushBack(&cacheEntry{key: key, audio: audio, createdAt: c.now()})
}

// Sweep removes expired entries and returns how many were removed.
func (c *AudioCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		// Entries are in insertion order, so the first live one ends the sweep.
		if !c.expired(el.Value.(*cacheEntry)) {
			break
		}
		c.removeElement(el)
		removed++
		el = next
	}
	return removed
}

// Len returns the number of cached entries, expired or not.
func (c *AudioCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

func (c *AudioCache) expired(e *cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(e.createdAt) >= c.ttl
}

func (c *AudioCache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}
