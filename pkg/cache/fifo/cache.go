// Package fifo is a fixed-capacity, insertion-ordered response cache.
//
// Entries are evicted oldest-inserted first. Reads never change an entry's
// position, so a frequently hit entry is still evicted once C newer entries
// have been inserted after it. There is no expiry.
package fifo

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pario-ai/chatrelay/pkg/models"
)

// Cache maps request fingerprints to replies. It is safe for concurrent use.
type Cache struct {
	// The LRU list degenerates to insertion order because entries are only
	// ever read with Peek and added with ContainsOrAdd, neither of which
	// touches recency.
	store     *lru.Cache[string, models.CacheEntry]
	capacity  int
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	onEvict   func(models.CacheEntry)
}

// Option configures a Cache.
type Option func(*Cache)

// WithEvictHook registers fn to run after an entry is evicted for capacity.
func WithEvictHook(fn func(models.CacheEntry)) Option {
	return func(c *Cache) { c.onEvict = fn }
}

// New creates a Cache holding at most capacity entries.
func New(capacity int, opts ...Option) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	c := &Cache{capacity: capacity}
	for _, opt := range opts {
		opt(c)
	}

	store, err := lru.NewWithEvict[string, models.CacheEntry](capacity, func(_ string, e models.CacheEntry) {
		c.evictions.Add(1)
		if c.onEvict != nil {
			c.onEvict(e)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	c.store = store
	return c, nil
}

// Key computes a SHA-256 fingerprint of the model, token budget and turns.
// Every string is written length-prefixed and byte-for-byte, so distinct
// inputs never share an encoding.
func Key(req *models.ChatRequest) string {
	h := sha256.New()
	var buf [binary.MaxVarintLen64]byte
	writeString := func(s string) {
		n := binary.PutUvarint(buf[:], uint64(len(s)))
		h.Write(buf[:n])
		h.Write([]byte(s))
	}

	writeString(req.Model)
	n := binary.PutVarint(buf[:], int64(req.MaxTokens))
	h.Write(buf[:n])
	n = binary.PutUvarint(buf[:], uint64(len(req.Turns)))
	h.Write(buf[:n])
	for _, t := range req.Turns {
		writeString(string(t.Role))
		writeString(t.Content)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Lookup returns the entry stored under key. It does not refresh the entry.
func (c *Cache) Lookup(key string) (models.CacheEntry, bool) {
	e, ok := c.store.Peek(key)
	if !ok {
		c.misses.Add(1)
		return models.CacheEntry{}, false
	}
	c.hits.Add(1)
	return e, true
}

// Insert stores entry under entry.Key, evicting the oldest entry first if the
// cache is full. If the key is already present the existing entry and its
// position are kept and Insert reports false.
func (c *Cache) Insert(entry models.CacheEntry) bool {
	present, _ := c.store.ContainsOrAdd(entry.Key, entry)
	return !present
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	return c.store.Len()
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() models.CacheStats {
	return models.CacheStats{
		Entries:   int64(c.store.Len()),
		Capacity:  int64(c.capacity),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
