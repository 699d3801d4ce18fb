package fifo

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pario-ai/chatrelay/pkg/models"
)

func newTestCache(t *testing.T, capacity int, opts ...Option) *Cache {
	t.Helper()
	c, err := New(capacity, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func entry(i int) models.CacheEntry {
	return models.CacheEntry{Key: fmt.Sprintf("k%d", i), Reply: fmt.Sprintf("reply %d", i), Model: "gpt-4o-mini"}
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, c := range []int{0, -5} {
		if _, err := New(c); err == nil {
			t.Errorf("expected error for capacity %d", c)
		}
	}
}

func TestKey(t *testing.T) {
	turns := []models.ConversationTurn{{Role: models.RoleUser, Content: "hello"}}
	base := &models.ChatRequest{Model: "gpt-4o-mini", MaxTokens: 600, Turns: turns}

	k1 := Key(base)
	k2 := Key(&models.ChatRequest{Model: "gpt-4o-mini", MaxTokens: 600, Turns: []models.ConversationTurn{{Role: models.RoleUser, Content: "hello"}}})
	if k1 != k2 {
		t.Error("same input should produce same key")
	}

	variants := map[string]*models.ChatRequest{
		"model":   {Model: "gpt-4o", MaxTokens: 600, Turns: turns},
		"tokens":  {Model: "gpt-4o-mini", MaxTokens: 601, Turns: turns},
		"content": {Model: "gpt-4o-mini", MaxTokens: 600, Turns: []models.ConversationTurn{{Role: models.RoleUser, Content: "hello!"}}},
		"role":    {Model: "gpt-4o-mini", MaxTokens: 600, Turns: []models.ConversationTurn{{Role: models.RoleSystem, Content: "hello"}}},
		"order": {Model: "gpt-4o-mini", MaxTokens: 600, Turns: []models.ConversationTurn{
			{Role: models.RoleUser, Content: "b"}, {Role: models.RoleUser, Content: "a"},
		}},
		"invalid utf8 a": {Model: "gpt-4o-mini", MaxTokens: 600, Turns: []models.ConversationTurn{{Role: models.RoleUser, Content: "\xff"}}},
		"invalid utf8 b": {Model: "gpt-4o-mini", MaxTokens: 600, Turns: []models.ConversationTurn{{Role: models.RoleUser, Content: "\xfe"}}},
		"boundary": {Model: "gpt-4o-mini", MaxTokens: 600, Turns: []models.ConversationTurn{
			{Role: models.RoleUser, Content: "hel"}, {Role: models.RoleUser, Content: "lo"},
		}},
	}
	seen := map[string]string{k1: "base"}
	for name, req := range variants {
		k := Key(req)
		if prev, dup := seen[k]; dup {
			t.Errorf("%s collides with %s", name, prev)
		}
		seen[k] = name
	}
}

func TestInsertAndLookup(t *testing.T) {
	c := newTestCache(t, 2)
	if !c.Insert(entry(1)) {
		t.Fatal("expected first insert to store")
	}
	got, ok := c.Lookup("k1")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != entry(1) {
		t.Errorf("unexpected entry %+v", got)
	}
	if _, ok := c.Lookup("nope"); ok {
		t.Error("expected cache miss")
	}
}

func TestFIFOEviction(t *testing.T) {
	const capacity = 5
	c := newTestCache(t, capacity)

	for i := 0; i < capacity; i++ {
		c.Insert(entry(i))
	}
	if c.Len() != capacity {
		t.Fatalf("expected %d entries, got %d", capacity, c.Len())
	}

	c.Insert(entry(capacity))

	if c.Len() != capacity {
		t.Errorf("size must stay at capacity, got %d", c.Len())
	}
	if _, ok := c.Lookup("k0"); ok {
		t.Error("first inserted key should have been evicted")
	}
	for i := 1; i <= capacity; i++ {
		if _, ok := c.Lookup(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("k%d should still be present", i)
		}
	}
}

func TestHitsDoNotRefreshPosition(t *testing.T) {
	c := newTestCache(t, 3)
	c.Insert(entry(1))
	c.Insert(entry(2))
	c.Insert(entry(3))

	// Under LRU these reads would save k1 from eviction.
	for i := 0; i < 10; i++ {
		if _, ok := c.Lookup("k1"); !ok {
			t.Fatal("expected k1 present before eviction")
		}
	}

	c.Insert(entry(4))
	if _, ok := c.Lookup("k1"); ok {
		t.Error("k1 must be evicted despite recent hits")
	}
	if _, ok := c.Lookup("k2"); !ok {
		t.Error("k2 should survive")
	}
}

func TestReinsertKeepsPosition(t *testing.T) {
	c := newTestCache(t, 2)
	c.Insert(entry(1))
	c.Insert(entry(2))

	if c.Insert(models.CacheEntry{Key: "k1", Reply: "other"}) {
		t.Error("re-insert of present key should report false")
	}
	got, _ := c.Lookup("k1")
	if got.Reply != "reply 1" {
		t.Errorf("existing entry should be kept, got %q", got.Reply)
	}

	c.Insert(entry(3))
	if _, ok := c.Lookup("k1"); ok {
		t.Error("k1 is still the oldest and should be evicted")
	}
}

func TestEvictsInInsertionOrder(t *testing.T) {
	c := newTestCache(t, 3)
	for i := 1; i <= 4; i++ {
		c.Insert(entry(i))
	}
	if _, ok := c.Lookup("k1"); ok {
		t.Error("k1 should be evicted first")
	}
	for _, k := range []string{"k2", "k3", "k4"} {
		if _, ok := c.Lookup(k); !ok {
			t.Errorf("%s should be present", k)
		}
	}

	c.Insert(entry(5))
	if _, ok := c.Lookup("k2"); ok {
		t.Error("k2 is now the oldest and should be evicted")
	}
}

func TestStatsAndEvictHook(t *testing.T) {
	var evicted []string
	var mu sync.Mutex
	c := newTestCache(t, 2, WithEvictHook(func(e models.CacheEntry) {
		mu.Lock()
		evicted = append(evicted, e.Key)
		mu.Unlock()
	}))

	c.Insert(entry(1))
	c.Insert(entry(2))
	c.Insert(entry(3))
	c.Lookup("k3") // hit
	c.Lookup("k1") // miss

	stats := c.Stats()
	if stats.Entries != 2 || stats.Capacity != 2 {
		t.Errorf("unexpected size stats %+v", stats)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit and 1 miss, got %+v", stats)
	}
	if stats.Evictions != 1 {
		t.Errorf("expected 1 eviction, got %d", stats.Evictions)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(evicted) != 1 || evicted[0] != "k1" {
		t.Errorf("expected hook to see k1, got %v", evicted)
	}
}

func TestConcurrentInsertStaysBounded(t *testing.T) {
	c := newTestCache(t, 16)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				e := entry(w*1000 + i)
				c.Insert(e)
				c.Lookup(e.Key)
			}
		}(w)
	}
	wg.Wait()
	if c.Len() > c.capacity {
		t.Errorf("size %d exceeds capacity %d", c.Len(), c.capacity)
	}
}
