package models

// CacheEntry stores a previously computed reply.
type CacheEntry struct {
	Key   string `json:"key"`
	Reply string `json:"reply"`
	Model string `json:"model"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries   int64 `json:"entries"`
	Capacity  int64 `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}
