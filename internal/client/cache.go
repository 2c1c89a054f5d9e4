package client

import (
	"encoding/json"
	"sync"
)

// defaultCacheSize bounds the number of cached responses.
const defaultCacheSize = 256

// responseCache memoizes results of calls explicitly marked cacheable.
// Entries survive for the lifetime of one connection; any disconnect
// purges the cache since server state may have moved on.
type responseCache struct {
	mu      sync.Mutex
	entries map[string]json.RawMessage
	max     int
}

func newResponseCache(max int) *responseCache {
	if max <= 0 {
		max = defaultCacheSize
	}
	return &responseCache{
		entries: make(map[string]json.RawMessage),
		max:     max,
	}
}

func cacheKey(method string, params interface{}) (string, bool) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", false
	}
	return method + "\x00" + string(data), true
}

func (rc *responseCache) get(key string) (json.RawMessage, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	result, ok := rc.entries[key]
	return result, ok
}

func (rc *responseCache) put(key string, result json.RawMessage) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.entries) >= rc.max {
		// Full cache drops everything rather than tracking recency.
		rc.entries = make(map[string]json.RawMessage)
	}
	rc.entries[key] = result
}

func (rc *responseCache) purge() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.entries = make(map[string]json.RawMessage)
}
