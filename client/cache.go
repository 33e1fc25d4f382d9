package client

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// responseCache memoizes successful bodies by URL. Entries are never
// invalidated; the least recently used one is evicted once size is reached.
// A zero size disables caching.
type responseCache struct {
	entries *lru.Cache[string, json.RawMessage]
	hits    int64
}

func newResponseCache(size int) (*responseCache, error) {
	if size == 0 {
		return &responseCache{}, nil
	}
	entries, err := lru.New[string, json.RawMessage](size)
	if err != nil {
		return nil, fmt.Errorf("create response cache: %w", err)
	}
	return &responseCache{entries: entries}, nil
}

func (rc *responseCache) Get(key string) (json.RawMessage, bool) {
	if rc == nil || rc.entries == nil {
		return nil, false
	}
	body, ok := rc.entries.Get(key)
	if ok {
		atomic.AddInt64(&rc.hits, 1)
	}
	return body, ok
}

func (rc *responseCache) Add(key string, body json.RawMessage) {
	if rc == nil || rc.entries == nil {
		return
	}
	rc.entries.Add(key, body)
}

func (rc *responseCache) Len() int {
	if rc == nil || rc.entries == nil {
		return 0
	}
	return rc.entries.Len()
}

func (rc *responseCache) Hits() int {
	if rc == nil {
		return 0
	}
	return int(atomic.LoadInt64(&rc.hits))
}
