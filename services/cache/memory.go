// Package cachesvc implements core.Cache in memory and on redis.
package cachesvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
)

type memoryEntry struct {
	data     []byte
	storedAt time.Time
}

type memoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ core.Cache = (*memoryCache)(nil)

func NewMemoryCache(ttl time.Duration) core.Cache {
	return &memoryCache{ttl: ttl, entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *memoryCache) Get(ctx context.Context, key string, dst interface{}, ignoreExpiry bool) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || (!ignoreExpiry && c.now().Sub(entry.storedAt) > c.ttl) {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dst); err != nil {
		return false, errors.Wrapf(err, "decoding %q", key)
	}
	return true, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, val interface{}) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "encoding %q", key)
	}
	c.mu.Lock()
	c.entries[key] = memoryEntry{data: data, storedAt: c.now()}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Clear(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(keys) == 0 {
		c.entries = make(map[string]memoryEntry)
		return nil
	}
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}
