package core

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// mapCache never expires entries unless stale is set.
type mapCache struct {
	data  map[string][]byte
	stale bool
}

func (c *mapCache) Get(ctx context.Context, key string, dst interface{}, ignoreExpiry bool) (bool, error) {
	raw, ok := c.data[key]
	if !ok || (c.stale && !ignoreExpiry) {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *mapCache) Set(ctx context.Context, key string, val interface{}) error {
	raw, err := json.Marshal(val)
	c.data[key] = raw
	return err
}

func (c *mapCache) Clear(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.data, key)
	}
	return nil
}

func TestCachedQuery(t *testing.T) {
	ctx := context.Background()
	cache := &mapCache{data: make(map[string][]byte)}

	calls := 0
	query := func() ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	res, err := CachedQuery(ctx, cache, nopLogger{}, "k", query)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res)

	res, err = CachedQuery(ctx, cache, nopLogger{}, "k", query)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res)
	assert.Equal(t, 1, calls)

	// expired + failing query: stale data
	cache.stale = true
	errDown := errors.New("down")
	res, err = CachedQuery(ctx, cache, nopLogger{}, "k", func() ([]string, error) { return nil, errDown })
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, res)

	// nothing cached: the error
	ClearCache(ctx, cache, nopLogger{}, "k")
	_, err = CachedQuery(ctx, cache, nopLogger{}, "k", func() ([]string, error) { return nil, errDown })
	assert.Equal(t, errDown, err)
}
