package cachesvc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/schoolhub/schoolhub/core"
)

const keyPrefix = "schoolhub:cache:"

// envelope keeps the store time next to the data so expired entries remain readable.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	StoredAt time.Time       `json:"storedAt"`
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ core.Cache = (*redisCache)(nil)

func NewRedisCache(client *redis.Client, ttl time.Duration) core.Cache {
	return &redisCache{client: client, ttl: ttl}
}

// NewRedisClient connects to the redis server of conf.
func NewRedisClient(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return client, nil
}

func (c *redisCache) Get(ctx context.Context, key string, dst interface{}, ignoreExpiry bool) (bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, errors.Wrapf(err, "getting %q", key)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return false, errors.Wrapf(err, "decoding %q", key)
	}
	if !ignoreExpiry && time.Since(env.StoredAt) > c.ttl {
		return false, nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return false, errors.Wrapf(err, "decoding %q", key)
	}
	return true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, val interface{}) error {
	data, err := json.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "encoding %q", key)
	}
	raw, err := json.Marshal(envelope{Data: data, StoredAt: time.Now().UTC()})
	if err != nil {
		return errors.Wrapf(err, "encoding %q", key)
	}
	// no redis expiry: stale reads need the entry
	return errors.Wrapf(c.client.Set(ctx, keyPrefix+key, raw, 0).Err(), "setting %q", key)
}

func (c *redisCache) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		iter := c.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return errors.Wrap(err, "scanning keys")
		}
		if len(keys) == 0 {
			return nil
		}
		return errors.Wrap(c.client.Del(ctx, keys...).Err(), "clearing cache")
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = keyPrefix + key
	}
	return errors.Wrap(c.client.Del(ctx, prefixed...).Err(), "clearing keys")
}

// New returns the cache backend selected in conf.
func New(ctx context.Context, conf *core.Config) (core.Cache, error) {
	if conf.Cache.Backend != "redis" {
		return NewMemoryCache(conf.Cache.TTL), nil
	}
	client, err := NewRedisClient(ctx, conf)
	if err != nil {
		return nil, err
	}
	return NewRedisCache(client, conf.Cache.TTL), nil
}
