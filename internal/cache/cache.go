package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache holds derived job state, client-name lookups and rate-limit
// counters. Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
	SetClientSuggestions(ctx context.Context, prefix string, names []string, ttl time.Duration) error
	GetClientSuggestions(ctx context.Context, prefix string) ([]string, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, JobStatusKey(jobID), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, found, err := c.get(ctx, JobStatusKey(jobID))
	return string(val), found, err
}

func (c *RedisCache) SetClientSuggestions(ctx context.Context, prefix string, names []string, ttl time.Duration) error {
	data, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ClientSuggestionsKey(prefix), data, ttl).Err()
}

func (c *RedisCache) GetClientSuggestions(ctx context.Context, prefix string) ([]string, bool, error) {
	data, found, err := c.get(ctx, ClientSuggestionsKey(prefix))
	if err != nil || !found {
		return nil, false, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, false, err
	}
	return names, true, nil
}

// IncrWithExpiry increments key and starts its expiry on first use, so a
// window's counter lives at most expiry.
func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// get treats a missing key as a miss rather than an error.
func (c *RedisCache) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

var _ Cache = (*RedisCache)(nil)
