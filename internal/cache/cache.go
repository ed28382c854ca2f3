// Package cache provides a read-through cache in front of the ledger store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Cache.Get when the key is absent.
var ErrMiss = errors.New("cache: miss")

// generationTTL keeps generation counters alive well past any entry they
// guard. A counter that expires reads as 0, which only ever causes a skipped
// fill, never a stale one.
const generationTTL = 24 * time.Hour

// Cache is the small key/value surface the decorator needs.
//
// Every cached entry belongs to a generation counter. Readers note the
// generation before going to the store and fill the cache only if it is
// still the same afterwards; writers bump it. A fill racing a write is
// therefore dropped instead of resurrecting the pre-write value.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Generation returns the current value of genKey, 0 when unset.
	Generation(ctx context.Context, genKey string) (int64, error)
	// SetIfGeneration stores value under key only while genKey still holds
	// gen. stored is false when the generation moved.
	SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, genKey string, gen int64) (stored bool, err error)
	// Invalidate bumps genKey and deletes keys in one step.
	Invalidate(ctx context.Context, genKey string, keys ...string) error
}

// NewRedisClient connects to redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return client, nil
}

// RedisCache implements Cache over a go-redis client.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return b, nil
}

func (c *RedisCache) Generation(ctx context.Context, genKey string) (int64, error) {
	return readGeneration(ctx, c.client, genKey)
}

var errGenerationMoved = errors.New("cache: generation moved")

// SetIfGeneration uses WATCH on genKey so the check and the SET commit
// together or not at all.
func (c *RedisCache) SetIfGeneration(ctx context.Context, key string, value []byte, ttl time.Duration, genKey string, gen int64) (bool, error) {
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGeneration(ctx, tx, genKey)
		if err != nil {
			return err
		}
		if cur != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis: set %s: %w", key, err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, genKey string, keys ...string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: invalidate %s: %w", genKey, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func readGeneration(ctx context.Context, r redis.Cmdable, genKey string) (int64, error) {
	gen, err := r.Get(ctx, genKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get %s: %w", genKey, err)
	}
	return gen, nil
}
