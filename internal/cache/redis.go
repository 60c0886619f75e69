package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps one hash per owner, one field per offset, so an owner's
// entries expire and are invalidated together.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client, prefix: "mustard:next_event:"}
}

var _ NextEventCache = (*RedisCache)(nil)

func (c *RedisCache) key(ownerID int64) string {
	return c.prefix + strconv.FormatInt(ownerID, 10)
}

func (c *RedisCache) Get(ctx context.Context, ownerID, offsetSeconds int64) (int64, bool, error) {
	epoch, err := c.client.HGet(ctx, c.key(ownerID), strconv.FormatInt(offsetSeconds, 10)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get next event for owner %d: %w", ownerID, err)
	}
	return epoch, true, nil
}

func (c *RedisCache) Set(ctx context.Context, ownerID, offsetSeconds, epoch int64, ttl time.Duration) error {
	key := c.key(ownerID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.FormatInt(offsetSeconds, 10), epoch)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set next event for owner %d: %w", ownerID, err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, ownerID int64) error {
	if err := c.client.Del(ctx, c.key(ownerID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate next event for owner %d: %w", ownerID, err)
	}
	return nil
}
