package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"cajadiaria/backend/internal/domain"
)

const generationKey = "ledger:gen"

// RedisLedgerCache namespaces every range key by a generation counter.
// Invalidate bumps the counter, which orphans all earlier entries at once;
// they expire on their own TTL.
type RedisLedgerCache struct {
	client *redis.Client
}

func NewRedisLedgerCache(addr string, password string, db int) *RedisLedgerCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisLedgerCache{client: client}
}

func (c *RedisLedgerCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisLedgerCache) Close() error {
	return c.client.Close()
}

func (c *RedisLedgerCache) rangeKey(ctx context.Context, from string, to string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if err == redis.Nil {
		gen = 0
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledger:%d:%s:%s", gen, from, to), nil
}

func (c *RedisLedgerCache) GetRange(ctx context.Context, from string, to string) ([]domain.DaySnapshot, bool, error) {
	key, err := c.rangeKey(ctx, from, to)
	if err != nil {
		return nil, false, err
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var days []domain.DaySnapshot
	if err := json.Unmarshal([]byte(val), &days); err != nil {
		return nil, false, err
	}
	return days, true, nil
}

func (c *RedisLedgerCache) SetRange(ctx context.Context, from string, to string, days []domain.DaySnapshot, ttl time.Duration) error {
	if days == nil {
		return nil
	}
	key, err := c.rangeKey(ctx, from, to)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(days)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisLedgerCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}
