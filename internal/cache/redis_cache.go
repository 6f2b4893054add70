package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"livrocaixa/backend/internal/domain"
)

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

func (c *RedisLedgerCache) GetMovementPage(ctx context.Context, key string) (*domain.MovementPage, bool, error) {
	var page domain.MovementPage
	ok, err := c.get(ctx, key, &page)
	if !ok || err != nil {
		return nil, false, err
	}
	return &page, true, nil
}

func (c *RedisLedgerCache) SetMovementPage(ctx context.Context, key string, value *domain.MovementPage, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	return c.set(ctx, key, value, ttl)
}

func (c *RedisLedgerCache) GetCashFlowSummary(ctx context.Context, key string) (*domain.CashFlowSummary, bool, error) {
	var summary domain.CashFlowSummary
	ok, err := c.get(ctx, key, &summary)
	if !ok || err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisLedgerCache) SetCashFlowSummary(ctx context.Context, key string, value *domain.CashFlowSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	return c.set(ctx, key, value, ttl)
}

func (c *RedisLedgerCache) GetReplenishment(ctx context.Context, key string) (*domain.ReplenishmentResponse, bool, error) {
	var resp domain.ReplenishmentResponse
	ok, err := c.get(ctx, key, &resp)
	if !ok || err != nil {
		return nil, false, err
	}
	return &resp, true, nil
}

func (c *RedisLedgerCache) SetReplenishment(ctx context.Context, key string, value *domain.ReplenishmentResponse, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	return c.set(ctx, key, value, ttl)
}

// ClearPattern deletes every key matching pattern via SCAN, never KEYS,
// so invalidation does not block the server.
func (c *RedisLedgerCache) ClearPattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (c *RedisLedgerCache) get(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisLedgerCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
