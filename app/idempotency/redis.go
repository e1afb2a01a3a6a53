// Package idempotency keeps short-lived claims on payment deliveries so
// duplicate webhooks arriving together are handled once.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/sethmwebi/medrin-jobs-backend/app/config"

	"github.com/go-redis/redis/v8"
)

const defaultTTL = 2 * time.Minute

// RedisGuard claims keys with SET NX.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisGuard connects to cfg.URL and checks the connection.
func NewRedisGuard(ctx context.Context, cfg config.RedisConfig) (*RedisGuard, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisGuardFromClient(client, cfg.KeyPrefix, cfg.LockTTL), nil
}

func NewRedisGuardFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) key(k string) string {
	if g.prefix == "" {
		return "claim:" + k
	}
	return g.prefix + ":claim:" + k
}

// Acquire returns false when another caller holds key.
func (g *RedisGuard) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (g *RedisGuard) Close() error {
	return g.client.Close()
}
