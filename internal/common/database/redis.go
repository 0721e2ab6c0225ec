// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"deal-engine/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient holds the fingerprint cache connection pool.
type RedisClient struct {
	Client *redis.Client
	addr   string
}

func NewRedis(cfg config.RedisConfig) *RedisClient {
	return &RedisClient{Client: redis.NewClient(redisOptions(cfg)), addr: cfg.Address}
}

// redisOptions sizes the pool for short MGET/pipeline bursts from the
// persist worker. Zero pool settings keep the go-redis defaults.
func redisOptions(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdle,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if cfg.Timeout > 0 {
		opts.ReadTimeout = config.GetDuration(cfg.Timeout)
		opts.WriteTimeout = opts.ReadTimeout
	}
	return opts
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", c.addr, err)
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
