// Package redis carries the worker's cluster coordination: the recompute
// lease and the rules-changed broadcast.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

// Config holds Redis connection configuration
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	// PoolSize of 0 keeps the go-redis default
	PoolSize int
}

func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	}
}

// Client is shared by the Locker and the Notifier
type Client struct {
	rdb    *redis.Client
	logger ectologger.Logger
}

// NewClient connects and fails fast when Redis does not answer a PING.
func NewClient(ctx context.Context, cfg Config, logger ectologger.Logger) (*Client, error) {
	opts := cfg.options()
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", opts.Addr, err)
	}

	logger.WithFields(map[string]any{
		"addr": opts.Addr,
		"db":   opts.DB,
	}).Info("Connected to Redis")

	return &Client{rdb: rdb, logger: logger}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping is registered as a critical readiness check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
