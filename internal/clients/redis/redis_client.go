package redis

import (
	"context"
	"crypto/tls"
	"time"

	"letknow-gateway/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the Redis connection shared by the replay cache, rate limiter and event publisher
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// Options builds go-redis options from configuration.
func Options(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ServerName: cfg.Host,
		}
	}
	return opts
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(Options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	logger.Info("connected to redis", zap.String("addr", cfg.Addr()), zap.Bool("tls", cfg.TLS))
	return &Client{
		rdb:    rdb,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping reports whether Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
