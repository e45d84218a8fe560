package database

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// DefaultRedisConfig returns sensible defaults for Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:        "localhost",
		Port:        6379,
		PoolSize:    10,
		DialTimeout: 2 * time.Second,
	}
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RedisConfigFromURL parses a redis:// URL into a RedisConfig, keeping the
// pool defaults.
func RedisConfigFromURL(rawURL string) (RedisConfig, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return RedisConfig{}, fmt.Errorf("parse redis url: %w", err)
	}

	host, portStr, err := net.SplitHostPort(opts.Addr)
	if err != nil {
		return RedisConfig{}, fmt.Errorf("parse redis addr %q: %w", opts.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return RedisConfig{}, fmt.Errorf("parse redis port %q: %w", portStr, err)
	}

	cfg := DefaultRedisConfig()
	cfg.Host = host
	cfg.Port = port
	cfg.Password = opts.Password
	cfg.DB = opts.DB
	return cfg, nil
}

// NewRedisClient creates a new Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", cfg.Addr(), err)
	}

	return client, nil
}
