package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/MeNameek/camerasystem/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient creates a pooled client and waits for the server to answer
// a ping, retrying briefly so a relay can start alongside Redis.
func NewRedisClient(address, password string, db, poolSize int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cfg := retry.DefaultConfig()
	cfg.InitialDelay = 500 * time.Millisecond
	if logger != nil {
		cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
			logger.Warnw("redis not ready, retrying", "address", address, "attempt", attempt, "delay", delay, "error", err)
		}
	}
	if err := retry.Retry(ctx, cfg, func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger != nil {
		logger.Infow("connected to Redis",
			"address", address,
			"db", db,
			"pool_size", poolSize,
		)
	}

	return client, nil
}

// CloseRedisClient closes the Redis client connection
func CloseRedisClient(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
