package repositories

import (
	"context"

	"github.com/MeNameek/camerasystem/internal/core/ports"
	"github.com/MeNameek/camerasystem/internal/infrastructure/distributed"
	"github.com/MeNameek/camerasystem/internal/infrastructure/repositories/memory"
	redisrepo "github.com/MeNameek/camerasystem/internal/infrastructure/repositories/redis"
	"github.com/MeNameek/camerasystem/pkg/circuitbreaker"
	"github.com/MeNameek/camerasystem/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	instanceID  string
	channel     string
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects to Redis when enabled. A failed connection
// falls back to in-process repositories.
func NewRepositoryFactory(cfg *config.Config, instanceID string, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis:   cfg.Redis.Enabled,
		instanceID: instanceID,
		channel:    cfg.Redis.Channel,
		logger:     logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Infow("using Redis repositories", "instance_id", instanceID)
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory
}

func (f *RepositoryFactory) UsesRedis() bool {
	return f.useRedis && f.redisClient != nil
}

// CreatePresenceMirror creates a presence mirror (Redis or memory with fallback)
func (f *RepositoryFactory) CreatePresenceMirror() ports.PresenceMirror {
	if f.UsesRedis() {
		return newGuardedMirror(
			redisrepo.NewPresenceMirror(f.redisClient, f.instanceID),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
	}
	return memory.NewPresenceMirror()
}

// CreateEventBus returns nil without Redis; a single instance has nobody
// to tell.
func (f *RepositoryFactory) CreateEventBus() *distributed.EventBus {
	if !f.UsesRedis() {
		return nil
	}
	return distributed.NewEventBus(f.redisClient, f.instanceID, f.channel, f.logger)
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsesRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
