package cache

import (
	"fmt"

	"github.com/schoolerp/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StructureCacheFactory creates structure caches based on configuration
type StructureCacheFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// StructureCacheFactoryOption is a functional option for configuring the factory
type StructureCacheFactoryOption func(*StructureCacheFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StructureCacheFactoryOption {
	return func(f *StructureCacheFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to the in-memory cache
// when Redis is unavailable. Default is true.
func WithInMemoryFallback(allow bool) StructureCacheFactoryOption {
	return func(f *StructureCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStructureCacheFactory creates a new factory
func NewStructureCacheFactory(cfg config.RedisConfig, opts ...StructureCacheFactoryOption) *StructureCacheFactory {
	f := &StructureCacheFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Create builds the cache backend named in the fees configuration. A Redis
// backend that cannot connect falls back to in-memory unless fallback is
// disabled, in which case startup fails.
func (f *StructureCacheFactory) Create(backend string) (StructureCache, error) {
	switch backend {
	case "redis":
		cache, err := NewRedisStructureCache(RedisConfig{
			Host:     f.redisConfig.Host,
			Port:     f.redisConfig.Port,
			Password: f.redisConfig.Password,
			DB:       f.redisConfig.DB,
		}, WithRedisLogger(f.logger))
		if err == nil {
			f.logger.Info("using Redis structure cache")
			return cache, nil
		}

		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("Redis required for structure cache but unavailable: %w", err)
		}

		f.logger.Warn("Redis unavailable, falling back to in-memory structure cache. "+
			"Cache invalidation will not reach other instances.",
			zap.Error(err),
		)
		return NewInMemoryStructureCache(WithInMemoryLogger(f.logger)), nil
	case "memory", "":
		return NewInMemoryStructureCache(WithInMemoryLogger(f.logger)), nil
	default:
		return nil, fmt.Errorf("unknown structure cache backend %q", backend)
	}
}
