package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/schoolerp/backend/internal/domain/fees"
	"go.uber.org/zap"
)

const defaultScanBatchSize = 100

// RedisStructureCache implements StructureCache using Redis, sharing the
// cached structures across every API instance of the school.
type RedisStructureCache struct {
	client     *redis.Client
	ownsClient bool // true if we created the client and should close it
	logger     *zap.Logger
}

// RedisStructureCacheOption is a functional option for configuring the cache
type RedisStructureCacheOption func(*RedisStructureCache)

// WithRedisLogger sets the logger for the cache
func WithRedisLogger(logger *zap.Logger) RedisStructureCacheOption {
	return func(c *RedisStructureCache) {
		c.logger = logger
	}
}

// RedisConfig holds the connection settings for the Redis backend
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisStructureCache creates a new Redis-based structure cache
func NewRedisStructureCache(cfg RedisConfig, opts ...RedisStructureCacheOption) (*RedisStructureCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache := &RedisStructureCache{
		client:     client,
		ownsClient: true,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache, nil
}

// NewRedisStructureCacheWithClient creates a cache with an existing Redis client.
// The caller retains ownership of the client and is responsible for closing it.
func NewRedisStructureCacheWithClient(client *redis.Client, opts ...RedisStructureCacheOption) *RedisStructureCache {
	cache := &RedisStructureCache{
		client:     client,
		ownsClient: false,
		logger:     zap.NewNop(),
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// Get retrieves an active structure from cache
func (c *RedisStructureCache) Get(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*fees.FeeStructure, error) {
	key := activeStructureKey(schoolID, grade, academicYear)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.logger.Debug("Cache miss for fee structure", zap.String("key", key))
		return nil, nil
	}
	if err != nil {
		c.logger.Error("Failed to get fee structure from cache",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get structure from cache: %w", err)
	}

	var structure fees.FeeStructure
	if err := json.Unmarshal(data, &structure); err != nil {
		c.logger.Error("Failed to unmarshal cached fee structure",
			zap.String("key", key),
			zap.Error(err))
		// Delete corrupted cache entry
		_ = c.client.Del(ctx, key)
		return nil, fmt.Errorf("failed to unmarshal structure: %w", err)
	}

	c.logger.Debug("Cache hit for fee structure", zap.String("key", key))
	return &structure, nil
}

// Set stores an active structure in cache
func (c *RedisStructureCache) Set(ctx context.Context, structure *fees.FeeStructure, ttl time.Duration) error {
	if structure == nil {
		return nil
	}

	key := activeStructureKey(structure.SchoolID, structure.Grade, structure.AcademicYear)

	data, err := json.Marshal(structure)
	if err != nil {
		return fmt.Errorf("failed to marshal structure: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Error("Failed to set fee structure in cache",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("failed to set structure in cache: %w", err)
	}

	c.logger.Debug("Cached fee structure",
		zap.String("key", key),
		zap.Duration("ttl", ttl))
	return nil
}

// InvalidateSchool drops every cached structure for one school. Uses SCAN
// rather than KEYS so invalidation never blocks Redis.
func (c *RedisStructureCache) InvalidateSchool(ctx context.Context, schoolID uuid.UUID) error {
	var cursor uint64
	var deletedCount int64

	for {
		var keys []string
		var err error
		keys, cursor, err = c.client.Scan(ctx, cursor, schoolKeyPattern(schoolID), defaultScanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan cache keys: %w", err)
		}

		if len(keys) > 0 {
			deleted, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deletedCount += deleted
		}

		if cursor == 0 {
			break
		}
	}

	c.logger.Debug("Invalidated fee structure cache for school",
		zap.String("school_id", schoolID.String()),
		zap.Int64("deleted_count", deletedCount))
	return nil
}

// Close releases the Redis client if this cache owns it
func (c *RedisStructureCache) Close() error {
	if c.ownsClient {
		return c.client.Close()
	}
	return nil
}

// Ensure RedisStructureCache implements StructureCache
var _ StructureCache = (*RedisStructureCache)(nil)
