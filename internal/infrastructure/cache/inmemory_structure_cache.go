package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"go.uber.org/zap"
)

const defaultCleanupInterval = 30 * time.Second

// InMemoryStructureCache implements StructureCache using process-local
// storage. Suitable for single-instance deployments; multi-instance setups
// should use the Redis backend so invalidation reaches every node.
type InMemoryStructureCache struct {
	entries sync.Map // map[string]*structureEntry
	logger  *zap.Logger
	stopCh  chan struct{}
	once    sync.Once
}

type structureEntry struct {
	structure *fees.FeeStructure
	expiresAt time.Time
}

func (e *structureEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// InMemoryStructureCacheOption is a functional option for configuring the cache
type InMemoryStructureCacheOption func(*InMemoryStructureCache)

// WithInMemoryLogger sets the logger for the cache
func WithInMemoryLogger(logger *zap.Logger) InMemoryStructureCacheOption {
	return func(c *InMemoryStructureCache) {
		c.logger = logger
	}
}

// NewInMemoryStructureCache creates a new in-memory structure cache
func NewInMemoryStructureCache(opts ...InMemoryStructureCacheOption) *InMemoryStructureCache {
	cache := &InMemoryStructureCache{
		logger: zap.NewNop(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(cache)
	}

	go cache.cleanupExpired()

	return cache
}

// Get retrieves an active structure from cache
func (c *InMemoryStructureCache) Get(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*fees.FeeStructure, error) {
	key := activeStructureKey(schoolID, grade, academicYear)

	if value, ok := c.entries.Load(key); ok {
		entry := value.(*structureEntry)
		if !entry.isExpired() {
			c.logger.Debug("Cache hit for fee structure", zap.String("key", key))
			return entry.structure, nil
		}
		c.entries.Delete(key)
	}

	c.logger.Debug("Cache miss for fee structure", zap.String("key", key))
	return nil, nil
}

// Set stores an active structure in cache
func (c *InMemoryStructureCache) Set(ctx context.Context, structure *fees.FeeStructure, ttl time.Duration) error {
	if structure == nil {
		return nil
	}

	key := activeStructureKey(structure.SchoolID, structure.Grade, structure.AcademicYear)
	c.entries.Store(key, &structureEntry{
		structure: structure,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

// InvalidateSchool drops every cached structure for one school
func (c *InMemoryStructureCache) InvalidateSchool(ctx context.Context, schoolID uuid.UUID) error {
	prefix := strings.TrimSuffix(schoolKeyPattern(schoolID), "*")
	c.entries.Range(func(key, _ any) bool {
		if strings.HasPrefix(key.(string), prefix) {
			c.entries.Delete(key)
		}
		return true
	})
	return nil
}

// Close stops the cleanup goroutine
func (c *InMemoryStructureCache) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

// cleanupExpired periodically removes expired entries so stale structures
// don't pin memory between school years.
func (c *InMemoryStructureCache) cleanupExpired() {
	ticker := time.NewTicker(defaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.entries.Range(func(key, value any) bool {
				if value.(*structureEntry).isExpired() {
					c.entries.Delete(key)
				}
				return true
			})
		case <-c.stopCh:
			return
		}
	}
}

// Ensure InMemoryStructureCache implements StructureCache
var _ StructureCache = (*InMemoryStructureCache)(nil)
