package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// CachedFeeStructureRepository decorates a FeeStructureRepository with a
// read-through cache on FindActive. Writes invalidate the school's entries
// so a deactivated structure never serves a collection. Cache failures are
// logged and the call falls through to the database.
type CachedFeeStructureRepository struct {
	inner  fees.FeeStructureRepository
	cache  StructureCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedFeeStructureRepository creates a caching decorator around inner
func NewCachedFeeStructureRepository(inner fees.FeeStructureRepository, cache StructureCache, ttl time.Duration, logger *zap.Logger) *CachedFeeStructureRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFeeStructureRepository{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// FindByID finds a fee structure by its ID
func (r *CachedFeeStructureRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeStructure, error) {
	return r.inner.FindByID(ctx, id)
}

// FindByIDForSchool finds a fee structure by ID for a specific school
func (r *CachedFeeStructureRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fees.FeeStructure, error) {
	return r.inner.FindByIDForSchool(ctx, schoolID, id)
}

// Create inserts a new fee structure and invalidates the school's cache
func (r *CachedFeeStructureRepository) Create(ctx context.Context, structure *fees.FeeStructure) error {
	if err := r.inner.Create(ctx, structure); err != nil {
		return err
	}
	r.invalidate(ctx, structure.SchoolID)
	return nil
}

// Save creates or updates a fee structure and invalidates the school's cache
func (r *CachedFeeStructureRepository) Save(ctx context.Context, structure *fees.FeeStructure) error {
	if err := r.inner.Save(ctx, structure); err != nil {
		return err
	}
	r.invalidate(ctx, structure.SchoolID)
	return nil
}

// FindActive returns the active structure for a grade and academic year,
// consulting the cache first.
func (r *CachedFeeStructureRepository) FindActive(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*fees.FeeStructure, error) {
	cached, err := r.cache.Get(ctx, schoolID, grade, academicYear)
	if err != nil {
		r.logger.Warn("Structure cache read failed, falling back to database", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	structure, err := r.inner.FindActive(ctx, schoolID, grade, academicYear)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, structure, r.ttl); err != nil {
		r.logger.Warn("Structure cache write failed", zap.Error(err))
	}
	return structure, nil
}

// FindByYear returns all structures for an academic year, paginated
func (r *CachedFeeStructureRepository) FindByYear(ctx context.Context, schoolID uuid.UUID, academicYear string, filter shared.Filter) (shared.Paginated[fees.FeeStructure], error) {
	return r.inner.FindByYear(ctx, schoolID, academicYear, filter)
}

func (r *CachedFeeStructureRepository) invalidate(ctx context.Context, schoolID uuid.UUID) {
	if err := r.cache.InvalidateSchool(ctx, schoolID); err != nil {
		r.logger.Warn("Structure cache invalidation failed",
			zap.String("school_id", schoolID.String()),
			zap.Error(err))
	}
}

// Ensure CachedFeeStructureRepository implements fees.FeeStructureRepository
var _ fees.FeeStructureRepository = (*CachedFeeStructureRepository)(nil)
