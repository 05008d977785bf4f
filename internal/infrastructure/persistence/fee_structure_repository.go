package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormFeeStructureRepository implements fees.FeeStructureRepository using GORM
type GormFeeStructureRepository struct {
	db *gorm.DB
}

// NewGormFeeStructureRepository creates a new GormFeeStructureRepository
func NewGormFeeStructureRepository(db *gorm.DB) *GormFeeStructureRepository {
	return &GormFeeStructureRepository{db: db}
}

// FindByID finds a fee structure by its ID
func (r *GormFeeStructureRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeStructure, error) {
	var model models.FeeStructureModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForSchool finds a fee structure by ID for a specific school
func (r *GormFeeStructureRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fees.FeeStructure, error) {
	var model models.FeeStructureModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND id = ?", schoolID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new fee structure
func (r *GormFeeStructureRepository) Create(ctx context.Context, structure *fees.FeeStructure) error {
	model := models.FeeStructureModelFromDomain(structure)
	return r.db.WithContext(ctx).Create(model).Error
}

// Save creates or updates a fee structure
func (r *GormFeeStructureRepository) Save(ctx context.Context, structure *fees.FeeStructure) error {
	model := models.FeeStructureModelFromDomain(structure)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindActive returns the single active structure for a grade and academic year
func (r *GormFeeStructureRepository) FindActive(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*fees.FeeStructure, error) {
	var model models.FeeStructureModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND grade = ? AND academic_year = ? AND active = ?", schoolID, grade, academicYear, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByYear returns all structures for an academic year, paginated
func (r *GormFeeStructureRepository) FindByYear(ctx context.Context, schoolID uuid.UUID, academicYear string, filter shared.Filter) (shared.Paginated[fees.FeeStructure], error) {
	base := r.db.WithContext(ctx).Model(&models.FeeStructureModel{}).
		Where("school_id = ? AND academic_year = ?", schoolID, academicYear)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return shared.Paginated[fees.FeeStructure]{}, err
	}

	var structureModels []models.FeeStructureModel
	if err := base.
		Order("grade asc").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&structureModels).Error; err != nil {
		return shared.Paginated[fees.FeeStructure]{}, err
	}

	structures := make([]fees.FeeStructure, len(structureModels))
	for i := range structureModels {
		structures[i] = *structureModels[i].ToDomain()
	}
	return shared.NewPaginated(structures, total, filter.Page, filter.PageSize), nil
}
