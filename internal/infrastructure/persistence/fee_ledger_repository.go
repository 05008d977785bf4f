package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormFeeLedgerRepository implements fees.FeeLedgerRepository using GORM
type GormFeeLedgerRepository struct {
	db *gorm.DB
}

// NewGormFeeLedgerRepository creates a new GormFeeLedgerRepository
func NewGormFeeLedgerRepository(db *gorm.DB) *GormFeeLedgerRepository {
	return &GormFeeLedgerRepository{db: db}
}

// FindByID finds a fee ledger by its ID
func (r *GormFeeLedgerRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeLedger, error) {
	var model models.FeeLedgerModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForSchool finds a fee ledger by ID for a specific school
func (r *GormFeeLedgerRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fees.FeeLedger, error) {
	var model models.FeeLedgerModel
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

// Create inserts a new fee ledger. The unique (school, student, year) index
// turns a create race between two collectors into shared.ErrAlreadyExists.
func (r *GormFeeLedgerRepository) Create(ctx context.Context, ledger *fees.FeeLedger) error {
	model := models.FeeLedgerModelFromDomain(ledger)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save creates or updates a fee ledger without version checking
func (r *GormFeeLedgerRepository) Save(ctx context.Context, ledger *fees.FeeLedger) error {
	model := models.FeeLedgerModelFromDomain(ledger)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByStudentYear returns the student's ledger for an academic year
func (r *GormFeeLedgerRepository) FindByStudentYear(ctx context.Context, schoolID, studentID uuid.UUID, academicYear string) (*fees.FeeLedger, error) {
	var model models.FeeLedgerModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND student_id = ? AND academic_year = ?", schoolID, studentID, academicYear).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStudents returns the ledgers for a set of students in one academic year
func (r *GormFeeLedgerRepository) FindByStudents(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID, academicYear string) ([]fees.FeeLedger, error) {
	if len(studentIDs) == 0 {
		return []fees.FeeLedger{}, nil
	}

	var ledgerModels []models.FeeLedgerModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND student_id IN ? AND academic_year = ?", schoolID, studentIDs, academicYear).
		Find(&ledgerModels).Error; err != nil {
		return nil, err
	}

	ledgers := make([]fees.FeeLedger, len(ledgerModels))
	for i := range ledgerModels {
		ledgers[i] = *ledgerModels[i].ToDomain()
	}
	return ledgers, nil
}

// SaveWithLock saves the ledger with optimistic locking: the update only
// lands if the stored version still matches expectedVersion.
func (r *GormFeeLedgerRepository) SaveWithLock(ctx context.Context, ledger *fees.FeeLedger, expectedVersion int) error {
	model := models.FeeLedgerModelFromDomain(ledger)
	result := r.db.WithContext(ctx).
		Model(model).
		Where("id = ? AND version = ?", ledger.ID, expectedVersion).
		Updates(model)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// isUniqueViolation reports whether err is a unique constraint violation.
// Matching on SQLSTATE 23505 covers lib/pq and pgx error strings.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key value")
}
