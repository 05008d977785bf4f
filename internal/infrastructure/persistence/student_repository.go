package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/student"
	"github.com/schoolerp/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormStudentRepository implements student.Repository using GORM
type GormStudentRepository struct {
	db *gorm.DB
}

// NewGormStudentRepository creates a new GormStudentRepository
func NewGormStudentRepository(db *gorm.DB) *GormStudentRepository {
	return &GormStudentRepository{db: db}
}

// FindByIDForSchool finds a student by ID for a specific school. A student
// enrolled under a different school surfaces ErrForbidden, not ErrNotFound,
// so cross-tenant access is distinguishable from a missing record.
func (r *GormStudentRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*student.Student, error) {
	var model models.StudentModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if model.SchoolID != schoolID {
		return nil, shared.ErrForbidden
	}
	return model.ToDomain(), nil
}

// Search matches students by name or admission number, case-insensitively
func (r *GormStudentRepository) Search(ctx context.Context, schoolID uuid.UUID, query string, filter shared.Filter) (shared.Paginated[student.Student], error) {
	base := r.db.WithContext(ctx).Model(&models.StudentModel{}).
		Where("school_id = ?", schoolID)

	if q := strings.TrimSpace(query); q != "" {
		pattern := "%" + q + "%"
		base = base.Where(
			"first_name ILIKE ? OR last_name ILIKE ? OR (first_name || ' ' || last_name) ILIKE ? OR admission_number ILIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return shared.Paginated[student.Student]{}, err
	}

	var studentModels []models.StudentModel
	if err := base.
		Order("grade asc, section asc, roll_number asc").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&studentModels).Error; err != nil {
		return shared.Paginated[student.Student]{}, err
	}

	students := make([]student.Student, len(studentModels))
	for i := range studentModels {
		students[i] = *studentModels[i].ToDomain()
	}
	return shared.NewPaginated(students, total, filter.Page, filter.PageSize), nil
}

// FindByGradeSection returns the class roster ordered by roll number
func (r *GormStudentRepository) FindByGradeSection(ctx context.Context, schoolID uuid.UUID, grade int, section string) ([]student.Student, error) {
	var studentModels []models.StudentModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND grade = ? AND section = ?", schoolID, grade, section).
		Order("roll_number asc").
		Find(&studentModels).Error; err != nil {
		return nil, err
	}

	students := make([]student.Student, len(studentModels))
	for i := range studentModels {
		students[i] = *studentModels[i].ToDomain()
	}
	return students, nil
}
