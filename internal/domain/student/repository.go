package student

import (
	"context"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/shared"
)

// Repository is the read-side port for student lookups. Collection flows
// resolve students by id, by free-text search, and by class roster.
type Repository interface {
	// FindByIDForSchool returns shared.ErrNotFound when the student does
	// not exist and shared.ErrForbidden when they belong to another school.
	FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*Student, error)
	// Search matches name or admission number, case-insensitively.
	Search(ctx context.Context, schoolID uuid.UUID, query string, filter shared.Filter) (shared.Paginated[Student], error)
	FindByGradeSection(ctx context.Context, schoolID uuid.UUID, grade int, section string) ([]Student, error)
}
