package shared

import (
	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
}

// BaseAggregateRoot provides common fields for aggregate roots
type BaseAggregateRoot struct {
	BaseEntity
	Version int `gorm:"not null;default:1"`
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion increments the version number
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
}

// NewBaseAggregateRoot creates a new base aggregate root
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity: NewBaseEntity(),
		Version:    1,
	}
}

// SchoolAggregateRoot extends BaseAggregateRoot with school scoping.
// Every financial record belongs to exactly one school; cross-school
// access is rejected at the application layer.
type SchoolAggregateRoot struct {
	BaseAggregateRoot
	SchoolID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	CreatedBy *uuid.UUID `gorm:"type:uuid;index"`
}

// NewSchoolAggregateRoot creates a new school-scoped aggregate root
func NewSchoolAggregateRoot(schoolID uuid.UUID) SchoolAggregateRoot {
	return SchoolAggregateRoot{
		BaseAggregateRoot: NewBaseAggregateRoot(),
		SchoolID:          schoolID,
	}
}

// SetCreatedBy sets the creator user ID
func (s *SchoolAggregateRoot) SetCreatedBy(userID uuid.UUID) {
	s.CreatedBy = &userID
}
