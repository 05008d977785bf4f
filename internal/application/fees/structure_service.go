package fees

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/shared/valueobject"
	"github.com/schoolerp/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
)

// StructureService manages the fee structure catalog: the per-grade
// templates that ledgers draw their monthly amount, due day, and late-fee
// percentage from. Only one structure may be active per (grade, academic
// year); a replacement requires deactivating the current one first so
// existing ledgers keep the amounts they were seeded with.
type StructureService struct {
	structureRepo fees.FeeStructureRepository
}

// NewStructureService creates a new StructureService
func NewStructureService(structureRepo fees.FeeStructureRepository) *StructureService {
	return &StructureService{structureRepo: structureRepo}
}

// CreateStructureRequest is the input for publishing a fee structure
type CreateStructureRequest struct {
	Name           string `json:"name" binding:"required"`
	Grade          int    `json:"grade" binding:"required,min=1,max=12"`
	AcademicYear   string `json:"academic_year" binding:"required,academicyear"`
	MonthlyAmount  string `json:"monthly_amount" binding:"required"`
	DueDay         int    `json:"due_day" binding:"required,min=1,max=31"`
	LateFeePercent string `json:"late_fee_percent,omitempty"`
}

// StructureResponse represents a fee structure in API responses
type StructureResponse struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Grade          int             `json:"grade"`
	AcademicYear   string          `json:"academic_year"`
	MonthlyAmount  decimal.Decimal `json:"monthly_amount"`
	DueDay         int             `json:"due_day"`
	LateFeePercent decimal.Decimal `json:"late_fee_percent"`
	Active         bool            `json:"active"`
	DeactivatedAt  *time.Time      `json:"deactivated_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateStructure publishes a new fee structure for a grade and academic
// year. Fails with ALREADY_EXISTS while another structure is still active
// for the same pair.
func (s *StructureService) CreateStructure(ctx context.Context, schoolID uuid.UUID, req CreateStructureRequest) (*StructureResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_structure", "create",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrAcademicYear, req.AcademicYear),
	)
	defer span.End()

	monthly, err := valueobject.NewMoneyINRFromString(req.MonthlyAmount)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Invalid monthly amount format")
	}
	lateFee := decimal.Zero
	if req.LateFeePercent != "" {
		lateFee, err = decimal.NewFromString(req.LateFeePercent)
		if err != nil {
			return nil, shared.NewDomainError("VALIDATION_FAILED", "Invalid late fee percentage format")
		}
	}

	_, err = s.structureRepo.FindActive(ctx, schoolID, req.Grade, req.AcademicYear)
	if err == nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS",
			"An active fee structure already exists for this grade and academic year")
	}
	if !errors.Is(err, shared.ErrNotFound) {
		telemetry.RecordError(span, err)
		return nil, err
	}

	structure, err := fees.NewFeeStructure(schoolID, req.Name, req.Grade, req.AcademicYear, monthly, req.DueDay, lateFee)
	if err != nil {
		return nil, err
	}
	if err := s.structureRepo.Create(ctx, structure); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return toStructureResponse(structure), nil
}

// ListStructures returns all structures for an academic year, paginated,
// active and retired alike.
func (s *StructureService) ListStructures(ctx context.Context, schoolID uuid.UUID, academicYear string, filter shared.Filter) (shared.Paginated[StructureResponse], error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_structure", "list",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrAcademicYear, academicYear),
	)
	defer span.End()

	page, err := s.structureRepo.FindByYear(ctx, schoolID, academicYear, filter)
	if err != nil {
		telemetry.RecordError(span, err)
		return shared.Paginated[StructureResponse]{}, err
	}

	items := make([]StructureResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, *toStructureResponse(&page.Items[i]))
	}
	return shared.NewPaginated(items, page.Total, page.Page, page.PageSize), nil
}

// DeactivateStructure retires a structure so a replacement can be published
func (s *StructureService) DeactivateStructure(ctx context.Context, schoolID, structureID uuid.UUID) (*StructureResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_structure", "deactivate",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
	)
	defer span.End()

	structure, err := s.structureRepo.FindByIDForSchool(ctx, schoolID, structureID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := structure.Deactivate(); err != nil {
		return nil, err
	}
	if err := s.structureRepo.Save(ctx, structure); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return toStructureResponse(structure), nil
}

func toStructureResponse(fs *fees.FeeStructure) *StructureResponse {
	return &StructureResponse{
		ID:             fs.ID,
		Name:           fs.Name,
		Grade:          fs.Grade,
		AcademicYear:   fs.AcademicYear,
		MonthlyAmount:  fs.MonthlyAmount,
		DueDay:         fs.DueDay,
		LateFeePercent: fs.LateFeePercent,
		Active:         fs.Active,
		DeactivatedAt:  fs.DeactivatedAt,
		CreatedAt:      fs.CreatedAt,
		UpdatedAt:      fs.UpdatedAt,
	}
}
