package fees

import (
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// FeeStructure is the per-school, per-grade, per-year fee template: the
// monthly amount every ledger slot is seeded with, the day of the month the
// payment falls due, and the late-fee percentage accrued once it is overdue.
// The collection flow only ever reads the active structure.
type FeeStructure struct {
	shared.SchoolAggregateRoot
	Name           string          `json:"name"`
	Grade          int             `json:"grade"`
	AcademicYear   string          `json:"academic_year"`
	MonthlyAmount  decimal.Decimal `json:"monthly_amount"`
	DueDay         int             `json:"due_day"`
	LateFeePercent decimal.Decimal `json:"late_fee_percent"`
	Active         bool            `json:"active"`
	DeactivatedAt  *time.Time      `json:"deactivated_at,omitempty"`
}

// NewFeeStructure creates a new fee structure
func NewFeeStructure(
	schoolID uuid.UUID,
	name string,
	grade int,
	academicYear string,
	monthlyAmount valueobject.Money,
	dueDay int,
	lateFeePercent decimal.Decimal,
) (*FeeStructure, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Fee structure name cannot be empty")
	}
	if grade <= 0 {
		return nil, shared.NewDomainError("INVALID_GRADE", "Grade must be positive")
	}
	if _, err := ParseAcademicYear(academicYear); err != nil {
		return nil, shared.NewDomainError("INVALID_ACADEMIC_YEAR", err.Error())
	}
	if !monthlyAmount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Monthly amount must be positive")
	}
	if dueDay < 1 || dueDay > 31 {
		return nil, shared.NewDomainError("INVALID_DUE_DAY", "Due day must be between 1 and 31")
	}
	if lateFeePercent.IsNegative() {
		return nil, shared.NewDomainError("INVALID_LATE_FEE", "Late fee percentage cannot be negative")
	}

	return &FeeStructure{
		SchoolAggregateRoot: shared.NewSchoolAggregateRoot(schoolID),
		Name:                name,
		Grade:               grade,
		AcademicYear:        academicYear,
		MonthlyAmount:       monthlyAmount.Amount(),
		DueDay:              dueDay,
		LateFeePercent:      lateFeePercent,
		Active:              true,
	}, nil
}

// Deactivate retires the structure so a replacement can become active.
// Existing ledgers keep the amounts they were seeded with.
func (fs *FeeStructure) Deactivate() error {
	if !fs.Active {
		return shared.NewDomainError("INVALID_STATE", "Fee structure is already inactive")
	}
	now := time.Now()
	fs.Active = false
	fs.DeactivatedAt = &now
	fs.UpdatedAt = now
	fs.IncrementVersion()
	return nil
}

// AnnualAmount returns the contractual fee for the full academic year
func (fs *FeeStructure) AnnualAmount() decimal.Decimal {
	return fs.MonthlyAmount.Mul(decimal.NewFromInt(AcademicYearMonths))
}

// LateFeeFor returns the late fee accrued on one overdue slot
func (fs *FeeStructure) LateFeeFor(dueAmount decimal.Decimal) decimal.Decimal {
	if fs.LateFeePercent.IsZero() {
		return decimal.Zero
	}
	return dueAmount.Mul(fs.LateFeePercent).Div(decimal.NewFromInt(100)).Round(2)
}
