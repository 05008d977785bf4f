package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// FeeStructureModel is the persistence model for the FeeStructure aggregate root.
type FeeStructureModel struct {
	SchoolAggregateModel
	Name           string          `gorm:"type:varchar(200);not null"`
	Grade          int             `gorm:"not null;index:idx_structure_school_grade_year,priority:2"`
	AcademicYear   string          `gorm:"type:varchar(9);not null;index:idx_structure_school_grade_year,priority:3"`
	MonthlyAmount  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	DueDay         int             `gorm:"not null"`
	LateFeePercent decimal.Decimal `gorm:"type:decimal(8,4);not null"`
	Active         bool            `gorm:"not null;default:true;index"`
	DeactivatedAt  *time.Time
}

// TableName returns the table name for GORM
func (FeeStructureModel) TableName() string {
	return "fee_structures"
}

// ToDomain converts the persistence model to a domain FeeStructure.
func (m *FeeStructureModel) ToDomain() *fees.FeeStructure {
	return &fees.FeeStructure{
		SchoolAggregateRoot: m.ToDomainSchoolAggregateRoot(),
		Name:                m.Name,
		Grade:               m.Grade,
		AcademicYear:        m.AcademicYear,
		MonthlyAmount:       m.MonthlyAmount,
		DueDay:              m.DueDay,
		LateFeePercent:      m.LateFeePercent,
		Active:              m.Active,
		DeactivatedAt:       m.DeactivatedAt,
	}
}

// FromDomain populates the persistence model from a domain FeeStructure.
func (m *FeeStructureModel) FromDomain(fs *fees.FeeStructure) {
	m.FromDomainSchoolAggregateRoot(fs.SchoolAggregateRoot)
	m.Name = fs.Name
	m.Grade = fs.Grade
	m.AcademicYear = fs.AcademicYear
	m.MonthlyAmount = fs.MonthlyAmount
	m.DueDay = fs.DueDay
	m.LateFeePercent = fs.LateFeePercent
	m.Active = fs.Active
	m.DeactivatedAt = fs.DeactivatedAt
}

// FeeStructureModelFromDomain creates a new persistence model from a domain FeeStructure.
func FeeStructureModelFromDomain(fs *fees.FeeStructure) *FeeStructureModel {
	m := &FeeStructureModel{}
	m.FromDomain(fs)
	return m
}

// FeeLedgerModel is the persistence model for the FeeLedger aggregate root.
// The twelve monthly slots are stored as one JSONB document; the ledger row
// is the unit of optimistic locking.
type FeeLedgerModel struct {
	SchoolAggregateModel
	StudentID       uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_school_student_year,priority:2"`
	AcademicYear    string               `gorm:"type:varchar(9);not null;uniqueIndex:idx_ledger_school_student_year,priority:3"`
	FeeStructureID  uuid.UUID            `gorm:"type:uuid;not null;index"`
	TotalFeeAmount  decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	TotalPaidAmount decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	TotalDueAmount  decimal.Decimal      `gorm:"type:decimal(18,4);not null;index"`
	MonthlyPayments fees.MonthlyPayments `gorm:"type:jsonb;not null;default:'[]'"`
	Status          fees.LedgerStatus    `gorm:"type:varchar(20);not null;default:'PENDING';index"`
}

// TableName returns the table name for GORM
func (FeeLedgerModel) TableName() string {
	return "fee_ledgers"
}

// ToDomain converts the persistence model to a domain FeeLedger.
func (m *FeeLedgerModel) ToDomain() *fees.FeeLedger {
	return &fees.FeeLedger{
		SchoolAggregateRoot: m.ToDomainSchoolAggregateRoot(),
		StudentID:           m.StudentID,
		AcademicYear:        m.AcademicYear,
		FeeStructureID:      m.FeeStructureID,
		TotalFeeAmount:      m.TotalFeeAmount,
		TotalPaidAmount:     m.TotalPaidAmount,
		TotalDueAmount:      m.TotalDueAmount,
		MonthlyPayments:     m.MonthlyPayments,
		Status:              m.Status,
	}
}

// FromDomain populates the persistence model from a domain FeeLedger.
func (m *FeeLedgerModel) FromDomain(l *fees.FeeLedger) {
	m.FromDomainSchoolAggregateRoot(l.SchoolAggregateRoot)
	m.StudentID = l.StudentID
	m.AcademicYear = l.AcademicYear
	m.FeeStructureID = l.FeeStructureID
	m.TotalFeeAmount = l.TotalFeeAmount
	m.TotalPaidAmount = l.TotalPaidAmount
	m.TotalDueAmount = l.TotalDueAmount
	m.MonthlyPayments = l.MonthlyPayments
	m.Status = l.Status
}

// FeeLedgerModelFromDomain creates a new persistence model from a domain FeeLedger.
func FeeLedgerModelFromDomain(l *fees.FeeLedger) *FeeLedgerModel {
	m := &FeeLedgerModel{}
	m.FromDomain(l)
	return m
}

// FeeTransactionModel is the persistence model for the append-only fee
// transaction log. Rows are never updated except to flip Status to REVERSED.
type FeeTransactionModel struct {
	BaseModel
	SchoolID      uuid.UUID              `gorm:"type:uuid;not null;index:idx_tx_school_collected,priority:1"`
	LedgerID      uuid.UUID              `gorm:"type:uuid;not null;index"`
	StudentID     uuid.UUID              `gorm:"type:uuid;not null;index"`
	AcademicYear  string                 `gorm:"type:varchar(9);not null"`
	Month         int                    `gorm:"not null"`
	Amount        decimal.Decimal        `gorm:"type:decimal(18,4);not null"`
	Type          fees.TransactionType   `gorm:"type:varchar(20);not null;index"`
	Method        fees.PaymentMethod     `gorm:"type:varchar(20);not null;index"`
	ReceiptNumber string                 `gorm:"type:varchar(50);not null;uniqueIndex:idx_tx_school_receipt,priority:2"`
	Reference     string                 `gorm:"type:varchar(200)"`
	Remarks       string                 `gorm:"type:text"`
	CollectedBy   uuid.UUID              `gorm:"type:uuid;not null;index"`
	CollectedAt   time.Time              `gorm:"not null;index:idx_tx_school_collected,priority:2"`
	OriginIP      string                 `gorm:"type:varchar(45)"`
	OriginDevice  string                 `gorm:"type:varchar(255)"`
	ReversesID    *uuid.UUID             `gorm:"type:uuid;index"`
	Status        fees.TransactionStatus `gorm:"type:varchar(20);not null;default:'COMPLETED'"`
}

// TableName returns the table name for GORM
func (FeeTransactionModel) TableName() string {
	return "fee_transactions"
}

// ToDomain converts the persistence model to a domain FeeTransaction.
func (m *FeeTransactionModel) ToDomain() *fees.FeeTransaction {
	return &fees.FeeTransaction{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		SchoolID:      m.SchoolID,
		LedgerID:      m.LedgerID,
		StudentID:     m.StudentID,
		AcademicYear:  m.AcademicYear,
		Month:         m.Month,
		Amount:        m.Amount,
		Type:          m.Type,
		Method:        m.Method,
		ReceiptNumber: m.ReceiptNumber,
		Reference:     m.Reference,
		Remarks:       m.Remarks,
		CollectedBy:   m.CollectedBy,
		CollectedAt:   m.CollectedAt,
		OriginIP:      m.OriginIP,
		OriginDevice:  m.OriginDevice,
		ReversesID:    m.ReversesID,
		Status:        m.Status,
	}
}

// FromDomain populates the persistence model from a domain FeeTransaction.
func (m *FeeTransactionModel) FromDomain(t *fees.FeeTransaction) {
	m.FromDomainBaseEntity(t.BaseEntity)
	m.SchoolID = t.SchoolID
	m.LedgerID = t.LedgerID
	m.StudentID = t.StudentID
	m.AcademicYear = t.AcademicYear
	m.Month = t.Month
	m.Amount = t.Amount
	m.Type = t.Type
	m.Method = t.Method
	m.ReceiptNumber = t.ReceiptNumber
	m.Reference = t.Reference
	m.Remarks = t.Remarks
	m.CollectedBy = t.CollectedBy
	m.CollectedAt = t.CollectedAt
	m.OriginIP = t.OriginIP
	m.OriginDevice = t.OriginDevice
	m.ReversesID = t.ReversesID
	m.Status = t.Status
}

// FeeTransactionModelFromDomain creates a new persistence model from a domain FeeTransaction.
func FeeTransactionModelFromDomain(t *fees.FeeTransaction) *FeeTransactionModel {
	m := &FeeTransactionModel{}
	m.FromDomain(t)
	return m
}

// ReceiptSequenceModel backs the per-school daily receipt counter. The row
// is bumped with an upsert inside the collection transaction so concurrent
// collectors never draw the same number.
type ReceiptSequenceModel struct {
	SchoolID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Day      string    `gorm:"type:varchar(8);primaryKey"` // YYYYMMDD
	LastSeq  int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for GORM
func (ReceiptSequenceModel) TableName() string {
	return "receipt_sequences"
}
