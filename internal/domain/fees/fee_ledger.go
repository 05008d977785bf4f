package fees

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the status of one monthly payment slot
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING" // Not yet fully paid
	PaymentStatusPaid    PaymentStatus = "PAID"    // paidAmount >= dueAmount
	PaymentStatusOverdue PaymentStatus = "OVERDUE" // Due date passed while pending and not waived
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusOverdue:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// LedgerStatus represents the overall status of a fee ledger
type LedgerStatus string

const (
	LedgerStatusPending       LedgerStatus = "PENDING"        // Nothing collected yet
	LedgerStatusPartiallyPaid LedgerStatus = "PARTIALLY_PAID" // Some but not all slots settled
	LedgerStatusPaid          LedgerStatus = "PAID"           // Every slot paid or waived
)

// IsValid checks if the status is a valid LedgerStatus
func (s LedgerStatus) IsValid() bool {
	switch s {
	case LedgerStatusPending, LedgerStatusPartiallyPaid, LedgerStatusPaid:
		return true
	}
	return false
}

// String returns the string representation of LedgerStatus
func (s LedgerStatus) String() string {
	return string(s)
}

// Waiver records a waiver decision on a monthly slot: who granted it, when,
// and why. A nil Waiver means the slot is collectable.
type Waiver struct {
	WaivedBy uuid.UUID `json:"waived_by"`
	WaivedAt time.Time `json:"waived_at"`
	Reason   string    `json:"reason"`
}

// MonthlyPayment is one month's obligation within a FeeLedger.
// It is a value object; exactly twelve exist per ledger, ordered by the
// academic-year sequence (April first), so slot index i always holds the
// month with sequence i+1.
type MonthlyPayment struct {
	Month      int             `json:"month"` // calendar month 1-12
	DueAmount  decimal.Decimal `json:"due_amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	LateFee    decimal.Decimal `json:"late_fee"`
	DueDate    time.Time       `json:"due_date"`
	Waiver     *Waiver         `json:"waiver,omitempty"`
	Status     PaymentStatus   `json:"status"`
}

// IsWaived returns true if the slot has a waiver on record
func (p *MonthlyPayment) IsWaived() bool {
	return p.Waiver != nil
}

// IsPaid returns true if the slot is fully paid
func (p *MonthlyPayment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// IsSettled returns true if the slot requires no further collection
func (p *MonthlyPayment) IsSettled() bool {
	return p.IsPaid() || p.IsWaived()
}

// ExpectedAmount returns what a collector should ask for on this slot:
// remaining due plus any accrued late fee.
func (p *MonthlyPayment) ExpectedAmount() decimal.Decimal {
	return p.DueAmount.Sub(p.PaidAmount).Add(p.LateFee)
}

// IsOverdue returns true if the due date has passed while the slot is
// still unsettled
func (p *MonthlyPayment) IsOverdue(asOf time.Time) bool {
	if p.IsSettled() {
		return false
	}
	return p.DueDate.Before(asOf)
}

// DaysOverdue returns the number of whole days past the due date (0 if not overdue)
func (p *MonthlyPayment) DaysOverdue(asOf time.Time) int {
	if !p.IsOverdue(asOf) {
		return 0
	}
	return int(asOf.Sub(p.DueDate).Hours() / 24)
}

// MonthlyPayments is the fixed 12-slot schedule, stored as JSONB
type MonthlyPayments []MonthlyPayment

// Value implements driver.Valuer interface for GORM to store as JSONB
func (p MonthlyPayments) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (p *MonthlyPayments) Scan(value interface{}) error {
	if value == nil {
		*p = MonthlyPayments{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan MonthlyPayments: unsupported type")
	}

	if len(bytes) == 0 {
		*p = MonthlyPayments{}
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// FeeLedger is the aggregate root for one student's payment schedule in one
// academic year. Exactly one exists per (student, academic year); it is
// created lazily from the active fee structure and never deleted.
type FeeLedger struct {
	shared.SchoolAggregateRoot
	StudentID       uuid.UUID       `json:"student_id"`
	AcademicYear    string          `json:"academic_year"`
	FeeStructureID  uuid.UUID       `json:"fee_structure_id"`
	TotalFeeAmount  decimal.Decimal `json:"total_fee_amount"`
	TotalPaidAmount decimal.Decimal `json:"total_paid_amount"`
	TotalDueAmount  decimal.Decimal `json:"total_due_amount"`
	MonthlyPayments MonthlyPayments `json:"monthly_payments"`
	Status          LedgerStatus    `json:"status"`
}

// NewFeeLedger seeds a ledger from the active fee structure: twelve slots
// from April through the following March, each due the structure's monthly
// amount on its due day. Totals satisfy
// totalFee == sum(due), totalPaid == 0, totalDue == totalFee.
func NewFeeLedger(schoolID, studentID uuid.UUID, structure *FeeStructure, academicYear string) (*FeeLedger, error) {
	if studentID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_STUDENT", "Student ID cannot be empty")
	}
	if structure == nil {
		return nil, shared.NewDomainError("INVALID_STRUCTURE", "Fee structure cannot be nil")
	}
	if structure.SchoolID != schoolID {
		return nil, shared.NewDomainError("INVALID_STRUCTURE", "Fee structure belongs to a different school")
	}
	startYear, err := ParseAcademicYear(academicYear)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_ACADEMIC_YEAR", err.Error())
	}

	slots := make(MonthlyPayments, 0, AcademicYearMonths)
	for seq := 1; seq <= AcademicYearMonths; seq++ {
		month := SequenceMonth(seq)
		slots = append(slots, MonthlyPayment{
			Month:      month,
			DueAmount:  structure.MonthlyAmount,
			PaidAmount: decimal.Zero,
			LateFee:    decimal.Zero,
			DueDate:    DueDateFor(startYear, month, structure.DueDay),
			Status:     PaymentStatusPending,
		})
	}

	total := structure.AnnualAmount()
	return &FeeLedger{
		SchoolAggregateRoot: shared.NewSchoolAggregateRoot(schoolID),
		StudentID:           studentID,
		AcademicYear:        academicYear,
		FeeStructureID:      structure.ID,
		TotalFeeAmount:      total,
		TotalPaidAmount:     decimal.Zero,
		TotalDueAmount:      total,
		MonthlyPayments:     slots,
		Status:              LedgerStatusPending,
	}, nil
}

// Slot returns the payment slot for a calendar month, or nil if the month
// is outside 1-12.
func (l *FeeLedger) Slot(month int) *MonthlyPayment {
	if month < 1 || month > 12 {
		return nil
	}
	idx := MonthSequence(month) - 1
	if idx >= len(l.MonthlyPayments) {
		return nil
	}
	return &l.MonthlyPayments[idx]
}

// UnsettledBefore counts slots that chronologically precede the given month
// in the April-first sequence and are neither paid nor waived. December
// precedes January here even though 12 > 1 numerically.
func (l *FeeLedger) UnsettledBefore(month int) int {
	target := MonthSequence(month)
	count := 0
	for i := range l.MonthlyPayments {
		p := &l.MonthlyPayments[i]
		if MonthSequence(p.Month) < target && !p.IsSettled() {
			count++
		}
	}
	return count
}

// NextUnpaidMonth returns the earliest unsettled slot in school-year order,
// or nil when the whole year is settled.
func (l *FeeLedger) NextUnpaidMonth() *MonthlyPayment {
	for i := range l.MonthlyPayments {
		if !l.MonthlyPayments[i].IsSettled() {
			return &l.MonthlyPayments[i]
		}
	}
	return nil
}

// ApplyPayment records a collection against one month's slot and recomputes
// slot status and ledger aggregates. Overpayment is allowed; the validator
// reports it as a warning before this is called.
func (l *FeeLedger) ApplyPayment(month int, amount decimal.Decimal, asOf time.Time) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	slot := l.Slot(month)
	if slot == nil {
		return shared.NewDomainError("INVALID_MONTH", "Invalid month selected")
	}
	if slot.IsPaid() {
		return shared.NewDomainError("ALREADY_PAID", fmt.Sprintf("Fee for month %d is already fully paid", month))
	}
	if slot.IsWaived() {
		return shared.NewDomainError("WAIVED", fmt.Sprintf("Fee for month %d has been waived", month))
	}

	slot.PaidAmount = slot.PaidAmount.Add(amount)
	l.refreshSlotStatus(slot, asOf)
	l.recomputeAggregates()

	l.UpdatedAt = time.Now()
	l.IncrementVersion()
	return nil
}

// ReversePayment backs a previously collected amount out of a slot. Used by
// the compensating-transaction flow; never called by normal collection.
func (l *FeeLedger) ReversePayment(month int, amount decimal.Decimal, asOf time.Time) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_AMOUNT", "Reversal amount must be positive")
	}
	slot := l.Slot(month)
	if slot == nil {
		return shared.NewDomainError("INVALID_MONTH", "Invalid month selected")
	}
	if slot.PaidAmount.LessThan(amount) {
		return shared.NewDomainError("INVALID_AMOUNT",
			fmt.Sprintf("Cannot reverse %s: only %s collected for month %d", amount.StringFixed(2), slot.PaidAmount.StringFixed(2), month))
	}

	slot.PaidAmount = slot.PaidAmount.Sub(amount)
	l.refreshSlotStatus(slot, asOf)
	l.recomputeAggregates()

	l.UpdatedAt = time.Now()
	l.IncrementVersion()
	return nil
}

// WaiveMonth records a waiver decision for one slot. The contractual due
// amount stays in the totals; the slot is simply excluded from collection
// and overdue checks from here on.
func (l *FeeLedger) WaiveMonth(month int, waivedBy uuid.UUID, reason string) error {
	slot := l.Slot(month)
	if slot == nil {
		return shared.NewDomainError("INVALID_MONTH", "Invalid month selected")
	}
	if slot.IsPaid() {
		return shared.NewDomainError("ALREADY_PAID", fmt.Sprintf("Fee for month %d is already fully paid", month))
	}
	if slot.IsWaived() {
		return shared.NewDomainError("ALREADY_WAIVED", fmt.Sprintf("Fee for month %d has already been waived", month))
	}
	if waivedBy == uuid.Nil {
		return shared.NewDomainError("INVALID_WAIVER", "Waiver requires the waiving user")
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_WAIVER", "Waiver reason is required")
	}

	slot.Waiver = &Waiver{
		WaivedBy: waivedBy,
		WaivedAt: time.Now(),
		Reason:   reason,
	}
	if slot.Status == PaymentStatusOverdue {
		slot.Status = PaymentStatusPending
	}
	l.recomputeAggregates()

	l.UpdatedAt = time.Now()
	l.IncrementVersion()
	return nil
}

// RefreshOverdue marks unsettled slots whose due date has passed as overdue
// and accrues the structure's late fee once per slot. Returns true if
// anything changed, in which case the version was bumped and the ledger
// needs saving.
func (l *FeeLedger) RefreshOverdue(asOf time.Time, structure *FeeStructure) bool {
	changed := false
	for i := range l.MonthlyPayments {
		slot := &l.MonthlyPayments[i]
		if !slot.IsOverdue(asOf) {
			continue
		}
		if slot.Status != PaymentStatusOverdue {
			slot.Status = PaymentStatusOverdue
			changed = true
		}
		if structure != nil && slot.LateFee.IsZero() {
			if fee := structure.LateFeeFor(slot.DueAmount); fee.IsPositive() {
				slot.LateFee = fee
				changed = true
			}
		}
	}
	if changed {
		l.UpdatedAt = time.Now()
		l.IncrementVersion()
	}
	return changed
}

// refreshSlotStatus recomputes a single slot's status after its paid amount moved
func (l *FeeLedger) refreshSlotStatus(slot *MonthlyPayment, asOf time.Time) {
	switch {
	case slot.PaidAmount.GreaterThanOrEqual(slot.DueAmount):
		slot.Status = PaymentStatusPaid
	case slot.IsOverdue(asOf):
		slot.Status = PaymentStatusOverdue
	default:
		slot.Status = PaymentStatusPending
	}
}

// recomputeAggregates re-derives the running totals and overall status from
// the twelve slots, keeping the §3 invariants.
func (l *FeeLedger) recomputeAggregates() {
	paid := decimal.Zero
	settled := 0
	for i := range l.MonthlyPayments {
		paid = paid.Add(l.MonthlyPayments[i].PaidAmount)
		if l.MonthlyPayments[i].IsSettled() {
			settled++
		}
	}
	l.TotalPaidAmount = paid
	l.TotalDueAmount = l.TotalFeeAmount.Sub(paid)

	switch {
	case settled == len(l.MonthlyPayments):
		l.Status = LedgerStatusPaid
	case paid.IsPositive():
		l.Status = LedgerStatusPartiallyPaid
	default:
		l.Status = LedgerStatusPending
	}
}

// CheckInvariants verifies the aggregate's internal consistency. It exists
// for tests and for the commit path's final sanity check.
func (l *FeeLedger) CheckInvariants() error {
	if len(l.MonthlyPayments) != AcademicYearMonths {
		return fmt.Errorf("ledger has %d slots, want %d", len(l.MonthlyPayments), AcademicYearMonths)
	}
	due := decimal.Zero
	paid := decimal.Zero
	for i := range l.MonthlyPayments {
		slot := &l.MonthlyPayments[i]
		if MonthSequence(slot.Month) != i+1 {
			return fmt.Errorf("slot %d holds month %d, out of sequence", i, slot.Month)
		}
		due = due.Add(slot.DueAmount)
		paid = paid.Add(slot.PaidAmount)
	}
	if !due.Equal(l.TotalFeeAmount) {
		return fmt.Errorf("totalFeeAmount %s != sum of slot due %s", l.TotalFeeAmount, due)
	}
	if !paid.Equal(l.TotalPaidAmount) {
		return fmt.Errorf("totalPaidAmount %s != sum of slot paid %s", l.TotalPaidAmount, paid)
	}
	if !l.TotalDueAmount.Equal(l.TotalFeeAmount.Sub(l.TotalPaidAmount)) {
		return fmt.Errorf("totalDueAmount %s != totalFee - totalPaid", l.TotalDueAmount)
	}
	return nil
}

// IsDefaulter returns true if any non-waived slot is overdue
func (l *FeeLedger) IsDefaulter(asOf time.Time) bool {
	for i := range l.MonthlyPayments {
		if l.MonthlyPayments[i].IsOverdue(asOf) {
			return true
		}
	}
	return false
}

// MonthsPaid returns how many of the twelve slots are fully paid
func (l *FeeLedger) MonthsPaid() int {
	count := 0
	for i := range l.MonthlyPayments {
		if l.MonthlyPayments[i].IsPaid() {
			count++
		}
	}
	return count
}
