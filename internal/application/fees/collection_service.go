package fees

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/student"
	"github.com/schoolerp/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
)

// CollectionService coordinates fee collection: ledger provisioning,
// pre-collection validation, and the atomic collect/waive/reverse flows.
type CollectionService struct {
	structureRepo fees.FeeStructureRepository
	ledgerRepo    fees.FeeLedgerRepository
	txRepo        fees.FeeTransactionRepository
	studentRepo   student.Repository
	txRunner      fees.TxRunner
	validator     *fees.CollectionValidator
	now           func() time.Time
}

// CollectionServiceOption is a functional option for configuring CollectionService
type CollectionServiceOption func(*CollectionService)

// WithClock overrides the service clock, used by tests
func WithClock(now func() time.Time) CollectionServiceOption {
	return func(s *CollectionService) {
		s.now = now
	}
}

// NewCollectionService creates a new CollectionService
func NewCollectionService(
	structureRepo fees.FeeStructureRepository,
	ledgerRepo fees.FeeLedgerRepository,
	txRepo fees.FeeTransactionRepository,
	studentRepo student.Repository,
	txRunner fees.TxRunner,
	opts ...CollectionServiceOption,
) *CollectionService {
	s := &CollectionService{
		structureRepo: structureRepo,
		ledgerRepo:    ledgerRepo,
		txRepo:        txRepo,
		studentRepo:   studentRepo,
		txRunner:      txRunner,
		validator:     fees.NewCollectionValidator(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MonthlyPaymentResponse represents one schedule slot in API responses
type MonthlyPaymentResponse struct {
	Month      int             `json:"month"`
	MonthName  string          `json:"month_name"`
	DueAmount  decimal.Decimal `json:"due_amount"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	LateFee    decimal.Decimal `json:"late_fee"`
	DueDate    time.Time       `json:"due_date"`
	Status     string          `json:"status"`
	Waived     bool            `json:"waived"`
	WaivedBy   *uuid.UUID      `json:"waived_by,omitempty"`
	WaiveDate  *time.Time      `json:"waive_date,omitempty"`
	Reason     string          `json:"waive_reason,omitempty"`
}

// LedgerResponse represents a fee ledger in API responses
type LedgerResponse struct {
	ID              uuid.UUID                `json:"id"`
	StudentID       uuid.UUID                `json:"student_id"`
	AcademicYear    string                   `json:"academic_year"`
	FeeStructureID  uuid.UUID                `json:"fee_structure_id"`
	TotalFeeAmount  decimal.Decimal          `json:"total_fee_amount"`
	TotalPaidAmount decimal.Decimal          `json:"total_paid_amount"`
	TotalDueAmount  decimal.Decimal          `json:"total_due_amount"`
	Status          string                   `json:"status"`
	MonthlyPayments []MonthlyPaymentResponse `json:"monthly_payments"`
	Version         int                      `json:"version"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

// CollectFeeRequest is the input for a fee collection. AcademicYear defaults
// to the year containing today when omitted; OriginIP and OriginDevice are
// the audit trail of where the request came from, filled in by the HTTP
// layer when the caller does not supply them.
type CollectFeeRequest struct {
	StudentID    uuid.UUID `json:"student_id" binding:"required"`
	AcademicYear string    `json:"academic_year" binding:"omitempty,academicyear"`
	Month        int       `json:"month" binding:"required"`
	Amount       string    `json:"amount" binding:"required"`
	Method       string    `json:"payment_method" binding:"required,paymentmethod"`
	OriginIP     string    `json:"origin_ip,omitempty"`
	OriginDevice string    `json:"origin_device,omitempty"`
	Reference    string    `json:"reference,omitempty"`
	Remarks      string    `json:"remarks,omitempty"`
}

// CollectFeeResponse is the outcome of a successful collection
type CollectFeeResponse struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	ReceiptNumber string          `json:"receipt_number"`
	StudentID     uuid.UUID       `json:"student_id"`
	Month         int             `json:"month"`
	Amount        decimal.Decimal `json:"amount"`
	Method        string          `json:"payment_method"`
	CollectedAt   time.Time       `json:"collected_at"`
	Warnings      []string        `json:"warnings,omitempty"`
	Ledger        *LedgerResponse `json:"ledger"`
}

// ValidateCollectionRequest is the input for pre-collection validation
type ValidateCollectionRequest struct {
	StudentID    uuid.UUID `json:"student_id" binding:"required"`
	AcademicYear string    `json:"academic_year" binding:"omitempty,academicyear"`
	Month        int       `json:"month" binding:"required"`
	Amount       string    `json:"amount" binding:"required"`
}

// WaiveMonthRequest is the input for waiving one month's fee
type WaiveMonthRequest struct {
	StudentID    uuid.UUID `json:"student_id" binding:"required"`
	AcademicYear string    `json:"academic_year" binding:"omitempty,academicyear"`
	Month        int       `json:"month" binding:"required"`
	Reason       string    `json:"reason" binding:"required"`
}

// ReverseTransactionRequest is the input for reversing a recorded payment
type ReverseTransactionRequest struct {
	TransactionID uuid.UUID `json:"transaction_id" binding:"required"`
	Reason        string    `json:"reason" binding:"required"`
}

// GetOrCreateLedger returns the student's ledger for an academic year,
// creating it from the active fee structure on first touch. Overdue slots
// are refreshed before the ledger is returned.
func (s *CollectionService) GetOrCreateLedger(ctx context.Context, schoolID, studentID uuid.UUID, academicYear string) (*LedgerResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_ledger", "get_or_create",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrStudentID, studentID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrAcademicYear, academicYear),
	)
	defer span.End()

	ledger, structure, err := s.loadOrCreateLedger(ctx, schoolID, studentID, academicYear)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	loadedVersion := ledger.GetVersion()
	if ledger.RefreshOverdue(s.now(), structure) {
		// Best effort: a concurrent writer already refreshed it, reload
		if err := s.ledgerRepo.SaveWithLock(ctx, ledger, loadedVersion); err != nil {
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				telemetry.RecordError(span, err)
				return nil, err
			}
			ledger, err = s.ledgerRepo.FindByStudentYear(ctx, schoolID, studentID, academicYear)
			if err != nil {
				telemetry.RecordError(span, err)
				return nil, err
			}
		}
	}

	return toLedgerResponse(ledger), nil
}

// ValidateCollection runs the pre-collection checks without touching any
// state. The frontend calls this to surface errors and warnings before the
// collector confirms.
func (s *CollectionService) ValidateCollection(ctx context.Context, schoolID uuid.UUID, req ValidateCollectionRequest) (*fees.ValidationResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_collection", "validate",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrStudentID, req.StudentID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrMonth, req.Month),
	)
	defer span.End()

	req.AcademicYear = s.resolveYear(req.AcademicYear)
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Invalid amount format")
	}

	ledger, structure, err := s.loadOrCreateLedger(ctx, schoolID, req.StudentID, req.AcademicYear)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	asOf := s.now()
	ledger.RefreshOverdue(asOf, structure)
	result := s.validator.Validate(ledger, req.Month, amount, asOf)
	return &result, nil
}

// CollectFee records a payment atomically: the ledger update and the
// transaction log entry commit as one unit under optimistic locking. On a
// version conflict the whole attempt is retried once against fresh state;
// a second conflict surfaces CONCURRENCY_CONFLICT to the caller.
func (s *CollectionService) CollectFee(ctx context.Context, schoolID, collectorID uuid.UUID, req CollectFeeRequest) (*CollectFeeResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_collection", "collect",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrStudentID, req.StudentID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrMonth, req.Month),
		telemetry.WithAttribute(telemetry.SpanAttrCollectorID, collectorID.String()),
	)
	defer span.End()

	req.AcademicYear = s.resolveYear(req.AcademicYear)
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Invalid amount format")
	}
	method := fees.PaymentMethod(req.Method)
	if !method.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_FAILED", "Invalid payment method")
	}

	st, err := s.studentRepo.FindByIDForSchool(ctx, schoolID, req.StudentID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if !st.IsActive() {
		return nil, shared.NewDomainError("INVALID_STATE", "Student is not active")
	}

	// Ensure the ledger exists before entering the commit transaction
	if _, _, err := s.loadOrCreateLedger(ctx, schoolID, req.StudentID, req.AcademicYear); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	structure, err := s.activeStructure(ctx, schoolID, st.Grade, req.AcademicYear)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var resp *CollectFeeResponse
	commit := func(ctx context.Context, repos fees.Repositories) error {
		ledger, err := repos.Ledgers.FindByStudentYear(ctx, schoolID, req.StudentID, req.AcademicYear)
		if err != nil {
			return err
		}
		loadedVersion := ledger.GetVersion()

		asOf := s.now()
		ledger.RefreshOverdue(asOf, structure)
		result := s.validator.Validate(ledger, req.Month, amount, asOf)
		if !result.Valid {
			return shared.NewDomainError("VALIDATION_FAILED", result.FatalReason())
		}

		if err := ledger.ApplyPayment(req.Month, amount, asOf); err != nil {
			return err
		}
		if err := repos.Ledgers.SaveWithLock(ctx, ledger, loadedVersion); err != nil {
			return err
		}

		tx, err := fees.NewPaymentTransaction(schoolID, ledger.ID, req.StudentID, req.AcademicYear, req.Month, amount, method, collectorID)
		if err != nil {
			return err
		}
		tx.WithReference(req.Reference).WithRemarks(req.Remarks).WithOrigin(req.OriginIP, req.OriginDevice)
		if err := repos.Transactions.Create(ctx, tx); err != nil {
			return err
		}

		resp = &CollectFeeResponse{
			TransactionID: tx.ID,
			ReceiptNumber: tx.ReceiptNumber,
			StudentID:     req.StudentID,
			Month:         req.Month,
			Amount:        amount,
			Method:        string(method),
			CollectedAt:   tx.CollectedAt,
			Warnings:      result.Warnings,
			Ledger:        toLedgerResponse(ledger),
		}
		return nil
	}

	err = s.txRunner.InTransaction(ctx, commit)
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		telemetry.AddEvent(span, "optimistic_lock_retry")
		err = s.txRunner.InTransaction(ctx, commit)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrReceiptNumber, resp.ReceiptNumber,
		telemetry.SpanAttrTransactionID, resp.TransactionID.String(),
	)
	return resp, nil
}

// WaiveMonth records a waiver for one month's fee. The waiver carries the
// granting user, timestamp, and reason; the slot keeps its contractual due
// amount but stops being collectable.
func (s *CollectionService) WaiveMonth(ctx context.Context, schoolID, waivedBy uuid.UUID, req WaiveMonthRequest) (*LedgerResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_collection", "waive",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrStudentID, req.StudentID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrMonth, req.Month),
	)
	defer span.End()

	req.AcademicYear = s.resolveYear(req.AcademicYear)
	if _, _, err := s.loadOrCreateLedger(ctx, schoolID, req.StudentID, req.AcademicYear); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var resp *LedgerResponse
	commit := func(ctx context.Context, repos fees.Repositories) error {
		ledger, err := repos.Ledgers.FindByStudentYear(ctx, schoolID, req.StudentID, req.AcademicYear)
		if err != nil {
			return err
		}
		loadedVersion := ledger.GetVersion()

		if err := ledger.WaiveMonth(req.Month, waivedBy, req.Reason); err != nil {
			return err
		}
		if err := repos.Ledgers.SaveWithLock(ctx, ledger, loadedVersion); err != nil {
			return err
		}
		resp = toLedgerResponse(ledger)
		return nil
	}

	err := s.txRunner.InTransaction(ctx, commit)
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		err = s.txRunner.InTransaction(ctx, commit)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return resp, nil
}

// ReverseTransaction compensates a recorded payment: the original row is
// flagged reversed, a REVERSAL entry is appended, and the ledger slot's paid
// amount is backed out, all in one unit of work.
func (s *CollectionService) ReverseTransaction(ctx context.Context, schoolID, reversedBy uuid.UUID, req ReverseTransactionRequest) (*CollectFeeResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "fee_collection", "reverse",
		telemetry.WithAttribute(telemetry.SpanAttrSchoolID, schoolID.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTransactionID, req.TransactionID.String()),
	)
	defer span.End()

	var resp *CollectFeeResponse
	commit := func(ctx context.Context, repos fees.Repositories) error {
		original, err := repos.Transactions.FindByIDForSchool(ctx, schoolID, req.TransactionID)
		if err != nil {
			return err
		}

		reversal, err := fees.NewReversalTransaction(original, reversedBy, req.Reason)
		if err != nil {
			return err
		}

		ledger, err := repos.Ledgers.FindByIDForSchool(ctx, schoolID, original.LedgerID)
		if err != nil {
			return err
		}
		loadedVersion := ledger.GetVersion()

		if err := ledger.ReversePayment(original.Month, original.Amount, s.now()); err != nil {
			return err
		}
		if err := repos.Ledgers.SaveWithLock(ctx, ledger, loadedVersion); err != nil {
			return err
		}
		if err := repos.Transactions.MarkReversed(ctx, original.ID); err != nil {
			return err
		}
		if err := repos.Transactions.Create(ctx, reversal); err != nil {
			return err
		}

		resp = &CollectFeeResponse{
			TransactionID: reversal.ID,
			ReceiptNumber: reversal.ReceiptNumber,
			StudentID:     reversal.StudentID,
			Month:         reversal.Month,
			Amount:        reversal.Amount,
			Method:        string(reversal.Method),
			CollectedAt:   reversal.CollectedAt,
			Ledger:        toLedgerResponse(ledger),
		}
		return nil
	}

	err := s.txRunner.InTransaction(ctx, commit)
	if errors.Is(err, shared.ErrConcurrencyConflict) {
		err = s.txRunner.InTransaction(ctx, commit)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return resp, nil
}

// resolveYear falls back to the academic year containing today when the
// caller did not name one.
func (s *CollectionService) resolveYear(academicYear string) string {
	if academicYear == "" {
		return fees.ResolveAcademicYear(s.now())
	}
	return academicYear
}

// loadOrCreateLedger resolves the student's ledger, seeding it from the
// active fee structure on first touch. A create race with another collector
// is resolved by re-reading.
func (s *CollectionService) loadOrCreateLedger(ctx context.Context, schoolID, studentID uuid.UUID, academicYear string) (*fees.FeeLedger, *fees.FeeStructure, error) {
	st, err := s.studentRepo.FindByIDForSchool(ctx, schoolID, studentID)
	if err != nil {
		return nil, nil, err
	}

	structure, err := s.activeStructure(ctx, schoolID, st.Grade, academicYear)
	if err != nil {
		return nil, nil, err
	}

	ledger, err := s.ledgerRepo.FindByStudentYear(ctx, schoolID, studentID, academicYear)
	if err == nil {
		return ledger, structure, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, nil, err
	}

	ledger, err = fees.NewFeeLedger(schoolID, studentID, structure, academicYear)
	if err != nil {
		return nil, nil, err
	}
	if err := s.ledgerRepo.Create(ctx, ledger); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			ledger, err = s.ledgerRepo.FindByStudentYear(ctx, schoolID, studentID, academicYear)
			if err != nil {
				return nil, nil, err
			}
			return ledger, structure, nil
		}
		return nil, nil, err
	}
	return ledger, structure, nil
}

func (s *CollectionService) activeStructure(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*fees.FeeStructure, error) {
	structure, err := s.structureRepo.FindActive(ctx, schoolID, grade, academicYear)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("NOT_FOUND", "No active fee structure for this grade and academic year")
		}
		return nil, err
	}
	return structure, nil
}

func toLedgerResponse(l *fees.FeeLedger) *LedgerResponse {
	slots := make([]MonthlyPaymentResponse, 0, len(l.MonthlyPayments))
	for i := range l.MonthlyPayments {
		p := &l.MonthlyPayments[i]
		slot := MonthlyPaymentResponse{
			Month:      p.Month,
			MonthName:  time.Month(p.Month).String(),
			DueAmount:  p.DueAmount,
			PaidAmount: p.PaidAmount,
			LateFee:    p.LateFee,
			DueDate:    p.DueDate,
			Status:     string(p.Status),
			Waived:     p.IsWaived(),
		}
		if p.Waiver != nil {
			waivedBy := p.Waiver.WaivedBy
			waivedAt := p.Waiver.WaivedAt
			slot.WaivedBy = &waivedBy
			slot.WaiveDate = &waivedAt
			slot.Reason = p.Waiver.Reason
		}
		slots = append(slots, slot)
	}

	return &LedgerResponse{
		ID:              l.ID,
		StudentID:       l.StudentID,
		AcademicYear:    l.AcademicYear,
		FeeStructureID:  l.FeeStructureID,
		TotalFeeAmount:  l.TotalFeeAmount,
		TotalPaidAmount: l.TotalPaidAmount,
		TotalDueAmount:  l.TotalDueAmount,
		Status:          string(l.Status),
		MonthlyPayments: slots,
		Version:         l.GetVersion(),
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}
