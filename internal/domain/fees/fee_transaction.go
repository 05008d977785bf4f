package fees

import (
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransactionType distinguishes collections from compensating reversals
type TransactionType string

const (
	TransactionTypePayment  TransactionType = "PAYMENT"
	TransactionTypeReversal TransactionType = "REVERSAL"
)

// IsValid checks if the type is a valid TransactionType
func (t TransactionType) IsValid() bool {
	return t == TransactionTypePayment || t == TransactionTypeReversal
}

// PaymentMethod represents how the money was received
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
	PaymentMethodOnline       PaymentMethod = "ONLINE"
)

// IsValid checks if the method is a valid PaymentMethod
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCheque, PaymentMethodOnline:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// TransactionStatus represents the lifecycle state of a fee transaction.
// Transactions are append-only: a completed payment never mutates except to
// be flagged reversed when a compensating REVERSAL is recorded against it.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusReversed  TransactionStatus = "REVERSED"
)

// IsValid checks if the status is a valid TransactionStatus
func (s TransactionStatus) IsValid() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusReversed
}

// FeeTransaction is one immutable entry in the collection log. The receipt
// number is assigned inside the commit transaction so the daily sequence
// never skips or repeats.
type FeeTransaction struct {
	shared.BaseEntity
	SchoolID      uuid.UUID       `json:"school_id"`
	LedgerID      uuid.UUID       `json:"ledger_id"`
	StudentID     uuid.UUID       `json:"student_id"`
	AcademicYear  string          `json:"academic_year"`
	Month         int             `json:"month"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TransactionType `json:"type"`
	Method        PaymentMethod   `json:"method"`
	ReceiptNumber string          `json:"receipt_number"`
	Reference     string          `json:"reference,omitempty"`
	Remarks       string          `json:"remarks,omitempty"`
	CollectedBy   uuid.UUID       `json:"collected_by"`
	CollectedAt   time.Time       `json:"collected_at"`
	// OriginIP and OriginDevice record where the collection request came
	// from; empty when the channel supplied no origin metadata.
	OriginIP     string `json:"origin_ip,omitempty"`
	OriginDevice string `json:"origin_device,omitempty"`
	// ReversesID links a REVERSAL back to the payment it compensates.
	ReversesID *uuid.UUID        `json:"reverses_id,omitempty"`
	Status     TransactionStatus `json:"status"`
}

// NewPaymentTransaction records a completed collection against a ledger slot
func NewPaymentTransaction(
	schoolID, ledgerID, studentID uuid.UUID,
	academicYear string,
	month int,
	amount decimal.Decimal,
	method PaymentMethod,
	collectedBy uuid.UUID,
) (*FeeTransaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("INVALID_METHOD", "Invalid payment method")
	}
	if month < 1 || month > 12 {
		return nil, shared.NewDomainError("INVALID_MONTH", "Invalid month selected")
	}
	if collectedBy == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COLLECTOR", "Collector ID cannot be empty")
	}

	return &FeeTransaction{
		BaseEntity:   shared.NewBaseEntity(),
		SchoolID:     schoolID,
		LedgerID:     ledgerID,
		StudentID:    studentID,
		AcademicYear: academicYear,
		Month:        month,
		Amount:       amount,
		Type:         TransactionTypePayment,
		Method:       method,
		CollectedBy:  collectedBy,
		CollectedAt:  time.Now(),
		Status:       TransactionStatusCompleted,
	}, nil
}

// NewReversalTransaction records a compensating entry against a prior
// payment. The original is never rewritten; the pair together nets to zero.
func NewReversalTransaction(original *FeeTransaction, reversedBy uuid.UUID, reason string) (*FeeTransaction, error) {
	if original == nil {
		return nil, shared.NewDomainError("INVALID_TRANSACTION", "Original transaction cannot be nil")
	}
	if original.Type != TransactionTypePayment {
		return nil, shared.NewDomainError("INVALID_STATE", "Only payments can be reversed")
	}
	if original.Status == TransactionStatusReversed {
		return nil, shared.NewDomainError("ALREADY_REVERSED", "Transaction has already been reversed")
	}
	if reversedBy == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COLLECTOR", "Reversing user ID cannot be empty")
	}
	if reason == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Reversal reason is required")
	}

	originalID := original.ID
	return &FeeTransaction{
		BaseEntity:   shared.NewBaseEntity(),
		SchoolID:     original.SchoolID,
		LedgerID:     original.LedgerID,
		StudentID:    original.StudentID,
		AcademicYear: original.AcademicYear,
		Month:        original.Month,
		Amount:       original.Amount,
		Type:         TransactionTypeReversal,
		Method:       original.Method,
		Remarks:      reason,
		CollectedBy:  reversedBy,
		CollectedAt:  time.Now(),
		ReversesID:   &originalID,
		Status:       TransactionStatusCompleted,
	}, nil
}

// WithReference attaches an external reference (cheque number, UTR, gateway id)
func (t *FeeTransaction) WithReference(ref string) *FeeTransaction {
	t.Reference = ref
	return t
}

// WithRemarks attaches free-form collector remarks
func (t *FeeTransaction) WithRemarks(remarks string) *FeeTransaction {
	t.Remarks = remarks
	return t
}

// WithOrigin attaches the request's origin IP and device to the audit block
func (t *FeeTransaction) WithOrigin(ip, device string) *FeeTransaction {
	t.OriginIP = ip
	t.OriginDevice = device
	return t
}

// MarkReversed flags a payment as compensated by a reversal
func (t *FeeTransaction) MarkReversed() error {
	if t.Type != TransactionTypePayment {
		return shared.NewDomainError("INVALID_STATE", "Only payments can be marked reversed")
	}
	if t.Status == TransactionStatusReversed {
		return shared.NewDomainError("ALREADY_REVERSED", "Transaction has already been reversed")
	}
	t.Status = TransactionStatusReversed
	t.UpdatedAt = time.Now()
	return nil
}

// IsReversed returns true if a compensating reversal exists for this payment
func (t *FeeTransaction) IsReversed() bool {
	return t.Status == TransactionStatusReversed
}
