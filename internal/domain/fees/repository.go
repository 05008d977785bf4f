package fees

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// FeeStructureRepository persists fee structures
type FeeStructureRepository interface {
	shared.SchoolRepository[FeeStructure]
	Create(ctx context.Context, structure *FeeStructure) error
	// FindActive returns the single active structure for a grade and
	// academic year, or shared.ErrNotFound.
	FindActive(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*FeeStructure, error)
	FindByYear(ctx context.Context, schoolID uuid.UUID, academicYear string, filter shared.Filter) (shared.Paginated[FeeStructure], error)
}

// FeeLedgerRepository persists fee ledgers
type FeeLedgerRepository interface {
	shared.SchoolRepository[FeeLedger]
	Create(ctx context.Context, ledger *FeeLedger) error
	// FindByStudentYear returns the student's ledger for an academic year,
	// or shared.ErrNotFound when none has been created yet.
	FindByStudentYear(ctx context.Context, schoolID, studentID uuid.UUID, academicYear string) (*FeeLedger, error)
	FindByStudents(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID, academicYear string) ([]FeeLedger, error)
	// SaveWithLock persists the ledger only if the stored version still
	// matches expectedVersion; returns shared.ErrConcurrencyConflict otherwise.
	SaveWithLock(ctx context.Context, ledger *FeeLedger, expectedVersion int) error
}

// MethodTotal is one payment method's share of a day's collection
type MethodTotal struct {
	Method PaymentMethod   `json:"method"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// FeeTransactionRepository persists the append-only transaction log
type FeeTransactionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*FeeTransaction, error)
	FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*FeeTransaction, error)
	Create(ctx context.Context, tx *FeeTransaction) error
	// MarkReversed flips a payment's status; the row is otherwise immutable.
	MarkReversed(ctx context.Context, id uuid.UUID) error
	FindByLedger(ctx context.Context, schoolID, ledgerID uuid.UUID) ([]FeeTransaction, error)
	FindByCollectorAndDateRange(ctx context.Context, schoolID, collectorID uuid.UUID, from, to time.Time, filter shared.Filter) (shared.Paginated[FeeTransaction], error)
	// SumByMethodForDay aggregates one collector's payments (net of
	// reversals) per method for the calendar day containing date.
	SumByMethodForDay(ctx context.Context, schoolID, collectorID uuid.UUID, date time.Time) ([]MethodTotal, error)
}

// Repositories bundles the stores a commit closure may touch
type Repositories struct {
	Ledgers      FeeLedgerRepository
	Transactions FeeTransactionRepository
}

// TxRunner executes a closure atomically: every repository call made through
// the passed Repositories either commits as one unit or rolls back together.
// The ledger update and the transaction append must share one unit of work.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
