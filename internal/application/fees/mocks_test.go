package fees

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/student"
	"github.com/stretchr/testify/mock"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockFeeStructureRepository is a mock implementation of fees.FeeStructureRepository
type MockFeeStructureRepository struct {
	mock.Mock
}

func (m *MockFeeStructureRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeStructure, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeStructure), args.Error(1)
}

func (m *MockFeeStructureRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fees.FeeStructure, error) {
	args := m.Called(ctx, schoolID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeStructure), args.Error(1)
}

func (m *MockFeeStructureRepository) Save(ctx context.Context, structure *fees.FeeStructure) error {
	args := m.Called(ctx, structure)
	return args.Error(0)
}

func (m *MockFeeStructureRepository) Create(ctx context.Context, structure *fees.FeeStructure) error {
	args := m.Called(ctx, structure)
	return args.Error(0)
}

func (m *MockFeeStructureRepository) FindActive(ctx context.Context, schoolID uuid.UUID, grade int, academicYear string) (*fees.FeeStructure, error) {
	args := m.Called(ctx, schoolID, grade, academicYear)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeStructure), args.Error(1)
}

func (m *MockFeeStructureRepository) FindByYear(ctx context.Context, schoolID uuid.UUID, academicYear string, filter shared.Filter) (shared.Paginated[fees.FeeStructure], error) {
	args := m.Called(ctx, schoolID, academicYear, filter)
	return args.Get(0).(shared.Paginated[fees.FeeStructure]), args.Error(1)
}

// MockFeeLedgerRepository is a mock implementation of fees.FeeLedgerRepository
type MockFeeLedgerRepository struct {
	mock.Mock
}

func (m *MockFeeLedgerRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeLedger, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeLedger), args.Error(1)
}

func (m *MockFeeLedgerRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fees.FeeLedger, error) {
	args := m.Called(ctx, schoolID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeLedger), args.Error(1)
}

func (m *MockFeeLedgerRepository) Save(ctx context.Context, ledger *fees.FeeLedger) error {
	args := m.Called(ctx, ledger)
	return args.Error(0)
}

func (m *MockFeeLedgerRepository) Create(ctx context.Context, ledger *fees.FeeLedger) error {
	args := m.Called(ctx, ledger)
	return args.Error(0)
}

func (m *MockFeeLedgerRepository) FindByStudentYear(ctx context.Context, schoolID, studentID uuid.UUID, academicYear string) (*fees.FeeLedger, error) {
	args := m.Called(ctx, schoolID, studentID, academicYear)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeLedger), args.Error(1)
}

func (m *MockFeeLedgerRepository) FindByStudents(ctx context.Context, schoolID uuid.UUID, studentIDs []uuid.UUID, academicYear string) ([]fees.FeeLedger, error) {
	args := m.Called(ctx, schoolID, studentIDs, academicYear)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fees.FeeLedger), args.Error(1)
}

func (m *MockFeeLedgerRepository) SaveWithLock(ctx context.Context, ledger *fees.FeeLedger, expectedVersion int) error {
	args := m.Called(ctx, ledger, expectedVersion)
	return args.Error(0)
}

// MockFeeTransactionRepository is a mock implementation of fees.FeeTransactionRepository
type MockFeeTransactionRepository struct {
	mock.Mock
}

func (m *MockFeeTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeTransaction), args.Error(1)
}

func (m *MockFeeTransactionRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fees.FeeTransaction, error) {
	args := m.Called(ctx, schoolID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fees.FeeTransaction), args.Error(1)
}

func (m *MockFeeTransactionRepository) Create(ctx context.Context, tx *fees.FeeTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockFeeTransactionRepository) MarkReversed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFeeTransactionRepository) FindByLedger(ctx context.Context, schoolID, ledgerID uuid.UUID) ([]fees.FeeTransaction, error) {
	args := m.Called(ctx, schoolID, ledgerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fees.FeeTransaction), args.Error(1)
}

func (m *MockFeeTransactionRepository) FindByCollectorAndDateRange(ctx context.Context, schoolID, collectorID uuid.UUID, from, to time.Time, filter shared.Filter) (shared.Paginated[fees.FeeTransaction], error) {
	args := m.Called(ctx, schoolID, collectorID, from, to, filter)
	return args.Get(0).(shared.Paginated[fees.FeeTransaction]), args.Error(1)
}

func (m *MockFeeTransactionRepository) SumByMethodForDay(ctx context.Context, schoolID, collectorID uuid.UUID, date time.Time) ([]fees.MethodTotal, error) {
	args := m.Called(ctx, schoolID, collectorID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fees.MethodTotal), args.Error(1)
}

// MockStudentRepository is a mock implementation of student.Repository
type MockStudentRepository struct {
	mock.Mock
}

func (m *MockStudentRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*student.Student, error) {
	args := m.Called(ctx, schoolID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*student.Student), args.Error(1)
}

func (m *MockStudentRepository) Search(ctx context.Context, schoolID uuid.UUID, query string, filter shared.Filter) (shared.Paginated[student.Student], error) {
	args := m.Called(ctx, schoolID, query, filter)
	return args.Get(0).(shared.Paginated[student.Student]), args.Error(1)
}

func (m *MockStudentRepository) FindByGradeSection(ctx context.Context, schoolID uuid.UUID, grade int, section string) ([]student.Student, error) {
	args := m.Called(ctx, schoolID, grade, section)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]student.Student), args.Error(1)
}

// stubTxRunner runs the commit closure directly against the given repos,
// standing in for a database transaction.
type stubTxRunner struct {
	repos fees.Repositories
}

func (r *stubTxRunner) InTransaction(ctx context.Context, fn func(ctx context.Context, repos fees.Repositories) error) error {
	return fn(ctx, r.repos)
}
