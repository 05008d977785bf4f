package fees

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/shared/valueobject"
	"github.com/schoolerp/backend/internal/domain/student"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type collectionFixture struct {
	schoolID    uuid.UUID
	studentID   uuid.UUID
	collectorID uuid.UUID
	structure   *fees.FeeStructure
	student     *student.Student

	structureRepo *MockFeeStructureRepository
	ledgerRepo    *MockFeeLedgerRepository
	txRepo        *MockFeeTransactionRepository
	studentRepo   *MockStudentRepository
	svc           *CollectionService
}

// Early April: nothing is overdue yet with a due day of 10
var testClock = time.Date(2025, time.April, 5, 10, 0, 0, 0, time.UTC)

func newCollectionFixture(t *testing.T) *collectionFixture {
	t.Helper()

	f := &collectionFixture{
		schoolID:      uuid.New(),
		studentID:     uuid.New(),
		collectorID:   uuid.New(),
		structureRepo: new(MockFeeStructureRepository),
		ledgerRepo:    new(MockFeeLedgerRepository),
		txRepo:        new(MockFeeTransactionRepository),
		studentRepo:   new(MockStudentRepository),
	}

	structure, err := fees.NewFeeStructure(
		f.schoolID, "Grade 5 Monthly", 5, "2025-2026",
		valueobject.NewMoneyINRFromFloat(1000), 10, decimal.NewFromInt(2),
	)
	require.NoError(t, err)
	f.structure = structure

	f.student = &student.Student{
		SchoolAggregateRoot: shared.NewSchoolAggregateRoot(f.schoolID),
		AdmissionNumber:     "ADM-1042",
		FirstName:           "Asha",
		LastName:            "Verma",
		Grade:               5,
		Section:             "A",
		RollNumber:          12,
		Status:              student.StatusActive,
	}
	f.student.ID = f.studentID

	f.svc = NewCollectionService(
		f.structureRepo, f.ledgerRepo, f.txRepo, f.studentRepo,
		&stubTxRunner{repos: fees.Repositories{Ledgers: f.ledgerRepo, Transactions: f.txRepo}},
		WithClock(func() time.Time { return testClock }),
	)
	return f
}

func (f *collectionFixture) newLedger(t *testing.T) *fees.FeeLedger {
	t.Helper()
	ledger, err := fees.NewFeeLedger(f.schoolID, f.studentID, f.structure, "2025-2026")
	require.NoError(t, err)
	return ledger
}

func (f *collectionFixture) expectStudentAndStructure() {
	f.studentRepo.On("FindByIDForSchool", mock.Anything, f.schoolID, f.studentID).Return(f.student, nil)
	f.structureRepo.On("FindActive", mock.Anything, f.schoolID, 5, "2025-2026").Return(f.structure, nil)
}

func TestGetOrCreateLedgerCreatesOnFirstTouch(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").
		Return(nil, shared.ErrNotFound).Once()
	f.ledgerRepo.On("Create", mock.Anything, mock.AnythingOfType("*fees.FeeLedger")).Return(nil).Once()

	resp, err := f.svc.GetOrCreateLedger(context.Background(), f.schoolID, f.studentID, "2025-2026")

	require.NoError(t, err)
	assert.Len(t, resp.MonthlyPayments, 12)
	assert.Equal(t, "PENDING", resp.Status)
	assert.True(t, resp.TotalFeeAmount.Equal(decimal.NewFromInt(12000)))
	f.ledgerRepo.AssertExpectations(t)
}

func TestGetOrCreateLedgerResolvesCreateRace(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	existing := f.newLedger(t)
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").
		Return(nil, shared.ErrNotFound).Once()
	f.ledgerRepo.On("Create", mock.Anything, mock.AnythingOfType("*fees.FeeLedger")).
		Return(shared.ErrAlreadyExists).Once()
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").
		Return(existing, nil).Once()

	resp, err := f.svc.GetOrCreateLedger(context.Background(), f.schoolID, f.studentID, "2025-2026")

	require.NoError(t, err)
	assert.Equal(t, existing.ID, resp.ID)
	f.ledgerRepo.AssertExpectations(t)
}

func TestGetOrCreateLedgerWithoutActiveStructure(t *testing.T) {
	f := newCollectionFixture(t)
	f.studentRepo.On("FindByIDForSchool", mock.Anything, f.schoolID, f.studentID).Return(f.student, nil)
	f.structureRepo.On("FindActive", mock.Anything, f.schoolID, 5, "2025-2026").
		Return(nil, shared.ErrNotFound)

	_, err := f.svc.GetOrCreateLedger(context.Background(), f.schoolID, f.studentID, "2025-2026")

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestCollectFeeFullPayment(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	ledger := f.newLedger(t)
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").Return(ledger, nil)
	f.ledgerRepo.On("SaveWithLock", mock.Anything, ledger, 1).Return(nil).Once()
	f.txRepo.On("Create", mock.Anything, mock.AnythingOfType("*fees.FeeTransaction")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*fees.FeeTransaction).ReceiptNumber = "FT-20250405-00001"
		}).Return(nil).Once()

	resp, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        4,
		Amount:       "1000",
		Method:       "CASH",
	})

	require.NoError(t, err)
	assert.Equal(t, "FT-20250405-00001", resp.ReceiptNumber)
	assert.Empty(t, resp.Warnings)
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "PARTIALLY_PAID", resp.Ledger.Status)
	assert.True(t, resp.Ledger.TotalPaidAmount.Equal(decimal.NewFromInt(1000)))
	f.ledgerRepo.AssertExpectations(t)
	f.txRepo.AssertExpectations(t)
}

func TestCollectFeePartialPaymentCarriesWarning(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	ledger := f.newLedger(t)
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").Return(ledger, nil)
	f.ledgerRepo.On("SaveWithLock", mock.Anything, ledger, 1).Return(nil).Once()
	f.txRepo.On("Create", mock.Anything, mock.AnythingOfType("*fees.FeeTransaction")).Return(nil).Once()

	resp, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        4,
		Amount:       "400",
		Method:       "ONLINE",
	})

	require.NoError(t, err)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "Partial payment")
	assert.Equal(t, "PENDING", resp.Ledger.MonthlyPayments[0].Status)
}

func TestCollectFeeRejectsPaidMonth(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	ledger := f.newLedger(t)
	require.NoError(t, ledger.ApplyPayment(4, decimal.NewFromInt(1000), testClock))
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").Return(ledger, nil)

	_, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        4,
		Amount:       "1000",
		Method:       "CASH",
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
	f.ledgerRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything, mock.Anything)
	f.txRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCollectFeeRejectsInactiveStudent(t *testing.T) {
	f := newCollectionFixture(t)
	f.student.Status = student.StatusTransferred
	f.studentRepo.On("FindByIDForSchool", mock.Anything, f.schoolID, f.studentID).Return(f.student, nil)

	_, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        4,
		Amount:       "1000",
		Method:       "CASH",
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
}

func TestCollectFeeRejectsBadInput(t *testing.T) {
	f := newCollectionFixture(t)

	_, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID: f.studentID, AcademicYear: "2025-2026", Month: 4, Amount: "not-a-number", Method: "CASH",
	})
	assert.Error(t, err)

	_, err = f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID: f.studentID, AcademicYear: "2025-2026", Month: 4, Amount: "1000", Method: "BARTER",
	})
	assert.Error(t, err)
}

func TestCollectFeeRetriesOnceOnVersionConflict(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	// Fresh ledger state per read: pre-check, first attempt, retry
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").
		Return(f.newLedger(t), nil).Once()
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").
		Return(f.newLedger(t), nil).Once()
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").
		Return(f.newLedger(t), nil).Once()

	f.ledgerRepo.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*fees.FeeLedger"), 1).
		Return(shared.ErrConcurrencyConflict).Once()
	f.ledgerRepo.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*fees.FeeLedger"), 1).
		Return(nil).Once()
	f.txRepo.On("Create", mock.Anything, mock.AnythingOfType("*fees.FeeTransaction")).Return(nil).Once()

	resp, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        4,
		Amount:       "1000",
		Method:       "CASH",
	})

	require.NoError(t, err)
	assert.NotNil(t, resp)
	f.ledgerRepo.AssertExpectations(t)
	f.txRepo.AssertNumberOfCalls(t, "Create", 1)
}

func TestCollectFeeSurfacesSecondConflict(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").
		Return(f.newLedger(t), nil).Times(3)
	f.ledgerRepo.On("SaveWithLock", mock.Anything, mock.AnythingOfType("*fees.FeeLedger"), 1).
		Return(shared.ErrConcurrencyConflict).Times(2)

	_, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        4,
		Amount:       "1000",
		Method:       "CASH",
	})

	assert.True(t, errors.Is(err, shared.ErrConcurrencyConflict))
	f.txRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestValidateCollectionSurfacesWarnings(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	ledger := f.newLedger(t)
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").Return(ledger, nil)

	result, err := f.svc.ValidateCollection(context.Background(), f.schoolID, ValidateCollectionRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        6,
		Amount:       "400",
	})

	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 2, "partial payment plus skipped months")
}

func TestWaiveMonth(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	ledger := f.newLedger(t)
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").Return(ledger, nil)
	f.ledgerRepo.On("SaveWithLock", mock.Anything, ledger, 1).Return(nil).Once()

	admin := uuid.New()
	resp, err := f.svc.WaiveMonth(context.Background(), f.schoolID, admin, WaiveMonthRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        6,
		Reason:       "sibling concession",
	})

	require.NoError(t, err)
	june := resp.MonthlyPayments[fees.MonthSequence(6)-1]
	assert.True(t, june.Waived)
	require.NotNil(t, june.WaivedBy)
	assert.Equal(t, admin, *june.WaivedBy)
	assert.Equal(t, "sibling concession", june.Reason)
	f.ledgerRepo.AssertExpectations(t)
}

func TestReverseTransaction(t *testing.T) {
	f := newCollectionFixture(t)

	ledger := f.newLedger(t)
	require.NoError(t, ledger.ApplyPayment(4, decimal.NewFromInt(1000), testClock))

	original, err := fees.NewPaymentTransaction(
		f.schoolID, ledger.ID, f.studentID, "2025-2026", 4,
		decimal.NewFromInt(1000), fees.PaymentMethodCash, f.collectorID,
	)
	require.NoError(t, err)
	original.ReceiptNumber = "FT-20250405-00001"

	f.txRepo.On("FindByIDForSchool", mock.Anything, f.schoolID, original.ID).Return(original, nil).Once()
	f.ledgerRepo.On("FindByIDForSchool", mock.Anything, f.schoolID, ledger.ID).Return(ledger, nil).Once()
	f.ledgerRepo.On("SaveWithLock", mock.Anything, ledger, 2).Return(nil).Once()
	f.txRepo.On("MarkReversed", mock.Anything, original.ID).Return(nil).Once()
	f.txRepo.On("Create", mock.Anything, mock.AnythingOfType("*fees.FeeTransaction")).
		Run(func(args mock.Arguments) {
			rev := args.Get(1).(*fees.FeeTransaction)
			assert.Equal(t, fees.TransactionTypeReversal, rev.Type)
			require.NotNil(t, rev.ReversesID)
			assert.Equal(t, original.ID, *rev.ReversesID)
		}).Return(nil).Once()

	resp, err := f.svc.ReverseTransaction(context.Background(), f.schoolID, uuid.New(), ReverseTransactionRequest{
		TransactionID: original.ID,
		Reason:        "collected against wrong student",
	})

	require.NoError(t, err)
	assert.True(t, resp.Ledger.TotalPaidAmount.IsZero())
	assert.Equal(t, "PENDING", resp.Ledger.Status)
	f.txRepo.AssertExpectations(t)
	f.ledgerRepo.AssertExpectations(t)
}

func TestCollectFeeJoinsAllBlockingReasons(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	ledger := f.newLedger(t)
	require.NoError(t, ledger.WaiveMonth(5, uuid.New(), "sibling concession"))
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").Return(ledger, nil)

	_, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        5,
		Amount:       "0",
		Method:       "CASH",
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "VALIDATION_FAILED", domainErr.Code)
	assert.Equal(t, "Fee for May has been waived; Amount must be greater than zero", domainErr.Message)
	f.txRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCollectFeeRecordsOrigin(t *testing.T) {
	f := newCollectionFixture(t)
	f.expectStudentAndStructure()

	ledger := f.newLedger(t)
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").Return(ledger, nil)
	f.ledgerRepo.On("SaveWithLock", mock.Anything, ledger, 1).Return(nil).Once()
	f.txRepo.On("Create", mock.Anything, mock.AnythingOfType("*fees.FeeTransaction")).
		Run(func(args mock.Arguments) {
			tx := args.Get(1).(*fees.FeeTransaction)
			assert.Equal(t, "203.0.113.7", tx.OriginIP)
			assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)", tx.OriginDevice)
		}).Return(nil).Once()

	_, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        4,
		Amount:       "1000",
		Method:       "CASH",
		OriginIP:     "203.0.113.7",
		OriginDevice: "Mozilla/5.0 (X11; Linux x86_64)",
	})

	require.NoError(t, err)
	f.txRepo.AssertExpectations(t)
}

func TestCollectFeeForbidsOtherSchoolsStudent(t *testing.T) {
	f := newCollectionFixture(t)
	f.studentRepo.On("FindByIDForSchool", mock.Anything, f.schoolID, f.studentID).
		Return(nil, shared.ErrForbidden)

	_, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID:    f.studentID,
		AcademicYear: "2025-2026",
		Month:        4,
		Amount:       "1000",
		Method:       "CASH",
	})

	assert.True(t, errors.Is(err, shared.ErrForbidden))
	f.ledgerRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything, mock.Anything)
	f.txRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCollectFeeDefaultsAcademicYear(t *testing.T) {
	f := newCollectionFixture(t)
	// The mocks only match "2025-2026", the year containing the test clock
	f.expectStudentAndStructure()

	ledger := f.newLedger(t)
	f.ledgerRepo.On("FindByStudentYear", mock.Anything, f.schoolID, f.studentID, "2025-2026").Return(ledger, nil)
	f.ledgerRepo.On("SaveWithLock", mock.Anything, ledger, 1).Return(nil).Once()
	f.txRepo.On("Create", mock.Anything, mock.AnythingOfType("*fees.FeeTransaction")).Return(nil).Once()

	resp, err := f.svc.CollectFee(context.Background(), f.schoolID, f.collectorID, CollectFeeRequest{
		StudentID: f.studentID,
		Month:     4,
		Amount:    "1000",
		Method:    "CASH",
	})

	require.NoError(t, err)
	assert.NotNil(t, resp)
	f.ledgerRepo.AssertExpectations(t)
}

func TestReverseTransactionRejectsDoubleReversal(t *testing.T) {
	f := newCollectionFixture(t)

	original, err := fees.NewPaymentTransaction(
		f.schoolID, uuid.New(), f.studentID, "2025-2026", 4,
		decimal.NewFromInt(1000), fees.PaymentMethodCash, f.collectorID,
	)
	require.NoError(t, err)
	require.NoError(t, original.MarkReversed())

	f.txRepo.On("FindByIDForSchool", mock.Anything, f.schoolID, original.ID).Return(original, nil)

	_, err = f.svc.ReverseTransaction(context.Background(), f.schoolID, uuid.New(), ReverseTransactionRequest{
		TransactionID: original.ID,
		Reason:        "again",
	})

	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "ALREADY_REVERSED", domainErr.Code)
	f.ledgerRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything, mock.Anything)
}
