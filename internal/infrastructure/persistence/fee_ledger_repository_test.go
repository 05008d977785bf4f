package persistence

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newMockGormDB creates a GORM connection backed by sqlmock
func newMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func newMockLedgerRepository(t *testing.T) (*GormFeeLedgerRepository, sqlmock.Sqlmock, *sql.DB) {
	gormDB, mock, mockDB := newMockGormDB(t)
	return NewGormFeeLedgerRepository(gormDB), mock, mockDB
}

// newTestLedger seeds a ledger from a throwaway structure
func newTestLedger(t *testing.T, schoolID uuid.UUID) *fees.FeeLedger {
	structure, err := fees.NewFeeStructure(
		schoolID, "Grade 5 Standard", 5, "2025-2026",
		valueobject.NewMoneyINR(decimal.NewFromInt(1000)), 10, decimal.NewFromInt(2),
	)
	require.NoError(t, err)

	ledger, err := fees.NewFeeLedger(schoolID, uuid.New(), structure, "2025-2026")
	require.NoError(t, err)
	return ledger
}

func TestGormFeeLedgerRepository_FindByStudentYear(t *testing.T) {
	t.Run("finds existing ledger", func(t *testing.T) {
		repo, mock, mockDB := newMockLedgerRepository(t)
		defer mockDB.Close()

		ledgerID := uuid.New()
		schoolID := uuid.New()
		studentID := uuid.New()

		rows := sqlmock.NewRows([]string{
			"id", "school_id", "student_id", "academic_year", "fee_structure_id",
			"total_fee_amount", "total_paid_amount", "total_due_amount",
			"monthly_payments", "status", "version",
		}).AddRow(
			ledgerID, schoolID, studentID, "2025-2026", uuid.New(),
			"12000", "0", "12000", []byte("[]"), "PENDING", 1,
		)

		mock.ExpectQuery(`SELECT \* FROM "fee_ledgers" WHERE school_id = \$1 AND student_id = \$2 AND academic_year = \$3 ORDER BY .* LIMIT .*`).
			WithArgs(schoolID, studentID, "2025-2026", 1).
			WillReturnRows(rows)

		ledger, err := repo.FindByStudentYear(context.Background(), schoolID, studentID, "2025-2026")

		require.NoError(t, err)
		assert.Equal(t, ledgerID, ledger.ID)
		assert.Equal(t, studentID, ledger.StudentID)
		assert.Equal(t, fees.LedgerStatusPending, ledger.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns ErrNotFound for missing ledger", func(t *testing.T) {
		repo, mock, mockDB := newMockLedgerRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "fee_ledgers"`).
			WillReturnError(gorm.ErrRecordNotFound)

		ledger, err := repo.FindByStudentYear(context.Background(), uuid.New(), uuid.New(), "2025-2026")

		assert.Nil(t, ledger)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFeeLedgerRepository_Create(t *testing.T) {
	t.Run("maps unique violation to ErrAlreadyExists", func(t *testing.T) {
		repo, mock, mockDB := newMockLedgerRepository(t)
		defer mockDB.Close()

		schoolID := uuid.New()
		ledger := newTestLedger(t, schoolID)

		mock.ExpectExec(`INSERT INTO "fee_ledgers"`).
			WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_ledger_school_student_year" (SQLSTATE 23505)`))

		err := repo.Create(context.Background(), ledger)

		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inserts new ledger", func(t *testing.T) {
		repo, mock, mockDB := newMockLedgerRepository(t)
		defer mockDB.Close()

		schoolID := uuid.New()
		ledger := newTestLedger(t, schoolID)

		mock.ExpectExec(`INSERT INTO "fee_ledgers"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), ledger)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFeeLedgerRepository_SaveWithLock(t *testing.T) {
	t.Run("succeeds when stored version matches", func(t *testing.T) {
		repo, mock, mockDB := newMockLedgerRepository(t)
		defer mockDB.Close()

		schoolID := uuid.New()
		ledger := newTestLedger(t, schoolID)
		ledger.Version = 2

		mock.ExpectExec(`UPDATE "fee_ledgers" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.SaveWithLock(context.Background(), ledger, 1)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns concurrency conflict when version moved", func(t *testing.T) {
		repo, mock, mockDB := newMockLedgerRepository(t)
		defer mockDB.Close()

		schoolID := uuid.New()
		ledger := newTestLedger(t, schoolID)
		ledger.Version = 2

		mock.ExpectExec(`UPDATE "fee_ledgers" SET .* WHERE id = \$\d+ AND version = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SaveWithLock(context.Background(), ledger, 1)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFeeLedgerRepository_FindByStudents(t *testing.T) {
	t.Run("empty student set short-circuits without a query", func(t *testing.T) {
		repo, mock, mockDB := newMockLedgerRepository(t)
		defer mockDB.Close()

		ledgers, err := repo.FindByStudents(context.Background(), uuid.New(), nil, "2025-2026")

		require.NoError(t, err)
		assert.Empty(t, ledgers)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(errors.New("SQLSTATE 23505")))
	assert.True(t, isUniqueViolation(errors.New(`duplicate key value violates unique constraint "x"`)))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}
