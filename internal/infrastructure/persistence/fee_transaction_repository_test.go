package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newMockTransactionRepository(t *testing.T) (*GormFeeTransactionRepository, sqlmock.Sqlmock, *sql.DB) {
	gormDB, mock, mockDB := newMockGormDB(t)
	return NewGormFeeTransactionRepository(gormDB, "FT"), mock, mockDB
}

func newTestPayment(t *testing.T, schoolID uuid.UUID) *fees.FeeTransaction {
	tx, err := fees.NewPaymentTransaction(
		schoolID, uuid.New(), uuid.New(), "2025-2026", 4,
		decimal.NewFromInt(1000), fees.PaymentMethodCash, uuid.New(),
	)
	require.NoError(t, err)
	return tx
}

func TestGormFeeTransactionRepository_Create(t *testing.T) {
	t.Run("assigns receipt number from the daily sequence", func(t *testing.T) {
		repo, mock, mockDB := newMockTransactionRepository(t)
		defer mockDB.Close()

		schoolID := uuid.New()
		tx := newTestPayment(t, schoolID)
		day := tx.CollectedAt.Format("20060102")

		mock.ExpectQuery(`INSERT INTO receipt_sequences .*ON CONFLICT \(school_id, day\).*RETURNING last_seq`).
			WithArgs(schoolID, day).
			WillReturnRows(sqlmock.NewRows([]string{"last_seq"}).AddRow(7))
		mock.ExpectExec(`INSERT INTO "fee_transactions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), tx)

		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("FT-%s-00007", day), tx.ReceiptNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("keeps a pre-assigned receipt number", func(t *testing.T) {
		repo, mock, mockDB := newMockTransactionRepository(t)
		defer mockDB.Close()

		tx := newTestPayment(t, uuid.New())
		tx.ReceiptNumber = "FT-20250405-00042"

		mock.ExpectExec(`INSERT INTO "fee_transactions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Create(context.Background(), tx)

		require.NoError(t, err)
		assert.Equal(t, "FT-20250405-00042", tx.ReceiptNumber)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFeeTransactionRepository_MarkReversed(t *testing.T) {
	t.Run("flips a completed payment to reversed", func(t *testing.T) {
		repo, mock, mockDB := newMockTransactionRepository(t)
		defer mockDB.Close()

		txID := uuid.New()

		mock.ExpectExec(`UPDATE "fee_transactions" SET .* WHERE id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkReversed(context.Background(), txID)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects a second reversal", func(t *testing.T) {
		repo, mock, mockDB := newMockTransactionRepository(t)
		defer mockDB.Close()

		mock.ExpectExec(`UPDATE "fee_transactions" SET .* WHERE id = \$\d+ AND status = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkReversed(context.Background(), uuid.New())

		require.Error(t, err)
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "ALREADY_REVERSED", domainErr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFeeTransactionRepository_FindByCollectorAndDateRange(t *testing.T) {
	t.Run("returns paginated history newest first", func(t *testing.T) {
		repo, mock, mockDB := newMockTransactionRepository(t)
		defer mockDB.Close()

		schoolID := uuid.New()
		collectorID := uuid.New()
		from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
		to := from.AddDate(0, 1, 0)

		mock.ExpectQuery(`SELECT count\(\*\) FROM "fee_transactions"`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

		rows := sqlmock.NewRows([]string{
			"id", "school_id", "ledger_id", "student_id", "academic_year", "month",
			"amount", "type", "method", "receipt_number", "collected_by", "collected_at", "status",
		}).AddRow(
			uuid.New(), schoolID, uuid.New(), uuid.New(), "2025-2026", 4,
			"1000", "PAYMENT", "CASH", "FT-20250405-00001", collectorID,
			time.Date(2025, 4, 5, 10, 0, 0, 0, time.UTC), "COMPLETED",
		)
		mock.ExpectQuery(`SELECT \* FROM "fee_transactions" WHERE .* ORDER BY collected_at desc LIMIT .*`).
			WillReturnRows(rows)

		filter := shared.DefaultFilter()
		page, err := repo.FindByCollectorAndDateRange(context.Background(), schoolID, collectorID, from, to, filter)

		require.NoError(t, err)
		assert.Equal(t, int64(1), page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "FT-20250405-00001", page.Items[0].ReceiptNumber)
		assert.Equal(t, collectorID, page.Items[0].CollectedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFeeTransactionRepository_SumByMethodForDay(t *testing.T) {
	t.Run("aggregates one collector's totals net of reversals", func(t *testing.T) {
		repo, mock, mockDB := newMockTransactionRepository(t)
		defer mockDB.Close()

		schoolID := uuid.New()
		collectorID := uuid.New()

		rows := sqlmock.NewRows([]string{"method", "count", "total"}).
			AddRow("CASH", 3, "2500").
			AddRow("ONLINE", 2, "500")

		mock.ExpectQuery(`SELECT method, count\(\*\) as count, sum\(case when type = \$\d+ then amount else -amount end\) as total FROM "fee_transactions" WHERE school_id = \$\d+ AND collected_by = \$\d+`).
			WillReturnRows(rows)

		totals, err := repo.SumByMethodForDay(context.Background(), schoolID, collectorID, time.Date(2025, 4, 5, 13, 30, 0, 0, time.UTC))

		require.NoError(t, err)
		require.Len(t, totals, 2)
		assert.Equal(t, fees.PaymentMethodCash, totals[0].Method)
		assert.Equal(t, int64(3), totals[0].Count)
		assert.True(t, totals[0].Total.Equal(decimal.NewFromInt(2500)))
		assert.Equal(t, fees.PaymentMethodOnline, totals[1].Method)
		assert.True(t, totals[1].Total.Equal(decimal.NewFromInt(500)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty day yields no totals", func(t *testing.T) {
		repo, mock, mockDB := newMockTransactionRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT method, count\(\*\) as count`).
			WillReturnRows(sqlmock.NewRows([]string{"method", "count", "total"}))

		totals, err := repo.SumByMethodForDay(context.Background(), uuid.New(), uuid.New(), time.Now())

		require.NoError(t, err)
		assert.Empty(t, totals)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormFeeTransactionRepository_FindByIDForSchool(t *testing.T) {
	t.Run("returns ErrNotFound for another school's transaction", func(t *testing.T) {
		repo, mock, mockDB := newMockTransactionRepository(t)
		defer mockDB.Close()

		mock.ExpectQuery(`SELECT \* FROM "fee_transactions" WHERE school_id = \$1 AND id = \$2`).
			WillReturnError(gorm.ErrRecordNotFound)

		tx, err := repo.FindByIDForSchool(context.Background(), uuid.New(), uuid.New())

		assert.Nil(t, tx)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
