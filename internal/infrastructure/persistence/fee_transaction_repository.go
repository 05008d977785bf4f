package persistence

import (
	"context"
	"errors"
	"fmt"

	"time"

	"github.com/google/uuid"
	"github.com/schoolerp/backend/internal/domain/fees"
	"github.com/schoolerp/backend/internal/domain/shared"
	"github.com/schoolerp/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GormFeeTransactionRepository implements fees.FeeTransactionRepository using GORM
type GormFeeTransactionRepository struct {
	db            *gorm.DB
	receiptPrefix string
}

// NewGormFeeTransactionRepository creates a new GormFeeTransactionRepository
func NewGormFeeTransactionRepository(db *gorm.DB, receiptPrefix string) *GormFeeTransactionRepository {
	if receiptPrefix == "" {
		receiptPrefix = "FT"
	}
	return &GormFeeTransactionRepository{db: db, receiptPrefix: receiptPrefix}
}

// FindByID finds a fee transaction by its ID
func (r *GormFeeTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*fees.FeeTransaction, error) {
	var model models.FeeTransactionModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForSchool finds a fee transaction by ID for a specific school
func (r *GormFeeTransactionRepository) FindByIDForSchool(ctx context.Context, schoolID, id uuid.UUID) (*fees.FeeTransaction, error) {
	var model models.FeeTransactionModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND id = ?", schoolID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create appends a transaction to the log, assigning its receipt number
// from the per-school daily sequence. Must run inside the same database
// transaction as the ledger update so the number is never burned on a
// rolled-back collection.
func (r *GormFeeTransactionRepository) Create(ctx context.Context, tx *fees.FeeTransaction) error {
	if tx.ReceiptNumber == "" {
		receipt, err := r.nextReceiptNumber(ctx, tx.SchoolID, tx.CollectedAt)
		if err != nil {
			return err
		}
		tx.ReceiptNumber = receipt
	}
	model := models.FeeTransactionModelFromDomain(tx)
	return r.db.WithContext(ctx).Create(model).Error
}

// MarkReversed flips a payment's status to REVERSED
func (r *GormFeeTransactionRepository) MarkReversed(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.FeeTransactionModel{}).
		Where("id = ? AND status = ?", id, fees.TransactionStatusCompleted).
		Update("status", fees.TransactionStatusReversed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError("ALREADY_REVERSED", "Transaction has already been reversed")
	}
	return nil
}

// FindByLedger returns all transactions for one ledger, oldest first
func (r *GormFeeTransactionRepository) FindByLedger(ctx context.Context, schoolID, ledgerID uuid.UUID) ([]fees.FeeTransaction, error) {
	var txModels []models.FeeTransactionModel
	if err := r.db.WithContext(ctx).
		Where("school_id = ? AND ledger_id = ?", schoolID, ledgerID).
		Order("collected_at asc").
		Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toDomainTransactions(txModels), nil
}

// FindByCollectorAndDateRange returns one collector's transactions within
// [from, to), newest first, paginated.
func (r *GormFeeTransactionRepository) FindByCollectorAndDateRange(ctx context.Context, schoolID, collectorID uuid.UUID, from, to time.Time, filter shared.Filter) (shared.Paginated[fees.FeeTransaction], error) {
	base := r.db.WithContext(ctx).Model(&models.FeeTransactionModel{}).
		Where("school_id = ? AND collected_by = ? AND collected_at >= ? AND collected_at < ?",
			schoolID, collectorID, from, to)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return shared.Paginated[fees.FeeTransaction]{}, err
	}

	var txModels []models.FeeTransactionModel
	if err := base.
		Order("collected_at desc").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&txModels).Error; err != nil {
		return shared.Paginated[fees.FeeTransaction]{}, err
	}

	return shared.NewPaginated(toDomainTransactions(txModels), total, filter.Page, filter.PageSize), nil
}

// methodTotalRow is the scan target for the daily summary aggregation
type methodTotalRow struct {
	Method string
	Count  int64
	Total  decimal.Decimal
}

// SumByMethodForDay aggregates one collector's payments net of reversals
// per method for the calendar day containing date. Reversals subtract
// because the pair nets to zero in the drawer.
func (r *GormFeeTransactionRepository) SumByMethodForDay(ctx context.Context, schoolID, collectorID uuid.UUID, date time.Time) ([]fees.MethodTotal, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var rows []methodTotalRow
	if err := r.db.WithContext(ctx).
		Model(&models.FeeTransactionModel{}).
		Select("method, count(*) as count, sum(case when type = ? then amount else -amount end) as total", fees.TransactionTypePayment).
		Where("school_id = ? AND collected_by = ? AND collected_at >= ? AND collected_at < ?", schoolID, collectorID, dayStart, dayEnd).
		Group("method").
		Order("method asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make([]fees.MethodTotal, len(rows))
	for i, row := range rows {
		totals[i] = fees.MethodTotal{
			Method: fees.PaymentMethod(row.Method),
			Count:  row.Count,
			Total:  row.Total,
		}
	}
	return totals, nil
}

// nextReceiptNumber draws the next number from the per-school daily
// sequence using an atomic upsert, yielding e.g. "FT-20250405-00001".
func (r *GormFeeTransactionRepository) nextReceiptNumber(ctx context.Context, schoolID uuid.UUID, at time.Time) (string, error) {
	day := at.Format("20060102")

	var seq int64
	err := r.db.WithContext(ctx).Raw(`
		INSERT INTO receipt_sequences (school_id, day, last_seq)
		VALUES (?, ?, 1)
		ON CONFLICT (school_id, day)
		DO UPDATE SET last_seq = receipt_sequences.last_seq + 1
		RETURNING last_seq`,
		schoolID, day,
	).Scan(&seq).Error
	if err != nil {
		return "", fmt.Errorf("failed to allocate receipt number: %w", err)
	}

	return fmt.Sprintf("%s-%s-%05d", r.receiptPrefix, day, seq), nil
}

func toDomainTransactions(txModels []models.FeeTransactionModel) []fees.FeeTransaction {
	txs := make([]fees.FeeTransaction, len(txModels))
	for i := range txModels {
		txs[i] = *txModels[i].ToDomain()
	}
	return txs
}
