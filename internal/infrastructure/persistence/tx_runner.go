package persistence

import (
	"context"

	"github.com/schoolerp/backend/internal/domain/fees"
	"gorm.io/gorm"
)

// GormTxRunner implements fees.TxRunner on a GORM database. The commit
// closure gets repositories bound to the transaction handle, so the ledger
// update and the transaction-log append commit or roll back as one unit.
type GormTxRunner struct {
	db            *gorm.DB
	receiptPrefix string
}

// NewGormTxRunner creates a new GormTxRunner
func NewGormTxRunner(db *gorm.DB, receiptPrefix string) *GormTxRunner {
	return &GormTxRunner{db: db, receiptPrefix: receiptPrefix}
}

// InTransaction runs fn inside a database transaction
func (r *GormTxRunner) InTransaction(ctx context.Context, fn func(ctx context.Context, repos fees.Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := fees.Repositories{
			Ledgers:      NewGormFeeLedgerRepository(tx),
			Transactions: NewGormFeeTransactionRepository(tx, r.receiptPrefix),
		}
		return fn(ctx, repos)
	})
}
