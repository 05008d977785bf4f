package fees

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T) *FeeTransaction {
	t.Helper()
	tx, err := NewPaymentTransaction(
		uuid.New(), uuid.New(), uuid.New(),
		"2025-2026", 4,
		decimal.NewFromInt(1000),
		PaymentMethodCash,
		uuid.New(),
	)
	require.NoError(t, err)
	return tx
}

func TestNewPaymentTransaction(t *testing.T) {
	tx := newTestPayment(t)

	assert.Equal(t, TransactionTypePayment, tx.Type)
	assert.Equal(t, TransactionStatusCompleted, tx.Status)
	assert.NotEqual(t, uuid.Nil, tx.ID)
	assert.Empty(t, tx.ReceiptNumber, "receipt number assigned at commit time")
	assert.False(t, tx.CollectedAt.IsZero())
}

func TestNewPaymentTransactionValidation(t *testing.T) {
	_, err := NewPaymentTransaction(uuid.New(), uuid.New(), uuid.New(), "2025-2026", 4, decimal.Zero, PaymentMethodCash, uuid.New())
	assert.Error(t, err)

	_, err = NewPaymentTransaction(uuid.New(), uuid.New(), uuid.New(), "2025-2026", 4, decimal.NewFromInt(100), PaymentMethod("CRYPTO"), uuid.New())
	assert.Error(t, err)

	_, err = NewPaymentTransaction(uuid.New(), uuid.New(), uuid.New(), "2025-2026", 0, decimal.NewFromInt(100), PaymentMethodCash, uuid.New())
	assert.Error(t, err)

	_, err = NewPaymentTransaction(uuid.New(), uuid.New(), uuid.New(), "2025-2026", 4, decimal.NewFromInt(100), PaymentMethodCash, uuid.Nil)
	assert.Error(t, err)
}

func TestNewReversalTransaction(t *testing.T) {
	original := newTestPayment(t)
	reverser := uuid.New()

	rev, err := NewReversalTransaction(original, reverser, "entered wrong student")
	require.NoError(t, err)

	assert.Equal(t, TransactionTypeReversal, rev.Type)
	assert.True(t, rev.Amount.Equal(original.Amount))
	assert.Equal(t, original.Month, rev.Month)
	assert.Equal(t, original.LedgerID, rev.LedgerID)
	require.NotNil(t, rev.ReversesID)
	assert.Equal(t, original.ID, *rev.ReversesID)
	assert.Equal(t, reverser, rev.CollectedBy)
	assert.NotEqual(t, original.ID, rev.ID)
}

func TestNewReversalTransactionRejectsReversedOriginal(t *testing.T) {
	original := newTestPayment(t)
	require.NoError(t, original.MarkReversed())

	_, err := NewReversalTransaction(original, uuid.New(), "again")
	assert.Error(t, err)
}

func TestNewReversalTransactionRequiresReason(t *testing.T) {
	original := newTestPayment(t)
	_, err := NewReversalTransaction(original, uuid.New(), "")
	assert.Error(t, err)
}

func TestReversalOfReversalRejected(t *testing.T) {
	original := newTestPayment(t)
	rev, err := NewReversalTransaction(original, uuid.New(), "mistake")
	require.NoError(t, err)

	_, err = NewReversalTransaction(rev, uuid.New(), "undo the undo")
	assert.Error(t, err)
}

func TestMarkReversed(t *testing.T) {
	tx := newTestPayment(t)

	require.NoError(t, tx.MarkReversed())
	assert.True(t, tx.IsReversed())

	// Idempotent reversal is rejected
	assert.Error(t, tx.MarkReversed())
}

func TestWithOrigin(t *testing.T) {
	tx := newTestPayment(t).
		WithReference("TXN-88213").
		WithOrigin("203.0.113.7", "Mozilla/5.0 (X11; Linux x86_64)")

	assert.Equal(t, "TXN-88213", tx.Reference)
	assert.Equal(t, "203.0.113.7", tx.OriginIP)
	assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64)", tx.OriginDevice)
}

func TestPaymentMethodIsValid(t *testing.T) {
	for _, m := range []PaymentMethod{PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodCheque, PaymentMethodOnline} {
		assert.True(t, m.IsValid())
	}
	assert.False(t, PaymentMethod("UPI-WALLET").IsValid())
}
