package fees

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationResult is the outcome of pre-collection checks. Errors block the
// collection outright; warnings describe conditions the collector must
// acknowledge but may proceed through (partial payment, overpayment, skipped
// months, overdue slots). ExpectedAmount and MonthlyPayment echo the targeted
// slot's state so the collection screen can render what is owed; both are
// absent when the month itself was invalid.
type ValidationResult struct {
	Valid          bool            `json:"valid"`
	Errors         []string        `json:"errors"`
	Warnings       []string        `json:"warnings"`
	ExpectedAmount decimal.Decimal `json:"expected_amount"`
	MonthlyPayment *MonthlyPayment `json:"monthly_payment,omitempty"`
}

// FatalReason joins all blocking errors into one message
func (r *ValidationResult) FatalReason() string {
	return strings.Join(r.Errors, "; ")
}

func (r *ValidationResult) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

func (r *ValidationResult) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// HasWarnings returns true if any warnings were raised
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// CollectionValidator runs the blocking and advisory checks for a proposed
// collection against the current ledger state. It is pure: the same ledger,
// request, and clock always produce the same result.
type CollectionValidator struct{}

// NewCollectionValidator creates a collection validator
func NewCollectionValidator() *CollectionValidator {
	return &CollectionValidator{}
}

// Validate checks a proposed collection of amount against month's slot.
// Blocking errors: month outside 1-12, slot already fully paid, slot waived,
// non-positive amount. Advisory warnings: partial payment, overpayment,
// overdue slot, earlier months still unsettled.
func (v *CollectionValidator) Validate(ledger *FeeLedger, month int, amount decimal.Decimal, asOf time.Time) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}

	slot := ledger.Slot(month)
	if slot == nil {
		result.addError("Invalid month selected")
		return result
	}
	snapshot := *slot
	result.MonthlyPayment = &snapshot
	result.ExpectedAmount = slot.ExpectedAmount()

	if slot.IsPaid() {
		result.addError(fmt.Sprintf("Fee for %s is already fully paid", monthName(month)))
	}
	if slot.IsWaived() {
		result.addError(fmt.Sprintf("Fee for %s has been waived", monthName(month)))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		result.addError("Amount must be greater than zero")
	}
	if !result.Valid {
		return result
	}

	expected := result.ExpectedAmount
	switch {
	case amount.LessThan(expected):
		remaining := expected.Sub(amount)
		result.addWarning(fmt.Sprintf(
			"Partial payment: due %s, received %s, remaining %s",
			expected.StringFixed(2), amount.StringFixed(2), remaining.StringFixed(2)))
	case amount.GreaterThan(expected):
		result.addWarning(fmt.Sprintf(
			"Overpayment: due %s, received %s",
			expected.StringFixed(2), amount.StringFixed(2)))
	}

	if slot.IsOverdue(asOf) {
		if days := slot.DaysOverdue(asOf); days > 0 {
			result.addWarning(fmt.Sprintf("Payment for %s is overdue by %d day(s)", monthName(month), days))
		} else {
			result.addWarning(fmt.Sprintf("Payment for %s is overdue since today", monthName(month)))
		}
	}

	if pending := ledger.UnsettledBefore(month); pending > 0 {
		result.addWarning(fmt.Sprintf("%d previous month(s) still pending", pending))
	}

	return result
}

func monthName(month int) string {
	return time.Month(month).String()
}
