/*
errors.go - Centralized error types for the billing core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Transport layers map these onto status codes without string matching.

ERROR CATEGORIES:
  1. Validation errors - Malformed periods, missing records
  2. Precondition errors - Nothing to allocate (no tenants / no expenses)
  3. Conflict errors - Already billed, already paid
  4. Storage failures - Propagated as-is, wrapped with context

USAGE:
  Callers classify with errors.Is or the helpers below:

    if errors.Is(err, billing.ErrDuplicateInvoice) {
        // tenant already billed for the period, not a failure
    }

SEE ALSO:
  - engine.go: Returns precondition and duplicate errors
  - payments.go: Returns payment conflict errors
  - store/sqlite: Translates constraint violations into these errors
*/
package billing

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a billing period is out of range.
	ErrInvalidPeriod = errors.New("invalid billing period")

	// ErrPropertyNotFound is returned when a referenced property doesn't exist.
	ErrPropertyNotFound = errors.New("property not found")

	// ErrTenantNotFound is returned when a referenced tenant doesn't exist.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrExpenseNotFound is returned when a referenced expense doesn't exist.
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrInvoiceNotFound is returned when a referenced invoice doesn't exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrNoTenants is returned when a generation run finds an empty roster.
	// Recoverable: register tenants first.
	ErrNoTenants = errors.New("no tenants registered for property")

	// ErrNoExpenses is returned when a generation run finds no expenses
	// recorded for the period. Recoverable: record expenses first.
	ErrNoExpenses = errors.New("no expenses recorded for period")

	// ErrDuplicateInvoice is returned when an invoice already exists for the
	// (property, tenant, period) tuple. This is the authoritative idempotency
	// guard; the engine treats it as "tenant already billed".
	ErrDuplicateInvoice = errors.New("invoice already exists for property, tenant and period")

	// ErrAlreadyPaid is returned when marking an invoice paid twice.
	// Callers must be able to distinguish this from success.
	ErrAlreadyPaid = errors.New("invoice already paid")

	// ErrUnsupportedTransition is returned for any status transition other
	// than pending -> paid. Overdue and voided are reserved states.
	ErrUnsupportedTransition = errors.New("unsupported invoice status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NoTenantsError reports an empty roster at generation time.
type NoTenantsError struct {
	PropertyID PropertyID
	Period     Period
}

func (e *NoTenantsError) Error() string {
	return fmt.Sprintf("no tenants registered for property %s (period %s)", e.PropertyID, e.Period)
}

func (e *NoTenantsError) Unwrap() error { return ErrNoTenants }

// NoExpensesError reports an empty expense set at generation time.
type NoExpensesError struct {
	PropertyID PropertyID
	Period     Period
}

func (e *NoExpensesError) Error() string {
	return fmt.Sprintf("no expenses recorded for property %s in period %s", e.PropertyID, e.Period)
}

func (e *NoExpensesError) Unwrap() error { return ErrNoExpenses }

// DuplicateInvoiceError identifies which tenant was already billed.
type DuplicateInvoiceError struct {
	PropertyID PropertyID
	TenantID   TenantID
	Period     Period
}

func (e *DuplicateInvoiceError) Error() string {
	return fmt.Sprintf("invoice already exists for tenant %s (property %s, period %s)",
		e.TenantID, e.PropertyID, e.Period)
}

func (e *DuplicateInvoiceError) Unwrap() error { return ErrDuplicateInvoice }

// AlreadyPaidError carries the original payment timestamp so callers can
// report when the invoice was settled.
type AlreadyPaidError struct {
	InvoiceID InvoiceID
	PaidAt    time.Time
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("invoice %s already paid at %s", e.InvoiceID, e.PaidAt.Format(time.RFC3339))
}

func (e *AlreadyPaidError) Unwrap() error { return ErrAlreadyPaid }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPropertyNotFound) ||
		errors.Is(err, ErrTenantNotFound) ||
		errors.Is(err, ErrExpenseNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}

// IsConflict returns true for expected "already done" outcomes.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateInvoice) ||
		errors.Is(err, ErrAlreadyPaid)
}

// IsPreconditionFailed returns true when a generation run had nothing to do.
func IsPreconditionFailed(err error) bool {
	return errors.Is(err, ErrNoTenants) ||
		errors.Is(err, ErrNoExpenses)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrUnsupportedTransition) ||
		IsPreconditionFailed(err) ||
		IsConflict(err)
}
