/*
ledger.go - Persistence interfaces for the billing core

PURPOSE:
  Defines the boundary between the domain logic and storage. The engine
  and payment processor are written against these interfaces; SQLite and
  in-memory implementations satisfy them.

KEY INTERFACES:
  InvoiceLedger:     Durable invoice storage with uniqueness enforcement
  PropertyDirectory: Property existence checks and the tenant roster
  ExpenseDirectory:  Recorded expenses per property and period

UNIQUENESS CONTRACT:
  InvoiceLedger.Insert is the single source of truth for the
  one-invoice-per-(property, tenant, period) invariant. Implementations
  MUST enforce it atomically at the storage layer (a unique index, not
  application logic) and return ErrDuplicateInvoice on violation. The
  engine's own pre-check via Exists is advisory only.

ATOMIC PAYMENT:
  MarkPaid must be a conditional update keyed on status = pending so two
  concurrent payment confirmations cannot both succeed.

IMPLEMENTATIONS:
  - store/sqlite: Production store (unique index + conditional UPDATE)
  - billing/store: In-memory store for tests and dev

SEE ALSO:
  - engine.go: Writes invoices through InvoiceLedger
  - payments.go: Drives MarkPaid
*/
package billing

import (
	"context"
	"time"
)

// =============================================================================
// INVOICE LEDGER
// =============================================================================

// InvoiceFilter selects invoices by any subset of its fields.
// Nil fields match everything.
type InvoiceFilter struct {
	PropertyID *PropertyID
	TenantID   *TenantID
	Month      *time.Month
	Year       *int
	Status     *InvoiceStatus
}

// InvoiceLedger is the durable store of invoices.
type InvoiceLedger interface {
	// Insert persists a new invoice. Returns ErrDuplicateInvoice if one
	// already exists for the same (property, tenant, period) tuple. The
	// constraint check and the write are a single atomic operation.
	Insert(ctx context.Context, inv Invoice) error

	// Get returns an invoice by ID or ErrInvoiceNotFound.
	Get(ctx context.Context, id InvoiceID) (Invoice, error)

	// Find returns invoices matching the filter, ordered by
	// (period year desc, period month desc, tenant name asc).
	Find(ctx context.Context, f InvoiceFilter) ([]Invoice, error)

	// Exists is the advisory duplicate pre-check used by the engine.
	Exists(ctx context.Context, propertyID PropertyID, tenantID TenantID, period Period) (bool, error)

	// MarkPaid atomically transitions an invoice from pending to paid and
	// stamps paidAt. Returns ErrInvoiceNotFound, ErrAlreadyPaid (wrapped in
	// AlreadyPaidError), or ErrUnsupportedTransition when the invoice is in
	// a reserved state.
	MarkPaid(ctx context.Context, id InvoiceID, paidAt time.Time) (Invoice, error)
}

// =============================================================================
// COLLABORATOR DIRECTORIES - Read-only during a generation run
// =============================================================================

// PropertyDirectory supplies property identity and the tenant roster.
type PropertyDirectory interface {
	// GetProperty returns a property or ErrPropertyNotFound.
	GetProperty(ctx context.Context, id PropertyID) (Property, error)

	// ListTenants returns the property's current roster in a stable order.
	// The roster order determines invoice processing order within a run.
	ListTenants(ctx context.Context, propertyID PropertyID) ([]Tenant, error)
}

// ExpenseDirectory supplies the recorded expenses for a period.
type ExpenseDirectory interface {
	// ListExpenses returns expenses matching (propertyID, period) in a
	// stable order. Line items follow this order on every invoice.
	ListExpenses(ctx context.Context, propertyID PropertyID, period Period) ([]Expense, error)
}
