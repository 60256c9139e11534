/*
engine.go - Invoice generation (the allocation engine)

PURPOSE:
  Produces one invoice per tenant for a (property, period) pair. Reads the
  roster and the recorded expenses, asks the allocation strategy for line
  items, and writes each invoice through the ledger.

IDEMPOTENCY:
  Tenants that already have an invoice for the period are skipped, not
  overwritten and not errors. The engine pre-checks via the ledger's
  Exists, but the ledger's uniqueness constraint is the final guard: a
  duplicate surfacing at Insert (two concurrent runs racing past the
  pre-check) is also treated as "already billed".

PARTIAL SUCCESS:
  Each invoice is one write; there is no batch transaction across tenants.
  A storage failure mid-run leaves already-created invoices intact and the
  run is safe to re-invoke: billed tenants are skipped next time. The
  result always lists exactly which tenants were created vs skipped.

SEE ALSO:
  - strategy.go: Allocation policies
  - ledger.go: Persistence contracts
  - payments.go: Later lifecycle of the generated invoices
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine generates invoices for a property and billing period.
type Engine struct {
	Directory PropertyDirectory
	Expenses  ExpenseDirectory
	Ledger    InvoiceLedger
	Strategy  AllocationStrategy
	Config    Config

	// Now and NewID are injectable for deterministic tests.
	Now   func() time.Time
	NewID func() string
}

// NewEngine wires an engine with the equal-share strategy and real clock.
func NewEngine(directory PropertyDirectory, expenses ExpenseDirectory, ledger InvoiceLedger, cfg Config) *Engine {
	return &Engine{
		Directory: directory,
		Expenses:  expenses,
		Ledger:    ledger,
		Strategy:  NewEqualShare(),
		Config:    cfg,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     func() string { return uuid.NewString() },
	}
}

// Generate runs one allocation pass for (propertyID, period).
//
// Preconditions: the property exists, the period is valid, the roster and
// the period's expense set are non-empty. Precondition failures abort with
// zero invoices created.
//
// On a mid-run storage failure the partial result accumulated so far is
// returned alongside the error.
func (e *Engine) Generate(ctx context.Context, propertyID PropertyID, period Period) (*GenerationResult, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	if _, err := e.Directory.GetProperty(ctx, propertyID); err != nil {
		return nil, err
	}

	tenants, err := e.Directory.ListTenants(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant roster: %w", err)
	}
	if len(tenants) == 0 {
		return nil, &NoTenantsError{PropertyID: propertyID, Period: period}
	}

	expenses, err := e.Expenses.ListExpenses(ctx, propertyID, period)
	if err != nil {
		return nil, fmt.Errorf("failed to load expenses: %w", err)
	}
	if len(expenses) == 0 {
		return nil, &NoExpensesError{PropertyID: propertyID, Period: period}
	}

	lines, err := e.Strategy.Allocate(expenses, tenants)
	if err != nil {
		return nil, err
	}

	dueDate := period.FirstDay().AddDate(0, 0, e.Config.GraceDays)
	result := &GenerationResult{}

	// Tenants are processed in roster order, one ledger write each.
	for _, tenant := range tenants {
		exists, err := e.Ledger.Exists(ctx, propertyID, tenant.ID, period)
		if err != nil {
			return result, fmt.Errorf("failed to check existing invoice for tenant %s: %w", tenant.ID, err)
		}
		if exists {
			result.SkippedTenantIDs = append(result.SkippedTenantIDs, tenant.ID)
			continue
		}

		inv := e.buildInvoice(propertyID, tenant.ID, period, lines[tenant.ID], dueDate)
		if err := e.Ledger.Insert(ctx, inv); err != nil {
			if IsConflict(err) {
				// Lost the race to a concurrent run: already billed.
				result.SkippedTenantIDs = append(result.SkippedTenantIDs, tenant.ID)
				continue
			}
			return result, fmt.Errorf("failed to insert invoice for tenant %s: %w", tenant.ID, err)
		}
		result.Created = append(result.Created, inv)
	}

	return result, nil
}

func (e *Engine) buildInvoice(propertyID PropertyID, tenantID TenantID, period Period, lines []LineItem, dueDate time.Time) Invoice {
	total := ZeroMoney()
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return Invoice{
		ID:          InvoiceID(e.NewID()),
		PropertyID:  propertyID,
		TenantID:    tenantID,
		Period:      period,
		TotalAmount: total,
		Lines:       lines,
		DueDate:     dueDate,
		Status:      StatusPending,
		CreatedAt:   e.Now(),
	}
}
