/*
strategy.go - Pluggable allocation policies

PURPOSE:
  Separates HOW shared costs are divided from the generation machinery.
  The engine asks a strategy for per-tenant line items; the ledger and
  payment logic never see the policy. Future weighted schemes (per-area,
  per-consumption) slot in without touching either.

SHIPPED POLICY:
  EqualShare divides every expense by the unit count. Division happens
  per expense, then the shares are summed per tenant. The ordering matters:
  dividing before summing keeps a parallel audit line per source expense,
  and reproduces the source system's rounding behavior. No remainder
  redistribution is performed; totals may be off by sub-cent amounts when
  the division is not exact.

SEE ALSO:
  - engine.go: Drives a strategy during a generation run
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION STRATEGY
// =============================================================================

// AllocationStrategy computes each tenant's line items for a set of
// expenses. Implementations must be deterministic: same inputs in the same
// order produce the same lines in the same order.
type AllocationStrategy interface {
	// Allocate returns one line slice per tenant, keyed by tenant ID.
	// Line order follows the expense slice order for every tenant.
	Allocate(expenses []Expense, tenants []Tenant) (map[TenantID][]LineItem, error)
}

// =============================================================================
// EQUAL SHARE - One billable unit per tenant, no weighting
// =============================================================================

// EqualShare prorates every expense evenly across the roster. Each tenant
// counts as exactly one billable unit.
type EqualShare struct{}

func NewEqualShare() EqualShare { return EqualShare{} }

func (EqualShare) Allocate(expenses []Expense, tenants []Tenant) (map[TenantID][]LineItem, error) {
	if len(tenants) == 0 {
		return nil, ErrNoTenants
	}

	unitCount := decimal.NewFromInt(int64(len(tenants)))

	// Divide each expense once; every tenant gets the same share of it.
	shares := make([]LineItem, len(expenses))
	for i, exp := range expenses {
		shares[i] = LineItem{
			ExpenseID:   exp.ID,
			Description: exp.Description,
			Amount:      exp.Amount.Div(unitCount),
		}
	}

	lines := make(map[TenantID][]LineItem, len(tenants))
	for _, tenant := range tenants {
		perTenant := make([]LineItem, len(shares))
		copy(perTenant, shares)
		lines[tenant.ID] = perTenant
	}
	return lines, nil
}
