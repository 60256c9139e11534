/*
Package billing provides the expense allocation and billing ledger core.

PURPOSE:
  This package contains the domain types and algorithms for shared-building
  billing: recording operating expenses against a property and a billing
  period, prorating them across the property's tenant roster into one
  invoice per tenant, and advancing each invoice through its payment
  lifecycle.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A decimal monetary amount (never floats in domain logic)
  - Expense: A recorded operating cost for a property and period
  - Tenant: A billable unit in a property's roster
  - Invoice: One tenant's bill for one property+period, with line items
  - GenerationResult: Partial-success outcome of an allocation run

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing property/tenant IDs
  3. Auditability: Every invoice line references its source expense
  4. Conservation: An invoice total always equals the sum of its lines

USAGE:
  total := billing.NewMoney(300)
  share := total.Div(decimal.NewFromInt(2)) // 150

SEE ALSO:
  - strategy.go: Allocation policies (equal share per unit)
  - engine.go: Invoice generation from expenses + roster
  - ledger.go: Invoice persistence interfaces
*/
package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal monetary amount (single currency)
// =============================================================================

type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func NewMoneyFromInt(value int) Money {
	return Money{Value: decimal.NewFromInt(int64(value))}
}

func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{Value: decimal.Zero}
	}
	return Money{Value: d}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(b Money) Money              { return Money{Value: m.Value.Add(b.Value)} }
func (m Money) Sub(b Money) Money              { return Money{Value: m.Value.Sub(b.Value)} }
func (m Money) Div(s decimal.Decimal) Money    { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                     { return Money{Value: m.Value.Neg()} }
func (m Money) IsNegative() bool               { return m.Value.IsNegative() }
func (m Money) IsZero() bool                   { return m.Value.IsZero() }
func (m Money) IsPositive() bool               { return m.Value.IsPositive() }
func (m Money) Equal(b Money) bool             { return m.Value.Equal(b.Value) }
func (m Money) GreaterThan(b Money) bool       { return m.Value.GreaterThan(b.Value) }
func (m Money) LessThan(b Money) bool          { return m.Value.LessThan(b.Value) }
func (m Money) String() string                 { return m.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PropertyID string
type TenantID string
type ExpenseID string
type InvoiceID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

// ExpenseCategory classifies a recorded expense. The allowed set is carried
// by Config so deployments can restrict or extend it without global state.
type ExpenseCategory string

const (
	CategoryMaintenance ExpenseCategory = "maintenance"
	CategoryUtilities   ExpenseCategory = "utilities"
	CategoryCleaning    ExpenseCategory = "cleaning"
	CategorySecurity    ExpenseCategory = "security"
	CategoryInsurance   ExpenseCategory = "insurance"
	CategoryOther       ExpenseCategory = "other" // default when unspecified
)

type UnitType string

const (
	UnitApartment UnitType = "apartment"
	UnitOffice    UnitType = "office"
	UnitCommerce  UnitType = "commerce"
	UnitParking   UnitType = "parking"
)

// InvoiceStatus is the payment lifecycle state of an invoice.
// Only the pending -> paid transition is implemented; overdue and voided
// are reserved for collaborator logic and no transition into them exists.
type InvoiceStatus string

const (
	StatusPending InvoiceStatus = "pending"
	StatusPaid    InvoiceStatus = "paid"
	StatusOverdue InvoiceStatus = "overdue"
	StatusVoided  InvoiceStatus = "voided"
)

// =============================================================================
// PROPERTY & TENANT - Collaborator-owned records consumed by the engine
// =============================================================================

type Property struct {
	ID        PropertyID
	Name      string
	Address   string
	CreatedAt time.Time
}

// Tenant is a billable occupant/unit. A tenant belongs to exactly one
// property; the property's roster at generation time determines who
// receives invoices for that run.
type Tenant struct {
	ID         TenantID
	PropertyID PropertyID
	Unit       string
	UnitType   UnitType
	Name       string
	Email      string
	Phone      string
	CreatedAt  time.Time
}

// =============================================================================
// EXPENSE - One recorded operating cost
// =============================================================================

// Expense is mutable until deleted. Deleting an expense does not cascade
// into already-generated invoices: lines carry a frozen copy of the
// description and allocated amount from generation time.
type Expense struct {
	ID          ExpenseID
	PropertyID  PropertyID
	Description string
	Amount      Money
	Category    ExpenseCategory
	IncurredAt  time.Time
	Period      Period
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// INVOICE - One tenant's bill for one property+period ("expensa")
// =============================================================================

// LineItem is the audit record of one expense's allocation to one tenant.
type LineItem struct {
	ExpenseID   ExpenseID
	Description string
	Amount      Money
}

// Invoice invariants:
//   - Exactly one invoice per (PropertyID, TenantID, Period), enforced by
//     the ledger's uniqueness constraint.
//   - TotalAmount equals the sum of Lines[].Amount.
type Invoice struct {
	ID          InvoiceID
	PropertyID  PropertyID
	TenantID    TenantID
	Period      Period
	TotalAmount Money
	Lines       []LineItem
	DueDate     time.Time
	Status      InvoiceStatus
	PaidAt      *time.Time
	CreatedAt   time.Time
}

// LineTotal recomputes the sum of line amounts. Used to assert the
// conservation invariant; TotalAmount is the stored value.
func (inv Invoice) LineTotal() Money {
	total := ZeroMoney()
	for _, l := range inv.Lines {
		total = total.Add(l.Amount)
	}
	return total
}

// =============================================================================
// GENERATION RESULT - Partial-success outcome of an allocation run
// =============================================================================

// GenerationResult reports exactly which tenants got new invoices and which
// were skipped because they were already billed for the period. A run that
// creates invoices for 8 of 10 tenants is a success, not a failure.
type GenerationResult struct {
	Created          []Invoice
	SkippedTenantIDs []TenantID
}
