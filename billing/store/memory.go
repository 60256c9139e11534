// Package store provides in-memory implementations of the billing
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/consorcio/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements billing.InvoiceLedger, billing.PropertyDirectory and
// billing.ExpenseDirectory behind a single mutex, mirroring the atomicity
// guarantees of the SQLite store: Insert's uniqueness check plus write is
// one critical section, as is MarkPaid's check-then-set.
type Memory struct {
	mu         sync.RWMutex
	properties map[billing.PropertyID]billing.Property
	tenants    map[billing.TenantID]billing.Tenant
	expenses   map[billing.ExpenseID]billing.Expense
	invoices   map[billing.InvoiceID]billing.Invoice
	unique     map[invoiceKey]billing.InvoiceID
}

type invoiceKey struct {
	PropertyID billing.PropertyID
	TenantID   billing.TenantID
	Period     billing.Period
}

func NewMemory() *Memory {
	return &Memory{
		properties: make(map[billing.PropertyID]billing.Property),
		tenants:    make(map[billing.TenantID]billing.Tenant),
		expenses:   make(map[billing.ExpenseID]billing.Expense),
		invoices:   make(map[billing.InvoiceID]billing.Invoice),
		unique:     make(map[invoiceKey]billing.InvoiceID),
	}
}

// =============================================================================
// PROPERTY DIRECTORY
// =============================================================================

func (m *Memory) SaveProperty(_ context.Context, p billing.Property) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.properties[p.ID] = p
	return nil
}

func (m *Memory) GetProperty(_ context.Context, id billing.PropertyID) (billing.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.properties[id]
	if !ok {
		return billing.Property{}, billing.ErrPropertyNotFound
	}
	return p, nil
}

func (m *Memory) ListProperties(_ context.Context) ([]billing.Property, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]billing.Property, 0, len(m.properties))
	for _, p := range m.properties {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveTenant(_ context.Context, t billing.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants[t.ID] = t
	return nil
}

func (m *Memory) GetTenant(_ context.Context, id billing.TenantID) (billing.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return billing.Tenant{}, billing.ErrTenantNotFound
	}
	return t, nil
}

func (m *Memory) DeleteTenant(_ context.Context, id billing.TenantID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenants, id)
	return nil
}

// ListTenants returns the roster ordered by unit identifier, so generation
// runs process tenants deterministically.
func (m *Memory) ListTenants(_ context.Context, propertyID billing.PropertyID) ([]billing.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Tenant
	for _, t := range m.tenants {
		if t.PropertyID == propertyID {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Unit != result[j].Unit {
			return result[i].Unit < result[j].Unit
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// EXPENSE DIRECTORY
// =============================================================================

func (m *Memory) SaveExpense(_ context.Context, e billing.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expenses[e.ID] = e
	return nil
}

func (m *Memory) GetExpense(_ context.Context, id billing.ExpenseID) (billing.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.expenses[id]
	if !ok {
		return billing.Expense{}, billing.ErrExpenseNotFound
	}
	return e, nil
}

// DeleteExpense removes a recorded expense. Already-generated invoices are
// untouched; their lines hold frozen copies.
func (m *Memory) DeleteExpense(_ context.Context, id billing.ExpenseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.expenses, id)
	return nil
}

// ListExpenses returns expenses for (propertyID, period) ordered by
// incurred date, then creation time, then ID.
func (m *Memory) ListExpenses(_ context.Context, propertyID billing.PropertyID, period billing.Period) ([]billing.Expense, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Expense
	for _, e := range m.expenses {
		if e.PropertyID == propertyID && e.Period == period {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].IncurredAt.Equal(result[j].IncurredAt) {
			return result[i].IncurredAt.Before(result[j].IncurredAt)
		}
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// INVOICE LEDGER
// =============================================================================

// Insert enforces the one-invoice-per-(property, tenant, period) invariant
// atomically: check and write happen under one lock.
func (m *Memory) Insert(_ context.Context, inv billing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := invoiceKey{PropertyID: inv.PropertyID, TenantID: inv.TenantID, Period: inv.Period}
	if _, exists := m.unique[k]; exists {
		return &billing.DuplicateInvoiceError{
			PropertyID: inv.PropertyID,
			TenantID:   inv.TenantID,
			Period:     inv.Period,
		}
	}

	m.invoices[inv.ID] = copyInvoice(inv)
	m.unique[k] = inv.ID
	return nil
}

func (m *Memory) Get(_ context.Context, id billing.InvoiceID) (billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inv, ok := m.invoices[id]
	if !ok {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	return copyInvoice(inv), nil
}

func (m *Memory) Exists(_ context.Context, propertyID billing.PropertyID, tenantID billing.TenantID, period billing.Period) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.unique[invoiceKey{PropertyID: propertyID, TenantID: tenantID, Period: period}]
	return exists, nil
}

// Find filters invoices and orders them by (year desc, month desc, tenant
// name asc) for stable presentation.
func (m *Memory) Find(_ context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []billing.Invoice
	for _, inv := range m.invoices {
		if f.PropertyID != nil && inv.PropertyID != *f.PropertyID {
			continue
		}
		if f.TenantID != nil && inv.TenantID != *f.TenantID {
			continue
		}
		if f.Month != nil && inv.Period.Month != *f.Month {
			continue
		}
		if f.Year != nil && inv.Period.Year != *f.Year {
			continue
		}
		if f.Status != nil && inv.Status != *f.Status {
			continue
		}
		result = append(result, copyInvoice(inv))
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Period.Year != b.Period.Year {
			return a.Period.Year > b.Period.Year
		}
		if a.Period.Month != b.Period.Month {
			return a.Period.Month > b.Period.Month
		}
		an, bn := m.tenants[a.TenantID].Name, m.tenants[b.TenantID].Name
		if an != bn {
			return an < bn
		}
		return a.ID < b.ID
	})
	return result, nil
}

// MarkPaid performs the check-then-set as one critical section, matching
// the conditional-update semantics of the SQLite store.
func (m *Memory) MarkPaid(_ context.Context, id billing.InvoiceID, paidAt time.Time) (billing.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invoices[id]
	if !ok {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}

	switch inv.Status {
	case billing.StatusPending:
		inv.Status = billing.StatusPaid
		inv.PaidAt = &paidAt
		m.invoices[id] = inv
		return copyInvoice(inv), nil
	case billing.StatusPaid:
		return billing.Invoice{}, &billing.AlreadyPaidError{InvoiceID: id, PaidAt: *inv.PaidAt}
	default:
		return billing.Invoice{}, billing.ErrUnsupportedTransition
	}
}

func copyInvoice(inv billing.Invoice) billing.Invoice {
	out := inv
	out.Lines = make([]billing.LineItem, len(inv.Lines))
	copy(out.Lines, inv.Lines)
	if inv.PaidAt != nil {
		t := *inv.PaidAt
		out.PaidAt = &t
	}
	return out
}
