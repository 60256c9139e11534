/*
Package sqlite provides a SQLite-backed implementation of the billing
storage interfaces.

PURPOSE:
  Implements billing.InvoiceLedger, billing.PropertyDirectory and
  billing.ExpenseDirectory using SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  properties:     Building/complex records
  tenants:        Billable units per property
  expenses:       Recorded operating costs tagged with a billing period
  invoices:       Generated bills, one per (property, tenant, period)
  invoice_lines:  Ordered per-expense allocation breakdown of an invoice

INVARIANT ENFORCEMENT:
  idx_unique_invoice_period is the authoritative guard for the
  one-invoice-per-(property, tenant, period) invariant. Application-level
  pre-checks are advisory; a concurrent run racing past them hits the
  index and gets billing.ErrDuplicateInvoice.

  MarkPaid is a conditional UPDATE keyed on status = 'pending', so two
  concurrent payment confirmations cannot both succeed.

FROZEN LINES:
  invoice_lines stores a copy of the source expense's description and the
  allocated amount at generation time. Deleting or editing an expense later
  never changes an existing invoice.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := billing.NewEngine(store, store, store, billing.DefaultConfig())

SEE ALSO:
  - billing/ledger.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/consorcio/billing-engine/billing"
)

// Store implements all billing storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS properties (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		address TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		unit TEXT NOT NULL,
		unit_type TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_property
		ON tenants(property_id);

	CREATE TABLE IF NOT EXISTS expenses (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL,
		incurred_at TEXT NOT NULL,
		period_month INTEGER NOT NULL,
		period_year INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Generation hot path: the full expense set for a property+period
	CREATE INDEX IF NOT EXISTS idx_expenses_property_period
		ON expenses(property_id, period_year, period_month);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		property_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		period_month INTEGER NOT NULL,
		period_year INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		paid_at TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the authoritative one-invoice-per-(property, tenant, period)
	-- guard. Concurrent generation runs race here, not in application code.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_invoice_period
		ON invoices(property_id, tenant_id, period_year, period_month);

	CREATE INDEX IF NOT EXISTS idx_invoices_property
		ON invoices(property_id, period_year DESC, period_month DESC);
	CREATE INDEX IF NOT EXISTS idx_invoices_tenant
		ON invoices(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_invoices_status
		ON invoices(status);

	-- Frozen allocation breakdown; position preserves line order
	CREATE TABLE IF NOT EXISTS invoice_lines (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		expense_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount TEXT NOT NULL,
		position INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice
		ON invoice_lines(invoice_id, position);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PROPERTY DIRECTORY (billing.PropertyDirectory interface)
// =============================================================================

// SaveProperty inserts or updates a property record.
func (s *Store) SaveProperty(ctx context.Context, p billing.Property) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO properties (id, name, address, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.Address,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetProperty retrieves a property by ID.
func (s *Store) GetProperty(ctx context.Context, id billing.PropertyID) (billing.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p billing.Property
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, address, created_at FROM properties WHERE id = ?",
		id,
	).Scan(&p.ID, &p.Name, &p.Address, &createdAt)

	if err == sql.ErrNoRows {
		return billing.Property{}, billing.ErrPropertyNotFound
	}
	if err != nil {
		return billing.Property{}, fmt.Errorf("failed to get property: %w", err)
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return p, nil
}

// ListProperties returns all properties ordered by name.
func (s *Store) ListProperties(ctx context.Context) ([]billing.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, address, created_at FROM properties ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	defer rows.Close()

	var properties []billing.Property
	for rows.Next() {
		var p billing.Property
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// SaveTenant inserts or updates a tenant record.
func (s *Store) SaveTenant(ctx context.Context, t billing.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO tenants (id, property_id, unit, unit_type, name, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_id = excluded.property_id,
			unit = excluded.unit,
			unit_type = excluded.unit_type,
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone
	`

	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.PropertyID, t.Unit, t.UnitType, t.Name, t.Email, t.Phone,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetTenant retrieves a tenant by ID.
func (s *Store) GetTenant(ctx context.Context, id billing.TenantID) (billing.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t billing.Tenant
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, property_id, unit, unit_type, name, email, phone, created_at FROM tenants WHERE id = ?",
		id,
	).Scan(&t.ID, &t.PropertyID, &t.Unit, &t.UnitType, &t.Name, &t.Email, &t.Phone, &createdAt)

	if err == sql.ErrNoRows {
		return billing.Tenant{}, billing.ErrTenantNotFound
	}
	if err != nil {
		return billing.Tenant{}, fmt.Errorf("failed to get tenant: %w", err)
	}

	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return t, nil
}

// DeleteTenant removes a tenant. Invoices already generated for the tenant
// are untouched.
func (s *Store) DeleteTenant(ctx context.Context, id billing.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM tenants WHERE id = ?", id)
	return err
}

// ListTenants returns a property's roster ordered by unit, then ID.
// This order is the processing order of a generation run.
func (s *Store) ListTenants(ctx context.Context, propertyID billing.PropertyID) ([]billing.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, property_id, unit, unit_type, name, email, phone, created_at
		 FROM tenants WHERE property_id = ?
		 ORDER BY unit ASC, id ASC`,
		propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []billing.Tenant
	for rows.Next() {
		var t billing.Tenant
		var createdAt string
		if err := rows.Scan(&t.ID, &t.PropertyID, &t.Unit, &t.UnitType, &t.Name, &t.Email, &t.Phone, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

// =============================================================================
// EXPENSE DIRECTORY (billing.ExpenseDirectory interface)
// =============================================================================

// SaveExpense inserts or updates an expense record. Updates never touch
// invoices generated from earlier values.
func (s *Store) SaveExpense(ctx context.Context, e billing.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO expenses
		(id, property_id, description, amount, category, incurred_at,
		 period_month, period_year, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			amount = excluded.amount,
			category = excluded.category,
			incurred_at = excluded.incurred_at,
			period_month = excluded.period_month,
			period_year = excluded.period_year,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.PropertyID, e.Description, e.Amount.Value.String(), e.Category,
		e.IncurredAt.Format(time.RFC3339),
		int(e.Period.Month), e.Period.Year,
		now, now,
	)
	return err
}

// GetExpense retrieves an expense by ID.
func (s *Store) GetExpense(ctx context.Context, id billing.ExpenseID) (billing.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, description, amount, category, incurred_at,
		        period_month, period_year, created_at, updated_at
		 FROM expenses WHERE id = ?`,
		id,
	)

	e, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return billing.Expense{}, billing.ErrExpenseNotFound
	}
	if err != nil {
		return billing.Expense{}, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

// DeleteExpense removes an expense. Deletion is unconditional and does not
// cascade into already-generated invoices.
func (s *Store) DeleteExpense(ctx context.Context, id billing.ExpenseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", id)
	return err
}

// ListExpenses returns expenses for (propertyID, period) ordered by
// incurred date, then creation time, then ID. Invoice line order follows
// this order.
func (s *Store) ListExpenses(ctx context.Context, propertyID billing.PropertyID, period billing.Period) ([]billing.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, property_id, description, amount, category, incurred_at,
		        period_month, period_year, created_at, updated_at
		 FROM expenses
		 WHERE property_id = ? AND period_month = ? AND period_year = ?
		 ORDER BY incurred_at ASC, created_at ASC, id ASC`,
		propertyID, int(period.Month), period.Year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []billing.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (billing.Expense, error) {
	var (
		e           billing.Expense
		amount      string
		incurredAt  string
		periodMonth int
		createdAt   string
		updatedAt   string
	)

	err := row.Scan(
		&e.ID, &e.PropertyID, &e.Description, &amount, &e.Category,
		&incurredAt, &periodMonth, &e.Period.Year, &createdAt, &updatedAt,
	)
	if err != nil {
		return e, err
	}

	e.Amount = billing.MustParseMoney(amount)
	e.Period.Month = time.Month(periodMonth)
	e.IncurredAt, _ = time.Parse(time.RFC3339, incurredAt)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

// =============================================================================
// INVOICE LEDGER (billing.InvoiceLedger interface)
// =============================================================================

// Insert persists an invoice and its lines in one database transaction.
// The unique index on (property, tenant, period) is the authoritative
// duplicate guard; violations come back as DuplicateInvoiceError.
func (s *Store) Insert(ctx context.Context, inv billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var paidAt sql.NullString
	if inv.PaidAt != nil {
		paidAt = sql.NullString{String: inv.PaidAt.Format(time.RFC3339), Valid: true}
	}

	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO invoices
		 (id, property_id, tenant_id, period_month, period_year,
		  total_amount, due_date, status, paid_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.PropertyID, inv.TenantID,
		int(inv.Period.Month), inv.Period.Year,
		inv.TotalAmount.Value.String(),
		inv.DueDate.Format(time.RFC3339),
		inv.Status, paidAt,
		inv.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &billing.DuplicateInvoiceError{
				PropertyID: inv.PropertyID,
				TenantID:   inv.TenantID,
				Period:     inv.Period,
			}
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}

	for i, line := range inv.Lines {
		_, err = sqlTx.ExecContext(ctx,
			`INSERT INTO invoice_lines (id, invoice_id, expense_id, description, amount, position)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("%s-%d", inv.ID, i),
			inv.ID, line.ExpenseID, line.Description,
			line.Amount.Value.String(), i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert invoice line: %w", err)
		}
	}

	return sqlTx.Commit()
}

// Get returns an invoice with its lines.
func (s *Store) Get(ctx context.Context, id billing.InvoiceID) (billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getInvoice(ctx, id)
}

// Exists is the advisory duplicate pre-check.
func (s *Store) Exists(ctx context.Context, propertyID billing.PropertyID, tenantID billing.TenantID, period billing.Period) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoices
		 WHERE property_id = ? AND tenant_id = ? AND period_month = ? AND period_year = ?`,
		propertyID, tenantID, int(period.Month), period.Year,
	).Scan(&count)

	return count > 0, err
}

// Find filters invoices and orders them by (period year desc, period month
// desc, tenant name asc). Tenant names come from a join; invoices whose
// tenant was since deleted sort with an empty name.
func (s *Store) Find(ctx context.Context, f billing.InvoiceFilter) ([]billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT i.id, i.property_id, i.tenant_id, i.period_month, i.period_year,
		       i.total_amount, i.due_date, i.status, i.paid_at, i.created_at
		FROM invoices i
		LEFT JOIN tenants t ON t.id = i.tenant_id
		WHERE 1=1
	`
	var args []any

	if f.PropertyID != nil {
		query += " AND i.property_id = ?"
		args = append(args, *f.PropertyID)
	}
	if f.TenantID != nil {
		query += " AND i.tenant_id = ?"
		args = append(args, *f.TenantID)
	}
	if f.Month != nil {
		query += " AND i.period_month = ?"
		args = append(args, int(*f.Month))
	}
	if f.Year != nil {
		query += " AND i.period_year = ?"
		args = append(args, *f.Year)
	}
	if f.Status != nil {
		query += " AND i.status = ?"
		args = append(args, *f.Status)
	}

	query += ` ORDER BY i.period_year DESC, i.period_month DESC, COALESCE(t.name, '') ASC, i.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []billing.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range invoices {
		invoices[i].Lines, err = s.loadLines(ctx, invoices[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// MarkPaid is a conditional update keyed on status = 'pending'. The
// check-then-set race between concurrent payment confirmations is resolved
// by the database, not by application code.
func (s *Store) MarkPaid(ctx context.Context, id billing.InvoiceID, paidAt time.Time) (billing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE invoices SET status = ?, paid_at = ?
		 WHERE id = ? AND status = ?`,
		billing.StatusPaid, paidAt.Format(time.RFC3339),
		id, billing.StatusPending,
	)
	if err != nil {
		return billing.Invoice{}, fmt.Errorf("failed to mark invoice paid: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return billing.Invoice{}, err
	}

	if affected == 0 {
		// Classify: missing invoice, already paid, or a reserved state.
		var status string
		var existingPaidAt sql.NullString
		err := s.db.QueryRowContext(ctx,
			"SELECT status, paid_at FROM invoices WHERE id = ?", id,
		).Scan(&status, &existingPaidAt)
		if err == sql.ErrNoRows {
			return billing.Invoice{}, billing.ErrInvoiceNotFound
		}
		if err != nil {
			return billing.Invoice{}, fmt.Errorf("failed to inspect invoice status: %w", err)
		}
		if billing.InvoiceStatus(status) == billing.StatusPaid {
			t, _ := time.Parse(time.RFC3339, existingPaidAt.String)
			return billing.Invoice{}, &billing.AlreadyPaidError{InvoiceID: id, PaidAt: t}
		}
		return billing.Invoice{}, billing.ErrUnsupportedTransition
	}

	return s.getInvoice(ctx, id)
}

func (s *Store) getInvoice(ctx context.Context, id billing.InvoiceID) (billing.Invoice, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, property_id, tenant_id, period_month, period_year,
		        total_amount, due_date, status, paid_at, created_at
		 FROM invoices WHERE id = ?`,
		id,
	)

	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	if err != nil {
		return billing.Invoice{}, fmt.Errorf("failed to get invoice: %w", err)
	}

	inv.Lines, err = s.loadLines(ctx, inv.ID)
	if err != nil {
		return billing.Invoice{}, err
	}
	return inv, nil
}

func (s *Store) loadLines(ctx context.Context, invoiceID billing.InvoiceID) ([]billing.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT expense_id, description, amount
		 FROM invoice_lines WHERE invoice_id = ?
		 ORDER BY position ASC`,
		invoiceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []billing.LineItem
	for rows.Next() {
		var line billing.LineItem
		var amount string
		if err := rows.Scan(&line.ExpenseID, &line.Description, &amount); err != nil {
			return nil, err
		}
		line.Amount = billing.MustParseMoney(amount)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func scanInvoice(row rowScanner) (billing.Invoice, error) {
	var (
		inv         billing.Invoice
		periodMonth int
		totalAmount string
		dueDate     string
		paidAt      sql.NullString
		createdAt   string
	)

	err := row.Scan(
		&inv.ID, &inv.PropertyID, &inv.TenantID, &periodMonth, &inv.Period.Year,
		&totalAmount, &dueDate, &inv.Status, &paidAt, &createdAt,
	)
	if err != nil {
		return inv, err
	}

	inv.Period.Month = time.Month(periodMonth)
	inv.TotalAmount = billing.MustParseMoney(totalAmount)
	inv.DueDate, _ = time.Parse(time.RFC3339, dueDate)
	inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if paidAt.Valid {
		t, _ := time.Parse(time.RFC3339, paidAt.String)
		inv.PaidAt = &t
	}
	return inv, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
