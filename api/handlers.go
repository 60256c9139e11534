/*
handlers.go - HTTP API handlers for the billing engine

PURPOSE:
  Exposes the expense allocation and billing ledger via REST. Handles HTTP
  request/response, JSON serialization, validation, and delegates to the
  domain logic.

ENDPOINTS:
  Properties:
    GET    /api/properties                   List properties
    POST   /api/properties                   Create property
    GET    /api/properties/{id}              Get property
    GET    /api/properties/{id}/tenants      List roster
    POST   /api/properties/{id}/tenants      Register tenant

  Tenants:
    DELETE /api/tenants/{id}                 Remove tenant

  Expenses:
    POST   /api/expenses                     Record expense
    GET    /api/expenses                     List by property+period
    GET    /api/expenses/{id}                Get expense
    PUT    /api/expenses/{id}                Update expense
    DELETE /api/expenses/{id}                Delete expense

  Invoices:
    POST   /api/invoices/generate            Run allocation for a period
    GET    /api/invoices                     List with filters
    GET    /api/invoices/{id}                Get invoice with lines
    POST   /api/invoices/{id}/pay            Mark invoice paid

ERROR HANDLING:
  Domain errors map onto status codes via the billing error taxonomy:
  - 400: Validation errors, invalid input, unsupported transitions
  - 404: Missing property/tenant/expense/invoice
  - 409: Conflicts (already billed, already paid)
  - 422: Preconditions not met (no tenants, no expenses)
  - 500: Storage failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/consorcio/billing-engine/billing"
	"github.com/consorcio/billing-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Engine   *billing.Engine
	Payments *billing.PaymentProcessor
	Config   billing.Config

	validate *validator.Validate
}

// NewHandler wires the engine and payment processor onto the store.
func NewHandler(store *sqlite.Store, cfg billing.Config) *Handler {
	return &Handler{
		Store:    store,
		Engine:   billing.NewEngine(store, store, store, cfg),
		Payments: billing.NewPaymentProcessor(store),
		Config:   cfg,
		validate: validator.New(),
	}
}

// =============================================================================
// PROPERTY HANDLERS
// =============================================================================

// ListProperties returns all properties.
func (h *Handler) ListProperties(w http.ResponseWriter, r *http.Request) {
	properties, err := h.Store.ListProperties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list properties", err)
		return
	}

	dtos := make([]PropertyDTO, len(properties))
	for i, p := range properties {
		dtos[i] = toPropertyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProperty returns a single property.
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	id := billing.PropertyID(chi.URLParam(r, "id"))

	p, err := h.Store.GetProperty(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get property", err)
		return
	}
	writeJSON(w, http.StatusOK, toPropertyDTO(p))
}

// CreateProperty creates a new property.
func (h *Handler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	var req CreatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	p := billing.Property{
		ID:      billing.PropertyID(req.ID),
		Name:    req.Name,
		Address: req.Address,
	}
	if err := h.Store.SaveProperty(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create property", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPropertyDTO(p))
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListTenants returns a property's roster.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	propertyID := billing.PropertyID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetProperty(r.Context(), propertyID); err != nil {
		writeDomainError(w, "Failed to get property", err)
		return
	}

	tenants, err := h.Store.ListTenants(r.Context(), propertyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tenants", err)
		return
	}

	dtos := make([]TenantDTO, len(tenants))
	for i, t := range tenants {
		dtos[i] = toTenantDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTenant registers a billable unit under a property.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	propertyID := billing.PropertyID(chi.URLParam(r, "id"))

	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if _, err := h.Store.GetProperty(r.Context(), propertyID); err != nil {
		writeDomainError(w, "Failed to get property", err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	unitType := billing.UnitType(req.UnitType)
	if unitType == "" {
		unitType = billing.UnitApartment
	}

	t := billing.Tenant{
		ID:         billing.TenantID(req.ID),
		PropertyID: propertyID,
		Unit:       req.Unit,
		UnitType:   unitType,
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
	}
	if err := h.Store.SaveTenant(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create tenant", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTenantDTO(t))
}

// DeleteTenant removes a tenant from the roster.
func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := billing.TenantID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetTenant(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get tenant", err)
		return
	}
	if err := h.Store.DeleteTenant(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete tenant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXPENSE HANDLERS
// =============================================================================

// RecordExpense records an operating cost against a billing period.
func (h *Handler) RecordExpense(w http.ResponseWriter, r *http.Request) {
	var req RecordExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	if _, err := h.Store.GetProperty(r.Context(), billing.PropertyID(req.PropertyID)); err != nil {
		writeDomainError(w, "Failed to get property", err)
		return
	}

	category, ok := h.resolveCategory(req.Category)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown expense category", nil)
		return
	}

	incurredAt, err := parseDate(req.IncurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid incurred_at format (use YYYY-MM-DD)", err)
		return
	}

	e := billing.Expense{
		ID:          billing.ExpenseID(uuid.NewString()),
		PropertyID:  billing.PropertyID(req.PropertyID),
		Description: req.Description,
		Amount:      billing.NewMoney(req.Amount),
		Category:    category,
		IncurredAt:  incurredAt,
		Period:      billing.NewPeriod(time.Month(req.PeriodMonth), req.PeriodYear),
	}
	if err := h.Store.SaveExpense(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record expense", err)
		return
	}

	writeJSON(w, http.StatusCreated, toExpenseDTO(e))
}

// GetExpense returns a single expense.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id := billing.ExpenseID(chi.URLParam(r, "id"))

	e, err := h.Store.GetExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// ListExpenses returns expenses for a property and period.
// GET /api/expenses?property_id=...&period_month=3&period_year=2025
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	propertyID := billing.PropertyID(r.URL.Query().Get("property_id"))
	if propertyID == "" {
		writeError(w, http.StatusBadRequest, "property_id is required", nil)
		return
	}

	month, err := strconv.Atoi(r.URL.Query().Get("period_month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "period_month is required", err)
		return
	}
	year, err := strconv.Atoi(r.URL.Query().Get("period_year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "period_year is required", err)
		return
	}

	period := billing.NewPeriod(time.Month(month), year)
	if err := period.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", err)
		return
	}

	expenses, err := h.Store.ListExpenses(r.Context(), propertyID, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list expenses", err)
		return
	}

	dtos := make([]ExpenseDTO, len(expenses))
	for i, e := range expenses {
		dtos[i] = toExpenseDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateExpense mutates a recorded expense. Invoices generated from the
// old values keep their frozen line copies.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := billing.ExpenseID(chi.URLParam(r, "id"))

	var req UpdateExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	e, err := h.Store.GetExpense(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}

	category, ok := h.resolveCategory(req.Category)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown expense category", nil)
		return
	}
	incurredAt, err := parseDate(req.IncurredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid incurred_at format (use YYYY-MM-DD)", err)
		return
	}

	e.Description = req.Description
	e.Amount = billing.NewMoney(req.Amount)
	e.Category = category
	e.IncurredAt = incurredAt
	e.Period = billing.NewPeriod(time.Month(req.PeriodMonth), req.PeriodYear)

	if err := h.Store.SaveExpense(r.Context(), e); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update expense", err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseDTO(e))
}

// DeleteExpense removes an expense without touching generated invoices.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := billing.ExpenseID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetExpense(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to get expense", err)
		return
	}
	if err := h.Store.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// GenerateInvoices runs one allocation pass for a property and period.
// Always returns the full result: which tenants were billed, which skipped.
func (h *Handler) GenerateInvoices(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoicesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	period := billing.NewPeriod(time.Month(req.PeriodMonth), req.PeriodYear)
	result, err := h.Engine.Generate(r.Context(), billing.PropertyID(req.PropertyID), period)
	if err != nil {
		writeDomainError(w, "Failed to generate invoices", err)
		return
	}

	writeJSON(w, http.StatusCreated, toGenerationResultDTO(result))
}

// ListInvoices returns invoices filtered by any subset of
// {property_id, tenant_id, period_month, period_year, status}.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	var filter billing.InvoiceFilter
	q := r.URL.Query()

	if v := q.Get("property_id"); v != "" {
		id := billing.PropertyID(v)
		filter.PropertyID = &id
	}
	if v := q.Get("tenant_id"); v != "" {
		id := billing.TenantID(v)
		filter.TenantID = &id
	}
	if v := q.Get("period_month"); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "Invalid period_month", err)
			return
		}
		m := time.Month(month)
		filter.Month = &m
	}
	if v := q.Get("period_year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period_year", err)
			return
		}
		filter.Year = &year
	}
	if v := q.Get("status"); v != "" {
		status := billing.InvoiceStatus(v)
		filter.Status = &status
	}

	invoices, err := h.Store.Find(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTOs(invoices))
}

// GetInvoice returns an invoice with its line-item breakdown.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	inv, err := h.Store.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// PayInvoice marks an invoice paid.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	id := billing.InvoiceID(chi.URLParam(r, "id"))

	inv, err := h.Payments.MarkPaid(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to mark invoice paid", err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(inv))
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveCategory defaults empty input to "other" and rejects categories
// outside the configured set.
func (h *Handler) resolveCategory(raw string) (billing.ExpenseCategory, bool) {
	if raw == "" {
		return billing.CategoryOther, true
	}
	category := billing.ExpenseCategory(raw)
	if !h.Config.ValidCategory(category) {
		return "", false
	}
	return category, true
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", raw)
}

// writeDomainError maps the billing error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case billing.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsPreconditionFailed(err):
		writeError(w, http.StatusUnprocessableEntity, message, err)
	case errors.Is(err, billing.ErrInvalidPeriod),
		errors.Is(err, billing.ErrUnsupportedTransition):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
