package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consorcio/billing-engine/api"
	"github.com/consorcio/billing-engine/billing"
	"github.com/consorcio/billing-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := api.NewHandler(store, billing.DefaultConfig())
	return &testAPI{router: api.NewRouter(handler)}
}

// do issues a request against the router and decodes the JSON response
// into out (when out is non-nil).
func (a *testAPI) do(t *testing.T, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	if out != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out),
			"body: %s", rec.Body.String())
	}
	return rec
}

func (a *testAPI) createProperty(t *testing.T, name string) string {
	t.Helper()

	var dto api.PropertyDTO
	rec := a.do(t, http.MethodPost, "/api/properties", map[string]any{
		"name":    name,
		"address": "Mitre 742",
	}, &dto)
	require.Equal(t, http.StatusCreated, rec.Code)
	return dto.ID
}

func (a *testAPI) createTenant(t *testing.T, propertyID, unit, name string) string {
	t.Helper()

	var dto api.TenantDTO
	rec := a.do(t, http.MethodPost, "/api/properties/"+propertyID+"/tenants", map[string]any{
		"unit": unit,
		"name": name,
	}, &dto)
	require.Equal(t, http.StatusCreated, rec.Code)
	return dto.ID
}

func (a *testAPI) recordExpense(t *testing.T, propertyID, description string, amount float64) string {
	t.Helper()

	var dto api.ExpenseDTO
	rec := a.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"property_id":  propertyID,
		"description":  description,
		"amount":       amount,
		"category":     "maintenance",
		"incurred_at":  "2025-03-05",
		"period_month": 3,
		"period_year":  2025,
	}, &dto)
	require.Equal(t, http.StatusCreated, rec.Code)
	return dto.ID
}

func generateBody(propertyID string) map[string]any {
	return map[string]any{
		"property_id":  propertyID,
		"period_month": 3,
		"period_year":  2025,
	}
}

// =============================================================================
// BILLING FLOW TESTS
// =============================================================================

func TestAPI_FullBillingFlow(t *testing.T) {
	// GIVEN: A property with two tenants and $300 of March expenses
	// WHEN: Running the billing cycle end to end over HTTP
	// THEN: Two $150 invoices are created, listed, and payable

	a := newTestAPI(t)

	propertyID := a.createProperty(t, "Edificio Mitre")
	a.createTenant(t, propertyID, "1A", "Alvarez")
	a.createTenant(t, propertyID, "1B", "Benitez")
	a.recordExpense(t, propertyID, "Elevator maintenance", 200)
	a.recordExpense(t, propertyID, "Cleaning", 100)

	var result api.GenerationResultDTO
	rec := a.do(t, http.MethodPost, "/api/invoices/generate", generateBody(propertyID), &result)
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, result.Created, 2)
	assert.Empty(t, result.SkippedTenantIDs)
	for _, inv := range result.Created {
		assert.Equal(t, 150.0, inv.TotalAmount)
		assert.Equal(t, "pending", inv.Status)
		assert.Equal(t, "2025-03-11", inv.DueDate)
		assert.Len(t, inv.Lines, 2)
	}

	// The ledger lists both invoices for the property.
	var listed []api.InvoiceDTO
	rec = a.do(t, http.MethodGet, "/api/invoices?property_id="+propertyID, nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, listed, 2)

	// Pay the first one.
	var paid api.InvoiceDTO
	rec = a.do(t, http.MethodPost, "/api/invoices/"+result.Created[0].ID+"/pay", nil, &paid)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", paid.Status)
	require.NotNil(t, paid.PaidAt)

	// Status filter now splits the ledger.
	var pending []api.InvoiceDTO
	rec = a.do(t, http.MethodGet, "/api/invoices?property_id="+propertyID+"&status=pending", nil, &pending)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pending, 1)
	assert.Equal(t, result.Created[1].ID, pending[0].ID)
}

func TestAPI_Generate_SecondRunSkipsAll(t *testing.T) {
	// GIVEN: A completed March run
	// WHEN: Triggering March again
	// THEN: 201 with zero created and every tenant in skipped_tenant_ids

	a := newTestAPI(t)

	propertyID := a.createProperty(t, "Edificio Mitre")
	a.createTenant(t, propertyID, "1A", "Alvarez")
	a.createTenant(t, propertyID, "1B", "Benitez")
	a.recordExpense(t, propertyID, "Cleaning", 100)

	rec := a.do(t, http.MethodPost, "/api/invoices/generate", generateBody(propertyID), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var rerun api.GenerationResultDTO
	rec = a.do(t, http.MethodPost, "/api/invoices/generate", generateBody(propertyID), &rerun)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rerun.Created)
	assert.Len(t, rerun.SkippedTenantIDs, 2)
}

func TestAPI_Generate_UnknownProperty(t *testing.T) {
	a := newTestAPI(t)

	var errResp api.ErrorResponse
	rec := a.do(t, http.MethodPost, "/api/invoices/generate", generateBody("missing"), &errResp)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, errResp.Error)
}

func TestAPI_Generate_NoExpenses(t *testing.T) {
	// GIVEN: A property with tenants but no recorded expenses
	// WHEN: Generating
	// THEN: 422, nothing persisted

	a := newTestAPI(t)

	propertyID := a.createProperty(t, "Edificio Mitre")
	a.createTenant(t, propertyID, "1A", "Alvarez")

	rec := a.do(t, http.MethodPost, "/api/invoices/generate", generateBody(propertyID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var listed []api.InvoiceDTO
	rec = a.do(t, http.MethodGet, "/api/invoices?property_id="+propertyID, nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, listed)
}

func TestAPI_Generate_NoTenants(t *testing.T) {
	a := newTestAPI(t)

	propertyID := a.createProperty(t, "Edificio Mitre")
	a.recordExpense(t, propertyID, "Cleaning", 100)

	rec := a.do(t, http.MethodPost, "/api/invoices/generate", generateBody(propertyID), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPI_Generate_InvalidPeriodRejected(t *testing.T) {
	a := newTestAPI(t)
	propertyID := a.createProperty(t, "Edificio Mitre")

	rec := a.do(t, http.MethodPost, "/api/invoices/generate", map[string]any{
		"property_id":  propertyID,
		"period_month": 13,
		"period_year":  2025,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PAYMENT TESTS
// =============================================================================

func TestAPI_PayInvoice_DoublePaymentConflicts(t *testing.T) {
	// GIVEN: A generated, paid invoice
	// WHEN: Paying it a second time
	// THEN: 409 Conflict

	a := newTestAPI(t)

	propertyID := a.createProperty(t, "Edificio Mitre")
	a.createTenant(t, propertyID, "1A", "Alvarez")
	a.recordExpense(t, propertyID, "Cleaning", 100)

	var result api.GenerationResultDTO
	rec := a.do(t, http.MethodPost, "/api/invoices/generate", generateBody(propertyID), &result)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, result.Created, 1)

	payPath := "/api/invoices/" + result.Created[0].ID + "/pay"
	rec = a.do(t, http.MethodPost, payPath, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, payPath, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_PayInvoice_NotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/invoices/missing/pay", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// CRUD TESTS
// =============================================================================

func TestAPI_Property_Validation(t *testing.T) {
	a := newTestAPI(t)

	// Missing required name.
	rec := a.do(t, http.MethodPost, "/api/properties", map[string]any{
		"address": "Mitre 742",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/properties/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Tenant_RosterLifecycle(t *testing.T) {
	a := newTestAPI(t)

	propertyID := a.createProperty(t, "Edificio Mitre")
	tenantID := a.createTenant(t, propertyID, "1A", "Alvarez")
	a.createTenant(t, propertyID, "2B", "Benitez")

	var roster []api.TenantDTO
	rec := a.do(t, http.MethodGet, "/api/properties/"+propertyID+"/tenants", nil, &roster)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, roster, 2)
	assert.Equal(t, "1A", roster[0].Unit)

	rec = a.do(t, http.MethodDelete, "/api/tenants/"+tenantID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/properties/"+propertyID+"/tenants", nil, &roster)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, roster, 1)

	// Registering under an unknown property fails.
	rec = a.do(t, http.MethodPost, "/api/properties/missing/tenants", map[string]any{
		"unit": "9Z", "name": "Nobody",
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Expense_Lifecycle(t *testing.T) {
	a := newTestAPI(t)

	propertyID := a.createProperty(t, "Edificio Mitre")
	expenseID := a.recordExpense(t, propertyID, "Cleaning", 100)

	var got api.ExpenseDTO
	rec := a.do(t, http.MethodGet, "/api/expenses/"+expenseID, nil, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Cleaning", got.Description)
	assert.Equal(t, 100.0, got.Amount)

	rec = a.do(t, http.MethodPut, "/api/expenses/"+expenseID, map[string]any{
		"description":  "Deep cleaning",
		"amount":       120.0,
		"category":     "cleaning",
		"incurred_at":  "2025-03-06",
		"period_month": 3,
		"period_year":  2025,
	}, &got)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Deep cleaning", got.Description)
	assert.Equal(t, 120.0, got.Amount)

	listPath := fmt.Sprintf("/api/expenses?property_id=%s&period_month=3&period_year=2025", propertyID)
	var listed []api.ExpenseDTO
	rec = a.do(t, http.MethodGet, listPath, nil, &listed)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, listed, 1)

	rec = a.do(t, http.MethodDelete, "/api/expenses/"+expenseID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/expenses/"+expenseID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Expense_UnknownCategoryRejected(t *testing.T) {
	a := newTestAPI(t)
	propertyID := a.createProperty(t, "Edificio Mitre")

	rec := a.do(t, http.MethodPost, "/api/expenses", map[string]any{
		"property_id":  propertyID,
		"description":  "Mystery",
		"amount":       50.0,
		"category":     "entertainment",
		"period_month": 3,
		"period_year":  2025,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_UpdateExpense_InvoiceLinesStayFrozen(t *testing.T) {
	// GIVEN: An invoice generated from a $100 expense
	// WHEN: The expense is later changed to $500
	// THEN: The invoice keeps its original $100 line

	a := newTestAPI(t)

	propertyID := a.createProperty(t, "Edificio Mitre")
	a.createTenant(t, propertyID, "1A", "Alvarez")
	expenseID := a.recordExpense(t, propertyID, "Cleaning", 100)

	var result api.GenerationResultDTO
	rec := a.do(t, http.MethodPost, "/api/invoices/generate", generateBody(propertyID), &result)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, result.Created, 1)

	rec = a.do(t, http.MethodPut, "/api/expenses/"+expenseID, map[string]any{
		"description":  "Cleaning",
		"amount":       500.0,
		"category":     "cleaning",
		"incurred_at":  "2025-03-05",
		"period_month": 3,
		"period_year":  2025,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var inv api.InvoiceDTO
	rec = a.do(t, http.MethodGet, "/api/invoices/"+result.Created[0].ID, nil, &inv)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100.0, inv.TotalAmount)
	require.Len(t, inv.Lines, 1)
	assert.Equal(t, 100.0, inv.Lines[0].Amount)
}
