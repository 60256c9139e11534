/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract. Amounts cross
  the wire as float64; all domain math stays decimal.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator/v10 struct tags; handlers run them through
  a shared validator instance before touching the domain.

SEE ALSO:
  - handlers.go: Uses these types
  - billing/types.go: The domain model these mirror
*/
package api

import (
	"time"

	"github.com/consorcio/billing-engine/billing"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreatePropertyRequest creates a building record.
type CreatePropertyRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
}

// CreateTenantRequest registers a billable unit under a property.
type CreateTenantRequest struct {
	ID       string `json:"id"`
	Unit     string `json:"unit" validate:"required"`
	UnitType string `json:"unit_type"`
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone"`
}

// RecordExpenseRequest records an operating cost against a billing period.
type RecordExpenseRequest struct {
	PropertyID  string  `json:"property_id" validate:"required"`
	Description string  `json:"description" validate:"required"`
	Amount      float64 `json:"amount" validate:"gte=0"`
	Category    string  `json:"category"`
	IncurredAt  string  `json:"incurred_at"` // YYYY-MM-DD, defaults to today
	PeriodMonth int     `json:"period_month" validate:"min=1,max=12"`
	PeriodYear  int     `json:"period_year" validate:"min=2000"`
}

// UpdateExpenseRequest mutates a recorded expense. Generated invoices keep
// their frozen copies.
type UpdateExpenseRequest struct {
	Description string  `json:"description" validate:"required"`
	Amount      float64 `json:"amount" validate:"gte=0"`
	Category    string  `json:"category"`
	IncurredAt  string  `json:"incurred_at"`
	PeriodMonth int     `json:"period_month" validate:"min=1,max=12"`
	PeriodYear  int     `json:"period_year" validate:"min=2000"`
}

// GenerateInvoicesRequest triggers an allocation run.
type GenerateInvoicesRequest struct {
	PropertyID  string `json:"property_id" validate:"required"`
	PeriodMonth int    `json:"period_month" validate:"min=1,max=12"`
	PeriodYear  int    `json:"period_year" validate:"min=2000"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type PropertyDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Address   string `json:"address,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type TenantDTO struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	Unit       string `json:"unit"`
	UnitType   string `json:"unit_type"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

type ExpenseDTO struct {
	ID          string  `json:"id"`
	PropertyID  string  `json:"property_id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	IncurredAt  string  `json:"incurred_at"`
	PeriodMonth int     `json:"period_month"`
	PeriodYear  int     `json:"period_year"`
}

type LineItemDTO struct {
	ExpenseID   string  `json:"expense_id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type InvoiceDTO struct {
	ID          string        `json:"id"`
	PropertyID  string        `json:"property_id"`
	TenantID    string        `json:"tenant_id"`
	PeriodMonth int           `json:"period_month"`
	PeriodYear  int           `json:"period_year"`
	TotalAmount float64       `json:"total_amount"`
	Lines       []LineItemDTO `json:"lines"`
	DueDate     string        `json:"due_date"`
	Status      string        `json:"status"`
	PaidAt      *string       `json:"paid_at,omitempty"`
	CreatedAt   string        `json:"created_at,omitempty"`
}

// GenerationResultDTO reports a run's outcome: never a bare success bool.
type GenerationResultDTO struct {
	Created          []InvoiceDTO `json:"created"`
	SkippedTenantIDs []string     `json:"skipped_tenant_ids"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toPropertyDTO(p billing.Property) PropertyDTO {
	return PropertyDTO{
		ID:        string(p.ID),
		Name:      p.Name,
		Address:   p.Address,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func toTenantDTO(t billing.Tenant) TenantDTO {
	return TenantDTO{
		ID:         string(t.ID),
		PropertyID: string(t.PropertyID),
		Unit:       t.Unit,
		UnitType:   string(t.UnitType),
		Name:       t.Name,
		Email:      t.Email,
		Phone:      t.Phone,
	}
}

func toExpenseDTO(e billing.Expense) ExpenseDTO {
	amount, _ := e.Amount.Value.Float64()
	return ExpenseDTO{
		ID:          string(e.ID),
		PropertyID:  string(e.PropertyID),
		Description: e.Description,
		Amount:      amount,
		Category:    string(e.Category),
		IncurredAt:  e.IncurredAt.Format("2006-01-02"),
		PeriodMonth: int(e.Period.Month),
		PeriodYear:  e.Period.Year,
	}
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	total, _ := inv.TotalAmount.Value.Float64()

	lines := make([]LineItemDTO, len(inv.Lines))
	for i, l := range inv.Lines {
		amount, _ := l.Amount.Value.Float64()
		lines[i] = LineItemDTO{
			ExpenseID:   string(l.ExpenseID),
			Description: l.Description,
			Amount:      amount,
		}
	}

	dto := InvoiceDTO{
		ID:          string(inv.ID),
		PropertyID:  string(inv.PropertyID),
		TenantID:    string(inv.TenantID),
		PeriodMonth: int(inv.Period.Month),
		PeriodYear:  inv.Period.Year,
		TotalAmount: total,
		Lines:       lines,
		DueDate:     inv.DueDate.Format("2006-01-02"),
		Status:      string(inv.Status),
		CreatedAt:   inv.CreatedAt.Format(time.RFC3339),
	}
	if inv.PaidAt != nil {
		paidAt := inv.PaidAt.Format(time.RFC3339)
		dto.PaidAt = &paidAt
	}
	return dto
}

func toInvoiceDTOs(invoices []billing.Invoice) []InvoiceDTO {
	dtos := make([]InvoiceDTO, len(invoices))
	for i, inv := range invoices {
		dtos[i] = toInvoiceDTO(inv)
	}
	return dtos
}

func toGenerationResultDTO(result *billing.GenerationResult) GenerationResultDTO {
	skipped := make([]string, len(result.SkippedTenantIDs))
	for i, id := range result.SkippedTenantIDs {
		skipped[i] = string(id)
	}
	return GenerationResultDTO{
		Created:          toInvoiceDTOs(result.Created),
		SkippedTenantIDs: skipped,
	}
}
