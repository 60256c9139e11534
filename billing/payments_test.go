package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consorcio/billing-engine/billing"
	"github.com/consorcio/billing-engine/billing/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestPayments(t *testing.T) (*billing.PaymentProcessor, *store.Memory) {
	t.Helper()

	mem := store.NewMemory()
	payments := billing.NewPaymentProcessor(mem)
	payments.Now = func() time.Time {
		return time.Date(2025, time.April, 2, 9, 30, 0, 0, time.UTC)
	}
	return payments, mem
}

func seedInvoice(t *testing.T, mem *store.Memory, id string, status billing.InvoiceStatus) billing.Invoice {
	t.Helper()

	inv := billing.Invoice{
		ID:          billing.InvoiceID(id),
		PropertyID:  "prop-1",
		TenantID:    "ten-a",
		Period:      billing.NewPeriod(time.March, 2025),
		TotalAmount: billing.NewMoney(150),
		Status:      status,
	}
	if status == billing.StatusPaid {
		paidAt := time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)
		inv.PaidAt = &paidAt
	}
	require.NoError(t, mem.Insert(context.Background(), inv))
	return inv
}

// =============================================================================
// PAYMENT TESTS
// =============================================================================

func TestPayments_MarkPaid_Pending(t *testing.T) {
	// GIVEN: A pending invoice
	// WHEN: Marking it paid
	// THEN: Status becomes paid and PaidAt is stamped

	payments, mem := newTestPayments(t)
	seedInvoice(t, mem, "inv-1", billing.StatusPending)

	inv, err := payments.MarkPaid(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, inv.Status)
	require.NotNil(t, inv.PaidAt)
	assert.Equal(t, time.Date(2025, time.April, 2, 9, 30, 0, 0, time.UTC), *inv.PaidAt)
}

func TestPayments_MarkPaid_AlreadyPaid(t *testing.T) {
	// GIVEN: An invoice that was already paid on March 15
	// WHEN: Marking it paid again
	// THEN: AlreadyPaidError carrying the original timestamp; the stored
	//       PaidAt is unchanged

	payments, mem := newTestPayments(t)
	seedInvoice(t, mem, "inv-1", billing.StatusPaid)

	_, err := payments.MarkPaid(context.Background(), "inv-1")
	assert.ErrorIs(t, err, billing.ErrAlreadyPaid)

	var alreadyPaid *billing.AlreadyPaidError
	require.ErrorAs(t, err, &alreadyPaid)
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC), alreadyPaid.PaidAt)

	stored, err := mem.Get(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC), *stored.PaidAt)
}

func TestPayments_MarkPaid_NotFound(t *testing.T) {
	payments, _ := newTestPayments(t)

	_, err := payments.MarkPaid(context.Background(), "missing")
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)
}

func TestPayments_MarkPaid_ReservedState(t *testing.T) {
	// GIVEN: An invoice in the voided state (set by external logic)
	// WHEN: Marking it paid
	// THEN: ErrUnsupportedTransition; only pending invoices are payable

	payments, mem := newTestPayments(t)
	seedInvoice(t, mem, "inv-1", billing.StatusVoided)

	_, err := payments.MarkPaid(context.Background(), "inv-1")
	assert.ErrorIs(t, err, billing.ErrUnsupportedTransition)
}

func TestPayments_Transition_OnlyPaidSupported(t *testing.T) {
	// GIVEN: A pending invoice
	// WHEN: Requesting a transition to overdue or voided
	// THEN: ErrUnsupportedTransition and the invoice is untouched

	payments, mem := newTestPayments(t)
	seedInvoice(t, mem, "inv-1", billing.StatusPending)

	for _, target := range []billing.InvoiceStatus{billing.StatusOverdue, billing.StatusVoided, billing.StatusPending} {
		_, err := payments.Transition(context.Background(), "inv-1", target)
		assert.ErrorIs(t, err, billing.ErrUnsupportedTransition, "transition to %s", target)
	}

	stored, err := mem.Get(context.Background(), "inv-1")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPending, stored.Status)

	// The paid transition still works through the same entry point.
	inv, err := payments.Transition(context.Background(), "inv-1", billing.StatusPaid)
	require.NoError(t, err)
	assert.Equal(t, billing.StatusPaid, inv.Status)
}
