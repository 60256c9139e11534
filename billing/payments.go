/*
payments.go - Invoice payment state machine

PURPOSE:
  Advances invoices through their payment lifecycle. Only the
  pending -> paid transition is implemented; overdue and voided exist in
  the status enumeration but no transition into them is defined here.
  Requesting one returns ErrUnsupportedTransition rather than guessing at
  semantics that were never specified.

ATOMICITY:
  The check-then-set on status happens inside the ledger's MarkPaid
  (a conditional update keyed on status = pending), so two concurrent
  payment confirmations cannot both succeed. This processor adds the
  timestamping and the transition table on top.

SEE ALSO:
  - ledger.go: MarkPaid contract
  - engine.go: Creates invoices in the pending state
*/
package billing

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PAYMENT PROCESSOR
// =============================================================================

// PaymentProcessor mutates invoice payment state through the ledger.
type PaymentProcessor struct {
	Ledger InvoiceLedger

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

func NewPaymentProcessor(ledger InvoiceLedger) *PaymentProcessor {
	return &PaymentProcessor{
		Ledger: ledger,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// MarkPaid transitions an invoice from pending to paid and stamps PaidAt.
//
// Fails with ErrInvoiceNotFound if the invoice does not exist and with
// AlreadyPaidError if it was already settled: callers must be able to tell
// "nothing happened because already done" apart from success.
func (p *PaymentProcessor) MarkPaid(ctx context.Context, id InvoiceID) (Invoice, error) {
	return p.Ledger.MarkPaid(ctx, id, p.Now())
}

// Transition requests an explicit status change. Only pending -> paid is
// supported; everything else is rejected with ErrUnsupportedTransition.
func (p *PaymentProcessor) Transition(ctx context.Context, id InvoiceID, target InvoiceStatus) (Invoice, error) {
	if target != StatusPaid {
		return Invoice{}, fmt.Errorf("%w: to %q", ErrUnsupportedTransition, target)
	}
	return p.MarkPaid(ctx, id)
}
