package payments

import (
	"fmt"

	"github.com/google/uuid"
)

// ProcessorError reports a transfer that failed or whose outcome is unknown.
// It is always retryable through reconciliation with the same idempotency
// key; the work item stays approved until the payment resolves.
type ProcessorError struct {
	PaymentID uuid.UUID
	Ambiguous bool
	Err       error
}

func (e *ProcessorError) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("payment %s outcome unknown, pending reconciliation: %v", e.PaymentID, e.Err)
	}
	return fmt.Sprintf("payment %s transfer failed: %v", e.PaymentID, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }

// ConsistencyError is a detected invariant violation: a payment already
// exists where none should. The operation aborts; nothing is auto-corrected.
type ConsistencyError struct {
	WorkItemID        uuid.UUID
	ExistingPaymentID uuid.UUID
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("work item %s already has payment %s", e.WorkItemID, e.ExistingPaymentID)
}

// BudgetExceededError rejects a payment that would push the business past
// its budget cap for the current period.
type BudgetExceededError struct {
	BusinessID  uuid.UUID
	CapCents    int64
	SpentCents  int64
	AmountCents int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("business %s budget exceeded: spent %d + amount %d > cap %d",
		e.BusinessID, e.SpentCents, e.AmountCents, e.CapCents)
}
