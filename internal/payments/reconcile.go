package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// ReconcilePaymentArgs identifies a payment whose transfer outcome must be
// resolved out of band. Jobs are inserted transactionally alongside the
// payment row, so a pending payment can never lose its reconciliation.
type ReconcilePaymentArgs struct {
	PaymentID uuid.UUID `json:"payment_id"`
}

func (ReconcilePaymentArgs) Kind() string { return "reconcile_payment" }

// PaymentResolver is the settlement contract the worker needs.
type PaymentResolver interface {
	Resolve(ctx context.Context, paymentID uuid.UUID) error
}

const reconcilePollInterval = 30 * time.Second

// ReconcileWorker polls the processor until the payment reaches a terminal
// status. Failures return an error so River retries with backoff; a retry
// re-issues the transfer under the same idempotency key.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcilePaymentArgs]
	payments PaymentResolver
}

func NewReconcileWorker(payments PaymentResolver) *ReconcileWorker {
	return &ReconcileWorker{payments: payments}
}

func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcilePaymentArgs]) error {
	err := w.payments.Resolve(ctx, job.Args.PaymentID)
	if errors.Is(err, ErrStillPending) {
		return river.JobSnooze(reconcilePollInterval)
	}
	return err
}
