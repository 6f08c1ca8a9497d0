// Package payments owns payment execution and settlement: it creates exactly
// one payment per approved work item, invokes the external processor with a
// deterministic idempotency key, and resolves processing payments to a
// terminal status via webhook or reconciliation.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
	"github.com/zoevanderzee/interlincRender-sub005/internal/processor"
)

// PaymentStore is the payment persistence surface the orchestrator needs.
type PaymentStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	GetByWorkItemTx(ctx context.Context, tx pgx.Tx, workItemID uuid.UUID) (*models.Payment, error)
	SetStatus(ctx context.Context, id uuid.UUID, status, externalTransferID string, completedAt *time.Time) error
	SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, externalTransferID string, completedAt *time.Time) error
	PeriodSpendTx(ctx context.Context, tx pgx.Tx, businessID uuid.UUID, since time.Time) (int64, error)
}

// WorkItemStore lets settlement flip an approved item to paid under its row lock.
type WorkItemStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WorkItem, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, w *models.WorkItem) error
	InsertTransitionTx(ctx context.Context, tx pgx.Tx, t *models.WorkItemTransition) error
}

// ContractorStore resolves the transfer destination.
type ContractorStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contractor, error)
}

// BusinessStore resolves budget caps.
type BusinessStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Business, error)
}

// TxBeginner abstracts pgxpool.Pool for tests.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// InsertReconcileJobTxFunc enqueues a reconciliation job within the given
// transaction. Provided by main as a closure over river.Client.InsertTx.
type InsertReconcileJobTxFunc func(ctx context.Context, tx pgx.Tx, args ReconcilePaymentArgs) error

// ErrValidation wraps malformed direct-payment input.
var ErrValidation = errors.New("validation failed")

// Service is the payment orchestrator.
type Service struct {
	Pool               TxBeginner
	Payments           PaymentStore
	Items              WorkItemStore
	Contractors        ContractorStore
	Businesses         BusinessStore
	Processor          processor.Client
	InsertReconcileJob InsertReconcileJobTxFunc
	Logger             *slog.Logger
	Now                func() time.Time
}

func NewService(
	pool TxBeginner,
	paymentStore PaymentStore,
	itemStore WorkItemStore,
	contractorStore ContractorStore,
	businessStore BusinessStore,
	proc processor.Client,
	insertReconcileJob InsertReconcileJobTxFunc,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Pool:               pool,
		Payments:           paymentStore,
		Items:              itemStore,
		Contractors:        contractorStore,
		Businesses:         businessStore,
		Processor:          proc,
		InsertReconcileJob: insertReconcileJob,
		Logger:             logger,
		Now:                time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// IdempotencyKeyFor derives the stable transfer key for a work item. The key
// never changes across resubmission cycles, so one approval yields one transfer.
func IdempotencyKeyFor(workItemID uuid.UUID) string {
	return "wi-" + workItemID.String()
}

// ExistingPayment returns the payment already created for the work item, or
// nil when none exists.
func (s *Service) ExistingPayment(ctx context.Context, tx pgx.Tx, workItemID uuid.UUID) (*models.Payment, error) {
	p, err := s.Payments.GetByWorkItemTx(ctx, tx, workItemID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ExecutePayment runs inside the approval transaction, with the work item
// row lock held. It persists the payment row before the transaction returns
// to the caller, so the approved state and the payment record exist or fail
// together. The returned *ProcessorError is non-fatal: the payment row is
// persisted and the reconciliation job will retry with the same key.
func (s *Service) ExecutePayment(ctx context.Context, tx pgx.Tx, cap guard.Capability, item *models.WorkItem) (*models.Payment, error) {
	if cap.Resource().BusinessID != item.BusinessID {
		return nil, &guard.DeniedError{
			ActorID: cap.Actor().ID,
			Role:    cap.Actor().Role,
			Op:      cap.Operation(),
			Reason:  "capability does not cover this business",
		}
	}

	if existing, err := s.ExistingPayment(ctx, tx, item.ID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &ConsistencyError{WorkItemID: item.ID, ExistingPaymentID: existing.ID}
	}

	if err := s.checkBudgetTx(ctx, tx, item.BusinessID, item.AmountCents); err != nil {
		return nil, err
	}

	if item.ContractorID == nil {
		return nil, fmt.Errorf("%w: work item %s has no contractor", ErrValidation, item.ID)
	}
	contractor, err := s.Contractors.GetByID(ctx, *item.ContractorID)
	if err != nil {
		return nil, fmt.Errorf("resolve contractor: %w", err)
	}
	if contractor.ConnectedAccountID == "" {
		return nil, fmt.Errorf("%w: contractor %s has no connected account", ErrValidation, contractor.ID)
	}

	link := models.WorkItemLinked(item.ID)
	if item.ContractID != nil {
		link = models.ContractLinked(*item.ContractID, item.ID)
	}

	p := &models.Payment{
		ID:             uuid.New(),
		BusinessID:     item.BusinessID,
		Link:           link,
		AmountCents:    item.AmountCents,
		Currency:       item.Currency,
		Status:         models.PaymentStatusProcessing,
		Destination:    contractor.ConnectedAccountID,
		IdempotencyKey: IdempotencyKeyFor(item.ID),
		ScheduledAt:    s.now(),
	}

	transfer, transferErr := s.Processor.Transfer(ctx, processor.TransferRequest{
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		Destination:    p.Destination,
		IdempotencyKey: p.IdempotencyKey,
		Metadata: map[string]string{
			"business_id":  item.BusinessID.String(),
			"work_item_id": item.ID.String(),
		},
	})

	var procErr *ProcessorError
	var ambiguous *processor.AmbiguousError
	switch {
	case transferErr == nil:
		// Completed is only believed after the async confirmation; the row
		// stays processing until the webhook or reconciler says otherwise.
		p.ExternalTransferID = transfer.ID
	case errors.As(transferErr, &ambiguous):
		procErr = &ProcessorError{PaymentID: p.ID, Ambiguous: true, Err: transferErr}
	default:
		p.Status = models.PaymentStatusFailed
		procErr = &ProcessorError{PaymentID: p.ID, Err: transferErr}
	}

	if err := s.Payments.CreateTx(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}
	if err := s.InsertReconcileJob(ctx, tx, ReconcilePaymentArgs{PaymentID: p.ID}); err != nil {
		return nil, fmt.Errorf("enqueue reconcile job: %w", err)
	}

	if procErr != nil {
		s.Logger.Warn("transfer not confirmed, reconciliation queued",
			"payment_id", p.ID, "work_item_id", item.ID, "ambiguous", procErr.Ambiguous, "error", transferErr)
		return p, procErr
	}
	return p, nil
}

// DirectPaymentInput is the request for a payment not tied to any contract
// or work item.
type DirectPaymentInput struct {
	BusinessID   uuid.UUID
	ContractorID *uuid.UUID
	Destination  string
	AmountCents  int64
	Currency     string
	Notes        string
}

// ExecuteDirect creates and executes a direct payment. The business is
// attributed via the denormalized business_id column only.
func (s *Service) ExecuteDirect(ctx context.Context, cap guard.Capability, in DirectPaymentInput) (*models.Payment, error) {
	if cap.Resource().BusinessID != in.BusinessID {
		return nil, &guard.DeniedError{
			ActorID: cap.Actor().ID,
			Role:    cap.Actor().Role,
			Op:      cap.Operation(),
			Reason:  "capability does not cover this business",
		}
	}

	if in.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be > 0", ErrValidation)
	}
	if len(in.Currency) != 3 {
		return nil, fmt.Errorf("%w: bad currency %q", ErrValidation, in.Currency)
	}
	destination := in.Destination
	if in.ContractorID != nil {
		contractor, err := s.Contractors.GetByID(ctx, *in.ContractorID)
		if err != nil {
			return nil, fmt.Errorf("resolve contractor: %w", err)
		}
		destination = contractor.ConnectedAccountID
	}
	if destination == "" {
		return nil, fmt.Errorf("%w: destination required", ErrValidation)
	}

	p := &models.Payment{
		ID:          uuid.New(),
		BusinessID:  in.BusinessID,
		Link:        models.DirectLink(),
		AmountCents: in.AmountCents,
		Currency:    in.Currency,
		Status:      models.PaymentStatusProcessing,
		Destination: destination,
		Notes:       in.Notes,
		ScheduledAt: s.now(),
	}
	p.IdempotencyKey = "direct-" + p.ID.String()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.checkBudgetTx(ctx, tx, in.BusinessID, in.AmountCents); err != nil {
		return nil, err
	}

	transfer, transferErr := s.Processor.Transfer(ctx, processor.TransferRequest{
		AmountCents:    p.AmountCents,
		Currency:       p.Currency,
		Destination:    p.Destination,
		IdempotencyKey: p.IdempotencyKey,
		Metadata:       map[string]string{"business_id": in.BusinessID.String()},
	})

	var procErr *ProcessorError
	var ambiguous *processor.AmbiguousError
	switch {
	case transferErr == nil:
		p.ExternalTransferID = transfer.ID
	case errors.As(transferErr, &ambiguous):
		procErr = &ProcessorError{PaymentID: p.ID, Ambiguous: true, Err: transferErr}
	default:
		p.Status = models.PaymentStatusFailed
		procErr = &ProcessorError{PaymentID: p.ID, Err: transferErr}
	}

	if err := s.Payments.CreateTx(ctx, tx, p); err != nil {
		return nil, fmt.Errorf("persist direct payment: %w", err)
	}
	if err := s.InsertReconcileJob(ctx, tx, ReconcilePaymentArgs{PaymentID: p.ID}); err != nil {
		return nil, fmt.Errorf("enqueue reconcile job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if procErr != nil {
		s.Logger.Warn("direct transfer not confirmed, reconciliation queued",
			"payment_id", p.ID, "business_id", in.BusinessID, "ambiguous", procErr.Ambiguous, "error", transferErr)
		return p, procErr
	}
	return p, nil
}

// checkBudgetTx recomputes period spend from the payments table; there is no
// cached counter to drift.
func (s *Service) checkBudgetTx(ctx context.Context, tx pgx.Tx, businessID uuid.UUID, amountCents int64) error {
	business, err := s.Businesses.GetByID(ctx, businessID)
	if err != nil {
		return fmt.Errorf("resolve business: %w", err)
	}
	if business.BudgetCapCents == nil {
		return nil
	}
	spent, err := s.Payments.PeriodSpendTx(ctx, tx, businessID, periodStart(s.now(), business.BudgetPeriod))
	if err != nil {
		return fmt.Errorf("compute period spend: %w", err)
	}
	if spent+amountCents > *business.BudgetCapCents {
		return &BudgetExceededError{
			BusinessID:  businessID,
			CapCents:    *business.BudgetCapCents,
			SpentCents:  spent,
			AmountCents: amountCents,
		}
	}
	return nil
}

func periodStart(now time.Time, period string) time.Time {
	now = now.UTC()
	if period == models.BudgetPeriodAnnual {
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
