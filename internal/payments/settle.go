package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
	"github.com/zoevanderzee/interlincRender-sub005/internal/processor"
)

// ErrStillPending is returned by Resolve while the processor still reports
// the transfer as pending.
var ErrStillPending = errors.New("transfer still pending")

// ErrTransferFailed is returned by Resolve when the processor reports a
// definitive failure; the payment stays failed and retryable.
var ErrTransferFailed = errors.New("transfer failed")

// ApplyTransferOutcome records a terminal transfer status reported by the
// processor (webhook or poll). On completed it flips an approved work item
// to paid under the item's row lock; a cancelled item is never flipped.
func (s *Service) ApplyTransferOutcome(ctx context.Context, paymentID uuid.UUID, status, externalTransferID string) error {
	if status != models.PaymentStatusCompleted && status != models.PaymentStatusFailed {
		return fmt.Errorf("%w: transfer status %q is not terminal", ErrValidation, status)
	}

	p, err := s.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if p.Status == models.PaymentStatusCompleted {
		// Already settled; confirmations are idempotent.
		return nil
	}

	if status == models.PaymentStatusFailed {
		return s.Payments.SetStatus(ctx, p.ID, models.PaymentStatusFailed, externalTransferID, nil)
	}

	now := s.now()

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if p.Link.WorkItemID != nil {
		item, err := s.Items.GetByIDForUpdate(ctx, tx, *p.Link.WorkItemID)
		if err != nil {
			return fmt.Errorf("lock work item: %w", err)
		}
		switch item.Status {
		case models.WorkItemStatusApproved:
			from := item.Status
			item.Status = models.WorkItemStatusPaid
			item.PaidAt = &now
			if err := s.Items.UpdateTx(ctx, tx, item); err != nil {
				return fmt.Errorf("mark work item paid: %w", err)
			}
			if err := s.Items.InsertTransitionTx(ctx, tx, &models.WorkItemTransition{
				ID:         uuid.New(),
				WorkItemID: item.ID,
				FromStatus: from,
				ToStatus:   models.WorkItemStatusPaid,
				ActorID:    models.SystemActorID,
			}); err != nil {
				return fmt.Errorf("record paid transition: %w", err)
			}
		case models.WorkItemStatusPaid:
			// Duplicate confirmation; nothing to do.
		default:
			// A cancelled item keeps its state: the money moved, the item
			// must never read as paid. Flagged for manual investigation.
			s.Logger.Error("transfer completed for work item not in approved state",
				"payment_id", p.ID, "work_item_id", item.ID, "status", item.Status)
		}
	}

	if err := s.Payments.SetStatusTx(ctx, tx, p.ID, models.PaymentStatusCompleted, externalTransferID, &now); err != nil {
		return fmt.Errorf("mark payment completed: %w", err)
	}
	return tx.Commit(ctx)
}

// Resolve drives a non-terminal payment to a definite outcome. It queries
// the processor by idempotency key; if the original call never arrived (or
// failed), it re-issues the transfer with the same key; the processor
// deduplicates, so this can never double-pay.
func (s *Service) Resolve(ctx context.Context, paymentID uuid.UUID) error {
	p, err := s.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if p.Status == models.PaymentStatusCompleted {
		return nil
	}

	transfer, err := s.Processor.GetTransfer(ctx, p.IdempotencyKey)
	needRetry := errors.Is(err, processor.ErrTransferNotFound) || (err == nil && transfer.Status == processor.TransferStatusFailed)
	if err != nil && !errors.Is(err, processor.ErrTransferNotFound) {
		return fmt.Errorf("poll transfer: %w", err)
	}

	if needRetry {
		metadata := map[string]string{"business_id": p.BusinessID.String()}
		if p.Link.WorkItemID != nil {
			metadata["work_item_id"] = p.Link.WorkItemID.String()
		}
		transfer, err = s.Processor.Transfer(ctx, processor.TransferRequest{
			AmountCents:    p.AmountCents,
			Currency:       p.Currency,
			Destination:    p.Destination,
			IdempotencyKey: p.IdempotencyKey,
			Metadata:       metadata,
		})
		if err != nil {
			// A timeout on the retry is still an ambiguous outcome: the
			// transfer may have gone through. The payment stays processing
			// until a poll by idempotency key says otherwise.
			var ambiguous *processor.AmbiguousError
			if errors.As(err, &ambiguous) {
				return ErrStillPending
			}
			if setErr := s.Payments.SetStatus(ctx, p.ID, models.PaymentStatusFailed, "", nil); setErr != nil {
				return fmt.Errorf("mark payment failed: %w", setErr)
			}
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}

	switch transfer.Status {
	case processor.TransferStatusPending:
		if p.ExternalTransferID == "" && transfer.ID != "" {
			if err := s.Payments.SetStatus(ctx, p.ID, models.PaymentStatusProcessing, transfer.ID, nil); err != nil {
				return fmt.Errorf("record transfer id: %w", err)
			}
		}
		return ErrStillPending
	case processor.TransferStatusCompleted:
		return s.ApplyTransferOutcome(ctx, p.ID, models.PaymentStatusCompleted, transfer.ID)
	case processor.TransferStatusFailed:
		if err := s.ApplyTransferOutcome(ctx, p.ID, models.PaymentStatusFailed, transfer.ID); err != nil {
			return err
		}
		return ErrTransferFailed
	default:
		return fmt.Errorf("unknown transfer status %q for payment %s", transfer.Status, p.ID)
	}
}
