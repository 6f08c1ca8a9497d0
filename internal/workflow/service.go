// Package workflow owns the work item lifecycle:
//
//	Draft → Open → Assigned → Submitted → {Approved | Rejected} → Paid
//
// with terminal Declined and Cancelled, and Rejected → Submitted as the
// resubmission cycle. Every transition runs in a transaction holding the
// work item's row lock, and every mutation requires a guard.Capability, so
// an unauthorized code path cannot compile.
package workflow

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
	"github.com/zoevanderzee/interlincRender-sub005/internal/payments"
)

// WorkItemStore is the work item persistence surface.
type WorkItemStore interface {
	Create(ctx context.Context, w *models.WorkItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkItem, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WorkItem, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, w *models.WorkItem) error
	InsertTransitionTx(ctx context.Context, tx pgx.Tx, t *models.WorkItemTransition) error
}

// SubmissionStore is the submission persistence surface.
type SubmissionStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, s *models.Submission) error
	ActiveByWorkItemTx(ctx context.Context, tx pgx.Tx, workItemID uuid.UUID) (*models.Submission, error)
	SetOutcomeTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, outcome, reviewNotes string, reviewedAt time.Time) error
}

// ContractStore verifies that a linked contract belongs to the same business.
type ContractStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
}

// Orchestrator is the payment surface the approval transition drives.
// ExecutePayment runs inside the approval transaction so the state change
// and the payment row are atomic as a unit.
type Orchestrator interface {
	ExecutePayment(ctx context.Context, tx pgx.Tx, cap guard.Capability, item *models.WorkItem) (*models.Payment, error)
	ExistingPayment(ctx context.Context, tx pgx.Tx, workItemID uuid.UUID) (*models.Payment, error)
}

// TxBeginner abstracts pgxpool.Pool for tests.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service applies lifecycle transitions.
type Service struct {
	Pool        TxBeginner
	Items       WorkItemStore
	Submissions SubmissionStore
	Contracts   ContractStore
	Payments    Orchestrator
	Logger      *slog.Logger
	Now         func() time.Time
}

func NewService(pool TxBeginner, items WorkItemStore, submissions SubmissionStore, contracts ContractStore, orchestrator Orchestrator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Pool:        pool,
		Items:       items,
		Submissions: submissions,
		Contracts:   contracts,
		Payments:    orchestrator,
		Logger:      logger,
		Now:         time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateInput holds the fields for a new work item.
type CreateInput struct {
	BusinessID   uuid.UUID
	ContractID   *uuid.UUID
	ContractorID *uuid.UUID
	Title        string
	Deliverable  string
	AmountCents  int64
	Currency     string
	DueDate      *time.Time
}

// Create makes a new work item. Items with a payable amount and deliverable
// spec start Open; incomplete ones start Draft and are published later.
func (s *Service) Create(ctx context.Context, actor guard.Actor, in CreateInput) (*models.WorkItem, error) {
	if _, err := guard.Authorize(actor, guard.OpCreate, guard.Resource{BusinessID: in.BusinessID}); err != nil {
		return nil, err
	}

	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.AmountCents < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	if in.Currency != "" && len(in.Currency) != 3 {
		return nil, fmt.Errorf("%w: bad currency %q", ErrValidation, in.Currency)
	}
	if in.ContractID != nil {
		contract, err := s.Contracts.GetByID(ctx, *in.ContractID)
		if err != nil {
			return nil, fmt.Errorf("resolve contract: %w", err)
		}
		if contract.BusinessID != in.BusinessID {
			return nil, fmt.Errorf("%w: contract belongs to another business", ErrValidation)
		}
	}

	status := models.WorkItemStatusDraft
	if in.AmountCents > 0 && in.Deliverable != "" {
		if in.Currency == "" {
			return nil, fmt.Errorf("%w: currency is required to publish", ErrValidation)
		}
		status = models.WorkItemStatusOpen
	}

	item := &models.WorkItem{
		ID:           uuid.New(),
		BusinessID:   in.BusinessID,
		ContractID:   in.ContractID,
		ContractorID: in.ContractorID,
		Title:        in.Title,
		Deliverable:  in.Deliverable,
		AmountCents:  in.AmountCents,
		Currency:     in.Currency,
		Status:       status,
		DueDate:      in.DueDate,
	}
	if err := s.Items.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Publish moves a draft item to Open once it carries an amount and
// deliverable spec.
func (s *Service) Publish(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error) {
	return s.transition(ctx, actor, itemID, guard.OpUpdate, models.WorkItemStatusOpen,
		func(tx pgx.Tx, cap guard.Capability, item *models.WorkItem) error {
			if item.Status != models.WorkItemStatusDraft {
				return &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusOpen}
			}
			if item.AmountCents <= 0 || item.Deliverable == "" || item.Currency == "" {
				return fmt.Errorf("%w: amount, currency, and deliverable are required to publish", ErrValidation)
			}
			item.Status = models.WorkItemStatusOpen
			return nil
		})
}

// Assign sets the contractor on an open item: Open → Assigned.
func (s *Service) Assign(ctx context.Context, actor guard.Actor, itemID, contractorID uuid.UUID) (*models.WorkItem, error) {
	return s.transition(ctx, actor, itemID, guard.OpAssign, models.WorkItemStatusAssigned,
		func(tx pgx.Tx, cap guard.Capability, item *models.WorkItem) error {
			if item.Status != models.WorkItemStatusOpen {
				return &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusAssigned}
			}
			now := s.now()
			item.ContractorID = &contractorID
			item.Status = models.WorkItemStatusAssigned
			item.AssignedAt = &now
			return nil
		})
}

// Accept lets the offered contractor take the item: Open → Assigned.
// Accepting an already-assigned item is a no-op.
func (s *Service) Accept(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error) {
	return s.transition(ctx, actor, itemID, guard.OpAccept, models.WorkItemStatusAssigned,
		func(tx pgx.Tx, cap guard.Capability, item *models.WorkItem) error {
			switch item.Status {
			case models.WorkItemStatusAssigned:
				return errNoop
			case models.WorkItemStatusOpen:
				now := s.now()
				item.Status = models.WorkItemStatusAssigned
				item.AssignedAt = &now
				return nil
			default:
				return &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusAssigned}
			}
		})
}

// Decline is terminal: Assigned → Declined. The business clones a new item
// to re-offer the work.
func (s *Service) Decline(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error) {
	return s.transition(ctx, actor, itemID, guard.OpDecline, models.WorkItemStatusDeclined,
		func(tx pgx.Tx, cap guard.Capability, item *models.WorkItem) error {
			if item.Status != models.WorkItemStatusAssigned {
				return &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusDeclined}
			}
			item.Status = models.WorkItemStatusDeclined
			return nil
		})
}

// Submit creates a submission: Assigned → Submitted, or Rejected →
// Submitted on resubmission. Prior submissions are retained.
func (s *Service) Submit(ctx context.Context, actor guard.Actor, itemID uuid.UUID, artifactURLs []string, notes string) (*models.WorkItem, *models.Submission, error) {
	if len(artifactURLs) == 0 && notes == "" {
		return nil, nil, fmt.Errorf("%w: a submission needs at least one artifact or notes", ErrValidation)
	}

	var sub *models.Submission
	item, err := s.transition(ctx, actor, itemID, guard.OpSubmit, models.WorkItemStatusSubmitted,
		func(tx pgx.Tx, cap guard.Capability, item *models.WorkItem) error {
			if item.Status != models.WorkItemStatusAssigned && item.Status != models.WorkItemStatusRejected {
				return &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusSubmitted}
			}
			now := s.now()
			sub = &models.Submission{
				ID:           uuid.New(),
				WorkItemID:   item.ID,
				ContractorID: cap.Actor().ID,
				ArtifactURLs: artifactURLs,
				Notes:        notes,
				Outcome:      models.ReviewOutcomePending,
				SubmittedAt:  now,
			}
			if err := s.Submissions.CreateTx(ctx, tx, sub); err != nil {
				return fmt.Errorf("create submission: %w", err)
			}
			item.Status = models.WorkItemStatusSubmitted
			item.SubmittedAt = &now
			return nil
		})
	if err != nil {
		return nil, nil, err
	}
	return item, sub, nil
}

// Approve applies Submitted → Approved and triggers the payment orchestrator
// inside the same transaction. Approving an already approved or paid item is
// an idempotent no-op that returns the existing payment, never a new charge.
// A returned *payments.ProcessorError is non-fatal: the approval and the
// payment row are committed, and reconciliation retries the transfer.
func (s *Service) Approve(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, *models.Payment, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	item, err := s.Items.GetByIDForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, nil, err
	}
	cap, err := guard.Authorize(actor, guard.OpApprove, resourceOf(item))
	if err != nil {
		s.Logger.Warn("approve denied", "work_item_id", itemID, "actor_id", actor.ID, "error", err)
		return nil, nil, err
	}

	if item.Status == models.WorkItemStatusApproved || item.Status == models.WorkItemStatusPaid {
		existing, err := s.Payments.ExistingPayment(ctx, tx, item.ID)
		if err != nil {
			return nil, nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, nil, err
		}
		return item, existing, nil
	}
	if item.Status != models.WorkItemStatusSubmitted {
		return nil, nil, &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusApproved}
	}

	sub, err := s.Submissions.ActiveByWorkItemTx(ctx, tx, item.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load active submission: %w", err)
	}
	if sub.Outcome != models.ReviewOutcomePending {
		return nil, nil, &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusApproved}
	}

	now := s.now()
	if err := s.Submissions.SetOutcomeTx(ctx, tx, sub.ID, models.ReviewOutcomeApproved, "", now); err != nil {
		return nil, nil, fmt.Errorf("mark submission approved: %w", err)
	}

	from := item.Status
	item.Status = models.WorkItemStatusApproved
	item.ReviewedAt = &now
	if err := s.Items.UpdateTx(ctx, tx, item); err != nil {
		return nil, nil, err
	}
	if err := s.recordTransition(ctx, tx, item.ID, from, item.Status, actor.ID); err != nil {
		return nil, nil, err
	}

	payment, payErr := s.Payments.ExecutePayment(ctx, tx, cap, item)
	var procErr *payments.ProcessorError
	if payErr != nil && !errors.As(payErr, &procErr) {
		return nil, nil, payErr
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return item, payment, payErr
}

// Reject applies Submitted → Rejected with mandatory review notes; the
// contractor resubmits to loop back through Submitted.
func (s *Service) Reject(ctx context.Context, actor guard.Actor, itemID uuid.UUID, reviewNotes string) (*models.WorkItem, error) {
	if reviewNotes == "" {
		return nil, fmt.Errorf("%w: review notes are required on rejection", ErrValidation)
	}
	return s.transition(ctx, actor, itemID, guard.OpReject, models.WorkItemStatusRejected,
		func(tx pgx.Tx, cap guard.Capability, item *models.WorkItem) error {
			if item.Status != models.WorkItemStatusSubmitted {
				return &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusRejected}
			}
			sub, err := s.Submissions.ActiveByWorkItemTx(ctx, tx, item.ID)
			if err != nil {
				return fmt.Errorf("load active submission: %w", err)
			}
			now := s.now()
			if err := s.Submissions.SetOutcomeTx(ctx, tx, sub.ID, models.ReviewOutcomeRejected, reviewNotes, now); err != nil {
				return fmt.Errorf("mark submission rejected: %w", err)
			}
			item.Status = models.WorkItemStatusRejected
			item.ReviewedAt = &now
			return nil
		})
}

// Cancel is reachable from any pre-Paid state. A cancelled item can never
// be paid.
func (s *Service) Cancel(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error) {
	return s.transition(ctx, actor, itemID, guard.OpCancel, models.WorkItemStatusCancelled,
		func(tx pgx.Tx, cap guard.Capability, item *models.WorkItem) error {
			switch item.Status {
			case models.WorkItemStatusPaid, models.WorkItemStatusCancelled, models.WorkItemStatusDeclined:
				return &InvalidTransitionError{WorkItemID: item.ID, Current: item.Status, Attempted: models.WorkItemStatusCancelled}
			}
			item.Status = models.WorkItemStatusCancelled
			return nil
		})
}

// Get returns a work item the actor is allowed to read.
func (s *Service) Get(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error) {
	item, err := s.Items.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if _, err := guard.Authorize(actor, guard.OpRead, resourceOf(item)); err != nil {
		return nil, err
	}
	return item, nil
}

// errNoop signals an idempotent transition: commit nothing, return the item.
var errNoop = errors.New("transition is a no-op")

// transition runs one guarded state change: lock the row, authorize, apply,
// record the audit row, commit. Invalid attempts never partially apply.
func (s *Service) transition(
	ctx context.Context,
	actor guard.Actor,
	itemID uuid.UUID,
	op guard.Operation,
	attempted string,
	apply func(tx pgx.Tx, cap guard.Capability, item *models.WorkItem) error,
) (*models.WorkItem, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	item, err := s.Items.GetByIDForUpdate(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	cap, err := guard.Authorize(actor, op, resourceOf(item))
	if err != nil {
		s.Logger.Warn("transition denied", "work_item_id", itemID, "actor_id", actor.ID, "op", op, "error", err)
		return nil, err
	}

	from := item.Status
	if err := apply(tx, cap, item); err != nil {
		if errors.Is(err, errNoop) {
			return item, nil
		}
		return nil, err
	}

	if err := s.Items.UpdateTx(ctx, tx, item); err != nil {
		return nil, err
	}
	if err := s.recordTransition(ctx, tx, item.ID, from, item.Status, actor.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) recordTransition(ctx context.Context, tx pgx.Tx, itemID uuid.UUID, from, to string, actorID uuid.UUID) error {
	return s.Items.InsertTransitionTx(ctx, tx, &models.WorkItemTransition{
		ID:         uuid.New(),
		WorkItemID: itemID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
	})
}

func resourceOf(item *models.WorkItem) guard.Resource {
	return guard.Resource{BusinessID: item.BusinessID, ContractorID: item.ContractorID}
}
