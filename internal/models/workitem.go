package models

import (
	"time"

	"github.com/google/uuid"
)

// Work item lifecycle states.
const (
	WorkItemStatusDraft     = "draft"
	WorkItemStatusOpen      = "open"
	WorkItemStatusAssigned  = "assigned"
	WorkItemStatusSubmitted = "submitted"
	WorkItemStatusApproved  = "approved"
	WorkItemStatusRejected  = "rejected"
	WorkItemStatusPaid      = "paid"
	WorkItemStatusDeclined  = "declined"
	WorkItemStatusCancelled = "cancelled"
)

// WorkItem is the unit of trackable work: a contract milestone or a
// standalone request. BusinessID is always present and denormalized even
// when ContractID is set, so ownership never depends on a join.
type WorkItem struct {
	ID           uuid.UUID  `json:"id"`
	BusinessID   uuid.UUID  `json:"business_id"`
	ContractID   *uuid.UUID `json:"contract_id,omitempty"`
	ContractorID *uuid.UUID `json:"contractor_id,omitempty"`
	Title        string     `json:"title"`
	Deliverable  string     `json:"deliverable"`
	AmountCents  int64      `json:"amount_cents"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// WorkItemTransition is the audit record of one applied lifecycle
// transition. Rows are append-only.
type WorkItemTransition struct {
	ID         uuid.UUID `json:"id"`
	WorkItemID uuid.UUID `json:"work_item_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    uuid.UUID `json:"actor_id"`
	CreatedAt  time.Time `json:"created_at"`
}
