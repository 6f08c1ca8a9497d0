package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment status enums.
const (
	PaymentStatusScheduled  = "scheduled"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
)

// Payment linkage kinds for PaymentLink.
const (
	PaymentLinkContract = "contract"
	PaymentLinkWorkItem = "work_item"
	PaymentLinkDirect   = "direct"
)

// PaymentLink is the tagged linkage of a payment: tied to a contract
// milestone, tied to a standalone work item, or direct (no contract, no
// work item). BusinessID lives on the Payment itself for every kind, so
// aggregation never branches on the linked case.
type PaymentLink struct {
	Kind       string     `json:"kind"`
	ContractID *uuid.UUID `json:"contract_id,omitempty"`
	WorkItemID *uuid.UUID `json:"work_item_id,omitempty"`
}

// ContractLinked returns the linkage for a payment against a contract milestone.
func ContractLinked(contractID, workItemID uuid.UUID) PaymentLink {
	return PaymentLink{Kind: PaymentLinkContract, ContractID: &contractID, WorkItemID: &workItemID}
}

// WorkItemLinked returns the linkage for a payment against a standalone work item.
func WorkItemLinked(workItemID uuid.UUID) PaymentLink {
	return PaymentLink{Kind: PaymentLinkWorkItem, WorkItemID: &workItemID}
}

// DirectLink returns the linkage for a direct payment, attributed to a
// business solely via Payment.BusinessID.
func DirectLink() PaymentLink {
	return PaymentLink{Kind: PaymentLinkDirect}
}

// LinkFromIDs rebuilds the tagged linkage from the nullable storage columns.
func LinkFromIDs(contractID, workItemID *uuid.UUID) PaymentLink {
	switch {
	case contractID != nil && workItemID != nil:
		return ContractLinked(*contractID, *workItemID)
	case workItemID != nil:
		return WorkItemLinked(*workItemID)
	default:
		return DirectLink()
	}
}

// Payment is the record of money moved. BusinessID is always set,
// independent of any contract or work item linkage.
type Payment struct {
	ID                 uuid.UUID   `json:"id"`
	BusinessID         uuid.UUID   `json:"business_id"`
	Link               PaymentLink `json:"link"`
	AmountCents        int64       `json:"amount_cents"`
	Currency           string      `json:"currency"`
	Status             string      `json:"status"`
	Destination        string      `json:"destination,omitempty"`
	IdempotencyKey     string      `json:"idempotency_key"`
	ExternalTransferID string      `json:"external_transfer_id,omitempty"`
	Notes              string      `json:"notes,omitempty"`
	ScheduledAt        time.Time   `json:"scheduled_at"`
	CompletedAt        *time.Time  `json:"completed_at,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}
