package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission review outcome enums.
const (
	ReviewOutcomePending  = "pending"
	ReviewOutcomeApproved = "approved"
	ReviewOutcomeRejected = "rejected"
)

// Submission is a contractor's attempt to satisfy a work item. A work item
// accumulates submissions across reject/resubmit cycles; only the most
// recent one is the active submission.
type Submission struct {
	ID           uuid.UUID  `json:"id"`
	WorkItemID   uuid.UUID  `json:"work_item_id"`
	ContractorID uuid.UUID  `json:"contractor_id"`
	ArtifactURLs []string   `json:"artifact_urls"`
	Notes        string     `json:"notes,omitempty"`
	Outcome      string     `json:"outcome"`
	ReviewNotes  string     `json:"review_notes,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
	ReviewedAt   *time.Time `json:"reviewed_at,omitempty"`
}
