package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract status enums.
const (
	ContractStatusDraft      = "draft"
	ContractStatusActive     = "active"
	ContractStatusCompleted  = "completed"
	ContractStatusTerminated = "terminated"
)

// Contract is an optional grouping of work items belonging to exactly one
// business and (usually) one contractor.
type Contract struct {
	ID              uuid.UUID  `json:"id"`
	BusinessID      uuid.UUID  `json:"business_id"`
	ContractorID    *uuid.UUID `json:"contractor_id,omitempty"`
	Title           string     `json:"title"`
	Status          string     `json:"status"`
	TotalValueCents int64      `json:"total_value_cents"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
