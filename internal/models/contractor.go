package models

import (
	"time"

	"github.com/google/uuid"
)

// Contractor is a worker identity that can be assigned work items.
// ConnectedAccountID is the payment processor's connected-account
// destination for transfers; payouts are impossible without it.
type Contractor struct {
	ID                 uuid.UUID `json:"id"`
	DisplayName        string    `json:"display_name"`
	ConnectedAccountID string    `json:"connected_account_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
