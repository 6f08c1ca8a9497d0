package models

import (
	"time"

	"github.com/google/uuid"
)

// Budget period enums for businesses.budget_period.
const (
	BudgetPeriodMonthly = "monthly"
	BudgetPeriodAnnual  = "annual"
)

// Business is a tenant: it originates work items and funds payments.
// Its ID doubles as the account ID of the owning business user.
type Business struct {
	ID             uuid.UUID `json:"id"`
	DisplayName    string    `json:"display_name"`
	BudgetCapCents *int64    `json:"budget_cap_cents,omitempty"`
	BudgetPeriod   string    `json:"budget_period,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
