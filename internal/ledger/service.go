package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

// Reporting periods.
const (
	PeriodMonthly  = "monthly"
	PeriodAnnual   = "annual"
	PeriodLifetime = "lifetime"
)

// Totals is the query surface for aggregate amounts.
type Totals interface {
	TotalPaid(ctx context.Context, businessID uuid.UUID, from, to time.Time) (int64, error)
	TotalEarned(ctx context.Context, contractorID uuid.UUID, from, to time.Time) (int64, error)
	PendingTotal(ctx context.Context, businessID uuid.UUID) (int64, error)
}

// PaymentLister is the list surface for statements.
type PaymentLister interface {
	ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]*models.Payment, error)
	ListByContractorID(ctx context.Context, contractorID uuid.UUID) ([]*models.Payment, error)
}

// Service is the read-only ledger query layer.
type Service struct {
	totals   Totals
	payments PaymentLister
	now      func() time.Time
}

func NewService(totals Totals, payments PaymentLister) *Service {
	return &Service{totals: totals, payments: payments, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// TotalPaid returns how much the business has paid in the period, counting
// contract-linked and direct payments alike.
func (s *Service) TotalPaid(ctx context.Context, businessID uuid.UUID, period string) (int64, error) {
	from, to, err := periodWindow(s.now(), period)
	if err != nil {
		return 0, err
	}
	return s.totals.TotalPaid(ctx, businessID, from, to)
}

// TotalEarned returns how much the contractor has earned in the period.
func (s *Service) TotalEarned(ctx context.Context, contractorID uuid.UUID, period string) (int64, error) {
	from, to, err := periodWindow(s.now(), period)
	if err != nil {
		return 0, err
	}
	return s.totals.TotalEarned(ctx, contractorID, from, to)
}

// PendingTotal returns the amount awaiting processor settlement for a business.
func (s *Service) PendingTotal(ctx context.Context, businessID uuid.UUID) (int64, error) {
	return s.totals.PendingTotal(ctx, businessID)
}

// PaymentsFor lists a business's payments, newest first.
func (s *Service) PaymentsFor(ctx context.Context, businessID uuid.UUID) ([]*models.Payment, error) {
	return s.payments.ListByBusinessID(ctx, businessID)
}

// PaymentsEarnedBy lists payments routed to a contractor.
func (s *Service) PaymentsEarnedBy(ctx context.Context, contractorID uuid.UUID) ([]*models.Payment, error) {
	return s.payments.ListByContractorID(ctx, contractorID)
}

// periodWindow resolves a period name to [from, to) bounds in UTC.
func periodWindow(now time.Time, period string) (time.Time, time.Time, error) {
	now = now.UTC()
	switch period {
	case PeriodMonthly:
		from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(0, 1, 0), nil
	case PeriodAnnual:
		from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return from, from.AddDate(1, 0, 0), nil
	case PeriodLifetime, "":
		return time.Time{}, now.AddDate(100, 0, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}
