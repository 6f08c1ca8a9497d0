package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory totals store, aggregating a payment list the way the SQL does:
// straight over the payments, keyed by business_id, no link-kind branching.
// ---------------------------------------------------------------------------

type memStore struct {
	payments    []*models.Payment
	contractors map[uuid.UUID]uuid.UUID // work item ID -> contractor ID
}

func (m *memStore) TotalPaid(_ context.Context, businessID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64
	for _, p := range m.payments {
		if p.BusinessID != businessID || p.Status != models.PaymentStatusCompleted || p.CompletedAt == nil {
			continue
		}
		if p.CompletedAt.Before(from) || !p.CompletedAt.Before(to) {
			continue
		}
		total += p.AmountCents
	}
	return total, nil
}

func (m *memStore) TotalEarned(_ context.Context, contractorID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64
	for _, p := range m.payments {
		if p.Status != models.PaymentStatusCompleted || p.CompletedAt == nil || p.Link.WorkItemID == nil {
			continue
		}
		if m.contractors[*p.Link.WorkItemID] != contractorID {
			continue
		}
		if p.CompletedAt.Before(from) || !p.CompletedAt.Before(to) {
			continue
		}
		total += p.AmountCents
	}
	return total, nil
}

func (m *memStore) PendingTotal(_ context.Context, businessID uuid.UUID) (int64, error) {
	var total int64
	for _, p := range m.payments {
		if p.BusinessID != businessID {
			continue
		}
		if p.Status == models.PaymentStatusScheduled || p.Status == models.PaymentStatusProcessing {
			total += p.AmountCents
		}
	}
	return total, nil
}

func (m *memStore) ListByBusinessID(_ context.Context, businessID uuid.UUID) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range m.payments {
		if p.BusinessID == businessID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListByContractorID(_ context.Context, contractorID uuid.UUID) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range m.payments {
		if p.Link.WorkItemID != nil && m.contractors[*p.Link.WorkItemID] == contractorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func completed(businessID uuid.UUID, link models.PaymentLink, amount int64, at time.Time) *models.Payment {
	return &models.Payment{
		ID:          uuid.New(),
		BusinessID:  businessID,
		Link:        link,
		AmountCents: amount,
		Currency:    "USD",
		Status:      models.PaymentStatusCompleted,
		CompletedAt: &at,
	}
}

// ---------------------------------------------------------------------------
// Totals
// ---------------------------------------------------------------------------

// A business pays a contract-linked invoice and a direct payment in the same
// month. Its total must include both; the period window binds both queries.
func TestTotalPaidIncludesDirectPayments(t *testing.T) {
	businessID := uuid.New()
	contractID := uuid.New()
	workItemID := uuid.New()
	now := time.Date(2026, time.August, 20, 12, 0, 0, 0, time.UTC)

	store := &memStore{payments: []*models.Payment{
		completed(businessID, models.ContractLinked(contractID, workItemID), 100_000, now.AddDate(0, 0, -2)),
		completed(businessID, models.DirectLink(), 25_000, now.AddDate(0, 0, -1)),
		// Someone else's payment never leaks in.
		completed(uuid.New(), models.DirectLink(), 999_999, now.AddDate(0, 0, -1)),
		// Last month's payment is outside the monthly window.
		completed(businessID, models.DirectLink(), 7_000, now.AddDate(0, -1, 0)),
	}}
	svc := NewService(store, store).WithNow(func() time.Time { return now })

	got, err := svc.TotalPaid(context.Background(), businessID, PeriodMonthly)
	if err != nil {
		t.Fatalf("TotalPaid: %v", err)
	}
	if got != 125_000 {
		t.Errorf("monthly total: got %d, want 125000", got)
	}

	// The lifetime window picks up last month's payment as well.
	got, err = svc.TotalPaid(context.Background(), businessID, PeriodLifetime)
	if err != nil {
		t.Fatalf("TotalPaid lifetime: %v", err)
	}
	if got != 132_000 {
		t.Errorf("lifetime total: got %d, want 132000", got)
	}
}

func TestTotalPaidExcludesUnsettled(t *testing.T) {
	businessID := uuid.New()
	now := time.Date(2026, time.August, 20, 12, 0, 0, 0, time.UTC)

	pending := &models.Payment{
		ID:          uuid.New(),
		BusinessID:  businessID,
		Link:        models.DirectLink(),
		AmountCents: 40_000,
		Status:      models.PaymentStatusProcessing,
	}
	store := &memStore{payments: []*models.Payment{
		completed(businessID, models.DirectLink(), 10_000, now.AddDate(0, 0, -1)),
		pending,
	}}
	svc := NewService(store, store).WithNow(func() time.Time { return now })

	got, err := svc.TotalPaid(context.Background(), businessID, PeriodMonthly)
	if err != nil {
		t.Fatalf("TotalPaid: %v", err)
	}
	if got != 10_000 {
		t.Errorf("total: got %d, want 10000 (processing payment excluded)", got)
	}

	pendingTotal, err := svc.PendingTotal(context.Background(), businessID)
	if err != nil {
		t.Fatalf("PendingTotal: %v", err)
	}
	if pendingTotal != 40_000 {
		t.Errorf("pending: got %d, want 40000", pendingTotal)
	}
}

func TestTotalEarned(t *testing.T) {
	businessID := uuid.New()
	contractorID := uuid.New()
	workItemID := uuid.New()
	otherItem := uuid.New()
	now := time.Date(2026, time.August, 20, 12, 0, 0, 0, time.UTC)

	store := &memStore{
		payments: []*models.Payment{
			completed(businessID, models.WorkItemLinked(workItemID), 60_000, now.AddDate(0, 0, -3)),
			completed(businessID, models.WorkItemLinked(otherItem), 30_000, now.AddDate(0, 0, -3)),
		},
		contractors: map[uuid.UUID]uuid.UUID{
			workItemID: contractorID,
			otherItem:  uuid.New(),
		},
	}
	svc := NewService(store, store).WithNow(func() time.Time { return now })

	got, err := svc.TotalEarned(context.Background(), contractorID, PeriodMonthly)
	if err != nil {
		t.Fatalf("TotalEarned: %v", err)
	}
	if got != 60_000 {
		t.Errorf("earned: got %d, want 60000", got)
	}
}

func TestUnknownPeriodRejected(t *testing.T) {
	store := &memStore{}
	svc := NewService(store, store)
	if _, err := svc.TotalPaid(context.Background(), uuid.New(), "weekly"); err == nil {
		t.Fatal("unknown period should be rejected")
	}
}

// ---------------------------------------------------------------------------
// Period windows
// ---------------------------------------------------------------------------

func TestPeriodWindow(t *testing.T) {
	now := time.Date(2026, time.August, 20, 15, 30, 0, 0, time.UTC)

	from, to, err := periodWindow(now, PeriodMonthly)
	if err != nil {
		t.Fatalf("monthly: %v", err)
	}
	if !from.Equal(time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly from: got %v", from)
	}
	if !to.Equal(time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly to: got %v", to)
	}

	from, to, err = periodWindow(now, PeriodAnnual)
	if err != nil {
		t.Fatalf("annual: %v", err)
	}
	if !from.Equal(time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("annual from: got %v", from)
	}
	if !to.Equal(time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("annual to: got %v", to)
	}

	if _, _, err := periodWindow(now, "quarterly"); err == nil {
		t.Error("unknown period should error")
	}
}
