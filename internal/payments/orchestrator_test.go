package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
	"github.com/zoevanderzee/interlincRender-sub005/internal/processor"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// --- noopTx satisfies pgx.Tx for test use; only Commit/Rollback are called. ---

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (mockPool) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

// --- PaymentStore mock ---

type mockPayments struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.Payment
}

func newMockPayments(ps ...*models.Payment) *mockPayments {
	m := &mockPayments{payments: make(map[uuid.UUID]*models.Payment)}
	for _, p := range ps {
		cp := *p
		m.payments[p.ID] = &cp
	}
	return m
}

func (m *mockPayments) CreateTx(_ context.Context, _ pgx.Tx, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *mockPayments) GetByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockPayments) GetByWorkItemTx(_ context.Context, _ pgx.Tx, workItemID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.Link.WorkItemID != nil && *p.Link.WorkItemID == workItemID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPayments) GetByIdempotencyKey(_ context.Context, key string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.IdempotencyKey == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockPayments) SetStatus(_ context.Context, id uuid.UUID, status, externalTransferID string, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return pgx.ErrNoRows
	}
	p.Status = status
	if externalTransferID != "" {
		p.ExternalTransferID = externalTransferID
	}
	p.CompletedAt = completedAt
	return nil
}

func (m *mockPayments) SetStatusTx(ctx context.Context, _ pgx.Tx, id uuid.UUID, status, externalTransferID string, completedAt *time.Time) error {
	return m.SetStatus(ctx, id, status, externalTransferID, completedAt)
}

func (m *mockPayments) PeriodSpendTx(_ context.Context, _ pgx.Tx, businessID uuid.UUID, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, p := range m.payments {
		if p.BusinessID == businessID && p.Status != models.PaymentStatusFailed && !p.ScheduledAt.Before(since) {
			total += p.AmountCents
		}
	}
	return total, nil
}

func (m *mockPayments) get(id uuid.UUID) *models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *mockPayments) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

// --- WorkItemStore mock (settlement surface only) ---

type mockItemStore struct {
	mu          sync.Mutex
	items       map[uuid.UUID]*models.WorkItem
	transitions []*models.WorkItemTransition
}

func newMockItemStore(items ...*models.WorkItem) *mockItemStore {
	m := &mockItemStore{items: make(map[uuid.UUID]*models.WorkItem)}
	for _, it := range items {
		cp := *it
		m.items[it.ID] = &cp
	}
	return m
}

func (m *mockItemStore) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *it
	return &cp, nil
}

func (m *mockItemStore) UpdateTx(_ context.Context, _ pgx.Tx, w *models.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.items[w.ID] = &cp
	return nil
}

func (m *mockItemStore) InsertTransitionTx(_ context.Context, _ pgx.Tx, t *models.WorkItemTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transitions = append(m.transitions, &cp)
	return nil
}

func (m *mockItemStore) status(id uuid.UUID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Status
}

// --- ContractorStore / BusinessStore mocks ---

type mockContractors struct {
	contractors map[uuid.UUID]*models.Contractor
}

func (m *mockContractors) GetByID(_ context.Context, id uuid.UUID) (*models.Contractor, error) {
	c, ok := m.contractors[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return c, nil
}

type mockBusinesses struct {
	businesses map[uuid.UUID]*models.Business
}

func (m *mockBusinesses) GetByID(_ context.Context, id uuid.UUID) (*models.Business, error) {
	b, ok := m.businesses[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return b, nil
}

// --- Processor mock with scripted responses ---

type mockProcessor struct {
	mu            sync.Mutex
	transferErr   error
	transferCalls []processor.TransferRequest
	getResult     *processor.Transfer
	getErr        error
}

func (m *mockProcessor) Transfer(_ context.Context, req processor.TransferRequest) (*processor.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferCalls = append(m.transferCalls, req)
	if m.transferErr != nil {
		return nil, m.transferErr
	}
	return &processor.Transfer{ID: "tr_" + req.IdempotencyKey, Status: processor.TransferStatusPending}, nil
}

func (m *mockProcessor) GetTransfer(_ context.Context, _ string) (*processor.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.getResult, nil
}

func (m *mockProcessor) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transferCalls)
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

type fixture struct {
	svc          *Service
	payments     *mockPayments
	items        *mockItemStore
	proc         *mockProcessor
	enqueued     []ReconcilePaymentArgs
	businessID   uuid.UUID
	contractorID uuid.UUID
}

func newFixture(budgetCap *int64) *fixture {
	f := &fixture{
		payments:     newMockPayments(),
		items:        newMockItemStore(),
		proc:         &mockProcessor{},
		businessID:   uuid.New(),
		contractorID: uuid.New(),
	}
	contractors := &mockContractors{contractors: map[uuid.UUID]*models.Contractor{
		f.contractorID: {ID: f.contractorID, DisplayName: "Ada", ConnectedAccountID: "acct_ada"},
	}}
	businesses := &mockBusinesses{businesses: map[uuid.UUID]*models.Business{
		f.businessID: {ID: f.businessID, BudgetCapCents: budgetCap, BudgetPeriod: models.BudgetPeriodMonthly},
	}}
	insert := func(_ context.Context, _ pgx.Tx, args ReconcilePaymentArgs) error {
		f.enqueued = append(f.enqueued, args)
		return nil
	}
	f.svc = NewService(mockPool{}, f.payments, f.items, contractors, businesses, f.proc, insert, nil)
	return f
}

func (f *fixture) approvedItem() *models.WorkItem {
	it := &models.WorkItem{
		ID:           uuid.New(),
		BusinessID:   f.businessID,
		ContractorID: &f.contractorID,
		AmountCents:  50_000,
		Currency:     "USD",
		Status:       models.WorkItemStatusApproved,
	}
	f.items.items[it.ID] = it
	return it
}

func (f *fixture) cap(op guard.Operation) guard.Capability {
	cap, err := guard.Authorize(guard.Actor{ID: f.businessID, Role: guard.RoleBusiness}, op, guard.Resource{BusinessID: f.businessID})
	if err != nil {
		panic(err)
	}
	return cap
}

// ---------------------------------------------------------------------------
// ExecutePayment
// ---------------------------------------------------------------------------

func TestExecutePayment(t *testing.T) {
	f := newFixture(nil)
	item := f.approvedItem()

	p, err := f.svc.ExecutePayment(context.Background(), noopTx{}, f.cap(guard.OpApprove), item)
	if err != nil {
		t.Fatalf("ExecutePayment: %v", err)
	}
	if p.Status != models.PaymentStatusProcessing {
		t.Errorf("status: got %s, want processing", p.Status)
	}
	if p.IdempotencyKey != "wi-"+item.ID.String() {
		t.Errorf("idempotency key: got %q", p.IdempotencyKey)
	}
	if p.Destination != "acct_ada" {
		t.Errorf("destination: got %q", p.Destination)
	}
	if p.Link.Kind != models.PaymentLinkWorkItem {
		t.Errorf("link kind: got %s, want work_item", p.Link.Kind)
	}
	if p.ExternalTransferID == "" {
		t.Error("accepted transfer should record the external id")
	}
	if len(f.enqueued) != 1 || f.enqueued[0].PaymentID != p.ID {
		t.Error("reconcile job should be enqueued for the new payment")
	}
	if f.payments.get(p.ID) == nil {
		t.Error("payment row should be persisted")
	}
}

func TestExecutePaymentRefusesDuplicate(t *testing.T) {
	f := newFixture(nil)
	item := f.approvedItem()

	first, err := f.svc.ExecutePayment(context.Background(), noopTx{}, f.cap(guard.OpApprove), item)
	if err != nil {
		t.Fatalf("first ExecutePayment: %v", err)
	}

	_, err = f.svc.ExecutePayment(context.Background(), noopTx{}, f.cap(guard.OpApprove), item)
	var consistency *ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("expected ConsistencyError, got %v", err)
	}
	if consistency.ExistingPaymentID != first.ID {
		t.Error("error should reference the existing payment")
	}
	if f.payments.count() != 1 {
		t.Errorf("payments: got %d, want 1", f.payments.count())
	}
	if f.proc.calls() != 1 {
		t.Errorf("processor calls: got %d, want 1", f.proc.calls())
	}
}

func TestExecutePaymentAmbiguousOutcome(t *testing.T) {
	f := newFixture(nil)
	item := f.approvedItem()
	f.proc.transferErr = &processor.AmbiguousError{IdempotencyKey: "wi-" + item.ID.String(), Err: fmt.Errorf("timeout")}

	p, err := f.svc.ExecutePayment(context.Background(), noopTx{}, f.cap(guard.OpApprove), item)
	var procErr *ProcessorError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
	if !procErr.Ambiguous {
		t.Error("timeout should be reported as ambiguous")
	}
	// The row exists as processing with no external id; reconciliation will
	// resolve whether the transfer happened.
	if p == nil {
		t.Fatal("payment should be returned alongside the error")
	}
	stored := f.payments.get(p.ID)
	if stored == nil {
		t.Fatal("payment row should be persisted despite the ambiguous outcome")
	}
	if stored.Status != models.PaymentStatusProcessing {
		t.Errorf("status: got %s, want processing", stored.Status)
	}
	if stored.ExternalTransferID != "" {
		t.Error("ambiguous transfer has no external id yet")
	}
	if len(f.enqueued) != 1 {
		t.Fatalf("reconcile jobs: got %d, want 1", len(f.enqueued))
	}
}

func TestExecutePaymentHardFailure(t *testing.T) {
	f := newFixture(nil)
	item := f.approvedItem()
	f.proc.transferErr = fmt.Errorf("processor rejected transfer: status 422")

	p, err := f.svc.ExecutePayment(context.Background(), noopTx{}, f.cap(guard.OpApprove), item)
	var procErr *ProcessorError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessorError, got %v", err)
	}
	if procErr.Ambiguous {
		t.Error("a definite rejection is not ambiguous")
	}
	if p.Status != models.PaymentStatusFailed {
		t.Errorf("status: got %s, want failed", p.Status)
	}
}

func TestExecutePaymentBudgetCap(t *testing.T) {
	cap := int64(60_000)
	f := newFixture(&cap)

	// First 50 000 fits under the cap.
	item := f.approvedItem()
	if _, err := f.svc.ExecutePayment(context.Background(), noopTx{}, f.cap(guard.OpApprove), item); err != nil {
		t.Fatalf("first ExecutePayment: %v", err)
	}

	// The second would bring spend to 100 000 and must be blocked.
	second := f.approvedItem()
	_, err := f.svc.ExecutePayment(context.Background(), noopTx{}, f.cap(guard.OpApprove), second)
	var budget *BudgetExceededError
	if !errors.As(err, &budget) {
		t.Fatalf("expected BudgetExceededError, got %v", err)
	}
	if budget.SpentCents != 50_000 || budget.CapCents != 60_000 {
		t.Errorf("error fields: spent %d cap %d", budget.SpentCents, budget.CapCents)
	}
	if f.payments.count() != 1 {
		t.Error("blocked payment must not be persisted")
	}
}

func TestExecutePaymentRequiresConnectedAccount(t *testing.T) {
	f := newFixture(nil)
	bare := uuid.New()
	f.svc.Contractors = &mockContractors{contractors: map[uuid.UUID]*models.Contractor{
		bare: {ID: bare, DisplayName: "Ben"},
	}}
	item := f.approvedItem()
	item.ContractorID = &bare

	if _, err := f.svc.ExecutePayment(context.Background(), noopTx{}, f.cap(guard.OpApprove), item); !errors.Is(err, ErrValidation) {
		t.Errorf("missing connected account: got %v, want ErrValidation", err)
	}
	if f.proc.calls() != 0 {
		t.Error("no transfer should be attempted without a destination")
	}
}

func TestExecutePaymentRefusesForeignCapability(t *testing.T) {
	f := newFixture(nil)
	item := f.approvedItem()

	// The capability covers a different business than the item's owner.
	admin := guard.Actor{ID: uuid.New(), Role: guard.RoleAdmin}
	foreign, err := guard.Authorize(admin, guard.OpApprove, guard.Resource{BusinessID: uuid.New()})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	_, err = f.svc.ExecutePayment(context.Background(), noopTx{}, foreign, item)
	var denied *guard.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if f.proc.calls() != 0 {
		t.Error("no transfer should be attempted with a mismatched capability")
	}
	if f.payments.count() != 0 {
		t.Error("no payment should be persisted with a mismatched capability")
	}
}

// ---------------------------------------------------------------------------
// ExecuteDirect
// ---------------------------------------------------------------------------

func TestExecuteDirect(t *testing.T) {
	f := newFixture(nil)

	p, err := f.svc.ExecuteDirect(context.Background(), f.cap(guard.OpPay), DirectPaymentInput{
		BusinessID:   f.businessID,
		ContractorID: &f.contractorID,
		AmountCents:  10_000,
		Currency:     "USD",
		Notes:        "conference travel",
	})
	if err != nil {
		t.Fatalf("ExecuteDirect: %v", err)
	}
	if p.Link.Kind != models.PaymentLinkDirect {
		t.Errorf("link kind: got %s, want direct", p.Link.Kind)
	}
	if p.Link.ContractID != nil || p.Link.WorkItemID != nil {
		t.Error("direct payment must not reference a contract or work item")
	}
	if p.BusinessID != f.businessID {
		t.Error("direct payment must carry the business id")
	}
	if p.IdempotencyKey != "direct-"+p.ID.String() {
		t.Errorf("idempotency key: got %q", p.IdempotencyKey)
	}
	if p.Destination != "acct_ada" {
		t.Errorf("destination resolved from contractor: got %q", p.Destination)
	}
	if len(f.enqueued) != 1 {
		t.Error("direct payments also get a reconcile job")
	}
}

func TestExecuteDirectValidation(t *testing.T) {
	f := newFixture(nil)
	cap := f.cap(guard.OpPay)

	cases := []struct {
		name string
		in   DirectPaymentInput
	}{
		{"zero amount", DirectPaymentInput{BusinessID: f.businessID, Destination: "acct_x", Currency: "USD"}},
		{"bad currency", DirectPaymentInput{BusinessID: f.businessID, Destination: "acct_x", AmountCents: 100, Currency: "dollars"}},
		{"no destination", DirectPaymentInput{BusinessID: f.businessID, AmountCents: 100, Currency: "USD"}},
	}
	for _, tc := range cases {
		if _, err := f.svc.ExecuteDirect(context.Background(), cap, tc.in); !errors.Is(err, ErrValidation) {
			t.Errorf("%s: got %v, want ErrValidation", tc.name, err)
		}
	}
}

func TestExecuteDirectRefusesForeignCapability(t *testing.T) {
	f := newFixture(nil)

	admin := guard.Actor{ID: uuid.New(), Role: guard.RoleAdmin}
	foreign, err := guard.Authorize(admin, guard.OpPay, guard.Resource{BusinessID: uuid.New()})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	_, err = f.svc.ExecuteDirect(context.Background(), foreign, DirectPaymentInput{
		BusinessID:  f.businessID,
		Destination: "acct_x",
		AmountCents: 10_000,
		Currency:    "USD",
	})
	var denied *guard.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if f.proc.calls() != 0 {
		t.Error("no transfer should be attempted with a mismatched capability")
	}
}

func TestExecuteDirectCountsAgainstBudget(t *testing.T) {
	cap := int64(5_000)
	f := newFixture(&cap)

	_, err := f.svc.ExecuteDirect(context.Background(), f.cap(guard.OpPay), DirectPaymentInput{
		BusinessID:  f.businessID,
		Destination: "acct_x",
		AmountCents: 10_000,
		Currency:    "USD",
	})
	var budget *BudgetExceededError
	if !errors.As(err, &budget) {
		t.Fatalf("expected BudgetExceededError, got %v", err)
	}
}
