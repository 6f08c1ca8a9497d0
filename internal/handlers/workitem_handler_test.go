package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
	"github.com/zoevanderzee/interlincRender-sub005/internal/middleware"
	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
	"github.com/zoevanderzee/interlincRender-sub005/internal/payments"
	"github.com/zoevanderzee/interlincRender-sub005/internal/workflow"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// stubWorkflow scripts each lifecycle call with a function field, defaulting
// to a not-wired panic so a test only implements what it exercises.

type stubWorkflow struct {
	approve func(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, *models.Payment, error)
	cancel  func(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error)
	submit  func(ctx context.Context, actor guard.Actor, itemID uuid.UUID, artifactURLs []string, notes string) (*models.WorkItem, *models.Submission, error)
	get     func(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error)
}

func (s *stubWorkflow) Create(context.Context, guard.Actor, workflow.CreateInput) (*models.WorkItem, error) {
	panic("not wired")
}
func (s *stubWorkflow) Publish(context.Context, guard.Actor, uuid.UUID) (*models.WorkItem, error) {
	panic("not wired")
}
func (s *stubWorkflow) Assign(context.Context, guard.Actor, uuid.UUID, uuid.UUID) (*models.WorkItem, error) {
	panic("not wired")
}
func (s *stubWorkflow) Accept(context.Context, guard.Actor, uuid.UUID) (*models.WorkItem, error) {
	panic("not wired")
}
func (s *stubWorkflow) Decline(context.Context, guard.Actor, uuid.UUID) (*models.WorkItem, error) {
	panic("not wired")
}
func (s *stubWorkflow) Reject(context.Context, guard.Actor, uuid.UUID, string) (*models.WorkItem, error) {
	panic("not wired")
}

func (s *stubWorkflow) Approve(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, *models.Payment, error) {
	return s.approve(ctx, actor, itemID)
}
func (s *stubWorkflow) Cancel(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error) {
	return s.cancel(ctx, actor, itemID)
}
func (s *stubWorkflow) Submit(ctx context.Context, actor guard.Actor, itemID uuid.UUID, urls []string, notes string) (*models.WorkItem, *models.Submission, error) {
	return s.submit(ctx, actor, itemID, urls, notes)
}
func (s *stubWorkflow) Get(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error) {
	return s.get(ctx, actor, itemID)
}

func authedRequest(method, target, body string, actor guard.Actor, itemID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.SetPathValue("id", itemID.String())
	return req.WithContext(middleware.WithActor(req.Context(), actor))
}

// ---------------------------------------------------------------------------
// Approve: error-to-status mapping
// ---------------------------------------------------------------------------

func TestApproveMapsDenialTo403(t *testing.T) {
	itemID := uuid.New()
	actor := guard.Actor{ID: uuid.New(), Role: guard.RoleContractor}
	wf := &stubWorkflow{
		approve: func(context.Context, guard.Actor, uuid.UUID) (*models.WorkItem, *models.Payment, error) {
			return nil, nil, &guard.DeniedError{ActorID: actor.ID, Role: actor.Role, Op: guard.OpApprove, Reason: "business-only operation"}
		},
	}
	h := NewWorkItemHandler(wf, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Approve(rec, authedRequest(http.MethodPost, "/work-items/"+itemID.String()+"/approve", "", actor, itemID))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want 403", rec.Code)
	}
}

func TestApproveMapsInvalidTransitionTo409(t *testing.T) {
	itemID := uuid.New()
	actor := guard.Actor{ID: uuid.New(), Role: guard.RoleBusiness}
	wf := &stubWorkflow{
		approve: func(context.Context, guard.Actor, uuid.UUID) (*models.WorkItem, *models.Payment, error) {
			return nil, nil, &workflow.InvalidTransitionError{
				WorkItemID: itemID,
				Current:    models.WorkItemStatusAssigned,
				Attempted:  models.WorkItemStatusApproved,
			}
		},
	}
	h := NewWorkItemHandler(wf, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Approve(rec, authedRequest(http.MethodPost, "/work-items/"+itemID.String()+"/approve", "", actor, itemID))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["current"] != models.WorkItemStatusAssigned || body["attempted"] != models.WorkItemStatusApproved {
		t.Errorf("conflict body should carry current and attempted states: %v", body)
	}
}

func TestApproveMapsProcessorErrorTo502(t *testing.T) {
	itemID := uuid.New()
	paymentID := uuid.New()
	actor := guard.Actor{ID: uuid.New(), Role: guard.RoleBusiness}
	wf := &stubWorkflow{
		approve: func(context.Context, guard.Actor, uuid.UUID) (*models.WorkItem, *models.Payment, error) {
			item := &models.WorkItem{ID: itemID, Status: models.WorkItemStatusApproved}
			p := &models.Payment{ID: paymentID, Status: models.PaymentStatusProcessing}
			return item, p, &payments.ProcessorError{PaymentID: paymentID, Ambiguous: true, Err: fmt.Errorf("timeout")}
		},
	}
	h := NewWorkItemHandler(wf, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Approve(rec, authedRequest(http.MethodPost, "/work-items/"+itemID.String()+"/approve", "", actor, itemID))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want 502", rec.Code)
	}
	var body struct {
		Retryable bool             `json:"retryable"`
		WorkItem  *models.WorkItem `json:"work_item"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !body.Retryable {
		t.Error("processor failure should be marked retryable")
	}
	// The approval is committed; the 502 is about the transfer only.
	if body.WorkItem == nil || body.WorkItem.Status != models.WorkItemStatusApproved {
		t.Error("response should carry the approved work item")
	}
}

func TestApproveSuccess(t *testing.T) {
	itemID := uuid.New()
	actor := guard.Actor{ID: uuid.New(), Role: guard.RoleBusiness}
	wf := &stubWorkflow{
		approve: func(context.Context, guard.Actor, uuid.UUID) (*models.WorkItem, *models.Payment, error) {
			return &models.WorkItem{ID: itemID, Status: models.WorkItemStatusApproved},
				&models.Payment{ID: uuid.New(), Status: models.PaymentStatusProcessing}, nil
		},
	}
	h := NewWorkItemHandler(wf, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Approve(rec, authedRequest(http.MethodPost, "/work-items/"+itemID.String()+"/approve", "", actor, itemID))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Submit and Cancel
// ---------------------------------------------------------------------------

func TestSubmitMapsValidationTo422(t *testing.T) {
	itemID := uuid.New()
	actor := guard.Actor{ID: uuid.New(), Role: guard.RoleContractor}
	wf := &stubWorkflow{
		submit: func(context.Context, guard.Actor, uuid.UUID, []string, string) (*models.WorkItem, *models.Submission, error) {
			return nil, nil, fmt.Errorf("%w: a submission needs at least one artifact or notes", workflow.ErrValidation)
		},
	}
	h := NewWorkItemHandler(wf, nil, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.Submit(rec, authedRequest(http.MethodPost, "/work-items/"+itemID.String()+"/submissions", `{}`, actor, itemID))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want 422", rec.Code)
	}
}

func TestCancelUnauthenticated(t *testing.T) {
	h := NewWorkItemHandler(&stubWorkflow{}, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/work-items/"+uuid.NewString()+"/cancel", nil)
	req.SetPathValue("id", uuid.NewString())
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want 401", rec.Code)
	}
}

func TestBadWorkItemID(t *testing.T) {
	actor := guard.Actor{ID: uuid.New(), Role: guard.RoleBusiness}
	h := NewWorkItemHandler(&stubWorkflow{}, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/work-items/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.Get(rec, req.WithContext(middleware.WithActor(req.Context(), actor)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
}
