package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
	"github.com/zoevanderzee/interlincRender-sub005/internal/middleware"
	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
	"github.com/zoevanderzee/interlincRender-sub005/internal/payments"
	"github.com/zoevanderzee/interlincRender-sub005/internal/uploads"
	"github.com/zoevanderzee/interlincRender-sub005/internal/workflow"
)

// WorkflowService is the lifecycle surface the HTTP layer drives.
type WorkflowService interface {
	Create(ctx context.Context, actor guard.Actor, in workflow.CreateInput) (*models.WorkItem, error)
	Publish(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error)
	Assign(ctx context.Context, actor guard.Actor, itemID, contractorID uuid.UUID) (*models.WorkItem, error)
	Accept(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error)
	Decline(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error)
	Submit(ctx context.Context, actor guard.Actor, itemID uuid.UUID, artifactURLs []string, notes string) (*models.WorkItem, *models.Submission, error)
	Approve(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, *models.Payment, error)
	Reject(ctx context.Context, actor guard.Actor, itemID uuid.UUID, reviewNotes string) (*models.WorkItem, error)
	Cancel(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error)
	Get(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error)
}

// WorkItemLister serves the listing endpoints.
type WorkItemLister interface {
	ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]*models.WorkItem, error)
	ListByContractorID(ctx context.Context, contractorID uuid.UUID) ([]*models.WorkItem, error)
	ListTransitions(ctx context.Context, workItemID uuid.UUID) ([]*models.WorkItemTransition, error)
}

// SubmissionLister serves submission history for a work item.
type SubmissionLister interface {
	ListByWorkItemID(ctx context.Context, workItemID uuid.UUID) ([]*models.Submission, error)
}

type WorkItemHandler struct {
	workflow    WorkflowService
	items       WorkItemLister
	submissions SubmissionLister
	blobs       uploads.Store
	log         *slog.Logger
}

func NewWorkItemHandler(wf WorkflowService, items WorkItemLister, submissions SubmissionLister, blobs uploads.Store, log *slog.Logger) *WorkItemHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WorkItemHandler{workflow: wf, items: items, submissions: submissions, blobs: blobs, log: log}
}

type createWorkItemRequest struct {
	BusinessID   uuid.UUID  `json:"business_id"`
	ContractID   *uuid.UUID `json:"contract_id,omitempty"`
	ContractorID *uuid.UUID `json:"contractor_id,omitempty"`
	Title        string     `json:"title"`
	Deliverable  string     `json:"deliverable"`
	AmountCents  int64      `json:"amount_cents"`
	Currency     string     `json:"currency"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

func (h *WorkItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	var req createWorkItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.BusinessID == uuid.Nil {
		req.BusinessID = actor.ID
	}
	item, err := h.workflow.Create(r.Context(), actor, workflow.CreateInput{
		BusinessID:   req.BusinessID,
		ContractID:   req.ContractID,
		ContractorID: req.ContractorID,
		Title:        req.Title,
		Deliverable:  req.Deliverable,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		DueDate:      req.DueDate,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *WorkItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	item, err := h.workflow.Get(r.Context(), actor, itemID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// List returns the caller's work items: a business sees items it created, a
// contractor sees items routed to them.
func (h *WorkItemHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	var (
		items []*models.WorkItem
		err   error
	)
	switch actor.Role {
	case guard.RoleContractor:
		items, err = h.items.ListByContractorID(r.Context(), actor.ID)
	default:
		items, err = h.items.ListByBusinessID(r.Context(), actor.ID)
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *WorkItemHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.workflow.Publish)
}

type assignRequest struct {
	ContractorID uuid.UUID `json:"contractor_id"`
}

func (h *WorkItemHandler) Assign(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContractorID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "contractor_id is required"})
		return
	}
	item, err := h.workflow.Assign(r.Context(), actor, itemID, req.ContractorID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *WorkItemHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.workflow.Accept)
}

func (h *WorkItemHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.workflow.Decline)
}

func (h *WorkItemHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.workflow.Cancel)
}

type submitRequest struct {
	ArtifactURLs []string `json:"artifact_urls"`
	Notes        string   `json:"notes"`
}

func (h *WorkItemHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	item, sub, err := h.workflow.Submit(r.Context(), actor, itemID, req.ArtifactURLs, req.Notes)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"work_item": item, "submission": sub})
}

// Approve triggers payment. A processor failure still commits the approval
// and the payment row; the 502 tells the client the transfer is being
// reconciled, not that the approval failed.
func (h *WorkItemHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	item, payment, err := h.workflow.Approve(r.Context(), actor, itemID)
	if err != nil {
		var procErr *payments.ProcessorError
		if errors.As(err, &procErr) {
			h.log.Warn("approval committed, transfer unconfirmed", "work_item_id", itemID, "payment_id", procErr.PaymentID)
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":     "payment processor unavailable",
				"retryable": true,
				"work_item": item,
				"payment":   payment,
			})
			return
		}
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"work_item": item, "payment": payment})
}

type rejectRequest struct {
	ReviewNotes string `json:"review_notes"`
}

func (h *WorkItemHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	item, err := h.workflow.Reject(r.Context(), actor, itemID, req.ReviewNotes)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// ListSubmissions returns the full submission history, oldest first, so a
// resubmission cycle is visible as distinct records.
func (h *WorkItemHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if _, err := h.workflow.Get(r.Context(), actor, itemID); err != nil {
		writeError(w, h.log, err)
		return
	}
	subs, err := h.submissions.ListByWorkItemID(r.Context(), itemID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// ListTransitions returns the audit trail of state changes.
func (h *WorkItemHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if _, err := h.workflow.Get(r.Context(), actor, itemID); err != nil {
		writeError(w, h.log, err)
		return
	}
	transitions, err := h.items.ListTransitions(r.Context(), itemID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}

// UploadArtifact streams a deliverable file to the blob store and returns the
// URL to reference in a submission. The platform never inspects the bytes.
func (h *WorkItemHandler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if _, err := h.workflow.Get(r.Context(), actor, itemID); err != nil {
		writeError(w, h.log, err)
		return
	}
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "filename query parameter is required"})
		return
	}
	defer r.Body.Close()
	url, err := h.blobs.PutUpload(r.Context(), filename, r.Body)
	if err != nil {
		h.log.Error("artifact upload failed", "work_item_id", itemID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upload failed"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// DownloadArtifact proxies a stored artifact back to an authorized reviewer.
func (h *WorkItemHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if _, err := h.workflow.Get(r.Context(), actor, itemID); err != nil {
		writeError(w, h.log, err)
		return
	}
	url := r.URL.Query().Get("url")
	if url == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url query parameter is required"})
		return
	}
	data, err := h.blobs.GetDownload(r.Context(), url)
	if err != nil {
		h.log.Error("artifact download failed", "work_item_id", itemID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "download failed"})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

func (h *WorkItemHandler) simpleTransition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, actor guard.Actor, itemID uuid.UUID) (*models.WorkItem, error),
) {
	actor, itemID, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	item, err := fn(r.Context(), actor, itemID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *WorkItemHandler) actorAndID(w http.ResponseWriter, r *http.Request) (guard.Actor, uuid.UUID, bool) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return guard.Actor{}, uuid.Nil, false
	}
	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid work item id"})
		return guard.Actor{}, uuid.Nil, false
	}
	return actor, itemID, true
}
