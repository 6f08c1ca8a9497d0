package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
	"github.com/zoevanderzee/interlincRender-sub005/internal/middleware"
	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

// ContractStore is the contract persistence surface.
type ContractStore interface {
	Create(ctx context.Context, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]*models.Contract, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

// BusinessStore updates the tenant's budget configuration.
type BusinessStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Business, error)
	UpdateBudget(ctx context.Context, id uuid.UUID, capCents *int64, period string) error
}

type ContractHandler struct {
	contracts  ContractStore
	businesses BusinessStore
	log        *slog.Logger
}

func NewContractHandler(contracts ContractStore, businesses BusinessStore, log *slog.Logger) *ContractHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ContractHandler{contracts: contracts, businesses: businesses, log: log}
}

type createContractRequest struct {
	ContractorID    uuid.UUID `json:"contractor_id"`
	Title           string    `json:"title"`
	TotalValueCents int64     `json:"total_value_cents"`
}

func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	if _, err := guard.Authorize(actor, guard.OpCreate, guard.Resource{BusinessID: actor.ID}); err != nil {
		writeError(w, h.log, err)
		return
	}
	var req createContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" || req.ContractorID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "contractor_id and title are required"})
		return
	}
	contract := &models.Contract{
		ID:              uuid.New(),
		BusinessID:      actor.ID,
		ContractorID:    &req.ContractorID,
		Title:           req.Title,
		Status:          models.ContractStatusActive,
		TotalValueCents: req.TotalValueCents,
	}
	if err := h.contracts.Create(r.Context(), contract); err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, contract)
}

func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	list, err := h.contracts.ListByBusinessID(r.Context(), actor.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type contractStatusRequest struct {
	Status string `json:"status"`
}

func (h *ContractHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	contractID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid contract id"})
		return
	}
	contract, err := h.contracts.GetByID(r.Context(), contractID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if _, err := guard.Authorize(actor, guard.OpUpdate, guard.Resource{BusinessID: contract.BusinessID}); err != nil {
		writeError(w, h.log, err)
		return
	}
	var req contractStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	switch req.Status {
	case models.ContractStatusActive, models.ContractStatusCompleted, models.ContractStatusTerminated:
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "unknown contract status"})
		return
	}
	if err := h.contracts.UpdateStatus(r.Context(), contractID, req.Status); err != nil {
		writeError(w, h.log, err)
		return
	}
	contract.Status = req.Status
	writeJSON(w, http.StatusOK, contract)
}

type budgetRequest struct {
	BudgetCapCents *int64 `json:"budget_cap_cents"`
	BudgetPeriod   string `json:"budget_period"`
}

// UpdateBudget sets or clears the caller's spend cap. A null cap means
// unlimited.
func (h *ContractHandler) UpdateBudget(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	if _, err := guard.Authorize(actor, guard.OpUpdate, guard.Resource{BusinessID: actor.ID}); err != nil {
		writeError(w, h.log, err)
		return
	}
	var req budgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	switch req.BudgetPeriod {
	case models.BudgetPeriodMonthly, models.BudgetPeriodAnnual:
	default:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "budget_period must be monthly or annual"})
		return
	}
	if req.BudgetCapCents != nil && *req.BudgetCapCents < 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "budget_cap_cents must not be negative"})
		return
	}
	if err := h.businesses.UpdateBudget(r.Context(), actor.ID, req.BudgetCapCents, req.BudgetPeriod); err != nil {
		writeError(w, h.log, err)
		return
	}
	business, err := h.businesses.GetByID(r.Context(), actor.ID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, business)
}
