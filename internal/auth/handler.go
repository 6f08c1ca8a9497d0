package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

// BusinessCreator provisions the tenant row for a new business account.
type BusinessCreator interface {
	Create(ctx context.Context, b *models.Business) error
}

// ContractorCreator provisions the worker row for a new contractor account.
type ContractorCreator interface {
	Create(ctx context.Context, c *models.Contractor) error
}

type Handler struct {
	svc         Service
	businesses  BusinessCreator
	contractors ContractorCreator
	log         *slog.Logger
}

func NewHandler(svc Service, businesses BusinessCreator, contractors ContractorCreator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, businesses: businesses, contractors: contractors, log: log}
}

type registerRequest struct {
	Email              string `json:"email"`
	Password           string `json:"password"`
	DisplayName        string `json:"display_name"`
	Role               string `json:"role"`
	ConnectedAccountID string `json:"connected_account_id,omitempty"`
}

type registerResponse struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		http.Error(w, `{"error":"email, password, and display_name are required"}`, http.StatusBadRequest)
		return
	}

	acc, err := h.svc.Register(r.Context(), req.Email, req.Password, req.DisplayName, req.Role)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			http.Error(w, `{"error":"email already registered"}`, http.StatusConflict)
			return
		}
		h.log.Error("register failed", "error", err)
		http.Error(w, `{"error":"registration failed"}`, http.StatusBadRequest)
		return
	}

	switch acc.Role {
	case guard.RoleBusiness:
		err = h.businesses.Create(r.Context(), &models.Business{ID: acc.ID, DisplayName: acc.DisplayName})
	case guard.RoleContractor:
		err = h.contractors.Create(r.Context(), &models.Contractor{
			ID:                 acc.ID,
			DisplayName:        acc.DisplayName,
			ConnectedAccountID: req.ConnectedAccountID,
		})
	}
	if err != nil {
		h.log.Error("provision profile failed", "account_id", acc.ID, "role", acc.Role, "error", err)
		http.Error(w, `{"error":"registration failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(registerResponse{ID: acc.ID, Email: acc.Email, DisplayName: acc.DisplayName, Role: acc.Role})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}
