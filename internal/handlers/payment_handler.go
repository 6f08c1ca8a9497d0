package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
	"github.com/zoevanderzee/interlincRender-sub005/internal/middleware"
	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
	"github.com/zoevanderzee/interlincRender-sub005/internal/payments"
)

// DirectPayer executes ad-hoc payments outside the work item flow.
type DirectPayer interface {
	ExecuteDirect(ctx context.Context, cap guard.Capability, in payments.DirectPaymentInput) (*models.Payment, error)
}

// LedgerService is the read side: totals and statements.
type LedgerService interface {
	TotalPaid(ctx context.Context, businessID uuid.UUID, period string) (int64, error)
	TotalEarned(ctx context.Context, contractorID uuid.UUID, period string) (int64, error)
	PendingTotal(ctx context.Context, businessID uuid.UUID) (int64, error)
	PaymentsFor(ctx context.Context, businessID uuid.UUID) ([]*models.Payment, error)
	PaymentsEarnedBy(ctx context.Context, contractorID uuid.UUID) ([]*models.Payment, error)
}

type PaymentHandler struct {
	payer  DirectPayer
	ledger LedgerService
	log    *slog.Logger
}

func NewPaymentHandler(payer DirectPayer, ledger LedgerService, log *slog.Logger) *PaymentHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PaymentHandler{payer: payer, ledger: ledger, log: log}
}

type directPaymentRequest struct {
	ContractorID *uuid.UUID `json:"contractor_id,omitempty"`
	Destination  string     `json:"destination,omitempty"`
	AmountCents  int64      `json:"amount_cents"`
	Currency     string     `json:"currency"`
	Notes        string     `json:"notes,omitempty"`
}

// CreateDirect pays a contractor without a contract or work item. The payment
// still lands on the caller's ledger via the business id column.
func (h *PaymentHandler) CreateDirect(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	var req directPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	cap, err := guard.Authorize(actor, guard.OpPay, guard.Resource{BusinessID: actor.ID})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	payment, err := h.payer.ExecuteDirect(r.Context(), cap, payments.DirectPaymentInput{
		BusinessID:   actor.ID,
		ContractorID: req.ContractorID,
		Destination:  req.Destination,
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		Notes:        req.Notes,
	})
	if err != nil {
		var procErr *payments.ProcessorError
		if errors.As(err, &procErr) {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":     "payment processor unavailable",
				"retryable": true,
				"payment":   payment,
			})
			return
		}
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// List returns the caller's statement: all payments for a business, or all
// payments routed to a contractor. An admin may pass businessId to read
// another business's statement.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	var (
		list []*models.Payment
		err  error
	)
	switch actor.Role {
	case guard.RoleContractor:
		list, err = h.ledger.PaymentsEarnedBy(r.Context(), actor.ID)
	default:
		// An admin may list any business; everyone else gets their own ledger.
		businessID := actor.ID
		if raw := r.URL.Query().Get("businessId"); raw != "" {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid businessId"})
				return
			}
			if _, authErr := guard.Authorize(actor, guard.OpRead, guard.Resource{BusinessID: id}); authErr != nil {
				writeError(w, h.log, authErr)
				return
			}
			businessID = id
		}
		list, err = h.ledger.PaymentsFor(r.Context(), businessID)
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type totalsResponse struct {
	Period            string `json:"period"`
	TotalCents        int64  `json:"total_cents"`
	PendingCents      int64  `json:"pending_cents,omitempty"`
	IncludesDirectPay bool   `json:"includes_direct_payments"`
}

// Totals returns the caller's aggregate for the requested period. Totals are
// computed from the payments table directly, so direct payments are included
// without any special casing.
func (h *PaymentHandler) Totals(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	period := r.URL.Query().Get("period")

	if actor.Role == guard.RoleContractor {
		total, err := h.ledger.TotalEarned(r.Context(), actor.ID, period)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, totalsResponse{Period: period, TotalCents: total, IncludesDirectPay: true})
		return
	}

	// An admin may query any business; everyone else gets their own ledger.
	businessID := actor.ID
	if raw := r.URL.Query().Get("businessId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid businessId"})
			return
		}
		if _, err := guard.Authorize(actor, guard.OpRead, guard.Resource{BusinessID: id}); err != nil {
			writeError(w, h.log, err)
			return
		}
		businessID = id
	}

	total, err := h.ledger.TotalPaid(r.Context(), businessID, period)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	pending, err := h.ledger.PendingTotal(r.Context(), businessID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, totalsResponse{Period: period, TotalCents: total, PendingCents: pending, IncludesDirectPay: true})
}
