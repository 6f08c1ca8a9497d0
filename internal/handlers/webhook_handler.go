package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
	"github.com/zoevanderzee/interlincRender-sub005/internal/processor"
)

// PaymentFinder resolves the payment a webhook event refers to.
type PaymentFinder interface {
	GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
}

// Settler applies a terminal transfer outcome to a payment.
type Settler interface {
	ApplyTransferOutcome(ctx context.Context, paymentID uuid.UUID, status, externalTransferID string) error
}

// WebhookHandler receives asynchronous transfer confirmations from the
// payment processor. Events are matched to payments by idempotency key and
// applied idempotently, so replays and out-of-order delivery are safe.
type WebhookHandler struct {
	payments PaymentFinder
	settler  Settler
	secret   []byte
	log      *slog.Logger
}

func NewWebhookHandler(payments PaymentFinder, settler Settler, secret string, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{payments: payments, settler: settler, secret: []byte(secret), log: log}
}

type processorEvent struct {
	TransferID     string `json:"transfer_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	if !h.verifySignature(body, r.Header.Get("X-Processor-Signature")) {
		h.log.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var event processorEvent
	if err := json.Unmarshal(body, &event); err != nil || event.IdempotencyKey == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed event"})
		return
	}

	var status string
	switch event.Status {
	case processor.TransferStatusCompleted:
		status = models.PaymentStatusCompleted
	case processor.TransferStatusFailed:
		status = models.PaymentStatusFailed
	case processor.TransferStatusPending:
		// Nothing to settle yet; acknowledge so the processor stops retrying.
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending acknowledged"})
		return
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown transfer status"})
		return
	}

	p, err := h.payments.GetByIdempotencyKey(r.Context(), event.IdempotencyKey)
	if errors.Is(err, pgx.ErrNoRows) {
		// Unknown key: acknowledged, not retried. Likely an event for a
		// payment created in another environment.
		h.log.Warn("webhook for unknown idempotency key", "key", event.IdempotencyKey)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if err := h.settler.ApplyTransferOutcome(r.Context(), p.ID, status, event.TransferID); err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("webhook applied", "payment_id", p.ID, "status", status)
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if len(h.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
