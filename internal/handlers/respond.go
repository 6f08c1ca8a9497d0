package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/zoevanderzee/interlincRender-sub005/internal/guard"
	"github.com/zoevanderzee/interlincRender-sub005/internal/payments"
	"github.com/zoevanderzee/interlincRender-sub005/internal/workflow"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses: denials are 403,
// illegal transitions 409 with current and attempted state, validation 422,
// processor failures 502 marked retryable.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var denied *guard.DeniedError
	if errors.As(err, &denied) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden", "reason": denied.Reason})
		return
	}

	var invalid *workflow.InvalidTransitionError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":     "invalid state transition",
			"current":   invalid.Current,
			"attempted": invalid.Attempted,
		})
		return
	}

	var budget *payments.BudgetExceededError
	if errors.As(err, &budget) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "budget exceeded"})
		return
	}

	var consistency *payments.ConsistencyError
	if errors.As(err, &consistency) {
		logger.Error("consistency violation detected", "error", err)
		writeJSON(w, http.StatusConflict, map[string]string{"error": "payment already exists for work item"})
		return
	}

	if errors.Is(err, workflow.ErrValidation) || errors.Is(err, payments.ErrValidation) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	if errors.Is(err, pgx.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
