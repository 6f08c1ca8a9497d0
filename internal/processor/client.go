// Package processor wraps the connected-account payment processor. Transfers
// are deduplicated by the processor on idempotency key, so a retry with the
// same key can never move money twice.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Transfer statuses reported by the processor.
const (
	TransferStatusPending   = "pending"
	TransferStatusCompleted = "completed"
	TransferStatusFailed    = "failed"
)

// ErrTransferNotFound is returned by GetTransfer when no transfer exists for
// the idempotency key, meaning the original call never reached the processor.
var ErrTransferNotFound = errors.New("transfer not found")

// AmbiguousError marks a transfer call whose outcome is unknown (timeout or
// transport failure). The caller must not retry with a fresh idempotency key;
// reconciliation resolves it by querying with the same key.
type AmbiguousError struct {
	IdempotencyKey string
	Err            error
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("transfer %s outcome unknown: %v", e.IdempotencyKey, e.Err)
}

func (e *AmbiguousError) Unwrap() error { return e.Err }

// TransferRequest is the processor's transfer-to-connected-account input.
type TransferRequest struct {
	AmountCents    int64             `json:"amount_cents"`
	Currency       string            `json:"currency"`
	Destination    string            `json:"destination"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Transfer is the processor's view of a transfer.
type Transfer struct {
	ID     string `json:"transfer_id"`
	Status string `json:"status"`
}

// Client is the processor surface the orchestrator and reconciler consume.
type Client interface {
	Transfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	GetTransfer(ctx context.Context, idempotencyKey string) (*Transfer, error)
}

// HTTPClient talks to the processor over HTTP with a bounded timeout.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewHTTPClient returns an HTTPClient with the given per-call timeout.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

var _ Client = (*HTTPClient)(nil)

// Transfer executes (or dedups) a transfer. A timeout or transport error is
// an ambiguous outcome, reported as *AmbiguousError.
func (c *HTTPClient) Transfer(ctx context.Context, treq TransferRequest) (*Transfer, error) {
	body, err := json.Marshal(treq)
	if err != nil {
		return nil, fmt.Errorf("marshal transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Idempotency-Key", treq.IdempotencyKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &AmbiguousError{IdempotencyKey: treq.IdempotencyKey, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &AmbiguousError{IdempotencyKey: treq.IdempotencyKey, Err: fmt.Errorf("processor returned %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("processor rejected transfer: status %d", resp.StatusCode)
	}

	var t Transfer
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, &AmbiguousError{IdempotencyKey: treq.IdempotencyKey, Err: fmt.Errorf("decode transfer response: %w", err)}
	}
	return &t, nil
}

// GetTransfer polls the processor for the transfer with the given
// idempotency key.
func (c *HTTPClient) GetTransfer(ctx context.Context, idempotencyKey string) (*Transfer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/transfers/by-key/"+idempotencyKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create get-transfer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrTransferNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get transfer: status %d", resp.StatusCode)
	}

	var t Transfer
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode transfer: %w", err)
	}
	return &t, nil
}
