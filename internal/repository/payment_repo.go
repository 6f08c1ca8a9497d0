package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

const paymentColumns = `id, business_id, contract_id, work_item_id, amount_cents, currency,
	status, destination, idempotency_key, external_transfer_id, notes, scheduled_at, completed_at, created_at, updated_at`

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// CreateTx inserts a payment inside the caller's transaction. business_id is
// stored directly, never derived by joining through contracts. The partial
// unique index on work_item_id rejects a second payment for the same item.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.Payment) error {
	return tx.QueryRow(ctx, `
		INSERT INTO payments (id, business_id, contract_id, work_item_id, amount_cents, currency, status, destination, idempotency_key, external_transfer_id, notes, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`, p.ID, p.BusinessID, p.Link.ContractID, p.Link.WorkItemID, p.AmountCents, p.Currency,
		p.Status, p.Destination, p.IdempotencyKey, p.ExternalTransferID, p.Notes, p.ScheduledAt).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return scanPayment(row)
}

// GetByWorkItemTx looks up the payment already created for a work item, if
// any. Callers hold the work item row lock, so check-then-insert is safe.
func (r *PaymentRepo) GetByWorkItemTx(ctx context.Context, tx pgx.Tx, workItemID uuid.UUID) (*models.Payment, error) {
	row := tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE work_item_id = $1`, workItemID)
	return scanPayment(row)
}

func (r *PaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key)
	return scanPayment(row)
}

// SetStatus moves a payment to the given status, recording the external
// transfer ID when the processor has assigned one.
func (r *PaymentRepo) SetStatus(ctx context.Context, id uuid.UUID, status, externalTransferID string, completedAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2,
			external_transfer_id = CASE WHEN $3 <> '' THEN $3 ELSE external_transfer_id END,
			completed_at = $4, updated_at = now()
		WHERE id = $1
	`, id, status, externalTransferID, completedAt)
	return err
}

func (r *PaymentRepo) SetStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, externalTransferID string, completedAt *time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE payments
		SET status = $2,
			external_transfer_id = CASE WHEN $3 <> '' THEN $3 ELSE external_transfer_id END,
			completed_at = $4, updated_at = now()
		WHERE id = $1
	`, id, status, externalTransferID, completedAt)
	return err
}

// PeriodSpendTx sums everything committed against the business budget since
// the period start: scheduled, processing, and completed payments. Failed
// transfers do not consume budget. Runs inside the caller's transaction so
// the check and the new payment row are atomic.
func (r *PaymentRepo) PeriodSpendTx(ctx context.Context, tx pgx.Tx, businessID uuid.UUID, since time.Time) (int64, error) {
	var total int64
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM payments
		WHERE business_id = $1 AND status <> 'failed' AND created_at >= $2
	`, businessID, since).Scan(&total)
	return total, err
}

func (r *PaymentRepo) ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE business_id = $1 ORDER BY created_at DESC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

// ListByContractorID routes payments to the contractor side via the work
// item join. The join is only for routing to the contractor; business-side
// aggregates never use it.
func (r *PaymentRepo) ListByContractorID(ctx context.Context, contractorID uuid.UUID) ([]*models.Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.business_id, p.contract_id, p.work_item_id, p.amount_cents, p.currency,
			p.status, p.destination, p.idempotency_key, p.external_transfer_id, p.notes, p.scheduled_at, p.completed_at, p.created_at, p.updated_at
		FROM payments p
		JOIN work_items w ON w.id = p.work_item_id
		WHERE w.contractor_id = $1
		ORDER BY p.created_at DESC
	`, contractorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPayments(rows)
}

func collectPayments(rows pgx.Rows) ([]*models.Payment, error) {
	var list []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	var contractID, workItemID *uuid.UUID
	var externalID, notes *string
	err := row.Scan(&p.ID, &p.BusinessID, &contractID, &workItemID, &p.AmountCents, &p.Currency,
		&p.Status, &p.Destination, &p.IdempotencyKey, &externalID, &notes, &p.ScheduledAt, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Link = models.LinkFromIDs(contractID, workItemID)
	if externalID != nil {
		p.ExternalTransferID = *externalID
	}
	if notes != nil {
		p.Notes = *notes
	}
	return &p, nil
}
