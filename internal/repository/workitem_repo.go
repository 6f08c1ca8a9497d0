package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

const workItemColumns = `id, business_id, contract_id, contractor_id, title, deliverable,
	amount_cents, currency, status, due_date, assigned_at, submitted_at, reviewed_at, paid_at,
	created_at, updated_at`

type WorkItemRepo struct {
	pool *pgxpool.Pool
}

func NewWorkItemRepo(pool *pgxpool.Pool) *WorkItemRepo {
	return &WorkItemRepo{pool: pool}
}

func (r *WorkItemRepo) Create(ctx context.Context, w *models.WorkItem) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO work_items (id, business_id, contract_id, contractor_id, title, deliverable, amount_cents, currency, status, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, w.ID, w.BusinessID, w.ContractID, w.ContractorID, w.Title, w.Deliverable, w.AmountCents, w.Currency, w.Status, w.DueDate).Scan(&w.CreatedAt, &w.UpdatedAt)
}

func (r *WorkItemRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkItem, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id = $1`, id)
	return scanWorkItem(row)
}

// GetByIDForUpdate locks the work item row for the duration of the
// transaction. Every lifecycle transition goes through this lock, which is
// what serializes submit/approve/reject/pay against the same item.
func (r *WorkItemRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.WorkItem, error) {
	row := tx.QueryRow(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id = $1 FOR UPDATE`, id)
	return scanWorkItem(row)
}

// UpdateTx writes the mutable work item fields inside the caller's transaction.
func (r *WorkItemRepo) UpdateTx(ctx context.Context, tx pgx.Tx, w *models.WorkItem) error {
	_, err := tx.Exec(ctx, `
		UPDATE work_items
		SET contractor_id = $2, title = $3, deliverable = $4, amount_cents = $5, currency = $6,
			status = $7, due_date = $8, assigned_at = $9, submitted_at = $10, reviewed_at = $11,
			paid_at = $12, updated_at = now()
		WHERE id = $1
	`, w.ID, w.ContractorID, w.Title, w.Deliverable, w.AmountCents, w.Currency,
		w.Status, w.DueDate, w.AssignedAt, w.SubmittedAt, w.ReviewedAt, w.PaidAt)
	return err
}

// InsertTransitionTx appends a lifecycle transition audit row.
func (r *WorkItemRepo) InsertTransitionTx(ctx context.Context, tx pgx.Tx, t *models.WorkItemTransition) error {
	return tx.QueryRow(ctx, `
		INSERT INTO work_item_transitions (id, work_item_id, from_status, to_status, actor_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, t.ID, t.WorkItemID, t.FromStatus, t.ToStatus, t.ActorID).Scan(&t.CreatedAt)
}

func (r *WorkItemRepo) ListTransitions(ctx context.Context, workItemID uuid.UUID) ([]*models.WorkItemTransition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, work_item_id, from_status, to_status, actor_id, created_at
		FROM work_item_transitions WHERE work_item_id = $1 ORDER BY created_at ASC
	`, workItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WorkItemTransition
	for rows.Next() {
		var t models.WorkItemTransition
		if err := rows.Scan(&t.ID, &t.WorkItemID, &t.FromStatus, &t.ToStatus, &t.ActorID, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

func (r *WorkItemRepo) ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]*models.WorkItem, error) {
	return r.list(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE business_id = $1 ORDER BY created_at DESC`, businessID)
}

func (r *WorkItemRepo) ListByContractorID(ctx context.Context, contractorID uuid.UUID) ([]*models.WorkItem, error) {
	return r.list(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE contractor_id = $1 ORDER BY created_at DESC`, contractorID)
}

func (r *WorkItemRepo) list(ctx context.Context, sql string, arg any) ([]*models.WorkItem, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func scanWorkItem(row pgx.Row) (*models.WorkItem, error) {
	var w models.WorkItem
	err := row.Scan(&w.ID, &w.BusinessID, &w.ContractID, &w.ContractorID, &w.Title, &w.Deliverable,
		&w.AmountCents, &w.Currency, &w.Status, &w.DueDate, &w.AssignedAt, &w.SubmittedAt,
		&w.ReviewedAt, &w.PaidAt, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
