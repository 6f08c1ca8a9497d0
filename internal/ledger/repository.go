// Package ledger answers money questions for dashboards and statements.
// Every aggregate is computed by the database with a direct business_id
// predicate: payments are never loaded into memory and filtered against a
// contract list, so direct payments can never be dropped from a total.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TotalPaid sums completed payments attributed to the business inside the
// window, regardless of contract linkage.
func (r *Repository) TotalPaid(ctx context.Context, businessID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM payments
		WHERE business_id = $1 AND status = 'completed'
		  AND completed_at >= $2 AND completed_at < $3
	`, businessID, from, to).Scan(&total)
	return total, err
}

// TotalEarned sums completed payments routed to the contractor through the
// work item join. The join routes money to the contractor side only; it is
// never used to exclude direct payments from a business's totals.
func (r *Repository) TotalEarned(ctx context.Context, contractorID uuid.UUID, from, to time.Time) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(p.amount_cents), 0)
		FROM payments p
		JOIN work_items w ON w.id = p.work_item_id
		WHERE w.contractor_id = $1 AND p.status = 'completed'
		  AND p.completed_at >= $2 AND p.completed_at < $3
	`, contractorID, from, to).Scan(&total)
	return total, err
}

// PendingTotal sums payments still awaiting processor settlement.
func (r *Repository) PendingTotal(ctx context.Context, businessID uuid.UUID) (int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM payments
		WHERE business_id = $1 AND status IN ('scheduled', 'processing')
	`, businessID).Scan(&total)
	return total, err
}
