package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

type BusinessRepo struct {
	pool *pgxpool.Pool
}

func NewBusinessRepo(pool *pgxpool.Pool) *BusinessRepo {
	return &BusinessRepo{pool: pool}
}

func (r *BusinessRepo) Create(ctx context.Context, b *models.Business) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO businesses (id, display_name, budget_cap_cents, budget_period)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`, b.ID, b.DisplayName, b.BudgetCapCents, b.BudgetPeriod).Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *BusinessRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Business, error) {
	var b models.Business
	err := r.pool.QueryRow(ctx, `
		SELECT id, display_name, budget_cap_cents, budget_period, created_at, updated_at
		FROM businesses WHERE id = $1
	`, id).Scan(&b.ID, &b.DisplayName, &b.BudgetCapCents, &b.BudgetPeriod, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BusinessRepo) UpdateBudget(ctx context.Context, id uuid.UUID, capCents *int64, period string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE businesses SET budget_cap_cents = $2, budget_period = $3, updated_at = now()
		WHERE id = $1
	`, id, capCents, period)
	return err
}
