package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

type ContractorRepo struct {
	pool *pgxpool.Pool
}

func NewContractorRepo(pool *pgxpool.Pool) *ContractorRepo {
	return &ContractorRepo{pool: pool}
}

func (r *ContractorRepo) Create(ctx context.Context, c *models.Contractor) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO contractors (id, display_name, connected_account_id)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, c.ID, c.DisplayName, c.ConnectedAccountID).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ContractorRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contractor, error) {
	var c models.Contractor
	err := r.pool.QueryRow(ctx, `
		SELECT id, display_name, connected_account_id, created_at, updated_at
		FROM contractors WHERE id = $1
	`, id).Scan(&c.ID, &c.DisplayName, &c.ConnectedAccountID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
