package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zoevanderzee/interlincRender-sub005/internal/models"
)

type ContractRepo struct {
	pool *pgxpool.Pool
}

func NewContractRepo(pool *pgxpool.Pool) *ContractRepo {
	return &ContractRepo{pool: pool}
}

func (r *ContractRepo) Create(ctx context.Context, c *models.Contract) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO contracts (id, business_id, contractor_id, title, status, total_value_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, c.ID, c.BusinessID, c.ContractorID, c.Title, c.Status, c.TotalValueCents).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *ContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	var c models.Contract
	err := r.pool.QueryRow(ctx, `
		SELECT id, business_id, contractor_id, title, status, total_value_cents, created_at, updated_at
		FROM contracts WHERE id = $1
	`, id).Scan(&c.ID, &c.BusinessID, &c.ContractorID, &c.Title, &c.Status, &c.TotalValueCents, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ContractRepo) ListByBusinessID(ctx context.Context, businessID uuid.UUID) ([]*models.Contract, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, contractor_id, title, status, total_value_cents, created_at, updated_at
		FROM contracts WHERE business_id = $1 ORDER BY created_at DESC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Contract
	for rows.Next() {
		var c models.Contract
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.ContractorID, &c.Title, &c.Status, &c.TotalValueCents, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

func (r *ContractRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE contracts SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	return err
}
