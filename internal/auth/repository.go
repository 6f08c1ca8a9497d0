package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, role string) (*Account, error) {
	var acc Account
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, display_name, role
	`, email, passwordHash, displayName, role).Scan(&acc.ID, &acc.Email, &acc.DisplayName, &acc.Role)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// GetByEmail returns (nil, "", nil) when no account matches.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Account, string, error) {
	var acc Account
	var hash string
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, password_hash
		FROM accounts WHERE email = $1
	`, email).Scan(&acc.ID, &acc.Email, &acc.DisplayName, &acc.Role, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &acc, hash, nil
}
