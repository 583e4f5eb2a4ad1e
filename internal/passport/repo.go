package passport

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratus-console/stratus/internal/shared"
)

// Repository defines credential lookup for the login flow.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches login credentials for a user.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	var cred Credential
	var status int16
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, status FROM users WHERE email = $1`,
		email,
	).Scan(&cred.UserID, &cred.Email, &cred.PasswordHash, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	cred.Enabled = status == 1
	return &cred, nil
}

var _ Repository = (*PGRepository)(nil)
