package projection

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides the PostgreSQL backed Source.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RolesSince returns role records with operate_id greater than the bound.
func (r *Repository) RolesSince(ctx context.Context, operateID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, ability_ids, status, operate_id FROM roles WHERE operate_id > $1 ORDER BY operate_id`, operateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		var status int16
		if err := rows.Scan(&role.ID, &role.Abilities, &status, &role.OperateID); err != nil {
			return nil, err
		}
		role.Enabled = status == 1
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UsersSince returns user records with operate_id greater than the bound.
func (r *Repository) UsersSince(ctx context.Context, operateID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, role_ids, status, operate_id FROM users WHERE operate_id > $1 ORDER BY operate_id`, operateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var user User
		var status int16
		if err := rows.Scan(&user.ID, &user.Roles, &status, &user.OperateID); err != nil {
			return nil, err
		}
		user.Enabled = status == 1
		users = append(users, user)
	}
	return users, rows.Err()
}

var _ Source = (*Repository)(nil)
