package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratus-console/stratus/internal/platform/httpx"
	"github.com/stratus-console/stratus/internal/shared"
)

const userColumns = `id, email, name, role_ids, status, operate_id, created_at, updated_at`

// Repository provides PostgreSQL backed persistence. Writes stamp operate_id
// from the operate_id_seq sequence shared with the roles table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GetUser fetches a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts an enabled account with the given role set.
func (r *Repository) CreateUser(ctx context.Context, email, name, passwordHash string, roleIDs []int64) (User, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, role_ids, status, operate_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, nextval('operate_id_seq'), now(), now())
		RETURNING `+userColumns,
		email, name, passwordHash, roleIDs, StatusEnabled)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, httpx.ErrDuplicate
		}
		return User{}, err
	}
	return user, nil
}

// SetStatus enables or disables an account.
func (r *Repository) SetStatus(ctx context.Context, id int64, status int16) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET status = $2, operate_id = nextval('operate_id_seq'), updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, status)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// GrantRoles adds role ids to the account's set.
func (r *Repository) GrantRoles(ctx context.Context, id int64, roleIDs []int64) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET role_ids = ARRAY(SELECT DISTINCT unnest(role_ids || $2::bigint[]) ORDER BY 1),
		    operate_id = nextval('operate_id_seq'), updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, roleIDs)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// RevokeRoles removes role ids from the account's set.
func (r *Repository) RevokeRoles(ctx context.Context, id int64, roleIDs []int64) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users
		SET role_ids = ARRAY(SELECT unnest(role_ids) EXCEPT SELECT unnest($2::bigint[]) ORDER BY 1),
		    operate_id = nextval('operate_id_seq'), updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, roleIDs)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.RoleIDs, &user.Status, &user.OperateID, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}
