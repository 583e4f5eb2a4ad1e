package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratus-console/stratus/internal/shared"
)

const roleColumns = `id, name, description, ability_ids, status, operate_id, created_at, updated_at`

// Repository provides PostgreSQL backed persistence. Every write stamps
// operate_id from the operate_id_seq sequence shared with the users table,
// keeping the projection watermark meaningful across both.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListRoles returns all roles.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts an enabled role with the given ability set.
func (r *Repository) CreateRole(ctx context.Context, name, description string, abilityIDs []int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, ability_ids, status, operate_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, nextval('operate_id_seq'), now(), now())
		RETURNING `+roleColumns,
		name, description, abilityIDs, StatusEnabled)
	return scanRole(row)
}

// SetStatus enables or disables a role.
func (r *Repository) SetStatus(ctx context.Context, id int64, status int16) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET status = $2, operate_id = nextval('operate_id_seq'), updated_at = now()
		WHERE id = $1
		RETURNING `+roleColumns,
		id, status)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// GrantAbilities adds ability ids to the role's set.
func (r *Repository) GrantAbilities(ctx context.Context, id int64, abilityIDs []int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET ability_ids = ARRAY(SELECT DISTINCT unnest(ability_ids || $2::bigint[]) ORDER BY 1),
		    operate_id = nextval('operate_id_seq'), updated_at = now()
		WHERE id = $1
		RETURNING `+roleColumns,
		id, abilityIDs)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// RevokeAbilities removes ability ids from the role's set.
func (r *Repository) RevokeAbilities(ctx context.Context, id int64, abilityIDs []int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles
		SET ability_ids = ARRAY(SELECT unnest(ability_ids) EXCEPT SELECT unnest($2::bigint[]) ORDER BY 1),
		    operate_id = nextval('operate_id_seq'), updated_at = now()
		WHERE id = $1
		RETURNING `+roleColumns,
		id, abilityIDs)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.AbilityIDs, &role.Status, &role.OperateID, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}
