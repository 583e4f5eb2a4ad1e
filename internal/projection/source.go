package projection

import "context"

// Role is the upstream role record as seen by the projection. Abilities are
// flat ids; Enabled mirrors the status column.
type Role struct {
	ID        int64
	Abilities []int64
	Enabled   bool
	OperateID int64
}

// User is the upstream user record as seen by the projection.
type User struct {
	ID        int64
	Roles     []int64
	Enabled   bool
	OperateID int64
}

// Source fetches role and user records changed after the given operate id.
// Both tables share one operate-id sequence, so a single bound works for both.
type Source interface {
	RolesSince(ctx context.Context, operateID int64) ([]Role, error)
	UsersSince(ctx context.Context, operateID int64) ([]User, error)
}
