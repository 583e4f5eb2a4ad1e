package users

import "time"

// User statuses as stored in the status column.
const (
	StatusDisabled int16 = 0
	StatusEnabled  int16 = 1
)

// User represents an administrable console account. RoleIDs is the set of
// roles granted to the account; OperateID is the version stamp assigned on
// every write from the sequence shared with roles.
type User struct {
	ID        int64
	Email     string
	Name      string
	RoleIDs   []int64
	Status    int16
	OperateID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Enabled reports whether the account participates in the projection.
func (u User) Enabled() bool {
	return u.Status == StatusEnabled
}
