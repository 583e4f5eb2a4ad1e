package roles

import "time"

// Role statuses as stored in the status column.
const (
	StatusDisabled int16 = 0
	StatusEnabled  int16 = 1
)

// Role represents an administrable permission grouping. AbilityIDs is the
// flat set of abilities the role grants; OperateID is the version stamp
// assigned on every write from the sequence shared with users.
type Role struct {
	ID          int64
	Name        string
	Description string
	AbilityIDs  []int64
	Status      int16
	OperateID   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Enabled reports whether the role contributes abilities to the projection.
func (r Role) Enabled() bool {
	return r.Status == StatusEnabled
}
