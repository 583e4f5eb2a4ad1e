// Package projection maintains the in-memory authorization projection: which
// abilities each active user currently holds, derived from the role and user
// tables and refreshed incrementally against a shared operate-id watermark.
package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// AbilitySet is a read-only view over a user's effective abilities. The
// backing map belongs to an immutable generation and is never mutated after
// publication, so the view is safe to hold across refreshes.
type AbilitySet struct {
	ids map[int64]struct{}
}

// NewAbilitySet builds a standalone set from ability ids. Useful for
// collaborators and tests that need a set outside a projection generation.
func NewAbilitySet(ids ...int64) AbilitySet {
	return AbilitySet{ids: toSet(ids)}
}

// Contains reports whether the set holds the given ability id.
func (s AbilitySet) Contains(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// ContainsAny reports whether the set holds at least one of the given ids.
func (s AbilitySet) ContainsAny(ids []int64) bool {
	for _, id := range ids {
		if _, ok := s.ids[id]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of abilities in the set.
func (s AbilitySet) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the ability ids.
func (s AbilitySet) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// generation is one published state of the projection. Generations are built
// off to the side and swapped in whole, so readers never observe a half
// applied refresh.
type generation struct {
	roleAbilities map[int64]map[int64]struct{}
	userRoles     map[int64]map[int64]struct{}
	effective     map[int64]map[int64]struct{}
	watermark     int64
}

func emptyGeneration() *generation {
	return &generation{
		roleAbilities: map[int64]map[int64]struct{}{},
		userRoles:     map[int64]map[int64]struct{}{},
		effective:     map[int64]map[int64]struct{}{},
	}
}

// Observer receives refresh telemetry. Implemented by observability.Metrics.
type Observer interface {
	ObserveRefresh(d time.Duration)
	AddProjectionRows(entity string, n int)
}

// Projection owns the role/user/effective maps. External code reads through
// EffectiveAbilities and triggers updates through Refresh; the raw maps are
// never exposed.
type Projection struct {
	source   Source
	logger   *slog.Logger
	observer Observer
	timeout  time.Duration

	group   singleflight.Group
	current atomic.Pointer[generation]
}

// Option configures a Projection.
type Option func(*Projection)

// WithFetchTimeout bounds each Refresh's source calls.
func WithFetchTimeout(d time.Duration) Option {
	return func(p *Projection) { p.timeout = d }
}

// WithObserver wires refresh telemetry.
func WithObserver(o Observer) Option {
	return func(p *Projection) { p.observer = o }
}

// New constructs a Projection with an empty generation and watermark zero,
// so the first Refresh performs a full load.
func New(source Source, logger *slog.Logger, opts ...Option) *Projection {
	p := &Projection{
		source: source,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.current.Store(emptyGeneration())
	return p
}

// Refresh brings the projection up to date with the role and user tables.
// Concurrent callers are collapsed onto a single in-flight refresh; duplicate
// triggers against an unchanged watermark are no-ops, so at-least-once and
// out-of-order bus delivery are harmless.
func (p *Projection) Refresh(ctx context.Context) error {
	_, err, _ := p.group.Do("refresh", func() (any, error) {
		return nil, p.refresh(ctx)
	})
	return err
}

func (p *Projection) refresh(ctx context.Context) error {
	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cur := p.current.Load()

	roles, err := p.source.RolesSince(ctx, cur.watermark)
	if err != nil {
		return fmt.Errorf("projection: fetch roles since %d: %w", cur.watermark, err)
	}
	users, err := p.source.UsersSince(ctx, cur.watermark)
	if err != nil {
		return fmt.Errorf("projection: fetch users since %d: %w", cur.watermark, err)
	}
	if len(roles) == 0 && len(users) == 0 {
		return nil
	}

	next := &generation{
		roleAbilities: cloneSets(cur.roleAbilities),
		userRoles:     cloneSets(cur.userRoles),
		effective:     make(map[int64]map[int64]struct{}),
		watermark:     cur.watermark,
	}

	maxOperateID := cur.watermark
	for _, role := range roles {
		if role.Enabled {
			next.roleAbilities[role.ID] = toSet(role.Abilities)
		} else {
			delete(next.roleAbilities, role.ID)
		}
		if role.OperateID > maxOperateID {
			maxOperateID = role.OperateID
		}
	}
	for _, user := range users {
		if user.Enabled {
			next.userRoles[user.ID] = toSet(user.Roles)
		} else {
			delete(next.userRoles, user.ID)
		}
		if user.OperateID > maxOperateID {
			maxOperateID = user.OperateID
		}
	}

	// Full recompute over the entire user×role space: a role edit touches
	// every holder of that role, and at tens of roles by low thousands of
	// users the pass is cheaper than maintaining reverse indices.
	for userID, roleIDs := range next.userRoles {
		effective := make(map[int64]struct{})
		for roleID := range roleIDs {
			for abilityID := range next.roleAbilities[roleID] {
				effective[abilityID] = struct{}{}
			}
		}
		next.effective[userID] = effective
	}

	// Guard against sequence anomalies moving the watermark backward.
	if maxOperateID > next.watermark {
		next.watermark = maxOperateID
	}

	p.current.Store(next)

	if p.observer != nil {
		p.observer.ObserveRefresh(time.Since(start))
		p.observer.AddProjectionRows("role", len(roles))
		p.observer.AddProjectionRows("user", len(users))
	}
	if p.logger != nil {
		p.logger.Debug("projection refreshed",
			slog.Int("roles", len(roles)),
			slog.Int("users", len(users)),
			slog.Int64("watermark", next.watermark),
		)
	}
	return nil
}

// EffectiveAbilities returns the current effective ability set for a user.
// The second return is false when the user is absent from the projection,
// which covers both disabled and never-synced users. Safe to call
// concurrently with an in-flight Refresh.
func (p *Projection) EffectiveAbilities(userID int64) (AbilitySet, bool) {
	gen := p.current.Load()
	ids, ok := gen.effective[userID]
	if !ok {
		return AbilitySet{}, false
	}
	return AbilitySet{ids: ids}, true
}

// Watermark returns the highest operate id applied by the last successful
// refresh.
func (p *Projection) Watermark() int64 {
	return p.current.Load().watermark
}

func toSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func cloneSets(src map[int64]map[int64]struct{}) map[int64]map[int64]struct{} {
	out := make(map[int64]map[int64]struct{}, len(src))
	for k, v := range src {
		set := make(map[int64]struct{}, len(v))
		for id := range v {
			set[id] = struct{}{}
		}
		out[k] = set
	}
	return out
}
