package roles

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratus-console/stratus/internal/bus"
	"github.com/stratus-console/stratus/internal/shared"
	_ "github.com/stratus-console/stratus/testing"
)

type fakeRepo struct {
	roles   map[int64]Role
	nextID  int64
	nextOp  int64
	failOn  string
	lastErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{roles: make(map[int64]Role), nextID: 1, nextOp: 1}
}

func (r *fakeRepo) stamp(role Role) Role {
	role.OperateID = r.nextOp
	r.nextOp++
	r.roles[role.ID] = role
	return role
}

func (r *fakeRepo) ListRoles(ctx context.Context) ([]Role, error) {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *fakeRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *fakeRepo) CreateRole(ctx context.Context, name, description string, abilityIDs []int64) (Role, error) {
	if r.failOn == "create" {
		return Role{}, r.lastErr
	}
	role := Role{ID: r.nextID, Name: name, Description: description, AbilityIDs: abilityIDs, Status: StatusEnabled}
	r.nextID++
	return r.stamp(role), nil
}

func (r *fakeRepo) SetStatus(ctx context.Context, id int64, status int16) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.Status = status
	return r.stamp(role), nil
}

func (r *fakeRepo) GrantAbilities(ctx context.Context, id int64, abilityIDs []int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.AbilityIDs = append(role.AbilityIDs, abilityIDs...)
	return r.stamp(role), nil
}

func (r *fakeRepo) RevokeAbilities(ctx context.Context, id int64, abilityIDs []int64) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	drop := make(map[int64]bool, len(abilityIDs))
	for _, aid := range abilityIDs {
		drop[aid] = true
	}
	kept := role.AbilityIDs[:0:0]
	for _, aid := range role.AbilityIDs {
		if !drop[aid] {
			kept = append(kept, aid)
		}
	}
	role.AbilityIDs = kept
	return r.stamp(role), nil
}

type capturePublisher struct {
	events []bus.Event
	err    error
}

func (p *capturePublisher) Publish(ctx context.Context, ev bus.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func TestCreateRolePublishesChange(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub, slog.Default())

	ctx := shared.ContextWithUserID(context.Background(), 99)
	role, err := svc.CreateRole(ctx, "  auditor ", "read only", []int64{1101})
	require.NoError(t, err)
	require.Equal(t, "auditor", role.Name)
	require.True(t, role.Enabled())

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	require.Equal(t, bus.EntityRole, ev.Entity)
	require.Equal(t, role.ID, ev.EntityID)
	require.Equal(t, "create", ev.Action)
	require.Equal(t, int64(99), ev.ActorID)
	require.Equal(t, role.OperateID, ev.OperateID)
}

func TestCreateRoleRequiresName(t *testing.T) {
	svc := NewService(newFakeRepo(), &capturePublisher{}, slog.Default())
	_, err := svc.CreateRole(context.Background(), "   ", "", nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestGrantAndRevokePublishInOrder(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub, slog.Default())
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "ops", "", []int64{1101})
	require.NoError(t, err)

	granted, err := svc.GrantAbilities(ctx, role.ID, []int64{1102, 1201})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1101, 1102, 1201}, granted.AbilityIDs)
	require.Greater(t, granted.OperateID, role.OperateID)

	revoked, err := svc.RevokeAbilities(ctx, role.ID, []int64{1101})
	require.NoError(t, err)
	require.ElementsMatch(t, []int64{1102, 1201}, revoked.AbilityIDs)

	actions := make([]string, 0, len(pub.events))
	for _, ev := range pub.events {
		actions = append(actions, ev.Action)
	}
	require.Equal(t, []string{"create", "grant", "revoke"}, actions)
}

func TestGrantRequiresAbilityIDs(t *testing.T) {
	svc := NewService(newFakeRepo(), &capturePublisher{}, slog.Default())
	_, err := svc.GrantAbilities(context.Background(), 1, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.RevokeAbilities(context.Background(), 1, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSetEnabledPublishesAction(t *testing.T) {
	repo := newFakeRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub, slog.Default())
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "ops", "", nil)
	require.NoError(t, err)

	disabled, err := svc.SetEnabled(ctx, role.ID, false)
	require.NoError(t, err)
	require.False(t, disabled.Enabled())
	require.Equal(t, "disable", pub.events[len(pub.events)-1].Action)

	enabled, err := svc.SetEnabled(ctx, role.ID, true)
	require.NoError(t, err)
	require.True(t, enabled.Enabled())
	require.Equal(t, "enable", pub.events[len(pub.events)-1].Action)
}

func TestRepoFailureSkipsPublish(t *testing.T) {
	repo := newFakeRepo()
	repo.failOn = "create"
	repo.lastErr = errors.New("boom")
	pub := &capturePublisher{}
	svc := NewService(repo, pub, slog.Default())

	_, err := svc.CreateRole(context.Background(), "ops", "", nil)
	require.Error(t, err)
	require.Empty(t, pub.events)
}

func TestPublishFailureIsSwallowed(t *testing.T) {
	// The periodic refresh covers a lost notification, so the write must
	// still succeed.
	repo := newFakeRepo()
	pub := &capturePublisher{err: errors.New("redis down")}
	svc := NewService(repo, pub, slog.Default())

	role, err := svc.CreateRole(context.Background(), "ops", "", nil)
	require.NoError(t, err)
	require.NotZero(t, role.ID)
}
