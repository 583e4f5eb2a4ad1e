package projection_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-console/stratus/internal/projection"
)

type fakeSource struct {
	mu        sync.Mutex
	roles     []projection.Role
	users     []projection.User
	rolesErr  error
	usersErr  error
	roleCalls int
	userCalls int
}

func (f *fakeSource) RolesSince(ctx context.Context, operateID int64) ([]projection.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleCalls++
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	var out []projection.Role
	for _, r := range f.roles {
		if r.OperateID > operateID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) UsersSince(ctx context.Context, operateID int64) ([]projection.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	var out []projection.User
	for _, u := range f.users {
		if u.OperateID > operateID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeSource) apply(roles []projection.Role, users []projection.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles = append(f.roles, roles...)
	f.users = append(f.users, users...)
}

func TestRefreshBuildsEffectiveMap(t *testing.T) {
	source := &fakeSource{}
	source.apply(
		[]projection.Role{
			{ID: 1, Abilities: []int64{100}, Enabled: true, OperateID: 1},
			{ID: 2, Abilities: []int64{200}, Enabled: true, OperateID: 2},
		},
		[]projection.User{
			{ID: 10, Roles: []int64{1, 2}, Enabled: true, OperateID: 3},
		},
	)
	proj := projection.New(source, nil)

	require.NoError(t, proj.Refresh(context.Background()))
	assert.Equal(t, int64(3), proj.Watermark())

	set, ok := proj.EffectiveAbilities(10)
	require.True(t, ok)
	assert.True(t, set.Contains(100))
	assert.True(t, set.Contains(200))
	assert.Equal(t, 2, set.Len())

	// Disable role 2; its ability disappears from every holder.
	source.apply([]projection.Role{{ID: 2, Abilities: []int64{200}, Enabled: false, OperateID: 4}}, nil)
	require.NoError(t, proj.Refresh(context.Background()))
	assert.Equal(t, int64(4), proj.Watermark())

	set, ok = proj.EffectiveAbilities(10)
	require.True(t, ok)
	assert.True(t, set.Contains(100))
	assert.False(t, set.Contains(200))
	assert.Equal(t, 1, set.Len())
}

func TestDisabledUserExcluded(t *testing.T) {
	source := &fakeSource{}
	source.apply(
		[]projection.Role{{ID: 1, Abilities: []int64{100}, Enabled: true, OperateID: 1}},
		[]projection.User{{ID: 10, Roles: []int64{1}, Enabled: true, OperateID: 2}},
	)
	proj := projection.New(source, nil)
	require.NoError(t, proj.Refresh(context.Background()))

	_, ok := proj.EffectiveAbilities(10)
	require.True(t, ok)

	source.apply(nil, []projection.User{{ID: 10, Roles: []int64{1}, Enabled: false, OperateID: 3}})
	require.NoError(t, proj.Refresh(context.Background()))

	_, ok = proj.EffectiveAbilities(10)
	assert.False(t, ok, "disabled user must be absent, not empty")
}

func TestUserWithOnlyDisabledRolesStaysPresent(t *testing.T) {
	source := &fakeSource{}
	source.apply(
		[]projection.Role{{ID: 1, Abilities: []int64{100}, Enabled: true, OperateID: 1}},
		[]projection.User{{ID: 10, Roles: []int64{1}, Enabled: true, OperateID: 2}},
	)
	proj := projection.New(source, nil)
	require.NoError(t, proj.Refresh(context.Background()))

	source.apply([]projection.Role{{ID: 1, Abilities: []int64{100}, Enabled: false, OperateID: 3}}, nil)
	require.NoError(t, proj.Refresh(context.Background()))

	set, ok := proj.EffectiveAbilities(10)
	require.True(t, ok, "enabled user resolves even with zero abilities")
	assert.Equal(t, 0, set.Len())
}

func TestRefreshNoopWithoutNewRows(t *testing.T) {
	source := &fakeSource{}
	source.apply(
		[]projection.Role{{ID: 1, Abilities: []int64{100}, Enabled: true, OperateID: 1}},
		[]projection.User{{ID: 10, Roles: []int64{1}, Enabled: true, OperateID: 2}},
	)
	proj := projection.New(source, nil)
	require.NoError(t, proj.Refresh(context.Background()))
	require.Equal(t, int64(2), proj.Watermark())

	// Duplicate trigger: nothing newer than the watermark.
	require.NoError(t, proj.Refresh(context.Background()))
	assert.Equal(t, int64(2), proj.Watermark())

	set, ok := proj.EffectiveAbilities(10)
	require.True(t, ok)
	assert.True(t, set.Contains(100))
}

func TestRefreshFailureLeavesStateUntouched(t *testing.T) {
	source := &fakeSource{}
	source.apply(
		[]projection.Role{{ID: 1, Abilities: []int64{100}, Enabled: true, OperateID: 1}},
		[]projection.User{{ID: 10, Roles: []int64{1}, Enabled: true, OperateID: 2}},
	)
	proj := projection.New(source, nil)
	require.NoError(t, proj.Refresh(context.Background()))

	source.mu.Lock()
	source.rolesErr = errors.New("store unavailable")
	source.mu.Unlock()
	source.apply(nil, []projection.User{{ID: 10, Roles: []int64{1}, Enabled: false, OperateID: 3}})

	err := proj.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(2), proj.Watermark(), "watermark must survive a failed fetch")
	_, ok := proj.EffectiveAbilities(10)
	assert.True(t, ok, "previous generation stays authoritative")

	// Recovery applies the pending change.
	source.mu.Lock()
	source.rolesErr = nil
	source.mu.Unlock()
	require.NoError(t, proj.Refresh(context.Background()))
	_, ok = proj.EffectiveAbilities(10)
	assert.False(t, ok)
}

func TestUsersFetchFailureLeavesStateUntouched(t *testing.T) {
	source := &fakeSource{}
	source.apply(
		[]projection.Role{{ID: 1, Abilities: []int64{100}, Enabled: true, OperateID: 1}},
		[]projection.User{{ID: 10, Roles: []int64{1}, Enabled: true, OperateID: 2}},
	)
	proj := projection.New(source, nil)
	require.NoError(t, proj.Refresh(context.Background()))

	source.mu.Lock()
	source.usersErr = errors.New("store unavailable")
	source.mu.Unlock()
	source.apply([]projection.Role{{ID: 1, Abilities: []int64{100, 101}, Enabled: true, OperateID: 3}}, nil)

	require.Error(t, proj.Refresh(context.Background()))
	set, ok := proj.EffectiveAbilities(10)
	require.True(t, ok)
	assert.False(t, set.Contains(101), "partial fetch must not leak into the published maps")
	assert.Equal(t, int64(2), proj.Watermark())
}

func TestWatermarkNeverRegresses(t *testing.T) {
	source := &fakeSource{}
	source.apply(
		[]projection.Role{{ID: 1, Abilities: []int64{100}, Enabled: true, OperateID: 7}},
		nil,
	)
	proj := projection.New(source, nil)
	require.NoError(t, proj.Refresh(context.Background()))
	require.Equal(t, int64(7), proj.Watermark())

	watermarks := []int64{proj.Watermark()}
	for i := 0; i < 5; i++ {
		require.NoError(t, proj.Refresh(context.Background()))
		watermarks = append(watermarks, proj.Watermark())
	}
	for i := 1; i < len(watermarks); i++ {
		assert.GreaterOrEqual(t, watermarks[i], watermarks[i-1])
	}
}

func TestConcurrentReadsSeeWholeGenerations(t *testing.T) {
	source := &fakeSource{}
	source.apply(
		[]projection.Role{
			{ID: 1, Abilities: []int64{100}, Enabled: true, OperateID: 1},
			{ID: 2, Abilities: []int64{200}, Enabled: true, OperateID: 2},
		},
		[]projection.User{{ID: 10, Roles: []int64{1, 2}, Enabled: true, OperateID: 3}},
	)
	proj := projection.New(source, nil)
	require.NoError(t, proj.Refresh(context.Background()))

	done := make(chan struct{})
	var readerErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			set, ok := proj.EffectiveAbilities(10)
			if !ok {
				continue
			}
			// Valid generations hold either {100,200} or {100}; a reader
			// must never observe {200} alone or an empty set.
			has100, has200 := set.Contains(100), set.Contains(200)
			if !has100 || (set.Len() == 2) != has200 {
				readerErr = errors.New("observed a mixed generation")
				return
			}
		}
	}()

	for op := int64(4); op < 24; op += 2 {
		source.apply([]projection.Role{{ID: 2, Abilities: []int64{200}, Enabled: false, OperateID: op}}, nil)
		require.NoError(t, proj.Refresh(context.Background()))
		source.apply([]projection.Role{{ID: 2, Abilities: []int64{200}, Enabled: true, OperateID: op + 1}}, nil)
		require.NoError(t, proj.Refresh(context.Background()))
	}
	close(done)
	wg.Wait()
	require.NoError(t, readerErr)
}

func TestEmptyProjectionDeniesByDefault(t *testing.T) {
	proj := projection.New(&fakeSource{}, nil)
	_, ok := proj.EffectiveAbilities(10)
	assert.False(t, ok)
	assert.Equal(t, int64(0), proj.Watermark())
}
