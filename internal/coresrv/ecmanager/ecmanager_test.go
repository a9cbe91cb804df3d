package ecmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/store"
)

// seedAlice commits a user "alice" attached to one authentication domain and
// returns the committed objects. The seeding context is disposed before
// returning so tests start with no live channels.
func seedAlice(t *testing.T, st *store.MemStore) (user, domain store.EnterpriseObject) {
	t.Helper()
	ctx := context.Background()

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()

	dom, err := entity.NewAuthDomain(ec, "authenticator.WebCAT")
	require.NoError(t, err)
	u, err := entity.NewUser(ec, "alice", "hash", dom)
	require.NoError(t, err)
	require.NoError(t, ec.SaveChanges(ctx))
	return u.EnterpriseObject, dom.EnterpriseObject
}

// committedUser re-reads obj's committed state through a fresh context.
func committedUser(t *testing.T, st *store.MemStore, obj store.EnterpriseObject) entity.User {
	t.Helper()
	ctx := context.Background()

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	t.Cleanup(ec.Dispose)

	local, err := ec.Localize(obj)
	require.NoError(t, err)
	return entity.AsUser(local)
}

func TestSaveChangesCommits(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)

	m, err := NewECManager(ctx, st)
	require.NoError(t, err)
	defer m.Dispose()

	local, err := m.Localize(userObj)
	require.NoError(t, err)

	m.Lock()
	require.NoError(t, local.Set(entity.KeyFirstName, "Alice"))
	m.Unlock()

	res, err := m.SaveChanges(ctx, local)
	require.NoError(t, err)
	assert.False(t, res.Swapped)
	assert.Equal(t, local.Ref(), res.Object.Ref())

	assert.Equal(t, "Alice", committedUser(t, st, userObj).FirstName())
}

func TestSaveChangesReplacesContextOnFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)

	m, err := NewECManager(ctx, st)
	require.NoError(t, err)
	defer m.Dispose()

	local, err := m.Localize(userObj)
	require.NoError(t, err)

	m.Lock()
	require.NoError(t, local.Set(entity.KeyFirstName, "Alice"))
	m.Unlock()

	st.FailNextSaves(1)
	res, err := m.SaveChanges(ctx, local)
	require.NoError(t, err)
	require.True(t, res.Swapped)
	assert.Equal(t, local.Ref(), res.Object.Ref())

	// The mutation died with the discarded context.
	rebound := res.Object
	assert.Equal(t, "", entity.AsUser(rebound).FirstName())
	assert.Equal(t, "", committedUser(t, st, userObj).FirstName())

	// Re-applying against the replacement context succeeds.
	m.Lock()
	require.NoError(t, rebound.Set(entity.KeyFirstName, "Alice"))
	m.Unlock()
	res, err = m.SaveChanges(ctx, rebound)
	require.NoError(t, err)
	assert.False(t, res.Swapped)
	assert.Equal(t, "Alice", committedUser(t, st, userObj).FirstName())
}

func TestSaveChangesReplacementAllocationFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 1)

	seedCtx, err := st.NewContext(ctx)
	require.NoError(t, err)
	dom, err := entity.NewAuthDomain(seedCtx, "authenticator.WebCAT")
	require.NoError(t, err)
	u, err := entity.NewUser(seedCtx, "alice", "hash", dom)
	require.NoError(t, err)
	require.NoError(t, seedCtx.SaveChanges(ctx))
	seedCtx.Dispose()

	m, err := NewECManager(ctx, st)
	require.NoError(t, err)
	defer m.Dispose()

	local, err := m.Localize(u.EnterpriseObject)
	require.NoError(t, err)
	m.Lock()
	require.NoError(t, local.Set(entity.KeyFirstName, "Alice"))
	m.Unlock()

	// The broken context is still holding the store's only channel when the
	// replacement is requested, so allocation fails and the error surfaces.
	st.FailNextSaves(1)
	_, err = m.SaveChanges(ctx, local)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContextReplacement)
	assert.ErrorIs(t, err, store.ErrChannelLimit)
}

func TestDisposedManagerRefusesWork(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)

	m, err := NewECManager(ctx, st)
	require.NoError(t, err)
	m.Dispose()
	m.Dispose() // idempotent

	_, err = m.Localize(userObj)
	assert.ErrorIs(t, err, ErrDisposed)
	_, err = m.SaveChanges(ctx, userObj)
	assert.ErrorIs(t, err, ErrDisposed)
}
