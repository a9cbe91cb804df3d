package ecmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/store"
)

func newCachedUser(t *testing.T, st *store.MemStore, userObj store.EnterpriseObject) *CachingEOManager {
	t.Helper()
	ctx := context.Background()

	m, err := NewECManager(ctx, st)
	require.NoError(t, err)
	cm, err := NewCachingEOManager(ctx, userObj, m, nil)
	require.NoError(t, err)
	t.Cleanup(cm.Dispose)
	return cm
}

func TestCachedWriteSurvivesForcedContextSwap(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)
	cm := newCachedUser(t, st, userObj)

	st.FailNextSaves(1)
	require.NoError(t, cm.SetValue(ctx, entity.KeyUserName, "bob"))

	assert.Equal(t, "bob", cm.Value(entity.KeyUserName))
	assert.Equal(t, "bob", committedUser(t, st, userObj).UserName())
}

func TestCachedWriteRollsBackOnPersistentFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)
	cm := newCachedUser(t, st, userObj)

	st.FailNextSaves(2)
	err := cm.SetValue(ctx, entity.KeyUserName, "bob")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistentSaveFailure)

	assert.Equal(t, "alice", cm.Value(entity.KeyUserName))
	assert.Equal(t, "alice", committedUser(t, st, userObj).UserName())
}

func TestCachedNoOpWriteSkipsCommit(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)
	cm := newCachedUser(t, st, userObj)

	// If a commit were attempted while a forced failure is armed, a
	// replacement context would be allocated and the request count would
	// rise.
	requestsBefore, _ := st.Stats()
	st.FailNextSaves(1)
	require.NoError(t, cm.SetValue(ctx, entity.KeyUserName, "alice"))
	requestsAfter, _ := st.Stats()
	assert.Equal(t, requestsBefore, requestsAfter)
}

func TestCachedClearSingleValuedRelationship(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, domObj := seedAlice(t, st)
	cm := newCachedUser(t, st, userObj)

	require.NoError(t, cm.SetValue(ctx, entity.RelAuthenticationDomain, nil))
	assert.Empty(t, cm.Value(entity.RelAuthenticationDomain))

	// Both sides of the committed relationship are gone.
	user := committedUser(t, st, userObj)
	related, err := user.Related(entity.RelAuthenticationDomain)
	require.NoError(t, err)
	assert.Empty(t, related)

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()
	dom, err := ec.Localize(domObj)
	require.NoError(t, err)
	members, err := dom.Related(entity.RelUsers)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestCachedReplaceSingleValuedRelationship(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, domObj := seedAlice(t, st)

	seedCtx, err := st.NewContext(ctx)
	require.NoError(t, err)
	dom2, err := entity.NewAuthDomain(seedCtx, "authenticator.Guest")
	require.NoError(t, err)
	require.NoError(t, seedCtx.SaveChanges(ctx))
	seedCtx.Dispose()

	cm := newCachedUser(t, st, userObj)
	require.NoError(t, cm.SetValue(ctx, entity.RelAuthenticationDomain, dom2.EnterpriseObject))

	members := cm.Value(entity.RelAuthenticationDomain).([]store.EnterpriseObject)
	require.Len(t, members, 1)
	assert.Equal(t, dom2.Ref(), members[0].Ref())

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()

	oldDom, err := ec.Localize(domObj)
	require.NoError(t, err)
	oldMembers, err := oldDom.Related(entity.RelUsers)
	require.NoError(t, err)
	assert.Empty(t, oldMembers)

	newDom, err := ec.Localize(dom2.EnterpriseObject)
	require.NoError(t, err)
	newMembers, err := newDom.Related(entity.RelUsers)
	require.NoError(t, err)
	require.Len(t, newMembers, 1)
	assert.Equal(t, userObj.Ref(), newMembers[0].Ref())
}

func TestCachedRelationshipAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, domObj := seedAlice(t, st)

	m, err := NewECManager(ctx, st)
	require.NoError(t, err)
	cm, err := NewCachingEOManager(ctx, domObj, m, nil)
	require.NoError(t, err)
	defer cm.Dispose()

	// alice is already a member through the seeded inverse.
	require.NoError(t, cm.AddToRelationship(ctx, entity.RelUsers, userObj))
	members := cm.Value(entity.RelUsers).([]store.EnterpriseObject)
	assert.Len(t, members, 1)
}

func TestCachedRelationshipRejectsWrongType(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)
	cm := newCachedUser(t, st, userObj)

	err := cm.AddToRelationship(ctx, entity.RelAuthenticationDomain, userObj)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	err = cm.SetValue(ctx, "noSuchKey", "x")
	assert.ErrorIs(t, err, ErrInvalidArgument)
	err = cm.AddToRelationship(ctx, entity.RelAuthenticationDomain, nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCachedCloneIsIndependent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)
	cm := newCachedUser(t, st, userObj)

	cp := cm.Clone()
	require.NoError(t, cm.SetValue(ctx, entity.KeyUserName, "bob"))

	assert.Equal(t, "bob", cm.Value(entity.KeyUserName))
	assert.Equal(t, "alice", cp.Value(entity.KeyUserName))
}

func TestCachedValueReturnsDetachedCollections(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	userObj, _ := seedAlice(t, st)
	cm := newCachedUser(t, st, userObj)

	members := cm.Value(entity.RelAuthenticationDomain).([]store.EnterpriseObject)
	require.Len(t, members, 1)

	// Clobbering the returned slice must not reach the cache.
	members[0] = nil

	again := cm.Value(entity.RelAuthenticationDomain).([]store.EnterpriseObject)
	require.Len(t, again, 1)
	require.NotNil(t, again[0])

	// The intact cache still drives relationship writes correctly.
	require.NoError(t, cm.SetValue(ctx, entity.RelAuthenticationDomain, nil))
	assert.Empty(t, cm.Value(entity.RelAuthenticationDomain))
}
