package usersession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/web-cat/core/internal/coresrv/authdomain"
	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/store"
)

type notifierProbe struct {
	subjects []string
}

func (n *notifierProbe) NotifyAdmins(ctx context.Context, subject string, err error) {
	n.subjects = append(n.subjects, subject)
}

func setupManager(t *testing.T) (*store.MemStore, *Manager, *notifierProbe) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)

	registry := authdomain.NewRegistry(st)
	require.NoError(t, registry.Refresh(ctx, map[string]string{
		"authenticator.WebCAT": "database",
	}))
	dom, err := registry.Get("WebCAT")
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)
	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()
	localDom, err := ec.Localize(dom.Record.EnterpriseObject)
	require.NoError(t, err)
	_, err = entity.NewUser(ec, "alice", string(hash), entity.AsAuthDomain(localDom))
	require.NoError(t, err)
	require.NoError(t, ec.SaveChanges(ctx))

	probe := &notifierProbe{}
	return st, NewManager(st, registry, probe, 30*time.Minute, 5), probe
}

func countLoginSessions(t *testing.T, st *store.MemStore) int {
	t.Helper()
	ctx := context.Background()
	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()
	rows, err := ec.Fetch(ctx, entity.TypeLoginSession, store.Qualifier{})
	require.NoError(t, err)
	return len(rows)
}

func TestLoginCreatesSingleSessionRow(t *testing.T) {
	ctx := context.Background()
	st, m, _ := setupManager(t)

	s, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "alice", s.User().UserName())
	assert.Equal(t, 1, countLoginSessions(t, st))

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	st, m, _ := setupManager(t)

	_, err := m.Login(ctx, "WebCAT", "alice", "wrong")
	assert.ErrorIs(t, err, authdomain.ErrInvalidCredentials)
	assert.Equal(t, 0, countLoginSessions(t, st))
}

func TestLoginRejoinsActiveSession(t *testing.T) {
	ctx := context.Background()
	st, m, _ := setupManager(t)

	first, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)
	second, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	assert.Same(t, first, second)
	assert.Equal(t, 1, countLoginSessions(t, st))
}

func TestLoginReplacesExpiredSession(t *testing.T) {
	ctx := context.Background()
	st, m, _ := setupManager(t)

	first, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)

	// Force the committed row past its expiration.
	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	local, err := ec.Localize(first.loginSession.EnterpriseObject)
	require.NoError(t, err)
	require.NoError(t, entity.AsLoginSession(local).SetExpirationTime(time.Now().Add(-time.Hour)))
	require.NoError(t, ec.SaveChanges(ctx))
	ec.Dispose()

	second, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Equal(t, 1, countLoginSessions(t, st))
}

func TestSleepExtendsExpiration(t *testing.T) {
	ctx := context.Background()
	st, m, _ := setupManager(t)

	s, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)
	before := s.loginSession.ExpirationTime()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, m.Sleep(ctx, s))
	assert.True(t, s.loginSession.ExpirationTime().After(before))
	assert.Equal(t, 1, countLoginSessions(t, st))
}

func TestSleepFailureNotifiesAndRecovers(t *testing.T) {
	ctx := context.Background()
	st, m, probe := setupManager(t)

	s, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)

	st.FailNextSaves(1)
	err = m.Sleep(ctx, s)
	require.Error(t, err)
	assert.Len(t, probe.subjects, 1)
	assert.Nil(t, s.loginSession.EnterpriseObject)

	// The next cycle re-locates the committed row and extends it.
	require.NoError(t, m.Sleep(ctx, s))
	assert.NotNil(t, s.loginSession.EnterpriseObject)
	assert.Equal(t, 1, countLoginSessions(t, st))
}

func TestLogoutDeletesRowAndDisposesPool(t *testing.T) {
	ctx := context.Background()
	st, m, _ := setupManager(t)

	s, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)
	pm := s.CreateManagedPeerEditingContext()
	_, err = pm.EditingContext(ctx)
	require.NoError(t, err)
	pm.Sleep()

	require.NoError(t, m.Logout(ctx, s))
	assert.Equal(t, 0, countLoginSessions(t, st))
	assert.True(t, pm.Disposed())

	_, err = m.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestLogoutFallsBackToQueryDelete(t *testing.T) {
	ctx := context.Background()
	st, m, _ := setupManager(t)

	s, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)

	// Simulate a lost cached reference; logout must still delete the row.
	s.loginSession = entity.LoginSession{}
	require.NoError(t, m.Logout(ctx, s))
	assert.Equal(t, 0, countLoginSessions(t, st))
}

func TestPurgeLoginSessions(t *testing.T) {
	ctx := context.Background()
	st, m, _ := setupManager(t)

	_, err := m.Login(ctx, "WebCAT", "alice", "secret")
	require.NoError(t, err)
	require.Equal(t, 1, countLoginSessions(t, st))

	require.NoError(t, PurgeLoginSessions(ctx, st))
	assert.Equal(t, 0, countLoginSessions(t, st))
}
