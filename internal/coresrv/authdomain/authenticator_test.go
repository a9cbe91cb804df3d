package authdomain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/web-cat/core/internal/common"
	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/store"
)

func seedCredentialedUser(t *testing.T, st *store.MemStore, password string) (entity.User, entity.AuthDomain) {
	t.Helper()
	ctx := context.Background()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()

	dom, err := entity.NewAuthDomain(ec, "authenticator.WebCAT")
	require.NoError(t, err)
	user, err := entity.NewUser(ec, "alice", string(hash), dom)
	require.NoError(t, err)
	require.NoError(t, ec.SaveChanges(ctx))
	return user, dom
}

func TestDatabaseAuthenticate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	_, dom := seedCredentialedUser(t, st, "secret")
	auth := &DatabaseAuthenticator{}

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()

	user, err := auth.Authenticate(ctx, ec, dom, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.UserName())

	_, err = auth.Authenticate(ctx, ec, dom, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Authenticate(ctx, ec, dom, "nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateScopedToDomain(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	seedCredentialedUser(t, st, "secret")
	auth := &DatabaseAuthenticator{}

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()

	other, err := entity.NewAuthDomain(ec, "authenticator.Other")
	require.NoError(t, err)
	require.NoError(t, ec.SaveChanges(ctx))

	// alice exists, but not in this domain.
	_, err = auth.Authenticate(ctx, ec, other, "alice", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	_, dom := seedCredentialedUser(t, st, "secret")
	auth := &DatabaseAuthenticator{}
	require.True(t, auth.CanChangePassword())

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()

	user, err := auth.Authenticate(ctx, ec, dom, "alice", "secret")
	require.NoError(t, err)
	require.NoError(t, auth.ChangePassword(ctx, ec, user, "newsecret"))

	check, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer check.Dispose()
	_, err = auth.Authenticate(ctx, check, dom, "alice", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Authenticate(ctx, check, dom, "alice", "newsecret")
	assert.NoError(t, err)
}

func TestNewRandomPassword(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	_, dom := seedCredentialedUser(t, st, "secret")
	auth := &DatabaseAuthenticator{}

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()

	user, err := auth.Authenticate(ctx, ec, dom, "alice", "secret")
	require.NoError(t, err)
	password, err := auth.NewRandomPassword(ctx, ec, user)
	require.NoError(t, err)
	assert.Len(t, password, common.GeneratedPasswordLen)

	check, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer check.Dispose()
	_, err = auth.Authenticate(ctx, check, dom, "alice", password)
	assert.NoError(t, err)
}

func TestNewRandomPasswordPersistsThroughStrategy(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	_, dom := seedCredentialedUser(t, st, "secret")

	var auth Authenticator = &DatabaseAuthenticator{}

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()

	user, err := auth.Authenticate(ctx, ec, dom, "alice", "secret")
	require.NoError(t, err)

	// A failing save surfaces as an error and leaves the stored
	// credential untouched.
	st.FailNextSaves(1)
	_, err = auth.NewRandomPassword(ctx, ec, user)
	require.Error(t, err)

	check, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer check.Dispose()
	_, err = auth.Authenticate(ctx, check, dom, "alice", "secret")
	assert.NoError(t, err)

	// The next attempt commits a fresh credential.
	password, err := auth.NewRandomPassword(ctx, ec, user)
	require.NoError(t, err)

	check2, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer check2.Dispose()
	_, err = auth.Authenticate(ctx, check2, dom, "alice", password)
	assert.NoError(t, err)
	_, err = auth.Authenticate(ctx, check2, dom, "alice", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
