package authdomain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web-cat/core/internal/coresrv/entity"
	"github.com/web-cat/core/internal/coresrv/store"
)

func testProps() map[string]string {
	return map[string]string{
		"authenticator.WebCAT":                    "database",
		"authenticator.WebCAT.displayableName":    "Web-CAT",
		"authenticator.WebCAT.defaultEmailDomain": "vt.edu",
		"authenticator.Guest":                     "",
		"authenticator.default":                   "WebCAT",
		"authenticator.broken":                    "noSuchClass",
		"authenticator.not.a.domain":              "ignored",
		"unrelated.property":                      "ignored",
	}
}

func TestRefreshRegistersDomains(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	r := NewRegistry(st)

	require.NoError(t, r.Refresh(ctx, testProps()))

	all := r.All()
	require.Len(t, all, 2) // broken entry skipped, scan continued
	assert.Equal(t, "Guest", all[0].Name())
	assert.Equal(t, "WebCAT", all[1].Name())

	dom, err := r.Get("WebCAT")
	require.NoError(t, err)
	assert.Equal(t, "Web-CAT", dom.Record.DisplayableName())
	assert.Equal(t, "vt.edu", dom.Record.DefaultEmailDomain())
	assert.NotNil(t, dom.Auth)

	_, err = r.Get("broken")
	assert.ErrorIs(t, err, ErrUnknownDomain)

	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "WebCAT", def.Name())
}

func TestRefreshPersistsRecordsOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	r := NewRegistry(st)

	require.NoError(t, r.Refresh(ctx, testProps()))
	require.NoError(t, r.Refresh(ctx, testProps()))

	ec, err := st.NewContext(ctx)
	require.NoError(t, err)
	defer ec.Dispose()
	matches, err := ec.Fetch(ctx, entity.TypeAuthDomain, store.Qualifier{
		entity.KeyPropertyName: "authenticator.WebCAT",
	})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRefreshAdoptsExistingRecord(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)

	seed, err := st.NewContext(ctx)
	require.NoError(t, err)
	existing, err := entity.NewAuthDomain(seed, "authenticator.WebCAT")
	require.NoError(t, err)
	require.NoError(t, seed.SaveChanges(ctx))
	seed.Dispose()

	r := NewRegistry(st)
	require.NoError(t, r.Refresh(ctx, testProps()))

	dom, err := r.Get("WebCAT")
	require.NoError(t, err)
	assert.Equal(t, existing.Ref(), dom.Record.Ref())
	assert.Equal(t, "Web-CAT", dom.Record.DisplayableName())
}

func TestDefaultFallsBackToSoleDomain(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore(entity.Schemas(), 0)
	r := NewRegistry(st)

	require.NoError(t, r.Refresh(ctx, map[string]string{
		"authenticator.Only": "database",
	}))

	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "Only", def.Name())
}
