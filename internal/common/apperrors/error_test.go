package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedErrorsMatchParent(t *testing.T) {
	parent := New("store error").SetStatusCode(http.StatusInternalServerError)
	child := parent.New("save failed")

	assert.True(t, errors.Is(child, parent))
	assert.False(t, errors.Is(parent, child))
	assert.Equal(t, http.StatusInternalServerError, child.StatusCode())
	assert.Equal(t, "save failed", child.Error())
}

func TestMsgWrapsOriginal(t *testing.T) {
	parent := New("auth error").SetStatusCode(http.StatusUnauthorized)
	wrapped := parent.Msg("invalid credentials for alice")

	require.True(t, errors.Is(wrapped, parent))
	assert.Equal(t, "invalid credentials for alice", wrapped.Error())
	assert.Equal(t, http.StatusUnauthorized, wrapped.StatusCode())
}

func TestErrAttachesCauses(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	base := New("save failed")
	attached := base.Err(cause)

	assert.True(t, errors.Is(attached, cause))
	assert.True(t, errors.Is(attached, base))
	assert.Len(t, attached.UnwrapAll(), 2)
}

func TestSetStatusCodeDoesNotMutateSentinel(t *testing.T) {
	sentinel := New("not found")
	derived := sentinel.SetStatusCode(http.StatusNotFound)

	assert.Equal(t, 0, sentinel.StatusCode())
	assert.Equal(t, http.StatusNotFound, derived.StatusCode())
}
