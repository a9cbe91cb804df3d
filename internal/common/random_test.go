package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomCodeUsesCharset(t *testing.T) {
	code, err := RandomCode(Digits, 32)
	require.NoError(t, err)
	require.Len(t, code, 32)
	for _, c := range code {
		assert.True(t, strings.ContainsRune(Digits, c))
	}
}

func TestRandomCodeRejectsEmptyCharset(t *testing.T) {
	_, err := RandomCode("", 8)
	assert.Error(t, err)
}

func TestRandomPasswordLength(t *testing.T) {
	pw, err := RandomPassword()
	require.NoError(t, err)
	assert.Len(t, pw, GeneratedPasswordLen)
}

func TestRandomPasswordsDiffer(t *testing.T) {
	a, err := RandomPassword()
	require.NoError(t, err)
	b, err := RandomPassword()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
