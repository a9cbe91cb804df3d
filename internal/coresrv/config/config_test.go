package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30m", 30 * time.Minute, false},
		{"2h", 2 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"1y", 365 * 24 * time.Hour, false},
		{"30s", 0, true},
		{"", 0, true},
		{"m", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		require.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	conf := `
format_version = "0.1.0"
server_hostname = "localhost"
server_port = "8780"

[session]
timeout = "30m"
page_cache_size = 20

[auth]
token_validity = "12h"

[store]
type = "memory"

[filesystem]
submission_root = "` + dir + `/submissions"
work_area_root = "` + dir + `/work"
script_data_root = "` + dir + `/scriptdata"

[properties]
"authenticator.Institution" = "database"
"authenticator.Institution.displayableName" = "Example Institution"
`
	path := filepath.Join(dir, "webcatsrv.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	require.NoError(t, LoadConfig(path))

	c := Config()
	require.NotNil(t, c)
	assert.Equal(t, "8780", c.ServerPort)
	assert.Equal(t, 20, c.Session.PageCacheSize)
	assert.Equal(t, DefaultMaxChannels, c.Store.MaxChannels)
	assert.Equal(t, 30*time.Minute, c.Session.GetTimeoutOrDefault())

	v, ok := c.Property("authenticator.Institution")
	require.True(t, ok)
	assert.Equal(t, "database", v)
	assert.Equal(t, "Example Institution",
		c.PropertyOrDefault("authenticator.Institution.displayableName", ""))
}

func TestLoadConfigRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	conf := `
format_version = "9.9.9"
server_port = "8780"
`
	path := filepath.Join(dir, "webcatsrv.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	assert.Error(t, LoadConfig(path))
}

func TestLoadConfigRequiresDBForPostgres(t *testing.T) {
	dir := t.TempDir()
	conf := `
format_version = "0.1.0"
server_port = "8780"

[session]
timeout = "30m"
page_cache_size = 10

[auth]
token_validity = "12h"

[store]
type = "postgresql"

[filesystem]
submission_root = "` + dir + `/submissions"
work_area_root = "` + dir + `/work"
script_data_root = "` + dir + `/scriptdata"
`
	path := filepath.Join(dir, "webcatsrv.conf")
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o644))
	assert.Error(t, LoadConfig(path))
}
