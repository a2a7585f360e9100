package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Empty(t, cfg.Transport.URL)
	assert.Equal(t, 10*time.Second, cfg.Transport.JoinTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLASSHUB_HTTP_PORT", "9090")
	t.Setenv("CLASSHUB_DATABASE_ENABLED", "false")
	t.Setenv("CLASSHUB_TRANSPORT_URL", "ws://switch.local/ws")
	t.Setenv("CLASSHUB_TRANSPORT_JOIN_TIMEOUT", "30s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "ws://switch.local/ws", cfg.Transport.URL)
	assert.Equal(t, 30*time.Second, cfg.Transport.JoinTimeout)
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("CLASSHUB_HTTP_PORT", "9090")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"http": {"port": 7070, "read_timeout": "15s"},
		"snapshot": {"path": "/tmp/classhub.json"}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "/tmp/classhub.json", cfg.Snapshot.Path)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http": {"read_timeout": "soon"}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"nil database", func(c *Config) { c.Database = nil }},
		{"enabled database without path", func(c *Config) { c.Database.Path = "" }},
		{"port out of range", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"zero read timeout", func(c *Config) { c.HTTP.ReadTimeout = 0 }},
		{"zero join timeout", func(c *Config) { c.Transport.JoinTimeout = 0 }},
		{"empty snapshot path", func(c *Config) { c.Snapshot.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	// A disabled database needs no path.
	cfg := DefaultConfig()
	cfg.Database.Enabled = false
	cfg.Database.Path = ""
	assert.NoError(t, cfg.Validate())
}
