package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "websocket", cfg.Transport.Type)
	assert.True(t, cfg.Reconnect.Enabled)
	assert.Equal(t, 5, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 1000, cfg.Reconnect.BackoffMs)
	assert.True(t, cfg.Reconnect.Exponential)
	assert.Equal(t, 30000, cfg.RequestTimeout())
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Transport.Endpoint = "wss://example.com/mcp"
	cfg.Transport.Authentication = "token"
	cfg.Reconnect.MaxAttempts = 9
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/mcp", loaded.Transport.Endpoint)
	assert.Equal(t, "token", loaded.Transport.Authentication)
	assert.Equal(t, 9, loaded.Reconnect.MaxAttempts)
}

func TestLoadLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw := `{"transport": {"type": "http", "endpoint": "http://localhost:8080"}}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http", cfg.Transport.Type)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, 30000, cfg.RequestTimeout())
	assert.True(t, cfg.Reconnect.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
