package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "https://api.chess.com/pub", cfg.Upstream.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	assert.Equal(t, 1, cfg.Upstream.RetryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StaleTime)
	assert.Equal(t, ItemBounds{MinItems: 3, MaxItems: 42}, cfg.Layout.Desktop)
	assert.Equal(t, ItemBounds{MinItems: 2, MaxItems: 28}, cfg.Layout.Tablet)
	assert.Equal(t, ItemBounds{MinItems: 1, MaxItems: 20}, cfg.Layout.Mobile)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("GM_SITE_URL", "https://example.test")
	path := writeConfig(t, "site:\n  url: ${GM_SITE_URL}\nlayout:\n  mobile:\n    min_items: 4\n    max_items: 2\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test", cfg.Site.URL)
	// max never drops below min
	assert.Equal(t, ItemBounds{MinItems: 4, MaxItems: 4}, cfg.Layout.Mobile)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.Sync.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres://:@localhost:5432/?sslmode=disable", cfg.Postgres.ConnectionString())
}
