package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setCredentials puts valid credentials in the environment so Validate
// passes; individual tests layer their own variables on top.
func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("REDDIT_USERNAME", "totes")
	t.Setenv("REDDIT_PASSWORD", "hunter2")
	t.Setenv("REDDIT_CLIENT_ID", "client-id")
	t.Setenv("REDDIT_CLIENT_SECRET", "client-secret")
}

func TestLoadDefaults(t *testing.T) {
	setCredentials(t)

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "totes.sqlite3", cfg.Database)
	assert.Equal(t, 25, cfg.Limit)
	assert.Equal(t, 30, cfg.Wait)
	assert.Equal(t, 120, cfg.MinPostAge)
	assert.Equal(t, 40, cfg.LinksBeforeTitleCutoff)
	assert.Equal(t, 137, cfg.TitleLimit)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.Test)
	assert.False(t, cfg.Debug)
}

func TestLoadEnvAliases(t *testing.T) {
	setCredentials(t)
	t.Setenv("DATABASE", "/tmp/other.sqlite3")
	t.Setenv("WAIT", "60")
	t.Setenv("TEST", "true")
	t.Setenv("SNITCH_URL", "https://example.com/beacon")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "totes", cfg.Reddit.Username)
	assert.Equal(t, "hunter2", cfg.Reddit.Password)
	assert.Equal(t, "/tmp/other.sqlite3", cfg.Database)
	assert.Equal(t, 60, cfg.Wait)
	assert.True(t, cfg.Test)
	assert.Equal(t, "https://example.com/beacon", cfg.SnitchURL)
}

func TestLoadPrefixedEnv(t *testing.T) {
	setCredentials(t)
	t.Setenv("TOTES_TITLE_LIMIT", "99")
	t.Setenv("TOTES_LOG_FORMAT", "json")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 99, cfg.TitleLimit)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigFile(t *testing.T) {
	setCredentials(t)

	path := filepath.Join(t.TempDir(), "totes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"database: /data/totes.sqlite3\nlimit: 50\nseed:\n  watched_links:\n    - ra_automod\n"), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/data/totes.sqlite3", cfg.Database)
	assert.Equal(t, 50, cfg.Limit)
	assert.Equal(t, []string{"ra_automod"}, cfg.Seed.WatchedLinks)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	setCredentials(t)
	t.Setenv("LIMIT", "5")

	path := filepath.Join(t.TempDir(), "totes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limit: 50\n"), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Limit)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	setCredentials(t)
	t.Setenv("WAIT", "60")

	flags := SetupFlags()
	require.NoError(t, flags.Parse([]string{"--wait", "90", "--debug"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 90, cfg.Wait)
	assert.True(t, cfg.Debug)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("REDDIT_USERNAME", "totes")
	t.Setenv("REDDIT_PASSWORD", "")
	t.Setenv("REDDIT_CLIENT_ID", "")
	t.Setenv("REDDIT_CLIENT_SECRET", "")

	_, err := Load("", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}
