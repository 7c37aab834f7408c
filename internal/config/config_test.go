package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "http://localhost:5173", cfg.CORSOrigin)
	assert.False(t, cfg.MockData)
	assert.Contains(t, cfg.TeamsDir, filepath.Join(".claude", "teams"))
	assert.Contains(t, cfg.TasksDir, filepath.Join(".claude", "tasks"))
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\nmockData: true\nteamsDir: /srv/teams\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.MockData)
	assert.Equal(t, "/srv/teams", cfg.TeamsDir)
	assert.Equal(t, "http://localhost:5173", cfg.CORSOrigin, "unset keys keep defaults")
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 8080\n"), 0o644))
	t.Setenv("PORT", "9000")
	t.Setenv("MOCK_DATA", "true")
	t.Setenv("CORS_ORIGIN", "http://example.test")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.MockData)
	assert.Equal(t, "http://example.test", cfg.CORSOrigin)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}
