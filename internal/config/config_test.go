// internal/config/config_test.go
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Load(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "data")
	t.Setenv(HomeEnv, dataDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.HomeDir)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "codeweave.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(dataDir, "settings.yaml"), cfg.SettingsPath)

	for _, dir := range []string{cfg.DataDir, cfg.LogDir, cfg.ExportDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir())
	}
}

func TestConfig_GetExportPath(t *testing.T) {
	cfg := &Config{ExportDir: "/data/exports"}
	assert.Equal(t, filepath.Join("/data/exports", "p1", "v12"), cfg.GetExportPath("p1", 12))
}

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
	assert.Equal(t, "GROQ_API_KEY", s.Model.APIKeyEnv)
	assert.Equal(t, 250*time.Millisecond, s.SettleDelay)
}

func TestLoadSettings_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: 0.0.0.0:9000
settle_delay: 1s
log_level: debug
model:
  model: some-other-model
  max_tokens: 1024
`), 0644))
	t.Setenv(LogLevelEnv, "warn")
	t.Setenv(AuthKeyEnv, "secret")

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", s.ListenAddr)
	assert.Equal(t, time.Second, s.SettleDelay)
	assert.Equal(t, "warn", s.LogLevel, "environment wins over the file")
	assert.Equal(t, "secret", s.AuthKey)
	assert.Equal(t, "some-other-model", s.Model.Model)
	assert.Equal(t, 1024, s.Model.MaxTokens)
	assert.Equal(t, "https://api.groq.com/openai/v1", s.Model.BaseURL, "unset keys keep defaults")
}

func TestLoadSettings_Invalid(t *testing.T) {
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("log_level: [nope"), 0644))
	_, err := LoadSettings(bad)
	assert.Error(t, err)

	level := filepath.Join(dir, "level.yaml")
	require.NoError(t, os.WriteFile(level, []byte("log_level: loud"), 0644))
	_, err = LoadSettings(level)
	assert.ErrorContains(t, err, "unknown log_level")
}

func TestWriteDefaultSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, WriteDefaultSettings(path))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)

	require.NoError(t, os.WriteFile(path, []byte("log_level: error\n"), 0644))
	require.NoError(t, WriteDefaultSettings(path))
	s, err = LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "error", s.LogLevel, "existing file is left alone")
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
