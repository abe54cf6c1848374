package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Server.FreeDailyViews)
	assert.Equal(t, "https://www.sec.gov", cfg.Edgar.BaseURL)
	assert.Equal(t, []string{"10-K", "10-Q", "8-K", "S-1"}, cfg.Edgar.FormTypes)
	assert.Equal(t, 2, cfg.Edgar.LookbackMinutes)
	assert.Equal(t, 60, cfg.Scheduler.IntervalSecs)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 3, cfg.Pipeline.DownloadConcurrency)
	assert.Equal(t, 2, cfg.Pipeline.AnalyzeConcurrency)
	assert.Equal(t, 100, cfg.Pipeline.MinTextChars)
	assert.Equal(t, 45000, cfg.Pipeline.MaxContentChars)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 60, cfg.Pipeline.RetryBaseSecs)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(2000), cfg.Anthropic.MaxTokens)
	assert.InDelta(t, 0.3, cfg.Anthropic.Temperature, 0.001)
	assert.Equal(t, 3, cfg.Anthropic.MaxRetries)
	assert.Equal(t, 5, cfg.Anthropic.BreakerFailures)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
  format: console
server:
  port: 9090
pipeline:
  download_concurrency: 5
edgar:
  form_types: ["8-K"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Pipeline.DownloadConcurrency)
	assert.Equal(t, []string{"8-K"}, cfg.Edgar.FormTypes)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Pipeline.AnalyzeConcurrency)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("EDGARMON_STORE_DRIVER", "postgres")
	t.Setenv("EDGARMON_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("EDGARMON_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := &Config{}
	cfg.Edgar.UserAgent = "Example Corp ops@example.com"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Store.DatabaseURL = "postgres://localhost/filings"

	assert.NoError(t, cfg.Validate())
}

func TestValidate_MissingUserAgent(t *testing.T) {
	cfg := &Config{}
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Store.DatabaseURL = "postgres://localhost/filings"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "edgar.user_agent")
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := &Config{}
	cfg.Edgar.UserAgent = "Example Corp ops@example.com"
	cfg.Store.DatabaseURL = "postgres://localhost/filings"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := &Config{}
	cfg.Edgar.UserAgent = "Example Corp ops@example.com"
	cfg.Anthropic.Key = "sk-ant-key"

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
