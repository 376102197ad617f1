package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chtmp runs the test from an empty directory so a developer's local
// config.yaml cannot leak into the result.
func chtmp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(old) })
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Server.LoadTimeout)
	assert.Equal(t, int64(200<<20), cfg.Loader.MaxUploadBytes)
	assert.Equal(t, 4, cfg.Loader.CacheSize)
	assert.True(t, cfg.Dataset.Normalize)
	assert.Equal(t, "PcrKey", cfg.Dataset.DuplicateKey)
	assert.Contains(t, cfg.Dataset.FilterColumns, "AgeGroup")
	assert.NoError(t, cfg.validate())
}

func TestLoad_Defaults(t *testing.T) {
	chtmp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := chtmp(t)

	yaml := `
server:
  port: 9090
dataset:
  duplicate_key: EventID
  filter_columns:
    - Gender
    - Race
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "EventID", cfg.Dataset.DuplicateKey)
	assert.Equal(t, []string{"Gender", "Race"}, cfg.Dataset.FilterColumns)

	// Untouched sections keep their defaults.
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.Loader.FetchTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := chtmp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("server:\n  port: 9090\n"), 0644))

	t.Setenv("EMS_SERVER_PORT", "7070")
	t.Setenv("EMS_DATASET_PREVIEW_LIMIT", "25")
	t.Setenv("EMS_LOADER_GOOGLE_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 25, cfg.Dataset.PreviewLimit)
	assert.Equal(t, "test-key", cfg.Loader.GoogleAPIKey)
}

func TestLoad_InvalidPort(t *testing.T) {
	chtmp(t)
	t.Setenv("EMS_SERVER_PORT", "70000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := chtmp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("server: ["), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate_NormalizesLooseValues(t *testing.T) {
	cfg := Default()
	cfg.Logging.Output = "syslog"
	cfg.Loader.CacheSize = 0
	cfg.Dataset.PreviewLimit = -1

	require.NoError(t, cfg.validate())
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, 1, cfg.Loader.CacheSize)
	assert.Equal(t, 100, cfg.Dataset.PreviewLimit)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero fetch timeout", func(c *Config) { c.Loader.FetchTimeout = 0 }, "fetch timeout"},
		{"zero upload cap", func(c *Config) { c.Loader.MaxUploadBytes = 0 }, "upload bytes"},
		{"empty duplicate key", func(c *Config) { c.Dataset.DuplicateKey = "" }, "duplicate key"},
		{"negative read timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }, "timeouts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
