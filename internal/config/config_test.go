package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 2, cfg.Dimensions)
	assert.Equal(t, 300, cfg.MDSMaxIter)
	assert.Equal(t, 1e-6, cfg.MDSEps)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, Validate(cfg))
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("VOICEMAP_LISTEN", ":9090")
	t.Setenv("VOICEMAP_RATINGS", "/srv/mds_data.csv")
	t.Setenv("VOICEMAP_DIMENSIONS", "3")
	t.Setenv("VOICEMAP_MDS_EPS", "0.001")
	t.Setenv("VOICEMAP_WATCH", "true")
	t.Setenv("VOICEMAP_METRICS_ENABLED", "no")
	t.Setenv("VOICEMAP_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg := FromEnv(Defaults())
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/srv/mds_data.csv", cfg.RatingsPath)
	assert.Equal(t, 3, cfg.Dimensions)
	assert.Equal(t, 0.001, cfg.MDSEps)
	assert.True(t, cfg.WatchRatings)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestFromEnvInvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("VOICEMAP_DIMENSIONS", "two")
	t.Setenv("VOICEMAP_MDS_EPS", "tiny")
	t.Setenv("VOICEMAP_WATCH", "maybe")

	cfg := FromEnv(Defaults())
	assert.Equal(t, 2, cfg.Dimensions)
	assert.Equal(t, 1e-6, cfg.MDSEps)
	assert.False(t, cfg.WatchRatings)
}

func TestParseHelpers(t *testing.T) {
	t.Setenv("VM_TEST_STR", "hello")
	t.Setenv("VM_TEST_INT", "42")
	t.Setenv("VM_TEST_FLOAT", "2.5")
	t.Setenv("VM_TEST_DUR", "90s")
	t.Setenv("VM_TEST_BOOL", "yes")
	t.Setenv("VM_TEST_EMPTY", "")

	assert.Equal(t, "hello", ParseString("VM_TEST_STR", "d"))
	assert.Equal(t, "d", ParseString("VM_TEST_EMPTY", "d"))
	assert.Equal(t, "d", ParseString("VM_TEST_UNSET", "d"))
	assert.Equal(t, 42, ParseInt("VM_TEST_INT", 7))
	assert.Equal(t, 7, ParseInt("VM_TEST_UNSET", 7))
	assert.Equal(t, 2.5, ParseFloat("VM_TEST_FLOAT", 1.0))
	assert.Equal(t, 90*time.Second, ParseDuration("VM_TEST_DUR", time.Minute))
	assert.True(t, ParseBool("VM_TEST_BOOL", false))
}

func TestLoaderPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listenAddr: ":7070"
dataDir: `+dir+`
dimensions: 3
metricsEnabled: false
`), 0o600))

	// Environment beats the file.
	t.Setenv("VOICEMAP_DIMENSIONS", "2")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ListenAddr)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 2, cfg.Dimensions)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "test", cfg.Version)
}

func TestLoaderFileAbsentKeysKeepDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ratingsPath: /srv/r.csv\n"), 0o600))

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/r.csv", cfg.RatingsPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.True(t, cfg.RateLimitEnabled)
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml"), "test").Load()
	assert.Error(t, err)
}

func TestLoaderBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddr: [unclosed"), 0o600))

	_, err := NewLoader(path, "test").Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(c *AppConfig) {}, ""},
		{"bad listen addr", func(c *AppConfig) { c.ListenAddr = "no-port" }, "listen address"},
		{"bad metrics addr", func(c *AppConfig) { c.MetricsAddr = "bad addr/" }, "metrics address"},
		{"dimensions too high", func(c *AppConfig) { c.Dimensions = 4 }, "dimensions"},
		{"dimensions zero", func(c *AppConfig) { c.Dimensions = 0 }, "dimensions"},
		{"non-positive iterations", func(c *AppConfig) { c.MDSMaxIter = 0 }, "iterations"},
		{"non-positive eps", func(c *AppConfig) { c.MDSEps = 0 }, "eps"},
		{"negative retention", func(c *AppConfig) { c.RunRetention = -1 }, "retention"},
		{"zero rpm with rate limit", func(c *AppConfig) { c.RateLimitRPM = 0 }, "rate limit"},
		{"empty data dir", func(c *AppConfig) { c.DataDir = "  " }, "data dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
