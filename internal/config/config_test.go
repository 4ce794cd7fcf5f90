package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/campwatch/internal/availability"
	"github.com/neexbeast/campwatch/internal/config"
	"github.com/neexbeast/campwatch/internal/reservecal"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/campwatch")
	t.Setenv("BEARER_TOKEN", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	c, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, availability.DefaultAvailabilityURL, c.AvailabilityURL)
	assert.Equal(t, 15*time.Second, c.FetchTimeout)
	assert.Equal(t, 2.0, c.UpstreamRPS)
	assert.Equal(t, config.CacheMemory, c.CacheBackend)
	assert.Equal(t, 5*time.Minute, c.CacheTTL)
	assert.Equal(t, 32, c.MaxConcurrentTicks)
	assert.Equal(t, 60*time.Second, c.TickTimeout)
	assert.True(t, c.MetricsEnabled)
	assert.False(t, c.SMTPEnabled())
	assert.Empty(t, c.CORSAllowOrigins)
	assert.Equal(t, reservecal.DefaultAvailabilityURL, c.ReserveCalAvailabilityURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9090")
	t.Setenv("FETCH_TIMEOUT", "5s")
	t.Setenv("UPSTREAM_RPS", "0.5")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("MAX_CONCURRENT_TICKS", "4")
	t.Setenv("TIMEZONE", "America/Los_Angeles")
	t.Setenv("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("METRICS_ENABLED", "false")

	c, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, 5*time.Second, c.FetchTimeout)
	assert.Equal(t, 0.5, c.UpstreamRPS)
	assert.Equal(t, config.CacheRedis, c.CacheBackend)
	assert.Equal(t, 4, c.MaxConcurrentTicks)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSAllowOrigins)
	assert.True(t, c.SMTPEnabled())
	assert.Equal(t, 587, c.SMTPPort)
	assert.False(t, c.MetricsEnabled)

	loc, err := c.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", loc.String())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"database_url: postgres://file/campwatch\n"+
			"bearer_token: from-file\n"+
			"log_level: debug\n"+
			"tick_timeout: 90s\n",
	), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("BEARER_TOKEN", "from-env")

	c, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/campwatch", c.DatabaseURL)
	assert.Equal(t, "from-env", c.BearerToken, "environment wins over the file")
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 90*time.Second, c.TickTimeout)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	setRequired(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing database url", env: map[string]string{"DATABASE_URL": ""}},
		{name: "missing bearer token", env: map[string]string{"BEARER_TOKEN": ""}},
		{name: "bad cache backend", env: map[string]string{"CACHE_BACKEND": "memcached"}},
		{name: "redis without url", env: map[string]string{"CACHE_BACKEND": "redis"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "verbose"}},
		{name: "zero tick timeout", env: map[string]string{"TICK_TIMEOUT": "0s"}},
		{name: "unknown timezone", env: map[string]string{"TIMEZONE": "Mars/Olympus_Mons"}},
		{name: "port out of range", env: map[string]string{"PORT": "70000"}},
		{name: "ticks outrun rate limit", env: map[string]string{"MAX_CONCURRENT_TICKS": "32", "UPSTREAM_RPS": "0.5", "TICK_TIMEOUT": "10s"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoad_TickSizing(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_CONCURRENT_TICKS", "10")
	t.Setenv("UPSTREAM_RPS", "1")
	t.Setenv("TICK_TIMEOUT", "10s")

	_, err := config.Load()
	require.NoError(t, err)

	t.Setenv("MAX_CONCURRENT_TICKS", "11")
	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONCURRENT_TICKS")

	t.Setenv("UPSTREAM_RPS", "0")
	_, err = config.Load()
	require.NoError(t, err)
}

func TestLoadClient_NoServerSettings(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BEARER_TOKEN", "")
	t.Setenv("UPSTREAM_RPS", "1")

	c, err := config.LoadClient()
	require.NoError(t, err)
	assert.Equal(t, 1.0, c.UpstreamRPS)
	assert.Equal(t, availability.DefaultSearchURL, c.SearchURL)
}

func TestLoadClient_Invalid(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "0s")

	_, err := config.LoadClient()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_TIMEOUT")
}
