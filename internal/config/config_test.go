package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lotchurch/congregate/core/analytics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Empty(t, cfg.Server.Domain)
	assert.False(t, cfg.Server.Dev)
	assert.True(t, cfg.Analytics.Enabled)
	assert.False(t, cfg.Analytics.StoreIP)
	assert.True(t, cfg.Analytics.CookieSecure)
	assert.Equal(t, 30*time.Minute, cfg.Analytics.SessionWindow)
	assert.Equal(t, analytics.DefaultExcludePrefixes, cfg.Analytics.ExcludePrefixes)
	assert.False(t, cfg.Analytics.GeoIP.Enabled)

	assert.True(t, cfg.Dashboard.RequireAuth)
	assert.Equal(t, time.Minute, cfg.Dashboard.CacheTTL)
	assert.Empty(t, cfg.Redis.URL)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "congregate.yaml")

	configContent := `
server:
  domain: lotchurch.example

analytics:
  store_ip: true
  ip_hash_salt: pepper
  cookie_secure: false
  session_window: 45m
  exclude_prefixes:
    - /admin/
    - /private/
  geoip:
    enabled: true
    db_path: /var/lib/geoip/GeoLite2-City.mmdb

dashboard:
  require_auth: false
  cache_ttl: 5m

redis:
  url: redis://cache:6379/1
`

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "lotchurch.example", cfg.Server.Domain)
	assert.True(t, cfg.Analytics.StoreIP)
	assert.Equal(t, "pepper", cfg.Analytics.IPHashSalt)
	assert.False(t, cfg.Analytics.CookieSecure)
	assert.Equal(t, 45*time.Minute, cfg.Analytics.SessionWindow)
	assert.Equal(t, []string{"/admin/", "/private/"}, cfg.Analytics.ExcludePrefixes)
	assert.True(t, cfg.Analytics.GeoIP.Enabled)
	assert.Equal(t, "/var/lib/geoip/GeoLite2-City.mmdb", cfg.Analytics.GeoIP.DBPath)
	assert.False(t, cfg.Dashboard.RequireAuth)
	assert.Equal(t, 5*time.Minute, cfg.Dashboard.CacheTTL)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)

	// unset keys keep their defaults
	assert.True(t, cfg.Analytics.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_ConfigPathFromEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  domain: from-env.example\n"), 0644))

	t.Setenv(EnvConfigPath, configPath)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env.example", cfg.Server.Domain)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("CONGREGATE_ANALYTICS_STORE_IP", "true")
	t.Setenv("CONGREGATE_ANALYTICS_GEOIP_DB_PATH", "/tmp/city.mmdb")
	t.Setenv("CONGREGATE_DASHBOARD_CACHE_TTL", "2m")
	t.Setenv("CONGREGATE_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Analytics.StoreIP)
	assert.Equal(t, "/tmp/city.mmdb", cfg.Analytics.GeoIP.DBPath)
	assert.Equal(t, 2*time.Minute, cfg.Dashboard.CacheTTL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/congregate.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "congregate.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("analytics:\n  store_ip: [\n"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestAnalyticsConfigTracker(t *testing.T) {
	cfg := AnalyticsConfig{
		StoreIP:      true,
		IPHashSalt:   "salt",
		CookieSecure: false,
	}

	tc := cfg.Tracker()
	assert.True(t, tc.StoreIP)
	assert.Equal(t, "salt", tc.IPHashSalt)
	assert.False(t, tc.CookieSecure)
	assert.Equal(t, analytics.DefaultSessionWindow, tc.SessionWindow)
	assert.Equal(t, analytics.DefaultExcludePrefixes, tc.ExcludePrefixes)

	cfg.SessionWindow = time.Hour
	cfg.ExcludePrefixes = []string{"/x/"}
	tc = cfg.Tracker()
	assert.Equal(t, time.Hour, tc.SessionWindow)
	assert.Equal(t, []string{"/x/"}, tc.ExcludePrefixes)
}
