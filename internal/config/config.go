package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lotchurch/congregate/core/analytics"

	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable that points at a config file.
const EnvConfigPath = "CONGREGATE_CONFIG"

// Config holds all configuration for the congregate server
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Domain string `mapstructure:"domain"`
	Dev    bool   `mapstructure:"dev"`
}

// AnalyticsConfig holds ingestion settings
type AnalyticsConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	StoreIP         bool          `mapstructure:"store_ip"`
	IPHashSalt      string        `mapstructure:"ip_hash_salt"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
	SessionWindow   time.Duration `mapstructure:"session_window"`
	ExcludePrefixes []string      `mapstructure:"exclude_prefixes"`
	GeoIP           GeoIPConfig   `mapstructure:"geoip"`
}

// GeoIPConfig holds the MaxMind database location
type GeoIPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// DashboardConfig holds aggregation endpoint settings
type DashboardConfig struct {
	RequireAuth bool          `mapstructure:"require_auth"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds the response cache connection. An empty URL disables it.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// MetricsConfig toggles the prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Tracker converts the analytics section into tracker configuration.
func (a AnalyticsConfig) Tracker() analytics.Config {
	cfg := analytics.DefaultConfig()
	cfg.StoreIP = a.StoreIP
	cfg.IPHashSalt = a.IPHashSalt
	cfg.CookieSecure = a.CookieSecure
	if a.SessionWindow > 0 {
		cfg.SessionWindow = a.SessionWindow
	}
	if len(a.ExcludePrefixes) > 0 {
		cfg.ExcludePrefixes = a.ExcludePrefixes
	}
	return cfg
}

// Load reads configuration from file and environment variables. With an empty
// path it falls back to $CONGREGATE_CONFIG, then to congregate.yaml in the
// working directory or /etc/congregate; a missing search-path file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.domain", "")
	v.SetDefault("server.dev", false)

	v.SetDefault("analytics.enabled", true)
	v.SetDefault("analytics.store_ip", false)
	v.SetDefault("analytics.ip_hash_salt", "")
	v.SetDefault("analytics.cookie_secure", true)
	v.SetDefault("analytics.session_window", analytics.DefaultSessionWindow.String())
	v.SetDefault("analytics.exclude_prefixes", analytics.DefaultExcludePrefixes)
	v.SetDefault("analytics.geoip.enabled", false)
	v.SetDefault("analytics.geoip.db_path", "")

	v.SetDefault("dashboard.require_auth", true)
	v.SetDefault("dashboard.cache_ttl", "60s")

	v.SetDefault("redis.url", "")

	v.SetDefault("metrics.enabled", true)

	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("congregate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/congregate")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Environment variables override file config
	v.SetEnvPrefix("CONGREGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
