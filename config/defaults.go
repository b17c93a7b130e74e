package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "stupify.db")

	// Backend defaults
	v.SetDefault("backend.base_url", "https://api.stupify.app")
	v.SetDefault("backend.timeout_seconds", 30)
	v.SetDefault("backend.retry_attempts", 2)
	v.SetDefault("backend.requests_per_minute", 10)
	v.SetDefault("backend.default_complexity_tier", "tier2")
	v.SetDefault("backend.temperature", 0.3)

	// Explanation cache defaults
	v.SetDefault("cache.capacity", 100)
	v.SetDefault("cache.expiry_days", 7)
	v.SetDefault("cache.fuzzy_threshold", 0.6)
	v.SetDefault("cache.response_ttl_min", 60)

	// Request queue defaults
	v.SetDefault("queue.capacity", 50)
	v.SetDefault("queue.max_retries", 3)

	// Background sync defaults
	v.SetDefault("sync.interval_seconds", 60)
	v.SetDefault("sync.backoff_seconds", []int{1, 5, 15})

	// Connectivity monitor defaults
	v.SetDefault("connectivity.probe_url", "https://api.stupify.app/health")
	v.SetDefault("connectivity.probe_interval_seconds", 30)
	v.SetDefault("connectivity.probe_timeout_seconds", 5)

	// Local server defaults
	v.SetDefault("server.port", 8764)
	v.SetDefault("server.allowed_origins", []string{})
}

// BindSensitiveEnvVars binds credentials to environment variables so they
// never need to live in config files.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("backend.api_token", "STUPIFY_API_TOKEN")
}
