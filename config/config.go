// Package config loads and watches the Stupify offline core configuration.
package config

import "time"

// Config represents the offline core configuration.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Server       ServerConfig       `mapstructure:"server"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// BackendConfig configures the explanation backend API.
type BackendConfig struct {
	BaseURL               string  `mapstructure:"base_url"`
	TimeoutSeconds        int     `mapstructure:"timeout_seconds"`         // per-request timeout (default: 30)
	RetryAttempts         int     `mapstructure:"retry_attempts"`          // local retries before reclassification (default: 2)
	RequestsPerMinute     int     `mapstructure:"requests_per_minute"`     // usage rate limit for fresh explanations (default: 10)
	DefaultComplexityTier string  `mapstructure:"default_complexity_tier"` // tier1 | tier2 | tier3
	Temperature           float64 `mapstructure:"temperature"`
}

// CacheConfig configures the explanation cache.
type CacheConfig struct {
	Capacity        int     `mapstructure:"capacity"`         // max live entries (default: 100)
	ExpiryDays      int     `mapstructure:"expiry_days"`      // entries older than this are absent (default: 7)
	FuzzyThreshold  float64 `mapstructure:"fuzzy_threshold"`  // token-overlap similarity floor (default: 0.6)
	ResponseTTLMins int     `mapstructure:"response_ttl_min"` // generic response cache TTL (default: 60)
}

// QueueConfig configures the durable request queue.
type QueueConfig struct {
	Capacity   int `mapstructure:"capacity"`    // max queued requests, drop-oldest beyond (default: 50)
	MaxRetries int `mapstructure:"max_retries"` // delivery attempts before permanent failure (default: 3)
}

// SyncConfig configures the background sync engine.
type SyncConfig struct {
	IntervalSeconds int   `mapstructure:"interval_seconds"` // periodic pass while online (default: 60)
	BackoffSeconds  []int `mapstructure:"backoff_seconds"`  // per-item delay indexed by retry count (default: 1,5,15)
}

// ConnectivityConfig configures the connectivity monitor.
type ConnectivityConfig struct {
	ProbeURL             string `mapstructure:"probe_url"`              // health endpoint for the active probe
	ProbeIntervalSeconds int    `mapstructure:"probe_interval_seconds"` // default: 30
	ProbeTimeoutSeconds  int    `mapstructure:"probe_timeout_seconds"`  // default: 5
}

// ServerConfig configures the local UI-facing server.
type ServerConfig struct {
	Port           int      `mapstructure:"port"` // default: 8764
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Timeout returns the per-request backend timeout as a duration.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// ExpiryWindow returns the cache expiry window as a duration.
func (c CacheConfig) ExpiryWindow() time.Duration {
	return time.Duration(c.ExpiryDays) * 24 * time.Hour
}

// ResponseTTL returns the response cache TTL as a duration.
func (c CacheConfig) ResponseTTL() time.Duration {
	return time.Duration(c.ResponseTTLMins) * time.Minute
}

// Interval returns the periodic sync interval as a duration.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// BackoffSchedule returns the per-item backoff schedule as durations.
// Retry counts beyond the schedule are capped at the last value.
func (s SyncConfig) BackoffSchedule() []time.Duration {
	out := make([]time.Duration, 0, len(s.BackoffSeconds))
	for _, sec := range s.BackoffSeconds {
		out = append(out, time.Duration(sec)*time.Second)
	}
	return out
}

// ProbeInterval returns the probe interval as a duration.
func (c ConnectivityConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// ProbeTimeout returns the probe timeout as a duration.
func (c ConnectivityConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}
