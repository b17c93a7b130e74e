package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolatedConfig(t *testing.T) *Config {
	t.Helper()
	// Isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaultsProduceValidConfig(t *testing.T) {
	cfg := isolatedConfig(t)

	assert.Equal(t, 100, cfg.Cache.Capacity)
	assert.Equal(t, 50, cfg.Queue.Capacity)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, "tier2", cfg.Backend.DefaultComplexityTier)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout())
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.ExpiryWindow())
	assert.Equal(t, time.Hour, cfg.Cache.ResponseTTL())
	assert.Equal(t, 60*time.Second, cfg.Sync.Interval())
}

func TestBackoffScheduleConversion(t *testing.T) {
	cfg := isolatedConfig(t)

	schedule := cfg.Sync.BackoffSchedule()
	require.Len(t, schedule, 3)
	assert.Equal(t, time.Second, schedule[0])
	assert.Equal(t, 5*time.Second, schedule[1])
	assert.Equal(t, 15*time.Second, schedule[2])
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero cache capacity", func(c *Config) { c.Cache.Capacity = 0 }},
		{"negative expiry", func(c *Config) { c.Cache.ExpiryDays = -1 }},
		{"threshold above one", func(c *Config) { c.Cache.FuzzyThreshold = 1.5 }},
		{"zero queue capacity", func(c *Config) { c.Queue.Capacity = 0 }},
		{"negative retries", func(c *Config) { c.Queue.MaxRetries = -1 }},
		{"zero sync interval", func(c *Config) { c.Sync.IntervalSeconds = 0 }},
		{"empty backoff", func(c *Config) { c.Sync.BackoffSeconds = nil }},
		{"bad tier", func(c *Config) { c.Backend.DefaultComplexityTier = "expert" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := isolatedConfig(t)
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("STUPIFY_QUEUE_CAPACITY", "10")
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Queue.Capacity)
}
