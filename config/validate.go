package config

import (
	"github.com/mdnaeem95/stupify-extension/errors"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior deep inside the offline stores.
func Validate(c *Config) error {
	if c.Cache.Capacity <= 0 {
		return errors.Newf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.ExpiryDays <= 0 {
		return errors.Newf("cache.expiry_days must be positive, got %d", c.Cache.ExpiryDays)
	}
	if c.Cache.FuzzyThreshold < 0 || c.Cache.FuzzyThreshold > 1 {
		return errors.Newf("cache.fuzzy_threshold must be in [0,1], got %g", c.Cache.FuzzyThreshold)
	}
	if c.Queue.Capacity <= 0 {
		return errors.Newf("queue.capacity must be positive, got %d", c.Queue.Capacity)
	}
	if c.Queue.MaxRetries < 0 {
		return errors.Newf("queue.max_retries must not be negative, got %d", c.Queue.MaxRetries)
	}
	if c.Sync.IntervalSeconds <= 0 {
		return errors.Newf("sync.interval_seconds must be positive, got %d", c.Sync.IntervalSeconds)
	}
	if len(c.Sync.BackoffSeconds) == 0 {
		return errors.New("sync.backoff_seconds must not be empty")
	}
	switch c.Backend.DefaultComplexityTier {
	case "tier1", "tier2", "tier3":
	default:
		return errors.Newf("backend.default_complexity_tier must be tier1|tier2|tier3, got %q",
			c.Backend.DefaultComplexityTier)
	}
	return nil
}
