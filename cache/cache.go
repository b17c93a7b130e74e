// Package cache implements the bounded, expiring explanation cache with
// exact and fuzzy lookup.
package cache

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mdnaeem95/stupify-extension/errors"
)

// Tier is the requested explanation complexity level.
type Tier string

const (
	Tier1 Tier = "tier1" // simplest
	Tier2 Tier = "tier2" // balanced
	Tier3 Tier = "tier3" // technical
)

// IsValidTier returns true if the string is a valid complexity tier.
func IsValidTier(s string) bool {
	switch Tier(s) {
	case Tier1, Tier2, Tier3:
		return true
	default:
		return false
	}
}

// Entry is a cached explanation. Question is stored in normalized form
// (trimmed, lowercased); (Question, Tier) is the lookup key.
type Entry struct {
	Question string    `json:"question"`
	Tier     Tier      `json:"tier"`
	Answer   string    `json:"answer"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache is a bounded, expiring store of question→answer pairs. Eviction is
// oldest-by-insertion when over capacity (a simplification versus true LRU;
// entries are not refreshed on access). Entries older than the expiry window
// are treated as absent even before a prune pass physically removes them.
type Cache struct {
	store     *Store
	capacity  int
	expiry    time.Duration
	threshold float64
	mu        sync.Mutex
	logger    *zap.SugaredLogger
}

// Options configures a Cache.
type Options struct {
	Capacity       int           // max live entries (default: 100)
	ExpiryWindow   time.Duration // age beyond which entries are absent (default: 7 days)
	FuzzyThreshold float64       // similarity floor for fuzzy matches (default: 0.6)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		Capacity:       100,
		ExpiryWindow:   7 * 24 * time.Hour,
		FuzzyThreshold: 0.6,
	}
}

// New creates an explanation cache over the given store.
func New(store *Store, opts Options, logger *zap.SugaredLogger) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultOptions().Capacity
	}
	if opts.ExpiryWindow <= 0 {
		opts.ExpiryWindow = DefaultOptions().ExpiryWindow
	}
	if opts.FuzzyThreshold <= 0 {
		opts.FuzzyThreshold = DefaultOptions().FuzzyThreshold
	}
	return &Cache{
		store:     store,
		capacity:  opts.Capacity,
		expiry:    opts.ExpiryWindow,
		threshold: opts.FuzzyThreshold,
		logger:    logger,
	}
}

// Normalize converts a question to its lookup form.
func Normalize(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Put stores an answer for (question, tier), replacing any existing live
// entry with the same key and evicting the oldest entries beyond capacity.
// The cache is best-effort, not a source of truth: failures are logged, not
// returned.
func (c *Cache) Put(question string, tier Tier, answer string) {
	q := Normalize(question)
	if q == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Upsert(&Entry{
		Question: q,
		Tier:     tier,
		Answer:   answer,
		CachedAt: time.Now(),
	}); err != nil {
		c.logger.Warnw("Failed to cache explanation", "question", q, "tier", tier, "error", err)
		return
	}

	// Eager size-bound eviction, oldest-by-insertion first
	count, err := c.store.Count()
	if err != nil {
		c.logger.Warnw("Failed to count cache entries", "error", err)
		return
	}
	if count > c.capacity {
		evicted, err := c.store.EvictOldest(count - c.capacity)
		if err != nil {
			c.logger.Warnw("Failed to evict cache entries", "error", err)
			return
		}
		c.logger.Debugw("Evicted oldest cache entries", "evicted", evicted, "capacity", c.capacity)
	}
}

// Get returns the cached explanation for (question, tier), or nil if none
// qualifies. Tries an exact match among live entries first, then the
// highest-scoring fuzzy candidate above the similarity threshold.
func (c *Cache) Get(question string, tier Tier) (*Entry, error) {
	q := Normalize(question)
	if q == "" {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-c.expiry)

	entry, err := c.store.GetExact(q, tier, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "exact cache lookup")
	}
	if entry != nil {
		return entry, nil
	}

	candidates, err := c.store.ListLive(tier, cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "fuzzy cache lookup")
	}

	queryTokens := significantTokens(q)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	// Ties resolve to first-encountered in insertion order, so only a
	// strictly higher score replaces the current best.
	var best *Entry
	bestScore := 0.0
	for _, cand := range candidates {
		score := similarity(queryTokens, significantTokens(cand.Question))
		if score >= c.threshold && score > bestScore {
			best = cand
			bestScore = score
		}
	}

	return best, nil
}

// Clear empties the store.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Clear()
}

// Size returns the number of live (non-expired) entries.
func (c *Cache) Size() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.CountLive(time.Now().Add(-c.expiry))
}

// PruneExpired physically removes entries older than the expiry window.
// Get already filters them out; this reclaims the rows.
func (c *Cache) PruneExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.DeleteExpired(time.Now().Add(-c.expiry))
}

// significantTokens splits a normalized question on whitespace and discards
// short tokens that carry no signal ("the", "is", "a", "how").
func significantTokens(q string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(q) {
		if len(tok) > 3 {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// similarity is token overlap: |intersection| divided by the size of the
// smaller token set. The smaller-set denominator means a short query fully
// contained in a longer cached question still scores 1.0.
func similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}

	overlap := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			overlap++
		}
	}

	return float64(overlap) / float64(smaller)
}
