// Package errors provides error handling for the Stupify offline core.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Structured details and hints
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check outcome kinds
//	if errors.IsQueued(err) {
//	    // render "saved, will send when back online"
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is     = crdb.Is
	IsAny  = crdb.IsAny
	As     = crdb.As
	Unwrap = crdb.Unwrap
)

// Outcome kinds for gateway calls. These are not generic failures: the
// caller is expected to branch on them and render distinct UI states.
// Wrap these with errors.Wrap() to add context while preserving the kind.
var (
	// ErrQueued indicates a mutating call could not reach the network and
	// was durably deferred to the request queue. Not a failure from the
	// user's perspective.
	ErrQueued = New("request queued for sync")

	// ErrNoCacheAvailable indicates an idempotent call failed and no usable
	// cached fallback exists.
	ErrNoCacheAvailable = New("offline and no cached response available")

	// ErrOfflineNoCache indicates an explanation was requested while offline
	// with no cached answer for the (question, tier) pair.
	ErrOfflineNoCache = New("offline and no cached explanation available")

	// ErrUnauthorized indicates the network rejected credentials. Token
	// invalidation has already been triggered by the time this surfaces.
	ErrUnauthorized = New("unauthorized")

	// ErrTimeout indicates a network attempt exceeded its per-request
	// timeout. Treated as a network failure for enqueue/fallback purposes.
	ErrTimeout = New("request timed out")

	// ErrRateLimited indicates the local usage limiter refused a fresh
	// explanation request.
	ErrRateLimited = New("rate limit exceeded")
)

// IsQueued checks if an error is or wraps ErrQueued.
func IsQueued(err error) bool {
	return err != nil && Is(err, ErrQueued)
}

// IsNoCacheAvailable checks if an error is or wraps ErrNoCacheAvailable.
func IsNoCacheAvailable(err error) bool {
	return err != nil && Is(err, ErrNoCacheAvailable)
}

// IsOfflineNoCache checks if an error is or wraps ErrOfflineNoCache.
func IsOfflineNoCache(err error) bool {
	return err != nil && Is(err, ErrOfflineNoCache)
}

// IsUnauthorized checks if an error is or wraps ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return err != nil && Is(err, ErrUnauthorized)
}

// IsRateLimited checks if an error is or wraps ErrRateLimited.
func IsRateLimited(err error) bool {
	return err != nil && Is(err, ErrRateLimited)
}

// WrapQueued wraps an error as a queued outcome with context.
func WrapQueued(err error, context string) error {
	return Wrap(Wrap(ErrQueued, err.Error()), context)
}
