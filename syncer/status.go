package syncer

import "time"

// State is the coarse phase of the sync engine.
type State string

const (
	// StateIdle means no pass is running and the last pass had nothing to do.
	StateIdle State = "idle"
	// StateSyncing means a pass is currently running.
	StateSyncing State = "syncing"
	// StateSuccess means the last pass delivered everything it attempted.
	StateSuccess State = "success"
	// StatePartial means the last pass had both deliveries and failures, or
	// only failures. Failed entries stay queued for the next pass.
	StatePartial State = "partial"
	// StateError means the pass itself failed before processing any item.
	StateError State = "error"
)

// Status is a point-in-time snapshot published to subscribers after every
// state change.
type Status struct {
	State   State     `json:"state"`
	Success int       `json:"success"`
	Failed  int       `json:"failed"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Result aggregates the outcome of a single sync pass.
type Result struct {
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
