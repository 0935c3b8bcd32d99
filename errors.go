package main

import "errors"

// Error taxonomy. Every failure surfaced by the ingestion pipeline or
// the similarity engine wraps one of these sentinels so callers can
// branch with errors.Is.
var (
	// ErrInvalidInput marks a malformed identifier or name. Rejects the
	// single item it belongs to, never a whole batch.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstream marks a Spotify API failure. Aborts the current import
	// call but not the orchestrator.
	ErrUpstream = errors.New("upstream provider error")

	// ErrStorage marks a persistence failure, surfaced to the caller of
	// the current operation.
	ErrStorage = errors.New("storage error")

	// ErrComputation marks an unreadable storage state during similarity
	// computation. Partial rankings are never returned in its place.
	ErrComputation = errors.New("similarity computation error")
)
