package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signing failed")

	// ErrConfigMissing marks configuration required for live trading that
	// is absent. It is fatal for order submission only; the status server
	// keeps serving.
	ErrConfigMissing = errors.New("required configuration missing")

	// ErrUpstreamFetch marks a transient failure talking to the catalog or
	// book endpoints. The tick that hit it is skipped, never the process.
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	// ErrEntryRejected means the entry order did not fill; no position
	// exists and the daily trade count is unchanged.
	ErrEntryRejected = errors.New("entry order rejected")

	// ErrExitSubmission means the closing order could not be submitted.
	// The position is still marked flat (fail-safe-closed).
	ErrExitSubmission = errors.New("exit order submission failed")

	// ErrInvariantViolation marks an impossible state transition, e.g.
	// opening while a position is already held. Trading halts.
	ErrInvariantViolation = errors.New("state invariant violated")
)
