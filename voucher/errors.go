/*
errors.go - Centralized error types for the redemption engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Business outcomes (NotFound, AlreadyUsed, ...) are NOT errors - they are
  Outcome values returned by Validate. Errors here are infrastructure and
  concurrency failures only.

ERROR CATEGORIES:
  1. Concurrency - CAS conflicts and exhausted retries
  2. Store errors - Persistence-level failures
  3. Log errors - Audit append failures, surfaced distinctly

USAGE:
  if errors.Is(err, voucher.ErrContention) {
      // tell the caller to try again; never map to a business outcome
  }

SEE ALSO:
  - engine.go: Produces ErrContention after bounded CAS retries
  - store.go: Store contracts referencing these errors
*/
package voucher

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrVersionConflict is returned by a store when a conditional update
	// loses the race: the voucher changed since it was read. The engine
	// retries by re-reading and re-evaluating all guards.
	ErrVersionConflict = errors.New("voucher version conflict")

	// ErrContention is returned by the engine after exhausting its bounded
	// CAS retries. Reported to callers as "try again", never as an outcome.
	ErrContention = errors.New("voucher contention: retries exhausted")

	// ErrVoucherExists is returned when issuing a voucher whose code is
	// already taken. Codes are unique and immutable.
	ErrVoucherExists = errors.New("voucher code already exists")

	// ErrVoucherNotFound is returned by store mutations (not Validate)
	// that target a code with no record, e.g. external cancellation.
	ErrVoucherNotFound = errors.New("voucher not found")

	// ErrTerminalState is returned when a mutation targets a voucher in a
	// terminal state, e.g. cancelling an already-used voucher.
	ErrTerminalState = errors.New("voucher is in a terminal state")

	// ErrLogAppend wraps a failure to record a validation attempt. A lost
	// log entry after a successful voucher mutation is a correctness
	// violation, so it is surfaced distinctly from mutation failures.
	ErrLogAppend = errors.New("validation log append failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LogAppendError reports a failed audit append together with whether the
// voucher mutation had already been committed. Committed==true means the
// redemption happened but the trail is missing an entry - a reconciliation
// gap, never silently dropped.
type LogAppendError struct {
	VoucherCode string
	Outcome     Outcome
	Committed   bool
	Err         error
}

func (e *LogAppendError) Error() string {
	return fmt.Sprintf("failed to log %s attempt for %s (mutation committed: %v): %v",
		e.Outcome, e.VoucherCode, e.Committed, e.Err)
}

func (e *LogAppendError) Unwrap() error { return ErrLogAppend }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the whole Validate call may be retried by the
// caller. Business outcomes are never retryable; they are not errors.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}

// IsConflict returns true for a single lost CAS race (retried internally).
func IsConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
