/*
Package voucher provides the core voucher redemption engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking a
  purchased travel voucher through its lifecycle: issuance, validation
  against business rules (validity window, consumption count, cancellation),
  and an immutable audit trail of every validation attempt.

KEY CONCEPTS IN THIS FILE (types.go):
  - Voucher: The mutable record with lifecycle state and use counters
  - LifecycleState: Active | Used | Expired | Cancelled state machine
  - Outcome: The result classification of a validation attempt
  - LogEntry: An immutable audit record of one validation attempt
  - Context: Opaque validator/location/device metadata supplied by callers

DESIGN PRINCIPLES:
  1. Outcomes are values: NotFound, AlreadyUsed etc. are returned, not errors
  2. Immutability: Log entries are never modified or deleted
  3. Precision: Uses decimal.Decimal for monetary face values
  4. Optimistic concurrency: Voucher mutation goes through compare-and-swap

USAGE:
  v := voucher.Voucher{
      Code:          "VOU2025001",
      State:         voucher.StateActive,
      ValidFrom:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
      ValidUntil:    time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
      MaxUses:       1,
      RemainingUses: 1,
  }

SEE ALSO:
  - engine.go: Validation state machine and CAS retry loop
  - store.go: Persistence interfaces
  - query.go: Read-only projections over both stores
*/
package voucher

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LIFECYCLE STATE - The voucher state machine
// =============================================================================

// LifecycleState is the single authoritative phase of a voucher.
//
// Transitions:
//
//	Active → Used      (remaining uses exhausted by the engine)
//	Active → Expired   (lazy, on first validation after the window closes)
//	Active → Cancelled (externally triggered; honored by the engine)
//
// Used, Expired and Cancelled are terminal. There is no un-cancel and no
// top-up; goodwill re-issuance is a new voucher.
type LifecycleState string

const (
	StateActive    LifecycleState = "active"
	StateUsed      LifecycleState = "used"
	StateExpired   LifecycleState = "expired"
	StateCancelled LifecycleState = "cancelled"
)

// Terminal reports whether no further state transition is permitted.
func (s LifecycleState) Terminal() bool {
	return s == StateUsed || s == StateExpired || s == StateCancelled
}

// Valid reports whether s is a known lifecycle state.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateActive, StateUsed, StateExpired, StateCancelled:
		return true
	}
	return false
}

// =============================================================================
// OUTCOME - Classification of a validation attempt
// =============================================================================

// Outcome classifies one call to Engine.Validate. Outcomes are business
// results, not errors: every outcome is logged and returned to the caller
// for display, and never retried automatically.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeAlreadyUsed   Outcome = "already_used"
	OutcomeExpired       Outcome = "expired"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeInvalidWindow Outcome = "invalid_window"
)

// Message returns the human-readable message for an outcome. Infrastructure
// and contention failures never reach this mapping; callers surface those as
// a generic "try again".
func (o Outcome) Message() string {
	switch o {
	case OutcomeSuccess:
		return "Voucher validated successfully"
	case OutcomeAlreadyUsed:
		return "Voucher has already been used"
	case OutcomeExpired:
		return "Voucher has expired"
	case OutcomeCancelled:
		return "Voucher was cancelled"
	case OutcomeNotFound:
		return "Voucher not found"
	case OutcomeInvalidWindow:
		return "Voucher is not yet valid"
	}
	return "Unknown outcome"
}

// =============================================================================
// VOUCHER - The mutable record
// =============================================================================

// Voucher is a redeemable unit of entitlement tied to a booking.
//
// INVARIANTS:
//   - 0 <= RemainingUses <= MaxUses
//   - RemainingUses == 0 implies State == StateUsed
//   - State == StateCancelled freezes RemainingUses; no further mutation
//   - Code is immutable after issuance; vouchers are never deleted
//
// Version is the optimistic-concurrency marker: every successful store
// update increments it, and updates are conditional on the version read.
type Voucher struct {
	Code          string
	State         LifecycleState
	ValidFrom     time.Time
	ValidUntil    time.Time
	MaxUses       int
	RemainingUses int

	// IssuedFor is an opaque reference to the owning booking/customer.
	// The engine never interprets it.
	IssuedFor string

	// Amount is the monetary face value, carried for display and stats.
	Amount decimal.Decimal

	// ServiceType and Destination are display metadata from issuance
	// (e.g. "Hotel" / "Rio de Janeiro"). Never interpreted by the engine.
	ServiceType string
	Destination string

	// LastValidation is a denormalized pointer to the log entry id of the
	// most recent attempt that wrote this voucher (redemption or lazy
	// expiry), for fast display. Zero means never redeemed. Rejected
	// attempts against terminal vouchers never touch it - those records
	// are frozen.
	LastValidation int64

	Version  int64
	IssuedAt time.Time
}

// Exhausted reports whether every use has been consumed.
func (v *Voucher) Exhausted() bool { return v.RemainingUses <= 0 }

// WithinWindow reports whether now falls inside [ValidFrom, ValidUntil].
// Both bounds are inclusive.
func (v *Voucher) WithinWindow(now time.Time) bool {
	return !now.Before(v.ValidFrom) && !now.After(v.ValidUntil)
}

// =============================================================================
// VALIDATION LOG ENTRY - Immutable audit record
// =============================================================================

// LogEntry records one validation attempt. Append-only: once written it is
// never mutated or deleted, and entries outlive voucher exhaustion. The log
// is the sole source of truth for "who redeemed what, when".
type LogEntry struct {
	// ID is monotonically assigned by the log store, unique, never reused.
	ID          int64
	VoucherCode string
	Outcome     Outcome
	AttemptedAt time.Time

	// Audit context, captured verbatim from the caller.
	Validator string
	Location  string
	Device    string
}

// Context is the opaque metadata a caller supplies with a validation
// attempt. All fields are optional free-form strings; authentication,
// geolocation and device fingerprinting happen upstream.
type Context struct {
	Validator string
	Location  string
	Device    string
}
