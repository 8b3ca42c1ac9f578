/*
store.go - Persistence interfaces for vouchers and the validation log

PURPOSE:
  Defines the interface between the engine and the database. Two independent
  stores: a keyed voucher store with compare-and-swap updates, and an
  append-only validation log. Different implementations can use SQLite,
  PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:  Voucher records (get, issue, conditional update, list)
  Log:    Validation attempts (append, list by voucher, list recent)

COMPARE-AND-SWAP CONTRACT:
  Update() succeeds only if the stored version equals the version read at
  Get() time. A blind overwrite is never permitted; a lost race returns
  ErrVersionConflict and the engine re-reads and re-evaluates. This keeps
  the exactly-once redemption property correct across processes - no
  in-process mutex is relied upon.

APPEND-ONLY CONTRACT:
  The Log interface has NO update or delete methods. Every Validate call
  appends exactly one entry, success or failure alike. Append must never
  fail silently.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - voucher/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: The only writer of voucher state transitions
  - query.go: Read-only consumer of both stores
*/
package voucher

import (
	"context"
	"time"
)

// =============================================================================
// VOUCHER STORE - Keyed records with conditional updates
// =============================================================================

// Store persists voucher records.
//
// IMPORTANT: There is NO delete operation. Vouchers are retained for audit
// after exhaustion, expiry and cancellation. The only mutations are Issue
// (create) and Update (compare-and-swap).
type Store interface {
	// Get returns the voucher for code, or nil if no record exists.
	// A missing record is not an error; Validate maps it to NotFound.
	Get(ctx context.Context, code string) (*Voucher, error)

	// Issue creates a new voucher record. The record is created with the
	// version marker initialized; returns ErrVoucherExists on duplicate code.
	Issue(ctx context.Context, v Voucher) error

	// Update persists v only if the stored version equals expectedVersion.
	// On success the stored version is incremented. Returns
	// ErrVersionConflict if another writer won the race, and
	// ErrVoucherNotFound if the record disappeared (never expected:
	// vouchers are not deleted).
	Update(ctx context.Context, v Voucher, expectedVersion int64) error

	// List returns all vouchers, optionally filtered by state
	// (empty state = all), ordered by code.
	List(ctx context.Context, state LifecycleState) ([]Voucher, error)

	// CountByState returns the number of vouchers per lifecycle state.
	// Lazy expiry makes the Expired count a lower bound until the next
	// validation touches each overdue voucher; accepted staleness.
	CountByState(ctx context.Context) (map[LifecycleState]int, error)
}

// =============================================================================
// VALIDATION LOG - Append-only audit trail
// =============================================================================

// Log stores validation attempts. Append-only. Entries are independent of
// voucher mutation and outlive the voucher's useful life.
type Log interface {
	// Append records one attempt and returns its assigned id.
	// Ids are monotonic, unique, never reused.
	Append(ctx context.Context, entry LogEntry) (int64, error)

	// ListByVoucher returns all entries for code, ordered by AttemptedAt
	// ascending (id ascending as tiebreak).
	ListByVoucher(ctx context.Context, code string) ([]LogEntry, error)

	// ListRecent returns up to limit entries, most recent first.
	// limit <= 0 means no cap.
	ListRecent(ctx context.Context, limit int) ([]LogEntry, error)

	// CountInWindow returns (total attempts, successes) with AttemptedAt
	// in [from, to]. Used by the stats projection.
	CountInWindow(ctx context.Context, from, to time.Time) (total int, successes int, err error)
}
