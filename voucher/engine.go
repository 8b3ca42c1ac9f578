/*
engine.go - The redemption engine: state machine + CAS retry loop

PURPOSE:
  Given a scanned code and a requesting context, decide validity, atomically
  mutate voucher state if allowed, and append exactly one audit log entry.
  This is the single writer of voucher state transitions.

ALGORITHM (per Validate call, serializable per code):
  1. Get voucher. Absent -> NotFound.
  2. Cancelled -> Cancelled (sticky, no mutation).
  3. Used (exhausted) -> AlreadyUsed.
  4. now < ValidFrom -> InvalidWindow (not yet redeemable, no mutation).
  5. now > ValidUntil -> Expired; if still Active, transition to Expired
     as a side effect (lazy expiry - there is no background sweep).
  6. Otherwise decrement RemainingUses; at zero, transition to Used.
  7. Persist via compare-and-swap on the version read at step 1. On a lost
     race, re-read and re-evaluate ALL guards (the winner may have
     exhausted the voucher) - bounded retries, then ErrContention.
  8. Whatever the outcome, append one log entry before returning.

EXACTLY-ONCE PROPERTY:
  For maxUses=1, concurrent Validate calls against the same code yield
  exactly one Success system-wide; every loser observes the winner's write
  through the CAS conflict, re-reads, and lands on AlreadyUsed. Correct
  across processes because the lock is the store's version column, not an
  in-process mutex.

FAILURE SEMANTICS:
  Store unavailability is fatal to the call (no internal retry; the caller
  may retry the whole Validate). CAS conflicts are retried up to
  DefaultMaxRetries before surfacing ErrContention. A log append failure
  after a committed mutation is surfaced as *LogAppendError with
  Committed=true - a reconciliation gap, never silently dropped.

SEE ALSO:
  - store.go: Store and Log contracts
  - errors.go: ErrVersionConflict, ErrContention, LogAppendError
*/
package voucher

import (
	"context"
	"errors"
	"time"
)

// DefaultMaxRetries bounds the internal CAS retry loop. Three attempts is
// enough for realistic scan contention; beyond that the caller should back
// off and try again.
const DefaultMaxRetries = 3

// =============================================================================
// ENGINE
// =============================================================================

// Engine owns the voucher lifecycle once issued. It never creates vouchers
// (issuance is an external event) and never deletes them.
type Engine struct {
	Vouchers Store
	Log      Log

	// Clock is injected for testability. Nil means time.Now in UTC.
	Clock func() time.Time

	// MaxRetries bounds CAS retries. Zero means DefaultMaxRetries.
	MaxRetries int
}

// NewEngine creates an engine over the given stores.
func NewEngine(vouchers Store, log Log) *Engine {
	return &Engine{Vouchers: vouchers, Log: log}
}

// Result is the answer to one Validate call.
type Result struct {
	Outcome Outcome

	// Voucher is a snapshot after any mutation. Nil for NotFound.
	Voucher *Voucher

	// LogEntryID identifies the audit entry recorded for this attempt.
	LogEntryID int64
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

func (e *Engine) maxRetries() int {
	if e.MaxRetries > 0 {
		return e.MaxRetries
	}
	return DefaultMaxRetries
}

// =============================================================================
// VALIDATE
// =============================================================================

// Validate runs the redemption state machine for code and records the
// attempt. Business outcomes are returned in Result, never as errors; an
// error return means the attempt could not be decided (store failure or
// contention) and no log entry was written.
func (e *Engine) Validate(ctx context.Context, code string, vctx Context) (Result, error) {
	now := e.now()

	for attempt := 0; attempt < e.maxRetries(); attempt++ {
		v, err := e.Vouchers.Get(ctx, code)
		if err != nil {
			return Result{}, err
		}

		outcome, snapshot, mutated, err := e.evaluate(ctx, v, now)
		if err != nil {
			if IsConflict(err) {
				continue // lost the race: re-read and re-evaluate
			}
			return Result{}, err
		}

		return e.record(ctx, code, outcome, snapshot, mutated, now, vctx)
	}

	return Result{}, ErrContention
}

// evaluate applies the guard chain and, where required, the conditional
// write. The mutated flag reports whether this attempt committed a voucher
// write. Returns ErrVersionConflict when the CAS loses.
func (e *Engine) evaluate(ctx context.Context, v *Voucher, now time.Time) (Outcome, *Voucher, bool, error) {
	if v == nil {
		return OutcomeNotFound, nil, false, nil
	}

	switch v.State {
	case StateCancelled:
		return OutcomeCancelled, v, false, nil
	case StateUsed:
		return OutcomeAlreadyUsed, v, false, nil
	case StateExpired:
		return OutcomeExpired, v, false, nil
	}

	if now.Before(v.ValidFrom) {
		return OutcomeInvalidWindow, v, false, nil
	}

	if now.After(v.ValidUntil) {
		// Lazy expiry: the first attempt after the window closes performs
		// the Active -> Expired transition.
		expired := *v
		expired.State = StateExpired
		if err := e.Vouchers.Update(ctx, expired, v.Version); err != nil {
			return "", nil, false, err
		}
		expired.Version = v.Version + 1
		return OutcomeExpired, &expired, true, nil
	}

	// Valid window, uses remaining: consume one.
	redeemed := *v
	redeemed.RemainingUses--
	if redeemed.RemainingUses == 0 {
		redeemed.State = StateUsed
	}
	if err := e.Vouchers.Update(ctx, redeemed, v.Version); err != nil {
		return "", nil, false, err
	}
	redeemed.Version = v.Version + 1
	return OutcomeSuccess, &redeemed, true, nil
}

// record appends the mandatory audit entry and, when this attempt wrote the
// voucher, best-effort refreshes the last-validation pointer. Terminal
// vouchers rejected by the guard chain are frozen and never touched here.
func (e *Engine) record(ctx context.Context, code string, outcome Outcome, snapshot *Voucher, mutated bool, now time.Time, vctx Context) (Result, error) {
	id, err := e.Log.Append(ctx, LogEntry{
		VoucherCode: code,
		Outcome:     outcome,
		AttemptedAt: now,
		Validator:   vctx.Validator,
		Location:    vctx.Location,
		Device:      vctx.Device,
	})
	if err != nil {
		return Result{}, &LogAppendError{
			VoucherCode: code,
			Outcome:     outcome,
			Committed:   mutated,
			Err:         err,
		}
	}

	if mutated && snapshot != nil {
		// LastValidation is a display hint; a lost race here means a newer
		// attempt already owns the pointer, so the conflict is ignored.
		touched := *snapshot
		touched.LastValidation = id
		if err := e.Vouchers.Update(ctx, touched, snapshot.Version); err == nil {
			touched.Version = snapshot.Version + 1
			snapshot = &touched
		}
	}

	return Result{Outcome: outcome, Voucher: snapshot, LogEntryID: id}, nil
}

// =============================================================================
// CANCEL - External cancellation, honored by the engine
// =============================================================================

// Cancel transitions an Active voucher to Cancelled on behalf of an
// external trigger (goodwill refund, fraud hold). Cancellation is sticky:
// once applied, Validate never returns Success for this code again.
// Cancelling a voucher already in a terminal state returns ErrTerminalState.
// Cancel does not consume a use and does not write a log entry - only
// validation attempts are audited.
func (e *Engine) Cancel(ctx context.Context, code string) (*Voucher, error) {
	for attempt := 0; attempt < e.maxRetries(); attempt++ {
		v, err := e.Vouchers.Get(ctx, code)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, ErrVoucherNotFound
		}
		if v.State.Terminal() {
			return nil, ErrTerminalState
		}

		cancelled := *v
		cancelled.State = StateCancelled
		err = e.Vouchers.Update(ctx, cancelled, v.Version)
		if err == nil {
			cancelled.Version = v.Version + 1
			return &cancelled, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, ErrContention
}
