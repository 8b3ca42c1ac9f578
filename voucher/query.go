/*
query.go - Read-only projections for the presentation layer

PURPOSE:
  Aggregates the two stores into the views the dashboard renders: voucher
  detail, per-voucher validation history, a recent-activity feed, and
  aggregate statistics. Pure functions of the stores - never mutates.

STALENESS NOTE:
  Expiry is evaluated lazily on validation, not by a background sweep, so
  the Expired count is a lower bound until the next attempt touches each
  overdue voucher. Accepted and documented staleness.

SEE ALSO:
  - store.go: The interfaces this service reads from
  - api/handlers.go: HTTP exposure of these projections
*/
package voucher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUERY SERVICE
// =============================================================================

// QueryService exposes read-only projections over the voucher store and
// the validation log.
type QueryService struct {
	Vouchers Store
	Log      Log
}

// NewQueryService creates a query service over the given stores.
func NewQueryService(vouchers Store, log Log) *QueryService {
	return &QueryService{Vouchers: vouchers, Log: log}
}

// GetVoucher returns the voucher for code, or nil if absent. Never mutates;
// in particular it does NOT perform lazy expiry - only Validate does.
func (q *QueryService) GetVoucher(ctx context.Context, code string) (*Voucher, error) {
	return q.Vouchers.Get(ctx, code)
}

// GetHistory returns the full validation history for code, ordered by
// attempt time ascending.
func (q *QueryService) GetHistory(ctx context.Context, code string) ([]LogEntry, error) {
	return q.Log.ListByVoucher(ctx, code)
}

// ListVouchers returns vouchers, optionally filtered by lifecycle state.
func (q *QueryService) ListVouchers(ctx context.Context, state LifecycleState) ([]Voucher, error) {
	return q.Vouchers.List(ctx, state)
}

// RecentActivity returns up to limit log entries, most recent first.
func (q *QueryService) RecentActivity(ctx context.Context, limit int) ([]LogEntry, error) {
	return q.Log.ListRecent(ctx, limit)
}

// =============================================================================
// STATS
// =============================================================================

// Stats is the dashboard aggregate: voucher counts per state, validation
// volume and success rate over a window, and total face value issued.
type Stats struct {
	Active    int
	Used      int
	Expired   int
	Cancelled int

	TotalValidations int
	SuccessCount     int
	// SuccessRate is SuccessCount/TotalValidations in [0,1];
	// zero when no attempts fall in the window.
	SuccessRate float64

	TotalValue decimal.Decimal
}

// GetStats computes aggregate statistics. Validation counters cover
// attempts with AttemptedAt in [from, to]; state counts and total value
// cover all vouchers ever issued.
func (q *QueryService) GetStats(ctx context.Context, from, to time.Time) (Stats, error) {
	counts, err := q.Vouchers.CountByState(ctx)
	if err != nil {
		return Stats{}, err
	}

	total, successes, err := q.Log.CountInWindow(ctx, from, to)
	if err != nil {
		return Stats{}, err
	}

	all, err := q.Vouchers.List(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	totalValue := decimal.Zero
	for _, v := range all {
		totalValue = totalValue.Add(v.Amount)
	}

	stats := Stats{
		Active:           counts[StateActive],
		Used:             counts[StateUsed],
		Expired:          counts[StateExpired],
		Cancelled:        counts[StateCancelled],
		TotalValidations: total,
		SuccessCount:     successes,
		TotalValue:       totalValue,
	}
	if total > 0 {
		stats.SuccessRate = float64(successes) / float64(total)
	}
	return stats, nil
}
