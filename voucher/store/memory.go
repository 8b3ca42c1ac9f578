// Package store provides in-memory implementations of the voucher
// persistence interfaces, for testing and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/voucher-engine/voucher"
)

// =============================================================================
// MEMORY VOUCHER STORE - Compare-and-swap on an in-process map
// =============================================================================

// Memory implements voucher.Store. The mutex guards the map; the CAS
// contract is still enforced through the version marker so the engine's
// retry path is exercised exactly as with a real database.
type Memory struct {
	mu       sync.RWMutex
	vouchers map[string]voucher.Voucher
}

func NewMemory() *Memory {
	return &Memory{vouchers: make(map[string]voucher.Voucher)}
}

func (m *Memory) Get(_ context.Context, code string) (*voucher.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.vouchers[code]
	if !ok {
		return nil, nil
	}
	copied := v
	return &copied, nil
}

func (m *Memory) Issue(_ context.Context, v voucher.Voucher) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.vouchers[v.Code]; exists {
		return voucher.ErrVoucherExists
	}
	v.Version = 1
	m.vouchers[v.Code] = v
	return nil
}

func (m *Memory) Update(_ context.Context, v voucher.Voucher, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.vouchers[v.Code]
	if !ok {
		return voucher.ErrVoucherNotFound
	}
	if current.Version != expectedVersion {
		return voucher.ErrVersionConflict
	}
	v.Version = expectedVersion + 1
	m.vouchers[v.Code] = v
	return nil
}

func (m *Memory) List(_ context.Context, state voucher.LifecycleState) ([]voucher.Voucher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []voucher.Voucher
	for _, v := range m.vouchers {
		if state == "" || v.State == state {
			result = append(result, v)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result, nil
}

func (m *Memory) CountByState(_ context.Context) (map[voucher.LifecycleState]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[voucher.LifecycleState]int)
	for _, v := range m.vouchers {
		counts[v.State]++
	}
	return counts, nil
}

// =============================================================================
// MEMORY VALIDATION LOG - Append-only slice with monotonic ids
// =============================================================================

// MemoryLog implements voucher.Log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries []voucher.LogEntry
	nextID  int64
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1}
}

func (l *MemoryLog) Append(_ context.Context, entry voucher.LogEntry) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.ID = l.nextID
	l.nextID++
	l.entries = append(l.entries, entry)
	return entry.ID, nil
}

func (l *MemoryLog) ListByVoucher(_ context.Context, code string) ([]voucher.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []voucher.LogEntry
	for _, e := range l.entries {
		if e.VoucherCode == code {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].AttemptedAt.Equal(result[j].AttemptedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].AttemptedAt.Before(result[j].AttemptedAt)
	})
	return result, nil
}

func (l *MemoryLog) ListRecent(_ context.Context, limit int) ([]voucher.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]voucher.LogEntry, len(l.entries))
	copy(result, l.entries)
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].AttemptedAt.Equal(result[j].AttemptedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].AttemptedAt.After(result[j].AttemptedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (l *MemoryLog) CountInWindow(_ context.Context, from, to time.Time) (int, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total, successes := 0, 0
	for _, e := range l.entries {
		if e.AttemptedAt.Before(from) || e.AttemptedAt.After(to) {
			continue
		}
		total++
		if e.Outcome == voucher.OutcomeSuccess {
			successes++
		}
	}
	return total, successes, nil
}
