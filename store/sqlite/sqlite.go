/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements both persistence interfaces (voucher.Store, voucher.Log) using
  SQLite. In production, the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

INTERFACES IMPLEMENTED:
  voucher.Store: Voucher records with compare-and-swap updates
  voucher.Log:   Append-only validation attempts

COMPARE-AND-SWAP ENFORCEMENT:
  Update() is a single conditional statement:

    UPDATE vouchers SET ..., version = version + 1
    WHERE code = ? AND version = ?

  Zero rows affected means another writer advanced the version first; the
  engine re-reads and re-evaluates. No blind overwrite path exists. This
  stays correct across multiple processes sharing the database because the
  version check rides on SQLite's write serialization, not on a Go mutex.

APPEND-ONLY ENFORCEMENT:
  The validation_logs table has INSERT only - no UPDATE or DELETE
  statements exist in this package. Ids come from INTEGER PRIMARY KEY
  AUTOINCREMENT, which SQLite guarantees monotonic and never reused.

KEY TABLES:
  vouchers:        One row per issued voucher; version column for CAS
  validation_logs: Immutable audit trail of every validation attempt

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/vouchers.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := voucher.NewEngine(store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - voucher/store.go: Interface definitions
  - voucher/engine.go: The CAS retry loop consuming these semantics
  - voucher/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/voucher-engine/voucher"
)

// logTimeFormat keeps every fractional digit so lexicographic order on the
// attempted_at TEXT column matches chronological order. RFC3339Nano trims
// trailing zeros, which would sort "10:00:00.5Z" before "10:00:00Z".
const logTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements voucher.Store and voucher.Log using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time interface checks.
var (
	_ voucher.Store = (*Store)(nil)
	_ voucher.Log   = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Vouchers (one row per issued voucher; never deleted)
	CREATE TABLE IF NOT EXISTS vouchers (
		code TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		valid_from TEXT NOT NULL,
		valid_until TEXT NOT NULL,
		max_uses INTEGER NOT NULL,
		remaining_uses INTEGER NOT NULL,
		issued_for TEXT,
		amount TEXT NOT NULL DEFAULT '0',
		service_type TEXT,
		destination TEXT,
		last_validation INTEGER,
		version INTEGER NOT NULL DEFAULT 1,
		issued_at TEXT NOT NULL,
		-- Invariant: 0 <= remaining_uses <= max_uses
		CHECK (remaining_uses >= 0 AND remaining_uses <= max_uses)
	);

	CREATE INDEX IF NOT EXISTS idx_vouchers_state
		ON vouchers(state);

	-- Validation logs (append-only audit trail)
	CREATE TABLE IF NOT EXISTS validation_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		voucher_code TEXT NOT NULL,
		outcome TEXT NOT NULL,
		attempted_at TEXT NOT NULL,
		validator TEXT,
		location TEXT,
		device TEXT
	);

	-- History queries (hot path for the validation tab)
	CREATE INDEX IF NOT EXISTS idx_validation_logs_voucher
		ON validation_logs(voucher_code, attempted_at);

	-- Recent-activity feed and stats windows
	CREATE INDEX IF NOT EXISTS idx_validation_logs_attempted_at
		ON validation_logs(attempted_at DESC);

	CREATE INDEX IF NOT EXISTS idx_validation_logs_outcome
		ON validation_logs(outcome);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// VOUCHER STORE (voucher.Store interface)
// =============================================================================

// Get returns the voucher for code, or nil if no record exists.
func (s *Store) Get(ctx context.Context, code string) (*voucher.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT code, state, valid_from, valid_until, max_uses, remaining_uses,
		       issued_for, amount, service_type, destination, last_validation,
		       version, issued_at
		FROM vouchers WHERE code = ?
	`, code)

	v, err := scanVoucher(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return v, nil
}

// Issue creates a new voucher record with version 1.
func (s *Store) Issue(ctx context.Context, v voucher.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issuedAt := v.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vouchers
		(code, state, valid_from, valid_until, max_uses, remaining_uses,
		 issued_for, amount, service_type, destination, last_validation,
		 version, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`,
		v.Code,
		string(v.State),
		v.ValidFrom.UTC().Format(time.RFC3339),
		v.ValidUntil.UTC().Format(time.RFC3339),
		v.MaxUses,
		v.RemainingUses,
		nullString(v.IssuedFor),
		v.Amount.String(),
		nullString(v.ServiceType),
		nullString(v.Destination),
		nullInt64(v.LastValidation),
		issuedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return voucher.ErrVoucherExists
		}
		return fmt.Errorf("failed to issue voucher: %w", err)
	}
	return nil
}

// Update persists v only if the stored version equals expectedVersion.
// The version column is advanced in the same statement, so the check and
// the write are one atomic operation.
func (s *Store) Update(ctx context.Context, v voucher.Voucher, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE vouchers SET
			state = ?,
			remaining_uses = ?,
			last_validation = ?,
			version = version + 1
		WHERE code = ? AND version = ?
	`,
		string(v.State),
		v.RemainingUses,
		nullInt64(v.LastValidation),
		v.Code,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update voucher: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update voucher: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing record.
		var count int
		if err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM vouchers WHERE code = ?", v.Code,
		).Scan(&count); err != nil {
			return fmt.Errorf("failed to update voucher: %w", err)
		}
		if count == 0 {
			return voucher.ErrVoucherNotFound
		}
		return voucher.ErrVersionConflict
	}
	return nil
}

// List returns vouchers, optionally filtered by state, ordered by code.
func (s *Store) List(ctx context.Context, state voucher.LifecycleState) ([]voucher.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT code, state, valid_from, valid_until, max_uses, remaining_uses,
		       issued_for, amount, service_type, destination, last_validation,
		       version, issued_at
		FROM vouchers
	`
	var args []any
	if state != "" {
		query += " WHERE state = ?"
		args = append(args, string(state))
	}
	query += " ORDER BY code"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []voucher.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, *v)
	}
	return vouchers, rows.Err()
}

// CountByState returns voucher counts per lifecycle state.
func (s *Store) CountByState(ctx context.Context) (map[voucher.LifecycleState]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT state, COUNT(*) FROM vouchers GROUP BY state")
	if err != nil {
		return nil, fmt.Errorf("failed to count vouchers: %w", err)
	}
	defer rows.Close()

	counts := make(map[voucher.LifecycleState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		counts[voucher.LifecycleState(state)] = count
	}
	return counts, rows.Err()
}

// =============================================================================
// VALIDATION LOG (voucher.Log interface)
// =============================================================================

// Append records one validation attempt. The returned id is SQLite's
// AUTOINCREMENT rowid: monotonic, unique, never reused.
func (s *Store) Append(ctx context.Context, entry voucher.LogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_logs
		(voucher_code, outcome, attempted_at, validator, location, device)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.VoucherCode,
		string(entry.Outcome),
		entry.AttemptedAt.UTC().Format(logTimeFormat),
		nullString(entry.Validator),
		nullString(entry.Location),
		nullString(entry.Device),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append validation log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to append validation log: %w", err)
	}
	return id, nil
}

// ListByVoucher returns all entries for code, ordered by attempt time
// ascending, id as tiebreak.
func (s *Store) ListByVoucher(ctx context.Context, code string) ([]voucher.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEntries(ctx, `
		SELECT id, voucher_code, outcome, attempted_at, validator, location, device
		FROM validation_logs
		WHERE voucher_code = ?
		ORDER BY attempted_at ASC, id ASC
	`, code)
}

// ListRecent returns up to limit entries, most recent first.
// limit <= 0 means no cap.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]voucher.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // a negative LIMIT disables the cap in SQLite
	}
	return s.queryEntries(ctx, `
		SELECT id, voucher_code, outcome, attempted_at, validator, location, device
		FROM validation_logs
		ORDER BY attempted_at DESC, id DESC
		LIMIT ?
	`, limit)
}

// CountInWindow returns (total attempts, successes) in [from, to].
func (s *Store) CountInWindow(ctx context.Context, from, to time.Time) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, successes int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		FROM validation_logs
		WHERE attempted_at >= ? AND attempted_at <= ?
	`,
		string(voucher.OutcomeSuccess),
		from.UTC().Format(logTimeFormat),
		to.UTC().Format(logTimeFormat),
	).Scan(&total, &successes)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count validations: %w", err)
	}
	return total, successes, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]voucher.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query validation logs: %w", err)
	}
	defer rows.Close()

	var entries []voucher.LogEntry
	for rows.Next() {
		var (
			e           voucher.LogEntry
			outcome     string
			attemptedAt string
			validator   sql.NullString
			location    sql.NullString
			device      sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.VoucherCode, &outcome, &attemptedAt,
			&validator, &location, &device); err != nil {
			return nil, fmt.Errorf("failed to scan validation log: %w", err)
		}
		e.Outcome = voucher.Outcome(outcome)
		e.AttemptedAt, _ = time.Parse(time.RFC3339Nano, attemptedAt)
		e.Validator = validator.String
		e.Location = location.String
		e.Device = device.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoucher(row rowScanner) (*voucher.Voucher, error) {
	var (
		v              voucher.Voucher
		state          string
		validFrom      string
		validUntil     string
		issuedFor      sql.NullString
		amount         string
		serviceType    sql.NullString
		destination    sql.NullString
		lastValidation sql.NullInt64
		issuedAt       string
	)

	err := row.Scan(&v.Code, &state, &validFrom, &validUntil, &v.MaxUses,
		&v.RemainingUses, &issuedFor, &amount, &serviceType, &destination,
		&lastValidation, &v.Version, &issuedAt)
	if err != nil {
		return nil, err
	}

	v.State = voucher.LifecycleState(state)
	v.ValidFrom, _ = time.Parse(time.RFC3339, validFrom)
	v.ValidUntil, _ = time.Parse(time.RFC3339, validUntil)
	v.IssuedFor = issuedFor.String
	v.Amount = mustParseDecimal(amount)
	v.ServiceType = serviceType.String
	v.Destination = destination.String
	v.LastValidation = lastValidation.Int64
	v.IssuedAt, _ = time.Parse(time.RFC3339, issuedAt)
	return &v, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func mustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
