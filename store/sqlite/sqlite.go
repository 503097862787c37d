/*
Package sqlite provides the SQLite-backed store for the benefit tracker.

PURPOSE:
  Persists the card catalog, users, tracked user benefits with their usage
  records, the archive of ended cycles, and the scheduled-job log.

KEY TABLES:
  cards, benefits:        Catalog (benefits belong to a card)
  users, user_cards:      Who holds which card
  user_benefits:          One row per user per open benefit cycle
  benefit_usages:         Spending recorded against a user benefit
  user_benefit_history:   Archived cycles (usages embedded as JSON)
  cron_job_logs:          Audit trail of expiration/archive runs

DATES:
  Timestamps are stored as RFC 3339 text in UTC. Period ends are calendar
  dates stored as YYYY-MM-DD so they compare lexically in SQL.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Writers that touch several tables
  (usage recording, archiving) run inside one SQL transaction.

IN-MEMORY DATABASES:
  ":memory:" is private to a connection, so the pool is pinned to a single
  connection. Code in this package therefore never issues a query while a
  *sql.Rows from the same store is still open.

USAGE:
  store, err := sqlite.New("./data/benefits.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - catalog.go:  cards and benefits
  - users.go:    users and user cards
  - tracking.go: user benefits, usages, archive, job log
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = "2006-01-02"
)

// Store implements persistence for every benefit-tracker record.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
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

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		name_en TEXT NOT NULL DEFAULT '',
		bank TEXT NOT NULL DEFAULT '',
		bank_en TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		description_en TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS benefits (
		id TEXT PRIMARY KEY,
		card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
		category TEXT NOT NULL DEFAULT '',
		category_en TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		title_en TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		description_en TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT 'TWD',
		frequency TEXT,
		end_month INTEGER,
		end_day INTEGER,
		reminder_days INTEGER NOT NULL DEFAULT 7,
		notifiable INTEGER NOT NULL DEFAULT 1,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_benefits_card ON benefits(card_id);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		telegram_id TEXT NOT NULL DEFAULT '',
		line_user_id TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'zh-TW',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS user_cards (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		card_id TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
		nickname TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(user_id, card_id)
	);

	CREATE TABLE IF NOT EXISTS user_benefits (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		user_card_id TEXT NOT NULL DEFAULT '',
		benefit_id TEXT REFERENCES benefits(id) ON DELETE SET NULL,
		is_custom INTEGER NOT NULL DEFAULT 0,
		custom_title TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL,
		cycle_number INTEGER NOT NULL DEFAULT 0,
		period_end TEXT,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		notes TEXT NOT NULL DEFAULT '',
		reminder_days INTEGER,
		notification_enabled INTEGER NOT NULL DEFAULT 1,
		used_amount TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_user_benefits_user ON user_benefits(user_id);

	-- Hot path for the daily expiration check and archive jobs
	CREATE INDEX IF NOT EXISTS idx_user_benefits_pending
		ON user_benefits(is_completed, period_end)
		WHERE period_end IS NOT NULL;

	-- One open cycle per user, benefit and cycle instance
	CREATE UNIQUE INDEX IF NOT EXISTS idx_user_benefits_cycle
		ON user_benefits(user_id, benefit_id, year, cycle_number)
		WHERE benefit_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS benefit_usages (
		id TEXT PRIMARY KEY,
		user_benefit_id TEXT NOT NULL REFERENCES user_benefits(id) ON DELETE CASCADE,
		amount TEXT NOT NULL,
		used_at TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usages_user_benefit ON benefit_usages(user_benefit_id);

	CREATE TABLE IF NOT EXISTS user_benefit_history (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		user_card_id TEXT NOT NULL DEFAULT '',
		benefit_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		cycle_number INTEGER NOT NULL DEFAULT 0,
		period_end TEXT,
		is_completed INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		notes TEXT NOT NULL DEFAULT '',
		reminder_days INTEGER,
		notification_enabled INTEGER NOT NULL DEFAULT 1,
		used_amount TEXT NOT NULL DEFAULT '0',
		usages_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		archived_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_user ON user_benefit_history(user_id, archived_at DESC);

	CREATE TABLE IF NOT EXISTS cron_job_logs (
		id TEXT PRIMARY KEY,
		job_name TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		items_processed INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		details TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_cron_job_logs_started ON cron_job_logs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for development/testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"benefit_usages", "user_benefits", "user_benefit_history",
		"user_cards", "users", "benefits", "cards", "cron_job_logs",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on error.
// Callers must hold s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func formatDate(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseDate(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func zeroAsNull(n int) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(n), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}
