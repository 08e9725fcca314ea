package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore persists state in a SQLite database, for tools that already
// carry one as their ledger.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dsn and prepares
// the schema. Use ":memory:" for an in-memory database.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limit_state (
			id               INTEGER PRIMARY KEY CHECK (id = 1),
			daily_limit      INTEGER NOT NULL,
			daily_remaining  INTEGER NOT NULL,
			hourly_limit     INTEGER NOT NULL,
			hourly_remaining INTEGER NOT NULL,
			daily_reset      INTEGER NOT NULL,
			hourly_reset     INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save upserts the single state row.
func (s *SQLiteStore) Save(ctx context.Context, st State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_state
			(id, daily_limit, daily_remaining, hourly_limit, hourly_remaining, daily_reset, hourly_reset)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			daily_limit      = excluded.daily_limit,
			daily_remaining  = excluded.daily_remaining,
			hourly_limit     = excluded.hourly_limit,
			hourly_remaining = excluded.hourly_remaining,
			daily_reset      = excluded.daily_reset,
			hourly_reset     = excluded.hourly_reset
	`, st.DailyLimit, st.DailyRemaining, st.HourlyLimit, st.HourlyRemaining, st.DailyReset, st.HourlyReset)
	if err != nil {
		return fmt.Errorf("store: save state: %w", err)
	}
	return nil
}

// Load reads the state row. No row reports found=false.
func (s *SQLiteStore) Load(ctx context.Context) (State, bool, error) {
	var st State
	err := s.db.QueryRowContext(ctx, `
		SELECT daily_limit, daily_remaining, hourly_limit, hourly_remaining, daily_reset, hourly_reset
		FROM rate_limit_state WHERE id = 1
	`).Scan(&st.DailyLimit, &st.DailyRemaining, &st.HourlyLimit, &st.HourlyRemaining, &st.DailyReset, &st.HourlyReset)

	if err == sql.ErrNoRows {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("store: load state: %w", err)
	}
	return st, true, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
