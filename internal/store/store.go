// Package store provides SQLite-backed persistence for the Stacks catalog.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed persistence for the Stacks server.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.RWMutex
	bulkMode bool
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting row-level
// operations run either standalone or inside a batch transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new SQLite store at the given path.
// It configures WAL mode, sets pragmas, and runs schema migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite allows one writer; keep the pool small.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetBulkMode enables or disables bulk mode. Bulk mode suppresses
// per-write logging during large imports.
func (s *Store) SetBulkMode(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bulkMode = enabled
}

// IsBulkMode returns whether the store is in bulk mode.
func (s *Store) IsBulkMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bulkMode
}

// Tx wraps a database transaction and carries the row-level write
// operations used by the import pipeline.
type Tx struct {
	tx *sql.Tx
	s  *Store
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, s: s}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction. Safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// BulkSession pins one pooled connection for the duration of a bulk
// run. PRAGMA foreign_keys is per-connection state, so the suspension,
// the run's transactions and the restore must all land on the same
// connection; the rest of the pool keeps enforcing.
type BulkSession struct {
	conn *sql.Conn
	s    *Store
}

// SuspendForeignKeys acquires a dedicated connection with foreign key
// enforcement turned off and returns it as a session. Close must be
// deferred immediately so enforcement comes back and the connection is
// released on every exit path, including panics.
//
// Must be called outside any open transaction; SQLite silently ignores
// the pragma mid-transaction.
func (s *Store) SuspendForeignKeys(ctx context.Context) (*BulkSession, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}
	return &BulkSession{conn: conn, s: s}, nil
}

// Begin starts a transaction on the session's pinned connection.
func (b *BulkSession) Begin(ctx context.Context) (*Tx, error) {
	tx, err := b.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, s: b.s}, nil
}

// Close restores foreign key enforcement on the pinned connection and
// returns it to the pool.
func (b *BulkSession) Close() {
	// Restoration uses a background context: the run's context may
	// already be cancelled and the pragma must still execute.
	if _, err := b.conn.ExecContext(context.Background(), "PRAGMA foreign_keys=ON"); err != nil {
		b.s.logger.Error("failed to restore foreign key enforcement", "error", err)
	}
	if err := b.conn.Close(); err != nil {
		b.s.logger.Error("failed to release bulk connection", "error", err)
	}
}

// formatTime formats a time.Time to RFC3339Nano for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses an optional time string.
func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullString returns a sql.NullString, empty string becoming NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullTimeString returns a sql.NullString from a *time.Time.
func nullTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// nullInt returns a sql.NullInt64, zero becoming NULL.
func nullInt(v int) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(v), Valid: true}
}

// boolInt converts a bool to the 0/1 integers SQLite stores.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
