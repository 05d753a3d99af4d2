// Package journal keeps a local history of executed pastes in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"go.klb.dev/clipfile/internal/fileop"
)

// DB is an open journal.
type DB struct {
	conn *sql.DB
}

// Entry is one recorded file operation.
type Entry struct {
	ID       int64
	Batch    string
	At       time.Time
	Op       fileop.Op
	Source   string
	Dest     string
	ExitCode int
	Error    string
}

// OK reports whether the operation succeeded.
func (e Entry) OK() bool { return e.Error == "" }

// DefaultPath returns the journal location under the user's state
// directory ($XDG_STATE_HOME, or ~/.local/state).
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_STATE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate journal: %w", err)
		}
		dir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(dir, "clipfile", "journal.db"), nil
}

// Open opens the journal at path, creating it and its directory if needed.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// WAL lets a paste write while another process reads the history.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=2000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS operations (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		batch     TEXT    NOT NULL,
		at_ms     INTEGER NOT NULL,
		op        TEXT    NOT NULL,
		source    TEXT    NOT NULL,
		dest      TEXT    NOT NULL,
		exit_code INTEGER NOT NULL,
		error     TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_operations_batch ON operations(batch);
	CREATE INDEX IF NOT EXISTS idx_operations_at ON operations(at_ms);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Record stores one row per result of r under a fresh batch id. An empty
// report records nothing.
func (db *DB) Record(ctx context.Context, r *fileop.Report) error {
	_, err := db.record(ctx, r, time.Now())
	return err
}

func (db *DB) record(ctx context.Context, r *fileop.Report, at time.Time) (string, error) {
	if r == nil || len(r.Results) == 0 {
		return "", nil
	}
	batch := uuid.NewString()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin journal write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO operations (batch, at_ms, op, source, dest, exit_code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return "", fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range r.Results {
		var msg sql.NullString
		if res.Err != nil {
			msg = sql.NullString{String: res.Err.Error(), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, batch, at.UnixMilli(), string(res.Op),
			res.Source, res.Dest, res.ExitCode, msg); err != nil {
			return "", fmt.Errorf("write journal entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit journal write: %w", err)
	}
	return batch, nil
}

// Recent returns up to limit entries, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, batch, at_ms, op, source, dest, exit_code, error
		FROM operations
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e   Entry
			ms  int64
			op  string
			msg sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Batch, &ms, &op, &e.Source, &e.Dest, &e.ExitCode, &msg); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.At = time.UnixMilli(ms)
		e.Op = fileop.Op(op)
		e.Error = msg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
