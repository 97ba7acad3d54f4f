// Package auditsqlite persists engine audit events to a local SQLite
// database. Greeter hosts rarely ship a log aggregator; a single file
// under /var/lib is what an operator actually inspects after a bad
// night. Events arrive from the engine's audit dispatcher, so writes
// are already off the keystroke path.
package auditsqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/greetline/autosubmit"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	timestamp   REAL NOT NULL,
	event_type  TEXT NOT NULL,
	username    TEXT,
	attempt_id  TEXT,
	generation  INTEGER,
	success     INTEGER NOT NULL,
	error       TEXT,
	metadata    TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_log_username ON audit_log(username);
`

// DefaultRetention matches the usual operator expectation of a month of
// login history.
const DefaultRetention = 30 * 24 * time.Hour

// Sink writes audit events to SQLite and purges old rows on open.
type Sink struct {
	db        *sql.DB
	retention time.Duration
}

type Option func(*Sink)

// WithRetention overrides how long rows are kept. Zero disables purging.
func WithRetention(d time.Duration) Option {
	return func(s *Sink) { s.retention = d }
}

// Open creates or opens the database at path and runs the schema.
func Open(path string, opts ...Option) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	// SQLite supports one writer; a single connection avoids lock
	// contention entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure audit database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}

	s := &Sink{
		db:        db,
		retention: DefaultRetention,
	}
	for _, o := range opts {
		o(s)
	}

	if err := s.purge(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Emit implements autosubmit.AuditSink. A failed insert is dropped; the
// audit trail is best effort and must never take the engine down.
func (s *Sink) Emit(ctx context.Context, event autosubmit.AuditEvent) {
	if s == nil || s.db == nil {
		return
	}

	var metadata any
	if len(event.Metadata) > 0 {
		if data, err := json.Marshal(event.Metadata); err == nil {
			metadata = string(data)
		}
	}

	_, _ = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO audit_log
			(id, timestamp, event_type, username, attempt_id, generation, success, error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		float64(event.Timestamp.UnixNano())/1e9,
		event.EventType,
		event.Username,
		event.AttemptID,
		event.Generation,
		event.Success,
		event.Error,
		metadata,
	)
}

// Recent returns up to limit events, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]autosubmit.AuditEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, event_type, username, attempt_id, generation, success, error, metadata
		FROM audit_log ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []autosubmit.AuditEvent
	for rows.Next() {
		var (
			ev       autosubmit.AuditEvent
			ts       float64
			username sql.NullString
			attempt  sql.NullString
			errText  sql.NullString
			metadata sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.EventType, &username, &attempt,
			&ev.Generation, &ev.Success, &errText, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		ev.Timestamp = time.Unix(0, int64(ts*1e9)).UTC()
		ev.Username = username.String
		ev.AttemptID = attempt.String
		ev.Error = errText.String
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &ev.Metadata)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// FailureCount returns how many rejected validations the username has in
// the window ending now.
func (s *Sink) FailureCount(ctx context.Context, username string, window time.Duration) (int, error) {
	since := float64(time.Now().Add(-window).UnixNano()) / 1e9
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_log
		WHERE username = ? AND event_type = ? AND timestamp >= ?`,
		username, autosubmit.AuditValidationRejected, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

func (s *Sink) purge() error {
	if s.retention <= 0 {
		return nil
	}
	cutoff := float64(time.Now().Add(-s.retention).UnixNano()) / 1e9
	if _, err := s.db.Exec(`DELETE FROM audit_log WHERE timestamp < ?`, cutoff); err != nil {
		return fmt.Errorf("purge audit log: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Sink) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
