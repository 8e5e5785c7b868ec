// Package audit records session lifecycle transitions to a durable trail,
// so "who logged in when" survives the broker process's own lifetime.
// It is optional: a deployment with no DSN configured gets a no-op
// Recorder and the broker runs exactly as it would without this package.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Recorder appends session lifecycle events to the audit trail.
type Recorder interface {
	SessionStarted(ctx context.Context, sessionName, seatName, userName string) error
	SessionEnded(ctx context.Context, sessionName string) error
	Close() error
}

// nopRecorder discards everything; returned by Open when no DSN is set.
type nopRecorder struct{}

func (nopRecorder) SessionStarted(context.Context, string, string, string) error { return nil }
func (nopRecorder) SessionEnded(context.Context, string) error                   { return nil }
func (nopRecorder) Close() error                                                 { return nil }

var _ Recorder = nopRecorder{}

// NewNop returns a Recorder that discards every call, for callers that
// want an audit trail seam without requiring a configured DSN.
func NewNop() Recorder { return nopRecorder{} }

const createTableSQL = `CREATE TABLE IF NOT EXISTS sessions (
	session_name VARCHAR(64) PRIMARY KEY,
	seat_name VARCHAR(128) NOT NULL,
	user_name VARCHAR(128) NOT NULL,
	started_at DATETIME NOT NULL,
	ended_at DATETIME NULL
)`

// sqlRecorder is the MySQL-backed Recorder, pointed at a plain
// `sessions` table.
type sqlRecorder struct {
	db *sql.DB
}

// Open connects to dsn and ensures the sessions table exists. An empty
// dsn is not an error — it returns a Recorder that discards every call,
// since auditing is an optional deployment feature (SPEC_FULL.md §10).
func Open(ctx context.Context, dsn string) (Recorder, error) {
	if dsn == "" {
		return nopRecorder{}, nil
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", dsn, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create sessions table: %w", err)
	}
	return &sqlRecorder{db: db}, nil
}

func (r *sqlRecorder) SessionStarted(ctx context.Context, sessionName, seatName, userName string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO sessions (session_name, seat_name, user_name, started_at) VALUES (?, ?, ?, ?)",
		sessionName, seatName, userName, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("audit: session started: %w", err)
	}
	return nil
}

func (r *sqlRecorder) SessionEnded(ctx context.Context, sessionName string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE sessions SET ended_at = ? WHERE session_name = ?",
		time.Now().UTC(), sessionName)
	if err != nil {
		return fmt.Errorf("audit: session ended: %w", err)
	}
	return nil
}

func (r *sqlRecorder) Close() error { return r.db.Close() }

var _ Recorder = (*sqlRecorder)(nil)

// record is one row as observed by Fake, for test assertions.
type record struct {
	SessionName, SeatName, UserName string
	Ended                           bool
}

// Fake is an in-memory Recorder for broker/helper tests, the same spy
// pattern as loginservice.Fake and display.Fake.
type Fake struct {
	rows []record
}

var _ Recorder = (*Fake)(nil)

func (f *Fake) SessionStarted(ctx context.Context, sessionName, seatName, userName string) error {
	f.rows = append(f.rows, record{SessionName: sessionName, SeatName: seatName, UserName: userName})
	return nil
}

func (f *Fake) SessionEnded(ctx context.Context, sessionName string) error {
	for i := range f.rows {
		if f.rows[i].SessionName == sessionName {
			f.rows[i].Ended = true
			return nil
		}
	}
	return fmt.Errorf("audit: SessionEnded(%q) without a prior SessionStarted", sessionName)
}

func (f *Fake) Close() error { return nil }

// Started returns the session names recorded via SessionStarted, in order.
func (f *Fake) Started() []string {
	names := make([]string, len(f.rows))
	for i, r := range f.rows {
		names[i] = r.SessionName
	}
	return names
}

// Ended reports whether SessionEnded was recorded for sessionName.
func (f *Fake) Ended(sessionName string) bool {
	for _, r := range f.rows {
		if r.SessionName == sessionName {
			return r.Ended
		}
	}
	return false
}
