// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage provides the optional SQLite store behind session recovery
// and the dead-letter queue.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombee/beacon/internal/session"
)

// Dead-letter kinds, one per buffer.
const (
	KindLogs    = "logs"
	KindObjects = "objects"
	KindSpans   = "spans"
	KindEvents  = "events"
)

// SQLiteStore is a SQLite-backed session and dead-letter store.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Config contains SQLite storage configuration.
type Config struct {
	// Path is the database file. ":memory:" creates an in-memory database.
	Path string

	// MaxOpenConns limits open connections (default: 1).
	MaxOpenConns int

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// DeadLetter is one batch remainder that could not be delivered.
type DeadLetter struct {
	ID        int64
	Kind      string
	Payload   json.RawMessage
	Items     int
	Reason    string
	CreatedAt time.Time
}

// New opens the database and runs migrations.
func New(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared.
	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db, now: cfg.Now}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			slot TEXT PRIMARY KEY,
			id TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			last_activity INTEGER NOT NULL,
			has_replay INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			payload TEXT NOT NULL,
			items INTEGER NOT NULL,
			reason TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dead_letters_kind ON dead_letters(kind, id)`,
		`CREATE INDEX IF NOT EXISTS idx_dead_letters_created_at ON dead_letters(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// LoadSession returns the saved session, or nil.
func (s *SQLiteStore) LoadSession(ctx context.Context) (*session.Session, error) {
	var (
		out               session.Session
		start, lastActive int64
		replay            int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, start_time, last_activity, has_replay FROM sessions WHERE slot = 'current'`,
	).Scan(&out.ID, &start, &lastActive, &replay)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	out.StartTime = time.Unix(0, start).UTC()
	out.LastActivity = time.Unix(0, lastActive).UTC()
	out.HasReplay = replay != 0
	return &out, nil
}

// SaveSession replaces the saved session.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	replay := 0
	if sess.HasReplay {
		replay = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (slot, id, start_time, last_activity, has_replay)
		VALUES ('current', ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			id = excluded.id,
			start_time = excluded.start_time,
			last_activity = excluded.last_activity,
			has_replay = excluded.has_replay`,
		sess.ID, sess.StartTime.UnixNano(), sess.LastActivity.UnixNano(), replay,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// SessionStore adapts the store to session.Store.
func (s *SQLiteStore) SessionStore() session.Store {
	return sessionAdapter{s}
}

type sessionAdapter struct{ s *SQLiteStore }

func (a sessionAdapter) Load() (*session.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.s.LoadSession(ctx)
}

func (a sessionAdapter) Save(sess *session.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.s.SaveSession(ctx, sess)
}

// AddDeadLetter stores items as a JSON array under kind.
func (s *SQLiteStore) AddDeadLetter(ctx context.Context, kind string, items any, count int, reason string) error {
	if kind == "" {
		return fmt.Errorf("dead letter kind is required")
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (kind, payload, items, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		kind, string(payload), count, reason, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store dead letter: %w", err)
	}
	return nil
}

// DeadLetterFilter narrows ListDeadLetters.
type DeadLetterFilter struct {
	// Kind restricts results to one kind. Empty means all.
	Kind string

	// Limit caps the number of rows (default: 100).
	Limit int
}

// ListDeadLetters returns dead letters oldest first.
func (s *SQLiteStore) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]DeadLetter, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, kind, payload, items, reason, created_at FROM dead_letters`
	args := []any{}
	if filter.Kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, filter.Kind)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		var (
			dl      DeadLetter
			payload string
			reason  sql.NullString
			created int64
		)
		if err := rows.Scan(&dl.ID, &dl.Kind, &payload, &dl.Items, &reason, &created); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.Payload = json.RawMessage(payload)
		dl.Reason = reason.String
		dl.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, dl)
	}
	return out, rows.Err()
}

// DeleteDeadLetter removes one dead letter by id.
func (s *SQLiteStore) DeleteDeadLetter(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	return nil
}

// DeleteDeadLettersOlderThan removes dead letters created before the cutoff
// and returns how many were removed.
func (s *SQLiteStore) DeleteDeadLettersOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE created_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete dead letters: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
