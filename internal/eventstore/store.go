package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-mathgame/internal/config"
	_ "modernc.org/sqlite"
)

// Event is one entry on a game session's timeline.
type Event struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store keeps the timeline of the running process in an in-memory SQLite
// database. It is dropped on Close; nothing reaches disk.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open creates the store. In "ephemeral" mode every call is a no-op.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	s := &Store{cfg: cfg, log: log, clock: time.Now}
	if cfg.RetentionMode == "ephemeral" {
		return s, nil
	}

	// A private shared-cache name keeps each Store isolated while letting the
	// pool's connections see the same memory database.
	dsn := fmt.Sprintf("file:mathgame-%s?mode=memory&cache=shared&_pragma=foreign_keys(ON)", uuid.NewString())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    device_id TEXT,
    created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload BLOB,
    created_at TEXT NOT NULL,
    FOREIGN KEY(session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases the database, discarding the timeline.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) enabled() bool {
	return s.db != nil
}

// AppendSession registers a game session and prunes the oldest sessions
// beyond max_sessions.
func (s *Store) AppendSession(ctx context.Context, sessionID, deviceID string) error {
	if !s.enabled() {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions(session_id, device_id, created_at) VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET device_id=excluded.device_id`,
		sessionID, deviceID, s.clock().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	if err := s.Prune(ctx); err != nil {
		s.log.Warn("event store prune failed", slog.String("error", err.Error()))
	}
	return nil
}

// AppendEvent adds an event to a registered session.
func (s *Store) AppendEvent(ctx context.Context, evt Event) error {
	if !s.enabled() {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(session_id, event_type, payload, created_at) VALUES(?, ?, ?, ?)`,
		evt.SessionID, evt.Type, []byte(evt.Payload), evt.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListSessionEvents returns up to limit events in insertion order.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if !s.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, payload, created_at
		 FROM events WHERE session_id = ? ORDER BY id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			payload []byte
			created string
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &created); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune keeps only the newest max_sessions sessions.
func (s *Store) Prune(ctx context.Context) error {
	if !s.enabled() || s.cfg.MaxSessions <= 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err = tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id IN (
		SELECT session_id FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?
	)`, s.cfg.MaxSessions); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM events WHERE session_id NOT IN (SELECT session_id FROM sessions)`); err != nil {
		return err
	}
	return tx.Commit()
}
