// Package history keeps a sqlite log of finished recall actions.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/selfrecall/selfrecall/internal/recall"
)

// Entry is one finished recall action.
type Entry struct {
	ID         string    `json:"id"`
	Session    string    `json:"session"`
	Channel    string    `json:"channel"`
	ChatID     string    `json:"chatId"`
	MessageIDs []string  `json:"messageIds"`
	Delay      float64   `json:"delay"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// Store persists entries. It also acts as a recall.Observer so the
// scheduler can record every finished action.
type Store struct {
	db *sql.DB
}

var _ recall.Observer = (*Store)(nil)

// Open creates the database at path if needed. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("history: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS recall_history (
			id TEXT PRIMARY KEY,
			session TEXT NOT NULL,
			channel TEXT NOT NULL,
			chat_id TEXT NOT NULL,
			message_ids TEXT NOT NULL,
			delay_ms INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT,
			created_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create recall_history table: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_recall_history_session ON recall_history(session, finished_at)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_recall_history_finished ON recall_history(finished_at)`)

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record inserts e. Re-recording an id is ignored.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO recall_history
			(id, session, channel, chat_id, message_ids, delay_ms, outcome, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Session, e.Channel, e.ChatID, strings.Join(e.MessageIDs, ","),
		int64(e.Delay*1000), e.Outcome, e.Error,
		e.CreatedAt.UnixMilli(), e.FinishedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty session
// matches all sessions.
func (s *Store) Recent(ctx context.Context, session string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, session, channel, chat_id, message_ids, delay_ms, outcome, error, created_at, finished_at
		FROM recall_history`
	args := []any{}
	if session != "" {
		query += ` WHERE session = ?`
		args = append(args, session)
	}
	query += ` ORDER BY finished_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			ids               string
			delayMs           int64
			errText           sql.NullString
			created, finished int64
		)
		if err := rows.Scan(&e.ID, &e.Session, &e.Channel, &e.ChatID, &ids, &delayMs,
			&e.Outcome, &errText, &created, &finished); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if ids != "" {
			e.MessageIDs = strings.Split(ids, ",")
		}
		e.Delay = float64(delayMs) / 1000
		e.Error = errText.String
		e.CreatedAt = time.UnixMilli(created)
		e.FinishedAt = time.UnixMilli(finished)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Counts returns the number of entries per outcome.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM recall_history GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("history: count: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

// Prune deletes entries finished before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM recall_history WHERE finished_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Scheduled(*recall.Action) {}

// Finished records a.
func (s *Store) Finished(a *recall.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Record(ctx, FromAction(a)); err != nil {
		slog.Warn("history: record failed", "action", a.ID(), "err", err)
	}
}

// FromAction converts a finished action into an Entry.
func FromAction(a *recall.Action) Entry {
	h := a.Handle()
	e := Entry{
		ID:         a.ID(),
		Session:    a.Session().String(),
		Channel:    h.Channel,
		ChatID:     h.ChatID,
		MessageIDs: h.MessageIDs,
		Delay:      a.Delay().Seconds(),
		Outcome:    a.Outcome(),
		CreatedAt:  a.CreatedAt(),
		FinishedAt: a.FinishedAt(),
	}
	if err := a.Err(); err != nil {
		e.Error = err.Error()
	}
	return e
}
