// Package sqlite persists sessions in a single SQLite database, storing the
// message history as a JSON document per session.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tradewind-ai/tradewind/internal/domain"
	"github.com/tradewind-ai/tradewind/internal/storage"
)

// Store is a SQLite implementation of SessionStore.
type Store struct {
	db *sqlx.DB
}

var _ storage.SessionStore = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the schema.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			messages TEXT NOT NULL,
			message_count INTEGER NOT NULL,
			last_message TEXT NOT NULL DEFAULT '',
			disclaimer_shown INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	messages, err := json.Marshal(session.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	updatedAt := session.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	summary := storage.Summarize(session)

	query := `INSERT INTO sessions (session_id, messages, message_count, last_message, disclaimer_shown, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?)
	          ON CONFLICT(session_id) DO UPDATE SET
	            messages = excluded.messages,
	            message_count = excluded.message_count,
	            last_message = excluded.last_message,
	            disclaimer_shown = excluded.disclaimer_shown,
	            updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		session.ID, string(messages), summary.MessageCount, summary.LastMessage,
		session.DisclaimerShown, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT messages, disclaimer_shown, updated_at FROM sessions WHERE session_id = ?`

	var messagesJSON string
	var disclaimerShown bool
	var updatedAt time.Time

	err := s.db.QueryRowxContext(ctx, query, id).Scan(&messagesJSON, &disclaimerShown, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	session := &domain.Session{
		ID:              id,
		DisclaimerShown: disclaimerShown,
		UpdatedAt:       updatedAt,
	}
	if err := json.Unmarshal([]byte(messagesJSON), &session.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return session, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read delete result: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) List(ctx context.Context) ([]storage.SessionSummary, error) {
	query := `SELECT session_id, last_message, message_count, updated_at
	          FROM sessions ORDER BY updated_at DESC`

	summaries := []storage.SessionSummary{}
	if err := s.db.SelectContext(ctx, &summaries, query); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return summaries, nil
}

// Cleanup removes sessions untouched since the cutoff and returns how many
// were dropped.
func (s *Store) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
