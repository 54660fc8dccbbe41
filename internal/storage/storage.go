// Package storage defines the session persistence contract and its summary
// projection for listings.
package storage

import (
	"context"
	"time"

	"github.com/tradewind-ai/tradewind/internal/domain"
)

// SessionSummary is the listing projection of a stored session: identity,
// a preview of the most recent message, and ordering metadata.
type SessionSummary struct {
	SessionID    string    `json:"sessionId" db:"session_id"`
	LastMessage  string    `json:"lastMessage" db:"last_message"`
	MessageCount int       `json:"messageCount" db:"message_count"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// SessionStore persists chat sessions. Save overwrites the whole session;
// Load returns domain.ErrSessionNotFound for unknown ids; Delete reports
// whether anything was removed.
type SessionStore interface {
	Save(ctx context.Context, session *domain.Session) error
	Load(ctx context.Context, id string) (*domain.Session, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]SessionSummary, error)
	Close() error
}

// Preview truncates a message body for listings.
func Preview(content string, max int) string {
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max]) + "..."
}

// Summarize projects a session into its listing form.
func Summarize(session *domain.Session) SessionSummary {
	summary := SessionSummary{
		SessionID:    session.ID,
		MessageCount: len(session.Messages),
		UpdatedAt:    session.UpdatedAt,
	}
	for i := len(session.Messages) - 1; i >= 0; i-- {
		if session.Messages[i].Content != "" {
			summary.LastMessage = Preview(session.Messages[i].Content, 50)
			break
		}
	}
	return summary
}
