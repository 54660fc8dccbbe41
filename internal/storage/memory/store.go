// Package memory is the default SessionStore, suitable for development and
// tests. Sessions live only as long as the process.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/tradewind-ai/tradewind/internal/domain"
	"github.com/tradewind-ai/tradewind/internal/storage"
)

// Store is an in-memory SessionStore.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

var _ storage.SessionStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{sessions: make(map[string]*domain.Session)}
}

func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	copied.Messages = append([]domain.Message(nil), session.Messages...)
	s.sessions[session.ID] = &copied
	return nil
}

func (s *Store) Load(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	copied := *session
	copied.Messages = append([]domain.Message(nil), session.Messages...)
	return &copied, nil
}

func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return false, nil
	}
	delete(s.sessions, id)
	return true, nil
}

func (s *Store) List(ctx context.Context) ([]storage.SessionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]storage.SessionSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		summaries = append(summaries, storage.Summarize(session))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *Store) Close() error {
	return nil
}
