package domain

import (
	"errors"
	"fmt"
)

// ErrUnknownService is returned when a tool call names a service with no
// configured endpoint. It is fatal to that call only, never to the turn.
var ErrUnknownService = errors.New("unknown tool service")

// ErrSessionNotFound is returned by session stores for missing ids.
var ErrSessionNotFound = errors.New("session not found")

// ErrNoProvider indicates no model provider is registered or reachable.
var ErrNoProvider = errors.New("no available model provider")

// ProviderError is a model-call failure that survived router failover and is
// therefore fatal to the turn.
type ProviderError struct {
	Provider string
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return e.Message
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Message)
}
