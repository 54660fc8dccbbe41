// Package provider wraps the interchangeable LLM backends: a per-backend
// client with rolling statistics, and a router that selects one per request
// and fails over once in automatic mode.
package provider

import (
	"context"

	"github.com/tradewind-ai/tradewind/internal/domain"
)

// Completer is one model backend. Every call returns a Completion summary;
// failures are captured in the summary, never returned as errors.
type Completer interface {
	Name() string
	Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) domain.Completion
	CompleteStream(ctx context.Context, messages []domain.Message, onDelta func(content string), opts domain.CompletionOptions) domain.Completion
	Stats() StatsSnapshot
}
