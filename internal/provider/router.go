package provider

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/tradewind-ai/tradewind/internal/domain"
)

const (
	// ModeAuto lets the router pick a provider from rolling error rates.
	ModeAuto = "auto"

	primaryErrorCeiling   = 0.30
	secondaryErrorCeiling = 0.50
)

// Router holds the registered providers and selects one per request. In
// automatic mode a failed call is retried exactly once on a different
// provider; a pinned provider never fails over.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Completer
	primary   string
	secondary string
	mode      string
	logger    *slog.Logger
}

// NewRouter creates a router in automatic mode. primary and secondary name
// the preferred and fallback providers; either may be absent from the map.
func NewRouter(providers map[string]Completer, primary, secondary string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		providers: providers,
		primary:   primary,
		secondary: secondary,
		mode:      ModeAuto,
		logger:    logger,
	}
}

// SetMode pins the router to a named provider, or returns it to automatic
// selection. Returns false for an unknown provider name.
func (r *Router) SetMode(mode string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mode == ModeAuto {
		r.mode = mode
		return true
	}
	if _, ok := r.providers[mode]; ok {
		r.mode = mode
		return true
	}
	return false
}

// Mode returns the current routing mode.
func (r *Router) Mode() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Names returns the registered provider names, sorted.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatsByName returns a statistics snapshot for every registered provider.
func (r *Router) StatsByName() map[string]StatsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]StatsSnapshot, len(r.providers))
	for name, p := range r.providers {
		out[name] = p.Stats()
	}
	return out
}

// Select applies the selection policy: the pinned provider when one is set;
// otherwise the primary unless its error rate exceeds 30%, then the
// secondary unless its rate exceeds 50%, then any registered provider.
// Statistics are read as immutable snapshots at decision time.
func (r *Router) Select() (Completer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.mode != ModeAuto {
		if p, ok := r.providers[r.mode]; ok {
			return p, nil
		}
		return nil, domain.ErrNoProvider
	}

	if p, ok := r.providers[r.primary]; ok && p.Stats().ErrorRate() < primaryErrorCeiling {
		return p, nil
	}
	if p, ok := r.providers[r.secondary]; ok && p.Stats().ErrorRate() < secondaryErrorCeiling {
		return p, nil
	}
	for _, name := range r.sortedNamesLocked() {
		return r.providers[name], nil
	}
	return nil, domain.ErrNoProvider
}

func (r *Router) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Complete selects a provider and issues the call, retrying once on a
// different provider if the call fails and the router is in automatic mode.
func (r *Router) Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) domain.Completion {
	return r.dispatch(ctx, messages, nil, opts, false)
}

// CompleteStream is the streaming variant of Complete with the same
// failover contract.
func (r *Router) CompleteStream(ctx context.Context, messages []domain.Message, onDelta func(string), opts domain.CompletionOptions) domain.Completion {
	return r.dispatch(ctx, messages, onDelta, opts, true)
}

func (r *Router) dispatch(ctx context.Context, messages []domain.Message, onDelta func(string), opts domain.CompletionOptions, streaming bool) domain.Completion {
	chosen, err := r.Select()
	if err != nil {
		return domain.Completion{Success: false, Error: err.Error()}
	}

	result := r.call(ctx, chosen, messages, onDelta, opts, streaming)
	if result.Success || r.Mode() != ModeAuto {
		return result
	}

	backup := r.backupFor(chosen.Name())
	if backup == nil {
		return result
	}

	r.logger.Warn("provider failed, retrying on backup",
		slog.String("failed", chosen.Name()),
		slog.String("backup", backup.Name()),
		slog.String("error", result.Error))
	return r.call(ctx, backup, messages, onDelta, opts, streaming)
}

func (r *Router) call(ctx context.Context, p Completer, messages []domain.Message, onDelta func(string), opts domain.CompletionOptions, streaming bool) domain.Completion {
	if streaming {
		return p.CompleteStream(ctx, messages, onDelta, opts)
	}
	return p.Complete(ctx, messages, opts)
}

// backupFor returns any registered provider other than the named one.
func (r *Router) backupFor(failed string) Completer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.sortedNamesLocked() {
		if name != failed {
			return r.providers[name]
		}
	}
	return nil
}
