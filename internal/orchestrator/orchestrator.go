// Package orchestrator runs the per-turn state machine: round one with
// tools offered, concurrent tool execution, a supplemental risk-data check,
// round two with tools withheld, and grounding validation of the result.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tradewind-ai/tradewind/internal/detect"
	"github.com/tradewind-ai/tradewind/internal/domain"
	"github.com/tradewind-ai/tradewind/internal/storage"
	"github.com/tradewind-ai/tradewind/internal/tools"
	"github.com/tradewind-ai/tradewind/internal/validate"
)

// supplementalTools is the minimum risk-indicator set a directional trading
// answer must be grounded in.
var supplementalTools = []string{
	"get_open_interest",
	"get_long_short_ratio",
	"get_taker_long_short_ratio",
}

const supplementalService = "binance"

// CompletionRouter is the model-call surface the orchestrator depends on.
type CompletionRouter interface {
	Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) domain.Completion
	CompleteStream(ctx context.Context, messages []domain.Message, onDelta func(string), opts domain.CompletionOptions) domain.Completion
}

// ToolInvoker is the tool surface the orchestrator depends on.
type ToolInvoker interface {
	Discover(ctx context.Context) ([]domain.ToolDefinition, tools.Status)
	Call(ctx context.Context, service, tool string, args map[string]any) (domain.ToolResult, error)
}

// TurnResult is the buffered outcome of one completed turn.
type TurnResult struct {
	SessionID string                     `json:"sessionId"`
	Message   domain.Message             `json:"message"`
	Model     string                     `json:"model"`
	Warnings  []domain.ValidationWarning `json:"warnings,omitempty"`
}

// Orchestrator coordinates providers, tools, validation, and persistence for
// chat turns. Turns within one session are serialized; distinct sessions run
// concurrently.
type Orchestrator struct {
	router    CompletionRouter
	invoker   ToolInvoker
	validator *validate.Validator
	store     storage.SessionStore
	logger    *slog.Logger

	systemPrompt string
	historyLimit int
	tokenBudget  int
	validate     bool

	mu       sync.Mutex
	sessions map[string]*domain.Session
	locks    sync.Map
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSystemPrompt replaces the built-in system instructions.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) {
		if prompt != "" {
			o.systemPrompt = prompt
		}
	}
}

// WithHistoryLimit bounds how many trailing messages each round sees.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) { o.historyLimit = n }
}

// WithTokenBudget bounds the token size of the history window.
func WithTokenBudget(n int) Option {
	return func(o *Orchestrator) { o.tokenBudget = n }
}

// WithValidation toggles grounding validation of generated responses.
func WithValidation(enabled bool) Option {
	return func(o *Orchestrator) { o.validate = enabled }
}

func New(router CompletionRouter, invoker ToolInvoker, validator *validate.Validator, store storage.SessionStore, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		router:       router,
		invoker:      invoker,
		validator:    validator,
		store:        store,
		logger:       logger,
		systemPrompt: defaultSystemPrompt,
		historyLimit: defaultHistoryWindow,
		tokenBudget:  defaultTokenBudget,
		validate:     true,
		sessions:     make(map[string]*domain.Session),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Chat runs one buffered turn.
func (o *Orchestrator) Chat(ctx context.Context, sessionID, userText string) (*TurnResult, error) {
	return o.runTurn(ctx, sessionID, userText, nil)
}

// ChatStream runs one turn, emitting lifecycle events and content deltas as
// they happen. The final result is still buffered internally so tool-call
// extraction and validation see the complete text.
func (o *Orchestrator) ChatStream(ctx context.Context, sessionID, userText string, emit func(domain.StreamEvent)) (*TurnResult, error) {
	if emit == nil {
		emit = func(domain.StreamEvent) {}
	}
	result, err := o.runTurn(ctx, sessionID, userText, emit)
	if err != nil {
		emit(domain.StreamEvent{Type: domain.EventError, SessionID: sessionID, Error: err.Error()})
	}
	return result, err
}

// Session returns a copy of a session, from cache or the store.
func (o *Orchestrator) Session(ctx context.Context, id string) (*domain.Session, error) {
	o.mu.Lock()
	cached, ok := o.sessions[id]
	o.mu.Unlock()
	if ok {
		copied := *cached
		copied.Messages = append([]domain.Message(nil), cached.Messages...)
		return &copied, nil
	}
	return o.store.Load(ctx, id)
}

// DeleteSession drops a session from the cache and the store, waiting for an
// in-flight turn to settle first. The session's lock entry is pruned with it.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) (bool, error) {
	lock := o.sessionLock(id)
	lock.Lock()
	o.locks.Delete(id)
	defer lock.Unlock()

	o.mu.Lock()
	_, cached := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()

	deleted, err := o.store.Delete(ctx, id)
	if err != nil {
		return cached, err
	}
	return deleted || cached, nil
}

func (o *Orchestrator) sessionLock(id string) *sync.Mutex {
	lock, _ := o.locks.LoadOrStore(id, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, id string) *domain.Session {
	o.mu.Lock()
	if session, ok := o.sessions[id]; ok {
		o.mu.Unlock()
		return session
	}
	o.mu.Unlock()

	session, err := o.store.Load(ctx, id)
	if err != nil {
		session = &domain.Session{ID: id}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if existing, ok := o.sessions[id]; ok {
		return existing
	}
	o.sessions[id] = session
	return session
}

func (o *Orchestrator) runTurn(ctx context.Context, sessionID, userText string, emit func(domain.StreamEvent)) (*TurnResult, error) {
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session := o.loadOrCreate(ctx, sessionID)

	// Session mutations also take mu so Session() can copy a consistent
	// snapshot mid-turn. Only this turn mutates; mu is held just for writes.
	o.mu.Lock()
	session.Append(domain.Message{Role: domain.RoleUser, Content: userText})
	o.mu.Unlock()

	if emit != nil {
		emit(domain.StreamEvent{Type: domain.EventStart, SessionID: sessionID})
	}

	detection := detect.Check(userText)
	defs, status := o.invoker.Discover(ctx)
	showDisclaimer := !session.DisclaimerShown

	history := recentHistory(session.Messages, o.historyLimit, o.tokenBudget)

	// Round one: tools offered, exactly once per turn.
	round1Messages := make([]domain.Message, 0, len(history)+1)
	round1Messages = append(round1Messages, domain.Message{
		Role:    domain.RoleSystem,
		Content: o.buildSystemPrompt(status, showDisclaimer),
	})
	round1Messages = append(round1Messages, history...)

	round1Opts := domain.CompletionOptions{Tools: defs, ToolChoice: "auto"}
	if detection.Forced && len(defs) > 0 {
		round1Opts.ToolChoice = "required"
		round1Messages[0].Content += forcedInstruction(detection.Symbols[0])
	}

	round1 := o.call(ctx, sessionID, round1Messages, round1Opts, emit)
	if !round1.Success {
		return nil, &domain.ProviderError{Provider: round1.Model, Message: round1.Error}
	}

	final := round1.Content
	model := round1.Model
	latency := round1.Latency
	var outcomes []domain.ToolOutcome

	if len(round1.ToolCalls) > 0 {
		if emit != nil {
			emit(domain.StreamEvent{Type: domain.EventToolStart, SessionID: sessionID, ToolCount: len(round1.ToolCalls)})
		}

		outcomes = o.executeIntents(ctx, round1.ToolCalls)
		outcomes = append(outcomes, o.supplement(ctx, userText, detection, outcomes)...)

		if emit != nil {
			emit(domain.StreamEvent{Type: domain.EventToolDone, SessionID: sessionID})
		}

		// Round two: tools withheld so the model cannot ask for more.
		round2Messages := make([]domain.Message, 0, len(history)+3)
		round2Messages = append(round2Messages, domain.Message{
			Role:    domain.RoleSystem,
			Content: o.followUpSystemPrompt(showDisclaimer),
		})
		round2Messages = append(round2Messages, history...)
		if round1.Content != "" {
			round2Messages = append(round2Messages, domain.Message{Role: domain.RoleAssistant, Content: round1.Content})
		}
		round2Messages = append(round2Messages, domain.Message{
			Role:    domain.RoleUser,
			Content: fmt.Sprintf(followUpInstruction, summarizeOutcomes(outcomes)),
		})

		round2 := o.call(ctx, sessionID, round2Messages, domain.CompletionOptions{}, emit)
		if round2.Success {
			final = round2.Content
			model = round2.Model
			latency += round2.Latency
		} else {
			// Raw data beats no answer when the follow-up call fails.
			final = "Here is the data I retrieved:\n\n" + validate.FallbackDump(outcomes)
			if emit != nil {
				emit(domain.StreamEvent{Type: domain.EventContent, SessionID: sessionID, Content: final})
			}
		}
	}

	var report domain.ValidationReport
	if o.validate {
		report = o.validator.Validate(final, outcomes)
		if report.NeedsCorrection {
			final = o.regenerate(ctx, sessionID, history, final, report, outcomes, showDisclaimer, emit)
		}
	}

	o.mu.Lock()
	assistant := session.Append(domain.Message{
		Role:    domain.RoleAssistant,
		Content: final,
		Model:   model,
		Latency: latency,
	})
	session.DisclaimerShown = true
	o.mu.Unlock()

	if err := o.store.Save(ctx, session); err != nil {
		o.logger.Error("failed to save session", "session_id", sessionID, "error", err)
	}

	if emit != nil {
		emit(domain.StreamEvent{Type: domain.EventDone, SessionID: sessionID, Model: model})
	}

	return &TurnResult{
		SessionID: sessionID,
		Message:   assistant,
		Model:     model,
		Warnings:  report.Warnings,
	}, nil
}

// call dispatches to the router, streaming deltas to emit when present.
func (o *Orchestrator) call(ctx context.Context, sessionID string, messages []domain.Message, opts domain.CompletionOptions, emit func(domain.StreamEvent)) domain.Completion {
	if emit == nil {
		return o.router.Complete(ctx, messages, opts)
	}
	return o.router.CompleteStream(ctx, messages, func(delta string) {
		emit(domain.StreamEvent{Type: domain.EventContent, SessionID: sessionID, Content: delta})
	}, opts)
}

// executeIntents runs every tool-call intent concurrently and waits for all
// of them to settle. A malformed or failed call becomes a failed outcome,
// never an error for the turn.
func (o *Orchestrator) executeIntents(ctx context.Context, intents []domain.ToolCallIntent) []domain.ToolOutcome {
	// Tool calls keep running if the client disconnects mid-stream; the
	// results still get validated and persisted.
	callCtx := context.WithoutCancel(ctx)

	outcomes := make([]domain.ToolOutcome, len(intents))
	var wg sync.WaitGroup
	for i, intent := range intents {
		wg.Add(1)
		go func(i int, intent domain.ToolCallIntent) {
			defer wg.Done()
			outcomes[i] = o.executeIntent(callCtx, intent)
		}(i, intent)
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) executeIntent(ctx context.Context, intent domain.ToolCallIntent) domain.ToolOutcome {
	service, tool, ok := tools.ParseName(intent.Name)
	if !ok {
		return domain.ToolOutcome{
			Tool: intent.Name,
			Result: domain.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("malformed tool name %q", intent.Name),
				Tool:    intent.Name,
			},
		}
	}

	args := map[string]any{}
	if len(intent.Arguments) > 0 {
		if err := json.Unmarshal(intent.Arguments, &args); err != nil {
			return domain.ToolOutcome{
				Service: service,
				Tool:    tool,
				Result: domain.ToolResult{
					Success: false,
					Error:   fmt.Sprintf("malformed tool arguments: %v", err),
					Service: service,
					Tool:    tool,
				},
			}
		}
	}

	result, err := o.invoker.Call(ctx, service, tool, args)
	if err != nil {
		result = domain.ToolResult{
			Success: false,
			Error:   err.Error(),
			Service: service,
			Tool:    tool,
		}
	}
	return domain.ToolOutcome{Service: service, Tool: tool, Args: args, Result: result}
}

// supplement issues the risk-indicator calls a trading-decision turn is
// missing. The orchestrator itself makes these calls, not the model.
func (o *Orchestrator) supplement(ctx context.Context, userText string, detection detect.Detection, executed []domain.ToolOutcome) []domain.ToolOutcome {
	if !detect.IsTradeDecision(userText) || len(detection.Symbols) == 0 {
		return nil
	}
	symbol := detection.Symbols[0]

	have := make(map[string]bool, len(executed))
	for _, outcome := range executed {
		if s, _ := outcome.Args["symbol"].(string); strings.EqualFold(s, symbol) {
			have[outcome.Tool] = true
		}
	}

	var missing []string
	for _, tool := range supplementalTools {
		if !have[tool] {
			missing = append(missing, tool)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	o.logger.Info("fetching supplemental risk indicators", "symbol", symbol, "tools", missing)

	callCtx := context.WithoutCancel(ctx)
	extra := make([]domain.ToolOutcome, len(missing))
	var wg sync.WaitGroup
	for i, tool := range missing {
		wg.Add(1)
		go func(i int, tool string) {
			defer wg.Done()
			args := map[string]any{"symbol": symbol}
			result, err := o.invoker.Call(callCtx, supplementalService, tool, args)
			if err != nil {
				result = domain.ToolResult{
					Success: false,
					Error:   err.Error(),
					Service: supplementalService,
					Tool:    tool,
				}
			}
			extra[i] = domain.ToolOutcome{Service: supplementalService, Tool: tool, Args: args, Result: result}
		}(i, tool)
	}
	wg.Wait()
	return extra
}

// summarizeOutcomes renders tool outcomes for the follow-up request. Tool
// names are kept so the model can interpret the data; service names are not.
func summarizeOutcomes(outcomes []domain.ToolOutcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Result.Success {
			payload, err := json.MarshalIndent(outcome.Result.Data, "", "  ")
			if err != nil {
				payload = []byte(fmt.Sprintf("%v", outcome.Result.Data))
			}
			parts = append(parts, fmt.Sprintf("Data from %s:\n%s", outcome.Tool, payload))
		} else {
			parts = append(parts, fmt.Sprintf("Lookup %s failed: %s", outcome.Tool, outcome.Result.Error))
		}
	}
	return strings.Join(parts, "\n\n")
}

// regenerate issues one bounded correction call. If it fails, the literal
// tool data replaces the response rather than letting wrong numbers through.
func (o *Orchestrator) regenerate(ctx context.Context, sessionID string, history []domain.Message, flawed string, report domain.ValidationReport, outcomes []domain.ToolOutcome, showDisclaimer bool, emit func(domain.StreamEvent)) string {
	if emit != nil {
		emit(domain.StreamEvent{Type: domain.EventCorrectionStart, SessionID: sessionID})
	}
	o.logger.Warn("regenerating response after grounding failure",
		"session_id", sessionID, "corrections", len(report.Corrections))

	messages := make([]domain.Message, 0, len(history)+3)
	messages = append(messages, domain.Message{
		Role:    domain.RoleSystem,
		Content: o.followUpSystemPrompt(showDisclaimer),
	})
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: domain.RoleAssistant, Content: flawed})
	messages = append(messages, domain.Message{
		Role:    domain.RoleUser,
		Content: validate.CorrectionPrompt(report, outcomes),
	})

	corrected := o.router.Complete(ctx, messages, domain.CompletionOptions{})
	final := corrected.Content
	if !corrected.Success {
		final = "Here is the verified data:\n\n" + validate.FallbackDump(outcomes)
	}

	if emit != nil {
		emit(domain.StreamEvent{Type: domain.EventCorrectionReplace, SessionID: sessionID, Content: final})
	}
	return final
}
