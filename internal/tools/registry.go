package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tradewind-ai/tradewind/internal/domain"
)

// Separator joins a service name and a tool name into the composite name
// exposed to the model, e.g. binance__get_spot_price.
const Separator = "__"

const (
	defaultDiscoveryTimeout = 10 * time.Second
	defaultCallTimeout      = 60 * time.Second

	schemaTTL = 5 * time.Minute
	resultTTL = 60 * time.Second

	cacheSize = 512
)

// ParseName splits a composite tool name at the first separator. It reports
// false when the name carries no service prefix.
func ParseName(name string) (service, tool string, ok bool) {
	service, tool, ok = strings.Cut(name, Separator)
	if !ok || service == "" || tool == "" {
		return "", "", false
	}
	return service, tool, true
}

// Status reports which services answered the last discovery pass.
type Status struct {
	Available   []string
	Unavailable []string
}

// Registry discovers tools across configured services and dispatches calls.
// Discovered schemas are cached per service for a few minutes and successful
// call results for a short window keyed by the exact arguments.
type Registry struct {
	services map[string]string
	client   *Client
	logger   *slog.Logger

	discoveryTimeout time.Duration
	callTimeout      time.Duration

	schemaCache *expirable.LRU[string, []ToolSpec]
	resultCache *expirable.LRU[string, domain.ToolResult]

	validatorMu sync.RWMutex
	validators  map[string]*jsonschema.Resolved
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithCallTimeout overrides the per-invocation timeout.
func WithCallTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.callTimeout = d }
}

// WithDiscoveryTimeout overrides the per-service tools/list timeout.
func WithDiscoveryTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.discoveryTimeout = d }
}

// NewRegistry creates a registry over a map of service name to endpoint URL.
func NewRegistry(services map[string]string, client *Client, logger *slog.Logger, opts ...RegistryOption) *Registry {
	if client == nil {
		client = NewClient(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		services:         services,
		client:           client,
		logger:           logger,
		discoveryTimeout: defaultDiscoveryTimeout,
		callTimeout:      defaultCallTimeout,
		schemaCache:      expirable.NewLRU[string, []ToolSpec](cacheSize, nil, schemaTTL),
		resultCache:      expirable.NewLRU[string, domain.ToolResult](cacheSize, nil, resultTTL),
		validators:       make(map[string]*jsonschema.Resolved),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Services returns the configured service names in sorted order.
func (r *Registry) Services() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Discover lists tools from every configured service concurrently. A service
// that fails to answer is reported unavailable without affecting the others.
// Tool definitions carry composite names.
func (r *Registry) Discover(ctx context.Context) ([]domain.ToolDefinition, Status) {
	type listing struct {
		service string
		specs   []ToolSpec
		err     error
	}

	results := make([]listing, len(r.services))
	var wg sync.WaitGroup
	for i, service := range r.Services() {
		wg.Add(1)
		go func(i int, service string) {
			defer wg.Done()
			specs, err := r.listTools(ctx, service)
			results[i] = listing{service: service, specs: specs, err: err}
		}(i, service)
	}
	wg.Wait()

	var defs []domain.ToolDefinition
	var status Status
	for _, l := range results {
		if l.err != nil {
			r.logger.Warn("tool discovery failed", "service", l.service, "error", l.err)
			status.Unavailable = append(status.Unavailable, l.service)
			continue
		}
		status.Available = append(status.Available, l.service)
		for _, spec := range l.specs {
			defs = append(defs, r.toDefinition(l.service, spec))
		}
	}
	return defs, status
}

func (r *Registry) listTools(ctx context.Context, service string) ([]ToolSpec, error) {
	if specs, ok := r.schemaCache.Get(service); ok {
		return specs, nil
	}

	listCtx, cancel := context.WithTimeout(ctx, r.discoveryTimeout)
	defer cancel()

	specs, err := r.client.ListTools(listCtx, r.services[service])
	if err != nil {
		return nil, err
	}
	// Empty listings are not cached so a service that came up half-ready
	// gets re-queried on the next turn.
	if len(specs) > 0 {
		r.schemaCache.Add(service, specs)
		r.compileValidators(service, specs)
	}
	return specs, nil
}

func (r *Registry) toDefinition(service string, spec ToolSpec) domain.ToolDefinition {
	name := service + Separator + spec.Name
	description := spec.Description
	if description == "" {
		description = "Tool: " + spec.Name
	}

	var params any
	if len(spec.InputSchema) > 0 {
		if err := json.Unmarshal(spec.InputSchema, &params); err != nil {
			params = nil
		}
	}
	if params == nil {
		params = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return domain.ToolDefinition{Name: name, Description: description, Parameters: params}
}

func (r *Registry) compileValidators(service string, specs []ToolSpec) {
	for _, spec := range specs {
		if len(spec.InputSchema) == 0 {
			continue
		}
		var schema jsonschema.Schema
		if err := json.Unmarshal(spec.InputSchema, &schema); err != nil {
			r.logger.Warn("unparseable tool schema", "service", service, "tool", spec.Name, "error", err)
			continue
		}
		resolved, err := schema.Resolve(nil)
		if err != nil {
			r.logger.Warn("unresolvable tool schema", "service", service, "tool", spec.Name, "error", err)
			continue
		}
		r.validatorMu.Lock()
		r.validators[service+Separator+spec.Name] = resolved
		r.validatorMu.Unlock()
	}
}

func (r *Registry) validator(service, tool string) *jsonschema.Resolved {
	r.validatorMu.RLock()
	defer r.validatorMu.RUnlock()
	return r.validators[service+Separator+tool]
}

// Call invokes a tool on a service. An unknown service returns
// domain.ErrUnknownService; every other failure is reported inside the
// ToolResult so one bad tool never aborts a turn.
func (r *Registry) Call(ctx context.Context, service, tool string, args map[string]any) (domain.ToolResult, error) {
	endpoint, ok := r.services[service]
	if !ok {
		return domain.ToolResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownService, service)
	}

	if args == nil {
		args = map[string]any{}
	}

	if resolved := r.validator(service, tool); resolved != nil {
		if err := resolved.Validate(args); err != nil {
			return domain.ToolResult{
				Success: false,
				Error:   fmt.Sprintf("invalid arguments: %v", err),
				Service: service,
				Tool:    tool,
			}, nil
		}
	}

	key := resultKey(service, tool, args)
	if cached, ok := r.resultCache.Get(key); ok {
		cached.FromCache = true
		return cached, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	start := time.Now()
	data, err := r.client.CallTool(callCtx, endpoint, tool, args)
	if err != nil {
		r.logger.Warn("tool call failed",
			"service", service,
			"tool", tool,
			"duration", time.Since(start),
			"error", err)
		return domain.ToolResult{
			Success: false,
			Error:   err.Error(),
			Service: service,
			Tool:    tool,
		}, nil
	}

	result := domain.ToolResult{
		Success: true,
		Data:    data,
		Service: service,
		Tool:    tool,
	}
	r.resultCache.Add(key, result)
	r.logger.Debug("tool call succeeded",
		"service", service,
		"tool", tool,
		"duration", time.Since(start))
	return result, nil
}

// CallByName resolves a composite name and dispatches the call.
func (r *Registry) CallByName(ctx context.Context, name string, args map[string]any) (domain.ToolResult, error) {
	service, tool, ok := ParseName(name)
	if !ok {
		return domain.ToolResult{}, fmt.Errorf("%w: malformed tool name %q", domain.ErrUnknownService, name)
	}
	return r.Call(ctx, service, tool, args)
}

// resultKey builds a content-addressed cache key. Map keys marshal in sorted
// order, so equal argument sets always produce the same key.
func resultKey(service, tool string, args map[string]any) string {
	serialized, err := json.Marshal(args)
	if err != nil {
		serialized = []byte(fmt.Sprintf("%v", args))
	}
	return service + ":" + tool + ":" + string(serialized)
}
