package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openaiapi "github.com/tradewind-ai/tradewind/internal/api/openai"
	"github.com/tradewind-ai/tradewind/internal/domain"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.apiOpts = append(c.apiOpts, openaiapi.WithHTTPClient(httpClient))
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client wraps one OpenAI-compatible backend with rolling statistics.
type Client struct {
	name    string
	model   string
	api     *openaiapi.Client
	apiOpts []openaiapi.ClientOption
	stats   Stats
	logger  *slog.Logger
}

// New creates a provider client for the named backend.
func New(name, baseURL, apiKey, model string, opts ...ClientOption) *Client {
	c := &Client{
		name:   name,
		model:  model,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api = openaiapi.NewClient(baseURL, apiKey, c.apiOpts...)
	return c
}

func (c *Client) Name() string { return c.name }

// Model returns the backend model id this client requests.
func (c *Client) Model() string { return c.model }

// Stats returns an immutable snapshot of the client's statistics.
func (c *Client) Stats() StatsSnapshot { return c.stats.Snapshot() }

// Complete issues one non-streaming completion. Network errors, non-2xx
// responses, and malformed bodies are all captured as a structured failure.
func (c *Client) Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) domain.Completion {
	start := time.Now()

	resp, err := c.api.CreateChatCompletion(ctx, c.buildRequest(messages, opts))
	latency := time.Since(start)
	if err != nil {
		c.stats.Record(latency, false)
		return c.failure(err, latency)
	}
	if len(resp.Choices) == 0 {
		c.stats.Record(latency, false)
		return c.failure(fmt.Errorf("empty choices in response"), latency)
	}

	c.stats.Record(latency, true)
	msg := resp.Choices[0].Message
	return domain.Completion{
		Success:   true,
		Content:   msg.Content,
		ToolCalls: toIntents(msg.ToolCalls),
		Model:     c.name,
		Latency:   latency,
	}
}

// CompleteStream issues a streaming completion, invoking onDelta for every
// content fragment. Indexed tool-call fragments are folded internally and
// surface only in the returned summary.
func (c *Client) CompleteStream(ctx context.Context, messages []domain.Message, onDelta func(content string), opts domain.CompletionOptions) domain.Completion {
	start := time.Now()

	stream, err := c.api.StreamChatCompletion(ctx, c.buildRequest(messages, opts))
	if err != nil {
		latency := time.Since(start)
		c.stats.Record(latency, false)
		return c.failure(err, latency)
	}

	var content strings.Builder
	accum := newToolCallAccumulator()

	for result := range stream {
		if result.Err != nil {
			latency := time.Since(start)
			c.stats.Record(latency, false)
			return c.failure(result.Err, latency)
		}
		if len(result.Chunk.Choices) == 0 {
			continue
		}
		delta := result.Chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			accum.Fold(tc)
		}
	}

	latency := time.Since(start)
	intents, err := accum.Finalize()
	if err != nil {
		c.stats.Record(latency, false)
		return c.failure(fmt.Errorf("malformed tool call stream: %w", err), latency)
	}

	c.stats.Record(latency, true)
	return domain.Completion{
		Success:   true,
		Content:   content.String(),
		ToolCalls: intents,
		Model:     c.name,
		Latency:   latency,
	}
}

func (c *Client) buildRequest(messages []domain.Message, opts domain.CompletionOptions) *openaiapi.ChatCompletionRequest {
	temp := opts.Temperature
	if temp == 0 {
		temp = defaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	apiMessages := make([]openaiapi.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		apiMessages[i] = openaiapi.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			apiMessages[i].ToolCalls = append(apiMessages[i].ToolCalls, openaiapi.ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openaiapi.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
	}

	req := &openaiapi.ChatCompletionRequest{
		Model:       c.model,
		Messages:    apiMessages,
		Temperature: &temp,
		MaxTokens:   maxTokens,
	}

	if len(opts.Tools) > 0 {
		req.Tools = make([]openaiapi.Tool, len(opts.Tools))
		for i, t := range opts.Tools {
			req.Tools[i] = openaiapi.Tool{
				Type: "function",
				Function: openaiapi.FunctionTool{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		if opts.ToolChoice != "" {
			req.ToolChoice = opts.ToolChoice
		}
	}
	return req
}

// failure builds a structured failure, translating known upstream failure
// categories into distinguishable messages.
func (c *Client) failure(err error, latency time.Duration) domain.Completion {
	msg := err.Error()
	upper := strings.ToUpper(c.name)

	var apiErr *openaiapi.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusPaymentRequired || strings.Contains(apiErr.Message, "Insufficient Balance"):
			msg = fmt.Sprintf("%s API quota exhausted, top up to continue", upper)
		case apiErr.Status == http.StatusBadRequest && (strings.Contains(apiErr.Message, "Arrearage") || strings.Contains(apiErr.Message, "Access denied")):
			msg = fmt.Sprintf("%s API account suspended for arrears", upper)
		default:
			msg = fmt.Sprintf("%s API error: %s", upper, apiErr.Message)
		}
	}

	c.logger.Warn("provider call failed",
		slog.String("provider", c.name),
		slog.Duration("latency", latency),
		slog.String("error", msg))

	return domain.Completion{
		Success: false,
		Error:   msg,
		Model:   c.name,
		Latency: latency,
	}
}

func toIntents(calls []openaiapi.ToolCall) []domain.ToolCallIntent {
	if len(calls) == 0 {
		return nil
	}
	intents := make([]domain.ToolCallIntent, len(calls))
	for i, tc := range calls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		intents[i] = domain.ToolCallIntent{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		}
	}
	return intents
}
