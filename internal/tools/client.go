// Package tools discovers callable tools from JSON-RPC tool services,
// exposes them in the model's function-calling shape, and dispatches
// invocations with caching and normalized results.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ToolSpec is a tool as declared by a service's tools/list response.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Client speaks JSON-RPC 2.0 over HTTP POST to tool services.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a tool-service client. The per-call deadline comes from
// the caller's context, not the HTTP client.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient}
}

// ListTools issues a tools/list request to the given endpoint.
func (c *Client) ListTools(ctx context.Context, endpoint string) ([]ToolSpec, error) {
	result, err := c.post(ctx, endpoint, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Tools []ToolSpec `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil, fmt.Errorf("malformed tools/list result: %w", err)
	}
	return payload.Tools, nil
}

// CallTool issues a tools/call request and returns the normalized payload:
// the first content text when present (unwrapped one level if it is a
// JSON-encoded string), otherwise the raw result.
func (c *Client) CallTool(ctx context.Context, endpoint, tool string, args map[string]any) (any, error) {
	result, err := c.post(ctx, endpoint, "tools/call", map[string]any{
		"name":      tool,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	return normalizeResult(result), nil
}

func (c *Client) post(ctx context.Context, endpoint, method string, params any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      time.Now().UnixMilli(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Message != "" {
			return nil, fmt.Errorf("%s", rpcResp.Error.Message)
		}
		return nil, fmt.Errorf("tool service error %d", rpcResp.Error.Code)
	}
	return rpcResp.Result, nil
}

// normalizeResult extracts result.content[0].text when the response follows
// the content envelope, then unwraps exactly one level of JSON-encoded
// string so downstream consumers always see structured data.
func normalizeResult(raw json.RawMessage) any {
	var envelope struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}

	var data any
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Content) > 0 && envelope.Content[0].Text != "" {
		data = envelope.Content[0].Text
	} else if err := json.Unmarshal(raw, &data); err != nil {
		data = string(raw)
	}

	if text, ok := data.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(strings.ReplaceAll(text, "\n", "")), &parsed); err == nil {
			return parsed
		}
	}
	return data
}
