package provider

import (
	"encoding/json"
	"fmt"

	openaiapi "github.com/tradewind-ai/tradewind/internal/api/openai"
	"github.com/tradewind-ai/tradewind/internal/domain"
)

// toolCallAccumulator folds streamed tool-call fragments, keyed by fragment
// index. A call's id, name, and arguments may each arrive split across
// several frames; name and arguments are concatenated in arrival order.
type toolCallAccumulator struct {
	calls map[int]*partialToolCall
}

type partialToolCall struct {
	id   string
	name string
	args string
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[int]*partialToolCall)}
}

// Fold merges one fragment into the accumulator.
func (a *toolCallAccumulator) Fold(tc openaiapi.ToolCallChunk) {
	p, ok := a.calls[tc.Index]
	if !ok {
		p = &partialToolCall{}
		a.calls[tc.Index] = p
	}
	if tc.ID != "" {
		p.id = tc.ID
	}
	if tc.Function != nil {
		p.name += tc.Function.Name
		p.args += tc.Function.Arguments
	}
}

// Finalize converts the accumulated fragments into tool-call intents in
// index order. An accumulation whose name never arrived is rejected rather
// than silently producing a malformed call.
func (a *toolCallAccumulator) Finalize() ([]domain.ToolCallIntent, error) {
	if len(a.calls) == 0 {
		return nil, nil
	}

	maxIdx := 0
	for idx := range a.calls {
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	intents := make([]domain.ToolCallIntent, 0, len(a.calls))
	for idx := 0; idx <= maxIdx; idx++ {
		p, ok := a.calls[idx]
		if !ok {
			continue
		}
		if p.name == "" {
			return nil, fmt.Errorf("tool call at index %d has no name", idx)
		}
		id := p.id
		if id == "" {
			id = fmt.Sprintf("call_%d", idx)
		}
		args := p.args
		if args == "" {
			args = "{}"
		}
		intents = append(intents, domain.ToolCallIntent{
			ID:        id,
			Name:      p.name,
			Arguments: json.RawMessage(args),
		})
	}
	return intents, nil
}
