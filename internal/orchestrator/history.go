package orchestrator

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tradewind-ai/tradewind/internal/domain"
)

const (
	defaultHistoryWindow = 10
	defaultTokenBudget   = 6000
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func countTokens(text string) int {
	codecOnce.Do(func() {
		codec, _ = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codec == nil {
		// Rough fallback when the encoding tables are unavailable.
		return len(text) / 4
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}

// recentHistory returns the trailing window of a session's messages, further
// trimmed from the front until the window fits the token budget. The newest
// message is always kept.
func recentHistory(messages []domain.Message, window, tokenBudget int) []domain.Message {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	if tokenBudget <= 0 {
		tokenBudget = defaultTokenBudget
	}

	start := len(messages) - window
	if start < 0 {
		start = 0
	}
	recent := messages[start:]

	total := 0
	for _, msg := range recent {
		total += countTokens(msg.Content)
	}
	for total > tokenBudget && len(recent) > 1 {
		total -= countTokens(recent[0].Content)
		recent = recent[1:]
	}
	return recent
}
