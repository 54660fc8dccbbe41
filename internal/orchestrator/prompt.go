package orchestrator

import (
	"fmt"
	"strings"

	"github.com/tradewind-ai/tradewind/internal/tools"
)

// defaultSystemPrompt frames the assistant as a direct, professional trading
// advisor that grounds every market claim in tool data.
const defaultSystemPrompt = `You are a professional cryptocurrency trading assistant serving active traders.

Identity:
- Talk like an experienced trader: direct, specific, no filler.
- Give a clear direction and a probability, never hedge into vagueness.
- Acknowledge risk once, then get to the point.

Rules:
1. Every price, trend, or trading question must be grounded in live tool data. Never answer from memory.
2. When asked for a trade direction (long/short, buy/sell), state the direction, a probability, an entry, a stop, and a target.
3. Symbols are uppercase tickers (BTC, not btc). Users may name coins in Chinese or English aliases; resolve them to the ticker.
4. Use compact price notation in prose ($67k rather than $67,000) but keep exact figures for entries and stops.`

const disclaimerNote = `

Session note: this is the first message of the session. Prepend a one-line risk reminder that cryptocurrency trading is high risk and suggestions are informational only, and say the reminder appears only once.`

const forcedToolNote = `

This question is about %s. You must call the relevant market-data tools for %s in this response. Do not ask clarifying questions first; tools will not be offered again this turn.`

// buildSystemPrompt assembles the system message for round one: base
// instructions, service availability, and the once-per-session disclaimer.
func (o *Orchestrator) buildSystemPrompt(status tools.Status, showDisclaimer bool) string {
	var b strings.Builder
	b.WriteString(o.systemPrompt)

	if len(status.Available) > 0 {
		b.WriteString("\n\nAvailable data services: ")
		b.WriteString(strings.Join(status.Available, ", "))
	}
	if len(status.Unavailable) > 0 {
		b.WriteString("\nCurrently unavailable services: ")
		b.WriteString(strings.Join(status.Unavailable, ", "))
		b.WriteString(". Do not rely on them this turn.")
	}
	if showDisclaimer {
		b.WriteString(disclaimerNote)
	}
	return b.String()
}

// followUpSystemPrompt is the round-two system message: same instructions
// with tools marked unavailable so the model cannot ask for more.
func (o *Orchestrator) followUpSystemPrompt(showDisclaimer bool) string {
	prompt := o.systemPrompt + "\n\nTools have already been executed for this turn and are no longer available."
	if showDisclaimer {
		prompt += disclaimerNote
	}
	return prompt
}

func forcedInstruction(symbol string) string {
	return fmt.Sprintf(forcedToolNote, symbol, symbol)
}

const followUpInstruction = `Tool execution results:
%s

Answer the user's question concisely and professionally based on the data above. Do not request any tools, and do not mention tool or service names in your answer.`
