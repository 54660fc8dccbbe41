// Package validate cross-checks numeric price claims in generated text
// against the tool results the turn actually fetched. It is a best-effort
// guardrail: it only catches deviations expressible as a bare number next to
// a recognizable symbol pattern.
package validate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tradewind-ai/tradewind/internal/detect"
	"github.com/tradewind-ai/tradewind/internal/domain"
)

const (
	// deviationThreshold is the point past which a mention is worth a warning.
	deviationThreshold = 0.05
	// extremeThreshold is the point past which the response must be regenerated.
	extremeThreshold = 0.20
)

var pricePatterns = []struct {
	re          *regexp.Regexp
	symbolFirst bool
}{
	// BTC现在$67,234 / BTC当前67234 / BTC价格$67k
	{regexp.MustCompile(`([A-Z]{2,10})(?:现在|当前|价格)\$?([\d,]+(?:\.\d+)?[kK]?)`), true},
	// BTC $67,234
	{regexp.MustCompile(`([A-Z]{2,10})\s*\$\s*([\d,]+(?:\.\d+)?[kK]?)`), true},
	// $67,234 (BTC)
	{regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?[kK]?)\s*\(([A-Z]{2,10})\)`), false},
}

// Validator checks generated text against ground-truth tool data.
type Validator struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger}
}

// Validate extracts every price claim from the text, resolves ground truth
// from the tool outcomes, and classifies deviations. Deviation above 20% is
// critical and demands regeneration; 5-20% is a logged warning; a mention
// with no ground truth is a missing-data warning, never a failure.
func (v *Validator) Validate(text string, outcomes []domain.ToolOutcome) domain.ValidationReport {
	report := domain.ValidationReport{
		Valid:       true,
		Corrections: make(map[string]domain.Correction),
	}

	mentions := ExtractMentions(text)
	if len(mentions) == 0 {
		return report
	}

	truth := GroundTruth(outcomes)

	for _, mention := range mentions {
		actual, ok := truth[mention.Symbol]
		if !ok {
			report.Warnings = append(report.Warnings, domain.ValidationWarning{
				Type:    "missing_data",
				Symbol:  mention.Symbol,
				Message: fmt.Sprintf("no ground-truth price for %s", mention.Symbol),
			})
			continue
		}

		deviation := abs(mention.Value-actual.Value) / actual.Value
		switch {
		case deviation > extremeThreshold:
			report.Valid = false
			report.NeedsCorrection = true
			report.Corrections[mention.Symbol] = domain.Correction{
				Symbol:    mention.Symbol,
				Mentioned: mention.Value,
				Actual:    actual.Value,
				Deviation: deviation,
				Severity:  domain.SeverityCritical,
			}
			report.Warnings = append(report.Warnings, domain.ValidationWarning{
				Type:      "critical_deviation",
				Symbol:    mention.Symbol,
				Mentioned: mention.Value,
				Actual:    actual.Value,
				Deviation: deviation,
				Message: fmt.Sprintf("%s price off by %.2f%% (said $%v, actual $%v)",
					mention.Symbol, deviation*100, mention.Value, actual.Value),
			})
			v.logger.Warn("critical price deviation",
				"symbol", mention.Symbol,
				"mentioned", mention.Value,
				"actual", actual.Value,
				"deviation", deviation)
		case deviation > deviationThreshold:
			report.Warnings = append(report.Warnings, domain.ValidationWarning{
				Type:      "price_deviation",
				Symbol:    mention.Symbol,
				Mentioned: mention.Value,
				Actual:    actual.Value,
				Deviation: deviation,
				Message: fmt.Sprintf("%s price off by %.2f%% (said $%v, actual $%v)",
					mention.Symbol, deviation*100, mention.Value, actual.Value),
			})
		}
	}

	return report
}

// ExtractMentions pulls (symbol, value) claims out of generated text using
// the three surface patterns, deduplicated by symbol keeping the first
// occurrence across patterns.
func ExtractMentions(text string) []domain.PriceMention {
	var mentions []domain.PriceMention
	seen := make(map[string]bool)

	for _, p := range pricePatterns {
		for _, match := range p.re.FindAllStringSubmatchIndex(text, -1) {
			var symbol, raw string
			if p.symbolFirst {
				symbol = text[match[2]:match[3]]
				raw = text[match[4]:match[5]]
			} else {
				raw = text[match[2]:match[3]]
				symbol = text[match[4]:match[5]]
			}
			symbol = strings.ToUpper(symbol)

			value, ok := parsePrice(raw)
			if !ok || seen[symbol] {
				continue
			}
			seen[symbol] = true
			mentions = append(mentions, domain.PriceMention{
				Symbol:   symbol,
				Value:    value,
				Position: match[0],
			})
		}
	}
	return mentions
}

// parsePrice normalizes "67,234", "67234.5", and the shorthand "67k".
func parsePrice(raw string) (float64, bool) {
	raw = strings.ReplaceAll(raw, ",", "")
	thousands := false
	if lower := strings.ToLower(raw); strings.HasSuffix(lower, "k") {
		raw = lower[:len(lower)-1]
		thousands = true
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	if thousands {
		value *= 1000
	}
	return value, true
}

// GroundTruth builds the authoritative symbol->price map from successful tool
// outcomes. Only tools known to carry a price-like field contribute.
func GroundTruth(outcomes []domain.ToolOutcome) map[string]domain.GroundTruthPrice {
	truth := make(map[string]domain.GroundTruthPrice)

	for _, outcome := range outcomes {
		if !outcome.Result.Success {
			continue
		}
		data, ok := asMap(outcome.Result.Data)
		if !ok {
			continue
		}

		switch outcome.Tool {
		case "get_spot_price", "get_ticker_24h":
			symbol, _ := outcome.Args["symbol"].(string)
			if price, ok := firstNumber(data, "price", "lastPrice", "last"); ok && symbol != "" {
				truth[strings.ToUpper(symbol)] = domain.GroundTruthPrice{
					Symbol:  strings.ToUpper(symbol),
					Value:   price,
					Service: outcome.Service,
					Tool:    outcome.Tool,
				}
			}
		case "comprehensive_analysis":
			symbol, _ := outcome.Args["symbol"].(string)
			if price, ok := firstNumber(data, "currentPrice", "price"); ok && symbol != "" {
				truth[strings.ToUpper(symbol)] = domain.GroundTruthPrice{
					Symbol:  strings.ToUpper(symbol),
					Value:   price,
					Service: outcome.Service,
					Tool:    outcome.Tool,
				}
			}
		case "get_price":
			// Aggregator shape: {"bitcoin": {"usd": 67234}}
			for coinID, entry := range data {
				coinData, ok := asMap(entry)
				if !ok {
					continue
				}
				price, ok := toNumber(coinData["usd"])
				if !ok {
					continue
				}
				symbol, known := detect.SymbolForCoinID(coinID)
				if !known {
					symbol = strings.ToUpper(coinID)
				}
				truth[symbol] = domain.GroundTruthPrice{
					Symbol:  symbol,
					Value:   price,
					Service: outcome.Service,
					Tool:    outcome.Tool,
				}
			}
		}
	}
	return truth
}

func asMap(data any) (map[string]any, bool) {
	switch v := data.(type) {
	case map[string]any:
		return v, true
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			return parsed, true
		}
	}
	return nil, false
}

func firstNumber(data map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if value, ok := toNumber(data[key]); ok {
			return value, true
		}
	}
	return 0, false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// CorrectionPrompt builds the regeneration instruction listing the corrected
// values and the full tool-result set, asking for a complete replacement.
func CorrectionPrompt(report domain.ValidationReport, outcomes []domain.ToolOutcome) string {
	var fixes []string
	for symbol, c := range report.Corrections {
		fixes = append(fixes, fmt.Sprintf("%s is actually $%v (not $%v)", symbol, c.Actual, c.Mentioned))
	}

	var b strings.Builder
	b.WriteString("Price errors detected: ")
	b.WriteString(strings.Join(fixes, "; "))
	b.WriteString("\n\nRegenerate the complete analysis using this actual data:\n\n")
	b.WriteString(FallbackDump(outcomes))
	b.WriteString("\n\nRequirements:\n")
	b.WriteString("1. Use the actual prices from the tool data above.\n")
	b.WriteString("2. Recompute every dependent figure (entry, stop, target levels).\n")
	b.WriteString("3. Return a full replacement answer, not a patch.\n")
	b.WriteString("4. Do not mention that a correction happened.")
	return b.String()
}

// FallbackDump renders the tool outcomes as literal text, used when the
// regeneration call itself fails and hallucinated numbers must not reach the
// user.
func FallbackDump(outcomes []domain.ToolOutcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.Result.Success {
			payload, err := json.MarshalIndent(outcome.Result.Data, "", "  ")
			if err != nil {
				payload = []byte(fmt.Sprintf("%v", outcome.Result.Data))
			}
			parts = append(parts, fmt.Sprintf("Tool succeeded [%s:%s]:\n%s", outcome.Service, outcome.Tool, payload))
		} else {
			parts = append(parts, fmt.Sprintf("Tool failed [%s:%s]: %s", outcome.Service, outcome.Tool, outcome.Result.Error))
		}
	}
	return strings.Join(parts, "\n\n")
}
