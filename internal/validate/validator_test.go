package validate

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradewind-ai/tradewind/internal/domain"
)

func spotOutcome(symbol string, price any) domain.ToolOutcome {
	return domain.ToolOutcome{
		Service: "binance",
		Tool:    "get_spot_price",
		Args:    map[string]any{"symbol": symbol},
		Result: domain.ToolResult{
			Success: true,
			Data:    map[string]any{"symbol": symbol + "USDT", "price": price},
			Service: "binance",
			Tool:    "get_spot_price",
		},
	}
}

func TestExtractMentionsPatterns(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		symbol string
		value  float64
	}{
		{"chinese price marker", "BTC现在$67,234，建议观望", "BTC", 67234},
		{"symbol dollar", "ETH $ 3,200.50 is a key level", "ETH", 3200.50},
		{"parenthesized symbol", "support at $0.158 (DOGE)", "DOGE", 0.158},
		{"thousands shorthand", "BTC价格$67k附近", "BTC", 67000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mentions := ExtractMentions(tt.text)
			require.Len(t, mentions, 1)
			assert.Equal(t, tt.symbol, mentions[0].Symbol)
			assert.InDelta(t, tt.value, mentions[0].Value, 0.0001)
		})
	}
}

func TestExtractMentionsDeduplicatesBySymbol(t *testing.T) {
	mentions := ExtractMentions("BTC现在$67,000，目标BTC $70,000")
	require.Len(t, mentions, 1)
	assert.Equal(t, 67000.0, mentions[0].Value, "first occurrence wins")
}

func TestExtractMentionsNone(t *testing.T) {
	assert.Empty(t, ExtractMentions("市场情绪偏谨慎，建议观望"))
}

func TestValidateAcceptableDeviation(t *testing.T) {
	v := New(slog.Default())
	report := v.Validate("BTC现在$104,000", []domain.ToolOutcome{spotOutcome("BTC", "100000")})

	assert.True(t, report.Valid)
	assert.False(t, report.NeedsCorrection)
	assert.Empty(t, report.Warnings)
}

func TestValidateWarningDeviation(t *testing.T) {
	v := New(slog.Default())
	report := v.Validate("BTC现在$110,000", []domain.ToolOutcome{spotOutcome("BTC", "100000")})

	assert.True(t, report.Valid, "warnings do not block")
	assert.False(t, report.NeedsCorrection)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "price_deviation", report.Warnings[0].Type)
}

func TestValidateCriticalDeviation(t *testing.T) {
	v := New(slog.Default())
	report := v.Validate("BTC现在$125,000", []domain.ToolOutcome{spotOutcome("BTC", "100000")})

	assert.False(t, report.Valid)
	assert.True(t, report.NeedsCorrection)
	correction, ok := report.Corrections["BTC"]
	require.True(t, ok)
	assert.Equal(t, domain.SeverityCritical, correction.Severity)
	assert.Equal(t, 125000.0, correction.Mentioned)
	assert.Equal(t, 100000.0, correction.Actual)
}

func TestValidateMissingGroundTruth(t *testing.T) {
	v := New(slog.Default())
	report := v.Validate("ETH现在$3,200", []domain.ToolOutcome{spotOutcome("BTC", "100000")})

	assert.True(t, report.Valid, "missing data is a warning, not a failure")
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "missing_data", report.Warnings[0].Type)
	assert.Equal(t, "ETH", report.Warnings[0].Symbol)
}

func TestValidateNoMentions(t *testing.T) {
	v := New(slog.Default())
	report := v.Validate("建议观望，等待方向明确", []domain.ToolOutcome{spotOutcome("BTC", "100000")})
	assert.True(t, report.Valid)
	assert.Empty(t, report.Warnings)
}

func TestGroundTruthFieldFallbacks(t *testing.T) {
	outcomes := []domain.ToolOutcome{
		{
			Service: "binance", Tool: "get_ticker_24h",
			Args:   map[string]any{"symbol": "ETH"},
			Result: domain.ToolResult{Success: true, Data: map[string]any{"lastPrice": "3200.5"}},
		},
		{
			Service: "binance", Tool: "comprehensive_analysis",
			Args:   map[string]any{"symbol": "BTC"},
			Result: domain.ToolResult{Success: true, Data: map[string]any{"currentPrice": 100000.0}},
		},
	}

	truth := GroundTruth(outcomes)
	require.Contains(t, truth, "ETH")
	require.Contains(t, truth, "BTC")
	assert.Equal(t, 3200.5, truth["ETH"].Value)
	assert.Equal(t, "get_ticker_24h", truth["ETH"].Tool)
	assert.Equal(t, 100000.0, truth["BTC"].Value)
}

func TestGroundTruthAggregatorShape(t *testing.T) {
	outcomes := []domain.ToolOutcome{
		{
			Service: "coingecko", Tool: "get_price",
			Args: map[string]any{"ids": "bitcoin,dogecoin"},
			Result: domain.ToolResult{Success: true, Data: map[string]any{
				"bitcoin":  map[string]any{"usd": 100000.0},
				"dogecoin": map[string]any{"usd": 0.16},
			}},
		},
	}

	truth := GroundTruth(outcomes)
	require.Contains(t, truth, "BTC")
	require.Contains(t, truth, "DOGE")
	assert.Equal(t, 0.16, truth["DOGE"].Value)
	assert.Equal(t, "get_price", truth["BTC"].Tool)
}

func TestGroundTruthParsesStringPayload(t *testing.T) {
	outcomes := []domain.ToolOutcome{
		{
			Service: "binance", Tool: "get_spot_price",
			Args:   map[string]any{"symbol": "BTC"},
			Result: domain.ToolResult{Success: true, Data: `{"price":"100000"}`},
		},
	}
	truth := GroundTruth(outcomes)
	require.Contains(t, truth, "BTC")
	assert.Equal(t, 100000.0, truth["BTC"].Value)
}

func TestGroundTruthSkipsFailures(t *testing.T) {
	outcomes := []domain.ToolOutcome{
		{
			Service: "binance", Tool: "get_spot_price",
			Args:   map[string]any{"symbol": "BTC"},
			Result: domain.ToolResult{Success: false, Error: "timeout"},
		},
	}
	assert.Empty(t, GroundTruth(outcomes))
}

func TestCorrectionPromptListsFixes(t *testing.T) {
	report := domain.ValidationReport{
		NeedsCorrection: true,
		Corrections: map[string]domain.Correction{
			"BTC": {Symbol: "BTC", Mentioned: 125000, Actual: 100000, Deviation: 0.25, Severity: domain.SeverityCritical},
		},
	}
	prompt := CorrectionPrompt(report, []domain.ToolOutcome{spotOutcome("BTC", "100000")})

	assert.Contains(t, prompt, "BTC is actually $100000")
	assert.Contains(t, prompt, "not $125000")
	assert.Contains(t, prompt, "full replacement")
}

func TestFallbackDumpRendersBothOutcomes(t *testing.T) {
	outcomes := []domain.ToolOutcome{
		spotOutcome("BTC", "100000"),
		{
			Service: "binance", Tool: "get_funding_rate",
			Result: domain.ToolResult{Success: false, Error: "timeout"},
		},
	}
	dump := FallbackDump(outcomes)
	assert.Contains(t, dump, "get_spot_price")
	assert.Contains(t, dump, "100000")
	assert.Contains(t, dump, "Tool failed [binance:get_funding_rate]: timeout")
}
