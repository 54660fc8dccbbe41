// Package detect holds the text heuristics that decide whether a user turn
// must be grounded in live market data before the model answers.
package detect

import "regexp"

var (
	priceIntent = regexp.MustCompile(`(?i)价格|多少钱|多少|现价|当前价|行情|走势|分析|怎么样|如何|能涨|能跌|会涨|会跌|开多|开空|做多|做空|买入|卖出|上车|下车|建议|推荐|涨跌幅|成交量|资金费率|排行|price|trend`)

	longShortIntent = regexp.MustCompile(`(?i)开多|开空|做多|做空|买入|卖出|合约|杠杆|\blong\b|\bshort\b`)
)

// Detection is the outcome of the forced-tool heuristic for one user message.
type Detection struct {
	Symbols []string
	Forced  bool
}

// Symbols matches the message against the alias table and returns the
// detected instrument symbols in table order, each at most once.
func Symbols(text string) []string {
	var symbols []string
	for _, p := range symbolPatterns {
		if p.pattern.MatchString(text) {
			symbols = append(symbols, p.symbol)
		}
	}
	return symbols
}

// HasMarketIntent reports whether the message asks about price, trend, or a
// trade decision.
func HasMarketIntent(text string) bool {
	return priceIntent.MatchString(text)
}

// IsTradeDecision reports whether the message asks for directional trading
// advice, the case where the answer needs the full risk-indicator set.
func IsTradeDecision(text string) bool {
	return longShortIntent.MatchString(text)
}

// Check runs the forced-tool heuristic. A turn is forced when the message
// names exactly one instrument alongside a market-intent keyword; questions
// comparing several instruments are left to the model's own judgement.
func Check(text string) Detection {
	symbols := Symbols(text)
	return Detection{
		Symbols: symbols,
		Forced:  len(symbols) == 1 && HasMarketIntent(text),
	}
}
