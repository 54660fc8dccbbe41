package detect

import "regexp"

// symbolPattern binds one instrument symbol to the surface forms users write
// it as. Latin aliases match on word boundaries; Chinese aliases match as
// plain substrings since \b does not apply to CJK text.
type symbolPattern struct {
	symbol  string
	pattern *regexp.Regexp
}

// The alias table is ordered: the first matching entry decides the primary
// instrument for a message that names several.
var symbolPatterns = []symbolPattern{
	{"BTC", regexp.MustCompile(`(?i)\b(btc|bitcoin)\b|比特币|大饼`)},
	{"ETH", regexp.MustCompile(`(?i)\b(eth|ethereum)\b|以太坊|以太|姨太`)},
	{"BNB", regexp.MustCompile(`(?i)\b(bnb|binance coin)\b|币安币|币安`)},
	{"XRP", regexp.MustCompile(`(?i)\bxrp\b|瑞波币|瑞波`)},
	{"SOL", regexp.MustCompile(`(?i)\b(sol|solana)\b|索拉纳`)},
	{"ADA", regexp.MustCompile(`(?i)\b(ada|cardano)\b|艾达币`)},
	{"DOGE", regexp.MustCompile(`(?i)\b(doge|dogecoin)\b|狗狗币|狗币|狗子`)},
	{"SHIB", regexp.MustCompile(`(?i)\bshib\b|柴犬币`)},
	{"PEPE", regexp.MustCompile(`(?i)\bpepe\b|佩佩|青蛙币`)},
	{"MATIC", regexp.MustCompile(`(?i)\b(matic|polygon)\b|马蹄`)},
	{"AVAX", regexp.MustCompile(`(?i)\b(avax|avalanche)\b|雪崩`)},
	{"DOT", regexp.MustCompile(`(?i)\b(dot|polkadot)\b|波卡`)},
	{"LINK", regexp.MustCompile(`(?i)\b(link|chainlink)\b`)},
	{"UNI", regexp.MustCompile(`(?i)\b(uni|uniswap)\b`)},
	{"ARB", regexp.MustCompile(`(?i)\b(arb|arbitrum)\b`)},
	{"OP", regexp.MustCompile(`(?i)\b(op|optimism)\b`)},
	{"APT", regexp.MustCompile(`(?i)\b(apt|aptos)\b`)},
	{"SUI", regexp.MustCompile(`(?i)\bsui\b`)},
	{"AAVE", regexp.MustCompile(`(?i)\baave\b`)},
	{"CRV", regexp.MustCompile(`(?i)\b(crv|curve)\b`)},
	{"MKR", regexp.MustCompile(`(?i)\b(mkr|maker)\b`)},
	{"COMP", regexp.MustCompile(`(?i)\b(comp|compound)\b`)},
	{"FLOKI", regexp.MustCompile(`(?i)\bfloki\b`)},
	{"BONK", regexp.MustCompile(`(?i)\bbonk\b`)},
}

// coinIDToSymbol maps aggregator coin identifiers, as returned by price
// feeds keyed by id rather than ticker, back to exchange symbols.
var coinIDToSymbol = map[string]string{
	"bitcoin":                   "BTC",
	"ethereum":                  "ETH",
	"binancecoin":               "BNB",
	"ripple":                    "XRP",
	"solana":                    "SOL",
	"cardano":                   "ADA",
	"dogecoin":                  "DOGE",
	"shiba-inu":                 "SHIB",
	"pepe":                      "PEPE",
	"matic-network":             "MATIC",
	"avalanche-2":               "AVAX",
	"polkadot":                  "DOT",
	"chainlink":                 "LINK",
	"uniswap":                   "UNI",
	"arbitrum":                  "ARB",
	"optimism":                  "OP",
	"aptos":                     "APT",
	"sui":                       "SUI",
	"aave":                      "AAVE",
	"curve-dao-token":           "CRV",
	"maker":                     "MKR",
	"compound-governance-token": "COMP",
	"floki":                     "FLOKI",
	"bonk":                      "BONK",
}

// SymbolForCoinID resolves an aggregator coin id to its exchange symbol.
func SymbolForCoinID(id string) (string, bool) {
	symbol, ok := coinIDToSymbol[id]
	return symbol, ok
}

// KnownSymbols returns every symbol the alias table can detect.
func KnownSymbols() []string {
	symbols := make([]string, len(symbolPatterns))
	for i, p := range symbolPatterns {
		symbols[i] = p.symbol
	}
	return symbols
}
