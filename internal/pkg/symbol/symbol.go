// Package symbol 统一内部交易对格式（BASE/QUOTE）与交易所格式之间的转换。
package symbol

import "strings"

type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) valid() bool { return s.Base != "" && s.Quote != "" }

func (s Symbol) Internal() string {
	if !s.valid() {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Upbit 返回 QUOTE-BASE 形式，例如 KRW-BTC。
func (s Symbol) Upbit() string {
	if !s.valid() {
		return ""
	}
	return s.Quote + "-" + s.Base
}

// Binance 返回无分隔符形式，例如 BTCUSDT。
func (s Symbol) Binance() string {
	if !s.valid() {
		return ""
	}
	return s.Base + s.Quote
}

// knownQuotes 用于拆分无分隔符写法，按顺序匹配后缀，稳定币优先于 BTC/ETH/BNB。
var knownQuotes = []string{"FDUSD", "USDT", "USDC", "BUSD", "KRW", "BTC", "ETH", "BNB"}

// Parse 识别 BTC/KRW、KRW-BTC 与 BTCUSDT 三种写法，无法识别时返回零值。
func Parse(raw string) Symbol {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if base, quote, ok := strings.Cut(s, "/"); ok {
		return Symbol{Base: strings.TrimSpace(base), Quote: strings.TrimSpace(quote)}
	}
	if quote, base, ok := strings.Cut(s, "-"); ok {
		return Symbol{Base: strings.TrimSpace(base), Quote: strings.TrimSpace(quote)}
	}
	for _, quote := range knownQuotes {
		if base, ok := strings.CutSuffix(s, quote); ok && base != "" {
			return Symbol{Base: base, Quote: quote}
		}
	}
	return Symbol{}
}

func Normalize(raw string) string {
	return Parse(raw).Internal()
}

func IsValid(raw string) bool {
	return Parse(raw).valid()
}

// WithQuote 把裸币种（"btc"）补全为 BASE/QUOTE；已带计价币的写法原样规范化。
func WithQuote(raw, quote string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	if norm := Normalize(s); norm != "" {
		return norm
	}
	return Symbol{Base: s, Quote: strings.ToUpper(strings.TrimSpace(quote))}.Internal()
}

// Codec 在内部格式和某个交易所的原始格式之间转换。
type Codec struct {
	venue string
	fn    func(Symbol) string
}

var (
	Upbit   = Codec{venue: "upbit", fn: Symbol.Upbit}
	Binance = Codec{venue: "binance", fn: Symbol.Binance}
)

func (c Codec) Venue() string { return c.venue }

func (c Codec) ToExchange(internal string) string {
	return c.fn(Parse(internal))
}

func (c Codec) FromExchange(raw string) string {
	return Normalize(raw)
}
