package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"spotguard/internal/market"
	symbolpkg "spotguard/internal/pkg/symbol"

	"github.com/shopspring/decimal"
)

const maxCandleCount = 200

func (c *Client) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	mkt := symbolpkg.Upbit.ToExchange(symbol)
	if mkt == "" {
		return decimal.Zero, fmt.Errorf("invalid symbol %q", symbol)
	}
	var out []ticker
	if _, err := c.do(ctx, http.MethodGet, "/v1/ticker", url.Values{"markets": {mkt}}, false, &out); err != nil {
		return decimal.Zero, fmt.Errorf("%w: ticker %s: %w", market.ErrUnavailable, symbol, err)
	}
	if len(out) == 0 || !out[0].TradePrice.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: empty ticker for %s", market.ErrUnavailable, symbol)
	}
	return out[0].TradePrice, nil
}

// RecentCandles 拉取 1 分钟 K 线并转为时间升序。
func (c *Client) RecentCandles(ctx context.Context, symbol string, n int) ([]market.Candle, error) {
	mkt := symbolpkg.Upbit.ToExchange(symbol)
	if mkt == "" {
		return nil, fmt.Errorf("invalid symbol %q", symbol)
	}
	if n <= 0 {
		n = 2
	}
	if n > maxCandleCount {
		n = maxCandleCount
	}
	params := url.Values{"market": {mkt}, "count": {strconv.Itoa(n)}}
	var raw []minuteCandle
	if _, err := c.do(ctx, http.MethodGet, "/v1/candles/minutes/1", params, false, &raw); err != nil {
		return nil, fmt.Errorf("%w: candles %s: %w", market.ErrUnavailable, symbol, err)
	}
	out := make([]market.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		k := raw[i]
		out = append(out, market.Candle{
			OpenTime:    k.Timestamp,
			Open:        k.OpeningPrice,
			High:        k.HighPrice,
			Low:         k.LowPrice,
			Close:       k.TradePrice,
			Volume:      k.CandleAccTradeVolume,
			QuoteVolume: k.CandleAccTradePrice,
		})
	}
	return out, nil
}

// Symbols 返回当前计价币下的全部交易对。
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var list []marketInfo
	if _, err := c.do(ctx, http.MethodGet, "/v1/market/all", nil, false, &list); err != nil {
		return nil, fmt.Errorf("%w: market list: %w", market.ErrUnavailable, err)
	}
	out := make([]string, 0, len(list))
	for _, m := range list {
		sym := symbolpkg.Parse(m.Market)
		if sym.Quote != c.cfg.QuoteAsset {
			continue
		}
		out = append(out, sym.Internal())
	}
	return out, nil
}
