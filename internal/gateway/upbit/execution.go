package upbit

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"spotguard/internal/exchange"
	symbolpkg "spotguard/internal/pkg/symbol"

	"github.com/shopspring/decimal"
)

func (c *Client) QuoteAsset() string { return c.cfg.QuoteAsset }

func (c *Client) BaseAsset(symbol string) string { return symbolpkg.Parse(symbol).Base }

func (c *Client) Balances(ctx context.Context) ([]exchange.Balance, error) {
	var accounts []account
	if _, err := c.do(ctx, http.MethodGet, "/v1/accounts", nil, true, &accounts); err != nil {
		return nil, fmt.Errorf("%w: accounts: %w", exchange.ErrUnavailable, err)
	}
	out := make([]exchange.Balance, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, exchange.Balance{
			Asset:       strings.ToUpper(a.Currency),
			Free:        a.Balance,
			Locked:      a.Locked,
			AvgBuyPrice: a.AvgBuyPrice,
		})
	}
	return out, nil
}

func (c *Client) Balance(ctx context.Context, asset string) (decimal.Decimal, error) {
	list, err := c.Balances(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return exchange.FindBalance(list, asset).Free, nil
}

// MarketBuy 以 ord_type=price 下市价买单，price 为计价币金额。
func (c *Client) MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (exchange.FillResult, error) {
	params := url.Values{
		"market":   {symbolpkg.Upbit.ToExchange(symbol)},
		"side":     {"bid"},
		"ord_type": {"price"},
		"price":    {quoteAmount.Truncate(0).String()},
	}
	return c.placeOrder(ctx, symbol, exchange.SideBuy, params)
}

// MarketSell 以 ord_type=market 下市价卖单，volume 为基础币数量。
func (c *Client) MarketSell(ctx context.Context, symbol string, baseAmount decimal.Decimal) (exchange.FillResult, error) {
	params := url.Values{
		"market":   {symbolpkg.Upbit.ToExchange(symbol)},
		"side":     {"ask"},
		"ord_type": {"market"},
		"volume":   {baseAmount.String()},
	}
	return c.placeOrder(ctx, symbol, exchange.SideSell, params)
}

func (c *Client) placeOrder(ctx context.Context, symbol string, side exchange.Side, params url.Values) (exchange.FillResult, error) {
	result := exchange.FillResult{Symbol: symbol, Side: side}
	var placed order
	raw, err := c.do(ctx, http.MethodPost, "/v1/orders", params, true, &placed)
	result.Raw = string(raw)
	if err != nil {
		return result, fmt.Errorf("place %s order %s: %w", side, symbol, err)
	}
	result.OrderID = placed.UUID
	result.Status = placed.State
	final := placed
	for i := 0; i < c.cfg.FillPolls && !terminal(final.State); i++ {
		if err := c.sleep(ctx, c.cfg.FillSettle); err != nil {
			return result, err
		}
		var polled order
		pollRaw, err := c.do(ctx, http.MethodGet, "/v1/order", url.Values{"uuid": {placed.UUID}}, true, &polled)
		if err != nil {
			// 查询失败不代表未成交，保留已知状态交由上层按余额确认
			result.Raw = string(raw) + "\n" + string(pollRaw)
			return result, nil
		}
		final = polled
		raw = pollRaw
	}
	fillFrom(&result, final)
	result.Raw = string(raw)
	return result, nil
}

func terminal(state string) bool {
	return state == "done" || state == "cancel"
}

func fillFrom(result *exchange.FillResult, o order) {
	result.Status = o.State
	result.ExecutedQty = o.ExecutedVolume
	funds := decimal.Zero
	for _, t := range o.Trades {
		funds = funds.Add(t.Funds)
	}
	result.QuoteQty = funds
	if o.ExecutedVolume.IsPositive() {
		result.AvgPrice = funds.Div(o.ExecutedVolume)
	}
	result.Filled = terminal(o.State) && o.ExecutedVolume.IsPositive()
}
