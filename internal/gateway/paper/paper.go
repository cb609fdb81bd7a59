// Package paper 在真实行情上模拟市价成交，余额只存在内存中。
package paper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"spotguard/internal/exchange"
	"spotguard/internal/market"
	"spotguard/internal/pkg/pct"
	symbolpkg "spotguard/internal/pkg/symbol"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Config struct {
	QuoteAsset   string
	QuoteBalance decimal.Decimal
	FeePct       decimal.Decimal
}

type Exchange struct {
	quote  string
	fee    decimal.Decimal
	prices market.Data

	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func New(cfg Config, prices market.Data) *Exchange {
	quote := strings.ToUpper(strings.TrimSpace(cfg.QuoteAsset))
	return &Exchange{
		quote:    quote,
		fee:      cfg.FeePct,
		prices:   prices,
		balances: map[string]decimal.Decimal{quote: cfg.QuoteBalance},
	}
}

func (e *Exchange) Name() string { return "paper" }

func (e *Exchange) QuoteAsset() string { return e.quote }

func (e *Exchange) BaseAsset(symbol string) string { return symbolpkg.Parse(symbol).Base }

func (e *Exchange) Balance(_ context.Context, asset string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[strings.ToUpper(asset)], nil
}

func (e *Exchange) Balances(context.Context) ([]exchange.Balance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]exchange.Balance, 0, len(e.balances))
	for asset, amt := range e.balances {
		if amt.IsZero() {
			continue
		}
		out = append(out, exchange.Balance{Asset: asset, Free: amt})
	}
	return out, nil
}

func (e *Exchange) MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (exchange.FillResult, error) {
	res := exchange.FillResult{OrderID: uuid.NewString(), Symbol: symbol, Side: exchange.SideBuy}
	price, err := e.prices.CurrentPrice(ctx, symbol)
	if err != nil {
		return res, fmt.Errorf("%w: %w", exchange.ErrUnavailable, err)
	}
	base := e.BaseAsset(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !quoteAmount.IsPositive() || e.balances[e.quote].LessThan(quoteAmount) {
		res.Status = "rejected"
		res.Raw = fmt.Sprintf(`{"state":"rejected","reason":"insufficient %s","requested":"%s"}`, e.quote, quoteAmount)
		return res, nil
	}
	net := quoteAmount.Sub(pct.Of(quoteAmount, e.fee))
	qty := net.Div(price)
	e.balances[e.quote] = e.balances[e.quote].Sub(quoteAmount)
	e.balances[base] = e.balances[base].Add(qty)
	res.Status = "done"
	res.Filled = true
	res.ExecutedQty = qty
	res.QuoteQty = quoteAmount
	res.AvgPrice = price
	res.Raw = fmt.Sprintf(`{"state":"done","price":"%s","executed_volume":"%s"}`, price, qty)
	return res, nil
}

func (e *Exchange) MarketSell(ctx context.Context, symbol string, baseAmount decimal.Decimal) (exchange.FillResult, error) {
	res := exchange.FillResult{OrderID: uuid.NewString(), Symbol: symbol, Side: exchange.SideSell}
	price, err := e.prices.CurrentPrice(ctx, symbol)
	if err != nil {
		return res, fmt.Errorf("%w: %w", exchange.ErrUnavailable, err)
	}
	base := e.BaseAsset(symbol)
	e.mu.Lock()
	defer e.mu.Unlock()
	held := e.balances[base]
	if !baseAmount.IsPositive() || held.LessThan(baseAmount) {
		res.Status = "rejected"
		res.Raw = fmt.Sprintf(`{"state":"rejected","reason":"insufficient %s","held":"%s"}`, base, held)
		return res, nil
	}
	gross := baseAmount.Mul(price)
	net := gross.Sub(pct.Of(gross, e.fee))
	e.balances[base] = held.Sub(baseAmount)
	e.balances[e.quote] = e.balances[e.quote].Add(net)
	res.Status = "done"
	res.Filled = true
	res.ExecutedQty = baseAmount
	res.QuoteQty = net
	res.AvgPrice = price
	res.Raw = fmt.Sprintf(`{"state":"done","price":"%s","executed_volume":"%s"}`, price, baseAmount)
	return res, nil
}
