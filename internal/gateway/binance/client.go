package binance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"spotguard/internal/exchange"
	"spotguard/internal/market"
	"spotguard/internal/pkg/circuit"
	symbolpkg "spotguard/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
)

const maxKlineLimit = 1000

// Client 基于 go-binance 现货 SDK 实现 market.Data 与 exchange.Execution。
type Client struct {
	cfg     Config
	client  *binance.Client
	breaker *circuit.CircuitBreaker

	stepMu    sync.RWMutex
	stepSizes map[string]decimal.Decimal
}

func New(cfg Config) (*Client, error) {
	final := cfg.normalized()
	hc, err := final.httpClient()
	if err != nil {
		return nil, err
	}
	client := binance.NewClient(final.APIKey, final.SecretKey)
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = hc
	return &Client{
		cfg:       final,
		client:    client,
		breaker:   circuit.NewCircuitBreaker("binance", 5, 30*time.Second),
		stepSizes: make(map[string]decimal.Decimal),
	}, nil
}

func (c *Client) Name() string { return "binance" }

func (c *Client) Breaker() *circuit.CircuitBreaker { return c.breaker }

// call 包装 SDK 调用：业务错误码（*common.APIError）不计入熔断。
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	var apiErr *common.APIError
	var callErr error
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		callErr = fn(ctx)
		if callErr != nil && !errors.As(callErr, &apiErr) {
			return callErr
		}
		return nil
	})
	if errors.Is(err, circuit.ErrOpen) {
		return fmt.Errorf("%w: %w", exchange.ErrUnavailable, err)
	}
	if callErr != nil {
		if apiErr != nil {
			return callErr
		}
		return fmt.Errorf("%w: %w", exchange.ErrUnavailable, callErr)
	}
	return nil
}

func (c *Client) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	sym := symbolpkg.Binance.ToExchange(symbol)
	if sym == "" {
		return decimal.Zero, fmt.Errorf("invalid symbol %q", symbol)
	}
	var prices []*binance.SymbolPrice
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		prices, err = c.client.NewListPricesService().Symbol(sym).Do(ctx)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: price %s: %w", market.ErrUnavailable, symbol, err)
	}
	for _, p := range prices {
		if p == nil || !strings.EqualFold(p.Symbol, sym) {
			continue
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			break
		}
		return price, nil
	}
	return decimal.Zero, fmt.Errorf("%w: empty price for %s", market.ErrUnavailable, symbol)
}

func (c *Client) RecentCandles(ctx context.Context, symbol string, n int) ([]market.Candle, error) {
	sym := symbolpkg.Binance.ToExchange(symbol)
	if sym == "" {
		return nil, fmt.Errorf("invalid symbol %q", symbol)
	}
	if n <= 0 {
		n = 2
	}
	if n > maxKlineLimit {
		n = maxKlineLimit
	}
	var kls []*binance.Kline
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		kls, err = c.client.NewKlinesService().Symbol(sym).Interval("1m").Limit(n).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s: %w", market.ErrUnavailable, symbol, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:    kl.OpenTime,
			CloseTime:   kl.CloseTime,
			Open:        parseFloat(kl.Open),
			High:        parseFloat(kl.High),
			Low:         parseFloat(kl.Low),
			Close:       parseFloat(kl.Close),
			Volume:      parseFloat(kl.Volume),
			QuoteVolume: parseFloat(kl.QuoteAssetVolume),
			Trades:      kl.TradeNum,
		})
	}
	return out, nil
}

// Symbols 返回计价币下处于 TRADING 状态的交易对，同时缓存 LOT_SIZE 步长。
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var info *binance.ExchangeInfo
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		info, err = c.client.NewExchangeInfoService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: exchange info: %w", market.ErrUnavailable, err)
	}
	out := make([]string, 0, len(info.Symbols))
	c.stepMu.Lock()
	defer c.stepMu.Unlock()
	for i := range info.Symbols {
		s := &info.Symbols[i]
		if !strings.EqualFold(s.QuoteAsset, c.cfg.QuoteAsset) || s.Status != "TRADING" {
			continue
		}
		internal := symbolpkg.Symbol{Base: s.BaseAsset, Quote: s.QuoteAsset}.Internal()
		if lot := s.LotSizeFilter(); lot != nil {
			if step, err := decimal.NewFromString(lot.StepSize); err == nil && step.IsPositive() {
				c.stepSizes[internal] = step
			}
		}
		out = append(out, internal)
	}
	return out, nil
}

func (c *Client) QuoteAsset() string { return c.cfg.QuoteAsset }

func (c *Client) BaseAsset(symbol string) string { return symbolpkg.Parse(symbol).Base }

func (c *Client) Balances(ctx context.Context) ([]exchange.Balance, error) {
	var acct *binance.Account
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		acct, err = c.client.NewGetAccountService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: account: %w", exchange.ErrUnavailable, err)
	}
	out := make([]exchange.Balance, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		if free.IsZero() && locked.IsZero() {
			continue
		}
		out = append(out, exchange.Balance{Asset: strings.ToUpper(b.Asset), Free: free, Locked: locked})
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

func (c *Client) MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (exchange.FillResult, error) {
	svc := c.client.NewCreateOrderService().
		Symbol(symbolpkg.Binance.ToExchange(symbol)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(quoteAmount.Truncate(2).String())
	return c.placeOrder(ctx, symbol, exchange.SideBuy, svc)
}

// MarketSell 按 LOT_SIZE 步长向下取整数量后卖出。
func (c *Client) MarketSell(ctx context.Context, symbol string, baseAmount decimal.Decimal) (exchange.FillResult, error) {
	qty := c.roundQty(symbol, baseAmount)
	svc := c.client.NewCreateOrderService().
		Symbol(symbolpkg.Binance.ToExchange(symbol)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(qty.String())
	return c.placeOrder(ctx, symbol, exchange.SideSell, svc)
}

func (c *Client) placeOrder(ctx context.Context, symbol string, side exchange.Side, svc *binance.CreateOrderService) (exchange.FillResult, error) {
	result := exchange.FillResult{Symbol: symbol, Side: side}
	var resp *binance.CreateOrderResponse
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		resp, err = svc.Do(ctx)
		return err
	})
	if err != nil {
		result.Raw = err.Error()
		return result, fmt.Errorf("place %s order %s: %w", side, symbol, err)
	}
	result.OrderID = fmt.Sprintf("%d", resp.OrderID)
	result.Status = string(resp.Status)
	result.ExecutedQty, _ = decimal.NewFromString(resp.ExecutedQuantity)
	result.QuoteQty, _ = decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if result.ExecutedQty.IsPositive() {
		result.AvgPrice = result.QuoteQty.Div(result.ExecutedQty)
	}
	result.Filled = result.ExecutedQty.IsPositive() &&
		(result.Status == string(binance.OrderStatusTypeFilled) || result.Status == string(binance.OrderStatusTypePartiallyFilled) || result.Status == "EXPIRED")
	result.Raw = fmt.Sprintf("orderId=%d status=%s executedQty=%s cummulativeQuoteQty=%s fills=%d",
		resp.OrderID, resp.Status, resp.ExecutedQuantity, resp.CummulativeQuoteQuantity, len(resp.Fills))
	return result, nil
}

func (c *Client) roundQty(symbol string, qty decimal.Decimal) decimal.Decimal {
	c.stepMu.RLock()
	step, ok := c.stepSizes[symbolpkg.Normalize(symbol)]
	c.stepMu.RUnlock()
	if !ok || !step.IsPositive() {
		return qty.Truncate(8)
	}
	return qty.Div(step).Floor().Mul(step)
}

func parseFloat(v string) float64 {
	f, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return f.InexactFloat64()
}
