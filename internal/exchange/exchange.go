// Package exchange 定义现货下单端口。所有 symbol 使用内部格式 BASE/QUOTE。
package exchange

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable 表示交易所查询失败（网络、限流、熔断）。
var ErrUnavailable = errors.New("exchange unavailable")

// Execution 是交易所执行端口。
type Execution interface {
	Name() string

	// QuoteAsset 返回计价币，例如 KRW。
	QuoteAsset() string

	// BaseAsset 返回交易对的基础币，例如 BTC/KRW -> BTC。
	BaseAsset(symbol string) string

	// Balance 返回可用余额（不含冻结）。
	Balance(ctx context.Context, asset string) (decimal.Decimal, error)

	// Balances 返回全部非零余额。
	Balances(ctx context.Context) ([]Balance, error)

	// MarketBuy 以计价币金额市价买入。
	MarketBuy(ctx context.Context, symbol string, quoteAmount decimal.Decimal) (FillResult, error)

	// MarketSell 以基础币数量市价卖出。
	MarketSell(ctx context.Context, symbol string, baseAmount decimal.Decimal) (FillResult, error)
}
