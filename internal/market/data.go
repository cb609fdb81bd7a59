package market

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable 表示行情暂不可用，调用方应跳过本轮。
var ErrUnavailable = errors.New("market data unavailable")

// Data 是行情端口。symbol 统一使用内部格式 BASE/QUOTE。
type Data interface {
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)

	// RecentCandles 返回最近 n 根 1 分钟 K 线，按时间升序。
	RecentCandles(ctx context.Context, symbol string, n int) ([]Candle, error)

	// Symbols 返回可交易的扫描范围。
	Symbols(ctx context.Context) ([]string, error)
}
