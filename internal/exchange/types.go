package exchange

import (
	"strings"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// FillResult 是一次市价单的执行回执。Filled 由适配器根据订单状态或成交量判定；
// 买入是否真正成交仍以余额变化为准。
type FillResult struct {
	OrderID     string          `json:"order_id"`
	Symbol      string          `json:"symbol"`
	Side        Side            `json:"side"`
	Status      string          `json:"status"`
	Filled      bool            `json:"filled"`
	ExecutedQty decimal.Decimal `json:"executed_qty"`
	QuoteQty    decimal.Decimal `json:"quote_qty"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	Raw         string          `json:"raw"`
}

// Balance 为单个资产余额。
type Balance struct {
	Asset       string          `json:"asset"`
	Free        decimal.Decimal `json:"free"`
	Locked      decimal.Decimal `json:"locked"`
	AvgBuyPrice decimal.Decimal `json:"avg_buy_price"`
}

func (b Balance) Total() decimal.Decimal { return b.Free.Add(b.Locked) }

// FindBalance 在列表中按资产名查找，未找到时返回零余额。
func FindBalance(list []Balance, asset string) Balance {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	for _, b := range list {
		if strings.EqualFold(b.Asset, asset) {
			return b
		}
	}
	return Balance{Asset: asset}
}
