package book

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position 描述一个已确认成交、仍在自动化管理中的现货持仓。
type Position struct {
	Symbol            string          `json:"symbol"`
	TradeID           string          `json:"trade_id"`
	EntryPrice        decimal.Decimal `json:"entry_price"`
	Quantity          decimal.Decimal `json:"quantity"`
	QuoteSpent        decimal.Decimal `json:"quote_spent"`
	StrategyLabel     string          `json:"strategy_label"`
	TakeProfitPct     decimal.Decimal `json:"take_profit_pct"`
	StopLossPct       decimal.Decimal `json:"stop_loss_pct"`
	HighWaterPrice    decimal.Decimal `json:"high_water_price"`
	LastReevaluatedAt time.Time       `json:"last_reevaluated_at"`
	ReevaluationCount int             `json:"reevaluation_count"`
	ExitFailures      int             `json:"exit_failures"`
	CreatedAt         time.Time       `json:"created_at"`
}

// MarkValue 按给定价格估算持仓市值。
func (p Position) MarkValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// normalize keeps the high-water mark at or above entry.
func (p *Position) normalize() {
	if p.HighWaterPrice.LessThan(p.EntryPrice) {
		p.HighWaterPrice = p.EntryPrice
	}
}
