// Package ledger 记录每一次入场与离场，只追加不修改，供策略反馈与运维查询。
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

type Outcome string

const (
	OutcomeEntry        Outcome = "entry"
	OutcomeTakeProfit   Outcome = "take_profit"
	OutcomeStopLoss     Outcome = "stop_loss"
	OutcomeTrailingStop Outcome = "trailing_stop"
)

// Entry 为一条账本记录。入场记录的 ExitPrice 与 ReturnPct 为零。
type Entry struct {
	ID            string          `json:"id"`
	TradeID       string          `json:"trade_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Kind          Kind            `json:"kind"`
	Symbol        string          `json:"symbol"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	ExitPrice     decimal.Decimal `json:"exit_price"`
	Quantity      decimal.Decimal `json:"quantity"`
	QuoteAmount   decimal.Decimal `json:"quote_amount"`
	StrategyLabel string          `json:"strategy_label"`
	Outcome       Outcome         `json:"outcome"`
	ReturnPct     decimal.Decimal `json:"return_pct"`
	Raw           []byte          `json:"raw,omitempty"`
}

// StrategyStats 为单个策略已实现收益的汇总。
type StrategyStats struct {
	Label         string          `json:"label" yaml:"label"`
	Count         int             `json:"count" yaml:"count"`
	Wins          int             `json:"wins" yaml:"wins"`
	Losses        int             `json:"losses" yaml:"losses"`
	MeanReturnPct decimal.Decimal `json:"mean_return_pct" yaml:"mean_return_pct"`
	LastExitAt    time.Time       `json:"last_exit_at" yaml:"last_exit_at"`
}

// Ledger 是账本端口。
type Ledger interface {
	Append(ctx context.Context, e Entry) error
	StrategyStats(ctx context.Context) ([]StrategyStats, error)
	Recent(ctx context.Context, n int) ([]Entry, error)
	Exits(ctx context.Context, since time.Time) ([]Entry, error)
}
