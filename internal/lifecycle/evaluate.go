// Package lifecycle 驱动持仓状态机：止盈、止损、移动止损与定期复评。
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"spotguard/internal/book"
	"spotguard/internal/ledger"
	"spotguard/internal/pkg/pct"
)

// Action 是单个监控周期内对一个仓位的处理结果。
type Action string

const (
	Hold         Action = "hold"
	TakeProfit   Action = "take_profit"
	StopLoss     Action = "stop_loss"
	TrailingStop Action = "trailing_stop"
	Reevaluate   Action = "reevaluate"
)

// IsExit 报告该动作是否需要平仓。
func (a Action) IsExit() bool {
	return a == TakeProfit || a == StopLoss || a == TrailingStop
}

func (a Action) outcome() ledger.Outcome {
	switch a {
	case TakeProfit:
		return ledger.OutcomeTakeProfit
	case StopLoss:
		return ledger.OutcomeStopLoss
	case TrailingStop:
		return ledger.OutcomeTrailingStop
	}
	return ""
}

type Rules struct {
	TrailingStopGapPct   decimal.Decimal
	ReevaluationInterval time.Duration
	MaxReevaluations     int
}

// Evaluation 是 Evaluate 的输出：新的最高价与应执行的动作。
type Evaluation struct {
	Action    Action
	HighWater decimal.Decimal
	// 触发阈值，便于日志与通知
	TakeProfitAt decimal.Decimal
	StopLossAt   decimal.Decimal
	TrailingAt   decimal.Decimal
}

// Evaluate 按固定优先级计算一次转移：止盈 > 止损 > 移动止损 > 复评 > 持有。
// 止盈止损以入场价为锚，移动止损以最高价为锚且只在盈利时生效。
func Evaluate(pos book.Position, price decimal.Decimal, now time.Time, r Rules) Evaluation {
	hw := pct.Max(pct.Max(pos.HighWaterPrice, price), pos.EntryPrice)
	ev := Evaluation{
		Action:       Hold,
		HighWater:    hw,
		TakeProfitAt: pct.Above(pos.EntryPrice, pos.TakeProfitPct),
		StopLossAt:   pct.Below(pos.EntryPrice, pos.StopLossPct),
	}
	if r.TrailingStopGapPct.IsPositive() {
		ev.TrailingAt = pct.Below(hw, r.TrailingStopGapPct)
	}

	switch {
	case price.GreaterThanOrEqual(ev.TakeProfitAt):
		ev.Action = TakeProfit
	case price.LessThanOrEqual(ev.StopLossAt):
		ev.Action = StopLoss
	case ev.TrailingAt.IsPositive() && price.LessThanOrEqual(ev.TrailingAt) && price.GreaterThan(pos.EntryPrice):
		ev.Action = TrailingStop
	case pos.ReevaluationCount < r.MaxReevaluations && now.Sub(pos.LastReevaluatedAt) >= r.ReevaluationInterval:
		ev.Action = Reevaluate
	}
	return ev
}
