package risk

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spotguard/internal/advisory"
	"spotguard/internal/book"
	"spotguard/internal/notify"
)

// Reason 是入场决策结果。除 Accepted 外均为拒绝原因。
type Reason string

const (
	Accepted                  Reason = "Accepted"
	AlreadyOpen               Reason = "AlreadyOpen"
	StrategyBlocked           Reason = "StrategyBlocked"
	DataUnavailable           Reason = "DataUnavailable"
	NoSignal                  Reason = "NoSignal"
	LowConfidence             Reason = "LowConfidence"
	PortfolioExposureExceeded Reason = "PortfolioExposureExceeded"
	InsufficientNotional      Reason = "InsufficientNotional"
	FillNotConfirmed          Reason = "FillNotConfirmed"
)

// level 返回该结果的通知级别：预期内的拒绝为 info，故障为 warn。
func (r Reason) level(fault bool) notify.Level {
	switch r {
	case AlreadyOpen:
		return notify.LevelDebug
	case DataUnavailable, FillNotConfirmed:
		return notify.LevelWarn
	}
	if fault {
		return notify.LevelWarn
	}
	return notify.LevelInfo
}

// Decision 是一次入场评估的完整结果。
type Decision struct {
	Accepted  bool            `json:"accepted"`
	Reason    Reason          `json:"reason"`
	Symbol    string          `json:"symbol"`
	Strategy  string          `json:"strategy"`
	Price     decimal.Decimal `json:"price"`
	Advisory  advisory.Result `json:"advisory"`
	BuyAmount decimal.Decimal `json:"buy_amount"`
	Position  *book.Position  `json:"position,omitempty"`
	// Raw 保存交易所原始回执，仅在下单后填充。
	Raw    string `json:"raw,omitempty"`
	Detail string `json:"detail,omitempty"`

	fault bool
}

func (d Decision) String() string {
	var b strings.Builder
	if d.Accepted {
		fmt.Fprintf(&b, "BUY %s %s @ %s [%s] prob %s%% tp %s%% sl %s%%",
			d.Symbol, d.BuyAmount.String(), d.Price.String(), d.Strategy,
			d.Advisory.SuccessProbability.String(), d.Advisory.TakeProfitPct.String(), d.Advisory.StopLossPct.String())
		return b.String()
	}
	fmt.Fprintf(&b, "entry %s [%s] rejected: %s", d.Symbol, d.Strategy, d.Reason)
	if d.Detail != "" {
		b.WriteString(" (")
		b.WriteString(d.Detail)
		b.WriteString(")")
	}
	if d.Raw != "" {
		b.WriteString("\nraw: ")
		b.WriteString(d.Raw)
	}
	return b.String()
}
