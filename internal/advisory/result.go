package advisory

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrParse 表示模型输出不符合固定模板。
	ErrParse = errors.New("advisory response does not match template")
	// ErrNoSignal 表示调用失败或输出不可执行，调用方按无信号处理。
	ErrNoSignal = errors.New("advisory returned no actionable signal")
)

var hundred = decimal.NewFromInt(100)

// Result 为一次建议。零值即 "无信号" 哨兵。
type Result struct {
	SuccessProbability decimal.Decimal `json:"success_probability"`
	TakeProfitPct      decimal.Decimal `json:"take_profit_pct"`
	StopLossPct        decimal.Decimal `json:"stop_loss_pct"`
	SizeHintPct        decimal.Decimal `json:"size_hint_pct"`
}

// IsSignal 仅当止盈、止损都为正时建议可执行。
func (r Result) IsSignal() bool {
	return r.TakeProfitPct.IsPositive() && r.StopLossPct.IsPositive()
}

func (r Result) String() string {
	return fmt.Sprintf("successProbability:%s%% takeProfit:%s%% stopLoss:%s%% size:%s%%",
		r.SuccessProbability, r.TakeProfitPct, r.StopLossPct, r.SizeHintPct)
}

var templatePattern = regexp.MustCompile(`(?i)successProbability\s*:\s*\[?\s*(\d+(?:\.\d+)?)\s*\]?\s*%\s*,?\s*` +
	`takeProfit\s*:\s*\[?\s*(\d+(?:\.\d+)?)\s*\]?\s*%\s*,?\s*` +
	`stopLoss\s*:\s*\[?\s*(\d+(?:\.\d+)?)\s*\]?\s*%\s*,?\s*` +
	`size\s*:\s*\[?\s*(\d+(?:\.\d+)?)\s*\]?\s*%`)

// ParseResult 从模型文本中提取 "successProbability:P% takeProfit:T% stopLoss:S% size:Z%"。
// 允许前后有多余文本；不匹配或越界返回 ErrParse。
func ParseResult(text string) (Result, error) {
	m := templatePattern.FindStringSubmatch(strings.ReplaceAll(text, "*", ""))
	if m == nil {
		return Result{}, ErrParse
	}
	vals := make([]decimal.Decimal, 4)
	for i := range vals {
		d, err := decimal.NewFromString(m[i+1])
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrParse, err)
		}
		vals[i] = d
	}
	res := Result{
		SuccessProbability: vals[0],
		TakeProfitPct:      vals[1],
		StopLossPct:        vals[2],
		SizeHintPct:        vals[3],
	}
	if res.SuccessProbability.GreaterThan(hundred) {
		return Result{}, fmt.Errorf("%w: probability %s out of range", ErrParse, res.SuccessProbability)
	}
	if res.SizeHintPct.GreaterThan(hundred) {
		return Result{}, fmt.Errorf("%w: size %s out of range", ErrParse, res.SizeHintPct)
	}
	if res.StopLossPct.GreaterThanOrEqual(hundred) {
		return Result{}, fmt.Errorf("%w: stop loss %s out of range", ErrParse, res.StopLossPct)
	}
	return res, nil
}
