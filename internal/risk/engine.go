// Package risk 实现入场准入：屏蔽检查、建议置信度、组合敞口、仓位规模与成交确认。
package risk

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"spotguard/internal/advisory"
	"spotguard/internal/book"
	"spotguard/internal/exchange"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/market"
	"spotguard/internal/metrics"
	"spotguard/internal/notify"
	"spotguard/internal/pkg/pct"
)

// ManualLabel 是运维手动买入使用的策略标签。
const ManualLabel = "manual"

// postOrderTimeout 限制下单后确认余额与登记仓位的时间。
const postOrderTimeout = 10 * time.Second

// probabilityFloor 不可通过配置降低。
var probabilityFloor = decimal.NewFromInt(70)

// Gate 报告策略是否被屏蔽。
type Gate interface {
	IsBlocked(label string) bool
}

// Recorder 是账本的写入面。
type Recorder interface {
	Append(ctx context.Context, e ledger.Entry) error
}

type Config struct {
	MinProbability      decimal.Decimal
	MaxExposureRatio    decimal.Decimal
	MaxEntryEquityRatio decimal.Decimal
	MinOrderNotional    decimal.Decimal
	FillSettle          time.Duration
}

type Deps struct {
	Book     *book.Book
	Gate     Gate
	Market   market.Data
	Advisor  advisory.Advisor
	Exchange exchange.Execution
	Ledger   Recorder
	Notifier notify.Notifier
}

type Engine struct {
	deps Deps
	cfg  Config
	// capital 串行化"读余额-定规模-下单-建仓"，并发入场不会同时按同一份余额计算敞口。
	capital sync.Mutex
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.MinProbability.LessThan(probabilityFloor) {
		cfg.MinProbability = probabilityFloor
	}
	if !cfg.MaxExposureRatio.IsPositive() {
		cfg.MaxExposureRatio = decimal.RequireFromString("0.70")
	}
	if !cfg.MaxEntryEquityRatio.IsPositive() {
		cfg.MaxEntryEquityRatio = decimal.RequireFromString("0.25")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Engine{deps: deps, cfg: cfg, now: time.Now, sleep: sleepCtx}
}

// EvaluateEntry 评估一次策略入场。不会返回错误也不会 panic，所有失败都折算成拒绝。
func (e *Engine) EvaluateEntry(ctx context.Context, symbol, label string) Decision {
	return e.run(ctx, symbol, label, decimal.Zero)
}

// ManualBuy 走与策略入场相同的流程，amount 为正时替代建议的仓位比例。
func (e *Engine) ManualBuy(ctx context.Context, symbol string, amount decimal.Decimal) Decision {
	return e.run(ctx, symbol, ManualLabel, amount)
}

func (e *Engine) run(ctx context.Context, symbol, label string, fixed decimal.Decimal) (d Decision) {
	start := e.now()
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	d = Decision{Symbol: symbol, Strategy: label}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("risk: evaluate %s panic: %v\n%s", symbol, r, debug.Stack())
			d = e.reject(d, DataUnavailable, fmt.Sprintf("panic: %v", r))
		}
		e.finish(d)
		metrics.ObserveSince(metrics.AdmissionLatency, start)
	}()

	unlock := e.deps.Book.Lock(symbol)
	defer unlock()
	return e.evaluate(ctx, d, fixed)
}

func (e *Engine) evaluate(ctx context.Context, d Decision, fixed decimal.Decimal) Decision {
	if e.deps.Book.Has(d.Symbol) {
		return e.reject(d, AlreadyOpen, "")
	}
	if e.deps.Gate != nil && e.deps.Gate.IsBlocked(d.Strategy) {
		return e.reject(d, StrategyBlocked, "")
	}

	price, err := e.deps.Market.CurrentPrice(ctx, d.Symbol)
	if err != nil || !price.IsPositive() {
		return e.reject(d, DataUnavailable, errDetail("price", err))
	}
	d.Price = price

	res, err := e.deps.Advisor.Evaluate(ctx, d.Symbol, d.Strategy, price)
	if err != nil || !res.IsSignal() {
		d = e.reject(d, NoSignal, errDetail("advisory", err))
		// 调用失败、超时、熔断属于故障；解析失败与无信号属于预期
		d.fault = err != nil && !errors.Is(err, advisory.ErrParse) && !isPlainNoSignal(err)
		return d
	}
	d.Advisory = res
	if res.SuccessProbability.LessThan(e.cfg.MinProbability) {
		return e.reject(d, LowConfidence, fmt.Sprintf("probability %s%% < %s%%", res.SuccessProbability, e.cfg.MinProbability))
	}

	e.capital.Lock()
	defer e.capital.Unlock()

	quote := e.deps.Exchange.QuoteAsset()
	available, err := e.deps.Exchange.Balance(ctx, quote)
	if err != nil {
		return e.reject(d, DataUnavailable, errDetail("quote balance", err))
	}
	mark, err := e.markValue(ctx)
	if err != nil {
		return e.reject(d, DataUnavailable, errDetail("mark value", err))
	}
	equity := mark.Add(available)
	if !equity.IsPositive() {
		return e.reject(d, InsufficientNotional, "total equity is zero")
	}
	exposure := pct.Ratio(mark, equity)
	if exposure.GreaterThanOrEqual(e.cfg.MaxExposureRatio) {
		return e.reject(d, PortfolioExposureExceeded,
			fmt.Sprintf("exposure %s >= %s", exposure.StringFixed(4), e.cfg.MaxExposureRatio))
	}

	size := e.size(available, equity, res.SizeHintPct, fixed)
	d.BuyAmount = size
	if size.LessThan(e.cfg.MinOrderNotional) || !size.IsPositive() {
		return e.reject(d, InsufficientNotional, fmt.Sprintf("size %s < %s %s", size, e.cfg.MinOrderNotional, quote))
	}

	return e.buy(ctx, d)
}

// Size 计算 min(available × hint/100, equity × maxEntryEquityRatio)，向下取整到整数计价单位。
func (e *Engine) Size(available, equity, hintPct decimal.Decimal) decimal.Decimal {
	return e.size(available, equity, hintPct, decimal.Zero)
}

func (e *Engine) size(available, equity, hintPct, fixed decimal.Decimal) decimal.Decimal {
	capAmount := equity.Mul(e.cfg.MaxEntryEquityRatio)
	want := pct.Of(available, hintPct)
	if fixed.IsPositive() {
		want = pct.Min(fixed, available)
	}
	size := pct.Min(want, capAmount).Floor()
	if size.IsNegative() {
		return decimal.Zero
	}
	return size
}

func (e *Engine) markValue(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range e.deps.Book.Snapshot() {
		price, err := e.deps.Market.CurrentPrice(ctx, p.Symbol)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", p.Symbol, err)
		}
		total = total.Add(p.MarkValue(price))
	}
	return total, nil
}

func (e *Engine) buy(ctx context.Context, d Decision) Decision {
	ex := e.deps.Exchange
	base := ex.BaseAsset(d.Symbol)
	pre, err := ex.Balance(ctx, base)
	if err != nil {
		return e.reject(d, DataUnavailable, errDetail("base balance", err))
	}

	fill, err := ex.MarketBuy(ctx, d.Symbol, d.BuyAmount)
	d.Raw = fill.Raw
	if err != nil {
		return e.reject(d, FillNotConfirmed, errDetail("market buy", err))
	}

	// 订单已提交，之后的确认与登记不再跟随 ctx 取消，否则成交的资金会脱离管理
	if err := e.sleep(ctx, e.cfg.FillSettle); err != nil {
		logger.Warnf("risk: fill settle for %s (order %s) cut short: %v", d.Symbol, fill.OrderID, err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postOrderTimeout)
	defer cancel()
	post, err := ex.Balance(ctx, base)
	if err != nil {
		logger.Errorf("risk: %s order %s submitted but post-order balance failed, check the venue: %v", d.Symbol, fill.OrderID, err)
		return e.reject(d, FillNotConfirmed, errDetail("post-order balance", err))
	}
	if !post.GreaterThan(pre) {
		return e.reject(d, FillNotConfirmed, fmt.Sprintf("order %s: %s balance %s -> %s", fill.OrderID, base, pre, post))
	}

	now := e.now()
	spent := fill.QuoteQty
	if !spent.IsPositive() {
		spent = d.BuyAmount
	}
	pos := book.Position{
		Symbol:            d.Symbol,
		TradeID:           uuid.NewString(),
		EntryPrice:        d.Price,
		Quantity:          post.Sub(pre),
		QuoteSpent:        spent,
		StrategyLabel:     d.Strategy,
		TakeProfitPct:     d.Advisory.TakeProfitPct,
		StopLossPct:       d.Advisory.StopLossPct,
		HighWaterPrice:    d.Price,
		LastReevaluatedAt: now,
		CreatedAt:         now,
	}
	if err := e.deps.Book.Open(pos); err != nil {
		// 持有锁时不应发生；资金已花出，交给运维处理
		logger.Errorf("risk: register %s after fill failed: %v", d.Symbol, err)
		return e.reject(d, FillNotConfirmed, errDetail("register position", err))
	}
	d.Accepted = true
	d.Reason = Accepted
	d.Position = &pos
	metrics.OpenPositions.Set(float64(e.deps.Book.Len()))

	if e.deps.Ledger != nil {
		entry := ledger.Entry{
			TradeID:       pos.TradeID,
			Timestamp:     now,
			Kind:          ledger.KindEntry,
			Symbol:        pos.Symbol,
			EntryPrice:    pos.EntryPrice,
			Quantity:      pos.Quantity,
			QuoteAmount:   spent,
			StrategyLabel: pos.StrategyLabel,
			Outcome:       ledger.OutcomeEntry,
			Raw:           []byte(fill.Raw),
		}
		if err := e.deps.Ledger.Append(ctx, entry); err != nil {
			logger.Warnf("risk: ledger append for %s failed: %v", pos.Symbol, err)
		}
	}
	return d
}

func (e *Engine) reject(d Decision, reason Reason, detail string) Decision {
	d.Accepted = false
	d.Reason = reason
	d.Detail = detail
	d.Position = nil
	return d
}

func (e *Engine) finish(d Decision) {
	metrics.AdmissionDecisions.WithLabelValues(d.Strategy, string(d.Reason)).Inc()
	if d.Accepted {
		logger.Infof("risk: %s", d.String())
		e.deps.Notifier.Notify(notify.LevelInfo, d.String())
		return
	}
	logger.Debugf("risk: %s", d.String())
	e.deps.Notifier.Notify(d.Reason.level(d.fault), d.String())
}

func isPlainNoSignal(err error) bool {
	return err == advisory.ErrNoSignal
}

func errDetail(what string, err error) string {
	if err == nil {
		return what
	}
	return fmt.Sprintf("%s: %v", what, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
