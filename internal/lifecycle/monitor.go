package lifecycle

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

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

// exitFailureNotifyEvery 控制平仓失败的重复提醒频率（首次及每第 N 次）。
const exitFailureNotifyEvery = 10

// Recorder 是账本的写入面。
type Recorder interface {
	Append(ctx context.Context, e ledger.Entry) error
}

type Config struct {
	Rules        Rules
	Concurrency  int
	DriftWindow  time.Duration
	// DustNotional 以下的卖出剩余视为零头，仓位按全部平仓处理。
	DustNotional decimal.Decimal
}

type Deps struct {
	Book     *book.Book
	Market   market.Data
	Advisor  advisory.Advisor
	Exchange exchange.Execution
	Ledger   Recorder
	Notifier notify.Notifier
}

// Monitor 每个周期遍历一次持仓快照，在标的锁内执行状态转移。
type Monitor struct {
	deps  Deps
	cfg   Config
	drift *DriftTracker
	now   func() time.Time
}

func NewMonitor(deps Deps, cfg Config) *Monitor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Monitor{
		deps:  deps,
		cfg:   cfg,
		drift: NewDriftTracker(deps.Market, deps.Notifier, cfg.DriftWindow),
		now:   time.Now,
	}
}

// Drift exposes the post-exit tracker.
func (m *Monitor) Drift() *DriftTracker { return m.drift }

// Tick 处理所有持仓，单个标的的故障不会影响其他标的。始终返回 nil，便于挂到调度器上。
func (m *Monitor) Tick(ctx context.Context) error {
	positions := m.deps.Book.Snapshot()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, p := range positions {
		symbol := p.Symbol
		g.Go(func() error {
			m.tickSymbol(gctx, symbol)
			return nil
		})
	}
	_ = g.Wait()
	m.drift.Sample(ctx)
	metrics.OpenPositions.Set(float64(m.deps.Book.Len()))
	return nil
}

func (m *Monitor) tickSymbol(ctx context.Context, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("lifecycle: %s panic: %v\n%s", symbol, r, debug.Stack())
		}
	}()
	unlock := m.deps.Book.Lock(symbol)
	defer unlock()

	pos, ok := m.deps.Book.Get(symbol)
	if !ok {
		// 运维 stop 或上一轮已平仓
		return
	}
	price, err := m.deps.Market.CurrentPrice(ctx, symbol)
	if err != nil || !price.IsPositive() {
		logger.Debugf("lifecycle: %s price unavailable, skip: %v", symbol, err)
		return
	}

	now := m.now()
	ev := Evaluate(pos, price, now, m.cfg.Rules)
	if ev.HighWater.GreaterThan(pos.HighWaterPrice) {
		updated, err := m.deps.Book.Update(symbol, func(p *book.Position) {
			p.HighWaterPrice = pct.Max(p.HighWaterPrice, ev.HighWater)
		})
		if err == nil {
			pos = updated
		}
	}

	switch {
	case ev.Action.IsExit():
		logger.Infof("lifecycle: %s %s at %s (entry %s, high %s)", symbol, ev.Action, price, pos.EntryPrice, pos.HighWaterPrice)
		m.exit(ctx, pos, price, ev.Action)
	case ev.Action == Reevaluate:
		m.reevaluate(ctx, pos, price, now)
	}
}

func (m *Monitor) exit(ctx context.Context, pos book.Position, price decimal.Decimal, action Action) {
	ex := m.deps.Exchange
	base := ex.BaseAsset(pos.Symbol)
	qty, err := ex.Balance(ctx, base)
	if err != nil {
		m.exitFailed(pos, action, fmt.Sprintf("balance %s: %v", base, err))
		return
	}
	if !qty.IsPositive() {
		m.exitFailed(pos, action, fmt.Sprintf("%s balance is zero", base))
		return
	}
	fill, err := ex.MarketSell(ctx, pos.Symbol, qty)
	if err != nil {
		m.exitFailed(pos, action, fmt.Sprintf("market sell: %v; raw: %s", err, fill.Raw))
		return
	}
	if !fill.Filled {
		m.exitFailed(pos, action, fmt.Sprintf("sell not filled (status %s); raw: %s", fill.Status, fill.Raw))
		return
	}

	executed := fill.ExecutedQty
	if !executed.IsPositive() || executed.GreaterThan(qty) {
		executed = qty
	}
	exitPrice := price
	if fill.AvgPrice.IsPositive() {
		exitPrice = fill.AvgPrice
	}
	proceeds := fill.QuoteQty
	if !proceeds.IsPositive() {
		proceeds = executed.Mul(exitPrice)
	}
	if rest := qty.Sub(executed); rest.IsPositive() {
		if rest.Mul(price).GreaterThanOrEqual(m.cfg.DustNotional) {
			m.partialExit(pos, action, fill, executed, rest)
			return
		}
		logger.Infof("lifecycle: %s leaves dust %s %s after %s", pos.Symbol, rest, base, action)
	}

	now := m.now()
	rec := ExitRecord{
		TradeID:       pos.TradeID,
		Symbol:        pos.Symbol,
		StrategyLabel: pos.StrategyLabel,
		Reason:        action,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     exitPrice,
		ExitTime:      now,
		ReturnPct:     pct.Return(pos.EntryPrice, exitPrice),
	}

	if m.deps.Ledger != nil {
		entry := ledger.Entry{
			TradeID:       pos.TradeID,
			Timestamp:     now,
			Kind:          ledger.KindExit,
			Symbol:        pos.Symbol,
			EntryPrice:    pos.EntryPrice,
			ExitPrice:     exitPrice,
			Quantity:      executed,
			QuoteAmount:   proceeds,
			StrategyLabel: pos.StrategyLabel,
			Outcome:       action.outcome(),
			ReturnPct:     rec.ReturnPct,
			Raw:           []byte(fill.Raw),
		}
		if err := m.deps.Ledger.Append(ctx, entry); err != nil {
			logger.Errorf("lifecycle: ledger append for %s failed: %v", pos.Symbol, err)
			m.deps.Notifier.Notify(notify.LevelWarn, fmt.Sprintf("ledger write failed for exit %s, record: %s; error: %v",
				pos.Symbol, rec, err))
		}
	}
	m.deps.Book.Remove(pos.Symbol)
	m.drift.Track(rec)

	metrics.Exits.WithLabelValues(pos.StrategyLabel, string(action)).Inc()
	metrics.RealizedReturn.WithLabelValues(pos.StrategyLabel).Observe(pct.ToFloat(rec.ReturnPct))
	m.deps.Notifier.Notify(notify.LevelInfo, fmt.Sprintf("SELL %s %s @ %s (entry %s, return %s%%) [%s]",
		pos.Symbol, action, exitPrice, pos.EntryPrice, rec.ReturnPct.StringFixed(2), pos.StrategyLabel))
}

// partialExit 处理部分成交：仓位保留剩余数量并计一次失败，下个周期继续卖出剩余部分。
func (m *Monitor) partialExit(pos book.Position, action Action, fill exchange.FillResult, executed, rest decimal.Decimal) {
	updated, err := m.deps.Book.Update(pos.Symbol, func(p *book.Position) {
		p.Quantity = rest
		p.ExitFailures++
	})
	if err != nil {
		return
	}
	metrics.ExitFailures.WithLabelValues(pos.Symbol).Inc()
	logger.Warnf("lifecycle: %s %s partially filled (order %s, status %s): sold %s, %s left; raw: %s",
		pos.Symbol, action, fill.OrderID, fill.Status, executed, rest, fill.Raw)
	m.deps.Notifier.Notify(notify.LevelWarn, fmt.Sprintf("exit %s %s partially filled (attempt %d): sold %s @ %s, %s still held, will retry",
		pos.Symbol, action, updated.ExitFailures, executed, fill.AvgPrice, rest))
}

func (m *Monitor) exitFailed(pos book.Position, action Action, detail string) {
	updated, err := m.deps.Book.Update(pos.Symbol, func(p *book.Position) { p.ExitFailures++ })
	if err != nil {
		return
	}
	metrics.ExitFailures.WithLabelValues(pos.Symbol).Inc()
	n := updated.ExitFailures
	logger.Warnf("lifecycle: %s %s exit failed (#%d): %s", pos.Symbol, action, n, detail)
	if n == 1 || n%exitFailureNotifyEvery == 0 {
		m.deps.Notifier.Notify(notify.LevelWarn, fmt.Sprintf("exit %s %s not confirmed (attempt %d), will retry: %s",
			pos.Symbol, action, n, detail))
	}
}

func (m *Monitor) reevaluate(ctx context.Context, pos book.Position, price decimal.Decimal, now time.Time) {
	res, err := m.deps.Advisor.Reevaluate(ctx, pos.Symbol, pos.StrategyLabel, pos.EntryPrice, price)
	changed := err == nil && res.IsSignal() &&
		(!res.TakeProfitPct.Equal(pos.TakeProfitPct) || !res.StopLossPct.Equal(pos.StopLossPct))

	updated, uerr := m.deps.Book.Update(pos.Symbol, func(p *book.Position) {
		p.ReevaluationCount++
		p.LastReevaluatedAt = now
		if changed {
			p.TakeProfitPct = res.TakeProfitPct
			p.StopLossPct = res.StopLossPct
		}
	})
	if uerr != nil {
		return
	}

	switch {
	case err != nil || !res.IsSignal():
		metrics.Reevaluations.WithLabelValues("no_signal").Inc()
		logger.Debugf("lifecycle: reevaluate %s no signal: %v", pos.Symbol, err)
	case changed:
		metrics.Reevaluations.WithLabelValues("updated").Inc()
		m.deps.Notifier.Notify(notify.LevelInfo, fmt.Sprintf("reevaluated %s (%d/%d): tp %s%% -> %s%%, sl %s%% -> %s%%",
			pos.Symbol, updated.ReevaluationCount, m.cfg.Rules.MaxReevaluations,
			pos.TakeProfitPct, updated.TakeProfitPct, pos.StopLossPct, updated.StopLossPct))
	default:
		metrics.Reevaluations.WithLabelValues("unchanged").Inc()
	}
}

// Recover 从持久层恢复仓位，并与交易所余额对账：基础币余额为零的仓位被丢弃并通知。
// 余额查询失败时保留仓位，交由后续周期处理。
func (m *Monitor) Recover(ctx context.Context, reconcile bool) (kept, dropped []book.Position, err error) {
	restored, err := m.deps.Book.Restore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !reconcile {
		return restored, nil, nil
	}
	for _, p := range restored {
		base := m.deps.Exchange.BaseAsset(p.Symbol)
		bal, err := m.deps.Exchange.Balance(ctx, base)
		if err != nil {
			logger.Warnf("lifecycle: reconcile %s balance failed, keeping position: %v", p.Symbol, err)
			kept = append(kept, p)
			continue
		}
		if bal.IsPositive() {
			if !bal.Equal(p.Quantity) {
				logger.Infof("lifecycle: reconcile %s quantity %s -> %s", p.Symbol, p.Quantity, bal)
				if updated, err := m.deps.Book.Update(p.Symbol, func(pos *book.Position) { pos.Quantity = bal }); err == nil {
					p = updated
				}
			}
			kept = append(kept, p)
			continue
		}
		m.deps.Book.Remove(p.Symbol)
		dropped = append(dropped, p)
		logger.Warnf("lifecycle: reconcile dropped %s, %s balance is zero", p.Symbol, base)
		m.deps.Notifier.Notify(notify.LevelWarn, fmt.Sprintf("restored position %s dropped: no %s balance on %s",
			p.Symbol, base, m.deps.Exchange.Name()))
	}
	metrics.OpenPositions.Set(float64(m.deps.Book.Len()))
	if len(kept) > 0 {
		m.deps.Notifier.Notify(notify.LevelInfo, fmt.Sprintf("recovered %d open positions", len(kept)))
	}
	return kept, dropped, nil
}
