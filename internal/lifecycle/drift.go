package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spotguard/internal/logger"
	"spotguard/internal/market"
	"spotguard/internal/notify"
	"spotguard/internal/pkg/pct"
)

// ExitRecord 在平仓确认后生成，之后不再修改。
type ExitRecord struct {
	TradeID       string          `json:"trade_id"`
	Symbol        string          `json:"symbol"`
	StrategyLabel string          `json:"strategy_label"`
	Reason        Action          `json:"reason"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	ExitPrice     decimal.Decimal `json:"exit_price"`
	ExitTime      time.Time       `json:"exit_time"`
	ReturnPct     decimal.Decimal `json:"return_pct"`
}

func (r ExitRecord) String() string {
	return fmt.Sprintf("trade=%s %s %s [%s] entry=%s exit=%s return=%s%% at %s",
		r.TradeID, r.Symbol, r.Reason, r.StrategyLabel, r.EntryPrice, r.ExitPrice,
		r.ReturnPct.StringFixed(2), r.ExitTime.Format(time.RFC3339))
}

// DriftReport 汇总平仓后观察窗口内的价格漂移。
type DriftReport struct {
	Exit     ExitRecord
	Last     decimal.Decimal
	DriftPct decimal.Decimal
	MaxPct   decimal.Decimal
	MinPct   decimal.Decimal
	Samples  int
}

func (r DriftReport) String() string {
	return fmt.Sprintf("post-exit %s [%s] after %s: drift %s%% (max %s%%, min %s%%, %d samples)",
		r.Exit.Symbol, r.Exit.StrategyLabel, r.Exit.Reason,
		r.DriftPct.StringFixed(2), r.MaxPct.StringFixed(2), r.MinPct.StringFixed(2), r.Samples)
}

type tracked struct {
	rec     ExitRecord
	last    decimal.Decimal
	max     decimal.Decimal
	min     decimal.Decimal
	samples int
}

// DriftTracker 只做观察：平仓后在窗口期内采样价格，窗口结束时报告漂移。
type DriftTracker struct {
	mu       sync.Mutex
	window   time.Duration
	pending  []*tracked
	market   market.Data
	notifier notify.Notifier
	now      func() time.Time
}

func NewDriftTracker(data market.Data, notifier notify.Notifier, window time.Duration) *DriftTracker {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &DriftTracker{window: window, market: data, notifier: notifier, now: time.Now}
}

func (d *DriftTracker) Track(rec ExitRecord) {
	if d == nil || d.window <= 0 {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, &tracked{rec: rec, last: rec.ExitPrice})
	d.mu.Unlock()
}

// Pending returns the exits still inside their window.
func (d *DriftTracker) Pending() []ExitRecord {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ExitRecord, 0, len(d.pending))
	for _, t := range d.pending {
		out = append(out, t.rec)
	}
	return out
}

// Sample 为每个待观察记录取一次价格，返回窗口已结束的报告。
func (d *DriftTracker) Sample(ctx context.Context) []DriftReport {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	items := append([]*tracked(nil), d.pending...)
	d.mu.Unlock()
	if len(items) == 0 {
		return nil
	}

	now := d.now()
	var done []DriftReport
	expired := make(map[*tracked]bool)
	for _, t := range items {
		price, err := d.market.CurrentPrice(ctx, t.rec.Symbol)
		if err == nil && price.IsPositive() {
			move := pct.Return(t.rec.ExitPrice, price)
			if t.samples == 0 || move.GreaterThan(t.max) {
				t.max = move
			}
			if t.samples == 0 || move.LessThan(t.min) {
				t.min = move
			}
			t.last = price
			t.samples++
		} else if err != nil {
			logger.Debugf("drift: price %s unavailable: %v", t.rec.Symbol, err)
		}
		if now.Sub(t.rec.ExitTime) < d.window {
			continue
		}
		expired[t] = true
		report := DriftReport{
			Exit:     t.rec,
			Last:     t.last,
			DriftPct: pct.Return(t.rec.ExitPrice, t.last),
			MaxPct:   t.max,
			MinPct:   t.min,
			Samples:  t.samples,
		}
		done = append(done, report)
		logger.Infof("lifecycle: %s", report.String())
		d.notifier.Notify(notify.LevelInfo, report.String())
	}

	d.mu.Lock()
	// Track 可能在采样期间追加新记录
	var next []*tracked
	for _, t := range d.pending {
		if !expired[t] {
			next = append(next, t)
		}
	}
	d.pending = next
	d.mu.Unlock()
	return done
}
