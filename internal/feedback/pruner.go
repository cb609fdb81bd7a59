package feedback

import (
	"context"
	"fmt"
	"time"

	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/metrics"
	"spotguard/internal/notify"
)

// StatsSource 是 Pruner 依赖的账本读取面。
type StatsSource interface {
	StrategyStats(ctx context.Context) ([]ledger.StrategyStats, error)
	Exits(ctx context.Context, since time.Time) ([]ledger.Entry, error)
}

type Config struct {
	MinSamples int
}

// Pruner 周期性读取策略统计，把平均收益为负的策略加入屏蔽列表。
// 只增不减，重复调用结果不变。
type Pruner struct {
	source    StatsSource
	blocklist *Blocklist
	notifier  notify.Notifier
	cfg       Config
}

func NewPruner(source StatsSource, blocklist *Blocklist, notifier notify.Notifier, cfg Config) *Pruner {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 1
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Pruner{source: source, blocklist: blocklist, notifier: notifier, cfg: cfg}
}

// Prune 返回本轮新屏蔽的策略。读取账本失败时记录并通知，本轮不做任何改动。
func (p *Pruner) Prune(ctx context.Context) []string {
	stats, err := p.source.StrategyStats(ctx)
	if err != nil {
		logger.Warnf("feedback: read strategy stats failed: %v", err)
		p.notifier.Notify(notify.LevelWarn, fmt.Sprintf("strategy prune skipped: ledger unavailable: %v", err))
		return nil
	}

	var added []string
	for _, s := range stats {
		if p.blocklist.IsBlocked(s.Label) {
			continue
		}
		if since, ok := p.blocklist.UnblockedAt(s.Label); ok {
			fresh, err := p.statsSince(ctx, s.Label, since)
			if err != nil {
				logger.Warnf("feedback: read exits for %s failed: %v", s.Label, err)
				continue
			}
			s = fresh
		}
		if s.Count < p.cfg.MinSamples || !s.MeanReturnPct.IsNegative() {
			continue
		}
		if p.blocklist.Block(s.Label) {
			added = append(added, s.Label)
			logger.Infof("feedback: blocked %s (count=%d mean=%s%%)", s.Label, s.Count, s.MeanReturnPct.StringFixed(2))
			p.notifier.Notify(notify.LevelInfo, fmt.Sprintf("strategy %s blocked: %d trades, mean return %s%%",
				s.Label, s.Count, s.MeanReturnPct.StringFixed(2)))
		}
	}
	metrics.BlockedStrategies.Set(float64(p.blocklist.Len()))
	return added
}

func (p *Pruner) statsSince(ctx context.Context, label string, since time.Time) (ledger.StrategyStats, error) {
	exits, err := p.source.Exits(ctx, since)
	if err != nil {
		return ledger.StrategyStats{}, err
	}
	for _, s := range ledger.Aggregate(exits) {
		if s.Label == label {
			return s, nil
		}
	}
	return ledger.StrategyStats{Label: label}, nil
}
