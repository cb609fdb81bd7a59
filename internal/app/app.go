package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"spotguard/internal/advisory"
	"spotguard/internal/book"
	"spotguard/internal/book/sqlstore"
	"spotguard/internal/config"
	"spotguard/internal/feedback"
	"spotguard/internal/gateway/notifier"
	"spotguard/internal/ledger"
	"spotguard/internal/lifecycle"
	"spotguard/internal/logger"
	"spotguard/internal/market"
	"spotguard/internal/metrics"
	"spotguard/internal/notify"
	"spotguard/internal/operator"
	"spotguard/internal/risk"
	"spotguard/internal/scheduler"
	apihttp "spotguard/internal/transport/http/api"
	tgcommands "spotguard/internal/transport/telegram"
)

// App 负责应用级编排：加载配置→初始化依赖→恢复持仓→启动周期任务与运维接口。
type App struct {
	cfg *config.Config

	venue     *Venue
	advisor   advisory.Advisor
	hub       *notify.Hub
	telegram  *notifier.Telegram
	ledger    *ledger.Store
	positions *sqlstore.Store
	book      *book.Book
	blocklist *feedback.Blocklist
	engine    *risk.Engine
	monitor   *lifecycle.Monitor
	pruner    *feedback.Pruner
	scanner   *market.Scanner
	operator  *operator.Service
	http      *apihttp.Server
	commands  *tgcommands.Listener

	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return NewAppBuilder(cfg, opts...).Build(context.Background())
}

// Run 恢复持仓后启动通知、调度器和可选的运维接口，直到 ctx 取消。
// 持仓恢复失败时直接返回错误，不会在未知仓位状态下开始交易。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}

	kept, dropped, err := a.monitor.Recover(ctx, a.cfg.Store.Reconcile)
	if err != nil {
		return fmt.Errorf("recover positions: %w", err)
	}
	logger.Infof("✓ 恢复持仓 %d 个，对账丢弃 %d 个", len(kept), len(dropped))

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.hub.Run(ctx)
	})
	group.Go(func() error {
		return a.Scheduler().Run(ctx)
	})
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("ops http server error: %w", err)
			}
			return nil
		})
	}
	if a.commands != nil {
		group.Go(func() error {
			return a.commands.Run(ctx)
		})
	}
	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Scheduler 返回本应用的周期任务：持仓监控、策略修剪和（可选的）突破扫描。
func (a *App) Scheduler() *scheduler.Scheduler {
	s := scheduler.New(
		scheduler.Task{
			Name:     "lifecycle",
			Interval: a.cfg.Lifecycle.Interval(),
			Run:      a.monitor.Tick,
		},
		scheduler.Task{
			Name:           "prune",
			Interval:       a.cfg.Feedback.Interval(),
			RunImmediately: true,
			Run:            a.PruneOnce,
		},
	)
	if a.scanner != nil {
		s.Add(scheduler.Task{
			Name:     "scan",
			Interval: a.cfg.Scan.Interval(),
			Run:      a.ScanOnce,
		})
	}
	return s
}

// PruneOnce 执行一次策略修剪。
func (a *App) PruneOnce(ctx context.Context) error {
	blocked := a.pruner.Prune(ctx)
	if len(blocked) > 0 {
		logger.Infof("prune: blocked %v", blocked)
	}
	return nil
}

// ScanOnce 扫描一轮突破候选并依次送入准入评估。候选串行评估，敞口上限按每次成交后的余额计算。
func (a *App) ScanOnce(ctx context.Context) error {
	if a.scanner == nil {
		return nil
	}
	candidates, err := a.scanner.Scan(ctx, a.book.Has)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	metrics.ScanCandidates.Add(float64(len(candidates)))
	for _, c := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d := a.engine.EvaluateEntry(ctx, c.Symbol, a.cfg.Scan.StrategyLabel)
		logger.Debugf("scan: %s change=%.2f%% vol=%.1fx -> %s", c.Symbol, c.ChangePct, c.VolumeRatio, d.Reason)
	}
	return nil
}

// ApplyConfig 应用热更新的配置。只有日志级别与通知级别支持运行期变更。
func (a *App) ApplyConfig(cfg *config.Config) {
	if a == nil || cfg == nil {
		return
	}
	logger.SetLevel(cfg.App.LogLevel)
	a.hub.SetMinLevel(notify.ParseLevel(cfg.Notify.MinLevel))
	logger.Infof("config reloaded: log_level=%s notify.min_level=%s", cfg.App.LogLevel, a.hub.MinLevel())
}

// Close 释放持久层。可重复调用。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
		a.ledger = nil
	}
	if a.positions != nil {
		if err := a.positions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close position store: %w", err))
		}
		a.positions = nil
	}
	return errors.Join(errs...)
}

func (a *App) Operator() *operator.Service { return a.operator }

func (a *App) Pruner() *feedback.Pruner { return a.pruner }

func (a *App) Ledger() *ledger.Store { return a.ledger }

func (a *App) Hub() *notify.Hub { return a.hub }

func (a *App) Book() *book.Book { return a.book }

func (a *App) Engine() *risk.Engine { return a.engine }

func (a *App) Monitor() *lifecycle.Monitor { return a.monitor }
