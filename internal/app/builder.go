package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

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
	"spotguard/internal/pkg/circuit"
	"spotguard/internal/risk"
	apihttp "spotguard/internal/transport/http/api"
	tgcommands "spotguard/internal/transport/telegram"
)

type AppBuilder struct {
	cfg *config.Config

	venueFn    func(config.ExchangeConfig) (*Venue, error)
	advisorFn  func(config.AdvisoryConfig) (advisory.Advisor, *circuit.CircuitBreaker, error)
	telegramFn func(config.NotifyConfig) *notifier.Telegram
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		venueFn:    buildVenue,
		advisorFn:  buildAdvisor,
		telegramFn: newTelegram,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithVenue 替换交易所适配器的构建，测试中用于注入模拟行情。
func WithVenue(fn func(config.ExchangeConfig) (*Venue, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.venueFn = fn
		}
	}
}

func WithAdvisor(fn func(config.AdvisoryConfig) (advisory.Advisor, *circuit.CircuitBreaker, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.advisorFn = fn
		}
	}
}

func WithTelegram(fn func(config.NotifyConfig) *notifier.Telegram) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.telegramFn = fn
		}
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	a := &App{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	a.hub = notify.NewHub(notify.ParseLevel(cfg.Notify.MinLevel), 256)
	a.telegram = b.telegramFn(cfg.Notify)
	if a.telegram != nil {
		a.hub.AddSender("telegram", a.telegram)
		logger.Infof("✓ Telegram 通知已启用 (chat %s)", cfg.Notify.Telegram.ChatID)
	}

	venue, err := b.venueFn(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("init exchange %s: %w", cfg.Exchange.Venue, err)
	}
	a.venue = venue
	logger.Infof("✓ 交易所: %s (quote %s)", venue.Exchange.Name(), venue.Exchange.QuoteAsset())

	advisor, advisoryBreaker, err := b.advisorFn(cfg.Advisory)
	if err != nil {
		return nil, fmt.Errorf("init advisory: %w", err)
	}
	a.advisor = advisor
	breakers := append([]*circuit.CircuitBreaker{}, venue.Breakers...)
	if advisoryBreaker != nil {
		breakers = append(breakers, advisoryBreaker)
	}
	watchBreakers(breakers, a.hub)

	a.ledger, err = ledger.NewStore(cfg.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	a.positions, err = sqlstore.Open(cfg.Store.PositionsPath)
	if err != nil {
		return nil, fmt.Errorf("open position store: %w", err)
	}
	a.book = book.New(a.positions)

	a.blocklist = feedback.NewBlocklist(cfg.Feedback.Blocked...)
	metrics.BlockedStrategies.Set(float64(a.blocklist.Len()))

	a.engine = risk.NewEngine(risk.Deps{
		Book:     a.book,
		Gate:     a.blocklist,
		Market:   venue.Market,
		Advisor:  advisor,
		Exchange: venue.Exchange,
		Ledger:   a.ledger,
		Notifier: a.hub,
	}, riskConfig(cfg))

	a.monitor = lifecycle.NewMonitor(lifecycle.Deps{
		Book:     a.book,
		Market:   venue.Market,
		Advisor:  advisor,
		Exchange: venue.Exchange,
		Ledger:   a.ledger,
		Notifier: a.hub,
	}, lifecycleConfig(cfg))

	a.pruner = feedback.NewPruner(a.ledger, a.blocklist, a.hub, feedback.Config{MinSamples: cfg.Feedback.MinSamples})

	if cfg.Scan.Enabled {
		a.scanner = market.NewScanner(market.ScannerConfig{
			QuoteAsset:      venue.Exchange.QuoteAsset(),
			CandleCount:     cfg.Scan.CandleCount,
			MinQuoteVolume:  cfg.Scan.MinQuoteVolume,
			MinChangePct:    cfg.Scan.MinChangePct,
			VolumeSMAPeriod: cfg.Scan.VolumeSMAPeriod,
			MinVolumeRatio:  cfg.Scan.MinVolumeRatio,
			Concurrency:     cfg.Scan.Concurrency,
			Symbols:         cfg.Scan.Symbols,
		}, venue.Market)
	}

	a.operator = operator.NewService(operator.Deps{
		Book:      a.book,
		Blocklist: a.blocklist,
		Market:    venue.Market,
		Exchange:  venue.Exchange,
		Ledger:    a.ledger,
		Advisor:   advisor,
		Buyer:     a.engine,
		Notifier:  a.hub,
	})

	if cfg.HTTP.Enabled {
		a.http, err = buildHTTPServer(cfg.HTTP, a.operator)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Commands.Enabled && a.telegram != nil {
		a.commands = tgcommands.NewListener(a.telegram, a.operator, tgcommands.Config{
			ChatID:      cfg.Notify.Telegram.ChatID,
			PollTimeout: cfg.Commands.PollTimeoutSeconds,
		})
		logger.Infof("✓ Telegram 命令监听已启用")
	}

	a.Summary = buildSummary(cfg, venue)
	ok = true
	return a, nil
}

func riskConfig(cfg *config.Config) risk.Config {
	return risk.Config{
		MinProbability:      decimal.NewFromFloat(cfg.Risk.MinProbability),
		MaxExposureRatio:    decimal.NewFromFloat(cfg.Risk.MaxExposureRatio),
		MaxEntryEquityRatio: decimal.NewFromFloat(cfg.Risk.MaxEntryEquityRatio),
		MinOrderNotional:    decimal.NewFromFloat(cfg.Risk.MinOrderNotional),
		FillSettle:          cfg.Exchange.FillSettle(),
	}
}

func lifecycleConfig(cfg *config.Config) lifecycle.Config {
	lc := cfg.Lifecycle
	return lifecycle.Config{
		Rules: lifecycle.Rules{
			TrailingStopGapPct:   decimal.NewFromFloat(lc.TrailingStopGapPct),
			ReevaluationInterval: lc.ReevaluationInterval(),
			MaxReevaluations:     lc.MaxReevaluations,
		},
		Concurrency:  lc.Concurrency,
		DriftWindow:  lc.DriftWindow(),
		DustNotional: decimal.NewFromFloat(cfg.Risk.MinOrderNotional),
	}
}

// watchBreakers 把熔断状态变化同步到指标，打开时推送一次告警。
func watchBreakers(breakers []*circuit.CircuitBreaker, n notify.Notifier) {
	for _, cb := range breakers {
		if cb == nil {
			continue
		}
		metrics.BreakerState.WithLabelValues(cb.Name()).Set(float64(cb.State()))
		cb.SetStateChangeHandler(func(name string, from, to circuit.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			logger.Warnf("circuit %s: %s -> %s", name, from, to)
			if to == circuit.StateOpen {
				n.Notify(notify.LevelWarn, fmt.Sprintf("circuit %s open, calls paused until cool-down", name))
			}
		})
	}
}

func buildHTTPServer(cfg config.HTTPConfig, op *operator.Service) (*apihttp.Server, error) {
	server, err := apihttp.NewServer(apihttp.ServerConfig{Addr: cfg.Addr, Operator: op})
	if err != nil {
		return nil, fmt.Errorf("初始化运维 HTTP 失败: %w", err)
	}
	logger.Infof("✓ 运维 HTTP 接口监听 %s", server.Addr())
	return server, nil
}

func newTelegram(cfg config.NotifyConfig) *notifier.Telegram {
	if !cfg.Telegram.Enabled {
		return nil
	}
	tg := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	return tg
}
