package config

import (
	"strings"
)

// 默认值常量
const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppLogPath         = "data/logs/spotguard.log"
	defaultAdvisoryLogPath    = "data/logs/spotguard-advisory.log"
	defaultVenue              = "upbit"
	defaultUpbitQuote         = "KRW"
	defaultBinanceQuote       = "USDT"
	defaultRequestsPerMinute  = 480
	defaultExchangeTimeout    = 10
	defaultFillSettleMillis   = 1000
	defaultPaperQuoteBalance  = 1_000_000
	defaultAdvisoryAPIURL     = "https://api.openai.com/v1"
	defaultAdvisoryModel      = "gpt-4o"
	defaultAdvisoryTimeout    = 30
	defaultAdvisoryRetries    = 2
	defaultBreakerThreshold   = 5
	defaultBreakerCooldown    = 60
	defaultMinProbability     = 70
	defaultMaxExposureRatio   = 0.70
	defaultMaxEntryEquity     = 0.25
	defaultMinOrderNotional   = 5000
	defaultLifecycleInterval  = 10
	defaultTrailingGapPct     = 1.5
	defaultReevalInterval     = 300
	defaultMaxReevaluations   = 5
	defaultDriftWindowSeconds = 1800
	defaultMonitorConcurrency = 4
	defaultScanInterval       = 60
	defaultScanCandleCount    = 30
	defaultMinQuoteVolume     = 500_000
	defaultMinChangePct       = 3
	defaultVolumeSMAPeriod    = 20
	defaultMinVolumeRatio     = 1
	defaultScanConcurrency    = 4
	defaultStrategyLabel      = "breakout_chase"
	defaultFeedbackInterval   = 86400
	defaultFeedbackMinSamples = 1
	defaultLedgerPath         = "data/db/ledger.db"
	defaultPositionsPath      = "data/db/positions.db"
	defaultNotifyMinLevel     = "info"
	defaultHTTPAddr           = ":9991"
	defaultPollTimeout        = 30
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Advisory.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Lifecycle.applyDefaults(keys)
	c.Scan.applyDefaults(keys)
	c.Feedback.applyDefaults(keys)
	applyFieldDefaults(keys,
		stringFieldDefault("ledger.path", &c.Ledger.Path, defaultLedgerPath),
		stringFieldDefault("store.positions_path", &c.Store.PositionsPath, defaultPositionsPath),
		boolFieldDefault("store.reconcile", &c.Store.Reconcile, true),
		stringFieldDefault("notify.min_level", &c.Notify.MinLevel, defaultNotifyMinLevel),
		stringFieldDefault("http.addr", &c.HTTP.Addr, defaultHTTPAddr),
		boolFieldDefault("http.enabled", &c.HTTP.Enabled, true),
		intFieldDefault("telegram_commands.poll_timeout_seconds", &c.Commands.PollTimeoutSeconds, defaultPollTimeout),
	)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
		stringFieldDefault("app.advisory_log_path", &a.AdvisoryLog, defaultAdvisoryLogPath),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	e.Venue = strings.ToLower(strings.TrimSpace(e.Venue))
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.venue", &e.Venue, defaultVenue),
		intFieldDefault("exchange.requests_per_minute", &e.RequestsPerMinute, defaultRequestsPerMinute),
		intFieldDefault("exchange.timeout_seconds", &e.TimeoutSeconds, defaultExchangeTimeout),
		intFieldDefault("exchange.fill_settle_millis", &e.FillSettleMillis, defaultFillSettleMillis),
		floatFieldDefault("exchange.paper_quote_balance", &e.PaperQuoteBalance, defaultPaperQuoteBalance),
	)
	if e.Venue == "paper" {
		applyFieldDefaults(keys, stringFieldDefault("exchange.paper_venue", &e.PaperVenue, defaultVenue))
	}
	quote := defaultUpbitQuote
	if e.PriceVenue() == "binance" {
		quote = defaultBinanceQuote
	}
	applyFieldDefaults(keys, stringFieldDefault("exchange.quote_asset", &e.QuoteAsset, quote))
	e.QuoteAsset = strings.ToUpper(strings.TrimSpace(e.QuoteAsset))
}

// PriceVenue 返回提供行情的真实交易所名称，paper 模式下为 paper_venue。
func (e ExchangeConfig) PriceVenue() string {
	if e.Venue == "paper" {
		return strings.ToLower(strings.TrimSpace(e.PaperVenue))
	}
	return e.Venue
}

func (a *AdvisoryConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("advisory.api_url", &a.APIURL, defaultAdvisoryAPIURL),
		stringFieldDefault("advisory.model", &a.Model, defaultAdvisoryModel),
		intFieldDefault("advisory.timeout_seconds", &a.TimeoutSeconds, defaultAdvisoryTimeout),
		intFieldDefault("advisory.max_retries", &a.MaxRetries, defaultAdvisoryRetries),
		intFieldDefault("advisory.breaker_threshold", &a.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("advisory.breaker_cooldown_seconds", &a.BreakerCooldownSeconds, defaultBreakerCooldown),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("risk.min_probability", &r.MinProbability, defaultMinProbability),
		floatFieldDefault("risk.max_exposure_ratio", &r.MaxExposureRatio, defaultMaxExposureRatio),
		floatFieldDefault("risk.max_entry_equity_ratio", &r.MaxEntryEquityRatio, defaultMaxEntryEquity),
		floatFieldDefault("risk.min_order_notional", &r.MinOrderNotional, defaultMinOrderNotional),
	)
}

func (l *LifecycleConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("lifecycle.interval_seconds", &l.IntervalSeconds, defaultLifecycleInterval),
		floatFieldDefault("lifecycle.trailing_stop_gap_pct", &l.TrailingStopGapPct, defaultTrailingGapPct),
		intFieldDefault("lifecycle.reevaluation_interval_seconds", &l.ReevaluationIntervalSeconds, defaultReevalInterval),
		intFieldDefault("lifecycle.max_reevaluations", &l.MaxReevaluations, defaultMaxReevaluations),
		intFieldDefault("lifecycle.drift_window_seconds", &l.DriftWindowSeconds, defaultDriftWindowSeconds),
		intFieldDefault("lifecycle.concurrency", &l.Concurrency, defaultMonitorConcurrency),
	)
}

func (s *ScanConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("scan.enabled", &s.Enabled, true),
		intFieldDefault("scan.interval_seconds", &s.IntervalSeconds, defaultScanInterval),
		intFieldDefault("scan.candle_count", &s.CandleCount, defaultScanCandleCount),
		floatFieldDefault("scan.min_quote_volume", &s.MinQuoteVolume, defaultMinQuoteVolume),
		floatFieldDefault("scan.min_change_pct", &s.MinChangePct, defaultMinChangePct),
		intFieldDefault("scan.volume_sma_period", &s.VolumeSMAPeriod, defaultVolumeSMAPeriod),
		floatFieldDefault("scan.min_volume_ratio", &s.MinVolumeRatio, defaultMinVolumeRatio),
		intFieldDefault("scan.concurrency", &s.Concurrency, defaultScanConcurrency),
		stringFieldDefault("scan.strategy_label", &s.StrategyLabel, defaultStrategyLabel),
	)
	s.Symbols = normalizeList(s.Symbols, strings.ToUpper)
}

func (f *FeedbackConfig) applyDefaults(keys keySet) {
	if f == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("feedback.interval_seconds", &f.IntervalSeconds, defaultFeedbackInterval),
		intFieldDefault("feedback.min_samples", &f.MinSamples, defaultFeedbackMinSamples),
	)
	f.Blocked = normalizeList(f.Blocked, nil)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			*target = def
		},
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			*target = def
		},
	}
}

func normalizeList(items []string, transform func(string) string) []string {
	if len(items) == 0 {
		return nil
	}
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if transform != nil {
			item = transform(item)
		}
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
