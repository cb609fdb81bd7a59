package config

import (
	"strings"
	"time"
)

// Config is the root configuration document.
type Config struct {
	App       AppConfig       `toml:"app"`
	Exchange  ExchangeConfig  `toml:"exchange"`
	Advisory  AdvisoryConfig  `toml:"advisory"`
	Risk      RiskConfig      `toml:"risk"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Scan      ScanConfig      `toml:"scan"`
	Feedback  FeedbackConfig  `toml:"feedback"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
	HTTP      HTTPConfig      `toml:"http"`
	Commands  CommandsConfig  `toml:"telegram_commands"`
}

type AppConfig struct {
	Env          string `toml:"env"`
	LogLevel     string `toml:"log_level"`
	LogPath      string `toml:"log_path"`
	AdvisoryLog  string `toml:"advisory_log_path"`
	AdvisoryDump bool   `toml:"advisory_dump"`
}

// ExchangeConfig selects the venue adapter. paper simulates fills against live prices.
type ExchangeConfig struct {
	Venue             string  `toml:"venue"` // upbit | binance | paper
	QuoteAsset        string  `toml:"quote_asset"`
	AccessKey         string  `toml:"access_key"`
	SecretKey         string  `toml:"secret_key"`
	RESTBaseURL       string  `toml:"rest_base_url"`
	ProxyURL          string  `toml:"proxy_url"` // binance only
	RequestsPerMinute int     `toml:"requests_per_minute"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	FillSettleMillis  int     `toml:"fill_settle_millis"`
	PaperVenue        string  `toml:"paper_venue"` // price source for paper mode
	PaperQuoteBalance float64 `toml:"paper_quote_balance"`
	PaperFeePct       float64 `toml:"paper_fee_pct"`
}

func (e ExchangeConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

func (e ExchangeConfig) FillSettle() time.Duration {
	return time.Duration(e.FillSettleMillis) * time.Millisecond
}

// AdvisoryConfig describes the OpenAI-compatible chat endpoint used for entry/exit advice.
type AdvisoryConfig struct {
	APIURL                 string            `toml:"api_url"`
	APIKey                 string            `toml:"api_key"`
	Model                  string            `toml:"model"`
	Headers                map[string]string `toml:"headers"`
	TimeoutSeconds         int               `toml:"timeout_seconds"`
	MaxRetries             int               `toml:"max_retries"`
	BreakerThreshold       int               `toml:"breaker_threshold"`
	BreakerCooldownSeconds int               `toml:"breaker_cooldown_seconds"`
	SystemPrompt           string            `toml:"system_prompt"`
}

func (a AdvisoryConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

func (a AdvisoryConfig) BreakerCooldown() time.Duration {
	return time.Duration(a.BreakerCooldownSeconds) * time.Second
}

// RiskConfig holds admission control limits. Ratios are in (0,1], notional in quote units.
type RiskConfig struct {
	MinProbability      float64 `toml:"min_probability"`
	MaxExposureRatio    float64 `toml:"max_exposure_ratio"`
	MaxEntryEquityRatio float64 `toml:"max_entry_equity_ratio"`
	MinOrderNotional    float64 `toml:"min_order_notional"`
}

type LifecycleConfig struct {
	IntervalSeconds             int     `toml:"interval_seconds"`
	TrailingStopGapPct          float64 `toml:"trailing_stop_gap_pct"`
	ReevaluationIntervalSeconds int     `toml:"reevaluation_interval_seconds"`
	MaxReevaluations            int     `toml:"max_reevaluations"`
	DriftWindowSeconds          int     `toml:"drift_window_seconds"`
	Concurrency                 int     `toml:"concurrency"`
}

func (l LifecycleConfig) Interval() time.Duration {
	return time.Duration(l.IntervalSeconds) * time.Second
}

func (l LifecycleConfig) ReevaluationInterval() time.Duration {
	return time.Duration(l.ReevaluationIntervalSeconds) * time.Second
}

func (l LifecycleConfig) DriftWindow() time.Duration {
	return time.Duration(l.DriftWindowSeconds) * time.Second
}

// ScanConfig tunes the breakout scanner feeding admission control.
type ScanConfig struct {
	Enabled         bool     `toml:"enabled"`
	IntervalSeconds int      `toml:"interval_seconds"`
	CandleCount     int      `toml:"candle_count"`
	MinQuoteVolume  float64  `toml:"min_quote_volume"`
	MinChangePct    float64  `toml:"min_change_pct"`
	VolumeSMAPeriod int      `toml:"volume_sma_period"`
	MinVolumeRatio  float64  `toml:"min_volume_ratio"`
	Concurrency     int      `toml:"concurrency"`
	StrategyLabel   string   `toml:"strategy_label"`
	Symbols         []string `toml:"symbols"`
}

func (s ScanConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

type FeedbackConfig struct {
	IntervalSeconds int      `toml:"interval_seconds"`
	MinSamples      int      `toml:"min_samples"`
	Blocked         []string `toml:"blocked"`
}

func (f FeedbackConfig) Interval() time.Duration {
	return time.Duration(f.IntervalSeconds) * time.Second
}

type LedgerConfig struct {
	Path string `toml:"path"`
}

type StoreConfig struct {
	PositionsPath string `toml:"positions_path"`
	Reconcile     bool   `toml:"reconcile"`
}

type NotifyConfig struct {
	MinLevel string         `toml:"min_level"`
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// CommandsConfig enables the Telegram long-poll operator listener. It reuses notify.telegram credentials.
type CommandsConfig struct {
	Enabled            bool `toml:"enabled"`
	PollTimeoutSeconds int  `toml:"poll_timeout_seconds"`
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
