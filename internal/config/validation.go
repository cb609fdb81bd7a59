package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Advisory.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Lifecycle.validate(); err != nil {
		return err
	}
	if err := c.Scan.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if c.Commands.Enabled && !c.Notify.Telegram.Enabled {
		return fmt.Errorf("telegram_commands.enabled requires notify.telegram credentials")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch e.Venue {
	case "upbit", "binance":
		if strings.TrimSpace(e.AccessKey) == "" || strings.TrimSpace(e.SecretKey) == "" {
			return fmt.Errorf("exchange.%s requires access_key and secret_key", e.Venue)
		}
	case "paper":
		switch e.PaperVenue {
		case "upbit", "binance":
		default:
			return fmt.Errorf("exchange.paper_venue must be upbit or binance, got %q", e.PaperVenue)
		}
		if e.PaperFeePct < 0 || e.PaperFeePct >= 100 {
			return fmt.Errorf("exchange.paper_fee_pct must be in [0,100)")
		}
	default:
		return fmt.Errorf("exchange.venue must be upbit, binance or paper, got %q", e.Venue)
	}
	if e.QuoteAsset == "" {
		return fmt.Errorf("exchange.quote_asset cannot be empty")
	}
	return nil
}

func (a *AdvisoryConfig) validate() error {
	if strings.TrimSpace(a.APIKey) == "" {
		return fmt.Errorf("advisory.api_key is required (or set OPENAI_API_KEY)")
	}
	if strings.TrimSpace(a.Model) == "" {
		return fmt.Errorf("advisory.model cannot be empty")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MinProbability > 100 {
		return fmt.Errorf("risk.min_probability must be <= 100")
	}
	if r.MaxExposureRatio > 1 {
		return fmt.Errorf("risk.max_exposure_ratio must be in (0,1]")
	}
	if r.MaxEntryEquityRatio > 1 {
		return fmt.Errorf("risk.max_entry_equity_ratio must be in (0,1]")
	}
	return nil
}

func (l *LifecycleConfig) validate() error {
	if l.TrailingStopGapPct >= 100 {
		return fmt.Errorf("lifecycle.trailing_stop_gap_pct must be < 100")
	}
	return nil
}

func (s *ScanConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if s.CandleCount < 2 {
		return fmt.Errorf("scan.candle_count must be >= 2")
	}
	if s.VolumeSMAPeriod >= s.CandleCount {
		return fmt.Errorf("scan.volume_sma_period (%d) must be smaller than scan.candle_count (%d)", s.VolumeSMAPeriod, s.CandleCount)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(n.MinLevel)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("notify.min_level must be debug, info, warn or error")
	}
	if n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.BotToken) == "" {
			return fmt.Errorf("notify.telegram.bot_token cannot be empty")
		}
		if strings.TrimSpace(n.Telegram.ChatID) == "" {
			return fmt.Errorf("notify.telegram.chat_id cannot be empty")
		}
	}
	return nil
}
