package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"spotguard/internal/config"
)

type StartupSummary struct {
	Venue     VenueSummary
	Risk      RiskSummary
	Lifecycle LifecycleSummary
	Scan      ScanSummary
	Feedback  FeedbackSummary
	Surfaces  []string
}

type VenueSummary struct {
	Execution  string
	PriceFeed  string
	QuoteAsset string
}

type RiskSummary struct {
	MinProbability      float64
	MaxExposureRatio    float64
	MaxEntryEquityRatio float64
	MinOrderNotional    float64
}

type LifecycleSummary struct {
	Interval         string
	TrailingGapPct   float64
	Reevaluation     string
	MaxReevaluations int
}

type ScanSummary struct {
	Enabled       bool
	Interval      string
	StrategyLabel string
	Symbols       []string
}

type FeedbackSummary struct {
	Interval   string
	MinSamples int
	Blocked    []string
}

func buildSummary(cfg *config.Config, venue *Venue) *StartupSummary {
	s := &StartupSummary{
		Venue: VenueSummary{
			PriceFeed:  cfg.Exchange.PriceVenue(),
			QuoteAsset: cfg.Exchange.QuoteAsset,
		},
		Risk: RiskSummary{
			MinProbability:      cfg.Risk.MinProbability,
			MaxExposureRatio:    cfg.Risk.MaxExposureRatio,
			MaxEntryEquityRatio: cfg.Risk.MaxEntryEquityRatio,
			MinOrderNotional:    cfg.Risk.MinOrderNotional,
		},
		Lifecycle: LifecycleSummary{
			Interval:         cfg.Lifecycle.Interval().String(),
			TrailingGapPct:   cfg.Lifecycle.TrailingStopGapPct,
			Reevaluation:     cfg.Lifecycle.ReevaluationInterval().String(),
			MaxReevaluations: cfg.Lifecycle.MaxReevaluations,
		},
		Scan: ScanSummary{
			Enabled:       cfg.Scan.Enabled,
			Interval:      cfg.Scan.Interval().String(),
			StrategyLabel: cfg.Scan.StrategyLabel,
			Symbols:       cfg.Scan.Symbols,
		},
		Feedback: FeedbackSummary{
			Interval:   cfg.Feedback.Interval().String(),
			MinSamples: cfg.Feedback.MinSamples,
			Blocked:    cfg.Feedback.Blocked,
		},
	}
	if venue != nil && venue.Exchange != nil {
		s.Venue.Execution = venue.Exchange.Name()
	}
	if cfg.HTTP.Enabled {
		s.Surfaces = append(s.Surfaces, "http "+cfg.HTTP.Addr)
	}
	if cfg.Notify.Telegram.Enabled {
		s.Surfaces = append(s.Surfaces, "telegram alerts")
	}
	if cfg.Commands.Enabled {
		s.Surfaces = append(s.Surfaces, "telegram commands")
	}
	return s
}

func (s *StartupSummary) Print() {
	s.Fprint(os.Stdout)
}

func (s *StartupSummary) Fprint(w io.Writer) {
	title := "启动配置摘要 (STARTUP SUMMARY)"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[交易所 (VENUE)]")
	fmt.Fprintf(w, "  执行端: %s\n", s.Venue.Execution)
	fmt.Fprintf(w, "  行情源: %s\n", s.Venue.PriceFeed)
	fmt.Fprintf(w, "  计价币: %s\n", s.Venue.QuoteAsset)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[准入控制 (ADMISSION)]")
	fmt.Fprintf(w, "  最低概率: %.0f\n", s.Risk.MinProbability)
	fmt.Fprintf(w, "  敞口上限: %.0f%%\n", s.Risk.MaxExposureRatio*100)
	fmt.Fprintf(w, "  单笔上限: %.0f%% 权益\n", s.Risk.MaxEntryEquityRatio*100)
	fmt.Fprintf(w, "  最小下单: %g\n", s.Risk.MinOrderNotional)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[持仓管理 (LIFECYCLE)]")
	fmt.Fprintf(w, "  监控周期: %s\n", s.Lifecycle.Interval)
	fmt.Fprintf(w, "  移动止损: %.2f%%\n", s.Lifecycle.TrailingGapPct)
	fmt.Fprintf(w, "  复评间隔: %s (最多 %d 次)\n", s.Lifecycle.Reevaluation, s.Lifecycle.MaxReevaluations)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[突破扫描 (SCAN)]")
	if !s.Scan.Enabled {
		fmt.Fprintln(w, "  (未启用)")
	} else {
		fmt.Fprintf(w, "  扫描周期: %s\n", s.Scan.Interval)
		fmt.Fprintf(w, "  策略标签: %s\n", s.Scan.StrategyLabel)
		fmt.Fprintf(w, "  扫描范围: %s\n", formatList(s.Scan.Symbols, "全市场"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[策略反馈 (FEEDBACK)]")
	fmt.Fprintf(w, "  修剪周期: %s\n", s.Feedback.Interval)
	fmt.Fprintf(w, "  最少样本: %d\n", s.Feedback.MinSamples)
	fmt.Fprintf(w, "  初始屏蔽: %s\n", formatList(s.Feedback.Blocked, "-"))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "[运维接口]: %s\n", formatList(s.Surfaces, "(无)"))
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items, ", ")
}
