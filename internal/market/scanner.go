package market

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"spotguard/internal/logger"
	symbolpkg "spotguard/internal/pkg/symbol"

	"github.com/markcheno/go-talib"
	"golang.org/x/sync/errgroup"
)

// ScannerConfig 描述突破判定阈值。
type ScannerConfig struct {
	QuoteAsset      string
	CandleCount     int
	MinQuoteVolume  float64
	MinChangePct    float64
	VolumeSMAPeriod int
	MinVolumeRatio  float64
	Concurrency     int
	Symbols         []string
}

// Candidate 是一次扫描命中的突破候选。
type Candidate struct {
	Symbol      string
	ChangePct   float64
	QuoteVolume float64
	VolumeRatio float64
	Close       float64
}

// Scanner 在扫描范围内寻找量价齐升的交易对。
type Scanner struct {
	cfg  ScannerConfig
	data Data
}

func NewScanner(cfg ScannerConfig, data Data) *Scanner {
	if cfg.CandleCount < 2 {
		cfg.CandleCount = 2
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Scanner{cfg: cfg, data: data}
}

// Universe 返回扫描范围：配置白名单优先，否则取交易所全部计价币交易对。
func (s *Scanner) Universe(ctx context.Context) ([]string, error) {
	if len(s.cfg.Symbols) > 0 {
		out := make([]string, 0, len(s.cfg.Symbols))
		for _, sym := range s.cfg.Symbols {
			if norm := symbolpkg.WithQuote(sym, s.cfg.QuoteAsset); norm != "" {
				out = append(out, norm)
			}
		}
		return out, nil
	}
	all, err := s.data.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list symbols failed: %w", err)
	}
	quote := strings.ToUpper(s.cfg.QuoteAsset)
	out := make([]string, 0, len(all))
	for _, sym := range all {
		if quote == "" || symbolpkg.Parse(sym).Quote == quote {
			out = append(out, sym)
		}
	}
	return out, nil
}

// Scan 并发拉取 K 线并返回命中的候选，skip 中的交易对（已持仓）不会被拉取。
// 单个交易对的拉取失败只记日志，不影响其他交易对。
func (s *Scanner) Scan(ctx context.Context, skip func(symbol string) bool) ([]Candidate, error) {
	universe, err := s.Universe(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*Candidate, len(universe))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, sym := range universe {
		if skip != nil && skip(sym) {
			continue
		}
		g.Go(func() error {
			candles, err := s.data.RecentCandles(gctx, sym, s.cfg.CandleCount)
			if err != nil {
				logger.Debugf("scan: candles %s failed: %v", sym, err)
				return nil
			}
			if cand, ok := s.Detect(sym, candles); ok {
				results[i] = &cand
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make([]Candidate, 0)
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangePct > out[j].ChangePct })
	return out, ctx.Err()
}

// Detect 判断最新一根 K 线是否构成突破：成交额达标、相对上一根收盘涨幅达标，
// 且成交量不低于前 N 根均量的 MinVolumeRatio 倍（K 线不足时跳过均量过滤）。
func (s *Scanner) Detect(symbol string, candles []Candle) (Candidate, bool) {
	if len(candles) < 2 {
		return Candidate{}, false
	}
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]
	if prev.Close <= 0 {
		return Candidate{}, false
	}
	turnover := last.QuoteTurnover()
	if turnover < s.cfg.MinQuoteVolume {
		return Candidate{}, false
	}
	change := (last.Close - prev.Close) / prev.Close * 100
	if change < s.cfg.MinChangePct {
		return Candidate{}, false
	}
	ratio := 0.0
	period := s.cfg.VolumeSMAPeriod
	if period > 1 && len(candles) > period {
		vols := make([]float64, len(candles)-1)
		for i := range vols {
			vols[i] = candles[i].Volume
		}
		sma := talib.Sma(vols, period)
		if avg := sma[len(sma)-1]; avg > 0 {
			ratio = last.Volume / avg
			if s.cfg.MinVolumeRatio > 0 && ratio < s.cfg.MinVolumeRatio {
				return Candidate{}, false
			}
		}
	}
	return Candidate{
		Symbol:      symbol,
		ChangePct:   change,
		QuoteVolume: turnover,
		VolumeRatio: ratio,
		Close:       last.Close,
	}, true
}
