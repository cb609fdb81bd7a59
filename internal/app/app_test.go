package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotguard/internal/advisory"
	"spotguard/internal/config"
	"spotguard/internal/gateway/paper"
	"spotguard/internal/ledger"
	"spotguard/internal/market"
	"spotguard/internal/notify"
	"spotguard/internal/pkg/circuit"
)

type stubMarket struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	candles map[string][]market.Candle
}

func (m *stubMarket) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		return decimal.Zero, market.ErrUnavailable
	}
	return p, nil
}

func (m *stubMarket) RecentCandles(_ context.Context, symbol string, n int) ([]market.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candles[symbol]
	if !ok {
		return nil, market.ErrUnavailable
	}
	if len(c) > n {
		c = c[len(c)-n:]
	}
	return c, nil
}

func (m *stubMarket) Symbols(context.Context) ([]string, error) {
	return []string{"BTC/KRW", "ETH/KRW", "SOL/USDT"}, nil
}

// breakout 生成 n-1 根平稳 K 线加最后一根放量上涨的 K 线。
func breakout(n int, base, last float64) []market.Candle {
	out := make([]market.Candle, 0, n)
	for i := 0; i < n-1; i++ {
		out = append(out, market.Candle{Close: base, Volume: 1000})
	}
	return append(out, market.Candle{Close: last, Volume: 10_000})
}

type stubAdvisor struct {
	mu    sync.Mutex
	calls []string
	res   advisory.Result
}

func (a *stubAdvisor) Evaluate(_ context.Context, symbol, label string, _ decimal.Decimal) (advisory.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, symbol+"|"+label)
	return a.res, nil
}

func (a *stubAdvisor) Reevaluate(context.Context, string, string, decimal.Decimal, decimal.Decimal) (advisory.Result, error) {
	return advisory.Result{}, advisory.ErrNoSignal
}

func (a *stubAdvisor) Suggest(context.Context, []ledger.StrategyStats, []string) (string, error) {
	return "keep breakout_chase", nil
}

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	for _, name := range []string{
		"SPOTGUARD_OPENAI_API_KEY", "OPENAI_API_KEY", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
		"SPOTGUARD_VENUE", "UPBIT_ACCESS_KEY", "UPBIT_SECRET_KEY", "BINANCE_API_KEY",
		"BINANCE_SECRET_KEY", "SPOTGUARD_LOG_LEVEL",
	} {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	body := fmt.Sprintf(`
app:
  log_level: error
exchange:
  venue: paper
  paper_venue: upbit
  fill_settle_millis: 0
advisory:
  api_key: sk-test
lifecycle:
  interval_seconds: 1
ledger:
  path: %s
store:
  positions_path: %s
  reconcile: true
http:
  enabled: false
%s`, filepath.Join(dir, "ledger.db"), filepath.Join(dir, "positions.db"), extra)
	path := filepath.Join(dir, "spotguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, data *stubMarket, adv *stubAdvisor) *App {
	t.Helper()
	a, err := NewApp(cfg,
		WithVenue(func(ec config.ExchangeConfig) (*Venue, error) {
			return &Venue{
				Market: data,
				Exchange: paper.New(paper.Config{
					QuoteAsset:   ec.QuoteAsset,
					QuoteBalance: decimal.NewFromFloat(ec.PaperQuoteBalance),
				}, data),
			}, nil
		}),
		WithAdvisor(func(config.AdvisoryConfig) (advisory.Advisor, *circuit.CircuitBreaker, error) {
			return adv, nil, nil
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func signal() advisory.Result {
	return advisory.Result{
		SuccessProbability: decimal.NewFromInt(90),
		TakeProfitPct:      decimal.NewFromInt(5),
		StopLossPct:        decimal.NewFromInt(2),
		SizeHintPct:        decimal.NewFromInt(10),
	}
}

func TestScanOnceAdmitsBreakouts(t *testing.T) {
	cfg := loadConfig(t, "")
	data := &stubMarket{
		prices: map[string]decimal.Decimal{"BTC/KRW": decimal.NewFromInt(105), "ETH/KRW": decimal.NewFromInt(100)},
		candles: map[string][]market.Candle{
			"BTC/KRW": breakout(30, 100, 105),
			"ETH/KRW": breakout(30, 100, 100.5),
		},
	}
	adv := &stubAdvisor{res: signal()}
	a := newTestApp(t, cfg, data, adv)
	ctx := context.Background()

	require.NoError(t, a.ScanOnce(ctx))
	assert.Equal(t, []string{"BTC/KRW|breakout_chase"}, adv.calls)

	pos, ok := a.Book().Get("BTC/KRW")
	require.True(t, ok)
	assert.Equal(t, "breakout_chase", pos.StrategyLabel)
	// 10% of 1,000,000 available, under the 25% equity cap
	assert.True(t, pos.QuoteSpent.Equal(decimal.NewFromInt(100_000)), pos.QuoteSpent.String())

	entries, err := a.Ledger().Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindEntry, entries[0].Kind)

	// held symbols are skipped by the scanner
	require.NoError(t, a.ScanOnce(ctx))
	assert.Len(t, adv.calls, 1)
}

func TestScanOnceDisabled(t *testing.T) {
	cfg := loadConfig(t, "scan:\n  enabled: false\n")
	a := newTestApp(t, cfg, &stubMarket{}, &stubAdvisor{})
	assert.Nil(t, a.scanner)
	assert.NoError(t, a.ScanOnce(context.Background()))
	assert.Equal(t, []string{"lifecycle", "prune"}, a.Scheduler().Tasks())
}

func TestRunRecoversAndStops(t *testing.T) {
	cfg := loadConfig(t, "")
	data := &stubMarket{
		prices:  map[string]decimal.Decimal{"BTC/KRW": decimal.NewFromInt(105)},
		candles: map[string][]market.Candle{},
	}
	a := newTestApp(t, cfg, data, &stubAdvisor{res: signal()})
	a.Summary = nil
	assert.Equal(t, []string{"lifecycle", "prune", "scan"}, a.Scheduler().Tasks())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestManualBuyThroughOperator(t *testing.T) {
	cfg := loadConfig(t, "")
	data := &stubMarket{prices: map[string]decimal.Decimal{"XRP/KRW": decimal.NewFromInt(700)}}
	a := newTestApp(t, cfg, data, &stubAdvisor{res: signal()})

	d, err := a.Operator().Buy(context.Background(), "xrp", decimal.NewFromInt(50_000))
	require.NoError(t, err)
	require.True(t, d.Accepted, d.String())
	assert.True(t, d.BuyAmount.Equal(decimal.NewFromInt(50_000)))
	assert.True(t, a.Book().Has("XRP/KRW"))
}

func TestApplyConfigUpdatesLevels(t *testing.T) {
	cfg := loadConfig(t, "")
	a := newTestApp(t, cfg, &stubMarket{}, &stubAdvisor{})

	next := *cfg
	next.Notify.MinLevel = "error"
	a.ApplyConfig(&next)
	assert.Equal(t, notify.LevelError, a.Hub().MinLevel())
}

func TestWatchBreakersNotifiesOnOpen(t *testing.T) {
	mem := &notify.Memory{}
	cb := circuit.NewCircuitBreaker("advisory:test", 1, time.Minute)
	watchBreakers([]*circuit.CircuitBreaker{cb, nil}, mem)

	cb.RecordFailure()
	require.Eventually(t, func() bool {
		return mem.Count("circuit advisory:test open") == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSummaryReportsVenue(t *testing.T) {
	cfg := loadConfig(t, "feedback:\n  blocked: [momentum]\n")
	a := newTestApp(t, cfg, &stubMarket{}, &stubAdvisor{})

	var buf bytes.Buffer
	a.Summary.Fprint(&buf)
	out := buf.String()
	assert.Contains(t, out, "执行端: paper")
	assert.Contains(t, out, "行情源: upbit")
	assert.Contains(t, out, "初始屏蔽: momentum")
	assert.True(t, a.blocklist.IsBlocked("momentum"))
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := loadConfig(t, "")
	a := newTestApp(t, cfg, &stubMarket{}, &stubAdvisor{})
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestBuildVenueRejectsUnknown(t *testing.T) {
	_, err := buildVenue(config.ExchangeConfig{Venue: "kraken"})
	assert.Error(t, err)
}
