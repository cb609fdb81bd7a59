package operator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotguard/internal/advisory"
	"spotguard/internal/book"
	"spotguard/internal/feedback"
	"spotguard/internal/gateway/paper"
	"spotguard/internal/ledger"
	"spotguard/internal/market"
	"spotguard/internal/notify"
	"spotguard/internal/risk"
)

type prices map[string]decimal.Decimal

func (p prices) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	v, ok := p[symbol]
	if !ok {
		return decimal.Zero, market.ErrUnavailable
	}
	return v, nil
}

func (p prices) RecentCandles(context.Context, string, int) ([]market.Candle, error) { return nil, nil }

func (p prices) Symbols(context.Context) ([]string, error) { return nil, nil }

type fakeBuyer struct {
	symbol string
	amount decimal.Decimal
}

func (b *fakeBuyer) ManualBuy(_ context.Context, symbol string, amount decimal.Decimal) risk.Decision {
	b.symbol, b.amount = symbol, amount
	return risk.Decision{Accepted: true, Reason: risk.Accepted, Symbol: symbol, BuyAmount: amount}
}

type suggestAdvisor struct {
	stats   []ledger.StrategyStats
	blocked []string
}

func (a *suggestAdvisor) Evaluate(context.Context, string, string, decimal.Decimal) (advisory.Result, error) {
	return advisory.Result{}, advisory.ErrNoSignal
}

func (a *suggestAdvisor) Reevaluate(context.Context, string, string, decimal.Decimal, decimal.Decimal) (advisory.Result, error) {
	return advisory.Result{}, advisory.ErrNoSignal
}

func (a *suggestAdvisor) Suggest(_ context.Context, stats []ledger.StrategyStats, blocked []string) (string, error) {
	a.stats, a.blocked = stats, blocked
	return "tighten stop loss on breakout_chase", nil
}

type fixture struct {
	svc     *Service
	book    *book.Book
	block   *feedback.Blocklist
	store   *ledger.Store
	prices  prices
	buyer   *fakeBuyer
	advisor *suggestAdvisor
	notes   *notify.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := ledger.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		book:    book.New(nil),
		block:   feedback.NewBlocklist(),
		store:   store,
		prices:  prices{"BTC/KRW": decimal.NewFromInt(110), "ETH/KRW": decimal.NewFromInt(50)},
		buyer:   &fakeBuyer{},
		advisor: &suggestAdvisor{},
		notes:   &notify.Memory{},
	}
	ex := paper.New(paper.Config{QuoteAsset: "KRW", QuoteBalance: decimal.NewFromInt(100_000)}, f.prices)
	f.svc = NewService(Deps{
		Book:      f.book,
		Blocklist: f.block,
		Market:    f.prices,
		Exchange:  ex,
		Ledger:    store,
		Advisor:   f.advisor,
		Buyer:     f.buyer,
		Notifier:  f.notes,
	})
	return f
}

func (f *fixture) open(t *testing.T, symbol string, entry, qty int64) {
	t.Helper()
	require.NoError(t, f.book.Open(book.Position{
		Symbol:        symbol,
		TradeID:       symbol + "-1",
		EntryPrice:    decimal.NewFromInt(entry),
		Quantity:      decimal.NewFromInt(qty),
		StrategyLabel: "breakout_chase",
		TakeProfitPct: decimal.NewFromInt(5),
		StopLossPct:   decimal.NewFromInt(2),
		CreatedAt:     time.Now().Add(-time.Minute),
	}))
}

func TestSymbolParsing(t *testing.T) {
	f := newFixture(t)
	for in, want := range map[string]string{
		"btc":     "BTC/KRW",
		" eth ":   "ETH/KRW",
		"KRW-XRP": "XRP/KRW",
		"BTC/KRW": "BTC/KRW",
		"SOLKRW":  "SOL/KRW",
	} {
		got, err := f.svc.Symbol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := f.svc.Symbol("  ")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
	_, err = f.svc.Symbol("/")
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestBalanceIncludesMarkValue(t *testing.T) {
	f := newFixture(t)
	f.open(t, "BTC/KRW", 100, 100)

	view, err := f.svc.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "KRW", view.QuoteAsset)
	assert.True(t, view.Available.Equal(decimal.NewFromInt(100_000)))
	assert.True(t, view.MarkValue.Equal(decimal.NewFromInt(11_000)), view.MarkValue.String())
	assert.True(t, view.Equity.Equal(decimal.NewFromInt(111_000)))
	assert.True(t, view.Exposure.IsPositive())
}

func TestPositionsWithMissingPrice(t *testing.T) {
	f := newFixture(t)
	f.open(t, "BTC/KRW", 100, 2)
	f.open(t, "DOGE/KRW", 10, 5)

	views := f.svc.Positions(context.Background())
	require.Len(t, views, 2)
	assert.Equal(t, "BTC/KRW", views[0].Symbol)
	assert.True(t, views[0].PriceOK)
	assert.True(t, views[0].UnrealizedPct.Equal(decimal.NewFromInt(10)))
	assert.True(t, views[0].MarkValue.Equal(decimal.NewFromInt(220)))
	assert.NotEmpty(t, views[0].HeldFor)

	assert.Equal(t, "DOGE/KRW", views[1].Symbol)
	assert.False(t, views[1].PriceOK)
	assert.True(t, views[1].MarkValue.IsZero())
}

func TestPrice(t *testing.T) {
	f := newFixture(t)
	sym, p, err := f.svc.Price(context.Background(), "eth")
	require.NoError(t, err)
	assert.Equal(t, "ETH/KRW", sym)
	assert.True(t, p.Equal(decimal.NewFromInt(50)))

	_, _, err = f.svc.Price(context.Background(), "ada")
	assert.True(t, errors.Is(err, market.ErrUnavailable))
}

func TestBuyNormalizesSymbol(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.Buy(context.Background(), "btc", decimal.NewFromInt(10_000))
	require.NoError(t, err)
	assert.True(t, d.Accepted)
	assert.Equal(t, "BTC/KRW", f.buyer.symbol)
	assert.True(t, f.buyer.amount.Equal(decimal.NewFromInt(10_000)))

	_, err = f.svc.Buy(context.Background(), "", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestStopRemovesWithoutSelling(t *testing.T) {
	f := newFixture(t)
	f.open(t, "BTC/KRW", 100, 2)

	pos, err := f.svc.Stop("btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC/KRW", pos.Symbol)
	assert.False(t, f.book.Has("BTC/KRW"))
	assert.Equal(t, 1, f.notes.Count("removed from automation"))

	_, err = f.svc.Stop("btc")
	assert.ErrorIs(t, err, book.ErrNotFound)
}

func TestRecentTradesDefaultsToFive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 7; i++ {
		require.NoError(t, f.store.Append(ctx, ledger.Entry{
			Kind:          ledger.KindEntry,
			Symbol:        "BTC/KRW",
			StrategyLabel: "breakout_chase",
			Outcome:       ledger.OutcomeEntry,
			EntryPrice:    decimal.NewFromInt(100),
			Timestamp:     base.Add(time.Duration(i) * time.Minute),
		}))
	}
	got, err := f.svc.RecentTrades(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = f.svc.RecentTrades(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStrategiesAndUnblock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Append(ctx, ledger.Entry{
		Kind:          ledger.KindExit,
		Symbol:        "BTC/KRW",
		StrategyLabel: "breakout_chase",
		Outcome:       ledger.OutcomeStopLoss,
		EntryPrice:    decimal.NewFromInt(100),
		ExitPrice:     decimal.NewFromInt(98),
		ReturnPct:     decimal.NewFromInt(-2),
		Timestamp:     time.Now(),
	}))
	f.block.Block("breakout_chase")

	view, err := f.svc.Strategies(ctx)
	require.NoError(t, err)
	require.Len(t, view.Stats, 1)
	assert.Equal(t, 1, view.Stats[0].Count)
	assert.Equal(t, []string{"breakout_chase"}, view.Blocked)

	assert.True(t, f.svc.Unblock(" breakout_chase "))
	assert.False(t, f.block.IsBlocked("breakout_chase"))
	assert.False(t, f.svc.Unblock("breakout_chase"))
	assert.Equal(t, 1, f.notes.Count("unblocked"))
}

func TestSuggestPassesStats(t *testing.T) {
	f := newFixture(t)
	f.block.Block("momentum")

	text, err := f.svc.Suggest(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "stop loss")
	assert.Equal(t, []string{"momentum"}, f.advisor.blocked)
}
