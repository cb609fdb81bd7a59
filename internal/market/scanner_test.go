package market

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeData struct {
	mu      sync.Mutex
	symbols []string
	candles map[string][]Candle
	fetched []string
}

func (f *fakeData) CurrentPrice(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, ErrUnavailable
}

func (f *fakeData) RecentCandles(_ context.Context, symbol string, _ int) ([]Candle, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, symbol)
	f.mu.Unlock()
	c, ok := f.candles[symbol]
	if !ok {
		return nil, errors.New("no data")
	}
	return c, nil
}

func (f *fakeData) Symbols(context.Context) ([]string, error) { return f.symbols, nil }

func flat(n int, close, vol float64) []Candle {
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{Open: close, Close: close, Volume: vol}
	}
	return out
}

func breakout(n int) []Candle {
	c := flat(n, 100, 1000)
	c[n-1] = Candle{Open: 100, Close: 104, Volume: 5000}
	return c
}

func TestDetectBreakout(t *testing.T) {
	s := NewScanner(ScannerConfig{MinQuoteVolume: 500_000, MinChangePct: 3, VolumeSMAPeriod: 5, MinVolumeRatio: 2}, nil)

	cand, ok := s.Detect("BTC/KRW", breakout(10))
	require.True(t, ok)
	assert.InDelta(t, 4.0, cand.ChangePct, 1e-9)
	assert.InDelta(t, 520_000.0, cand.QuoteVolume, 1e-6)
	assert.InDelta(t, 5.0, cand.VolumeRatio, 1e-9)
}

func TestDetectRejects(t *testing.T) {
	s := NewScanner(ScannerConfig{MinQuoteVolume: 500_000, MinChangePct: 3, VolumeSMAPeriod: 5, MinVolumeRatio: 2}, nil)

	small := breakout(10)
	small[9].Volume = 100
	_, ok := s.Detect("A/KRW", small)
	assert.False(t, ok, "turnover below threshold")

	down := flat(10, 100, 10_000)
	down[9] = Candle{Close: 96, Volume: 10_000}
	_, ok = s.Detect("B/KRW", down)
	assert.False(t, ok, "downward move is not a breakout")

	noSurge := flat(10, 100, 5000)
	noSurge[9] = Candle{Close: 104, Volume: 6000}
	_, ok = s.Detect("C/KRW", noSurge)
	assert.False(t, ok, "volume ratio below threshold")

	_, ok = s.Detect("D/KRW", flat(1, 100, 1))
	assert.False(t, ok)
}

func TestScanSkipsOpenAndFiltersQuote(t *testing.T) {
	data := &fakeData{
		symbols: []string{"BTC/KRW", "ETH/KRW", "XRP/KRW", "BTC/USDT"},
		candles: map[string][]Candle{
			"BTC/KRW":  breakout(10),
			"ETH/KRW":  breakout(10),
			"BTC/USDT": breakout(10),
		},
	}
	s := NewScanner(ScannerConfig{QuoteAsset: "KRW", CandleCount: 10, MinQuoteVolume: 500_000, MinChangePct: 3, Concurrency: 2}, data)

	got, err := s.Scan(context.Background(), func(sym string) bool { return sym == "ETH/KRW" })
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "BTC/KRW", got[0].Symbol)
	assert.NotContains(t, data.fetched, "ETH/KRW")
	assert.NotContains(t, data.fetched, "BTC/USDT")
	assert.Contains(t, data.fetched, "XRP/KRW")
}

func TestUniverseAllowList(t *testing.T) {
	s := NewScanner(ScannerConfig{QuoteAsset: "KRW", Symbols: []string{"btc", "KRW-ETH"}}, &fakeData{})
	got, err := s.Universe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC/KRW", "ETH/KRW"}, got)
}
