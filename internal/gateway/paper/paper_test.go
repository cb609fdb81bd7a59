package paper

import (
	"context"
	"testing"

	"spotguard/internal/market"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrices map[string]decimal.Decimal

func (s staticPrices) CurrentPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := s[symbol]
	if !ok {
		return decimal.Zero, market.ErrUnavailable
	}
	return p, nil
}

func (s staticPrices) RecentCandles(context.Context, string, int) ([]market.Candle, error) {
	return nil, nil
}

func (s staticPrices) Symbols(context.Context) ([]string, error) { return nil, nil }

func TestBuyThenSell(t *testing.T) {
	prices := staticPrices{"BTC/KRW": decimal.NewFromInt(100)}
	ex := New(Config{QuoteAsset: "krw", QuoteBalance: decimal.NewFromInt(100_000)}, prices)
	ctx := context.Background()

	res, err := ex.MarketBuy(ctx, "BTC/KRW", decimal.NewFromInt(20_000))
	require.NoError(t, err)
	assert.True(t, res.Filled)
	held, _ := ex.Balance(ctx, "BTC")
	assert.True(t, held.Equal(decimal.NewFromInt(200)))
	krw, _ := ex.Balance(ctx, "KRW")
	assert.True(t, krw.Equal(decimal.NewFromInt(80_000)))

	prices["BTC/KRW"] = decimal.NewFromInt(110)
	res, err = ex.MarketSell(ctx, "BTC/KRW", held)
	require.NoError(t, err)
	assert.True(t, res.Filled)
	krw, _ = ex.Balance(ctx, "KRW")
	assert.True(t, krw.Equal(decimal.NewFromInt(102_000)))
}

func TestRejectsWithoutFunds(t *testing.T) {
	prices := staticPrices{"BTC/KRW": decimal.NewFromInt(100)}
	ex := New(Config{QuoteAsset: "KRW", QuoteBalance: decimal.NewFromInt(1000)}, prices)
	res, err := ex.MarketBuy(context.Background(), "BTC/KRW", decimal.NewFromInt(5000))
	require.NoError(t, err)
	assert.False(t, res.Filled)
	assert.Contains(t, res.Raw, "rejected")

	res, err = ex.MarketSell(context.Background(), "BTC/KRW", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.False(t, res.Filled)
}

func TestFeeDeducted(t *testing.T) {
	prices := staticPrices{"ETH/KRW": decimal.NewFromInt(1000)}
	ex := New(Config{QuoteAsset: "KRW", QuoteBalance: decimal.NewFromInt(10_000), FeePct: decimal.RequireFromString("0.05")}, prices)
	res, err := ex.MarketBuy(context.Background(), "ETH/KRW", decimal.NewFromInt(10_000))
	require.NoError(t, err)
	assert.True(t, res.ExecutedQty.Equal(decimal.RequireFromString("9.995")))
}

func TestPriceFailure(t *testing.T) {
	ex := New(Config{QuoteAsset: "KRW", QuoteBalance: decimal.NewFromInt(10_000)}, staticPrices{})
	_, err := ex.MarketBuy(context.Background(), "XRP/KRW", decimal.NewFromInt(5000))
	assert.Error(t, err)
}
