package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"spotguard/internal/exchange"
	"spotguard/internal/pkg/circuit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "k", SecretKey: "s", RESTBaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestCurrentPriceAndKlines(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"65000.50"}`))
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`[
			[1000,"100","101","99","100","10",1999,"1000",5,"0","0","0"],
			[2000,"100","105","100","104","50",2999,"5200",9,"0","0","0"]
		]`))
	})
	c := newTestClient(t, mux)

	price, err := c.CurrentPrice(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("65000.5")))

	candles, err := c.RecentCandles(context.Background(), "BTC/USDT", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 104.0, candles[1].Close)
	assert.Equal(t, 5200.0, candles[1].QuoteTurnover())
	assert.Equal(t, int64(9), candles[1].Trades)
}

func TestMarketBuyFilled(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "BUY", r.Form.Get("side"))
		assert.Equal(t, "MARKET", r.Form.Get("type"))
		assert.Equal(t, "20", r.Form.Get("quoteOrderQty"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"status":"FILLED","executedQty":"0.0004","cummulativeQuoteQty":"20","fills":[]}`))
	})
	c := newTestClient(t, mux)
	res, err := c.MarketBuy(context.Background(), "BTC/USDT", decimal.RequireFromString("20.009"))
	require.NoError(t, err)
	assert.True(t, res.Filled)
	assert.Equal(t, "42", res.OrderID)
	assert.True(t, res.AvgPrice.Equal(decimal.NewFromInt(50000)))
	assert.Contains(t, res.Raw, "status=FILLED")
}

func TestAPIErrorDoesNotTripBreaker(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/order", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance"}`))
	})
	c := newTestClient(t, mux)
	for i := 0; i < 8; i++ {
		res, err := c.MarketSell(context.Background(), "BTC/USDT", decimal.RequireFromString("0.5"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, exchange.ErrUnavailable)
		assert.Contains(t, res.Raw, "insufficient balance")
	}
	assert.Equal(t, circuit.StateClosed, c.Breaker().State())
}

func TestBalancesSkipsZero(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/account", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balances":[{"asset":"USDT","free":"100.5","locked":"0"},{"asset":"ETH","free":"0","locked":"0"},{"asset":"BTC","free":"0.01","locked":"0"}]}`))
	})
	c := newTestClient(t, mux)
	list, err := c.Balances(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
	usdt, err := c.Balance(context.Background(), "usdt")
	require.NoError(t, err)
	assert.True(t, usdt.Equal(decimal.RequireFromString("100.5")))
}

func TestRoundQtyUsesStep(t *testing.T) {
	c, err := New(Config{})
	require.NoError(t, err)
	c.stepSizes["BTC/USDT"] = decimal.RequireFromString("0.001")
	assert.True(t, c.roundQty("BTCUSDT", decimal.RequireFromString("0.12345")).Equal(decimal.RequireFromString("0.123")))
	assert.True(t, c.roundQty("ETH/USDT", decimal.RequireFromString("1.123456789")).Equal(decimal.RequireFromString("1.12345678")))
}

func TestConfigProxy(t *testing.T) {
	cfg := Config{ProxyURL: " http://127.0.0.1:7890 "}.normalized()
	assert.Equal(t, defaultRESTBaseURL, cfg.RESTBaseURL)
	assert.Equal(t, "USDT", cfg.QuoteAsset)

	hc, err := cfg.httpClient()
	require.NoError(t, err)
	assert.NotNil(t, hc.Transport)

	_, err = New(Config{ProxyURL: "://bad"})
	assert.Error(t, err)
}
