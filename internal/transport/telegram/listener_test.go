package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotguard/internal/book"
	"spotguard/internal/exchange"
	"spotguard/internal/gateway/notifier"
	"spotguard/internal/ledger"
	"spotguard/internal/operator"
	"spotguard/internal/risk"
)

type fakeOperator struct {
	buySymbol string
	buyAmount decimal.Decimal
	unblocked []string
}

func (f *fakeOperator) Balance(context.Context) (operator.BalanceView, error) {
	return operator.BalanceView{
		QuoteAsset: "KRW",
		Available:  decimal.NewFromInt(80_000),
		MarkValue:  decimal.NewFromInt(20_000),
		Equity:     decimal.NewFromInt(100_000),
		Exposure:   decimal.RequireFromString("0.2"),
		Assets:     []exchange.Balance{{Asset: "BTC", Free: decimal.NewFromInt(2)}},
	}, nil
}

func (f *fakeOperator) Positions(context.Context) []operator.PositionView {
	return []operator.PositionView{{
		Position: book.Position{Symbol: "BTC/KRW", EntryPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(2), StrategyLabel: "breakout_chase"},
		Price:    decimal.NewFromInt(103), PriceOK: true, UnrealizedPct: decimal.NewFromInt(3),
	}}
}

func (f *fakeOperator) Price(_ context.Context, raw string) (string, decimal.Decimal, error) {
	return "BTC/KRW", decimal.NewFromInt(103), nil
}

func (f *fakeOperator) Buy(_ context.Context, raw string, amount decimal.Decimal) (risk.Decision, error) {
	f.buySymbol, f.buyAmount = raw, amount
	return risk.Decision{Reason: risk.LowConfidence, Symbol: "BTC/KRW", Strategy: "manual"}, nil
}

func (f *fakeOperator) Stop(raw string) (book.Position, error) {
	return book.Position{}, book.ErrNotFound
}

func (f *fakeOperator) RecentTrades(context.Context, int) ([]ledger.Entry, error) {
	return []ledger.Entry{{Kind: ledger.KindExit, Symbol: "ETH/KRW", Outcome: ledger.OutcomeStopLoss, ReturnPct: decimal.NewFromInt(-2), StrategyLabel: "breakout_chase"}}, nil
}

func (f *fakeOperator) Strategies(context.Context) (operator.StrategiesView, error) {
	return operator.StrategiesView{
		Stats:   []ledger.StrategyStats{{Label: "breakout_chase", Count: 4, Wins: 1, Losses: 3, MeanReturnPct: decimal.NewFromInt(-1)}},
		Blocked: []string{"breakout_chase"},
	}, nil
}

func (f *fakeOperator) Unblock(label string) bool {
	f.unblocked = append(f.unblocked, label)
	return label == "breakout_chase"
}

func (f *fakeOperator) Suggest(context.Context) (string, error) {
	return "", errors.New("advisory unavailable")
}

type fakeClient struct {
	mu      sync.Mutex
	batches [][]notifier.Update
	offsets []int64
	sent    []string
	failFor int
}

func (c *fakeClient) Updates(ctx context.Context, offset int64, _ int) ([]notifier.Update, error) {
	c.mu.Lock()
	c.offsets = append(c.offsets, offset)
	if c.failFor > 0 {
		c.failFor--
		c.mu.Unlock()
		return nil, errors.New("network down")
	}
	if len(c.batches) == 0 {
		c.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b := c.batches[0]
	c.batches = c.batches[1:]
	c.mu.Unlock()
	return b, nil
}

func (c *fakeClient) SendMarkdownTo(chatID, text string) error {
	c.mu.Lock()
	c.sent = append(c.sent, chatID+"|"+text)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) snapshot() ([]int64, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.offsets...), append([]string(nil), c.sent...)
}

func update(id, chat int64, text string) notifier.Update {
	return notifier.Update{UpdateID: id, Message: &notifier.IncomingMessage{Text: text, Chat: notifier.Chat{ID: chat}}}
}

func newListener(op Operator) *Listener {
	l := NewListener(&fakeClient{}, op, Config{ChatID: "42"})
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l
}

func TestCommands(t *testing.T) {
	op := &fakeOperator{}
	l := newListener(op)
	ctx := context.Background()

	cases := map[string][]string{
		"/balance":               {"available: 80000 KRW", "exposure: 20.0%", "BTC 2"},
		"/price btc":             {"BTC/KRW 103"},
		"/status":                {"positions (1)", "BTC/KRW entry 100", "now 103 (3.00%)"},
		"/stop btc":              {"stop failed", "position not found"},
		"/logs":                  {"exit ETH/KRW stop_loss [breakout_chase] -2.00%"},
		"/strategies":            {"breakout_chase n=4 w=1 l=3 mean -1.00%", "blocked"},
		"/unblock momentum":      {"momentum was not blocked"},
		"/suggest":               {"suggestion unavailable"},
		"/help":                  {"/buy SYMBOL [AMOUNT]"},
		"/price":                 {"usage", "/price SYMBOL"},
		"/balance@spotguard_bot": {"equity: 100000 KRW"},
		"/buy btc 10,000":        {"rejected: LowConfidence"},
	}
	for cmd, wants := range cases {
		out := l.handle(ctx, cmd)
		for _, want := range wants {
			assert.Contains(t, out, want, cmd)
		}
	}
	assert.Equal(t, "btc", op.buySymbol)
	assert.True(t, op.buyAmount.Equal(decimal.NewFromInt(10_000)))

	assert.Empty(t, l.handle(ctx, "hello"))
	assert.Contains(t, l.handle(ctx, "/buy btc abc"), "invalid amount")
}

func TestRunServesOnlyConfiguredChat(t *testing.T) {
	client := &fakeClient{
		failFor: 1,
		batches: [][]notifier.Update{
			{update(10, 42, "/price btc"), update(11, 99, "/balance")},
			{update(12, 42, "/unblock breakout_chase")},
		},
	}
	op := &fakeOperator{}
	l := NewListener(client, op, Config{ChatID: "42", ErrorBackoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, sent := client.snapshot()
		return len(sent) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	offsets, sent := client.snapshot()
	assert.Equal(t, []int64{0, 0, 12, 13}, offsets)
	for _, s := range sent {
		assert.Contains(t, s, "42|")
	}
	assert.Contains(t, sent[1], "breakout_chase unblocked")
	assert.Equal(t, []string{"breakout_chase"}, op.unblocked)
}
