// Package telegram 通过长轮询接收运维命令，只响应配置的会话。
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spotguard/internal/book"
	"spotguard/internal/gateway/notifier"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/operator"
	"spotguard/internal/risk"
)

// Client 是 Telegram Bot API 的最小面，由 notifier.Telegram 实现。
type Client interface {
	Updates(ctx context.Context, offset int64, timeout int) ([]notifier.Update, error)
	SendMarkdownTo(chatID, text string) error
}

// Operator 是命令处理依赖的运维面，由 operator.Service 实现。
type Operator interface {
	Balance(ctx context.Context) (operator.BalanceView, error)
	Positions(ctx context.Context) []operator.PositionView
	Price(ctx context.Context, raw string) (string, decimal.Decimal, error)
	Buy(ctx context.Context, raw string, amount decimal.Decimal) (risk.Decision, error)
	Stop(raw string) (book.Position, error)
	RecentTrades(ctx context.Context, n int) ([]ledger.Entry, error)
	Strategies(ctx context.Context) (operator.StrategiesView, error)
	Unblock(label string) bool
	Suggest(ctx context.Context) (string, error)
}

type Config struct {
	ChatID         string
	PollTimeout    int
	ErrorBackoff   time.Duration
	CommandTimeout time.Duration
}

type Listener struct {
	client Client
	op     Operator
	cfg    Config
	offset int64
	now    func() time.Time
}

func NewListener(client Client, op Operator, cfg Config) *Listener {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 60 * time.Second
	}
	cfg.ChatID = strings.TrimSpace(cfg.ChatID)
	return &Listener{client: client, op: op, cfg: cfg, now: time.Now}
}

// Run 阻塞轮询直到 ctx 取消。拉取失败按 ErrorBackoff 等待后重试。
func (l *Listener) Run(ctx context.Context) error {
	logger.Infof("telegram commands: listening for chat %s", l.cfg.ChatID)
	for {
		updates, err := l.client.Updates(ctx, l.offset, l.cfg.PollTimeout)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warnf("telegram commands: poll failed: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.cfg.ErrorBackoff):
			}
			continue
		}
		for _, up := range updates {
			if up.UpdateID >= l.offset {
				l.offset = up.UpdateID + 1
			}
			l.dispatch(ctx, up)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, up notifier.Update) {
	if up.Message == nil || strings.TrimSpace(up.Message.Text) == "" {
		return
	}
	chatID := strconv.FormatInt(up.Message.Chat.ID, 10)
	if chatID != l.cfg.ChatID {
		logger.Warnf("telegram commands: ignored message from chat %s", chatID)
		return
	}
	cctx, cancel := context.WithTimeout(ctx, l.cfg.CommandTimeout)
	defer cancel()
	reply := l.handle(cctx, up.Message.Text)
	if reply == "" {
		return
	}
	if err := l.client.SendMarkdownTo(chatID, reply); err != nil {
		logger.Errorf("telegram commands: reply failed: %v", err)
	}
}

// handle 执行一条命令并返回渲染好的回复。
func (l *Listener) handle(ctx context.Context, text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]
	logger.Infof("telegram commands: %s %v", cmd, args)

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("telegram commands: %s panic: %v", cmd, r)
		}
	}()

	var msg notifier.StructuredMessage
	switch cmd {
	case "/balance":
		msg = l.balance(ctx)
	case "/price":
		if len(args) < 1 {
			return usage("/price SYMBOL")
		}
		msg = l.price(ctx, args[0])
	case "/status":
		msg = l.status(ctx)
	case "/buy":
		if len(args) < 1 {
			return usage("/buy SYMBOL [AMOUNT]")
		}
		msg = l.buy(ctx, args)
	case "/stop":
		if len(args) < 1 {
			return usage("/stop SYMBOL")
		}
		msg = l.stop(args[0])
	case "/logs":
		msg = l.logs(ctx)
	case "/strategies":
		msg = l.strategies(ctx)
	case "/unblock":
		if len(args) < 1 {
			return usage("/unblock LABEL")
		}
		msg = l.unblock(args[0])
	case "/suggest":
		msg = l.suggest(ctx)
	default:
		msg = helpMessage()
	}
	msg.Timestamp = l.now()
	return msg.RenderMarkdown()
}

func usage(line string) string {
	return notifier.StructuredMessage{
		Title:    "usage",
		Sections: []notifier.MessageSection{{Lines: []string{line}}},
	}.RenderMarkdown()
}

func helpMessage() notifier.StructuredMessage {
	return notifier.StructuredMessage{
		Title: "commands",
		Sections: []notifier.MessageSection{{Lines: []string{
			"/balance",
			"/price SYMBOL",
			"/status",
			"/buy SYMBOL [AMOUNT]",
			"/stop SYMBOL",
			"/logs",
			"/strategies",
			"/unblock LABEL",
			"/suggest",
		}}},
	}
}

func failure(title string, err error) notifier.StructuredMessage {
	return notifier.StructuredMessage{
		Icon:     "⚠️",
		Title:    title,
		Sections: []notifier.MessageSection{{Lines: []string{err.Error()}}},
	}
}

func (l *Listener) balance(ctx context.Context) notifier.StructuredMessage {
	view, err := l.op.Balance(ctx)
	if err != nil {
		return failure("balance unavailable", err)
	}
	summary := []string{
		fmt.Sprintf("available: %s %s", view.Available.StringFixed(0), view.QuoteAsset),
		fmt.Sprintf("positions: %s %s", view.MarkValue.StringFixed(0), view.QuoteAsset),
		fmt.Sprintf("equity: %s %s", view.Equity.StringFixed(0), view.QuoteAsset),
		fmt.Sprintf("exposure: %s%%", view.Exposure.Mul(decimal.NewFromInt(100)).StringFixed(1)),
	}
	assets := make([]string, 0, len(view.Assets))
	for _, a := range view.Assets {
		assets = append(assets, fmt.Sprintf("%s %s", a.Asset, a.Total()))
	}
	return notifier.StructuredMessage{
		Icon:     "💰",
		Title:    "balance",
		Sections: []notifier.MessageSection{{Title: "summary", Lines: summary}, {Title: "assets", Lines: assets}},
	}
}

func (l *Listener) price(ctx context.Context, raw string) notifier.StructuredMessage {
	sym, p, err := l.op.Price(ctx, raw)
	if err != nil {
		return failure("price unavailable", err)
	}
	return notifier.StructuredMessage{
		Title:    "price",
		Sections: []notifier.MessageSection{{Lines: []string{fmt.Sprintf("%s %s", sym, p)}}},
	}
}

func (l *Listener) status(ctx context.Context) notifier.StructuredMessage {
	positions := l.op.Positions(ctx)
	lines := make([]string, 0, len(positions))
	for _, p := range positions {
		line := fmt.Sprintf("%s entry %s qty %s tp %s%% sl %s%% [%s] held %s",
			p.Symbol, p.EntryPrice, p.Quantity, p.TakeProfitPct, p.StopLossPct, p.StrategyLabel, p.HeldFor)
		if p.PriceOK {
			line += fmt.Sprintf(" now %s (%s%%)", p.Price, p.UnrealizedPct.StringFixed(2))
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, "no open positions")
	}
	return notifier.StructuredMessage{
		Icon:     "📊",
		Title:    fmt.Sprintf("positions (%d)", len(positions)),
		Sections: []notifier.MessageSection{{Lines: lines}},
	}
}

func (l *Listener) buy(ctx context.Context, args []string) notifier.StructuredMessage {
	amount := decimal.Zero
	if len(args) > 1 {
		v, err := decimal.NewFromString(strings.ReplaceAll(args[1], ",", ""))
		if err != nil || v.IsNegative() {
			return failure("invalid amount", fmt.Errorf("amount %q is not a positive number", args[1]))
		}
		amount = v
	}
	d, err := l.op.Buy(ctx, args[0], amount)
	if err != nil {
		return failure("buy failed", err)
	}
	icon := "🟢"
	if !d.Accepted {
		icon = "🚫"
	}
	return notifier.StructuredMessage{
		Icon:     icon,
		Title:    "manual buy",
		Sections: []notifier.MessageSection{{Lines: strings.Split(d.String(), "\n")}},
	}
}

func (l *Listener) stop(raw string) notifier.StructuredMessage {
	pos, err := l.op.Stop(raw)
	if err != nil {
		return failure("stop failed", err)
	}
	return notifier.StructuredMessage{
		Icon:  "⏹",
		Title: "removed from automation",
		Sections: []notifier.MessageSection{{Lines: []string{
			fmt.Sprintf("%s qty %s entry %s", pos.Symbol, pos.Quantity, pos.EntryPrice),
			"no sell order was placed",
		}}},
	}
}

func (l *Listener) logs(ctx context.Context) notifier.StructuredMessage {
	trades, err := l.op.RecentTrades(ctx, 5)
	if err != nil {
		return failure("ledger unavailable", err)
	}
	lines := make([]string, 0, len(trades))
	for _, e := range trades {
		line := fmt.Sprintf("%s %s %s %s [%s]", e.Timestamp.Format("01-02 15:04"), e.Kind, e.Symbol, e.Outcome, e.StrategyLabel)
		if e.Kind == ledger.KindExit {
			line += fmt.Sprintf(" %s%%", e.ReturnPct.StringFixed(2))
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, "no trades yet")
	}
	return notifier.StructuredMessage{
		Icon:     "📜",
		Title:    "recent trades",
		Sections: []notifier.MessageSection{{Lines: lines}},
	}
}

func (l *Listener) strategies(ctx context.Context) notifier.StructuredMessage {
	view, err := l.op.Strategies(ctx)
	if err != nil {
		return failure("ledger unavailable", err)
	}
	lines := make([]string, 0, len(view.Stats))
	for _, s := range view.Stats {
		lines = append(lines, fmt.Sprintf("%s n=%d w=%d l=%d mean %s%%", s.Label, s.Count, s.Wins, s.Losses, s.MeanReturnPct.StringFixed(2)))
	}
	blocked := view.Blocked
	if len(blocked) == 0 {
		blocked = []string{"none"}
	}
	return notifier.StructuredMessage{
		Icon:     "🧪",
		Title:    "strategies",
		Sections: []notifier.MessageSection{{Title: "stats", Lines: lines}, {Title: "blocked", Lines: blocked}},
	}
}

func (l *Listener) unblock(label string) notifier.StructuredMessage {
	line := label + " unblocked"
	if !l.op.Unblock(label) {
		line = label + " was not blocked"
	}
	return notifier.StructuredMessage{
		Title:    "unblock",
		Sections: []notifier.MessageSection{{Lines: []string{line}}},
	}
}

func (l *Listener) suggest(ctx context.Context) notifier.StructuredMessage {
	text, err := l.op.Suggest(ctx)
	if err != nil {
		return failure("suggestion unavailable", err)
	}
	return notifier.StructuredMessage{
		Icon:     "💡",
		Title:    "suggestions",
		Sections: []notifier.MessageSection{{Lines: strings.Split(text, "\n")}},
	}
}
