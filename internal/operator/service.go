// Package operator 为 HTTP 与 Telegram 入口提供只读快照和运维动作。
package operator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spotguard/internal/advisory"
	"spotguard/internal/book"
	"spotguard/internal/exchange"
	"spotguard/internal/feedback"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/market"
	"spotguard/internal/metrics"
	"spotguard/internal/notify"
	"spotguard/internal/pkg/pct"
	"spotguard/internal/pkg/symbol"
	"spotguard/internal/risk"
)

var ErrInvalidSymbol = errors.New("invalid symbol")

// Buyer 是手动买入入口，由 risk.Engine 实现。
type Buyer interface {
	ManualBuy(ctx context.Context, symbol string, amount decimal.Decimal) risk.Decision
}

type Deps struct {
	Book      *book.Book
	Blocklist *feedback.Blocklist
	Market    market.Data
	Exchange  exchange.Execution
	Ledger    ledger.Ledger
	Advisor   advisory.Advisor
	Buyer     Buyer
	Notifier  notify.Notifier
}

type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	return &Service{deps: deps}
}

// BalanceView 汇总计价币余额、持仓市值与总权益。
type BalanceView struct {
	QuoteAsset string             `json:"quote_asset"`
	Available  decimal.Decimal    `json:"available"`
	MarkValue  decimal.Decimal    `json:"mark_value"`
	Equity     decimal.Decimal    `json:"equity"`
	Exposure   decimal.Decimal    `json:"exposure"`
	Assets     []exchange.Balance `json:"assets"`
}

// PositionView 为带实时价格的持仓快照。PriceOK 为 false 时价格与收益不可用。
type PositionView struct {
	book.Position
	Price         decimal.Decimal `json:"price"`
	PriceOK       bool            `json:"price_ok"`
	UnrealizedPct decimal.Decimal `json:"unrealized_pct"`
	MarkValue     decimal.Decimal `json:"mark_value"`
	HeldFor       string          `json:"held_for"`
}

type StrategiesView struct {
	Stats   []ledger.StrategyStats `json:"stats"`
	Blocked []string               `json:"blocked"`
}

func (s *Service) QuoteAsset() string { return s.deps.Exchange.QuoteAsset() }

// Symbol 把运维输入（btc、BTC-KRW、BTCKRW）规范成内部格式。
func (s *Service) Symbol(raw string) (string, error) {
	sym := symbol.WithQuote(raw, s.deps.Exchange.QuoteAsset())
	if !symbol.IsValid(sym) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return sym, nil
}

func (s *Service) Balance(ctx context.Context) (BalanceView, error) {
	quote := s.deps.Exchange.QuoteAsset()
	assets, err := s.deps.Exchange.Balances(ctx)
	if err != nil {
		return BalanceView{}, err
	}
	view := BalanceView{
		QuoteAsset: quote,
		Available:  exchange.FindBalance(assets, quote).Free,
		Assets:     assets,
	}
	for _, p := range s.Positions(ctx) {
		if p.PriceOK {
			view.MarkValue = view.MarkValue.Add(p.MarkValue)
		}
	}
	view.Equity = view.Available.Add(view.MarkValue)
	view.Exposure = pct.Ratio(view.MarkValue, view.Equity)
	return view, nil
}

func (s *Service) Positions(ctx context.Context) []PositionView {
	snap := s.deps.Book.Snapshot()
	out := make([]PositionView, 0, len(snap))
	now := time.Now()
	for _, p := range snap {
		v := PositionView{Position: p, HeldFor: now.Sub(p.CreatedAt).Truncate(time.Second).String()}
		price, err := s.deps.Market.CurrentPrice(ctx, p.Symbol)
		if err == nil && price.IsPositive() {
			v.Price = price
			v.PriceOK = true
			v.UnrealizedPct = pct.Return(p.EntryPrice, price)
			v.MarkValue = p.MarkValue(price)
		}
		out = append(out, v)
	}
	return out
}

func (s *Service) Price(ctx context.Context, raw string) (string, decimal.Decimal, error) {
	sym, err := s.Symbol(raw)
	if err != nil {
		return "", decimal.Zero, err
	}
	price, err := s.deps.Market.CurrentPrice(ctx, sym)
	return sym, price, err
}

// Buy 触发手动买入，amount 为零时按建议比例下单。
func (s *Service) Buy(ctx context.Context, raw string, amount decimal.Decimal) (risk.Decision, error) {
	sym, err := s.Symbol(raw)
	if err != nil {
		return risk.Decision{}, err
	}
	logger.Infof("operator: manual buy %s amount=%s", sym, amount)
	return s.deps.Buyer.ManualBuy(ctx, sym, amount), nil
}

// Stop 将仓位移出自动化管理，不下卖单。
func (s *Service) Stop(raw string) (book.Position, error) {
	sym, err := s.Symbol(raw)
	if err != nil {
		return book.Position{}, err
	}
	unlock := s.deps.Book.Lock(sym)
	defer unlock()
	pos, ok := s.deps.Book.Remove(sym)
	if !ok {
		return book.Position{}, fmt.Errorf("%w: %s", book.ErrNotFound, sym)
	}
	metrics.OpenPositions.Set(float64(s.deps.Book.Len()))
	logger.Infof("operator: %s removed from automation", sym)
	s.deps.Notifier.Notify(notify.LevelInfo, fmt.Sprintf("%s removed from automation (no sell placed)", sym))
	return pos, nil
}

func (s *Service) RecentTrades(ctx context.Context, n int) ([]ledger.Entry, error) {
	if n <= 0 {
		n = 5
	}
	return s.deps.Ledger.Recent(ctx, n)
}

func (s *Service) Strategies(ctx context.Context) (StrategiesView, error) {
	stats, err := s.deps.Ledger.StrategyStats(ctx)
	if err != nil {
		return StrategiesView{}, err
	}
	return StrategiesView{Stats: stats, Blocked: s.deps.Blocklist.Labels()}, nil
}

func (s *Service) Unblock(label string) bool {
	label = strings.TrimSpace(label)
	ok := s.deps.Blocklist.Unblock(label)
	if ok {
		metrics.BlockedStrategies.Set(float64(s.deps.Blocklist.Len()))
		logger.Infof("operator: strategy %s unblocked", label)
		s.deps.Notifier.Notify(notify.LevelInfo, fmt.Sprintf("strategy %s unblocked", label))
	}
	return ok
}

// Suggest 让建议模型基于当前统计给出策略改进意见。
func (s *Service) Suggest(ctx context.Context) (string, error) {
	view, err := s.Strategies(ctx)
	if err != nil {
		return "", err
	}
	return s.deps.Advisor.Suggest(ctx, view.Stats, view.Blocked)
}
