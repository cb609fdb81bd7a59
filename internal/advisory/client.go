package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spotguard/internal/gateway/provider"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/pkg/circuit"

	"github.com/shopspring/decimal"
)

// Advisor 是建议端口：入场评估、持仓复评和策略建议。
type Advisor interface {
	Evaluate(ctx context.Context, symbol, label string, price decimal.Decimal) (Result, error)
	Reevaluate(ctx context.Context, symbol, label string, entry, price decimal.Decimal) (Result, error)
	Suggest(ctx context.Context, stats []ledger.StrategyStats, blocked []string) (string, error)
}

type Config struct {
	SystemPrompt string
	Timeout      time.Duration
}

// Client 通过聊天模型生成建议。调用受超时与熔断保护，失败一律返回零值 Result。
type Client struct {
	model   provider.ModelProvider
	breaker *circuit.CircuitBreaker
	cfg     Config
}

func NewClient(model provider.ModelProvider, breaker *circuit.CircuitBreaker, cfg Config) *Client {
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{model: model, breaker: breaker, cfg: cfg}
}

func (c *Client) Evaluate(ctx context.Context, symbol, label string, price decimal.Decimal) (Result, error) {
	return c.evaluate(ctx, symbol, "entry", entryPrompt(symbol, label, price))
}

func (c *Client) Reevaluate(ctx context.Context, symbol, label string, entry, price decimal.Decimal) (Result, error) {
	return c.evaluate(ctx, symbol, "reevaluate", reevaluatePrompt(symbol, label, entry, price))
}

func (c *Client) evaluate(ctx context.Context, symbol, purpose, prompt string) (Result, error) {
	raw, err := c.call(ctx, prompt)
	logger.LogAdvisory(symbol, purpose, prompt, raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNoSignal, err)
	}
	res, err := ParseResult(raw)
	if err != nil {
		logger.Warnf("advisory %s %s unparsable: %v", purpose, symbol, err)
		return Result{}, err
	}
	if !res.IsSignal() {
		return Result{}, ErrNoSignal
	}
	return res, nil
}

func (c *Client) Suggest(ctx context.Context, stats []ledger.StrategyStats, blocked []string) (string, error) {
	prompt := suggestPrompt(stats, blocked)
	raw, err := c.call(ctx, prompt)
	logger.LogAdvisory("*", "suggest", prompt, raw)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	var raw string
	run := func(ctx context.Context) error {
		out, err := c.model.Call(ctx, provider.ChatPayload{System: c.cfg.SystemPrompt, User: prompt, MaxTokens: 300})
		raw = out
		return err
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Do(ctx, run)
	} else {
		err = run(ctx)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return raw, fmt.Errorf("advisory timeout after %s: %w", c.cfg.Timeout, err)
	}
	return raw, err
}
