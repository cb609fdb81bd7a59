package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spotguard/internal/advisory"
	"spotguard/internal/config"
	"spotguard/internal/exchange"
	"spotguard/internal/gateway/binance"
	"spotguard/internal/gateway/paper"
	"spotguard/internal/gateway/provider"
	"spotguard/internal/gateway/upbit"
	"spotguard/internal/market"
	"spotguard/internal/pkg/circuit"
)

// Venue 聚合一个交易所的行情端口与执行端口。paper 模式下执行端口在真实行情上模拟成交。
type Venue struct {
	Market   market.Data
	Exchange exchange.Execution
	Breakers []*circuit.CircuitBreaker
}

func buildVenue(cfg config.ExchangeConfig) (*Venue, error) {
	data, breaker, err := buildPriceVenue(cfg)
	if err != nil {
		return nil, err
	}
	v := &Venue{Market: data, Breakers: []*circuit.CircuitBreaker{breaker}}
	if cfg.Venue == "paper" {
		v.Exchange = paper.New(paper.Config{
			QuoteAsset:   cfg.QuoteAsset,
			QuoteBalance: decimal.NewFromFloat(cfg.PaperQuoteBalance),
			FeePct:       decimal.NewFromFloat(cfg.PaperFeePct),
		}, data)
		return v, nil
	}
	exec, ok := data.(exchange.Execution)
	if !ok {
		return nil, fmt.Errorf("venue %s cannot execute orders", cfg.Venue)
	}
	v.Exchange = exec
	return v, nil
}

// buildPriceVenue 创建真实交易所客户端；同一客户端同时提供行情与下单。
func buildPriceVenue(cfg config.ExchangeConfig) (market.Data, *circuit.CircuitBreaker, error) {
	switch venue := cfg.PriceVenue(); venue {
	case "upbit":
		c := upbit.New(upbit.Config{
			AccessKey:         cfg.AccessKey,
			SecretKey:         cfg.SecretKey,
			BaseURL:           cfg.RESTBaseURL,
			QuoteAsset:        cfg.QuoteAsset,
			RequestsPerMinute: cfg.RequestsPerMinute,
			HTTPTimeout:       cfg.Timeout(),
			FillSettle:        cfg.FillSettle(),
		})
		return c, c.Breaker(), nil
	case "binance":
		c, err := binance.New(binance.Config{
			APIKey:      cfg.AccessKey,
			SecretKey:   cfg.SecretKey,
			RESTBaseURL: cfg.RESTBaseURL,
			QuoteAsset:  cfg.QuoteAsset,
			HTTPTimeout: cfg.Timeout(),
			ProxyURL:    cfg.ProxyURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Breaker(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported venue %q", venue)
	}
}

func buildAdvisor(cfg config.AdvisoryConfig) (advisory.Advisor, *circuit.CircuitBreaker, error) {
	model, err := provider.BuildProvider(provider.ModelCfg{
		APIURL:     cfg.APIURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Headers:    cfg.Headers,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, nil, err
	}
	name := "advisory:" + strings.TrimSpace(cfg.Model)
	cooldown := cfg.BreakerCooldown()
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	breaker := circuit.NewCircuitBreaker(name, cfg.BreakerThreshold, cooldown)
	return advisory.NewClient(model, breaker, advisory.Config{
		SystemPrompt: cfg.SystemPrompt,
		Timeout:      cfg.Timeout(),
	}), breaker, nil
}
