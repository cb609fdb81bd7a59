package upbit

import (
	"strings"
	"time"
)

const defaultBaseURL = "https://api.upbit.com"

type Config struct {
	AccessKey         string
	SecretKey         string
	BaseURL           string
	QuoteAsset        string
	RequestsPerMinute int
	HTTPTimeout       time.Duration
	// FillSettle 为下单后查询订单状态前的等待时间。
	FillSettle time.Duration
	// FillPolls 为确认订单终态的最大查询次数。
	FillPolls int
}

func (c *Config) withDefaults() Config {
	out := *c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	out.QuoteAsset = strings.ToUpper(strings.TrimSpace(out.QuoteAsset))
	if out.QuoteAsset == "" {
		out.QuoteAsset = "KRW"
	}
	if out.RequestsPerMinute <= 0 {
		out.RequestsPerMinute = 480
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 10 * time.Second
	}
	if out.FillSettle < 0 {
		out.FillSettle = 0
	}
	if out.FillPolls <= 0 {
		out.FillPolls = 3
	}
	return out
}
