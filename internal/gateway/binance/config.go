package binance

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRESTBaseURL = "https://api.binance.com"
	defaultQuoteAsset  = "USDT"
	defaultHTTPTimeout = 15 * time.Second
)

type Config struct {
	APIKey      string
	SecretKey   string
	RESTBaseURL string
	QuoteAsset  string
	HTTPTimeout time.Duration
	// ProxyURL 非空时 REST 请求经该代理发出。
	ProxyURL string
}

func (c Config) normalized() Config {
	c.RESTBaseURL = strings.TrimRight(strings.TrimSpace(c.RESTBaseURL), "/")
	if c.RESTBaseURL == "" {
		c.RESTBaseURL = defaultRESTBaseURL
	}
	if c.QuoteAsset = strings.ToUpper(strings.TrimSpace(c.QuoteAsset)); c.QuoteAsset == "" {
		c.QuoteAsset = defaultQuoteAsset
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	c.ProxyURL = strings.TrimSpace(c.ProxyURL)
	return c
}

func (c Config) httpClient() (*http.Client, error) {
	hc := &http.Client{Timeout: c.HTTPTimeout}
	if c.ProxyURL == "" {
		return hc, nil
	}
	proxy, err := url.Parse(c.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REST proxy url: %w", err)
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Proxy = http.ProxyURL(proxy)
	hc.Transport = tr
	return hc, nil
}
