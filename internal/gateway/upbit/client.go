package upbit

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"spotguard/internal/exchange"
	"spotguard/internal/pkg/circuit"
	"spotguard/internal/pkg/ratelimit"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Client 是 Upbit REST 客户端，同时实现 market.Data 与 exchange.Execution。
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *circuit.CircuitBreaker
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	final := cfg.withDefaults()
	return &Client{
		cfg:        final,
		httpClient: &http.Client{Timeout: final.HTTPTimeout},
		limiter:    ratelimit.NewLimiter("upbit", final.RequestsPerMinute),
		breaker:    circuit.NewCircuitBreaker("upbit", 5, 30*time.Second),
		sleep:      sleepCtx,
	}
}

func (c *Client) Name() string { return "upbit" }

// Breaker exposes the client's circuit breaker for state reporting.
func (c *Client) Breaker() *circuit.CircuitBreaker { return c.breaker }

// token 生成 Upbit 要求的 HS256 JWT，带参数时附加 SHA512 query_hash。
func (c *Client) token(query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.cfg.AccessKey,
		"nonce":      uuid.NewString(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.SecretKey))
}

// do 发送请求并把 2xx 响应解码到 out；auth 为 true 时签名。
// GET 参数走 query，POST 参数同时作为 JSON body 与签名原文。
func (c *Client) do(ctx context.Context, method, path string, params url.Values, auth bool, out any) ([]byte, error) {
	var (
		body   []byte
		reqErr error
	)
	// 只有网络/限流类错误计入熔断，业务拒绝（余额不足等）不计。
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		body, reqErr = c.send(ctx, method, path, params, auth)
		if errors.Is(reqErr, exchange.ErrUnavailable) {
			return reqErr
		}
		return nil
	})
	if errors.Is(err, circuit.ErrOpen) {
		return nil, fmt.Errorf("%w: %w", exchange.ErrUnavailable, err)
	}
	if reqErr != nil {
		return body, reqErr
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return body, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, path string, params url.Values, auth bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	query := params.Encode()
	target := c.cfg.BaseURL + path
	var reqBody io.Reader
	if method == http.MethodGet {
		if query != "" {
			target += "?" + query
		}
	} else {
		payload := make(map[string]string, len(params))
		for k := range params {
			payload[k] = params.Get(k)
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if auth {
		tok, err := c.token(query)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: send request: %w", exchange.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", exchange.ErrUnavailable, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		wait := c.limiter.SignalRateLimited()
		return raw, fmt.Errorf("%w: rate limited, backoff %s", exchange.ErrUnavailable, wait)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Name != "" {
			return raw, fmt.Errorf("upbit %s %s: %d %s: %s", method, path, resp.StatusCode, apiErr.Error.Name, apiErr.Error.Message)
		}
		return raw, fmt.Errorf("upbit %s %s: status %d: %s", method, path, resp.StatusCode, string(raw))
	}
	c.limiter.ResetBackoff()
	return raw, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
