package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultTelegramAPI = "https://api.telegram.org"

// Telegram 通知器：把开平仓、拒单、熔断等消息推送到指定会话，同时提供长轮询拉取命令。
type Telegram struct {
	BotToken string
	ChatID   string
	BaseURL  string
	Client   *http.Client
	// Retries 为 SendText 最大尝试次数。
	Retries int
	Backoff time.Duration
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken: botToken,
		ChatID:   chatID,
		BaseURL:  defaultTelegramAPI,
		Client:   &http.Client{Timeout: 15 * time.Second},
		Retries:  3,
		Backoff:  time.Second,
	}
}

func (t *Telegram) endpoint(method string) string {
	base := strings.TrimRight(t.BaseURL, "/")
	if base == "" {
		base = defaultTelegramAPI
	}
	return fmt.Sprintf("%s/bot%s/%s", base, t.BotToken, method)
}

// SendText 发送纯文本消息（带重试）。策略名等含下划线的文本不能按 Markdown 解析。
func (t *Telegram) SendText(text string) error {
	return t.SendTo(t.ChatID, text)
}

// SendTo 向指定会话发送纯文本消息。
func (t *Telegram) SendTo(chatID, text string) error {
	return t.send(chatID, text, "")
}

// SendMarkdownTo 发送 StructuredMessage 渲染出的 Markdown。
func (t *Telegram) SendMarkdownTo(chatID, text string) error {
	return t.send(chatID, text, "Markdown")
}

func (t *Telegram) send(chatID, text, parseMode string) error {
	if t.BotToken == "" || chatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	body, _ := json.Marshal(payload)

	attempts := t.Retries
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		req, _ := http.NewRequest(http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := t.Client.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(time.Duration(i+1) * t.Backoff)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("telegram status=%d", resp.StatusCode)
		time.Sleep(time.Duration(i+1) * t.Backoff)
	}
	return lastErr
}

// Update 是 getUpdates 返回的一条消息（只保留命令处理需要的字段）。
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *IncomingMessage `json:"message"`
}

type IncomingMessage struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      Chat   `json:"chat"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type updatesResponse struct {
	OK          bool     `json:"ok"`
	Result      []Update `json:"result"`
	Description string   `json:"description"`
}

// Updates 长轮询拉取 offset 之后的消息，timeout 为服务端挂起秒数。
func (t *Telegram) Updates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	if t.BotToken == "" {
		return nil, fmt.Errorf("telegram config incomplete")
	}
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(timeout))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	client := *t.Client
	client.Timeout = time.Duration(timeout+10) * time.Second
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out updatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode getUpdates: %w", err)
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram getUpdates failed: %s", out.Description)
	}
	return out.Result, nil
}
