// Package notify 把引擎事件按级别过滤后异步分发到各文本通道，投递失败只记日志。
package notify

import (
	"context"
	"strings"
	"sync"

	"spotguard/internal/gateway/notifier"
	"spotguard/internal/logger"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel 解析配置中的级别，未知值按 info 处理。
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Notifier 是引擎使用的通知端口。
type Notifier interface {
	Notify(level Level, text string)
}

type Nop struct{}

func (Nop) Notify(Level, string) {}

type event struct {
	level Level
	text  string
}

// Hub 是带缓冲队列的 Notifier，Run 负责实际投递。队列满时丢弃并记录日志。
type Hub struct {
	mu       sync.RWMutex
	min      Level
	channels []namedSender
	queue    chan event
}

type namedSender struct {
	name   string
	sender notifier.TextNotifier
}

func NewHub(min Level, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{min: min, queue: make(chan event, buffer)}
}

// AddSender registers a delivery channel.
func (h *Hub) AddSender(name string, s notifier.TextNotifier) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.channels = append(h.channels, namedSender{name: name, sender: s})
	h.mu.Unlock()
}

func (h *Hub) SetMinLevel(l Level) {
	h.mu.Lock()
	h.min = l
	h.mu.Unlock()
}

func (h *Hub) MinLevel() Level {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.min
}

func (h *Hub) Notify(level Level, text string) {
	text = strings.TrimSpace(text)
	if text == "" || level < h.MinLevel() {
		return
	}
	logger.Debugf("notify[%s]: %s", level, text)
	select {
	case h.queue <- event{level: level, text: text}:
	default:
		logger.Warnf("notify queue full, dropped %s message: %.80s", level, text)
	}
}

// Run 投递队列中的消息，ctx 结束后尽量把剩余消息发完。
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.drain()
			return nil
		case ev := <-h.queue:
			h.dispatch(ev)
		}
	}
}

func (h *Hub) drain() {
	for {
		select {
		case ev := <-h.queue:
			h.dispatch(ev)
		default:
			return
		}
	}
}

func (h *Hub) dispatch(ev event) {
	h.mu.RLock()
	channels := append([]namedSender(nil), h.channels...)
	h.mu.RUnlock()
	for _, ch := range channels {
		if err := ch.sender.SendText(ev.text); err != nil {
			logger.Errorf("notify sender %s failed: %v", ch.name, err)
		}
	}
}

// Memory 记录收到的消息，供运维接口回显与测试断言。
type Memory struct {
	mu       sync.Mutex
	Messages []Message
}

type Message struct {
	Level Level
	Text  string
}

func (m *Memory) Notify(level Level, text string) {
	m.mu.Lock()
	m.Messages = append(m.Messages, Message{Level: level, Text: text})
	m.mu.Unlock()
}

// Snapshot returns a copy of recorded messages.
func (m *Memory) Snapshot() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.Messages...)
}

// Count 返回文本包含 substr 的消息条数。
func (m *Memory) Count(substr string) int {
	n := 0
	for _, msg := range m.Snapshot() {
		if strings.Contains(msg.Text, substr) {
			n++
		}
	}
	return n
}
