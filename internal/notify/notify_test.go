package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (r *recordingSender) SendText(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return r.err
}

func (r *recordingSender) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

func TestHubFiltersByLevel(t *testing.T) {
	hub := NewHub(LevelWarn, 8)
	ok := &recordingSender{}
	failing := &recordingSender{err: errors.New("boom")}
	hub.AddSender("ok", ok)
	hub.AddSender("failing", failing)

	hub.Notify(LevelInfo, "ignored")
	hub.Notify(LevelWarn, "fill not confirmed")
	hub.Notify(LevelError, "  ")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return len(ok.texts()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []string{"fill not confirmed"}, ok.texts())
	assert.Equal(t, []string{"fill not confirmed"}, failing.texts())
}

func TestHubDropsWhenFull(t *testing.T) {
	hub := NewHub(LevelDebug, 1)
	s := &recordingSender{}
	hub.AddSender("s", s)
	hub.Notify(LevelInfo, "one")
	hub.Notify(LevelInfo, "two")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, hub.Run(ctx))
	assert.Equal(t, []string{"one"}, s.texts())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLevel("WARNING"))
	assert.Equal(t, LevelInfo, ParseLevel("nope"))
	assert.Equal(t, "error", ParseLevel("error").String())
}

func TestMemoryCount(t *testing.T) {
	m := &Memory{}
	m.Notify(LevelInfo, "entry BTC/KRW")
	m.Notify(LevelWarn, "exit failed BTC/KRW")
	assert.Equal(t, 2, m.Count("BTC/KRW"))
	assert.Equal(t, 1, m.Count("exit failed"))
}
