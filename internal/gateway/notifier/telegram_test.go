package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTextRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "42", body["chat_id"])
		if atomic.AddInt32(&hits, 1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	tg.Backoff = time.Millisecond
	require.NoError(t, tg.SendText("hello"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestSendTextRequiresConfig(t *testing.T) {
	assert.Error(t, NewTelegram("", "").SendText("x"))
}

func TestUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"message_id":1,"text":"/balance","chat":{"id":42}}}]}`))
	}))
	defer srv.Close()
	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	ups, err := tg.Updates(context.Background(), 7, 0)
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "/balance", ups[0].Message.Text)
	assert.Equal(t, int64(42), ups[0].Message.Chat.ID)
}

func TestRenderMarkdown(t *testing.T) {
	msg := StructuredMessage{
		Icon:  "🟢",
		Title: "ENTRY BTC/KRW",
		Sections: []MessageSection{
			{Title: "order", Lines: []string{"amount: 20000", " ", "tp: 5%"}},
			{Title: "empty", Lines: []string{""}},
		},
		Footer:    "strategy breakout_chase",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	out := msg.RenderMarkdown()
	assert.True(t, strings.HasPrefix(out, "🟢 ENTRY BTC/KRW"))
	assert.Contains(t, out, "- amount: 20000")
	assert.NotContains(t, out, "empty")
	assert.Contains(t, out, "time: 2026-01-02 03:04:05 UTC")
}

func TestParseModeOnlyForMarkdown(t *testing.T) {
	var modes []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		modes = append(modes, body["parse_mode"])
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42")
	tg.BaseURL = srv.URL
	require.NoError(t, tg.SendText("strategy breakout_chase blocked"))
	require.NoError(t, tg.SendMarkdownTo("42", "```\nok\n```"))
	require.Len(t, modes, 2)
	assert.Nil(t, modes[0])
	assert.Equal(t, "Markdown", modes[1])
}
