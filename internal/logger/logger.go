package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(nil)
}

// SetOutput 替换全局输出，nil 回到 stdout。级别保持不变。
func SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	current.Store(slog.New(h))
}

// SetLevel 切换全局级别，无法识别的值按 info 处理。
func SetLevel(s string) {
	level.Set(ParseLevel(s))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// logf 以调用方的位置构造记录，不满足级别时不做格式化。
func logf(lv slog.Level, format string, args []any) {
	l := current.Load()
	ctx := context.Background()
	if !l.Enabled(ctx, lv) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), lv, fmt.Sprintf(format, args...), pcs[0])
	_ = l.Handler().Handle(ctx, r)
}

func Debugf(format string, args ...any) { logf(slog.LevelDebug, format, args) }

func Infof(format string, args ...any) { logf(slog.LevelInfo, format, args) }

func Warnf(format string, args ...any) { logf(slog.LevelWarn, format, args) }

func Errorf(format string, args ...any) { logf(slog.LevelError, format, args) }
