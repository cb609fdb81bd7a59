package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	advisoryMu  sync.Mutex
	advisoryLog *log.Logger
)

// SetAdvisoryWriter routes raw advisory prompts/responses to w. nil disables the dump.
func SetAdvisoryWriter(w io.Writer) {
	advisoryMu.Lock()
	defer advisoryMu.Unlock()
	if w == nil {
		advisoryLog = nil
		return
	}
	advisoryLog = log.New(w, "", log.LstdFlags)
}

// LogAdvisory writes one request/response pair. No-op unless a writer is set.
func LogAdvisory(symbol, purpose, prompt, raw string) {
	advisoryMu.Lock()
	l := advisoryLog
	advisoryMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[ADVISORY]")
	if symbol != "" {
		b.WriteString("[" + symbol + "]")
	}
	if purpose != "" {
		b.WriteString("[" + purpose + "]")
	}
	b.WriteString("\n--- PROMPT ---\n")
	b.WriteString(strings.TrimRight(prompt, "\n"))
	b.WriteString("\n--- RAW ---\n")
	b.WriteString(strings.TrimRight(raw, "\n"))
	b.WriteString("\n=====\n")
	l.Print(b.String())
}
