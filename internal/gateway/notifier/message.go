package notifier

import (
	"strings"
	"time"

	"spotguard/internal/pkg/text"
)

// Telegram 单条消息上限 4096，留出 Markdown 包装的余量。
const maxStructuredMessageLen = 3800

// MessageSection 是代码块中的一组要点，空行会被丢弃。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 是命令回复的统一格式：标题、代码块中的段落、脚注和时间。
type StructuredMessage struct {
	Icon      string
	Title     string
	Sections  []MessageSection
	Footer    string
	Timestamp time.Time
}

// RenderMarkdown 渲染为 Telegram Markdown，超长时截断。
func (m StructuredMessage) RenderMarkdown() string {
	parts := make([]string, 0, 4)
	if header := strings.TrimSpace(m.Icon + " " + m.Title); header != "" {
		parts = append(parts, header)
	}
	if block := codeBlock(m.Sections); block != "" {
		parts = append(parts, block)
	}
	var tail []string
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		tail = append(tail, escapeFence(footer))
	}
	if !m.Timestamp.IsZero() {
		tail = append(tail, "time: "+m.Timestamp.Format("2006-01-02 15:04:05 MST"))
	}
	if len(tail) > 0 {
		parts = append(parts, strings.Join(tail, "\n"))
	}
	return text.Truncate(strings.Join(parts, "\n\n"), maxStructuredMessageLen)
}

func codeBlock(secs []MessageSection) string {
	blocks := make([]string, 0, len(secs))
	for _, sec := range secs {
		var b strings.Builder
		if title := strings.TrimSpace(sec.Title); title != "" {
			b.WriteString(escapeFence(title))
			b.WriteByte('\n')
		}
		n := 0
		for _, line := range sec.Lines {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			b.WriteString("- " + escapeFence(line) + "\n")
			n++
		}
		if n > 0 {
			blocks = append(blocks, strings.TrimSuffix(b.String(), "\n"))
		}
	}
	if len(blocks) == 0 {
		return ""
	}
	return "```\n" + strings.Join(blocks, "\n\n") + "\n```"
}

// escapeFence 防止内容中的 ``` 提前闭合代码块。
func escapeFence(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}
