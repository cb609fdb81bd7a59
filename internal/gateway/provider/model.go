package provider

import "context"

type ChatPayload struct {
	System    string
	User      string
	MaxTokens int
}

// ModelProvider 抽象一个可调用的聊天模型。
type ModelProvider interface {
	ID() string
	Call(ctx context.Context, payload ChatPayload) (string, error)
}
