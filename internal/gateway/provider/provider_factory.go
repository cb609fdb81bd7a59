package provider

import (
	"fmt"
	"strings"
	"time"
)

type ModelCfg struct {
	APIURL, APIKey, Model string
	Headers               map[string]string
	Timeout               time.Duration
	MaxRetries            int
}

// BuildProvider 按配置创建 OpenAI 兼容提供方，ID 为 "openai:<model>"。
func BuildProvider(cfg ModelCfg) (ModelProvider, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("advisory model is required")
	}
	client := &OpenAIChatClient{
		BaseURL:      cfg.APIURL,
		APIKey:       cfg.APIKey,
		Model:        model,
		ExtraHeaders: cfg.Headers,
		Timeout:      cfg.Timeout,
		MaxRetries:   cfg.MaxRetries,
		Temperature:  0.2,
	}
	return NewOpenAIModelProvider("openai:"+model, client), nil
}
