package config

import (
	"os"
	"strings"
)

// applyEnvOverrides 用环境变量覆盖密钥类字段，环境变量优先于文件。
func applyEnvOverrides(c *Config, keys keySet) {
	setStr(&c.Advisory.APIKey, "SPOTGUARD_OPENAI_API_KEY", "OPENAI_API_KEY")
	setStr(&c.Notify.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setStr(&c.Notify.Telegram.ChatID, "TELEGRAM_CHAT_ID")
	setStr(&c.Exchange.Venue, "SPOTGUARD_VENUE")
	switch strings.ToLower(strings.TrimSpace(c.Exchange.Venue)) {
	case "binance":
		setStr(&c.Exchange.AccessKey, "BINANCE_API_KEY")
		setStr(&c.Exchange.SecretKey, "BINANCE_SECRET_KEY")
	default:
		setStr(&c.Exchange.AccessKey, "UPBIT_ACCESS_KEY")
		setStr(&c.Exchange.SecretKey, "UPBIT_SECRET_KEY")
	}
	if c.Notify.Telegram.BotToken != "" && c.Notify.Telegram.ChatID != "" && !keys.isSet("notify.telegram.enabled") {
		c.Notify.Telegram.Enabled = true
		keys.mark("notify.telegram.enabled")
	}
	if setStr(&c.App.LogLevel, "SPOTGUARD_LOG_LEVEL") {
		keys.mark("app.log_level")
	}
}

// setStr 取第一个非空的环境变量写入 dst。
func setStr(dst *string, names ...string) bool {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
			return true
		}
	}
	return false
}
