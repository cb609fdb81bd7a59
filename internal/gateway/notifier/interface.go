package notifier

// TextNotifier 是最小的文本推送接口，核心组件只依赖它而不依赖 Telegram 实现。
type TextNotifier interface {
	SendText(text string) error
}
