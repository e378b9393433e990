package notification

import (
	"context"
	"time"
)

// Event 策略状态迁移事件。风险退出（止盈/止损）也走这里，
// 它们是成功的终态迁移，不是错误。
type Event struct {
	Strategy string    `json:"strategy"`
	Symbol   string    `json:"symbol"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Reason   string    `json:"reason,omitempty"`
	At       time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

type WebhookService interface {
	Send(ctx context.Context, url string, data map[string]any) error
}

// NopNotifier 丢弃所有事件
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, evt Event) error {
	return nil
}
