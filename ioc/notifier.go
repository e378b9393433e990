package ioc

import (
	"github.com/KNICEX/strategy-bot/internal/service/notification"
	"github.com/spf13/viper"
)

func InitNotifier() notification.Notifier {
	type Config struct {
		WebhookUrl string `mapstructure:"webhook_url"`
	}

	var cfg Config
	if err := viper.UnmarshalKey("notify", &cfg); err != nil {
		panic(err)
	}

	if cfg.WebhookUrl == "" {
		return notification.ConsoleNotifier{}
	}
	return notification.NewWebhookNotifier(cfg.WebhookUrl, notification.NewWebhookService())
}
