package notification

import (
	"context"
	"log/slog"
)

var _ Notifier = (*ConsoleNotifier)(nil)

type ConsoleNotifier struct{}

func (ConsoleNotifier) Notify(ctx context.Context, evt Event) error {
	slog.Info("strategy state transition",
		"strategy", evt.Strategy,
		"symbol", evt.Symbol,
		"from", evt.From,
		"to", evt.To,
		"reason", evt.Reason)
	return nil
}
