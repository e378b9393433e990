package schedule

import (
	"context"
	"log/slog"
	"time"
)

type Task interface {
	Run(ctx context.Context) error
	Name() string
}

// RunEvery 以固定间隔反复执行 task，直到 ctx 取消。
// 单次执行的错误只记录日志，不中断循环。
func RunEvery(ctx context.Context, task Task, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := task.Run(ctx); err != nil {
			slog.Error("scheduled task failed", "task", task.Name(), "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
