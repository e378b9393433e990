package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

var _ Notifier = (*WebhookNotifier)(nil)
var _ WebhookService = (*httpWebhook)(nil)

type httpWebhook struct {
	cli *http.Client
}

func NewWebhookService() WebhookService {
	return &httpWebhook{
		cli: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *httpWebhook) Send(ctx context.Context, url string, data map[string]any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.cli.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}

// WebhookNotifier 将状态迁移事件投递到外部 URL（如 IM 机器人的入口）。
type WebhookNotifier struct {
	url string
	svc WebhookService
}

func NewWebhookNotifier(url string, svc WebhookService) *WebhookNotifier {
	return &WebhookNotifier{url: url, svc: svc}
}

func (n *WebhookNotifier) Notify(ctx context.Context, evt Event) error {
	return n.svc.Send(ctx, n.url, map[string]any{
		"strategy": evt.Strategy,
		"symbol":   evt.Symbol,
		"from":     evt.From,
		"to":       evt.To,
		"reason":   evt.Reason,
		"at":       evt.At.Format(time.RFC3339),
	})
}
