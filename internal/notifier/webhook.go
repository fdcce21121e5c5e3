package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookNotifier 把危机信号 POST 给外部危机干预服务
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

// NewWebhookNotifier 创建 webhook 下游
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookNotifier{
		httpClient: client,
		url:        url,
		logger:     logger,
	}
}

var _ CrisisNotifier = (*WebhookNotifier)(nil)

func (w *WebhookNotifier) Notify(ctx context.Context, signal *domain.CrisisSignal) error {
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetBody(signal).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to post crisis signal: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("crisis webhook returned status %d", resp.StatusCode())
	}

	w.logger.Info("crisis signal delivered to webhook",
		zap.String("signal_id", signal.SignalID),
		zap.String("reason", string(signal.Reason)),
		zap.Int("status", resp.StatusCode()),
	)
	return nil
}
