package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamNotifier 把危机信号发布到 Redis Stream,平台内消费方
// (护理看板、跟进任务)从这里订阅
type StreamNotifier struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

func NewStreamNotifier(client *redis.Client, stream string, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		client: client,
		stream: stream,
		logger: logger,
	}
}

var _ CrisisNotifier = (*StreamNotifier)(nil)

func (s *StreamNotifier) Notify(ctx context.Context, signal *domain.CrisisSignal) error {
	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal crisis signal: %w", err)
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish crisis signal to stream %s: %w", s.stream, err)
	}

	s.logger.Info("crisis signal published to stream",
		zap.String("stream", s.stream),
		zap.String("message_id", id),
		zap.String("signal_id", signal.SignalID),
		zap.String("reason", string(signal.Reason)),
	)
	return nil
}
