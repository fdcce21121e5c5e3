// Package notifier 应急信号边界:即时风险与确认危机发生的瞬间,
// 把危机信号即发即弃地推给外部消费方(危机干预界面、热线、护理端)
package notifier

import (
	"context"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"go.uber.org/zap"
)

// CrisisNotifier 危机信号下游。实现必须快速返回,失败不得影响作答主路径
type CrisisNotifier interface {
	Notify(ctx context.Context, signal *domain.CrisisSignal) error
}

// MultiNotifier 扇出到多个下游。单个下游失败只记日志,不向上传播,
// 危机检测本身是正常业务结果而不是错误路径
type MultiNotifier struct {
	sinks  []CrisisNotifier
	logger *zap.Logger
}

func NewMultiNotifier(logger *zap.Logger, sinks ...CrisisNotifier) *MultiNotifier {
	return &MultiNotifier{
		sinks:  sinks,
		logger: logger,
	}
}

var _ CrisisNotifier = (*MultiNotifier)(nil)

func (m *MultiNotifier) Notify(ctx context.Context, signal *domain.CrisisSignal) error {
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, signal); err != nil {
			m.logger.Error("crisis notification sink failed",
				zap.String("signal_id", signal.SignalID),
				zap.String("session_id", signal.SessionID),
				zap.String("reason", string(signal.Reason)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// NopNotifier 空实现,未配置任何下游时使用
type NopNotifier struct{}

var _ CrisisNotifier = (*NopNotifier)(nil)

func (NopNotifier) Notify(context.Context, *domain.CrisisSignal) error { return nil }
