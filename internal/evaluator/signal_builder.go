package evaluator

import (
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"github.com/google/uuid"
)

// SignalBuilder 危机信号构建器,绑定一个会话
type SignalBuilder struct {
	userID         string
	sessionID      string
	instrumentType domain.InstrumentType
}

// NewSignalBuilder 创建信号构建器
func NewSignalBuilder(userID, sessionID string, instrumentType domain.InstrumentType) *SignalBuilder {
	return &SignalBuilder{
		userID:         userID,
		sessionID:      sessionID,
		instrumentType: instrumentType,
	}
}

// Build 构建危机信号
func (b *SignalBuilder) Build(reason domain.CrisisReason, scoreSoFar, answeredCount int, triggeredAt time.Time) *domain.CrisisSignal {
	return &domain.CrisisSignal{
		SignalID:       uuid.New().String(),
		UserID:         b.userID,
		SessionID:      b.sessionID,
		InstrumentType: b.instrumentType,
		Reason:         reason,
		ScoreSoFar:     scoreSoFar,
		AnsweredCount:  answeredCount,
		TriggeredAt:    triggeredAt,
	}
}
