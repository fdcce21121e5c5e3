package domain

import "time"

// CrisisState 危机升级状态。状态只升不降:会话上保留观测到的最高档
type CrisisState string

const (
	CrisisMonitoring    CrisisState = "monitoring"
	CrisisProjectedRisk CrisisState = "projected_risk"
	CrisisConfirmed     CrisisState = "confirmed_crisis"
)

// rank 仅用于单调比较
func (s CrisisState) rank() int {
	switch s {
	case CrisisProjectedRisk:
		return 1
	case CrisisConfirmed:
		return 2
	default:
		return 0
	}
}

// AtLeast s 是否已达到 other 档位
func (s CrisisState) AtLeast(other CrisisState) bool {
	return s.rank() >= other.rank()
}

// MaxCrisisState 返回较高档位的状态
func MaxCrisisState(a, b CrisisState) CrisisState {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// CrisisReason 信号触发原因
type CrisisReason string

const (
	ReasonImmediateRisk   CrisisReason = "immediate_risk"
	ReasonConfirmedCrisis CrisisReason = "confirmed_crisis"
)

// CrisisSignal 危机信号,推送到应急边界(stream/mqtt/webhook)
type CrisisSignal struct {
	SignalID       string         `json:"signal_id"`
	UserID         string         `json:"user_id"`
	SessionID      string         `json:"session_id"`
	InstrumentType InstrumentType `json:"instrument_type"`
	Reason         CrisisReason   `json:"reason"`
	ScoreSoFar     int            `json:"score_so_far"`
	AnsweredCount  int            `json:"answered_count"`
	TriggeredAt    time.Time      `json:"triggered_at"`
}
