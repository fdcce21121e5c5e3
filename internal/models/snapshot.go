package models

import (
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"
)

// 注意:字段命名全部使用 snake_case(json tag),与 Being 客户端存储格式对齐

// SnapshotTypeAssessment 目前唯一的快照类型。保留 type/sub_type 两级,
// 后续其他可恢复流程(如每日 check-in)可复用同一快照格式
const SnapshotTypeAssessment = "assessment"

// ResumableSnapshot 可恢复会话快照。主存储整体 JSON 读写,一次写入一份完整快照
type ResumableSnapshot struct {
	Type      string                `json:"type"`
	SubType   domain.InstrumentType `json:"sub_type"`
	UserID    string                `json:"user_id"`
	SessionID string                `json:"session_id"`
	SavedAt   time.Time             `json:"saved_at"`
	ExpiresAt time.Time             `json:"expires_at"` // 过期由调用方判定,存储不强制删除
	Data      SnapshotData          `json:"data"`
	Progress  SnapshotProgress      `json:"progress"`
	Metadata  SnapshotMetadata      `json:"metadata"`
}

// SnapshotData 会话本体的部分字段镜像,未作答位为 null
type SnapshotData struct {
	StartedAt          time.Time          `json:"started_at"`
	Answers            []*int             `json:"answers"`
	AnsweredAt         []*time.Time       `json:"answered_at"`
	CurrentQuestion    int                `json:"current_question"`
	LastAnswerAt       *time.Time         `json:"last_answer_at,omitempty"`
	CrisisState        domain.CrisisState `json:"crisis_state"`
	ImmediateRiskFired bool               `json:"immediate_risk_fired"`
}

// SnapshotProgress 进度视图。completed_steps 为题目字段名集合(重答不重复计入)
type SnapshotProgress struct {
	CurrentStep               int      `json:"current_step"`
	TotalSteps                int      `json:"total_steps"`
	CompletedSteps            []string `json:"completed_steps"`
	PercentComplete           int      `json:"percent_complete"`
	EstimatedSecondsRemaining int      `json:"estimated_seconds_remaining"`
}

// SnapshotMetadata 恢复相关元数据
type SnapshotMetadata struct {
	ResumeCount          int      `json:"resume_count"`
	TotalDurationSeconds int64    `json:"total_duration_seconds"`
	LastScreen           string   `json:"last_screen,omitempty"`
	NavigationStack      []string `json:"navigation_stack,omitempty"`
	InterruptionReason   string   `json:"interruption_reason,omitempty"`
}

// Expired 按 expires_at 判定是否过期
func (s *ResumableSnapshot) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Validate 结构完整性校验,反序列化成功但形状不符同样按损坏处理
func (s *ResumableSnapshot) Validate() bool {
	if s.Type != SnapshotTypeAssessment || s.SubType == "" {
		return false
	}
	if s.UserID == "" || s.SessionID == "" {
		return false
	}
	if len(s.Data.Answers) == 0 || len(s.Data.Answers) != len(s.Data.AnsweredAt) {
		return false
	}
	if s.Progress.TotalSteps != len(s.Data.Answers) {
		return false
	}
	if s.Data.CurrentQuestion < 0 || s.Data.CurrentQuestion >= len(s.Data.Answers) {
		return false
	}
	return true
}
