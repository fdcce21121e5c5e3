package models

import (
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"
)

// 本文件是对外 API 的响应模型,与移动端字段约定保持一致。
// domain 层实体只带 db 标签,不直接出现在接口响应里

// SessionModel 会话视图
type SessionModel struct {
	SessionID         string           `json:"session_id"`
	InstrumentType    string           `json:"instrument_type"`
	StartedAt         time.Time        `json:"started_at"`
	Answers           []*int           `json:"answers"`
	CurrentQuestion   int              `json:"current_question"`
	CrisisState       string           `json:"crisis_state"`
	ImmediateRisk     bool             `json:"immediate_risk"`
	ResumeCount       int              `json:"resume_count"`
	HasPartialSession bool             `json:"has_partial_session"`
	Progress          SnapshotProgress `json:"progress"`
}

// AnswerResultModel 单题作答响应。ImmediateRiskSignal 表示本次作答
// 触发了即时风险上报,客户端应当切到危机资源页
type AnswerResultModel struct {
	Session             SessionModel `json:"session"`
	ImmediateRiskSignal bool         `json:"immediate_risk_signal"`
}

// ActiveSessionModel 可恢复会话探查结果
type ActiveSessionModel struct {
	HasActive      bool              `json:"has_active"`
	SessionID      string            `json:"session_id,omitempty"`
	InstrumentType string            `json:"instrument_type,omitempty"`
	SavedAt        *time.Time        `json:"saved_at,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	Progress       *SnapshotProgress `json:"progress,omitempty"`
	Metadata       *SnapshotMetadata `json:"metadata,omitempty"`
}

// CompletedResultModel 已完成评估结果
type CompletedResultModel struct {
	ResultID         string                `json:"result_id"`
	SessionID        string                `json:"session_id"`
	InstrumentType   string                `json:"instrument_type"`
	TotalScore       int                   `json:"total_score"`
	Severity         string                `json:"severity"`
	IsCrisis         bool                  `json:"is_crisis"`
	SuicidalIdeation *bool                 `json:"suicidal_ideation,omitempty"`
	Answers          []domain.AnswerRecord `json:"answers"`
	CompletedAt      time.Time             `json:"completed_at"`
}

// GetHistoryModel 历史列表响应
type GetHistoryModel struct {
	Items []CompletedResultModel `json:"items"`
	Count int                    `json:"count"`
}

// SeverityBandModel 严重程度分段
type SeverityBandModel struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	Severity string `json:"severity"`
}

// InstrumentModel 量表目录条目。危机阈值与即时风险规则是服务端
// 评估逻辑,不随目录下发
type InstrumentModel struct {
	Type          string              `json:"type"`
	Name          string              `json:"name"`
	QuestionIDs   []string            `json:"question_ids"`
	MinValue      int                 `json:"min_value"`
	MaxValue      int                 `json:"max_value"`
	MaxScore      int                 `json:"max_score"`
	SeverityBands []SeverityBandModel `json:"severity_bands"`
}
