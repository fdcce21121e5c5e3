package domain

import "time"

// AnswerRecord 单题作答记录(归档时整体序列化为 JSONB)
type AnswerRecord struct {
	QuestionID string    `json:"question_id"`
	Response   int       `json:"response"`
	AnsweredAt time.Time `json:"answered_at"`
}

// CompletedResult 已完成评估结果(对应 assessment_results 表)
type CompletedResult struct {
	// 主键
	ResultID string `db:"result_id"` // UUID, PRIMARY KEY

	// 归属
	UserID    string `db:"user_id"`    // VARCHAR(64), NOT NULL
	SessionID string `db:"session_id"` // UUID, NOT NULL

	// 量表与得分
	InstrumentType InstrumentType `db:"instrument_type"` // VARCHAR(20), NOT NULL
	TotalScore     int            `db:"total_score"`     // INT, NOT NULL
	Severity       Severity       `db:"severity"`        // VARCHAR(20), NOT NULL

	// 危机标记。SuicidalIdeation 仅对含自杀意念题的量表有值,其余量表为 NULL
	IsCrisis         bool  `db:"is_crisis"`         // BOOLEAN, NOT NULL
	SuicidalIdeation *bool `db:"suicidal_ideation"` // BOOLEAN, nullable

	// 作答明细
	Answers []AnswerRecord `db:"answers"` // JSONB, NOT NULL

	// 时间
	CompletedAt time.Time `db:"completed_at"` // TIMESTAMPTZ, NOT NULL
	CreatedAt   time.Time `db:"created_at"`   // TIMESTAMPTZ, DEFAULT now()
}
