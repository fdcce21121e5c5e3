package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"
	"github.com/MP2EZ/being-sub014/internal/models"

	"go.uber.org/zap"
)

// PostgresLegacyStore 旧格式草稿存储(对应 assessment_drafts 表)。
// 旧客户端只落答案数组和当前题号,恢复时在这里重建完整快照;
// 写入同样降级成旧格式(答案 + 题号),恢复计数等元数据不落库。
// 仅作为主存储未命中时的回退读取路径
type PostgresLegacyStore struct {
	db          *sql.DB
	ttl         time.Duration
	stepSeconds int
	logger      *zap.Logger
}

var _ SnapshotStore = (*PostgresLegacyStore)(nil)

// NewPostgresLegacyStore 创建旧格式草稿存储
func NewPostgresLegacyStore(db *sql.DB, ttl time.Duration, stepSeconds int, logger *zap.Logger) *PostgresLegacyStore {
	return &PostgresLegacyStore{
		db:          db,
		ttl:         ttl,
		stepSeconds: stepSeconds,
		logger:      logger,
	}
}

func (s *PostgresLegacyStore) Save(ctx context.Context, snap *models.ResumableSnapshot) error {
	answersJSON, err := json.Marshal(snap.Data.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}

	query := `
		INSERT INTO assessment_drafts (user_id, instrument_type, session_id, answers, current_question, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, instrument_type)
		DO UPDATE SET session_id = $3, answers = $4, current_question = $5, started_at = $6, updated_at = $7`

	_, err = s.db.ExecContext(ctx, query,
		snap.UserID,
		string(snap.SubType),
		snap.SessionID,
		answersJSON,
		snap.Data.CurrentQuestion,
		snap.Data.StartedAt,
		snap.SavedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresLegacyStore) Load(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*models.ResumableSnapshot, error) {
	query := `
		SELECT session_id, answers, current_question, started_at, updated_at
		FROM assessment_drafts
		WHERE user_id = $1 AND instrument_type = $2`

	var (
		sessionID       string
		answersJSON     []byte
		currentQuestion int
		startedAt       time.Time
		updatedAt       time.Time
	)
	err := s.db.QueryRowContext(ctx, query, userID, string(instrumentType)).
		Scan(&sessionID, &answersJSON, &currentQuestion, &startedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}

	var answers []*int
	if err := json.Unmarshal(answersJSON, &answers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	snap, err := s.rebuild(userID, instrumentType, sessionID, answers, currentQuestion, startedAt, updatedAt)
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// rebuild 从旧格式行重建快照。旧格式没有每题时间、危机状态和恢复元数据:
// 每题时间留空,危机状态留空交由恢复方重新投射,进度整体重算
func (s *PostgresLegacyStore) rebuild(
	userID string,
	instrumentType domain.InstrumentType,
	sessionID string,
	answers []*int,
	currentQuestion int,
	startedAt, updatedAt time.Time,
) (*models.ResumableSnapshot, error) {
	inst, err := domain.GetInstrument(instrumentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if len(answers) != inst.QuestionCount() {
		return nil, fmt.Errorf("%w: draft has %d answers, instrument %s expects %d",
			ErrSnapshotCorrupt, len(answers), instrumentType, inst.QuestionCount())
	}
	if currentQuestion < 0 || currentQuestion >= inst.QuestionCount() {
		return nil, fmt.Errorf("%w: draft question index %d out of range", ErrSnapshotCorrupt, currentQuestion)
	}

	completed := make([]string, 0, len(answers))
	answeredCount := 0
	for idx, a := range answers {
		if a != nil {
			if !inst.ValidAnswer(*a) {
				return nil, fmt.Errorf("%w: draft answer %d out of domain", ErrSnapshotCorrupt, *a)
			}
			completed = append(completed, inst.QuestionIDs[idx])
			answeredCount++
		}
	}
	remaining := inst.QuestionCount() - answeredCount

	snap := &models.ResumableSnapshot{
		Type:      models.SnapshotTypeAssessment,
		SubType:   instrumentType,
		UserID:    userID,
		SessionID: sessionID,
		SavedAt:   updatedAt,
		ExpiresAt: updatedAt.Add(s.ttl),
		Data: models.SnapshotData{
			StartedAt:       startedAt,
			Answers:         answers,
			AnsweredAt:      make([]*time.Time, len(answers)),
			CurrentQuestion: currentQuestion,
		},
		Progress: models.SnapshotProgress{
			CurrentStep:               currentQuestion,
			TotalSteps:                inst.QuestionCount(),
			CompletedSteps:            completed,
			PercentComplete:           answeredCount * 100 / inst.QuestionCount(),
			EstimatedSecondsRemaining: remaining * s.stepSeconds,
		},
		Metadata: models.SnapshotMetadata{
			TotalDurationSeconds: int64(updatedAt.Sub(startedAt) / time.Second),
		},
	}
	return snap, nil
}

func (s *PostgresLegacyStore) Delete(ctx context.Context, userID string, instrumentType domain.InstrumentType) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM assessment_drafts WHERE user_id = $1 AND instrument_type = $2`,
		userID, string(instrumentType))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresLegacyStore) HasActive(ctx context.Context, userID string, instrumentType domain.InstrumentType) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM assessment_drafts WHERE user_id = $1 AND instrument_type = $2)`,
		userID, string(instrumentType)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return exists, nil
}
