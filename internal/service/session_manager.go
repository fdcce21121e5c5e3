package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"
	"github.com/MP2EZ/being-sub014/internal/evaluator"
	"github.com/MP2EZ/being-sub014/internal/models"
	"github.com/MP2EZ/being-sub014/internal/notifier"
	"github.com/MP2EZ/being-sub014/internal/repository"
	"github.com/MP2EZ/being-sub014/internal/scoring"
	"github.com/MP2EZ/being-sub014/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ManagerDeps 会话管理器共享依赖。Legacy 可为 nil(无数据库部署)
type ManagerDeps struct {
	Primary     store.SnapshotStore
	Legacy      store.SnapshotStore
	Archive     repository.ResultsRepository
	Evaluator   *evaluator.Evaluator
	Notifier    notifier.CrisisNotifier
	Logger      *zap.Logger
	TTL         time.Duration
	StepSeconds int
	Now         func() time.Time
}

// SessionManager 单用户会话生命周期管理器。
// 每个(用户,量表)至多一个进行中会话,会话仅归本管理器持有(单写者)。
// 所有公开操作在内部锁上串行化:并发作答先合并进内存会话(字段级 last-write-wins),
// 再把整份快照一次写入存储,不会出现两笔部分快照竞争落盘
type SessionManager struct {
	userID string
	deps   ManagerDeps

	mu       sync.Mutex
	sessions map[domain.InstrumentType]*domain.AssessmentSession
}

// NewSessionManager 创建会话管理器
func NewSessionManager(userID string, deps ManagerDeps) *SessionManager {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &SessionManager{
		userID:   userID,
		deps:     deps,
		sessions: make(map[domain.InstrumentType]*domain.AssessmentSession),
	}
}

// SessionView 返回给接口层的会话视图(内部状态的拷贝)
type SessionView struct {
	SessionID         string
	UserID            string
	InstrumentType    domain.InstrumentType
	StartedAt         time.Time
	Answers           []*int
	CurrentQuestion   int
	CrisisState       domain.CrisisState
	ImmediateRisk     bool
	ResumeCount       int
	HasPartialSession bool
	Progress          models.SnapshotProgress
}

// AnswerResult 作答结果。PersistWarning 非空表示快照落盘失败,
// 内存会话继续有效,调用方应提示用户进度可能不被保留
type AnswerResult struct {
	Session        *SessionView
	ImmediateRisk  bool // 本次作答触发了即时风险信号
	PersistWarning error
}

// Start 建立全新会话并落初始快照。初始快照写入失败时会话按未建立处理,
// 不留下未同步的孤儿会话
func (m *SessionManager) Start(ctx context.Context, instrumentType domain.InstrumentType, entryScreen string) (*SessionView, error) {
	inst, err := domain.GetInstrument(instrumentType)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// 已有进行中会话时直接覆盖,等价于放弃旧会话重新开始
	if active, err := m.deps.Primary.HasActive(ctx, m.userID, instrumentType); err == nil && active {
		m.deps.Logger.Warn("starting over an existing active session",
			zap.String("user_id", m.userID),
			zap.String("instrument_type", string(instrumentType)),
		)
	}

	sess := domain.NewAssessmentSession(uuid.New().String(), m.userID, inst, m.deps.Now(), entryScreen)
	snap := m.snapshotOf(sess, inst)

	if err := m.deps.Primary.Save(ctx, snap); err != nil {
		m.deps.Logger.Error("failed to persist initial snapshot",
			zap.String("user_id", m.userID),
			zap.String("instrument_type", string(instrumentType)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionCreationFailed, err)
	}

	m.sessions[instrumentType] = sess
	return m.viewOf(sess, inst, false), nil
}

// Answer 写入一题作答。校验失败不改动任何状态;
// 即时风险在写入当下同步上报,先于投射评估,且每会话只发一次
func (m *SessionManager) Answer(ctx context.Context, instrumentType domain.InstrumentType, questionIndex, value int) (*AnswerResult, error) {
	inst, err := domain.GetInstrument(instrumentType)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[instrumentType]
	if !ok {
		return nil, fmt.Errorf("%w: no active session, start or resume first", domain.ErrSessionNotFound)
	}

	if err := evaluator.ValidateAnswer(inst, questionIndex, value); err != nil {
		return nil, err
	}

	// 1. 合并作答(字段级 last-write-wins)
	now := m.deps.Now()
	v := value
	sess.Answers[questionIndex] = &v
	ts := now
	sess.AnsweredAt[questionIndex] = &ts
	sess.LastAnswerAt = &ts
	sess.CurrentQuestion = firstUnanswered(sess.Answers)
	sess.PushScreen(fmt.Sprintf("question_%d", questionIndex+1))

	result := &AnswerResult{}

	// 2. 即时风险:独立于总分,命中即同步上报,不等完成
	if inst.IsImmediateRisk(questionIndex, value) && !sess.ImmediateRiskFired {
		sess.ImmediateRiskFired = true
		result.ImmediateRisk = true
		m.emitSignal(ctx, sess, domain.ReasonImmediateRisk, now)
	}

	// 3. 投射评估,状态只升不降,确认危机在升档瞬间上报一次
	projection := m.deps.Evaluator.Project(inst, sess.Answers)
	escalated := domain.MaxCrisisState(sess.CrisisState, projection.State)
	if escalated == domain.CrisisConfirmed && sess.CrisisState != domain.CrisisConfirmed {
		m.emitSignal(ctx, sess, domain.ReasonConfirmedCrisis, now)
	}
	sess.CrisisState = escalated

	// 4. 整份快照落盘。失败不回滚内存,下一次成功落盘会补齐
	snap := m.snapshotOf(sess, inst)
	if err := m.deps.Primary.Save(ctx, snap); err != nil {
		m.deps.Logger.Warn("snapshot persist failed, session continues in memory",
			zap.String("user_id", m.userID),
			zap.String("session_id", sess.SessionID),
			zap.Error(err),
		)
		result.PersistWarning = err
	}

	view := m.viewOf(sess, inst, sess.ResumeCount > 0)
	result.Session = view
	return result, nil
}

// Resume 从快照重建会话:先主存储,未命中落到旧存储;两边都没有返回 ErrSessionNotFound。
// 损坏与过期快照按"无可恢复会话"降级,但日志各自区分。
// 成功恢复时 resume_count 恰好加一
func (m *SessionManager) Resume(ctx context.Context, instrumentType domain.InstrumentType) (*SessionView, error) {
	inst, err := domain.GetInstrument(instrumentType)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.loadSnapshot(ctx, instrumentType)
	if snap == nil {
		return nil, domain.ErrSessionNotFound
	}
	if snap.Expired(m.deps.Now()) {
		m.deps.Logger.Info("snapshot expired, nothing to resume",
			zap.String("user_id", m.userID),
			zap.String("instrument_type", string(instrumentType)),
			zap.Time("expires_at", snap.ExpiresAt),
		)
		return nil, domain.ErrSessionNotFound
	}
	if len(snap.Data.Answers) != inst.QuestionCount() {
		m.deps.Logger.Error("snapshot corrupt, starting fresh",
			zap.String("user_id", m.userID),
			zap.String("instrument_type", string(instrumentType)),
			zap.Int("answers", len(snap.Data.Answers)),
		)
		return nil, domain.ErrSessionNotFound
	}

	sess := m.rebuildSession(ctx, inst, snap)
	sess.ResumeCount = snap.Metadata.ResumeCount + 1
	m.sessions[instrumentType] = sess

	// 恢复计数落盘为尽力而为,失败不影响本次恢复
	if err := m.deps.Primary.Save(ctx, m.snapshotOf(sess, inst)); err != nil {
		m.deps.Logger.Warn("failed to persist resumed snapshot",
			zap.String("user_id", m.userID),
			zap.String("session_id", sess.SessionID),
			zap.Error(err),
		)
	}

	return m.viewOf(sess, inst, true), nil
}

// Complete 结束会话:全部作答 -> 评分 -> 归档 -> 删除快照 -> 清内存。
// 归档失败时快照必须保留(可重试),内存会话原样保留
func (m *SessionManager) Complete(ctx context.Context, instrumentType domain.InstrumentType) (*domain.CompletedResult, error) {
	inst, err := domain.GetInstrument(instrumentType)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[instrumentType]
	if !ok {
		return nil, fmt.Errorf("%w: no active session", domain.ErrSessionNotFound)
	}
	if !sess.IsComplete() {
		return nil, fmt.Errorf("%w: %d of %d questions unanswered",
			domain.ErrIncompleteAssessment, sess.Remaining(), inst.QuestionCount())
	}

	now := m.deps.Now()
	result, err := scoring.Score(inst, sess.Answers, sess.AnsweredAt, now)
	if err != nil {
		return nil, err
	}
	result.ResultID = uuid.New().String()
	result.UserID = m.userID
	result.SessionID = sess.SessionID
	result.CreatedAt = now

	// 先归档,归档成功后才允许删除快照
	if err := m.deps.Archive.Append(ctx, result); err != nil {
		m.deps.Logger.Error("failed to archive completed result, keeping snapshot",
			zap.String("user_id", m.userID),
			zap.String("session_id", sess.SessionID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to archive result: %w", err)
	}

	m.deleteSnapshots(ctx, instrumentType, sess.SessionID)
	delete(m.sessions, instrumentType)

	m.deps.Logger.Info("assessment completed",
		zap.String("user_id", m.userID),
		zap.String("session_id", sess.SessionID),
		zap.String("instrument_type", string(instrumentType)),
		zap.Int("total_score", result.TotalScore),
		zap.String("severity", string(result.Severity)),
		zap.Bool("is_crisis", result.IsCrisis),
	)
	return result, nil
}

// Clear 用户主动放弃:两边存储的快照都删掉,内存状态重置。
// 与超时过期不同,这是显式操作,删除失败要向上反馈
func (m *SessionManager) Clear(ctx context.Context, instrumentType domain.InstrumentType) error {
	if _, err := domain.GetInstrument(instrumentType); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, instrumentType)

	var firstErr error
	if err := m.deps.Primary.Delete(ctx, m.userID, instrumentType); err != nil {
		firstErr = err
	}
	if m.deps.Legacy != nil {
		if err := m.deps.Legacy.Delete(ctx, m.userID, instrumentType); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MarkInterrupted 记录中断原因(切后台、来电等),随快照持久化
func (m *SessionManager) MarkInterrupted(ctx context.Context, instrumentType domain.InstrumentType, reason string) error {
	inst, err := domain.GetInstrument(instrumentType)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[instrumentType]
	if !ok {
		return fmt.Errorf("%w: no active session", domain.ErrSessionNotFound)
	}
	sess.InterruptionReason = reason

	if err := m.deps.Primary.Save(ctx, m.snapshotOf(sess, inst)); err != nil {
		return err
	}
	return nil
}

// ActiveSnapshot 只读探查当前可恢复会话:优先内存,其次存储,
// 不触发恢复计数,也不改动任何状态。没有可恢复会话时返回 (nil, nil)
func (m *SessionManager) ActiveSnapshot(ctx context.Context, instrumentType domain.InstrumentType) (*models.ResumableSnapshot, error) {
	inst, err := domain.GetInstrument(instrumentType)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[instrumentType]; ok {
		return m.snapshotOf(sess, inst), nil
	}

	snap := m.loadSnapshot(ctx, instrumentType)
	if snap == nil || snap.Expired(m.deps.Now()) {
		return nil, nil
	}
	return snap, nil
}

// loadSnapshot 主存储优先、旧存储兜底的读取。存储故障与损坏都降级为未命中,
// 日志分别记录(损坏要能和正常 miss 区分开,否则数据丢失事件会被掩盖)
func (m *SessionManager) loadSnapshot(ctx context.Context, instrumentType domain.InstrumentType) *models.ResumableSnapshot {
	stores := []struct {
		name string
		s    store.SnapshotStore
	}{
		{"primary", m.deps.Primary},
		{"legacy", m.deps.Legacy},
	}

	for _, entry := range stores {
		if entry.s == nil {
			continue
		}
		snap, err := entry.s.Load(ctx, m.userID, instrumentType)
		if err != nil {
			if errors.Is(err, store.ErrSnapshotCorrupt) {
				m.deps.Logger.Error("snapshot corrupt, starting fresh",
					zap.String("store", entry.name),
					zap.String("user_id", m.userID),
					zap.String("instrument_type", string(instrumentType)),
					zap.Error(err),
				)
			} else {
				m.deps.Logger.Warn("snapshot load failed, treating as no resumable session",
					zap.String("store", entry.name),
					zap.String("user_id", m.userID),
					zap.String("instrument_type", string(instrumentType)),
					zap.Error(err),
				)
			}
			continue
		}
		if snap != nil {
			return snap
		}
	}
	return nil
}

// rebuildSession 从快照重建内存会话。旧存储来的快照没有危机状态,
// 按当前作答重新投射,并补发当时漏掉的信号
func (m *SessionManager) rebuildSession(ctx context.Context, inst *domain.Instrument, snap *models.ResumableSnapshot) *domain.AssessmentSession {
	n := inst.QuestionCount()
	sess := &domain.AssessmentSession{
		SessionID:          snap.SessionID,
		UserID:             m.userID,
		InstrumentType:     inst.Type,
		StartedAt:          snap.Data.StartedAt,
		Answers:            make([]*int, n),
		AnsweredAt:         make([]*time.Time, n),
		CurrentQuestion:    snap.Data.CurrentQuestion,
		LastAnswerAt:       snap.Data.LastAnswerAt,
		CrisisState:        snap.Data.CrisisState,
		ImmediateRiskFired: snap.Data.ImmediateRiskFired,
		ResumeCount:        snap.Metadata.ResumeCount,
		LastScreen:         snap.Metadata.LastScreen,
		NavigationStack:    append([]string(nil), snap.Metadata.NavigationStack...),
		InterruptionReason: snap.Metadata.InterruptionReason,
	}
	for idx := 0; idx < n; idx++ {
		if a := snap.Data.Answers[idx]; a != nil {
			v := *a
			sess.Answers[idx] = &v
		}
		if ts := snap.Data.AnsweredAt[idx]; ts != nil {
			t := *ts
			sess.AnsweredAt[idx] = &t
		}
	}

	if sess.CrisisState == "" {
		now := m.deps.Now()
		projection := m.deps.Evaluator.Project(inst, sess.Answers)
		sess.CrisisState = projection.State
		if sess.CrisisState == domain.CrisisConfirmed {
			m.emitSignal(ctx, sess, domain.ReasonConfirmedCrisis, now)
		}
		if inst.ImmediateRisk != nil && !sess.ImmediateRiskFired {
			idx := inst.ImmediateRisk.QuestionIndex
			if a := sess.Answers[idx]; a != nil && inst.IsImmediateRisk(idx, *a) {
				sess.ImmediateRiskFired = true
				m.emitSignal(ctx, sess, domain.ReasonImmediateRisk, now)
			}
		}
	}
	return sess
}

// emitSignal 同步上报危机信号。下游失败只记日志:危机检测是正常业务结果,
// 不能因为通知失败而让作答失败
func (m *SessionManager) emitSignal(ctx context.Context, sess *domain.AssessmentSession, reason domain.CrisisReason, triggeredAt time.Time) {
	signal := evaluator.NewSignalBuilder(m.userID, sess.SessionID, sess.InstrumentType).
		Build(reason, sess.CurrentSum(), sess.AnsweredCount(), triggeredAt)

	if err := m.deps.Notifier.Notify(ctx, signal); err != nil {
		m.deps.Logger.Error("failed to deliver crisis signal",
			zap.String("signal_id", signal.SignalID),
			zap.String("session_id", sess.SessionID),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return
	}
	m.deps.Logger.Info("crisis signal emitted",
		zap.String("signal_id", signal.SignalID),
		zap.String("session_id", sess.SessionID),
		zap.String("reason", string(reason)),
		zap.Int("score_so_far", signal.ScoreSoFar),
		zap.Int("answered", signal.AnsweredCount),
	)
}

// deleteSnapshots 完成后的快照清理。删除失败只告警:归档已是事实记录,
// 残留快照最晚随 TTL 消失
func (m *SessionManager) deleteSnapshots(ctx context.Context, instrumentType domain.InstrumentType, sessionID string) {
	if err := m.deps.Primary.Delete(ctx, m.userID, instrumentType); err != nil {
		m.deps.Logger.Warn("failed to delete primary snapshot after completion",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	if m.deps.Legacy != nil {
		if err := m.deps.Legacy.Delete(ctx, m.userID, instrumentType); err != nil {
			m.deps.Logger.Warn("failed to delete legacy snapshot after completion",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
}

// snapshotOf 从内存会话生成整份快照。进度永远整体重算,不做增量修补
func (m *SessionManager) snapshotOf(sess *domain.AssessmentSession, inst *domain.Instrument) *models.ResumableSnapshot {
	now := m.deps.Now()
	n := inst.QuestionCount()

	answers := make([]*int, n)
	answeredAt := make([]*time.Time, n)
	completed := make([]string, 0, n)
	answeredCount := 0
	for idx := 0; idx < n; idx++ {
		if a := sess.Answers[idx]; a != nil {
			v := *a
			answers[idx] = &v
			completed = append(completed, inst.QuestionIDs[idx])
			answeredCount++
		}
		if ts := sess.AnsweredAt[idx]; ts != nil {
			t := *ts
			answeredAt[idx] = &t
		}
	}
	remaining := n - answeredCount

	return &models.ResumableSnapshot{
		Type:      models.SnapshotTypeAssessment,
		SubType:   inst.Type,
		UserID:    m.userID,
		SessionID: sess.SessionID,
		SavedAt:   now,
		ExpiresAt: sess.StartedAt.Add(m.deps.TTL),
		Data: models.SnapshotData{
			StartedAt:          sess.StartedAt,
			Answers:            answers,
			AnsweredAt:         answeredAt,
			CurrentQuestion:    sess.CurrentQuestion,
			LastAnswerAt:       sess.LastAnswerAt,
			CrisisState:        sess.CrisisState,
			ImmediateRiskFired: sess.ImmediateRiskFired,
		},
		Progress: models.SnapshotProgress{
			CurrentStep:               sess.CurrentQuestion,
			TotalSteps:                n,
			CompletedSteps:            completed,
			PercentComplete:           answeredCount * 100 / n,
			EstimatedSecondsRemaining: remaining * m.deps.StepSeconds,
		},
		Metadata: models.SnapshotMetadata{
			ResumeCount:          sess.ResumeCount,
			TotalDurationSeconds: int64(now.Sub(sess.StartedAt) / time.Second),
			LastScreen:           sess.LastScreen,
			NavigationStack:      append([]string(nil), sess.NavigationStack...),
			InterruptionReason:   sess.InterruptionReason,
		},
	}
}

// viewOf 会话视图(拷贝,调用方改不动内部状态)
func (m *SessionManager) viewOf(sess *domain.AssessmentSession, inst *domain.Instrument, hasPartial bool) *SessionView {
	snap := m.snapshotOf(sess, inst)
	return &SessionView{
		SessionID:         sess.SessionID,
		UserID:            m.userID,
		InstrumentType:    sess.InstrumentType,
		StartedAt:         sess.StartedAt,
		Answers:           snap.Data.Answers,
		CurrentQuestion:   sess.CurrentQuestion,
		CrisisState:       sess.CrisisState,
		ImmediateRisk:     sess.ImmediateRiskFired,
		ResumeCount:       sess.ResumeCount,
		HasPartialSession: hasPartial,
		Progress:          snap.Progress,
	}
}

func firstUnanswered(answers []*int) int {
	for idx, a := range answers {
		if a == nil {
			return idx
		}
	}
	return len(answers) - 1
}
