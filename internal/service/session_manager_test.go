package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"
	"github.com/MP2EZ/being-sub014/internal/evaluator"
	"github.com/MP2EZ/being-sub014/internal/models"
	"github.com/MP2EZ/being-sub014/internal/repository"
	"github.com/MP2EZ/being-sub014/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSnapshotStore 内存快照存储,支持错误注入
type fakeSnapshotStore struct {
	mu        sync.Mutex
	snaps     map[string]*models.ResumableSnapshot
	saveErr   error
	loadErr   error
	deleteErr error
	saveCalls int
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snaps: make(map[string]*models.ResumableSnapshot)}
}

func (f *fakeSnapshotStore) key(userID string, t domain.InstrumentType) string {
	return userID + ":" + string(t)
}

func (f *fakeSnapshotStore) Save(ctx context.Context, snap *models.ResumableSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.snaps[f.key(snap.UserID, snap.SubType)] = snap
	return nil
}

func (f *fakeSnapshotStore) Load(ctx context.Context, userID string, t domain.InstrumentType) (*models.ResumableSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	snap, ok := f.snaps[f.key(userID, t)]
	if !ok {
		return nil, nil
	}
	return snap, nil
}

func (f *fakeSnapshotStore) Delete(ctx context.Context, userID string, t domain.InstrumentType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.snaps, f.key(userID, t))
	return nil
}

func (f *fakeSnapshotStore) HasActive(ctx context.Context, userID string, t domain.InstrumentType) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.snaps[f.key(userID, t)]
	return ok, nil
}

func (f *fakeSnapshotStore) get(userID string, t domain.InstrumentType) *models.ResumableSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[f.key(userID, t)]
}

func (f *fakeSnapshotStore) put(snap *models.ResumableSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[f.key(snap.UserID, snap.SubType)] = snap
}

var _ store.SnapshotStore = (*fakeSnapshotStore)(nil)

// recordingNotifier 记录收到的全部危机信号
type recordingNotifier struct {
	mu      sync.Mutex
	signals []*domain.CrisisSignal
	err     error
}

func (r *recordingNotifier) Notify(ctx context.Context, signal *domain.CrisisSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.signals = append(r.signals, signal)
	return nil
}

func (r *recordingNotifier) byReason(reason domain.CrisisReason) []*domain.CrisisSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.CrisisSignal
	for _, s := range r.signals {
		if s.Reason == reason {
			out = append(out, s)
		}
	}
	return out
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

// failingArchive 归档失败注入
type failingArchive struct {
	inner repository.ResultsRepository
	err   error
}

func (f *failingArchive) Append(ctx context.Context, result *domain.CompletedResult) error {
	if f.err != nil {
		return f.err
	}
	return f.inner.Append(ctx, result)
}

func (f *failingArchive) List(ctx context.Context, userID string, t *domain.InstrumentType, limit int) ([]*domain.CompletedResult, error) {
	return f.inner.List(ctx, userID, t, limit)
}

type managerFixture struct {
	manager  *SessionManager
	primary  *fakeSnapshotStore
	legacy   *fakeSnapshotStore
	archive  *repository.MemoryResultsRepository
	failArch *failingArchive
	notifier *recordingNotifier
	now      time.Time
}

func (fx *managerFixture) advance(d time.Duration) {
	fx.now = fx.now.Add(d)
}

func newManagerFixture(t *testing.T, userID string) *managerFixture {
	t.Helper()
	fx := &managerFixture{
		primary:  newFakeSnapshotStore(),
		legacy:   newFakeSnapshotStore(),
		archive:  repository.NewMemoryResultsRepository(),
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	fx.failArch = &failingArchive{inner: fx.archive}
	fx.manager = NewSessionManager(userID, ManagerDeps{
		Primary:     fx.primary,
		Legacy:      fx.legacy,
		Archive:     fx.failArch,
		Evaluator:   evaluator.NewEvaluator(5, zap.NewNop()),
		Notifier:    fx.notifier,
		Logger:      zap.NewNop(),
		TTL:         24 * time.Hour,
		StepSeconds: 30,
		Now:         func() time.Time { return fx.now },
	})
	return fx
}

// sameDepsManager 用同一套存储再造一个管理器,模拟进程重启后恢复
func (fx *managerFixture) restart(userID string) *SessionManager {
	return NewSessionManager(userID, fx.manager.deps)
}

func answerAll(t *testing.T, m *SessionManager, instrumentType domain.InstrumentType, values []int) {
	t.Helper()
	for idx, v := range values {
		_, err := m.Answer(context.Background(), instrumentType, idx, v)
		require.NoError(t, err)
	}
}

func TestSessionManagerStart(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	view, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "assessment_intro")
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, "user-001", view.UserID)
	assert.Equal(t, domain.InstrumentPHQ9, view.InstrumentType)
	assert.Equal(t, 0, view.CurrentQuestion)
	assert.Equal(t, domain.CrisisMonitoring, view.CrisisState)
	assert.Len(t, view.Answers, 9)
	assert.Equal(t, 0, view.Progress.PercentComplete)
	assert.Equal(t, 9, view.Progress.TotalSteps)
	assert.Equal(t, 9*30, view.Progress.EstimatedSecondsRemaining)
	assert.False(t, view.HasPartialSession)

	snap := fx.primary.get("user-001", domain.InstrumentPHQ9)
	require.NotNil(t, snap)
	assert.Equal(t, models.SnapshotTypeAssessment, snap.Type)
	assert.Equal(t, domain.InstrumentPHQ9, snap.SubType)
	assert.Equal(t, view.SessionID, snap.SessionID)
	assert.Equal(t, fx.now.Add(24*time.Hour), snap.ExpiresAt)
	assert.Equal(t, "assessment_intro", snap.Metadata.LastScreen)
	assert.True(t, snap.Validate())
}

func TestSessionManagerStartUnknownInstrument(t *testing.T) {
	fx := newManagerFixture(t, "user-001")

	_, err := fx.manager.Start(context.Background(), domain.InstrumentType("mmpi"), "")
	assert.ErrorIs(t, err, domain.ErrUnknownInstrument)
}

func TestSessionManagerStartPersistFailure(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	fx.primary.saveErr = errors.New("connection refused")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	assert.ErrorIs(t, err, domain.ErrSessionCreationFailed)

	// 创建失败不能留下孤儿会话
	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, 1)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionManagerAnswer(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "assessment_intro")
	require.NoError(t, err)

	fx.advance(40 * time.Second)
	result, err := fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, 2)
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	assert.Nil(t, result.PersistWarning)
	assert.False(t, result.ImmediateRisk)

	assert.Equal(t, 1, result.Session.CurrentQuestion)
	require.NotNil(t, result.Session.Answers[0])
	assert.Equal(t, 2, *result.Session.Answers[0])

	snap := fx.primary.get("user-001", domain.InstrumentPHQ9)
	require.NotNil(t, snap)
	require.NotNil(t, snap.Data.Answers[0])
	assert.Equal(t, 2, *snap.Data.Answers[0])
	require.NotNil(t, snap.Data.AnsweredAt[0])
	assert.Equal(t, fx.now, *snap.Data.AnsweredAt[0])
	require.NotNil(t, snap.Data.LastAnswerAt)
	assert.Equal(t, fx.now, *snap.Data.LastAnswerAt)
	assert.Equal(t, 1, snap.Data.CurrentQuestion)
	assert.Equal(t, []string{"phq9_q1"}, snap.Progress.CompletedSteps)
	assert.Equal(t, 11, snap.Progress.PercentComplete)
	assert.Equal(t, 8*30, snap.Progress.EstimatedSecondsRemaining)
	assert.Equal(t, int64(40), snap.Metadata.TotalDurationSeconds)
	assert.Equal(t, "question_1", snap.Metadata.LastScreen)
}

func TestSessionManagerAnswerValidation(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	savesBefore := fx.primary.saveCalls

	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 9, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuestionIndex)

	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, -1, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidQuestionIndex)

	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, 4)
	assert.ErrorIs(t, err, domain.ErrInvalidAnswer)

	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidAnswer)

	// 拒绝的作答不产生任何状态改动
	assert.Equal(t, savesBefore, fx.primary.saveCalls)
	snap := fx.primary.get("user-001", domain.InstrumentPHQ9)
	assert.Nil(t, snap.Data.Answers[0])
}

func TestSessionManagerAnswerWithoutSession(t *testing.T) {
	fx := newManagerFixture(t, "user-001")

	_, err := fx.manager.Answer(context.Background(), domain.InstrumentPHQ9, 0, 1)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionManagerReAnswerKeepsProgress(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 2, 1)
	require.NoError(t, err)
	result, err := fx.manager.Answer(ctx, domain.InstrumentPHQ9, 2, 3)
	require.NoError(t, err)

	// 改答不是新进度,已答题数不变,取后写的值
	assert.Equal(t, 11, result.Session.Progress.PercentComplete)
	assert.Equal(t, []string{"phq9_q3"}, result.Session.Progress.CompletedSteps)
	require.NotNil(t, result.Session.Answers[2])
	assert.Equal(t, 3, *result.Session.Answers[2])
}

func TestSessionManagerImmediateRiskFiresOnce(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	// 第一题就答了自伤条目:即时风险不等投射门槛,立刻上报
	result, err := fx.manager.Answer(ctx, domain.InstrumentPHQ9, 8, 1)
	require.NoError(t, err)
	assert.True(t, result.ImmediateRisk)

	signals := fx.notifier.byReason(domain.ReasonImmediateRisk)
	require.Len(t, signals, 1)
	assert.Equal(t, "user-001", signals[0].UserID)
	assert.Equal(t, domain.InstrumentPHQ9, signals[0].InstrumentType)
	assert.Equal(t, 1, signals[0].ScoreSoFar)
	assert.Equal(t, 1, signals[0].AnsweredCount)
	assert.NotEmpty(t, signals[0].SignalID)

	// 低总分不影响即时风险,但危机状态仍按投射走
	assert.Equal(t, domain.CrisisMonitoring, result.Session.CrisisState)
	assert.True(t, result.Session.ImmediateRisk)

	// 改答同一条目不再重发
	result, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 8, 3)
	require.NoError(t, err)
	assert.False(t, result.ImmediateRisk)
	assert.Len(t, fx.notifier.byReason(domain.ReasonImmediateRisk), 1)
}

func TestSessionManagerConfirmedCrisisRisingEdge(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	for idx := 0; idx < 4; idx++ {
		result, err := fx.manager.Answer(ctx, domain.InstrumentPHQ9, idx, 3)
		require.NoError(t, err)
		// 未达投射门槛,保持监测
		assert.Equal(t, domain.CrisisMonitoring, result.Session.CrisisState)
	}
	assert.Zero(t, fx.notifier.count())

	// 第 5 题答完累计 15,无论剩余怎么答都越线,升为确认危机
	result, err := fx.manager.Answer(ctx, domain.InstrumentPHQ9, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisConfirmed, result.Session.CrisisState)

	confirmed := fx.notifier.byReason(domain.ReasonConfirmedCrisis)
	require.Len(t, confirmed, 1)
	assert.Equal(t, 15, confirmed[0].ScoreSoFar)
	assert.Equal(t, 5, confirmed[0].AnsweredCount)

	// 后续作答不重复上报,状态保持确认
	result, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisConfirmed, result.Session.CrisisState)
	assert.Len(t, fx.notifier.byReason(domain.ReasonConfirmedCrisis), 1)
}

func TestSessionManagerProjectedRiskLatches(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	// 5 题各 1 分:最坏情形 5+4*3=17 >= 15,进入投射风险
	var result *AnswerResult
	for idx := 0; idx < 5; idx++ {
		result, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, idx, 1)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.CrisisProjectedRisk, result.Session.CrisisState)
	// 投射风险只改状态,不发信号
	assert.Zero(t, fx.notifier.count())

	// 继续低分作答,最坏情形跌回线下,状态只升不降
	for idx := 5; idx < 8; idx++ {
		result, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, idx, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, domain.CrisisProjectedRisk, result.Session.CrisisState)
}

func TestSessionManagerAnswerPersistWarning(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	fx.primary.saveErr = errors.New("redis down")
	result, err := fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, 2)
	require.NoError(t, err)
	require.NotNil(t, result.PersistWarning)

	// 存储恢复后,下一笔作答把整份快照补齐
	fx.primary.saveErr = nil
	result, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 1, 1)
	require.NoError(t, err)
	assert.Nil(t, result.PersistWarning)

	snap := fx.primary.get("user-001", domain.InstrumentPHQ9)
	require.NotNil(t, snap.Data.Answers[0])
	assert.Equal(t, 2, *snap.Data.Answers[0])
	require.NotNil(t, snap.Data.Answers[1])
	assert.Equal(t, 1, *snap.Data.Answers[1])
}

func TestSessionManagerResume(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	started, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "assessment_intro")
	require.NoError(t, err)
	fx.advance(time.Minute)
	for idx, v := range []int{2, 1, 3} {
		_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, idx, v)
		require.NoError(t, err)
	}

	// 模拟进程重启:同一套存储,全新管理器
	restarted := fx.restart("user-001")
	fx.advance(2 * time.Hour)

	view, err := restarted.Resume(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)
	assert.Equal(t, started.SessionID, view.SessionID)
	assert.Equal(t, 1, view.ResumeCount)
	assert.True(t, view.HasPartialSession)
	assert.Equal(t, 3, view.CurrentQuestion)
	assert.Equal(t, 33, view.Progress.PercentComplete)
	assert.Equal(t, []string{"phq9_q1", "phq9_q2", "phq9_q3"}, view.Progress.CompletedSteps)
	require.NotNil(t, view.Answers[0])
	assert.Equal(t, 2, *view.Answers[0])
	require.NotNil(t, view.Answers[2])
	assert.Equal(t, 3, *view.Answers[2])

	// 恢复计数随快照落盘
	snap := fx.primary.get("user-001", domain.InstrumentPHQ9)
	assert.Equal(t, 1, snap.Metadata.ResumeCount)

	// 再答一题无缝衔接
	result, err := restarted.Answer(ctx, domain.InstrumentPHQ9, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 44, result.Session.Progress.PercentComplete)
}

func TestSessionManagerResumeCountsEachResume(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		view, err := fx.restart("user-001").Resume(ctx, domain.InstrumentPHQ9)
		require.NoError(t, err)
		assert.Equal(t, i, view.ResumeCount)
	}
}

func TestSessionManagerResumeNothingToResume(t *testing.T) {
	fx := newManagerFixture(t, "user-001")

	_, err := fx.manager.Resume(context.Background(), domain.InstrumentPHQ9)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionManagerResumeExpired(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, 2)
	require.NoError(t, err)

	fx.advance(25 * time.Hour)
	_, err = fx.restart("user-001").Resume(ctx, domain.InstrumentPHQ9)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionManagerResumeCorruptPrimaryFallsBack(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	// 先经由正常路径制造一份合法快照,搬到旧存储后让主存储报损坏
	_, err := fx.manager.Start(ctx, domain.InstrumentGAD7, "")
	require.NoError(t, err)
	_, err = fx.manager.Answer(ctx, domain.InstrumentGAD7, 0, 2)
	require.NoError(t, err)

	snap := fx.primary.get("user-001", domain.InstrumentGAD7)
	require.NotNil(t, snap)
	fx.legacy.put(snap)
	fx.primary.loadErr = fmt.Errorf("%w: unexpected end of JSON input", store.ErrSnapshotCorrupt)

	view, err := fx.restart("user-001").Resume(ctx, domain.InstrumentGAD7)
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, view.SessionID)
	assert.Equal(t, 1, view.ResumeCount)
}

func TestSessionManagerResumeLegacyReprojectsCrisis(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	// 旧格式草稿:无危机状态、无作答时间,自伤条目已命中且累计已越线
	inst, err := domain.GetInstrument(domain.InstrumentPHQ9)
	require.NoError(t, err)
	answers := make([]*int, inst.QuestionCount())
	for idx, v := range []int{3, 3, 3, 3, 3} {
		val := v
		answers[idx] = &val
	}
	one := 1
	answers[8] = &one

	fx.legacy.put(&models.ResumableSnapshot{
		Type:      models.SnapshotTypeAssessment,
		SubType:   domain.InstrumentPHQ9,
		UserID:    "user-001",
		SessionID: "legacy-session-1",
		SavedAt:   fx.now.Add(-time.Hour),
		ExpiresAt: fx.now.Add(23 * time.Hour),
		Data: models.SnapshotData{
			StartedAt:       fx.now.Add(-time.Hour),
			Answers:         answers,
			AnsweredAt:      make([]*time.Time, inst.QuestionCount()),
			CurrentQuestion: 5,
		},
		Progress: models.SnapshotProgress{
			CurrentStep:     5,
			TotalSteps:      9,
			CompletedSteps:  []string{"phq9_q1", "phq9_q2", "phq9_q3", "phq9_q4", "phq9_q5", "phq9_q9"},
			PercentComplete: 66,
		},
	})

	view, err := fx.manager.Resume(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)
	assert.Equal(t, "legacy-session-1", view.SessionID)

	// 旧草稿没带危机状态:恢复时重新投射并补发当时漏掉的信号
	assert.Equal(t, domain.CrisisConfirmed, view.CrisisState)
	assert.True(t, view.ImmediateRisk)
	assert.Len(t, fx.notifier.byReason(domain.ReasonConfirmedCrisis), 1)
	assert.Len(t, fx.notifier.byReason(domain.ReasonImmediateRisk), 1)
}

func TestSessionManagerResumePreservesCrisisLatch(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	for idx := 0; idx < 5; idx++ {
		_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, idx, 3)
		require.NoError(t, err)
	}
	require.Len(t, fx.notifier.byReason(domain.ReasonConfirmedCrisis), 1)

	view, err := fx.restart("user-001").Resume(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)
	assert.Equal(t, domain.CrisisConfirmed, view.CrisisState)
	// 快照里带了已确认状态,恢复不重发信号
	assert.Len(t, fx.notifier.byReason(domain.ReasonConfirmedCrisis), 1)
}

func TestSessionManagerComplete(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	answerAll(t, fx.manager, domain.InstrumentPHQ9, []int{1, 1, 1, 1, 1, 1, 1, 1, 0})

	fx.advance(5 * time.Minute)
	result, err := fx.manager.Complete(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)

	assert.NotEmpty(t, result.ResultID)
	assert.Equal(t, "user-001", result.UserID)
	assert.Equal(t, 8, result.TotalScore)
	assert.Equal(t, domain.SeverityMild, result.Severity)
	assert.False(t, result.IsCrisis)
	require.NotNil(t, result.SuicidalIdeation)
	assert.False(t, *result.SuicidalIdeation)
	assert.Equal(t, fx.now, result.CompletedAt)
	assert.Len(t, result.Answers, 9)

	// 归档成功后快照删除、内存清空
	assert.Nil(t, fx.primary.get("user-001", domain.InstrumentPHQ9))
	_, err = fx.manager.Complete(ctx, domain.InstrumentPHQ9)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = fx.manager.Resume(ctx, domain.InstrumentPHQ9)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	stored, err := fx.archive.List(ctx, "user-001", nil, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, result.ResultID, stored[0].ResultID)
}

func TestSessionManagerCompleteGAD7NoIdeationField(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentGAD7, "")
	require.NoError(t, err)
	answerAll(t, fx.manager, domain.InstrumentGAD7, []int{2, 2, 2, 2, 2, 2, 2})

	result, err := fx.manager.Complete(ctx, domain.InstrumentGAD7)
	require.NoError(t, err)
	assert.Equal(t, 14, result.TotalScore)
	assert.Equal(t, domain.SeverityModerate, result.Severity)
	assert.False(t, result.IsCrisis)
	assert.Nil(t, result.SuicidalIdeation)
}

func TestSessionManagerCompleteIncomplete(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	answerAll(t, fx.manager, domain.InstrumentPHQ9, []int{1, 1, 1, 1, 1, 1, 1, 1})

	_, err = fx.manager.Complete(ctx, domain.InstrumentPHQ9)
	assert.ErrorIs(t, err, domain.ErrIncompleteAssessment)

	// 会话原样保留,补答后可以完成
	assert.NotNil(t, fx.primary.get("user-001", domain.InstrumentPHQ9))
	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 8, 0)
	require.NoError(t, err)
	_, err = fx.manager.Complete(ctx, domain.InstrumentPHQ9)
	assert.NoError(t, err)
}

func TestSessionManagerCompleteArchiveFailureKeepsSnapshot(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	answerAll(t, fx.manager, domain.InstrumentPHQ9, []int{2, 2, 2, 2, 2, 2, 2, 2, 2})

	fx.failArch.err = errors.New("database is down")
	_, err = fx.manager.Complete(ctx, domain.InstrumentPHQ9)
	require.Error(t, err)

	// 归档失败,快照与内存会话都不能丢
	assert.NotNil(t, fx.primary.get("user-001", domain.InstrumentPHQ9))

	fx.failArch.err = nil
	result, err := fx.manager.Complete(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)
	assert.Equal(t, 18, result.TotalScore)
	assert.True(t, result.IsCrisis)
	assert.Nil(t, fx.primary.get("user-001", domain.InstrumentPHQ9))
}

func TestSessionManagerClear(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, 3)
	require.NoError(t, err)
	fx.legacy.put(fx.primary.get("user-001", domain.InstrumentPHQ9))

	require.NoError(t, fx.manager.Clear(ctx, domain.InstrumentPHQ9))

	assert.Nil(t, fx.primary.get("user-001", domain.InstrumentPHQ9))
	assert.Nil(t, fx.legacy.get("user-001", domain.InstrumentPHQ9))
	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 1, 1)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = fx.manager.Resume(ctx, domain.InstrumentPHQ9)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionManagerClearPropagatesDeleteFailure(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	fx.primary.deleteErr = errors.New("redis down")
	assert.Error(t, fx.manager.Clear(ctx, domain.InstrumentPHQ9))
}

func TestSessionManagerMarkInterrupted(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	require.NoError(t, fx.manager.MarkInterrupted(ctx, domain.InstrumentPHQ9, "app_backgrounded"))

	snap := fx.primary.get("user-001", domain.InstrumentPHQ9)
	assert.Equal(t, "app_backgrounded", snap.Metadata.InterruptionReason)

	// 恢复后中断原因保留
	view, err := fx.restart("user-001").Resume(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)
	assert.True(t, view.HasPartialSession)
}

func TestSessionManagerActiveSnapshot(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	snap, err := fx.manager.ActiveSnapshot(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)
	assert.Nil(t, snap)

	_, err = fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, 1)
	require.NoError(t, err)

	// 只读探查不消耗恢复计数
	snap, err = fx.restart("user-001").ActiveSnapshot(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 0, snap.Metadata.ResumeCount)
	assert.Equal(t, 11, snap.Progress.PercentComplete)

	view, err := fx.restart("user-001").Resume(ctx, domain.InstrumentPHQ9)
	require.NoError(t, err)
	assert.Equal(t, 1, view.ResumeCount)
}

func TestSessionManagerInstrumentsIndependent(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)
	_, err = fx.manager.Start(ctx, domain.InstrumentGAD7, "")
	require.NoError(t, err)

	_, err = fx.manager.Answer(ctx, domain.InstrumentPHQ9, 0, 3)
	require.NoError(t, err)

	// 两个量表的会话互不串扰
	phq9 := fx.primary.get("user-001", domain.InstrumentPHQ9)
	gad7 := fx.primary.get("user-001", domain.InstrumentGAD7)
	require.NotNil(t, phq9)
	require.NotNil(t, gad7)
	assert.NotEqual(t, phq9.SessionID, gad7.SessionID)
	assert.NotNil(t, phq9.Data.Answers[0])
	assert.Nil(t, gad7.Data.Answers[0])
}

func TestSessionManagerConcurrentAnswers(t *testing.T) {
	fx := newManagerFixture(t, "user-001")
	ctx := context.Background()

	_, err := fx.manager.Start(ctx, domain.InstrumentPHQ9, "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for idx := 0; idx < 9; idx++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_, err := fx.manager.Answer(ctx, domain.InstrumentPHQ9, q, 1)
			assert.NoError(t, err)
		}(idx)
	}
	wg.Wait()

	// 并发作答合并后快照完整,不会出现半份快照
	snap := fx.primary.get("user-001", domain.InstrumentPHQ9)
	require.NotNil(t, snap)
	assert.Equal(t, 100, snap.Progress.PercentComplete)
	for idx := 0; idx < 9; idx++ {
		require.NotNil(t, snap.Data.Answers[idx])
		assert.Equal(t, 1, *snap.Data.Answers[idx])
	}
	assert.True(t, snap.Validate())
}
