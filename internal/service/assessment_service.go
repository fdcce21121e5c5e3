package service

import (
	"context"
	"sync"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"
	"github.com/MP2EZ/being-sub014/internal/evaluator"
	"github.com/MP2EZ/being-sub014/internal/models"
	"github.com/MP2EZ/being-sub014/internal/notifier"
	"github.com/MP2EZ/being-sub014/internal/repository"
	"github.com/MP2EZ/being-sub014/internal/store"

	"go.uber.org/zap"
)

// AssessmentService 评估服务,HTTP 层唯一入口。
// 按用户分片到各自的 SessionManager,用户之间互不阻塞
type AssessmentService interface {
	Start(ctx context.Context, userID string, instrumentType domain.InstrumentType, entryScreen string) (*SessionView, error)
	Answer(ctx context.Context, userID string, instrumentType domain.InstrumentType, questionIndex, value int) (*AnswerResult, error)
	Resume(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*SessionView, error)
	Complete(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*domain.CompletedResult, error)
	Clear(ctx context.Context, userID string, instrumentType domain.InstrumentType) error
	MarkInterrupted(ctx context.Context, userID string, instrumentType domain.InstrumentType, reason string) error
	ActiveSnapshot(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*models.ResumableSnapshot, error)
	History(ctx context.Context, userID string, instrumentType *domain.InstrumentType, limit int) ([]*domain.CompletedResult, error)
}

type assessmentService struct {
	deps    ManagerDeps
	archive repository.ResultsRepository
	logger  *zap.Logger

	mu       sync.Mutex
	managers map[string]*SessionManager
}

var _ AssessmentService = (*assessmentService)(nil)

// NewAssessmentService 创建评估服务。legacy 传 nil 表示无旧存储兜底
func NewAssessmentService(
	primary store.SnapshotStore,
	legacy store.SnapshotStore,
	archive repository.ResultsRepository,
	eval *evaluator.Evaluator,
	crisisNotifier notifier.CrisisNotifier,
	ttl time.Duration,
	stepSeconds int,
	logger *zap.Logger,
) AssessmentService {
	return &assessmentService{
		deps: ManagerDeps{
			Primary:     primary,
			Legacy:      legacy,
			Archive:     archive,
			Evaluator:   eval,
			Notifier:    crisisNotifier,
			Logger:      logger,
			TTL:         ttl,
			StepSeconds: stepSeconds,
			Now:         time.Now,
		},
		archive:  archive,
		logger:   logger,
		managers: make(map[string]*SessionManager),
	}
}

// manager 取出该用户的管理器,首次访问时创建
func (s *assessmentService) manager(userID string) *SessionManager {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.managers[userID]; ok {
		return m
	}
	m := NewSessionManager(userID, s.deps)
	s.managers[userID] = m
	return m
}

func (s *assessmentService) Start(ctx context.Context, userID string, instrumentType domain.InstrumentType, entryScreen string) (*SessionView, error) {
	return s.manager(userID).Start(ctx, instrumentType, entryScreen)
}

func (s *assessmentService) Answer(ctx context.Context, userID string, instrumentType domain.InstrumentType, questionIndex, value int) (*AnswerResult, error) {
	return s.manager(userID).Answer(ctx, instrumentType, questionIndex, value)
}

func (s *assessmentService) Resume(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*SessionView, error) {
	return s.manager(userID).Resume(ctx, instrumentType)
}

func (s *assessmentService) Complete(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*domain.CompletedResult, error) {
	return s.manager(userID).Complete(ctx, instrumentType)
}

func (s *assessmentService) Clear(ctx context.Context, userID string, instrumentType domain.InstrumentType) error {
	return s.manager(userID).Clear(ctx, instrumentType)
}

func (s *assessmentService) MarkInterrupted(ctx context.Context, userID string, instrumentType domain.InstrumentType, reason string) error {
	return s.manager(userID).MarkInterrupted(ctx, instrumentType, reason)
}

func (s *assessmentService) ActiveSnapshot(ctx context.Context, userID string, instrumentType domain.InstrumentType) (*models.ResumableSnapshot, error) {
	return s.manager(userID).ActiveSnapshot(ctx, instrumentType)
}

func (s *assessmentService) History(ctx context.Context, userID string, instrumentType *domain.InstrumentType, limit int) ([]*domain.CompletedResult, error) {
	results, err := s.archive.List(ctx, userID, instrumentType, limit)
	if err != nil {
		s.logger.Error("failed to list assessment history",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, err
	}
	return results, nil
}
