package domain

import "time"

// AssessmentSession 进行中的评估会话。只存在于管理器内存中,
// 持久化形态是 models.ResumableSnapshot,二者由 service 层互转。
// Answers/AnsweredAt 与量表题目等长,未作答位为 nil
type AssessmentSession struct {
	SessionID      string
	UserID         string
	InstrumentType InstrumentType

	StartedAt       time.Time
	Answers         []*int
	AnsweredAt      []*time.Time
	CurrentQuestion int
	LastAnswerAt    *time.Time

	CrisisState        CrisisState
	ImmediateRiskFired bool

	ResumeCount        int
	LastScreen         string
	NavigationStack    []string
	InterruptionReason string
}

// NewAssessmentSession 全新会话,下标 0 起答,危机状态 monitoring
func NewAssessmentSession(sessionID, userID string, inst *Instrument, startedAt time.Time, entryScreen string) *AssessmentSession {
	n := inst.QuestionCount()
	s := &AssessmentSession{
		SessionID:      sessionID,
		UserID:         userID,
		InstrumentType: inst.Type,
		StartedAt:      startedAt,
		Answers:        make([]*int, n),
		AnsweredAt:     make([]*time.Time, n),
		CrisisState:    CrisisMonitoring,
	}
	if entryScreen != "" {
		s.LastScreen = entryScreen
		s.NavigationStack = []string{entryScreen}
	}
	return s
}

// AnsweredCount 已作答题数
func (s *AssessmentSession) AnsweredCount() int {
	n := 0
	for _, a := range s.Answers {
		if a != nil {
			n++
		}
	}
	return n
}

// CurrentSum 已作答题目的部分总分
func (s *AssessmentSession) CurrentSum() int {
	sum := 0
	for _, a := range s.Answers {
		if a != nil {
			sum += *a
		}
	}
	return sum
}

// Remaining 未作答题数
func (s *AssessmentSession) Remaining() int {
	return len(s.Answers) - s.AnsweredCount()
}

// IsComplete 是否全部作答
func (s *AssessmentSession) IsComplete() bool {
	return s.Remaining() == 0
}

// PushScreen 记录导航,栈只保留最近 maxNavigationDepth 层
func (s *AssessmentSession) PushScreen(screen string) {
	if screen == "" {
		return
	}
	s.LastScreen = screen
	s.NavigationStack = append(s.NavigationStack, screen)
	if len(s.NavigationStack) > maxNavigationDepth {
		s.NavigationStack = s.NavigationStack[len(s.NavigationStack)-maxNavigationDepth:]
	}
}

const maxNavigationDepth = 16
