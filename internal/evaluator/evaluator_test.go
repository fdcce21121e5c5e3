package evaluator

import (
	"testing"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func intPtr(i int) *int {
	return &i
}

// partial 构造定长作答数组,values 之外的位保持未作答
func partial(total int, values ...int) []*int {
	answers := make([]*int, total)
	for k := range values {
		answers[k] = intPtr(values[k])
	}
	return answers
}

func TestEvaluator_Project_GatedBeforeMinAnswers(t *testing.T) {
	phq9, err := domain.GetInstrument(domain.InstrumentPHQ9)
	require.NoError(t, err)
	e := NewEvaluator(5, zap.NewNop())

	// 4 题全 3 分,最坏情况已经远超阈值,但未达门槛不评估
	p := e.Project(phq9, partial(9, 3, 3, 3, 3))

	assert.True(t, p.Gated)
	assert.Equal(t, domain.CrisisMonitoring, p.State)
	assert.Equal(t, 12, p.CurrentSum)
	assert.Equal(t, 4, p.AnsweredCount)
}

func TestEvaluator_Project_ProjectedRisk(t *testing.T) {
	phq9, _ := domain.GetInstrument(domain.InstrumentPHQ9)
	e := NewEvaluator(5, zap.NewNop())

	// 5 题各 1 分:当前 5 分,最坏 5+4*3=17 >= 15,危机仍可能
	p := e.Project(phq9, partial(9, 1, 1, 1, 1, 1))

	assert.False(t, p.Gated)
	assert.Equal(t, domain.CrisisProjectedRisk, p.State)
	assert.Equal(t, 5, p.BestCaseTotal)
	assert.Equal(t, 17, p.WorstCaseTotal)
}

func TestEvaluator_Project_Monitoring(t *testing.T) {
	phq9, _ := domain.GetInstrument(domain.InstrumentPHQ9)
	e := NewEvaluator(5, zap.NewNop())

	// 8 题合计 2 分:最坏 2+3=5 < 15,不构成风险
	p := e.Project(phq9, partial(9, 0, 0, 1, 0, 0, 1, 0, 0))

	assert.Equal(t, domain.CrisisMonitoring, p.State)
	assert.False(t, p.Gated)
}

func TestEvaluator_Project_ConfirmedWhenUnavoidable(t *testing.T) {
	phq9, _ := domain.GetInstrument(domain.InstrumentPHQ9)
	e := NewEvaluator(5, zap.NewNop())

	// 当前总分已达阈值,余题即使全 0 也无法回落
	p := e.Project(phq9, partial(9, 3, 3, 3, 3, 3))

	assert.Equal(t, domain.CrisisConfirmed, p.State)
	assert.Equal(t, 15, p.BestCaseTotal)
}

func TestEvaluator_Project_CompleteSetBypassesGate(t *testing.T) {
	gad7, _ := domain.GetInstrument(domain.InstrumentGAD7)
	e := NewEvaluator(50, zap.NewNop())

	// 答完的会话总要评估,门槛只约束进行中的会话
	p := e.Project(gad7, partial(7, 3, 3, 3, 3, 3, 0, 0))

	assert.False(t, p.Gated)
	assert.Equal(t, domain.CrisisConfirmed, p.State)
}

func TestEvaluator_Project_GAD7Boundary(t *testing.T) {
	gad7, _ := domain.GetInstrument(domain.InstrumentGAD7)
	e := NewEvaluator(5, zap.NewNop())

	// 6 题合计 12,最坏 12+3=15 恰好够到阈值
	p := e.Project(gad7, partial(7, 2, 2, 2, 2, 2, 2))
	assert.Equal(t, domain.CrisisProjectedRisk, p.State)

	// 6 题合计 11,最坏 14 < 15
	p = e.Project(gad7, partial(7, 2, 2, 2, 2, 2, 1))
	assert.Equal(t, domain.CrisisMonitoring, p.State)
}

func TestValidateAnswer(t *testing.T) {
	phq9, _ := domain.GetInstrument(domain.InstrumentPHQ9)

	assert.NoError(t, ValidateAnswer(phq9, 0, 0))
	assert.NoError(t, ValidateAnswer(phq9, 8, 3))
	assert.ErrorIs(t, ValidateAnswer(phq9, 9, 1), domain.ErrInvalidQuestionIndex)
	assert.ErrorIs(t, ValidateAnswer(phq9, -1, 1), domain.ErrInvalidQuestionIndex)
	assert.ErrorIs(t, ValidateAnswer(phq9, 2, 4), domain.ErrInvalidAnswer)
	assert.ErrorIs(t, ValidateAnswer(phq9, 2, -1), domain.ErrInvalidAnswer)
}

func TestEvaluator_MinAnswersFloor(t *testing.T) {
	phq9, _ := domain.GetInstrument(domain.InstrumentPHQ9)
	e := NewEvaluator(0, zap.NewNop())

	// 门槛下限为 1:首题 3 分即可评估
	p := e.Project(phq9, partial(9, 3))
	assert.False(t, p.Gated)
	assert.Equal(t, domain.CrisisProjectedRisk, p.State)
}
