// Package evaluator 危机投射评估:每次作答后对部分作答集做增量评估,
// 判断危机是否已成定局或仍可能发生
package evaluator

import (
	"fmt"

	"github.com/MP2EZ/being-sub014/internal/domain"

	"go.uber.org/zap"
)

// Evaluator 危机投射评估器。minProjectionAnswers 是投射评估的作答数门槛,
// 用于抑制前几题的噪声触发;即时风险题不受门槛约束(见 manager)
type Evaluator struct {
	minProjectionAnswers int
	logger               *zap.Logger
}

// NewEvaluator 创建评估器
func NewEvaluator(minProjectionAnswers int, logger *zap.Logger) *Evaluator {
	if minProjectionAnswers < 1 {
		minProjectionAnswers = 1
	}
	return &Evaluator{
		minProjectionAnswers: minProjectionAnswers,
		logger:               logger,
	}
}

// Projection 单次投射评估结果(瞬时状态,闩锁在会话侧做)
type Projection struct {
	State          domain.CrisisState
	CurrentSum     int
	AnsweredCount  int
	BestCaseTotal  int // 余题全按最小值计
	WorstCaseTotal int // 余题全按最大值计
	Gated          bool
}

// ValidateAnswer 校验题目下标与取值域。校验失败时调用方不得改动会话状态
func ValidateAnswer(inst *domain.Instrument, questionIndex, value int) error {
	if !inst.ValidQuestionIndex(questionIndex) {
		return fmt.Errorf("%w: %d (instrument %s has %d questions)",
			domain.ErrInvalidQuestionIndex, questionIndex, inst.Type, inst.QuestionCount())
	}
	if !inst.ValidAnswer(value) {
		return fmt.Errorf("%w: %d (domain [%d, %d])",
			domain.ErrInvalidAnswer, value, inst.MinValue, inst.MaxValue)
	}
	return nil
}

// Project 对当前作答集做投射评估。
// 最好情况(余题全取最小值)已达阈值 => confirmed_crisis,危机无法避免;
// 否则最坏情况(余题全取最大值)可达阈值 => projected_risk;
// 作答数未达门槛且尚未答完时不评估,返回 monitoring
func (e *Evaluator) Project(inst *domain.Instrument, answers []*int) Projection {
	sum := 0
	answered := 0
	for _, a := range answers {
		if a != nil {
			sum += *a
			answered++
		}
	}
	remaining := len(answers) - answered

	p := Projection{
		State:          domain.CrisisMonitoring,
		CurrentSum:     sum,
		AnsweredCount:  answered,
		BestCaseTotal:  sum + remaining*inst.MinValue,
		WorstCaseTotal: sum + remaining*inst.MaxValue,
	}

	if answered < e.minProjectionAnswers && remaining > 0 {
		p.Gated = true
		return p
	}

	switch {
	case p.BestCaseTotal >= inst.CrisisThreshold:
		p.State = domain.CrisisConfirmed
	case p.WorstCaseTotal >= inst.CrisisThreshold:
		p.State = domain.CrisisProjectedRisk
	}

	if p.State != domain.CrisisMonitoring {
		e.logger.Debug("crisis projection escalated",
			zap.String("instrument_type", string(inst.Type)),
			zap.String("state", string(p.State)),
			zap.Int("current_sum", sum),
			zap.Int("answered", answered),
			zap.Int("best_case", p.BestCaseTotal),
			zap.Int("worst_case", p.WorstCaseTotal),
		)
	}
	return p
}
