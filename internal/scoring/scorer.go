// Package scoring 把一份完整作答映射为评估结果。纯计算,无 I/O、无状态,
// 相同输入必得相同输出(审计与测试要求)
package scoring

import (
	"fmt"
	"time"

	"github.com/MP2EZ/being-sub014/internal/domain"
)

// Score 计算完整作答的评估结果。answers/answeredAt 与量表题目等长,
// 任一答案位为 nil 返回 ErrIncompleteAssessment(缺答不会默认按 0 计)。
// 返回的结果不含归属字段(result_id/user_id/session_id 由调用方补齐)
func Score(inst *domain.Instrument, answers []*int, answeredAt []*time.Time, completedAt time.Time) (*domain.CompletedResult, error) {
	if inst == nil {
		return nil, fmt.Errorf("instrument required")
	}
	if len(answers) != inst.QuestionCount() {
		return nil, fmt.Errorf("answer count %d does not match instrument %s question count %d",
			len(answers), inst.Type, inst.QuestionCount())
	}

	total := 0
	for idx, a := range answers {
		if a == nil {
			return nil, fmt.Errorf("%w: question %d unanswered", domain.ErrIncompleteAssessment, idx)
		}
		if !inst.ValidAnswer(*a) {
			return nil, fmt.Errorf("%w: question %d value %d", domain.ErrInvalidAnswer, idx, *a)
		}
		total += *a
	}

	severity, err := inst.SeverityFor(total)
	if err != nil {
		return nil, fmt.Errorf("failed to classify severity: %w", err)
	}

	// 危机判定:总分达阈值,或任一即时风险题触发
	isCrisis := total >= inst.CrisisThreshold

	// 自杀意念仅对含即时风险题的量表有值,其余量表保持类型级缺失(nil)
	var suicidalIdeation *bool
	if inst.ImmediateRisk != nil {
		triggered := inst.IsImmediateRisk(inst.ImmediateRisk.QuestionIndex, *answers[inst.ImmediateRisk.QuestionIndex])
		suicidalIdeation = &triggered
		if triggered {
			isCrisis = true
		}
	}

	records := make([]domain.AnswerRecord, len(answers))
	for idx, a := range answers {
		ts := completedAt
		// 旧格式草稿恢复的会话没有每题时间,回退用完成时间
		if idx < len(answeredAt) && answeredAt[idx] != nil {
			ts = *answeredAt[idx]
		}
		records[idx] = domain.AnswerRecord{
			QuestionID: inst.QuestionIDs[idx],
			Response:   *a,
			AnsweredAt: ts,
		}
	}

	return &domain.CompletedResult{
		InstrumentType:   inst.Type,
		TotalScore:       total,
		Severity:         severity,
		IsCrisis:         isCrisis,
		SuicidalIdeation: suicidalIdeation,
		Answers:          records,
		CompletedAt:      completedAt,
	}, nil
}
