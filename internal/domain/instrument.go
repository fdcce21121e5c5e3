package domain

import (
	"fmt"
	"sort"
	"sync"
)

// InstrumentType 量表类型
type InstrumentType string

const (
	InstrumentPHQ9 InstrumentType = "phq9"
	InstrumentGAD7 InstrumentType = "gad7"
)

// Severity 严重程度分级(snake_case,与前端展示层对齐)
type Severity string

const (
	SeverityMinimal          Severity = "minimal"
	SeverityMild             Severity = "mild"
	SeverityModerate         Severity = "moderate"
	SeverityModeratelySevere Severity = "moderately_severe"
	SeveritySevere           Severity = "severe"
)

// SeverityBand 总分闭区间到严重程度的映射
type SeverityBand struct {
	Min      int      `json:"min"`
	Max      int      `json:"max"`
	Severity Severity `json:"severity"`
}

// ImmediateRiskRule 即时风险题规则:指定题目作答值达到 TriggerValue 立即上报,
// 与总分无关
type ImmediateRiskRule struct {
	QuestionIndex int `json:"question_index"`
	TriggerValue  int `json:"trigger_value"`
}

// Instrument 评估量表定义。题目取值域为 [MinValue, MaxValue] 的整数,
// SeverityBands 必须无缝覆盖 [0, MaxScore]
type Instrument struct {
	Type            InstrumentType     `json:"type"`
	Name            string             `json:"name"`
	QuestionIDs     []string           `json:"question_ids"`
	MinValue        int                `json:"min_value"`
	MaxValue        int                `json:"max_value"`
	SeverityBands   []SeverityBand     `json:"severity_bands"`
	CrisisThreshold int                `json:"crisis_threshold"`
	ImmediateRisk   *ImmediateRiskRule `json:"immediate_risk,omitempty"`
}

func (i *Instrument) QuestionCount() int { return len(i.QuestionIDs) }

func (i *Instrument) MaxScore() int { return i.QuestionCount() * i.MaxValue }

// ValidAnswer 答案值是否在取值域内
func (i *Instrument) ValidAnswer(value int) bool {
	return value >= i.MinValue && value <= i.MaxValue
}

// ValidQuestionIndex 题目下标是否有效
func (i *Instrument) ValidQuestionIndex(index int) bool {
	return index >= 0 && index < i.QuestionCount()
}

// SeverityFor 按总分查严重程度分级
func (i *Instrument) SeverityFor(total int) (Severity, error) {
	for _, b := range i.SeverityBands {
		if total >= b.Min && total <= b.Max {
			return b.Severity, nil
		}
	}
	return "", fmt.Errorf("no severity band for score %d on %s", total, i.Type)
}

// IsImmediateRisk 该题该作答值是否触发即时风险
func (i *Instrument) IsImmediateRisk(questionIndex, value int) bool {
	if i.ImmediateRisk == nil {
		return false
	}
	return questionIndex == i.ImmediateRisk.QuestionIndex && value >= i.ImmediateRisk.TriggerValue
}

var (
	registryMu sync.RWMutex
	registry   = map[InstrumentType]*Instrument{}
)

// Register 注册量表定义,校验分级区间无缝覆盖 [0, MaxScore]
func Register(inst *Instrument) error {
	if inst == nil || inst.Type == "" {
		return fmt.Errorf("instrument type required")
	}
	if inst.QuestionCount() == 0 {
		return fmt.Errorf("instrument %s has no questions", inst.Type)
	}
	if inst.MinValue >= inst.MaxValue {
		return fmt.Errorf("instrument %s has invalid value range [%d, %d]", inst.Type, inst.MinValue, inst.MaxValue)
	}
	if inst.CrisisThreshold < 0 || inst.CrisisThreshold > inst.MaxScore() {
		return fmt.Errorf("instrument %s crisis threshold %d outside [0, %d]", inst.Type, inst.CrisisThreshold, inst.MaxScore())
	}
	if inst.ImmediateRisk != nil && !inst.ValidQuestionIndex(inst.ImmediateRisk.QuestionIndex) {
		return fmt.Errorf("instrument %s immediate risk index %d out of range", inst.Type, inst.ImmediateRisk.QuestionIndex)
	}

	// 分级区间必须按 Min 有序、从 0 起、相邻衔接、到 MaxScore 止
	bands := inst.SeverityBands
	if len(bands) == 0 {
		return fmt.Errorf("instrument %s has no severity bands", inst.Type)
	}
	sorted := make([]SeverityBand, len(bands))
	copy(sorted, bands)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Min < sorted[b].Min })
	if sorted[0].Min != 0 {
		return fmt.Errorf("instrument %s severity bands must start at 0", inst.Type)
	}
	for k := 0; k < len(sorted); k++ {
		if sorted[k].Max < sorted[k].Min {
			return fmt.Errorf("instrument %s severity band [%d, %d] inverted", inst.Type, sorted[k].Min, sorted[k].Max)
		}
		if k > 0 && sorted[k].Min != sorted[k-1].Max+1 {
			return fmt.Errorf("instrument %s severity bands leave gap before %d", inst.Type, sorted[k].Min)
		}
	}
	if sorted[len(sorted)-1].Max != inst.MaxScore() {
		return fmt.Errorf("instrument %s severity bands must end at %d", inst.Type, inst.MaxScore())
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[inst.Type] = inst
	return nil
}

// MustRegister 注册失败直接 panic,仅用于包初始化
func MustRegister(inst *Instrument) {
	if err := Register(inst); err != nil {
		panic(err)
	}
}

// GetInstrument 按类型取量表定义
func GetInstrument(t InstrumentType) (*Instrument, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	inst, ok := registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, t)
	}
	return inst, nil
}

// Instruments 返回全部已注册量表(按类型排序,用于目录接口)
func Instruments() []*Instrument {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]*Instrument, 0, len(registry))
	for _, inst := range registry {
		out = append(out, inst)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Type < out[b].Type })
	return out
}

func questionIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for k := 0; k < n; k++ {
		ids[k] = fmt.Sprintf("%s_q%d", prefix, k+1)
	}
	return ids
}

func init() {
	// PHQ-9:0-27 分,第 9 题(下标 8)为自杀意念题,作答 >=1 即时上报
	MustRegister(&Instrument{
		Type:        InstrumentPHQ9,
		Name:        "Patient Health Questionnaire-9",
		QuestionIDs: questionIDs("phq9", 9),
		MinValue:    0,
		MaxValue:    3,
		SeverityBands: []SeverityBand{
			{Min: 0, Max: 4, Severity: SeverityMinimal},
			{Min: 5, Max: 9, Severity: SeverityMild},
			{Min: 10, Max: 14, Severity: SeverityModerate},
			{Min: 15, Max: 19, Severity: SeverityModeratelySevere},
			{Min: 20, Max: 27, Severity: SeveritySevere},
		},
		CrisisThreshold: 15,
		ImmediateRisk:   &ImmediateRiskRule{QuestionIndex: 8, TriggerValue: 1},
	})

	// GAD-7:0-21 分,无即时风险题
	MustRegister(&Instrument{
		Type:        InstrumentGAD7,
		Name:        "Generalized Anxiety Disorder-7",
		QuestionIDs: questionIDs("gad7", 7),
		MinValue:    0,
		MaxValue:    3,
		SeverityBands: []SeverityBand{
			{Min: 0, Max: 4, Severity: SeverityMinimal},
			{Min: 5, Max: 9, Severity: SeverityMild},
			{Min: 10, Max: 14, Severity: SeverityModerate},
			{Min: 15, Max: 21, Severity: SeveritySevere},
		},
		CrisisThreshold: 15,
	})
}
