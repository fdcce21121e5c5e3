package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MP2EZ/being-sub014/internal/domain"
	"github.com/MP2EZ/being-sub014/internal/models"
	"github.com/MP2EZ/being-sub014/internal/service"

	"go.uber.org/zap"
)

// AssessmentHandler 实现移动端评估会话 API
type AssessmentHandler struct {
	svc    service.AssessmentService
	logger *zap.Logger
}

func NewAssessmentHandler(svc service.AssessmentService, logger *zap.Logger) *AssessmentHandler {
	return &AssessmentHandler{svc: svc, logger: logger}
}

// requireUserID 评估 API 都以 X-User-Id 标识用户(网关完成鉴权后注入)
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeJSON(w, http.StatusOK, Fail("X-User-Id is required"))
		return "", false
	}
	return userID, true
}

// writeServiceError 业务错误统一走 200 + code=-1 信封,前端按 code 分流;
// 非业务错误只回笼统消息,细节进日志
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownInstrument),
		errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrInvalidQuestionIndex),
		errors.Is(err, domain.ErrIncompleteAssessment),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrSessionCreationFailed),
		errors.Is(err, domain.ErrStorageUnavailable):
		writeJSON(w, http.StatusOK, Fail(err.Error()))
	default:
		logger.Error("assessment api internal error", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("internal error"))
	}
}

func toSessionModel(view *service.SessionView) models.SessionModel {
	return models.SessionModel{
		SessionID:         view.SessionID,
		InstrumentType:    string(view.InstrumentType),
		StartedAt:         view.StartedAt,
		Answers:           view.Answers,
		CurrentQuestion:   view.CurrentQuestion,
		CrisisState:       string(view.CrisisState),
		ImmediateRisk:     view.ImmediateRisk,
		ResumeCount:       view.ResumeCount,
		HasPartialSession: view.HasPartialSession,
		Progress:          view.Progress,
	}
}

func toCompletedModel(res *domain.CompletedResult) models.CompletedResultModel {
	return models.CompletedResultModel{
		ResultID:         res.ResultID,
		SessionID:        res.SessionID,
		InstrumentType:   string(res.InstrumentType),
		TotalScore:       res.TotalScore,
		Severity:         string(res.Severity),
		IsCrisis:         res.IsCrisis,
		SuicidalIdeation: res.SuicidalIdeation,
		Answers:          res.Answers,
		CompletedAt:      res.CompletedAt,
	}
}

// POST /assessment/api/v1/sessions
// body:
// - instrument_type string (phq9 | gad7)
// - entry_screen? string
func (h *AssessmentHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var payload struct {
		InstrumentType string `json:"instrument_type"`
		EntryScreen    string `json:"entry_screen"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	view, err := h.svc.Start(ctx, userID, domain.InstrumentType(payload.InstrumentType), payload.EntryScreen)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toSessionModel(view)))
}

// POST /assessment/api/v1/sessions/answer
// body:
// - instrument_type string
// - question_index number (0 起)
// - value number
// 快照落盘失败时仍返回 200,type=warning,客户端提示进度可能丢失
func (h *AssessmentHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var payload struct {
		InstrumentType string `json:"instrument_type"`
		QuestionIndex  *int   `json:"question_index"`
		Value          *int   `json:"value"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}
	if payload.QuestionIndex == nil || payload.Value == nil {
		writeJSON(w, http.StatusOK, Fail("question_index and value are required"))
		return
	}

	result, err := h.svc.Answer(ctx, userID, domain.InstrumentType(payload.InstrumentType), *payload.QuestionIndex, *payload.Value)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := models.AnswerResultModel{
		Session:             toSessionModel(result.Session),
		ImmediateRiskSignal: result.ImmediateRisk,
	}
	if result.PersistWarning != nil {
		writeJSON(w, http.StatusOK, Warn("failed to persist progress, answer kept in memory", resp))
		return
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

// POST /assessment/api/v1/sessions/resume
// body:
// - instrument_type string
func (h *AssessmentHandler) ResumeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var payload struct {
		InstrumentType string `json:"instrument_type"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	view, err := h.svc.Resume(ctx, userID, domain.InstrumentType(payload.InstrumentType))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toSessionModel(view)))
}

// POST /assessment/api/v1/sessions/interrupt
// body:
// - instrument_type string
// - reason? string (app_backgrounded | phone_call | ...)
func (h *AssessmentHandler) InterruptSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var payload struct {
		InstrumentType string `json:"instrument_type"`
		Reason         string `json:"reason"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	if err := h.svc.MarkInterrupted(ctx, userID, domain.InstrumentType(payload.InstrumentType), payload.Reason); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(true))
}

// POST /assessment/api/v1/sessions/complete
// body:
// - instrument_type string
func (h *AssessmentHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var payload struct {
		InstrumentType string `json:"instrument_type"`
	}
	if err := readBodyJSON(r, 1<<20, &payload); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	result, err := h.svc.Complete(ctx, userID, domain.InstrumentType(payload.InstrumentType))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(toCompletedModel(result)))
}

// DELETE /assessment/api/v1/sessions?type=phq9
func (h *AssessmentHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	instrumentType := r.URL.Query().Get("type")
	if instrumentType == "" {
		writeJSON(w, http.StatusOK, Fail("type is required"))
		return
	}

	if err := h.svc.Clear(ctx, userID, domain.InstrumentType(instrumentType)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(true))
}

// GET /assessment/api/v1/sessions/active?type=phq9
// 只读探查,不消耗恢复计数
func (h *AssessmentHandler) ActiveSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	instrumentType := r.URL.Query().Get("type")
	if instrumentType == "" {
		writeJSON(w, http.StatusOK, Fail("type is required"))
		return
	}

	snap, err := h.svc.ActiveSnapshot(ctx, userID, domain.InstrumentType(instrumentType))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	if snap == nil {
		writeJSON(w, http.StatusOK, Ok(models.ActiveSessionModel{HasActive: false}))
		return
	}

	savedAt := snap.SavedAt
	expiresAt := snap.ExpiresAt
	progress := snap.Progress
	metadata := snap.Metadata
	writeJSON(w, http.StatusOK, Ok(models.ActiveSessionModel{
		HasActive:      true,
		SessionID:      snap.SessionID,
		InstrumentType: string(snap.SubType),
		SavedAt:        &savedAt,
		ExpiresAt:      &expiresAt,
		Progress:       &progress,
		Metadata:       &metadata,
	}))
}

// GET /assessment/api/v1/instruments
// 量表目录,客户端据此渲染题目与结果分段
func (h *AssessmentHandler) Instruments(w http.ResponseWriter, r *http.Request) {
	instruments := domain.Instruments()
	out := make([]models.InstrumentModel, 0, len(instruments))
	for _, inst := range instruments {
		bands := make([]models.SeverityBandModel, 0, len(inst.SeverityBands))
		for _, b := range inst.SeverityBands {
			bands = append(bands, models.SeverityBandModel{
				Min:      b.Min,
				Max:      b.Max,
				Severity: string(b.Severity),
			})
		}
		out = append(out, models.InstrumentModel{
			Type:          string(inst.Type),
			Name:          inst.Name,
			QuestionIDs:   inst.QuestionIDs,
			MinValue:      inst.MinValue,
			MaxValue:      inst.MaxValue,
			MaxScore:      inst.MaxScore(),
			SeverityBands: bands,
		})
	}
	writeJSON(w, http.StatusOK, Ok(out))
}
