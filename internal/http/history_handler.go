package httpapi

import (
	"fmt"
	"net/http"

	"github.com/MP2EZ/being-sub014/internal/domain"
	"github.com/MP2EZ/being-sub014/internal/models"
	"github.com/MP2EZ/being-sub014/internal/service"

	"go.uber.org/zap"
)

// HistoryHandler 历史评估结果查询与导出
type HistoryHandler struct {
	svc    service.AssessmentService
	logger *zap.Logger
}

func NewHistoryHandler(svc service.AssessmentService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, logger: logger}
}

// GET /assessment/api/v1/history
// params:
// - type? string (phq9 | gad7)
// - limit? number (default 50)
// 结果按完成时间倒序
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var instrumentType *domain.InstrumentType
	if t := r.URL.Query().Get("type"); t != "" {
		it := domain.InstrumentType(t)
		if _, err := domain.GetInstrument(it); err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		instrumentType = &it
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)

	results, err := h.svc.History(ctx, userID, instrumentType, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	items := make([]models.CompletedResultModel, 0, len(results))
	for _, res := range results {
		items = append(items, toCompletedModel(res))
	}
	writeJSON(w, http.StatusOK, Ok(models.GetHistoryModel{Items: items, Count: len(items)}))
}

// GET /assessment/api/v1/history/export
// params:
// - type? string
// 导出为 xlsx 附件
func (h *HistoryHandler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var instrumentType *domain.InstrumentType
	if t := r.URL.Query().Get("type"); t != "" {
		it := domain.InstrumentType(t)
		if _, err := domain.GetInstrument(it); err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		instrumentType = &it
	}

	results, err := h.svc.History(ctx, userID, instrumentType, 0)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	excelData, err := GenerateHistoryExport(results)
	if err != nil {
		h.logger.Error("GenerateHistoryExport failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(fmt.Sprintf("failed to generate export: %v", err)))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=assessment-history.xlsx")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(excelData)))
	_, _ = w.Write(excelData)
}
