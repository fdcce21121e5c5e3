package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux(避免引入第三方路由依赖)
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口(用于 pprof 等)
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterAssessmentRoutes 注册移动端评估 API 路由
func (r *Router) RegisterAssessmentRoutes(h *AssessmentHandler) {
	// start / clear
	r.Handle("/assessment/api/v1/sessions", func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodPost:
			h.StartSession(w, req)
		case http.MethodDelete:
			h.ClearSession(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	// answer
	r.Handle("/assessment/api/v1/sessions/answer", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.SubmitAnswer(w, req)
	})

	// resume
	r.Handle("/assessment/api/v1/sessions/resume", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ResumeSession(w, req)
	})

	// interrupt
	r.Handle("/assessment/api/v1/sessions/interrupt", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.InterruptSession(w, req)
	})

	// complete
	r.Handle("/assessment/api/v1/sessions/complete", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.CompleteSession(w, req)
	})

	// active session peek
	r.Handle("/assessment/api/v1/sessions/active", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ActiveSession(w, req)
	})

	// instruments catalog
	r.Handle("/assessment/api/v1/instruments", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Instruments(w, req)
	})
}

// RegisterHistoryRoutes 注册历史查询与导出路由
func (r *Router) RegisterHistoryRoutes(h *HistoryHandler) {
	r.Handle("/assessment/api/v1/history", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetHistory(w, req)
	})

	r.Handle("/assessment/api/v1/history/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ExportHistory(w, req)
	})
}
