package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/iWorld-y/poll_insight/internal/biz"
)

// InsightService HTTP 接口层，把用例结果编码为对外的 JSON 形状
type InsightService struct {
	polls   *biz.PollUseCase
	report  *biz.ReportUseCase
	metrics *biz.MetricsUseCase
	log     *log.Helper
}

func NewInsightService(
	polls *biz.PollUseCase,
	report *biz.ReportUseCase,
	metrics *biz.MetricsUseCase,
	logger log.Logger,
) *InsightService {
	return &InsightService{
		polls:   polls,
		report:  report,
		metrics: metrics,
		log:     log.NewHelper(logger),
	}
}

type reportRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

type reportReply struct {
	Report string `json:"report"`
}

type pollsReply struct {
	Polls []*biz.Poll `json:"polls"`
}

type errorReply struct {
	Error string `json:"error"`
}

// Report 处理报告生成请求，并为该路由处理 CORS 预检
func (s *InsightService) Report(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := s.report.Generate(r.Context(), req.Query, req.Model)
	if err != nil {
		s.log.WithContext(r.Context()).Errorf("report generation failed: %v", err)
		status, msg := reportErrorReply(err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, reportReply{Report: report})
}

// reportErrorReply 按错误类别映射状态码与用户可读的文案
func reportErrorReply(err error) (int, string) {
	switch {
	case errors.Is(err, biz.ErrEmptyQuery):
		return http.StatusBadRequest, "Query is required"
	case errors.Is(err, biz.ErrContentFiltered):
		return http.StatusInternalServerError,
			"The content might have triggered safety filters. Please try rephrasing your question."
	case errors.Is(err, biz.ErrGenerationTimeout):
		return http.StatusInternalServerError,
			"Report generation timed out. Please try again later."
	case errors.Is(err, biz.ErrRateLimited):
		return http.StatusInternalServerError,
			"The service might be temporarily overloaded. Please try again later."
	default:
		return http.StatusInternalServerError, "Failed to generate report"
	}
}

func (s *InsightService) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query parameter is required")
		return
	}

	polls, err := s.polls.Search(r.Context(), query, 100)
	if err != nil {
		s.log.WithContext(r.Context()).Errorf("search query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to execute search query")
		return
	}
	if polls == nil {
		polls = []*biz.Poll{}
	}
	writeJSON(w, http.StatusOK, pollsReply{Polls: polls})
}

func (s *InsightService) Poll(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/poll/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "Poll ID is required")
		return
	}

	detail, err := s.polls.Get(r.Context(), id)
	if err != nil {
		if kerrors.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Poll not found")
			return
		}
		s.log.WithContext(r.Context()).Errorf("poll lookup failed for id %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch poll data")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *InsightService) Metrics(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"

	metrics, err := s.metrics.Get(r.Context(), refresh)
	if err != nil {
		s.log.WithContext(r.Context()).Errorf("metrics query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch metrics data")
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *InsightService) RandomPolls(w http.ResponseWriter, r *http.Request) {
	yesterday := time.Now().AddDate(0, 0, -1).Format(time.DateOnly)

	polls, err := s.polls.Random(r.Context(), yesterday)
	if err != nil {
		s.log.WithContext(r.Context()).Errorf("random polls query failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch random polls")
		return
	}
	if polls == nil {
		polls = []*biz.Poll{}
	}
	writeJSON(w, http.StatusOK, pollsReply{Polls: polls})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorReply{Error: msg})
}
