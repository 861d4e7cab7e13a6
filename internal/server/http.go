package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/loadtest"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/metrics"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/policy"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/report"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/runstore"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	maxUploadBytes   = 10 << 20
)

// HTTPServer serves the calibration API
type HTTPServer struct {
	router   *mux.Router
	store    *runstore.Store
	executor *Executor
	logger   *zap.Logger
}

// CreateRunRequest is the body of POST /v1/calibrations. Exactly one of Case and CaseYAML is set.
type CreateRunRequest struct {
	RunID      string             `json:"run_id,omitempty"`
	Case       *loadtest.Document `json:"case,omitempty"`
	CaseYAML   string             `json:"case_yaml,omitempty"`
	WebhookURL string             `json:"webhook_url,omitempty"`
}

// NewHTTPServer wires the routes. Creation is rate limited per client and the
// /v1 routes require a JWT when cfg.JWTSecret is set.
func NewHTTPServer(store *runstore.Store, executor *Executor, cfg config.ServerConfig, logger *zap.Logger) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &HTTPServer{
		router:   mux.NewRouter(),
		store:    store,
		executor: executor,
		logger:   logger,
	}

	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)

	api := s.router.PathPrefix("/v1").Subrouter()
	if cfg.JWTSecret != "" {
		api.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
	}
	limiter := policy.NewIPRateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst).WithIdleTimeout(cfg.LimiterIdle)

	api.Handle("/calibrations", limiter.LimitMiddleware(http.HandlerFunc(s.handleCreateRun))).Methods(http.MethodPost)
	api.HandleFunc("/calibrations", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/calibrations/{id:[^/:]+}:stop", s.handleStopRun).Methods(http.MethodPost)
	api.HandleFunc("/calibrations/{id:[^/:]+}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/calibrations/{id:[^/:]+}/metrics", s.handleGetMetrics).Methods(http.MethodGet)
	api.HandleFunc("/calibrations/{id:[^/:]+}/report.xlsx", s.handleWorkbookReport).Methods(http.MethodGet)
	api.HandleFunc("/calibrations/{id:[^/:]+}/report.pdf", s.handlePDFReport).Methods(http.MethodGet)
	api.HandleFunc("/loadtests:import", s.handleImport).Methods(http.MethodPost)

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	counts := make(map[string]int)
	for status, n := range s.store.Count() {
		counts[string(status)] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"active_runs": s.executor.Active(),
		"runs":        counts,
	})
}

func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var doc loadtest.Document
	switch {
	case req.Case != nil && req.CaseYAML != "":
		writeError(w, http.StatusBadRequest, "set either case or case_yaml, not both")
		return
	case req.Case != nil:
		doc = *req.Case
	case req.CaseYAML != "":
		c, err := loadtest.Parse([]byte(req.CaseYAML))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		doc = c.Document()
	default:
		writeError(w, http.StatusBadRequest, "case is required")
		return
	}

	rec, err := s.executor.Submit(req.RunID, doc, req.WebhookURL)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	s.logger.Info("run created", zap.String("run_id", rec.ID), zap.String("case", doc.Name))
	writeJSON(w, http.StatusCreated, map[string]any{"run": rec})
}

func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultListLimit
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = min(parsed, maxListLimit)
		}
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	status := runstore.Status(q.Get("status"))
	if status != "" && !knownStatus(status) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
		return
	}

	runs := s.store.List(status, limit, offset)
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *HTTPServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": rec})
}

func (s *HTTPServer) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.executor.Stop(id)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	s.logger.Info("run stop requested", zap.String("run_id", id))
	writeJSON(w, http.StatusAccepted, map[string]any{"run": rec})
}

func (s *HTTPServer) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	out := map[string]any{
		"run_id":   rec.ID,
		"status":   rec.Status,
		"progress": rec.Progress,
	}
	if collector, ok := s.executor.Collector(id); ok {
		out["best_trace"] = metrics.BestTrace(collector)
		out["failure_counts"] = metrics.FailureCounts(collector)
		out["evaluation_seconds"] = collector.GetAggregation(metrics.MetricEvaluationSeconds, nil)
		out["metric_names"] = collector.GetMetricNames()
		out["summary"] = collector.GetSummary()
	} else if rec.Result != nil {
		// runs restored from storage only carry their history
		failures := 0
		for _, h := range rec.Result.History {
			failures += h.Failures
		}
		out["best_trace"] = rec.Result.Trace
		out["failures"] = failures
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *HTTPServer) handleWorkbookReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", (*report.Report).WriteWorkbook)
}

func (s *HTTPServer) handlePDFReport(w http.ResponseWriter, r *http.Request) {
	s.serveReport(w, r, "pdf", "application/pdf", (*report.Report).WritePDF)
}

func (s *HTTPServer) serveReport(w http.ResponseWriter, r *http.Request, ext, contentType string, render func(*report.Report, io.Writer) error) {
	id := mux.Vars(r)["id"]
	rec, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	rep, err := report.New(rec.ID, rec.Case, rec.Result)
	if err != nil {
		writeError(w, http.StatusConflict, fmt.Sprintf("run %s has no result yet (status %s)", rec.ID, rec.Status))
		return
	}

	var buf bytes.Buffer
	if err := render(rep, &buf); err != nil {
		s.logger.Error("failed to render report", zap.String("run_id", id), zap.String("format", ext), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, rec.ID, ext))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Warn("failed to write report", zap.String("run_id", id), zap.Error(err))
	}
}

func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required: "+err.Error())
		return
	}
	defer file.Close()

	doc, err := loadtest.ReadWorkbook(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"case": doc})
}

func knownStatus(s runstore.Status) bool {
	switch s {
	case runstore.StatusPending, runstore.StatusRunning:
		return true
	}
	return s.Terminal()
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, loadtest.ErrInvalidCase):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunNotFound), errors.Is(err, runstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, runstore.ErrAlreadyExists), errors.Is(err, ErrRunTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
