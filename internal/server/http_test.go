package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/loadtest"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/runstore"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
)

type testServer struct {
	http  *httptest.Server
	store *runstore.Store
	exec  *Executor
}

func newTestServer(t *testing.T, solver simulation.Solver, mutate func(*config.Config)) *testServer {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	store := runstore.New()
	exec := NewExecutor(store, cfg, solver, nil, nil)
	srv := httptest.NewServer(NewHTTPServer(store, exec, cfg.Server, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = exec.Shutdown(ctx)
	})
	return &testServer{http: srv, store: store, exec: exec}
}

func (s *testServer) do(t *testing.T, method, path string, body any, header http.Header) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.http.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func createBody(id string) CreateRunRequest {
	doc := loadtest.ONeill1982Document()
	return CreateRunRequest{RunID: id, Case: &doc}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, exactSolver(), nil)
	resp := s.do(t, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decode(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("expected ok, got %v", body["status"])
	}
}

func TestCreateGetAndReports(t *testing.T) {
	s := newTestServer(t, exactSolver(), nil)

	resp := s.do(t, http.MethodPost, "/v1/calibrations", createBody("http-run"), nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		Run runstore.Record `json:"run"`
	}
	decode(t, resp, &created)
	if created.Run.ID != "http-run" {
		t.Fatalf("expected run id http-run, got %q", created.Run.ID)
	}

	waitForStatus(t, s.store, "http-run", runstore.StatusConverged)

	resp = s.do(t, http.MethodGet, "/v1/calibrations/http-run", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got struct {
		Run runstore.Record `json:"run"`
	}
	decode(t, resp, &got)
	if got.Run.Result == nil || len(got.Run.Result.Parameters) != 4 {
		t.Fatalf("expected four calibrated parameters, got %+v", got.Run.Result)
	}

	resp = s.do(t, http.MethodGet, "/v1/calibrations/http-run/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var m map[string]any
	decode(t, resp, &m)
	if trace, ok := m["best_trace"].([]any); !ok || len(trace) != 1 {
		t.Fatalf("expected one-generation trace, got %v", m["best_trace"])
	}

	resp = s.do(t, http.MethodGet, "/v1/calibrations/http-run/report.xlsx", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %q", ct)
	}

	resp = s.do(t, http.MethodGet, "/v1/calibrations/http-run/report.pdf", nil, nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/pdf" {
		t.Fatalf("expected pdf, got %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	resp = s.do(t, http.MethodPost, "/v1/calibrations/http-run:stop", nil, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for finished run, got %d", resp.StatusCode)
	}
}

func TestCreateFromYAML(t *testing.T) {
	s := newTestServer(t, exactSolver(), nil)
	data, err := loadtest.Marshal(loadtest.ONeill1982())
	if err != nil {
		t.Fatalf("marshal case: %v", err)
	}
	resp := s.do(t, http.MethodPost, "/v1/calibrations", CreateRunRequest{RunID: "yaml", CaseYAML: string(data)}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	waitForStatus(t, s.store, "yaml", runstore.StatusConverged)
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t, exactSolver(), nil)
	doc := loadtest.ONeill1982Document()
	doc.Soil = nil

	tests := []struct {
		name string
		body any
		want int
	}{
		{"no case", CreateRunRequest{RunID: "x"}, http.StatusBadRequest},
		{"both forms", CreateRunRequest{Case: &doc, CaseYAML: "name: x"}, http.StatusBadRequest},
		{"invalid case", CreateRunRequest{Case: &doc}, http.StatusBadRequest},
		{"bad yaml", CreateRunRequest{CaseYAML: "points: [oops"}, http.StatusBadRequest},
		{"not json", "plain", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/v1/calibrations", tt.body, nil)
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestListAndNotFound(t *testing.T) {
	s := newTestServer(t, exactSolver(), nil)
	for _, id := range []string{"a", "b"} {
		resp := s.do(t, http.MethodPost, "/v1/calibrations", createBody(id), nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		waitForStatus(t, s.store, id, runstore.StatusConverged)
	}

	resp := s.do(t, http.MethodGet, "/v1/calibrations?status=converged&limit=1", nil, nil)
	var list struct {
		Runs  []runstore.Record `json:"runs"`
		Limit int               `json:"limit"`
	}
	decode(t, resp, &list)
	if len(list.Runs) != 1 || list.Limit != 1 {
		t.Fatalf("expected one run, got %d (limit %d)", len(list.Runs), list.Limit)
	}

	resp = s.do(t, http.MethodGet, "/v1/calibrations?status=bogus", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.StatusCode)
	}

	for _, path := range []string{"/v1/calibrations/nope", "/v1/calibrations/nope/report.pdf", "/v1/calibrations/nope/metrics"} {
		if resp := s.do(t, http.MethodGet, path, nil, nil); resp.StatusCode != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
	if resp := s.do(t, http.MethodPost, "/v1/calibrations/nope:stop", nil, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on stop, got %d", resp.StatusCode)
	}
}

func TestStopAndReportConflict(t *testing.T) {
	s := newTestServer(t, blockingSolver(), nil)
	s.do(t, http.MethodPost, "/v1/calibrations", createBody("slow"), nil)
	waitForStatus(t, s.store, "slow", runstore.StatusRunning)

	if resp := s.do(t, http.MethodGet, "/v1/calibrations/slow/report.xlsx", nil, nil); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before result, got %d", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodPost, "/v1/calibrations/slow:stop", nil, nil); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	waitForStatus(t, s.store, "slow", runstore.StatusCancelled)
}

func TestImportWorkbook(t *testing.T) {
	s := newTestServer(t, exactSolver(), nil)

	var xlsx bytes.Buffer
	if err := loadtest.WriteWorkbook(&xlsx, loadtest.ONeill1982Document()); err != nil {
		t.Fatalf("workbook: %v", err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "oneill.xlsx")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	part.Write(xlsx.Bytes())
	mw.Close()

	resp, err := http.Post(s.http.URL+"/v1/loadtests:import", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out struct {
		Case loadtest.Document `json:"case"`
	}
	decode(t, resp, &out)
	if len(out.Case.Points) != len(loadtest.ONeill1982Document().Points) {
		t.Fatalf("expected imported points, got %d", len(out.Case.Points))
	}

	bad, err := http.Post(s.http.URL+"/v1/loadtests:import", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", bad.StatusCode)
	}
}

func TestJWTRequired(t *testing.T) {
	secret := "test-secret"
	s := newTestServer(t, exactSolver(), func(cfg *config.Config) { cfg.Server.JWTSecret = secret })

	if resp := s.do(t, http.MethodGet, "/v1/calibrations", nil, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	wrong, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("other"))
	if resp := s.do(t, http.MethodGet, "/v1/calibrations", nil, http.Header{"Authorization": {"Bearer " + wrong}}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong key, got %d", resp.StatusCode)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ci",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if resp := s.do(t, http.MethodGet, "/v1/calibrations", nil, http.Header{"Authorization": {"Bearer " + token}}); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodGet, "/healthz", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected open health check, got %d", resp.StatusCode)
	}
}

func TestCreateRateLimited(t *testing.T) {
	s := newTestServer(t, exactSolver(), func(cfg *config.Config) {
		cfg.Server.RateLimit = 0.001
		cfg.Server.RateBurst = 1
	})
	if resp := s.do(t, http.MethodPost, "/v1/calibrations", createBody("r1"), nil); resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if resp := s.do(t, http.MethodPost, "/v1/calibrations", createBody("r2"), nil); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	// reads are not limited
	if resp := s.do(t, http.MethodGet, "/v1/calibrations", nil, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	waitForStatus(t, s.store, "r1", runstore.StatusConverged)
}
