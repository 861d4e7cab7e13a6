//go:build integration
// +build integration

package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/calibration"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/loadtest"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/runstore"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/server"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
)

func integrationConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join("..", "..", "config", "pilecal.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	cfg.Calibration.PopulationSize = 8
	cfg.Calibration.MaxGenerations = 3
	cfg.Calibration.Seed = 11
	cfg.Storage = config.StorageConfig{Driver: "none"}
	cfg.Server.JWTSecret = ""
	cfg.Server.RateLimit = 0
	return cfg
}

func waitTerminal(t *testing.T, store *runstore.Store, id string) *runstore.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		if rec, ok := store.Get(id); ok && rec.Status.Terminal() {
			return rec
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish", id)
	return nil
}

// TestCalibrateReferenceCaseOverHTTP drives the finite-element model end to end
// through the HTTP API and fetches both reports.
func TestCalibrateReferenceCaseOverHTTP(t *testing.T) {
	cfg := integrationConfig(t)
	solver, closeSolver, err := simulation.SolverFromConfig(cfg.Solver)
	if err != nil {
		t.Fatalf("solver: %v", err)
	}
	defer closeSolver()

	store := runstore.New()
	exec := server.NewExecutor(store, cfg, solver, nil, nil)
	srv := httptest.NewServer(server.NewHTTPServer(store, exec, cfg.Server, nil).Handler())
	defer srv.Close()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = exec.Shutdown(ctx)
	}()

	doc := loadtest.ONeill1982Document()
	body, _ := json.Marshal(server.CreateRunRequest{RunID: "oneill", Case: &doc})
	resp, err := http.Post(srv.URL+"/v1/calibrations", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	rec := waitTerminal(t, store, "oneill")
	if rec.Status == runstore.StatusFailed {
		t.Fatalf("calibration failed: %s", rec.Error)
	}
	res := rec.Result
	if res == nil || res.BestCurve == nil {
		t.Fatalf("expected result with a simulated curve, got %+v", res)
	}
	if res.Fitness >= calibration.FailurePenalty {
		t.Fatalf("expected a feasible best candidate, got fitness %g", res.Fitness)
	}
	if res.Fitness > res.Trace[0] {
		t.Fatalf("best fitness %g worse than generation 0 %g", res.Fitness, res.Trace[0])
	}

	for _, path := range []string{"/report.xlsx", "/report.pdf"} {
		r, err := http.Get(srv.URL + "/v1/calibrations/oneill" + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		r.Body.Close()
		if r.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, r.StatusCode)
		}
	}
}
