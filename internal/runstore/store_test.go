package runstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/calibration"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/loadtest"
)

func TestStoreCreateAndGet(t *testing.T) {
	s := New()
	doc := loadtest.ONeill1982Document()

	rec, err := s.Create("run-1", doc, "http://example.invalid/hook")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Status != StatusPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}

	got, ok := s.Get("run-1")
	if !ok {
		t.Fatal("expected run to exist")
	}
	if got.Case.Name != doc.Name || got.WebhookURL == "" {
		t.Fatalf("unexpected record %+v", got)
	}

	got.Status = StatusFailed
	again, _ := s.Get("run-1")
	if again.Status != StatusPending {
		t.Fatal("expected Get to return a copy")
	}

	if _, err := s.Create("run-1", doc, ""); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestStoreGeneratesID(t *testing.T) {
	s := New()
	rec, err := s.Create("", loadtest.ONeill1982Document(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected generated id")
	}
}

func TestStoreStatusTransitions(t *testing.T) {
	s := New()
	s.Create("r", loadtest.ONeill1982Document(), "")

	rec, err := s.SetStatus("r", StatusRunning, "")
	if err != nil {
		t.Fatalf("set running: %v", err)
	}
	if rec.StartedAt.IsZero() {
		t.Fatal("expected start time")
	}

	if err := s.SetProgress("r", Progress{Generation: 3, BestFitness: 0.1, Evaluations: 60}); err != nil {
		t.Fatalf("progress: %v", err)
	}
	got, _ := s.Get("r")
	if got.Progress.Generation != 3 {
		t.Fatalf("expected generation 3, got %d", got.Progress.Generation)
	}

	result := &calibration.Result{Termination: calibration.StateConverged, Fitness: 0.01, Generations: 7, Evaluations: 160}
	rec, err = s.Finish("r", result, nil)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if rec.Status != StatusConverged || rec.EndedAt.IsZero() {
		t.Fatalf("unexpected final record %+v", rec)
	}
	if rec.Progress.Evaluations != 160 {
		t.Fatalf("expected progress from result, got %+v", rec.Progress)
	}

	if _, err := s.SetStatus("r", StatusRunning, ""); err == nil {
		t.Fatal("expected terminal run to reject transition")
	}
	if _, err := s.SetStatus("missing", StatusRunning, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreFinishWithError(t *testing.T) {
	s := New()
	s.Create("r", loadtest.ONeill1982Document(), "")
	result := &calibration.Result{Termination: calibration.StateFailed}
	rec, err := s.Finish("r", result, calibration.ErrOptimizerFailure)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if rec.Status != StatusFailed || rec.Error == "" {
		t.Fatalf("expected failed with message, got %+v", rec)
	}
}

func TestStoreList(t *testing.T) {
	s := New()
	doc := loadtest.ONeill1982Document()
	for _, id := range []string{"a", "b", "c", "d"} {
		s.Create(id, doc, "")
		time.Sleep(2 * time.Millisecond)
	}
	s.SetStatus("b", StatusRunning, "")

	all := s.List("", 0, 0)
	if len(all) != 4 {
		t.Fatalf("expected 4 runs, got %d", len(all))
	}
	if all[0].ID != "d" || all[3].ID != "a" {
		t.Fatalf("expected newest first, got %s..%s", all[0].ID, all[3].ID)
	}

	running := s.List(StatusRunning, 10, 0)
	if len(running) != 1 || running[0].ID != "b" {
		t.Fatalf("expected only b running, got %d", len(running))
	}

	page := s.List("", 2, 1)
	if len(page) != 2 || page[0].ID != "c" {
		t.Fatalf("unexpected page %v", page)
	}
	if len(s.List("", 10, 10)) != 0 {
		t.Fatal("expected empty page past the end")
	}
	if s.Count()[StatusPending] != 3 {
		t.Fatalf("expected 3 pending, got %d", s.Count()[StatusPending])
	}
}

func TestStatusFromState(t *testing.T) {
	tests := map[calibration.State]Status{
		calibration.StateConverged:       StatusConverged,
		calibration.StateBudgetExhausted: StatusBudgetExhausted,
		calibration.StateCancelled:       StatusCancelled,
		calibration.StateFailed:          StatusFailed,
	}
	for state, want := range tests {
		if got := StatusFromState(state); got != want {
			t.Fatalf("%s: expected %s, got %s", state, want, got)
		}
	}
}

type recordingPersister struct {
	mu    sync.Mutex
	saves []Status
}

func (p *recordingPersister) Save(_ context.Context, rec *Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, rec.Status)
	return nil
}

func (p *recordingPersister) LoadAll(context.Context) ([]*Record, error) { return nil, nil }

func (p *recordingPersister) Close() error { return nil }

func TestStoreSkipsStaleSaves(t *testing.T) {
	p := &recordingPersister{}
	s, err := Open(context.Background(), p)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	pending, err := s.Create("ordered", loadtest.ONeill1982Document(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.SetStatus("ordered", StatusRunning, ""); err != nil {
		t.Fatalf("set running: %v", err)
	}
	// A late save of the pending snapshot must not overwrite the running one.
	s.persist(pending)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) != 2 || p.saves[0] != StatusPending || p.saves[1] != StatusRunning {
		t.Fatalf("expected saves [pending running], got %v", p.saves)
	}
}

func TestSQLitePersistenceAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	p, err := OpenSQL("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s, err := Open(ctx, p)
	if err != nil {
		t.Fatalf("restore empty: %v", err)
	}
	doc := loadtest.ONeill1982Document()
	s.Create("done", doc, "")
	s.SetStatus("done", StatusRunning, "")
	s.Finish("done", &calibration.Result{
		Termination: calibration.StateBudgetExhausted,
		Names:       []string{"Rfb"},
		BestParams:  []float64{0.9},
		Fitness:     0.02,
	}, nil)
	s.Create("active", doc, "")
	s.SetStatus("active", StatusRunning, "")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	p2, err := OpenSQL("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	restored, err := Open(ctx, p2)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer restored.Close()

	done, ok := restored.Get("done")
	if !ok {
		t.Fatal("expected finished run after restart")
	}
	if done.Status != StatusBudgetExhausted || done.Result == nil || done.Result.BestParams[0] != 0.9 {
		t.Fatalf("unexpected restored run %+v", done)
	}
	if len(done.Case.Points) != len(doc.Points) {
		t.Fatalf("expected %d points, got %d", len(doc.Points), len(done.Case.Points))
	}

	active, _ := restored.Get("active")
	if active.Status != StatusCancelled {
		t.Fatalf("expected interrupted run to be cancelled, got %s", active.Status)
	}
}

func TestOpenSQLRejectsUnknownDriver(t *testing.T) {
	if _, err := OpenSQL("mysql", "x"); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestRebind(t *testing.T) {
	p := &SQLPersister{driver: "postgres"}
	got := p.rebind("INSERT INTO t VALUES (?, ?)")
	if got != "INSERT INTO t VALUES ($1, $2)" {
		t.Fatalf("unexpected rebind %q", got)
	}
	p.driver = "sqlite"
	if p.rebind("?") != "?" {
		t.Fatal("expected sqlite query unchanged")
	}
}
