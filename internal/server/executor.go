// Package server exposes calibration runs over HTTP and hosts the solver over gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/calibration"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/loadtest"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/metrics"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/runstore"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/simulation"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/config"
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunTerminal = errors.New("run is terminal")
	ErrShutdown    = errors.New("executor is shutting down")
)

// Executor runs calibrations in the background, at most MaxConcurrentRuns at a time.
type Executor struct {
	store    *runstore.Store
	cfg      *config.Config
	solver   simulation.Solver
	notifier *Notifier
	logger   *zap.Logger

	slots chan struct{}
	wg    sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	cancels    map[string]context.CancelFunc
	collectors map[string]*metrics.Collector
	finished   map[string]time.Time
}

// NewExecutor creates an executor sharing one solver across runs. notifier may be nil.
func NewExecutor(store *runstore.Store, cfg *config.Config, solver simulation.Solver, notifier *Notifier, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	slots := cfg.Server.MaxConcurrentRuns
	if slots <= 0 {
		slots = 1
	}
	return &Executor{
		store:      store,
		cfg:        cfg,
		solver:     solver,
		notifier:   notifier,
		logger:     logger,
		slots:      make(chan struct{}, slots),
		cancels:    make(map[string]context.CancelFunc),
		collectors: make(map[string]*metrics.Collector),
		finished:   make(map[string]time.Time),
	}
}

// Submit validates the case, registers a pending run and schedules it.
func (e *Executor) Submit(runID string, doc loadtest.Document, webhookURL string) (*runstore.Record, error) {
	c, err := doc.Build()
	if err != nil {
		return nil, err
	}
	// the runner is built up front so configuration errors surface to the caller
	runner, err := calibration.NewRunnerFromConfig(e.cfg, e.solver, e.logger)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrShutdown
	}
	rec, err := e.store.Create(runID, c.Document(), webhookURL)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.pruneLocked(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	collector := metrics.NewCollector()
	e.cancels[rec.ID] = cancel
	e.collectors[rec.ID] = collector
	e.wg.Add(1)
	e.mu.Unlock()

	go e.execute(ctx, rec.ID, runner.WithMetrics(collector), collector, c)
	return rec, nil
}

// Stop cancels a pending or running calibration. The run finishes as cancelled
// once the optimizer reaches its next generation boundary.
func (e *Executor) Stop(runID string) (*runstore.Record, error) {
	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrRunTerminal, runID, rec.Status)
	}

	e.mu.Lock()
	cancel, ok := e.cancels[runID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
	rec, _ = e.store.Get(runID)
	return rec, nil
}

// Collector returns the metrics collector of a run started by this process.
// Collectors of finished runs are dropped after the metrics retention window.
func (e *Executor) Collector(runID string) (*metrics.Collector, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pruneLocked(time.Now())
	c, ok := e.collectors[runID]
	return c, ok
}

// Active returns the number of runs not yet finished.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cancels)
}

// Shutdown stops accepting runs, cancels the active ones and waits for them to record their outcome.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	for _, cancel := range e.cancels {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		if e.notifier != nil {
			e.notifier.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) execute(ctx context.Context, runID string, runner *calibration.Runner, collector *metrics.Collector, c *loadtest.Case) {
	defer e.wg.Done()
	defer e.release(runID)
	log := e.logger.With(zap.String("run_id", runID))
	queued := time.Now()

	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
		collector.RecordNow(metrics.MetricQueueWaitSeconds, time.Since(queued).Seconds(), nil)
	case <-ctx.Done():
		e.finish(runID, nil, nil, "cancelled before start")
		return
	}
	if ctx.Err() != nil {
		e.finish(runID, nil, nil, "cancelled before start")
		return
	}

	if _, err := e.store.SetStatus(runID, runstore.StatusRunning, ""); err != nil {
		log.Error("failed to mark run running", zap.Error(err))
		return
	}
	log.Info("calibration started", zap.String("case", c.Record.Name()))

	runner = runner.WithGenerationHook(func(stats calibration.GenerationStats) {
		if err := e.store.SetProgress(runID, runstore.Progress{
			Generation:  stats.Generation,
			BestFitness: stats.BestFitness,
			StdDev:      stats.StdDev,
			Evaluations: stats.Evaluations,
		}); err != nil {
			log.Warn("failed to record progress", zap.Error(err))
		}
	})

	result, err := runner.Run(ctx, c.Record, c.Simulation)
	e.finish(runID, result, err, "")
}

func (e *Executor) finish(runID string, result *calibration.Result, runErr error, cancelReason string) {
	log := e.logger.With(zap.String("run_id", runID))

	var rec *runstore.Record
	var err error
	if cancelReason != "" {
		rec, err = e.store.SetStatus(runID, runstore.StatusCancelled, cancelReason)
	} else {
		rec, err = e.store.Finish(runID, result, runErr)
	}
	if err != nil {
		log.Error("failed to record run outcome", zap.Error(err))
		return
	}

	fields := []zap.Field{zap.String("status", string(rec.Status))}
	if result != nil {
		fields = append(fields,
			zap.Float64("fitness", result.Fitness),
			zap.Int("evaluations", result.Evaluations),
			zap.Int("generations", result.Generations))
	}
	if runErr != nil {
		fields = append(fields, zap.Error(runErr))
		log.Warn("calibration failed", fields...)
	} else {
		log.Info("calibration finished", fields...)
	}

	if e.notifier != nil && rec.WebhookURL != "" {
		e.notifier.Notify(rec)
	}
}

func (e *Executor) release(runID string) {
	e.mu.Lock()
	if cancel, ok := e.cancels[runID]; ok {
		cancel()
		delete(e.cancels, runID)
	}
	e.finished[runID] = time.Now()
	e.mu.Unlock()
}

func (e *Executor) pruneLocked(now time.Time) {
	retention := e.cfg.Server.MetricsRetention
	for id, at := range e.finished {
		if now.Sub(at) >= retention {
			delete(e.collectors, id)
			delete(e.finished, id)
		}
	}
}
