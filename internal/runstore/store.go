// Package runstore keeps calibration runs in memory and optionally persists
// them to SQL so that results survive a daemon restart.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/calibration"
	"github.com/likecodingloveproblems/SinglePileAnalysis/internal/loadtest"
	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

var (
	ErrNotFound      = errors.New("run not found")
	ErrAlreadyExists = errors.New("run already exists")
)

// Status is the lifecycle state of a run
type Status string

const (
	StatusPending         Status = "pending"
	StatusRunning         Status = "running"
	StatusConverged       Status = "converged"
	StatusBudgetExhausted Status = "budget_exhausted"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// Terminal reports whether the run has finished
func (s Status) Terminal() bool {
	switch s {
	case StatusConverged, StatusBudgetExhausted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StatusFromState maps an optimizer termination state onto a run status
func StatusFromState(state calibration.State) Status {
	switch state {
	case calibration.StateConverged:
		return StatusConverged
	case calibration.StateBudgetExhausted:
		return StatusBudgetExhausted
	case calibration.StateCancelled:
		return StatusCancelled
	case calibration.StateRunning:
		return StatusRunning
	case calibration.StateInitialized:
		return StatusPending
	default:
		return StatusFailed
	}
}

// Progress is the latest generation summary of a running calibration
type Progress struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	StdDev      float64 `json:"std_dev"`
	Evaluations int     `json:"evaluations"`
}

// Record is one calibration run
type Record struct {
	ID         string              `json:"id"`
	Status     Status              `json:"status"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	StartedAt  time.Time           `json:"started_at,omitempty"`
	EndedAt    time.Time           `json:"ended_at,omitempty"`
	Case       loadtest.Document   `json:"case"`
	Progress   Progress            `json:"progress"`
	Result     *calibration.Result `json:"result,omitempty"`
	WebhookURL string              `json:"webhook_url,omitempty"`

	version uint64
}

// clone copies the record. Case and Result are treated as immutable once set.
func (r *Record) clone() *Record {
	c := *r
	return &c
}

// Persister saves and restores records
type Persister interface {
	Save(ctx context.Context, rec *Record) error
	LoadAll(ctx context.Context) ([]*Record, error)
	Close() error
}

// Store is the run registry
type Store struct {
	mu        sync.RWMutex
	runs      map[string]*Record
	persister Persister
	logger    *zap.Logger

	// saveMu orders saves; saved holds the last version written per run.
	saveMu sync.Mutex
	saved  map[string]uint64
}

// New creates an in-memory store
func New() *Store {
	return &Store{
		runs:   make(map[string]*Record),
		saved:  make(map[string]uint64),
		logger: zap.NewNop(),
	}
}

// WithLogger sets the logger used for persistence failures
func (s *Store) WithLogger(logger *zap.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Open creates a store backed by p and restores persisted runs. Runs that
// were still active when the process stopped are marked cancelled.
func Open(ctx context.Context, p Persister) (*Store, error) {
	s := New()
	s.persister = p
	recs, err := p.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore runs: %w", err)
	}
	for _, rec := range recs {
		if !rec.Status.Terminal() {
			rec.Status = StatusCancelled
			rec.Error = "interrupted by daemon restart"
			rec.EndedAt = time.Now().UTC()
			if err := p.Save(ctx, rec); err != nil {
				return nil, fmt.Errorf("restore run %s: %w", rec.ID, err)
			}
		}
		s.runs[rec.ID] = rec
	}
	return s, nil
}

// Close releases the persister, if any
func (s *Store) Close() error {
	if s.persister == nil {
		return nil
	}
	return s.persister.Close()
}

// Create registers a pending run. An empty id generates one.
func (s *Store) Create(id string, doc loadtest.Document, webhookURL string) (*Record, error) {
	s.mu.Lock()
	if id == "" {
		id = utils.GenerateRunID()
	}
	if _, exists := s.runs[id]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}
	rec := &Record{
		ID:         id,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
		Case:       doc,
		WebhookURL: webhookURL,
	}
	rec.version = 1
	s.runs[id] = rec
	out := rec.clone()
	s.mu.Unlock()

	s.persist(out)
	return out, nil
}

// Get returns a snapshot of the run
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// List returns runs newest first, optionally filtered by status.
func (s *Store) List(status Status, limit, offset int) []*Record {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.runs))
	for _, rec := range s.runs {
		if status == "" || rec.Status == status {
			out = append(out, rec.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit <= 0 {
		limit = 50
	}
	if offset >= len(out) {
		return []*Record{}
	}
	if offset < 0 {
		offset = 0
	}
	return out[offset:utils.Min(offset+limit, len(out))]
}

// SetStatus transitions the run and stamps start and end times. Terminal runs cannot change.
func (s *Store) SetStatus(id string, status Status, errMsg string) (*Record, error) {
	s.mu.Lock()
	rec, ok := s.runs[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.Status.Terminal() {
		s.mu.Unlock()
		return nil, fmt.Errorf("run %s already %s", id, rec.Status)
	}
	rec.Status = status
	if errMsg != "" {
		rec.Error = errMsg
	}
	now := time.Now().UTC()
	if status == StatusRunning && rec.StartedAt.IsZero() {
		rec.StartedAt = now
	}
	if status.Terminal() {
		rec.EndedAt = now
	}
	rec.version++
	out := rec.clone()
	s.mu.Unlock()

	s.persist(out)
	return out, nil
}

// SetProgress records the latest generation. It is kept in memory only.
func (s *Store) SetProgress(id string, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Progress = p
	return nil
}

// Finish stores the result and the terminal status derived from it.
func (s *Store) Finish(id string, result *calibration.Result, runErr error) (*Record, error) {
	s.mu.Lock()
	rec, ok := s.runs[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.Result = result
	switch {
	case result != nil && runErr == nil:
		rec.Status = StatusFromState(result.Termination)
	default:
		rec.Status = StatusFailed
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	if result != nil {
		rec.Progress = Progress{
			Generation:  result.Generations,
			BestFitness: result.Fitness,
			Evaluations: result.Evaluations,
		}
	}
	rec.EndedAt = time.Now().UTC()
	rec.version++
	out := rec.clone()
	s.mu.Unlock()

	s.persist(out)
	return out, nil
}

// Count returns the number of runs per status
func (s *Store) Count() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Status]int)
	for _, rec := range s.runs {
		out[rec.Status]++
	}
	return out
}

// persist writes rec unless a newer snapshot of the same run was already saved.
func (s *Store) persist(rec *Record) {
	if s.persister == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if rec.version <= s.saved[rec.ID] {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.persister.Save(ctx, rec); err != nil {
		s.logger.Warn("failed to persist run", zap.String("run_id", rec.ID), zap.Error(err))
		return
	}
	s.saved[rec.ID] = rec.version
}
