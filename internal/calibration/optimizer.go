package calibration

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/likecodingloveproblems/SinglePileAnalysis/pkg/utils"
)

// State is the lifecycle state of an optimizer run
type State string

const (
	StateInitialized     State = "initialized"
	StateRunning         State = "running"
	StateConverged       State = "converged"
	StateBudgetExhausted State = "budget_exhausted"
	StateFailed          State = "failed"
	StateCancelled       State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateBudgetExhausted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Mutation strategies
const (
	StrategyRand1Bin = "rand1bin"
	StrategyBest1Bin = "best1bin"
)

// Settings configures the differential evolution search
type Settings struct {
	PopulationSize int     `json:"population_size"`
	Mutation       float64 `json:"mutation"`
	Crossover      float64 `json:"crossover"`
	Strategy       string  `json:"strategy"`
	MaxGenerations int     `json:"max_generations"`
	// MaxEvaluations bounds the total number of fitness evaluations. Zero disables it.
	MaxEvaluations int     `json:"max_evaluations"`
	Tolerance      float64 `json:"tolerance"`
	Patience       int     `json:"patience"`
	Convergence    string  `json:"convergence"`
	// Workers bounds parallel evaluations. Zero uses GOMAXPROCS.
	Workers int `json:"workers"`
	// Seed zero picks a time-based seed, reported in the outcome.
	Seed int64 `json:"seed"`
}

// DefaultSettings returns the default optimizer settings
func DefaultSettings() Settings {
	return Settings{
		PopulationSize: 15,
		Mutation:       0.8,
		Crossover:      0.9,
		Strategy:       StrategyRand1Bin,
		MaxGenerations: 1000,
		Tolerance:      1e-6,
		Patience:       1,
		Convergence:    ConvergenceSpread,
	}
}

// Validate checks the settings before any evaluation takes place
func (s Settings) Validate() error {
	minPop := 4
	if s.Strategy == StrategyBest1Bin {
		minPop = 3
	}
	switch {
	case s.Strategy != "" && s.Strategy != StrategyRand1Bin && s.Strategy != StrategyBest1Bin:
		return &SettingError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", s.Strategy)}
	case s.PopulationSize < minPop:
		return &SettingError{Field: "population_size", Reason: fmt.Sprintf("must be at least %d, got %d", minPop, s.PopulationSize)}
	case !(s.Mutation > 0 && s.Mutation <= 2):
		return &SettingError{Field: "mutation", Reason: fmt.Sprintf("must be in (0, 2], got %g", s.Mutation)}
	case !(s.Crossover >= 0 && s.Crossover <= 1):
		return &SettingError{Field: "crossover", Reason: fmt.Sprintf("must be in [0, 1], got %g", s.Crossover)}
	case s.MaxGenerations < 1:
		return &SettingError{Field: "max_generations", Reason: fmt.Sprintf("must be positive, got %d", s.MaxGenerations)}
	case s.MaxEvaluations < 0:
		return &SettingError{Field: "max_evaluations", Reason: "must not be negative"}
	case s.MaxEvaluations > 0 && s.MaxEvaluations < s.PopulationSize:
		return &SettingError{Field: "max_evaluations", Reason: fmt.Sprintf("must cover the initial population of %d", s.PopulationSize)}
	case !(s.Tolerance >= 0) || math.IsInf(s.Tolerance, 0):
		return &SettingError{Field: "tolerance", Reason: fmt.Sprintf("must be finite and non-negative, got %g", s.Tolerance)}
	case s.Patience < 0:
		return &SettingError{Field: "patience", Reason: "must not be negative"}
	case s.Workers < 0:
		return &SettingError{Field: "workers", Reason: "must not be negative"}
	}
	if s.Convergence != "" && s.Convergence != ConvergenceSpread && s.Convergence != ConvergenceStagnation {
		return &SettingError{Field: "convergence", Reason: fmt.Sprintf("unknown strategy %q", s.Convergence)}
	}
	return nil
}

// Candidate is a parameter vector with its fitness
type Candidate struct {
	Params  []float64 `json:"params"`
	Fitness float64   `json:"fitness"`
}

func (c Candidate) clone() Candidate {
	return Candidate{Params: utils.CopyFloats(c.Params), Fitness: c.Fitness}
}

// Evaluation is the outcome of scoring one candidate
type Evaluation struct {
	Fitness float64
	Failed  bool
}

// EvaluateFunc scores a parameter vector. It is called concurrently.
type EvaluateFunc func(ctx context.Context, params []float64) Evaluation

// GenerationStats summarises one completed generation
type GenerationStats struct {
	Generation     int           `json:"generation"`
	BestFitness    float64       `json:"best_fitness"`
	BestParams     []float64     `json:"best_params"`
	PopulationBest float64       `json:"population_best"`
	MeanFitness    float64       `json:"mean_fitness"`
	StdDev         float64       `json:"std_dev"`
	Failures       int           `json:"failures"`
	Evaluations    int           `json:"evaluations"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Outcome is the result of an optimizer run
type Outcome struct {
	State       State             `json:"state"`
	Reason      string            `json:"reason"`
	Best        Candidate         `json:"best"`
	Evaluations int               `json:"evaluations"`
	Generations int               `json:"generations"`
	Trace       []float64         `json:"trace"`
	History     []GenerationStats `json:"history"`
	Seed        int64             `json:"seed"`
}

// Optimizer runs differential evolution over a ParameterSpace
type Optimizer struct {
	space       *ParameterSpace
	settings    Settings
	evaluate    EvaluateFunc
	convergence ConvergenceStrategy
	rng         *utils.RandSource
	logger      *zap.Logger
	hook        func(GenerationStats)

	mu          sync.RWMutex
	state       State
	best        Candidate
	hasBest     bool
	evaluations int
	history     []GenerationStats
}

// NewOptimizer validates the settings and creates an optimizer in the initialized state.
func NewOptimizer(space *ParameterSpace, settings Settings, evaluate EvaluateFunc) (*Optimizer, error) {
	if space == nil {
		return nil, fmt.Errorf("%w: nil parameter space", ErrConfiguration)
	}
	if evaluate == nil {
		return nil, fmt.Errorf("%w: nil evaluate function", ErrConfiguration)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if settings.Strategy == "" {
		settings.Strategy = StrategyRand1Bin
	}
	if settings.Workers == 0 {
		settings.Workers = runtime.GOMAXPROCS(0)
	}
	convergence, err := NewConvergenceStrategy(settings.Convergence, &ConvergenceConfig{
		Tolerance: settings.Tolerance,
		Patience:  settings.Patience,
	})
	if err != nil {
		return nil, err
	}
	return &Optimizer{
		space:       space,
		settings:    settings,
		evaluate:    evaluate,
		convergence: convergence,
		rng:         utils.NewRandSource(settings.Seed),
		logger:      zap.NewNop(),
		state:       StateInitialized,
	}, nil
}

// WithLogger sets the logger used for per-generation progress
func (o *Optimizer) WithLogger(logger *zap.Logger) *Optimizer {
	if logger != nil {
		o.logger = logger
	}
	return o
}

// WithGenerationHook registers a callback invoked after every completed generation
func (o *Optimizer) WithGenerationHook(hook func(GenerationStats)) *Optimizer {
	o.hook = hook
	return o
}

// WithConvergence replaces the convergence strategy
func (o *Optimizer) WithConvergence(strategy ConvergenceStrategy) *Optimizer {
	if strategy != nil {
		o.convergence = strategy
	}
	return o
}

// State returns the current state
func (o *Optimizer) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Best returns the best candidate found so far
func (o *Optimizer) Best() (Candidate, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.best.clone(), o.hasBest
}

// Evaluations returns the number of fitness evaluations performed so far
func (o *Optimizer) Evaluations() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.evaluations
}

// Seed returns the seed driving sampling and mutation
func (o *Optimizer) Seed() int64 {
	return o.rng.Seed()
}

// Run executes the search until a terminal state is reached. The returned
// error is non-nil only for the failed state and wraps ErrOptimizerFailure.
func (o *Optimizer) Run(ctx context.Context) (*Outcome, error) {
	o.mu.Lock()
	if o.state != StateInitialized {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: optimizer already ran", ErrConfiguration)
	}
	o.state = StateRunning
	o.mu.Unlock()

	start := time.Now()
	n := o.settings.PopulationSize

	o.logger.Info("differential evolution started",
		zap.Int("population", n),
		zap.Int("dimensions", o.space.Dim()),
		zap.String("strategy", o.settings.Strategy),
		zap.Int64("seed", o.rng.Seed()))

	vectors := make([][]float64, n)
	for i := range vectors {
		vectors[i] = o.space.Sample(o.rng)
	}
	evals := o.evaluateAll(ctx, vectors)
	if ctx.Err() != nil {
		o.absorbPartial(vectors, evals)
		return o.finish(StateCancelled, "cancelled during generation 0"), nil
	}
	population := make([]Candidate, n)
	for i := range population {
		population[i] = Candidate{Params: vectors[i], Fitness: evals[i].Fitness}
	}
	if failures := o.recordGeneration(0, population, evals, start); failures == n {
		return o.finish(StateFailed, "every candidate of generation 0 failed"), fmt.Errorf("%w: all %d candidates of generation 0 failed", ErrOptimizerFailure, n)
	}

	generation := 0
	for {
		if ctx.Err() != nil {
			return o.finish(StateCancelled, fmt.Sprintf("cancelled after generation %d", generation)), nil
		}
		if ok, reason := o.convergence.CheckConvergence(o.snapshotHistory()); ok {
			return o.finish(StateConverged, reason), nil
		}
		if generation >= o.settings.MaxGenerations {
			return o.finish(StateBudgetExhausted, fmt.Sprintf("reached max generations (%d)", o.settings.MaxGenerations)), nil
		}
		if o.settings.MaxEvaluations > 0 && o.Evaluations()+n > o.settings.MaxEvaluations {
			return o.finish(StateBudgetExhausted, fmt.Sprintf("evaluation budget (%d) would be exceeded", o.settings.MaxEvaluations)), nil
		}

		generation++
		trials := o.buildTrials(population)
		evals := o.evaluateAll(ctx, trials)

		// Results gathered while the context was being cancelled may be
		// cancellation failures; the generation is counted but not selected.
		if ctx.Err() != nil {
			o.absorbPartial(trials, evals)
			return o.finish(StateCancelled, fmt.Sprintf("cancelled during generation %d", generation)), nil
		}

		for i := range population {
			if evals[i].Fitness <= population[i].Fitness {
				population[i] = Candidate{Params: trials[i], Fitness: evals[i].Fitness}
			}
		}
		if failures := o.recordGeneration(generation, population, evals, start); failures == n {
			return o.finish(StateFailed, fmt.Sprintf("every candidate of generation %d failed", generation)),
				fmt.Errorf("%w: all %d candidates of generation %d failed", ErrOptimizerFailure, n, generation)
		}
	}
}

// buildTrials applies mutation and binomial crossover to every member. It
// runs on the optimizer goroutine so the random stream stays deterministic.
func (o *Optimizer) buildTrials(population []Candidate) [][]float64 {
	n := len(population)
	dim := o.space.Dim()
	f := o.settings.Mutation

	bestIdx := 0
	for i := range population {
		if population[i].Fitness < population[bestIdx].Fitness {
			bestIdx = i
		}
	}

	trials := make([][]float64, n)
	for i := range population {
		var base, b, c []float64
		if o.settings.Strategy == StrategyBest1Bin {
			idx := o.rng.DistinctExcluding(n, 2, i)
			base, b, c = population[bestIdx].Params, population[idx[0]].Params, population[idx[1]].Params
		} else {
			idx := o.rng.DistinctExcluding(n, 3, i)
			base, b, c = population[idx[0]].Params, population[idx[1]].Params, population[idx[2]].Params
		}

		target := population[i].Params
		trial := make([]float64, dim)
		jrand := o.rng.Intn(dim)
		for j := 0; j < dim; j++ {
			if j == jrand || o.rng.BernoulliBool(o.settings.Crossover) {
				trial[j] = base[j] + f*(b[j]-c[j])
			} else {
				trial[j] = target[j]
			}
		}
		trials[i] = o.space.Clip(trial)
	}
	return trials
}

// evaluateAll scores vectors in parallel and returns once all are done.
func (o *Optimizer) evaluateAll(ctx context.Context, vectors [][]float64) []Evaluation {
	out := make([]Evaluation, len(vectors))
	p := pool.New().WithMaxGoroutines(o.settings.Workers)
	for i, v := range vectors {
		i, v := i, v
		p.Go(func() {
			out[i] = o.evaluateOne(ctx, v)
		})
	}
	p.Wait()
	return out
}

func (o *Optimizer) evaluateOne(ctx context.Context, params []float64) (ev Evaluation) {
	if !o.space.IsFeasible(params) {
		return Evaluation{Fitness: FailurePenalty, Failed: true}
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("evaluation panicked", zap.Any("panic", r))
			ev = Evaluation{Fitness: FailurePenalty, Failed: true}
		}
	}()
	ev = o.evaluate(ctx, utils.CopyFloats(params))
	if math.IsNaN(ev.Fitness) || math.IsInf(ev.Fitness, 0) {
		ev = Evaluation{Fitness: FailurePenalty, Failed: true}
	}
	return ev
}

// absorbPartial counts the evaluations of an interrupted generation and keeps
// any successful score that beats the best-so-far. No selection is applied.
func (o *Optimizer) absorbPartial(vectors [][]float64, evals []Evaluation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluations += len(evals)
	for i, ev := range evals {
		if ev.Failed {
			continue
		}
		if !o.hasBest || ev.Fitness < o.best.Fitness {
			o.best = Candidate{Params: utils.CopyFloats(vectors[i]), Fitness: ev.Fitness}
			o.hasBest = true
		}
	}
}

// recordGeneration updates the best-so-far tracker, appends the generation
// statistics and notifies the hook. It returns the number of failed evaluations.
func (o *Optimizer) recordGeneration(generation int, population []Candidate, evals []Evaluation, start time.Time) int {
	failures := 0
	for _, ev := range evals {
		if ev.Failed {
			failures++
		}
	}

	fitness := make([]float64, len(population))
	popBest := 0
	for i, c := range population {
		fitness[i] = c.Fitness
		if c.Fitness < population[popBest].Fitness {
			popBest = i
		}
	}
	mean, std := stat.MeanStdDev(fitness, nil)

	o.mu.Lock()
	o.evaluations += len(evals)
	if !o.hasBest || population[popBest].Fitness < o.best.Fitness {
		o.best = population[popBest].clone()
		o.hasBest = true
	}
	stats := GenerationStats{
		Generation:     generation,
		BestFitness:    o.best.Fitness,
		BestParams:     utils.CopyFloats(o.best.Params),
		PopulationBest: population[popBest].Fitness,
		MeanFitness:    mean,
		StdDev:         std,
		Failures:       failures,
		Evaluations:    o.evaluations,
		Elapsed:        time.Since(start),
	}
	o.history = append(o.history, stats)
	o.mu.Unlock()

	o.logger.Debug("generation complete",
		zap.Int("generation", generation),
		zap.Float64("best_fitness", stats.BestFitness),
		zap.Float64("std_dev", std),
		zap.Int("failures", failures),
		zap.Int("evaluations", stats.Evaluations))

	if o.hook != nil {
		o.hook(stats)
	}
	return failures
}

func (o *Optimizer) snapshotHistory() []GenerationStats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]GenerationStats(nil), o.history...)
}

func (o *Optimizer) finish(state State, reason string) *Outcome {
	o.mu.Lock()
	o.state = state
	history := append([]GenerationStats(nil), o.history...)
	out := &Outcome{
		State:       state,
		Reason:      reason,
		Best:        o.best.clone(),
		Evaluations: o.evaluations,
		History:     history,
		Seed:        o.rng.Seed(),
	}
	if !o.hasBest {
		out.Best = Candidate{Fitness: FailurePenalty}
	}
	o.mu.Unlock()

	out.Trace = make([]float64, len(history))
	for i, g := range history {
		out.Trace[i] = g.BestFitness
	}
	if len(history) > 0 {
		out.Generations = history[len(history)-1].Generation
	}

	o.logger.Info("differential evolution finished",
		zap.String("state", string(state)),
		zap.String("reason", reason),
		zap.Float64("best_fitness", out.Best.Fitness),
		zap.Int("evaluations", out.Evaluations),
		zap.Int("generations", out.Generations))
	return out
}
