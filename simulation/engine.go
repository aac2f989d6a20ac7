// Package simulation runs repeated batter-versus-pitcher plate appearances through the
// outcome resolver and aggregates the observed distribution.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baseball-sim/sim-engine/league"
	"github.com/baseball-sim/sim-engine/logger"
	"github.com/baseball-sim/sim-engine/metrics"
	"github.com/baseball-sim/sim-engine/plateappearance"
	"github.com/baseball-sim/sim-engine/rng"
)

var (
	// ErrInvalidRequest is wrapped by every request validation failure
	ErrInvalidRequest = errors.New("invalid simulation request")
	// ErrRunFailed is returned for the result of a run that ended in error
	ErrRunFailed = errors.New("simulation run failed")
)

const (
	defaultBatchSize = 1000
	defaultRetention = 24 * time.Hour
)

// RunStatus tracks the progress of a simulation run
type RunStatus struct {
	RunID                     string
	Status                    string
	TotalPlateAppearances     int
	CompletedPlateAppearances int
	Workers                   int
	Seed                      uint64
	StartTime                 time.Time
	CompletedTime             *time.Time
	Error                     string
	Result                    *MatchupResult
}

// Progress returns the completed fraction in [0,1]
func (s *RunStatus) Progress() float64 {
	if s.TotalPlateAppearances == 0 {
		return 0
	}
	return float64(s.CompletedPlateAppearances) / float64(s.TotalPlateAppearances)
}

// Option configures an Engine
type Option func(*Engine)

// WithWorkers sets the number of goroutines a run is split across
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithDefaultPlateAppearances sets the run size used when a request leaves it out
func WithDefaultPlateAppearances(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.defaultPlateAppearances = n
		}
	}
}

// WithMaxPlateAppearances caps the size of a single run
func WithMaxPlateAppearances(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxPlateAppearances = n
		}
	}
}

// WithBatchSize sets how many plate appearances a worker resolves between
// cancellation checks and progress updates
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLeagueBaseline compares every result against league rates
func WithLeagueBaseline(r league.Rates) Option {
	return func(e *Engine) {
		e.baseline = r
	}
}

// Engine executes matchup simulations
type Engine struct {
	store    Store
	resolver *plateappearance.Resolver
	log      *slog.Logger
	metrics  *metrics.Recorder
	baseline league.Rates

	workers                 int
	defaultPlateAppearances int
	maxPlateAppearances     int
	batchSize               int

	mu         sync.RWMutex
	activeRuns map[string]*RunStatus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a simulation engine
func NewEngine(store Store, resolver *plateappearance.Resolver, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		store:                   store,
		resolver:                resolver,
		log:                     logger.Discard(),
		workers:                 1,
		defaultPlateAppearances: 1000,
		batchSize:               defaultBatchSize,
		activeRuns:              make(map[string]*RunStatus),
		ctx:                     ctx,
		cancel:                  cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Workers returns the configured worker count
func (e *Engine) Workers() int { return e.workers }

// Resolver returns the resolver runs are executed with
func (e *Engine) Resolver() *plateappearance.Resolver { return e.resolver }

// Baseline returns the league rates results are compared against, or nil
func (e *Engine) Baseline() league.Rates { return e.baseline }

// Start records a new run and executes it in the background. Runs started this way
// outlive ctx; Close cancels them.
func (e *Engine) Start(ctx context.Context, req MatchupRequest) (*Run, error) {
	run, err := e.createRun(ctx, req)
	if err != nil {
		return nil, err
	}
	// execute mutates run
	started := *run

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if _, err := e.execute(e.ctx, run); err != nil {
			e.log.Error("simulation run failed", "run_id", run.ID, "error", err)
		}
	}()

	return &started, nil
}

// Run records a new run and executes it before returning
func (e *Engine) Run(ctx context.Context, req MatchupRequest) (*MatchupResult, error) {
	run, err := e.createRun(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.execute(ctx, run)
}

// Close cancels every background run and waits for them to stop
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *Engine) prepare(req MatchupRequest) (MatchupRequest, error) {
	if req.PlateAppearances < 0 {
		return req, fmt.Errorf("%w: plate_appearances must not be negative", ErrInvalidRequest)
	}
	if req.PlateAppearances == 0 {
		req.PlateAppearances = e.defaultPlateAppearances
	}
	if e.maxPlateAppearances > 0 && req.PlateAppearances > e.maxPlateAppearances {
		return req, fmt.Errorf("%w: plate_appearances %d exceeds the limit of %d", ErrInvalidRequest, req.PlateAppearances, e.maxPlateAppearances)
	}
	if req.Seed == 0 {
		seed, err := rng.NewSeed()
		if err != nil {
			return req, err
		}
		req.Seed = seed
	}
	return req, nil
}

func (e *Engine) createRun(ctx context.Context, req MatchupRequest) (*Run, error) {
	req, err := e.prepare(req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	run := &Run{
		ID:               uuid.New().String(),
		Status:           StatusPending,
		Batter:           req.Batter,
		Pitcher:          req.Pitcher,
		PlateAppearances: req.PlateAppearances,
		Seed:             req.Seed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	e.mu.Lock()
	e.activeRuns[run.ID] = &RunStatus{
		RunID:                 run.ID,
		Status:                StatusPending,
		TotalPlateAppearances: run.PlateAppearances,
		Workers:               e.workersFor(run.PlateAppearances),
		Seed:                  run.Seed,
		StartTime:             now,
	}
	e.mu.Unlock()

	return run, nil
}

func (e *Engine) workersFor(plateAppearances int) int {
	if plateAppearances < e.workers {
		return max(plateAppearances, 1)
	}
	return e.workers
}

// execute runs the plate appearances of run. Worker i draws from stream i of the
// run's seed, so a run is reproducible for a fixed seed and worker count.
func (e *Engine) execute(ctx context.Context, run *Run) (*MatchupResult, error) {
	start := time.Now()
	e.setStatus(ctx, run, StatusRunning, "")
	e.metrics.RunStarted()

	req := MatchupRequest{
		Batter:           run.Batter,
		Pitcher:          run.Pitcher,
		PlateAppearances: run.PlateAppearances,
		Seed:             run.Seed,
	}
	workers := e.workersFor(run.PlateAppearances)

	e.log.Info("simulation run started",
		"run_id", run.ID,
		"plate_appearances", run.PlateAppearances,
		"workers", workers,
		"seed", run.Seed,
	)

	countsChan := make(chan Counts, workers)
	var wg sync.WaitGroup

	perWorker := run.PlateAppearances / workers
	remainder := run.PlateAppearances % workers

	for i := 0; i < workers; i++ {
		wg.Add(1)

		workerPAs := perWorker
		if i < remainder {
			workerPAs++
		}

		go func(workerID, count int) {
			defer wg.Done()
			countsChan <- e.simulateBatch(ctx, run.ID, req, rng.NewStream(run.Seed, uint64(workerID)), count)
		}(i, workerPAs)
	}

	go func() {
		wg.Wait()
		close(countsChan)
	}()

	var counts Counts
	for c := range countsChan {
		counts.Merge(c)
	}

	if err := ctx.Err(); err != nil {
		e.fail(run, start, err)
		return nil, fmt.Errorf("run %s interrupted after %d plate appearances: %w", run.ID, counts.Total(), err)
	}

	expected := e.resolver.Probabilities(req.Batter, req.Pitcher)
	result := Aggregate(run.ID, req, counts, expected, e.baseline)
	result.Workers = workers
	completed := time.Now()
	result.DurationMS = completed.Sub(start).Milliseconds()
	result.CompletedAt = completed

	if err := e.store.SaveResult(ctx, result); err != nil {
		e.fail(run, start, err)
		return nil, fmt.Errorf("failed to store result: %w", err)
	}

	for _, o := range plateappearance.Outcomes() {
		e.metrics.AddOutcomes(o.String(), counts[o])
	}

	run.CompletedPlateAppearances = counts.Total()
	run.CompletedAt = &completed
	e.setStatus(ctx, run, StatusCompleted, "")

	e.mu.Lock()
	if status, exists := e.activeRuns[run.ID]; exists {
		status.Status = StatusCompleted
		status.CompletedPlateAppearances = counts.Total()
		status.CompletedTime = &completed
		status.Result = result
	}
	e.mu.Unlock()

	e.metrics.RunFinished(StatusCompleted, completed.Sub(start))
	e.log.Info("simulation run completed",
		"run_id", run.ID,
		"plate_appearances", counts.Total(),
		"max_abs_deviation", result.MaxAbsDeviation,
		"duration", completed.Sub(start),
	)

	return result, nil
}

// simulateBatch resolves count plate appearances with one stream, checking for
// cancellation between batches
func (e *Engine) simulateBatch(ctx context.Context, runID string, req MatchupRequest, src rng.Source, count int) Counts {
	var counts Counts
	for done := 0; done < count; {
		if ctx.Err() != nil {
			return counts
		}
		n := min(e.batchSize, count-done)
		for j := 0; j < n; j++ {
			counts.Add(e.resolver.Draw(req.Batter, req.Pitcher, src))
		}
		done += n
		e.updateProgress(runID, n)
	}
	return counts
}

// updateProgress adds n completed plate appearances to a run
func (e *Engine) updateProgress(runID string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if status, exists := e.activeRuns[runID]; exists {
		status.CompletedPlateAppearances += n
	}
}

func (e *Engine) setStatus(ctx context.Context, run *Run, status, errMsg string) {
	run.Status = status
	run.Error = errMsg
	run.UpdatedAt = time.Now()

	e.mu.Lock()
	if s, exists := e.activeRuns[run.ID]; exists {
		s.Status = status
		s.Error = errMsg
	}
	e.mu.Unlock()

	if err := e.store.UpdateRun(ctx, run); err != nil {
		e.log.Warn("failed to update run status", "run_id", run.ID, "status", status, "error", err)
	}
}

func (e *Engine) fail(run *Run, start time.Time, cause error) {
	// the run's own context may be the one that was cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now()
	run.CompletedAt = &now
	e.mu.Lock()
	if s, exists := e.activeRuns[run.ID]; exists {
		run.CompletedPlateAppearances = s.CompletedPlateAppearances
		s.CompletedTime = &now
	}
	e.mu.Unlock()

	e.setStatus(ctx, run, StatusError, cause.Error())
	e.metrics.RunFinished(StatusError, now.Sub(start))
}

// GetRunStatus returns the current status of a run, from memory or the store
func (e *Engine) GetRunStatus(ctx context.Context, runID string) (*RunStatus, error) {
	e.mu.RLock()
	if status, exists := e.activeRuns[runID]; exists {
		s := *status
		e.mu.RUnlock()
		return &s, nil
	}
	e.mu.RUnlock()

	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunStatus{
		RunID:                     run.ID,
		Status:                    run.Status,
		TotalPlateAppearances:     run.PlateAppearances,
		CompletedPlateAppearances: run.CompletedPlateAppearances,
		Seed:                      run.Seed,
		StartTime:                 run.CreatedAt,
		CompletedTime:             run.CompletedAt,
		Error:                     run.Error,
	}, nil
}

// GetRunResult returns the completed result of a run
func (e *Engine) GetRunResult(ctx context.Context, runID string) (*MatchupResult, error) {
	// First check if it's in memory
	e.mu.RLock()
	if status, exists := e.activeRuns[runID]; exists {
		result, state, msg := status.Result, status.Status, status.Error
		e.mu.RUnlock()
		switch {
		case result != nil:
			return result, nil
		case state == StatusError:
			return nil, fmt.Errorf("%w: %s", ErrRunFailed, msg)
		default:
			return nil, ErrRunNotComplete
		}
	}
	e.mu.RUnlock()

	result, err := e.store.GetResult(ctx, runID)
	if errors.Is(err, ErrRunNotComplete) {
		if run, runErr := e.store.GetRun(ctx, runID); runErr == nil && run.Status == StatusError {
			return nil, fmt.Errorf("%w: %s", ErrRunFailed, run.Error)
		}
	}
	return result, err
}

// CleanupOldRuns drops finished runs older than maxAge from memory. Results stay in the store.
func (e *Engine) CleanupOldRuns(maxAge time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for runID, status := range e.activeRuns {
		finished := status.Status == StatusCompleted || status.Status == StatusError
		if finished && status.StartTime.Before(cutoff) {
			delete(e.activeRuns, runID)
			removed++
		}
	}
	return removed
}

// StartCleanup runs CleanupOldRuns every interval until ctx is done.
// A non-positive maxAge keeps runs for 24 hours.
func (e *Engine) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = defaultRetention
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := e.CleanupOldRuns(maxAge); n > 0 {
					e.log.Debug("cleaned up simulation runs", "removed", n)
				}
			}
		}
	}()
}
