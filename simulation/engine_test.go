package simulation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baseball-sim/sim-engine/league"
	"github.com/baseball-sim/sim-engine/metrics"
	"github.com/baseball-sim/sim-engine/models"
	"github.com/baseball-sim/sim-engine/plateappearance"
)

var (
	neutralBatter  = models.BatterRatings{Contact: 0.5, Power: 0.5, Eye: 0.5}
	neutralPitcher = models.PitcherRatings{Control: 0.5, Stuff: 0.5, Movement: 0.5}
)

func newTestEngine(opts ...Option) (*Engine, *MemoryStore) {
	store := NewMemoryStore()
	return NewEngine(store, plateappearance.Default(), opts...), store
}

func TestRunAggregatesEveryPlateAppearance(t *testing.T) {
	engine, store := newTestEngine(WithWorkers(4), WithBatchSize(100))

	result, err := engine.Run(context.Background(), MatchupRequest{
		Batter:           neutralBatter,
		Pitcher:          neutralPitcher,
		PlateAppearances: 10_003,
		Seed:             42,
	})
	require.NoError(t, err)

	assert.Equal(t, 10_003, result.Counts.Total())
	assert.Equal(t, 10_003, result.PlateAppearances)
	assert.Equal(t, 4, result.Workers)
	assert.InDelta(t, 1.0, result.Observed.Sum(), 1e-9)
	assert.InDelta(t, 0.8574, result.Expected.InPlay, 1e-9)
	// 10k draws keep every rate well within five standard errors
	assert.Less(t, result.MaxZScore, 5.0)

	status, err := engine.GetRunStatus(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, 10_003, status.CompletedPlateAppearances)
	assert.Equal(t, 1.0, status.Progress())
	require.NotNil(t, status.CompletedTime)

	stored, err := store.GetResult(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.Counts, stored.Counts)

	run, err := store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, uint64(42), run.Seed)
}

func TestRunIsReproducibleForASeed(t *testing.T) {
	req := MatchupRequest{Batter: neutralBatter, Pitcher: neutralPitcher, PlateAppearances: 5000, Seed: 2024}

	a, _ := newTestEngine(WithWorkers(3))
	b, _ := newTestEngine(WithWorkers(3))

	first, err := a.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := b.Run(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Counts, second.Counts)

	req.Seed = 2025
	third, err := a.Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Counts, third.Counts)
}

func TestRunDefaults(t *testing.T) {
	engine, _ := newTestEngine(WithWorkers(8), WithDefaultPlateAppearances(250))

	result, err := engine.Run(context.Background(), MatchupRequest{Batter: neutralBatter, Pitcher: neutralPitcher})
	require.NoError(t, err)
	assert.Equal(t, 250, result.Counts.Total())
	assert.NotZero(t, result.Seed, "a seed is drawn and recorded")

	small, err := engine.Run(context.Background(), MatchupRequest{PlateAppearances: 3, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, small.Workers, "never more workers than plate appearances")
	assert.Equal(t, 3, small.Counts.Total())
}

func TestRunRejectsInvalidRequests(t *testing.T) {
	engine, _ := newTestEngine(WithMaxPlateAppearances(1000))

	tests := []struct {
		name string
		req  MatchupRequest
	}{
		{"negative size", MatchupRequest{PlateAppearances: -1}},
		{"above limit", MatchupRequest{PlateAppearances: 1001}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Run(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)

			_, err = engine.Start(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	engine, store := newTestEngine(WithWorkers(2), WithBatchSize(10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, MatchupRequest{PlateAppearances: 100_000, Seed: 5})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	// the only run recorded is the failed one
	engine.mu.RLock()
	var runID string
	for id := range engine.activeRuns {
		runID = id
	}
	engine.mu.RUnlock()

	status, err := engine.GetRunStatus(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, status.Status)
	assert.Contains(t, status.Error, "context canceled")

	_, err = engine.GetRunResult(context.Background(), runID)
	assert.ErrorIs(t, err, ErrRunFailed)

	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, run.Status)
	assert.NotNil(t, run.CompletedAt)
}

func TestStartRunsInBackground(t *testing.T) {
	engine, _ := newTestEngine(WithWorkers(2))
	defer engine.Close()

	run, err := engine.Start(context.Background(), MatchupRequest{
		Batter: neutralBatter, Pitcher: neutralPitcher, PlateAppearances: 2000, Seed: 9,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, run.Status)

	require.Eventually(t, func() bool {
		status, err := engine.GetRunStatus(context.Background(), run.ID)
		return err == nil && status.Status == StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	result, err := engine.GetRunResult(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2000, result.Counts.Total())
	assert.Equal(t, uint64(9), result.Seed)
}

func TestCloseCancelsBackgroundRuns(t *testing.T) {
	engine, _ := newTestEngine(WithWorkers(1), WithBatchSize(1))

	run, err := engine.Start(context.Background(), MatchupRequest{PlateAppearances: 50_000_000, Seed: 1})
	require.NoError(t, err)
	engine.Close()

	status, err := engine.GetRunStatus(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, status.Status)
	assert.Less(t, status.CompletedPlateAppearances, 50_000_000)
}

func TestGetRunResultFallsBackToStore(t *testing.T) {
	engine, store := newTestEngine()
	ctx := context.Background()

	require.NoError(t, store.CreateRun(ctx, &Run{ID: "old-run", Status: StatusCompleted}))
	require.NoError(t, store.SaveResult(ctx, &MatchupResult{RunID: "old-run", Counts: Counts{0, 0, 0, 10}}))
	require.NoError(t, store.CreateRun(ctx, &Run{ID: "pending-run", Status: StatusRunning}))
	require.NoError(t, store.CreateRun(ctx, &Run{ID: "failed-run", Status: StatusError, Error: "boom"}))

	result, err := engine.GetRunResult(ctx, "old-run")
	require.NoError(t, err)
	assert.Equal(t, 10, result.Counts.Total())

	_, err = engine.GetRunResult(ctx, "pending-run")
	assert.ErrorIs(t, err, ErrRunNotComplete)

	_, err = engine.GetRunResult(ctx, "failed-run")
	assert.ErrorIs(t, err, ErrRunFailed)

	_, err = engine.GetRunResult(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = engine.GetRunStatus(ctx, "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	status, err := engine.GetRunStatus(ctx, "pending-run")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, status.Status)
}

func TestCleanupOldRuns(t *testing.T) {
	engine, _ := newTestEngine()

	now := time.Now()
	engine.activeRuns["old-done"] = &RunStatus{RunID: "old-done", Status: StatusCompleted, StartTime: now.Add(-48 * time.Hour)}
	engine.activeRuns["old-running"] = &RunStatus{RunID: "old-running", Status: StatusRunning, StartTime: now.Add(-48 * time.Hour)}
	engine.activeRuns["fresh"] = &RunStatus{RunID: "fresh", Status: StatusCompleted, StartTime: now}

	assert.Equal(t, 1, engine.CleanupOldRuns(24*time.Hour))
	assert.NotContains(t, engine.activeRuns, "old-done")
	assert.Contains(t, engine.activeRuns, "old-running")
	assert.Contains(t, engine.activeRuns, "fresh")
}

func TestStartCleanup(t *testing.T) {
	engine, _ := newTestEngine()
	engine.mu.Lock()
	engine.activeRuns["stale"] = &RunStatus{Status: StatusError, StartTime: time.Now().Add(-time.Hour)}
	engine.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine.StartCleanup(ctx, 5*time.Millisecond, time.Minute)

	assert.Eventually(t, func() bool {
		engine.mu.RLock()
		defer engine.mu.RUnlock()
		return len(engine.activeRuns) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRunComparesAgainstLeagueBaseline(t *testing.T) {
	baseline := league.Rates{league.Walk: 0.08, league.HitByPitch: 0.01, league.HomeRun: 0.03, league.Strikeout: 0.22, league.Out: 0.66}
	engine, _ := newTestEngine(WithLeagueBaseline(baseline))

	result, err := engine.Run(context.Background(), MatchupRequest{Batter: neutralBatter, Pitcher: neutralPitcher, PlateAppearances: 100, Seed: 3})
	require.NoError(t, err)
	require.NotNil(t, result.League)
	assert.InDelta(t, 0.09, result.League.Walk, 1e-12)
	assert.InDelta(t, result.Observed.Walk-0.09, result.LeagueDelta.Walk, 1e-12)
}

func TestRunRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine, _ := newTestEngine(WithMetrics(metrics.New(reg)))

	_, err := engine.Run(context.Background(), MatchupRequest{PlateAppearances: 500, Seed: 11})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, f := range families {
		if f.GetName() == "sim_engine_plate_appearances_total" {
			total = f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 500.0, total)
}
