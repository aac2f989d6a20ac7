package simulation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/baseball-sim/sim-engine/models"
)

// Run statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusError     = "error"
)

var (
	// ErrRunNotFound is returned for a run id no store knows about
	ErrRunNotFound = errors.New("simulation run not found")
	// ErrRunNotComplete is returned when a run's result is requested before it finished
	ErrRunNotComplete = errors.New("simulation run not yet complete")
)

// MatchupRequest describes one batter-versus-pitcher simulation
type MatchupRequest struct {
	Batter  models.BatterRatings  `json:"batter"`
	Pitcher models.PitcherRatings `json:"pitcher"`
	// PlateAppearances is the run size; zero uses the engine default.
	PlateAppearances int `json:"plate_appearances,omitempty"`
	// Seed fixes the random streams; zero draws a fresh seed.
	Seed uint64 `json:"seed,omitempty"`
}

// Run is the persisted record of a simulation run
type Run struct {
	ID                        string                `json:"run_id"`
	Status                    string                `json:"status"`
	Batter                    models.BatterRatings  `json:"batter"`
	Pitcher                   models.PitcherRatings `json:"pitcher"`
	PlateAppearances          int                   `json:"plate_appearances"`
	CompletedPlateAppearances int                   `json:"completed_plate_appearances"`
	Seed                      uint64                `json:"seed"`
	Error                     string                `json:"error,omitempty"`
	CreatedAt                 time.Time             `json:"created_at"`
	UpdatedAt                 time.Time             `json:"updated_at"`
	CompletedAt               *time.Time            `json:"completed_at,omitempty"`
}

// Store persists runs and their results
type Store interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	SaveResult(ctx context.Context, result *MatchupResult) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	// GetResult returns ErrRunNotComplete for a known run without a result
	GetResult(ctx context.Context, runID string) (*MatchupResult, error)
	Ping(ctx context.Context) error
}

// MemoryStore keeps runs in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]Run
	results map[string]*MatchupResult
}

// NewMemoryStore returns an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]Run),
		results: make(map[string]*MatchupResult),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) SaveResult(_ context.Context, result *MatchupResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[result.RunID]; !ok {
		return ErrRunNotFound
	}
	r := *result
	s.results[result.RunID] = &r
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return &run, nil
}

func (s *MemoryStore) GetResult(_ context.Context, runID string) (*MatchupResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, ErrRunNotFound
	}
	result, ok := s.results[runID]
	if !ok {
		return nil, ErrRunNotComplete
	}
	r := *result
	return &r, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
