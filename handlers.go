package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/baseball-sim/sim-engine/league"
	"github.com/baseball-sim/sim-engine/models"
	"github.com/baseball-sim/sim-engine/plateappearance"
	"github.com/baseball-sim/sim-engine/rng"
	"github.com/baseball-sim/sim-engine/simulation"
)

const maxBodyBytes = 1 << 20

type MatchupBody struct {
	Batter  models.BatterRatings  `json:"batter"`
	Pitcher models.PitcherRatings `json:"pitcher"`
}

type ResolveRequest struct {
	Batter  models.BatterRatings  `json:"batter"`
	Pitcher models.PitcherRatings `json:"pitcher"`
	// Sample is used as-is when present
	Sample *float64 `json:"sample,omitempty"`
	// Seed picks the stream the sample is drawn from when no sample is given
	Seed *uint64 `json:"seed,omitempty"`
}

type ProbabilitiesResponse struct {
	plateappearance.Breakdown
	Thresholds [3]float64 `json:"thresholds"`
}

type ResolveResponse struct {
	Outcome       plateappearance.Outcome       `json:"outcome"`
	Sample        float64                       `json:"sample"`
	Seed          *uint64                       `json:"seed,omitempty"`
	Probabilities plateappearance.Probabilities `json:"probabilities"`
}

type SimulationResponse struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type SimulationStatus struct {
	RunID                     string     `json:"run_id"`
	Status                    string     `json:"status"`
	TotalPlateAppearances     int        `json:"total_plate_appearances"`
	CompletedPlateAppearances int        `json:"completed_plate_appearances"`
	Progress                  float64    `json:"progress"`
	Seed                      uint64     `json:"seed"`
	CreatedAt                 time.Time  `json:"created_at"`
	CompletedAt               *time.Time `json:"completed_at,omitempty"`
	Error                     string     `json:"error,omitempty"`
}

type LeagueResponse struct {
	Rates     league.Rates                  `json:"rates"`
	Collapsed plateappearance.Probabilities `json:"collapsed"`
}

// Handlers
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"time":    time.Now().UTC(),
		"workers": s.engine.Workers(),
		"store":   s.config.Store,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	if err := s.store.Ping(ctx); err != nil {
		health["store"] = "disconnected"
		health["status"] = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	writeJSONStatus(w, status, health)
}

func (s *Server) probabilitiesHandler(w http.ResponseWriter, r *http.Request) {
	var req MatchupBody
	if !decodeBody(w, r, &req) {
		return
	}

	b := s.engine.Resolver().Explain(req.Batter, req.Pitcher)
	writeJSON(w, ProbabilitiesResponse{
		Breakdown:  b,
		Thresholds: b.Normalized.Thresholds(),
	})
}

// recordingSource remembers the last sample it handed out
type recordingSource struct {
	src  rng.Source
	last float64
}

func (r *recordingSource) Float64() float64 {
	r.last = r.src.Float64()
	return r.last
}

func (s *Server) resolveHandler(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp := ResolveResponse{Seed: req.Seed}

	var src rng.Source
	switch {
	case req.Sample != nil:
		src = rng.NewSequence(*req.Sample)
		resp.Seed = nil
	case req.Seed != nil:
		src = rng.NewSeeded(*req.Seed)
	default:
		seed, err := rng.NewSeed()
		if err != nil {
			s.log.Error("failed to draw seed", "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		src = rng.NewSeeded(seed)
		resp.Seed = &seed
	}

	recorder := &recordingSource{src: src}
	resolver := s.engine.Resolver()
	resp.Outcome = resolver.Draw(req.Batter, req.Pitcher, recorder)
	resp.Sample = recorder.last
	resp.Probabilities = resolver.Probabilities(req.Batter, req.Pitcher)

	s.metrics.AddOutcomes(resp.Outcome.String(), 1)
	writeJSON(w, resp)
}

func (s *Server) paramsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.engine.Resolver().Params())
}

func (s *Server) leagueHandler(w http.ResponseWriter, r *http.Request) {
	rates := s.engine.Baseline()
	if rates == nil {
		http.Error(w, "League rates not configured", http.StatusNotFound)
		return
	}
	writeJSON(w, LeagueResponse{Rates: rates, Collapsed: rates.Collapse()})
}

func (s *Server) simulateHandler(w http.ResponseWriter, r *http.Request) {
	var req simulation.MatchupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	run, err := s.engine.Start(r.Context(), req)
	if errors.Is(err, simulation.ErrInvalidRequest) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("failed to create simulation run", "error", err)
		http.Error(w, "Failed to create simulation", http.StatusInternalServerError)
		return
	}

	writeJSON(w, SimulationResponse{
		RunID:     run.ID,
		Status:    "started",
		Message:   fmt.Sprintf("Simulation started with %d plate appearances", run.PlateAppearances),
		CreatedAt: run.CreatedAt.UTC(),
	})
}

func (s *Server) simulationStatusHandler(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}

	runStatus, err := s.engine.GetRunStatus(r.Context(), runID)
	if errors.Is(err, simulation.ErrRunNotFound) {
		http.Error(w, "Simulation not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("failed to load simulation status", "run_id", runID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, SimulationStatus{
		RunID:                     runStatus.RunID,
		Status:                    runStatus.Status,
		TotalPlateAppearances:     runStatus.TotalPlateAppearances,
		CompletedPlateAppearances: runStatus.CompletedPlateAppearances,
		Progress:                  runStatus.Progress(),
		Seed:                      runStatus.Seed,
		CreatedAt:                 runStatus.StartTime,
		CompletedAt:               runStatus.CompletedTime,
		Error:                     runStatus.Error,
	})
}

func (s *Server) simulationResultHandler(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDParam(w, r)
	if !ok {
		return
	}

	result, err := s.engine.GetRunResult(r.Context(), runID)
	switch {
	case errors.Is(err, simulation.ErrRunNotFound):
		http.Error(w, "Simulation not found", http.StatusNotFound)
	case errors.Is(err, simulation.ErrRunNotComplete):
		http.Error(w, "Simulation not yet complete", http.StatusAccepted)
	case errors.Is(err, simulation.ErrRunFailed):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case err != nil:
		s.log.Error("failed to get simulation results", "run_id", runID, "error", err)
		http.Error(w, "Results not available", http.StatusInternalServerError)
	default:
		writeJSON(w, result)
	}
}

// Helper functions
func runIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
