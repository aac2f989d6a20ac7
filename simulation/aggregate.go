package simulation

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/baseball-sim/sim-engine/league"
	"github.com/baseball-sim/sim-engine/models"
	"github.com/baseball-sim/sim-engine/plateappearance"
)

// Counts tallies resolved outcomes, indexed by plateappearance.Outcome
type Counts [plateappearance.NumOutcomes]int

// Add counts one outcome
func (c *Counts) Add(o plateappearance.Outcome) {
	if o.Valid() {
		c[o]++
	}
}

// Merge adds another tally into c
func (c *Counts) Merge(other Counts) {
	for i := range c {
		c[i] += other[i]
	}
}

// Total returns the number of outcomes counted
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Rates converts the counts into observed frequencies. An empty tally gives all zeros.
func (c Counts) Rates() plateappearance.Probabilities {
	total := c.Total()
	if total == 0 {
		return plateappearance.Probabilities{}
	}
	n := float64(total)
	return plateappearance.Probabilities{
		Walk:      float64(c[plateappearance.Walk]) / n,
		Strikeout: float64(c[plateappearance.Strikeout]) / n,
		HomeRun:   float64(c[plateappearance.HomeRun]) / n,
		InPlay:    float64(c[plateappearance.InPlay]) / n,
	}
}

// MarshalJSON writes the counts as an object keyed by outcome name
func (c Counts) MarshalJSON() ([]byte, error) {
	m := make(map[plateappearance.Outcome]int, len(c))
	for _, o := range plateappearance.Outcomes() {
		m[o] = c[o]
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the object form written by MarshalJSON
func (c *Counts) UnmarshalJSON(b []byte) error {
	var m map[plateappearance.Outcome]int
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = Counts{}
	for o, n := range m {
		if n < 0 {
			return fmt.Errorf("negative count for %s", o)
		}
		c[o] = n
	}
	return nil
}

// DerivedRates are the summary rates reported alongside the raw distribution
type DerivedRates struct {
	// StrikeoutMinusWalk is K% minus BB%
	StrikeoutMinusWalk float64 `json:"k_minus_bb"`
	HomeRunPerPA       float64 `json:"hr_per_pa"`
	BallInPlayShare    float64 `json:"ball_in_play_share"`
	// ThreeTrueOutcomes is the share of plate appearances ending without the defense involved
	ThreeTrueOutcomes float64 `json:"three_true_outcomes"`
}

func deriveRates(p plateappearance.Probabilities) DerivedRates {
	return DerivedRates{
		StrikeoutMinusWalk: p.Strikeout - p.Walk,
		HomeRunPerPA:       p.HomeRun,
		BallInPlayShare:    p.InPlay,
		ThreeTrueOutcomes:  p.Walk + p.Strikeout + p.HomeRun,
	}
}

// MatchupResult is the aggregated outcome of one simulation run
type MatchupResult struct {
	RunID            string                `json:"run_id"`
	Batter           models.BatterRatings  `json:"batter"`
	Pitcher          models.PitcherRatings `json:"pitcher"`
	Seed             uint64                `json:"seed"`
	PlateAppearances int                   `json:"plate_appearances"`
	Workers          int                   `json:"workers"`

	Counts   Counts                        `json:"counts"`
	Observed plateappearance.Probabilities `json:"observed"`
	Expected plateappearance.Probabilities `json:"expected"`
	// Deviation is observed minus expected, per outcome
	Deviation       plateappearance.Probabilities `json:"deviation"`
	MaxAbsDeviation float64                       `json:"max_abs_deviation"`
	// StandardError is the binomial standard error of each observed rate under the expected distribution
	StandardError plateappearance.Probabilities `json:"standard_error"`
	// MaxZScore is the largest |deviation| measured in standard errors
	MaxZScore float64 `json:"max_z_score"`

	League      *plateappearance.Probabilities `json:"league,omitempty"`
	LeagueDelta *plateappearance.Probabilities `json:"league_delta,omitempty"`

	Derived DerivedRates `json:"derived"`

	DurationMS  int64     `json:"duration_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// Aggregate turns raw counts into a MatchupResult. baseline may be nil.
func Aggregate(runID string, req MatchupRequest, counts Counts, expected plateappearance.Probabilities, baseline league.Rates) *MatchupResult {
	observed := counts.Rates()
	n := float64(counts.Total())

	result := &MatchupResult{
		RunID:            runID,
		Batter:           req.Batter,
		Pitcher:          req.Pitcher,
		Seed:             req.Seed,
		PlateAppearances: counts.Total(),
		Counts:           counts,
		Observed:         observed,
		Expected:         expected,
		Derived:          deriveRates(observed),
	}

	var dev, se [plateappearance.NumOutcomes]float64
	for _, o := range plateappearance.Outcomes() {
		dev[o] = observed.Of(o) - expected.Of(o)
		if n > 0 {
			p := expected.Of(o)
			se[o] = math.Sqrt(p * (1 - p) / n)
		}
		if d := math.Abs(dev[o]); d > result.MaxAbsDeviation {
			result.MaxAbsDeviation = d
		}
		if se[o] > 0 {
			if z := math.Abs(dev[o]) / se[o]; z > result.MaxZScore {
				result.MaxZScore = z
			}
		}
	}
	result.Deviation = fromArray(dev)
	result.StandardError = fromArray(se)

	if baseline != nil {
		lg := baseline.Collapse()
		delta := plateappearance.Probabilities{
			Walk:      observed.Walk - lg.Walk,
			Strikeout: observed.Strikeout - lg.Strikeout,
			HomeRun:   observed.HomeRun - lg.HomeRun,
			InPlay:    observed.InPlay - lg.InPlay,
		}
		result.League = &lg
		result.LeagueDelta = &delta
	}

	return result
}

func fromArray(v [plateappearance.NumOutcomes]float64) plateappearance.Probabilities {
	return plateappearance.Probabilities{
		Walk:      v[plateappearance.Walk],
		Strikeout: v[plateappearance.Strikeout],
		HomeRun:   v[plateappearance.HomeRun],
		InPlay:    v[plateappearance.InPlay],
	}
}
