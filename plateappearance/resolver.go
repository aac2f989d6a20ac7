// Package plateappearance resolves a batter-versus-pitcher confrontation into one of
// four outcomes: walk, strikeout, home run or ball in play.
//
// Resolution is a pure function of the two rating snapshots and one uniform sample.
// A Resolver holds only its calibration table, so a single Resolver may be shared by
// any number of goroutines as long as each supplies its own random source.
package plateappearance

import (
	"github.com/baseball-sim/sim-engine/models"
	"github.com/baseball-sim/sim-engine/rng"
)

// Probabilities is a distribution (or pre-normalization weights) over the four outcomes
type Probabilities struct {
	Walk      float64 `json:"walk"`
	Strikeout float64 `json:"strikeout"`
	HomeRun   float64 `json:"homerun"`
	InPlay    float64 `json:"in_play"`
}

// Sum adds the four values
func (p Probabilities) Sum() float64 {
	return p.Walk + p.Strikeout + p.HomeRun + p.InPlay
}

// Of returns the value for a single outcome
func (p Probabilities) Of(o Outcome) float64 {
	switch o {
	case Walk:
		return p.Walk
	case Strikeout:
		return p.Strikeout
	case HomeRun:
		return p.HomeRun
	case InPlay:
		return p.InPlay
	}
	return 0
}

// Normalized rescales the values so they sum to 1
func (p Probabilities) Normalized() Probabilities {
	total := p.Sum()
	return Probabilities{
		Walk:      p.Walk / total,
		Strikeout: p.Strikeout / total,
		HomeRun:   p.HomeRun / total,
		InPlay:    p.InPlay / total,
	}
}

// Thresholds returns the cumulative upper bounds of walk, strikeout and home run.
// Select subtracts rather than accumulates, so at the last bit the two can disagree;
// these are for reporting.
func (p Probabilities) Thresholds() [3]float64 {
	return [3]float64{
		p.Walk,
		p.Walk + p.Strikeout,
		p.Walk + p.Strikeout + p.HomeRun,
	}
}

// Select maps a uniform sample onto an outcome. Mass is handed out in the fixed
// order walk, strikeout, home run; in play takes whatever is left, so every sample
// lands somewhere.
func (p Probabilities) Select(u float64) Outcome {
	if u < p.Walk {
		return Walk
	}
	u -= p.Walk
	if u < p.Strikeout {
		return Strikeout
	}
	u -= p.Strikeout
	if u < p.HomeRun {
		return HomeRun
	}
	return InPlay
}

// Breakdown shows each stage of the probability computation
type Breakdown struct {
	// Raw holds the formula outputs. Raw.InPlay is 1 minus the clamped walk,
	// strikeout and home run values, before its own band is applied.
	Raw Probabilities `json:"raw"`
	// Clamped holds the banded values before renormalization. They need not sum to 1.
	Clamped Probabilities `json:"clamped"`
	// Normalized is the final distribution.
	Normalized Probabilities `json:"normalized"`
}

// Resolver turns rating matchups into outcomes under one calibration table
type Resolver struct {
	params Params
}

// New builds a Resolver after validating params
func New(params Params) (*Resolver, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{params: params}, nil
}

var defaultResolver = &Resolver{params: DefaultParams()}

// Default returns the resolver using DefaultParams
func Default() *Resolver {
	return defaultResolver
}

// Params returns the resolver's calibration table
func (r *Resolver) Params() Params {
	return r.params
}

// Explain computes every stage of the distribution for a matchup
func (r *Resolver) Explain(batter models.BatterRatings, pitcher models.PitcherRatings) Breakdown {
	c := r.params.Coefficients
	bands := r.params.Bands

	var b Breakdown
	b.Raw.Walk = c.WalkScale * batter.Eye * (1 - pitcher.Control*c.WalkControlWeight)
	b.Raw.Strikeout = c.StrikeoutScale * (1 - batter.Contact*c.StrikeoutContactWeight) * (c.StrikeoutStuffBase + pitcher.Stuff*c.StrikeoutStuffWeight)
	b.Raw.HomeRun = c.HomeRunScale * batter.Power * (1 - pitcher.Movement*c.HomeRunMovementWeight)

	b.Clamped.Walk = bands.Walk.Clamp(b.Raw.Walk)
	b.Clamped.Strikeout = bands.Strikeout.Clamp(b.Raw.Strikeout)
	b.Clamped.HomeRun = bands.HomeRun.Clamp(b.Raw.HomeRun)

	// The in-play band can push the four off a partition; renormalizing restores it.
	b.Raw.InPlay = 1 - b.Clamped.Walk - b.Clamped.Strikeout - b.Clamped.HomeRun
	b.Clamped.InPlay = bands.InPlay.Clamp(b.Raw.InPlay)

	b.Normalized = b.Clamped.Normalized()
	return b
}

// Probabilities returns the normalized outcome distribution for a matchup
func (r *Resolver) Probabilities(batter models.BatterRatings, pitcher models.PitcherRatings) Probabilities {
	return r.Explain(batter, pitcher).Normalized
}

// Resolve picks the outcome for sample u, which callers must draw uniformly from [0,1).
// The sample is not range-checked: u < 0 always walks and u >= 1 is always in play.
func (r *Resolver) Resolve(batter models.BatterRatings, pitcher models.PitcherRatings, u float64) Outcome {
	return r.Probabilities(batter, pitcher).Select(u)
}

// Draw resolves a matchup with exactly one sample taken from src
func (r *Resolver) Draw(batter models.BatterRatings, pitcher models.PitcherRatings, src rng.Source) Outcome {
	probs := r.Probabilities(batter, pitcher)
	return probs.Select(src.Float64())
}

// Face resolves a plate appearance between two players using their current ratings.
// It fails only when the pitcher has no usable pitching ratings; no sample is consumed then.
func (r *Resolver) Face(batter, pitcher *models.Player, src rng.Source) (Outcome, error) {
	pitching, err := pitcher.PitchingRatings()
	if err != nil {
		return InPlay, err
	}
	return r.Draw(batter.BattingRatings(), pitching, src), nil
}

// Resolve picks an outcome under the default calibration
func Resolve(batter models.BatterRatings, pitcher models.PitcherRatings, u float64) Outcome {
	return defaultResolver.Resolve(batter, pitcher, u)
}
