package models

import (
	"errors"
	"fmt"
	"math"
)

// All rating fields are normalized skill scalars. By convention they sit in [0,1],
// but nothing here enforces it; consumers decide how to treat out-of-range values.

// BatterRatings describes a hitter's offensive skills
type BatterRatings struct {
	Contact            float64 `json:"contact"`
	Power              float64 `json:"power"`
	Eye                float64 `json:"eye"` // plate discipline
	Speed              float64 `json:"speed"`
	GroundBallTendency float64 `json:"ground_ball_tendency"`
	FlyBallTendency    float64 `json:"fly_ball_tendency"`
}

// PitcherRatings describes a pitcher's skills
type PitcherRatings struct {
	Stuff    float64 `json:"stuff"`
	Control  float64 `json:"control"`
	Movement float64 `json:"movement"`
	Stamina  float64 `json:"stamina"`
}

// DefenseRatings describes a fielder's glove and arm
type DefenseRatings struct {
	Range       float64 `json:"range"`
	Hands       float64 `json:"hands"`
	InfieldArm  float64 `json:"infield_arm"`
	OutfieldArm float64 `json:"outfield_arm"` // general arm rating for power + accuracy
	DoublePlay  float64 `json:"double_play"`
}

// CatcherRatings holds the skills only catchers are graded on
type CatcherRatings struct {
	Framing  float64 `json:"framing"`
	Blocking float64 `json:"blocking"`
	PopTime  float64 `json:"pop_time"`
	GameCall float64 `json:"game_call"`
}

// Ratings pairs a player's current ability with their projected ceiling
type Ratings[T any] struct {
	Current   T `json:"current"`
	Potential T `json:"potential"`
}

// Flat builds a Ratings whose potential equals the current ability
func Flat[T any](r T) Ratings[T] {
	return Ratings[T]{Current: r, Potential: r}
}

// Pitch is one pitch in a pitcher's arsenal
type Pitch struct {
	Velocity float64 `json:"velocity"`
	Movement float64 `json:"movement"`
	Control  float64 `json:"control"`
	Usage    float64 `json:"usage"` // share of pitches thrown; the arsenal's usages sum to 1
}

// PitchTypeRatings lists the pitches a pitcher throws. Nil means the pitch isn't thrown.
type PitchTypeRatings struct {
	Fastball    *Pitch `json:"fastball,omitempty"`
	Slider      *Pitch `json:"slider,omitempty"`
	Curveball   *Pitch `json:"curveball,omitempty"`
	Changeup    *Pitch `json:"changeup,omitempty"`
	Cutter      *Pitch `json:"cutter,omitempty"`
	Sinker      *Pitch `json:"sinker,omitempty"`
	Splitter    *Pitch `json:"splitter,omitempty"`
	Knuckleball *Pitch `json:"knuckleball,omitempty"`
}

// ArsenalPitch is a pitch together with its type
type ArsenalPitch struct {
	Type  PitchType
	Pitch Pitch
}

// usageTolerance is how far an arsenal's usage total may drift from 1
const usageTolerance = 1e-3

// ErrEmptyArsenal is returned when a pitch mix lists no pitches
var ErrEmptyArsenal = errors.New("pitch mix has no pitches")

// Arsenal returns the pitches that are present, in PitchType order
func (r *PitchTypeRatings) Arsenal() []ArsenalPitch {
	slots := []*Pitch{r.Fastball, r.Slider, r.Curveball, r.Changeup, r.Cutter, r.Sinker, r.Splitter, r.Knuckleball}
	var out []ArsenalPitch
	for i, p := range slots {
		if p != nil {
			out = append(out, ArsenalPitch{Type: PitchType(i), Pitch: *p})
		}
	}
	return out
}

// UsageTotal sums the usage of every pitch in the arsenal
func (r *PitchTypeRatings) UsageTotal() float64 {
	total := 0.0
	for _, p := range r.Arsenal() {
		total += p.Pitch.Usage
	}
	return total
}

// Validate checks that the arsenal is non-empty and its usage vector sums to 1
func (r *PitchTypeRatings) Validate() error {
	arsenal := r.Arsenal()
	if len(arsenal) == 0 {
		return ErrEmptyArsenal
	}
	for _, p := range arsenal {
		if p.Pitch.Usage < 0 {
			return fmt.Errorf("%s usage is negative: %g", p.Type, p.Pitch.Usage)
		}
	}
	if total := r.UsageTotal(); math.Abs(total-1) > usageTolerance {
		return fmt.Errorf("pitch usage sums to %.4f, want 1", total)
	}
	return nil
}

// Scouting grades run on the 20-80 scale, 50 being major league average.
const (
	MinGrade = 20
	MaxGrade = 80
)

// GradeToRating maps a 20-80 scouting grade onto [0,1], saturating outside the scale
func GradeToRating(grade int) float64 {
	return Clamp01(float64(grade-MinGrade) / float64(MaxGrade-MinGrade))
}

// RatingToGrade is the inverse of GradeToRating, rounded to the nearest grade
func RatingToGrade(rating float64) int {
	return MinGrade + int(math.Round(Clamp01(rating)*float64(MaxGrade-MinGrade)))
}

// BatterFromGrades builds batter ratings from contact, power and eye scouting grades.
// The remaining fields are left at league average.
func BatterFromGrades(contact, power, eye int) BatterRatings {
	return BatterRatings{
		Contact:            GradeToRating(contact),
		Power:              GradeToRating(power),
		Eye:                GradeToRating(eye),
		Speed:              0.5,
		GroundBallTendency: 0.5,
		FlyBallTendency:    0.5,
	}
}

// PitcherFromGrades builds pitcher ratings from stuff, control and movement grades
func PitcherFromGrades(stuff, control, movement int) PitcherRatings {
	return PitcherRatings{
		Stuff:    GradeToRating(stuff),
		Control:  GradeToRating(control),
		Movement: GradeToRating(movement),
		Stamina:  0.5,
	}
}

// Clamp01 restricts v to [0,1]. NaN becomes 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Clamped returns a copy with every field restricted to [0,1]
func (b BatterRatings) Clamped() BatterRatings {
	return BatterRatings{
		Contact:            Clamp01(b.Contact),
		Power:              Clamp01(b.Power),
		Eye:                Clamp01(b.Eye),
		Speed:              Clamp01(b.Speed),
		GroundBallTendency: Clamp01(b.GroundBallTendency),
		FlyBallTendency:    Clamp01(b.FlyBallTendency),
	}
}

// Clamped returns a copy with every field restricted to [0,1]
func (p PitcherRatings) Clamped() PitcherRatings {
	return PitcherRatings{
		Stuff:    Clamp01(p.Stuff),
		Control:  Clamp01(p.Control),
		Movement: Clamp01(p.Movement),
		Stamina:  Clamp01(p.Stamina),
	}
}
