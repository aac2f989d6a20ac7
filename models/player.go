package models

import (
	"errors"
	"fmt"
	"strings"
)

// Handedness is the side a player bats or throws from
type Handedness int

const (
	Left Handedness = iota
	Right
	Switch
)

func (h Handedness) String() string {
	switch h {
	case Left:
		return "L"
	case Right:
		return "R"
	case Switch:
		return "S"
	default:
		return "?"
	}
}

// ParseHandedness accepts L/R/S as well as the long forms
func ParseHandedness(s string) (Handedness, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "L", "LEFT":
		return Left, nil
	case "R", "RIGHT":
		return Right, nil
	case "S", "B", "SWITCH", "BOTH":
		return Switch, nil
	}
	return Right, fmt.Errorf("unknown handedness %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (h Handedness) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *Handedness) UnmarshalText(b []byte) error {
	parsed, err := ParseHandedness(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Position is a defensive assignment
type Position int

const (
	Pitcher Position = iota
	Catcher
	FirstBase
	SecondBase
	ThirdBase
	Shortstop
	LeftField
	CenterField
	RightField
	DesignatedHitter
	InfieldUtility
	OutfieldUtility
)

var positionNames = []string{"P", "C", "1B", "2B", "3B", "SS", "LF", "CF", "RF", "DH", "INF_UTIL", "OF_UTIL"}

func (p Position) String() string {
	if int(p) < 0 || int(p) >= len(positionNames) {
		return "?"
	}
	return positionNames[p]
}

// ParsePosition maps the scorebook abbreviation to a Position
func ParsePosition(s string) (Position, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range positionNames {
		if name == s {
			return Position(i), nil
		}
	}
	return DesignatedHitter, fmt.Errorf("unknown position %q", s)
}

// IsInfield reports whether the position plays the dirt (pitcher and catcher excluded)
func (p Position) IsInfield() bool {
	switch p {
	case FirstBase, SecondBase, ThirdBase, Shortstop, InfieldUtility:
		return true
	}
	return false
}

// IsOutfield reports whether the position plays the grass
func (p Position) IsOutfield() bool {
	switch p {
	case LeftField, CenterField, RightField, OutfieldUtility:
		return true
	}
	return false
}

// HitterType describes a batter's batted-ball profile
type HitterType int

const (
	LineDrive HitterType = iota
	GroundBall
	FlyBall
	PopFly
	Grounder
	Flyer
)

func (t HitterType) String() string {
	switch t {
	case LineDrive:
		return "line_drive"
	case GroundBall:
		return "ground_ball"
	case FlyBall:
		return "fly_ball"
	case PopFly:
		return "pop_fly"
	case Grounder:
		return "grounder"
	case Flyer:
		return "flyer"
	default:
		return "unknown"
	}
}

// PitchType identifies one pitch in an arsenal
type PitchType int

const (
	Fastball PitchType = iota
	Slider
	Curveball
	Changeup
	Cutter
	Sinker
	Splitter
	Knuckleball
)

func (t PitchType) String() string {
	switch t {
	case Fastball:
		return "fastball"
	case Slider:
		return "slider"
	case Curveball:
		return "curveball"
	case Changeup:
		return "changeup"
	case Cutter:
		return "cutter"
	case Sinker:
		return "sinker"
	case Splitter:
		return "splitter"
	case Knuckleball:
		return "knuckleball"
	default:
		return "unknown"
	}
}

// Player is one rostered player and all of their rating records
type Player struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Age      int        `json:"age"`
	Position Position   `json:"position"`
	Bats     Handedness `json:"bats"`
	Throws   Handedness `json:"throws"` // also the pitching hand

	IsPitcher bool `json:"is_pitcher"`
	IsTwoWay  bool `json:"is_two_way"`

	Batting  Ratings[BatterRatings]   `json:"batting"`
	Pitching *Ratings[PitcherRatings] `json:"pitching,omitempty"`
	Defense  Ratings[DefenseRatings]  `json:"defense"`

	// Catchers only
	Catching *Ratings[CatcherRatings] `json:"catching,omitempty"`

	// Pitchers only
	PitchMix *PitchTypeRatings `json:"pitch_mix,omitempty"`
}

// CanPitch reports whether the player carries pitching ratings and is allowed to use them
func (p *Player) CanPitch() bool {
	return p.Pitching != nil && (p.IsPitcher || p.IsTwoWay)
}

// Validate checks the structural rules that don't depend on rating values
func (p *Player) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("player name is required")
	}
	if p.IsPitcher && p.Pitching == nil {
		return fmt.Errorf("pitcher %s has no pitching ratings", p.Name)
	}
	if p.IsTwoWay && p.Pitching == nil {
		return fmt.Errorf("two-way player %s has no pitching ratings", p.Name)
	}
	if p.PitchMix != nil {
		if err := p.PitchMix.Validate(); err != nil {
			return fmt.Errorf("player %s: %w", p.Name, err)
		}
	}
	return nil
}

// ErrCannotPitch is returned when a pitcher's ratings are requested from a player who doesn't pitch
var ErrCannotPitch = errors.New("player has no usable pitching ratings")

// BattingRatings returns the player's current batting ability
func (p *Player) BattingRatings() BatterRatings {
	return p.Batting.Current
}

// PitchingRatings returns the player's current pitching ability
func (p *Player) PitchingRatings() (PitcherRatings, error) {
	if !p.CanPitch() {
		return PitcherRatings{}, fmt.Errorf("%s: %w", p.Name, ErrCannotPitch)
	}
	return p.Pitching.Current, nil
}
