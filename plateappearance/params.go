package plateappearance

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidParams is wrapped by every calibration validation failure
var ErrInvalidParams = errors.New("invalid resolver params")

// Band is a closed interval [Min, Max] a probability is held inside
type Band struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Clamp restricts v to the band. NaN saturates at Min.
func (b Band) Clamp(v float64) float64 {
	if !(v >= b.Min) {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Contains reports whether v lies inside the band
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Coefficients are the calibrated weights of the raw probability formulas:
//
//	walk      = WalkScale * eye * (1 - control*WalkControlWeight)
//	strikeout = StrikeoutScale * (1 - contact*StrikeoutContactWeight) * (StrikeoutStuffBase + stuff*StrikeoutStuffWeight)
//	home run  = HomeRunScale * power * (1 - movement*HomeRunMovementWeight)
type Coefficients struct {
	WalkScale              float64 `yaml:"walk_scale" json:"walk_scale"`
	WalkControlWeight      float64 `yaml:"walk_control_weight" json:"walk_control_weight"`
	StrikeoutScale         float64 `yaml:"strikeout_scale" json:"strikeout_scale"`
	StrikeoutContactWeight float64 `yaml:"strikeout_contact_weight" json:"strikeout_contact_weight"`
	StrikeoutStuffBase     float64 `yaml:"strikeout_stuff_base" json:"strikeout_stuff_base"`
	StrikeoutStuffWeight   float64 `yaml:"strikeout_stuff_weight" json:"strikeout_stuff_weight"`
	HomeRunScale           float64 `yaml:"home_run_scale" json:"home_run_scale"`
	HomeRunMovementWeight  float64 `yaml:"home_run_movement_weight" json:"home_run_movement_weight"`
}

// Bands hold each outcome's floor and ceiling before renormalization
type Bands struct {
	Walk      Band `yaml:"walk" json:"walk"`
	Strikeout Band `yaml:"strikeout" json:"strikeout"`
	HomeRun   Band `yaml:"home_run" json:"home_run"`
	InPlay    Band `yaml:"in_play" json:"in_play"`
}

// Params is the full calibration table of the resolver
type Params struct {
	Coefficients Coefficients `yaml:"coefficients" json:"coefficients"`
	Bands        Bands        `yaml:"bands" json:"bands"`
}

// DefaultParams returns the calibration derived from league-wide seasonal outcome rates
func DefaultParams() Params {
	return Params{
		Coefficients: Coefficients{
			WalkScale:              0.12,
			WalkControlWeight:      0.8,
			StrikeoutScale:         0.24,
			StrikeoutContactWeight: 0.8,
			StrikeoutStuffBase:     0.3,
			StrikeoutStuffWeight:   0.7,
			HomeRunScale:           0.04,
			HomeRunMovementWeight:  0.7,
		},
		Bands: Bands{
			Walk:      Band{Min: 0.02, Max: 0.18},
			Strikeout: Band{Min: 0.08, Max: 0.38},
			HomeRun:   Band{Min: 0.005, Max: 0.10},
			InPlay:    Band{Min: 0.35, Max: 0.90},
		},
	}
}

// Validate checks that every coefficient is finite and every band is a
// non-empty sub-interval of (0,1]. Positive floors keep each outcome reachable.
func (p Params) Validate() error {
	var errs []string

	c := p.Coefficients
	coefficients := []struct {
		name  string
		value float64
	}{
		{"walk_scale", c.WalkScale},
		{"walk_control_weight", c.WalkControlWeight},
		{"strikeout_scale", c.StrikeoutScale},
		{"strikeout_contact_weight", c.StrikeoutContactWeight},
		{"strikeout_stuff_base", c.StrikeoutStuffBase},
		{"strikeout_stuff_weight", c.StrikeoutStuffWeight},
		{"home_run_scale", c.HomeRunScale},
		{"home_run_movement_weight", c.HomeRunMovementWeight},
	}
	for _, coef := range coefficients {
		if math.IsNaN(coef.value) || math.IsInf(coef.value, 0) {
			errs = append(errs, fmt.Sprintf("coefficients.%s must be finite", coef.name))
		}
	}

	bands := []struct {
		name string
		band Band
	}{
		{"walk", p.Bands.Walk},
		{"strikeout", p.Bands.Strikeout},
		{"home_run", p.Bands.HomeRun},
		{"in_play", p.Bands.InPlay},
	}
	for _, b := range bands {
		if !(b.band.Min > 0) || !(b.band.Max <= 1) || b.band.Min > b.band.Max {
			errs = append(errs, fmt.Sprintf("bands.%s must satisfy 0 < min <= max <= 1 (got [%g, %g])", b.name, b.band.Min, b.band.Max))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(errs, "; "))
	}
	return nil
}

// LoadParams reads a YAML calibration file. Keys missing from the file keep their
// default values, so a file may override a single band.
func LoadParams(path string) (Params, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("failed to read params file: %w", err)
	}
	return ParseParams(b)
}

// ParseParams decodes YAML calibration on top of DefaultParams and validates the result
func ParseParams(data []byte) (Params, error) {
	params := DefaultParams()
	if err := yaml.Unmarshal(data, &params); err != nil {
		return Params{}, fmt.Errorf("failed to parse params: %w", err)
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}
