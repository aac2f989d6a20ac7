// Package league holds empirical plate-appearance outcome rates: the eight-way
// breakdown recorded in play-by-play data and its collapse onto the resolver's
// four outcomes.
package league

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/baseball-sim/sim-engine/plateappearance"
)

// Category is one of the empirical outcome categories
type Category int

const (
	Walk Category = iota
	HitByPitch
	Single
	Double
	Triple
	HomeRun
	Strikeout
	Out
)

// NumCategories is the number of empirical categories
const NumCategories = 8

// names as they appear in rate files
var categoryNames = [NumCategories]string{"Walk", "HBP", "Single", "Double", "Triple", "HR", "Strikeout", "Out"}

// ErrUnknownCategory is returned when a rate file names a category outside the fixed set
var ErrUnknownCategory = errors.New("unknown outcome category")

// Categories lists every category in file order
func Categories() []Category {
	return []Category{Walk, HitByPitch, Single, Double, Triple, HomeRun, Strikeout, Out}
}

func (c Category) String() string {
	if c < 0 || c >= NumCategories {
		return fmt.Sprintf("category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory matches a category name case-insensitively
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for i, name := range categoryNames {
		if strings.EqualFold(name, s) {
			return Category(i), nil
		}
	}
	return Out, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// MarshalText implements encoding.TextMarshaler
func (c Category) MarshalText() ([]byte, error) {
	if c < 0 || c >= NumCategories {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ClassifyEvent maps a play-by-play event name onto a category. Unrecognized
// events, including an empty one, count as outs; double and triple plays are outs
// even when they end in a strikeout.
func ClassifyEvent(event string) Category {
	e := strings.ToLower(strings.TrimSpace(event))
	switch {
	case e == "walk":
		return Walk
	case e == "hit_by_pitch":
		return HitByPitch
	case e == "single":
		return Single
	case strings.Contains(e, "double_play"):
		return Out
	case e == "double":
		return Double
	case strings.Contains(e, "triple_play"):
		return Out
	case e == "triple":
		return Triple
	case e == "home_run":
		return HomeRun
	case strings.Contains(e, "strikeout"):
		return Strikeout
	}
	return Out
}

// Rates maps each category to its share of plate appearances
type Rates map[Category]float64

// Total sums every rate
func (r Rates) Total() float64 {
	total := 0.0
	for _, v := range r {
		total += v
	}
	return total
}

// Normalized rescales the rates so they sum to 1. Every category is present in the result.
func (r Rates) Normalized() Rates {
	total := r.Total()
	out := make(Rates, NumCategories)
	for _, c := range Categories() {
		if total > 0 {
			out[c] = r[c] / total
		} else {
			out[c] = 0
		}
	}
	return out
}

// Validate checks that every rate is finite and non-negative and that some mass exists
func (r Rates) Validate() error {
	for c, v := range r {
		if c < 0 || c >= NumCategories {
			return fmt.Errorf("%w: %d", ErrUnknownCategory, int(c))
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("rate for %s must be a finite non-negative number, got %g", c, v)
		}
	}
	if r.Total() <= 0 {
		return fmt.Errorf("rates sum to zero")
	}
	return nil
}

// Collapse folds the eight categories onto the resolver's four outcomes:
// walks and hit batters become walks, singles through triples and outs are balls in play.
func (r Rates) Collapse() plateappearance.Probabilities {
	n := r.Normalized()
	return plateappearance.Probabilities{
		Walk:      n[Walk] + n[HitByPitch],
		Strikeout: n[Strikeout],
		HomeRun:   n[HomeRun],
		InPlay:    n[Single] + n[Double] + n[Triple] + n[Out],
	}
}

// CategoryOf returns the category a resolver outcome collapses from. In play maps to Out
// since the resolver does not distinguish hits from outs.
func CategoryOf(o plateappearance.Outcome) Category {
	switch o {
	case plateappearance.Walk:
		return Walk
	case plateappearance.Strikeout:
		return Strikeout
	case plateappearance.HomeRun:
		return HomeRun
	}
	return Out
}

// Parse decodes a JSON object of category name to rate and normalizes it
func Parse(r io.Reader) (Rates, error) {
	var raw Rates
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode league rates: %w", err)
	}
	if err := raw.Validate(); err != nil {
		return nil, err
	}
	return raw.Normalized(), nil
}

// Load reads league rates from a JSON file
func Load(path string) (Rates, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open league rates: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Tally counts play-by-play events by category
type Tally struct {
	counts [NumCategories]int
	total  int
}

// Add classifies one event and counts it
func (t *Tally) Add(event string) Category {
	c := ClassifyEvent(event)
	t.counts[c]++
	t.total++
	return c
}

// Count returns how many events fell into c
func (t *Tally) Count(c Category) int {
	if c < 0 || c >= NumCategories {
		return 0
	}
	return t.counts[c]
}

// Total returns the number of events counted
func (t *Tally) Total() int {
	return t.total
}

// Rates converts the counts into rates
func (t *Tally) Rates() (Rates, error) {
	if t.total == 0 {
		return nil, fmt.Errorf("no events tallied")
	}
	out := make(Rates, NumCategories)
	for _, c := range Categories() {
		out[c] = float64(t.counts[c]) / float64(t.total)
	}
	return out, nil
}
