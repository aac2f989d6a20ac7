package plateappearance

import (
	"fmt"
	"strings"
)

// Outcome is the terminal classification of one plate appearance
type Outcome int

const (
	Walk Outcome = iota
	Strikeout
	HomeRun
	InPlay
)

// NumOutcomes is the number of distinct outcomes
const NumOutcomes = 4

var outcomeNames = [NumOutcomes]string{"walk", "strikeout", "home_run", "in_play"}

// Outcomes lists every outcome in evaluation order
func Outcomes() []Outcome {
	return []Outcome{Walk, Strikeout, HomeRun, InPlay}
}

func (o Outcome) String() string {
	if !o.Valid() {
		return fmt.Sprintf("outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// Valid reports whether o is one of the four outcomes
func (o Outcome) Valid() bool {
	return o >= Walk && o <= InPlay
}

// ParseOutcome accepts the names produced by String, case-insensitively.
// "hr" and "k" are accepted as scorebook shorthands.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "walk", "bb":
		return Walk, nil
	case "strikeout", "k", "so":
		return Strikeout, nil
	case "home_run", "homerun", "hr":
		return HomeRun, nil
	case "in_play", "inplay", "bip":
		return InPlay, nil
	}
	return InPlay, fmt.Errorf("unknown outcome %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid outcome %d", int(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (o *Outcome) UnmarshalText(b []byte) error {
	parsed, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
