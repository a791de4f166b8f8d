package choreo

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MoveType is the symbolic kind of a move. Its integer value is the wire enum.
type MoveType int

const (
	Motor        MoveType = 0
	Point        MoveType = 1
	Swim         MoveType = 2
	Float        MoveType = 3
	ReturnToDock MoveType = 4
)

var moveTypeNames = map[MoveType]string{
	Motor:        "motor",
	Point:        "point",
	Swim:         "swim",
	Float:        "float",
	ReturnToDock: "return_to_dock",
}

func (t MoveType) String() string {
	if name, ok := moveTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MoveType(%d)", int(t))
}

// Wire returns the integer sent to devices.
func (t MoveType) Wire() int {
	return int(t)
}

// ParseMoveType maps a config name ("motor", "swim", ...) to its MoveType.
func ParseMoveType(name string) (MoveType, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for t, n := range moveTypeNames {
		if n == normalized {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown move type %q", name)
}

// Heading is either a fixed number of degrees or drawn at random when a
// routine is resolved for dispatch.
type Heading struct {
	random  bool
	degrees float64
}

// FixedHeading returns a heading pinned to degrees.
func FixedHeading(degrees float64) Heading {
	return Heading{degrees: degrees}
}

// RandomHeading returns the heading that resolves to a fresh draw in [0,360).
func RandomHeading() Heading {
	return Heading{random: true}
}

func (h Heading) IsRandom() bool { return h.random }

// Degrees is only meaningful when IsRandom is false.
func (h Heading) Degrees() float64 { return h.degrees }

func (h Heading) String() string {
	if h.random {
		return "random"
	}
	return fmt.Sprintf("%g", h.degrees)
}

func (h *Heading) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("heading must be a number or %q", "random")
	}
	if strings.EqualFold(strings.TrimSpace(value.Value), "random") {
		*h = RandomHeading()
		return nil
	}
	var degrees float64
	if err := value.Decode(&degrees); err != nil {
		return fmt.Errorf("heading: %w", err)
	}
	*h = FixedHeading(degrees)
	return nil
}

// Move is one timed step of a routine as written in the catalog.
type Move struct {
	Type      MoveType
	Heading   *Heading
	DurMs     float64
	DutyRight *float64
	DutyLeft  *float64
	// Extra holds catalog fields the coordinator does not interpret; they
	// are forwarded to devices untouched apart from rounding.
	Extra map[string]any
}

func (m *Move) UnmarshalYAML(value *yaml.Node) error {
	raw := map[string]any{}
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("move: %w", err)
	}

	typeName, ok := raw["type"].(string)
	if !ok {
		return fmt.Errorf("move type is required")
	}
	moveType, err := ParseMoveType(typeName)
	if err != nil {
		return err
	}
	out := Move{Type: moveType}

	if _, ok := raw["heading"]; ok {
		var holder struct {
			Heading Heading `yaml:"heading"`
		}
		if err := value.Decode(&holder); err != nil {
			return err
		}
		heading := holder.Heading
		out.Heading = &heading
	}

	durRaw, ok := raw["dur_ms"]
	if !ok {
		return fmt.Errorf("%s move: dur_ms is required", moveType)
	}
	dur, ok := toFloat(durRaw)
	if !ok {
		return fmt.Errorf("%s move: dur_ms must be a number", moveType)
	}
	if dur < 0 {
		return fmt.Errorf("%s move: dur_ms must be non-negative", moveType)
	}
	out.DurMs = dur

	for key, dst := range map[string]**float64{"duty_right": &out.DutyRight, "duty_left": &out.DutyLeft} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			return fmt.Errorf("%s move: %s must be a number", moveType, key)
		}
		*dst = &f
	}

	for key, v := range raw {
		switch key {
		case "type", "heading", "dur_ms", "duty_right", "duty_left":
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[key] = v
	}

	*m = out
	return nil
}

// Routine is a named, ordered sequence of moves.
type Routine struct {
	Name  string `yaml:"name"`
	Moves []Move `yaml:"moves"`
}

// Duration is the sum of the routine's move durations.
func (r Routine) Duration() time.Duration {
	var total float64
	for _, m := range r.Moves {
		total += m.DurMs
	}
	return msToDuration(total)
}

// ParseRoutines decodes a YAML or JSON list of routines.
func ParseRoutines(data []byte) ([]Routine, error) {
	var routines []Routine
	if err := yaml.Unmarshal(data, &routines); err != nil {
		return nil, fmt.Errorf("parse routines: %w", err)
	}
	return routines, nil
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
