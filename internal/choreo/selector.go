package choreo

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"
)

var ErrNoRoutines = errors.New("dance routine catalog is empty")

// Command is a move resolved for one dispatch: headings are concrete and
// nothing is shared with the catalog entry it came from.
type Command struct {
	Type      MoveType
	Heading   *float64
	DurMs     float64
	DutyRight *float64
	DutyLeft  *float64
	Extra     map[string]any
}

// Dance is a routine resolved for dispatch.
type Dance struct {
	Name     string
	Commands []Command
	Duration time.Duration
}

// Selector picks routines uniformly at random from a fixed catalog.
type Selector struct {
	mu       sync.Mutex
	rng      *rand.Rand
	routines []Routine
}

func NewSelector(routines []Routine, rng *rand.Rand) *Selector {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Selector{rng: rng, routines: routines}
}

// Select draws a routine and resolves it into a fresh Dance.
func (s *Selector) Select() (Dance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.routines) == 0 {
		return Dance{}, ErrNoRoutines
	}
	routine := s.routines[s.rng.IntN(len(s.routines))]
	return s.resolveLocked(routine), nil
}

// Resolve builds a Dance from routine, drawing any random headings.
func (s *Selector) Resolve(routine Routine) Dance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(routine)
}

func (s *Selector) resolveLocked(routine Routine) Dance {
	dance := Dance{
		Name:     routine.Name,
		Commands: make([]Command, 0, len(routine.Moves)),
	}
	var totalMs float64
	for _, move := range routine.Moves {
		cmd := Command{
			Type:      move.Type,
			DurMs:     move.DurMs,
			DutyRight: cloneFloat(move.DutyRight),
			DutyLeft:  cloneFloat(move.DutyLeft),
		}
		if move.Heading != nil {
			degrees := move.Heading.Degrees()
			if move.Heading.IsRandom() {
				degrees = s.rng.Float64() * 360
			}
			cmd.Heading = &degrees
		}
		if move.Extra != nil {
			cmd.Extra = deepCopy(move.Extra).(map[string]any)
		}
		totalMs += cmd.DurMs
		dance.Commands = append(dance.Commands, cmd)
	}
	dance.Duration = msToDuration(totalMs)
	return dance
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}
