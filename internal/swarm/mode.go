package swarm

import (
	"fmt"
	"strings"
	"time"
)

// Mode is one of the swarm's behaviours.
type Mode int

const (
	ModeDock Mode = iota
	ModeFloat
	ModeIndependentDance
	ModeSynchronizedDance
)

// AllModes lists every mode in declaration order.
var AllModes = []Mode{ModeDock, ModeFloat, ModeIndependentDance, ModeSynchronizedDance}

func (m Mode) String() string {
	switch m {
	case ModeDock:
		return "Dock"
	case ModeFloat:
		return "Float"
	case ModeIndependentDance:
		return "IndependentDance"
	case ModeSynchronizedDance:
		return "SynchronizedDance"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

var modeAliases = map[string]Mode{
	"dock":              ModeDock,
	"returntodock":      ModeDock,
	"float":             ModeFloat,
	"independentdance":  ModeIndependentDance,
	"synchronizeddance": ModeSynchronizedDance,
}

// ParseMode accepts "Float", "Independent Dance", "synchronized_dance",
// "Return to Dock" and similar spellings.
func ParseMode(name string) (Mode, error) {
	key := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(name)))
	if mode, ok := modeAliases[key]; ok {
		return mode, nil
	}
	return 0, fmt.Errorf("unknown swarm mode %q", name)
}

// Cycle walks a fixed list of modes forever. It is a value: Next returns the
// advanced cycle rather than mutating the receiver.
type Cycle struct {
	modes []Mode
	pos   int
}

func NewCycle(modes []Mode) Cycle {
	return Cycle{modes: append([]Mode(nil), modes...)}
}

// Next returns the next mode and the advanced cycle. An empty cycle yields Float.
func (c Cycle) Next() (Mode, Cycle) {
	if len(c.modes) == 0 {
		return ModeFloat, c
	}
	mode := c.modes[c.pos]
	c.pos = (c.pos + 1) % len(c.modes)
	return mode, c
}

// DockPolicy decides when the periodic dock timeout fires.
type DockPolicy struct {
	TimeoutEnabled bool
	Interval       time.Duration
}

// MachineState is the mode machine's state between iterations.
type MachineState struct {
	Mode     Mode
	LastDock time.Time
	Cycle    Cycle
}

// InitialState starts in Float with the dock clock stamped at now.
func InitialState(cycle Cycle, now time.Time) MachineState {
	return MachineState{Mode: ModeFloat, LastDock: now, Cycle: cycle}
}

// Override returns the mode to run this iteration: Dock if a force-dock is
// pending or the dock timeout has expired, otherwise the current mode.
func Override(s MachineState, forceDock bool, policy DockPolicy, now time.Time) Mode {
	if forceDock {
		return ModeDock
	}
	if policy.TimeoutEnabled && now.Sub(s.LastDock) > policy.Interval {
		return ModeDock
	}
	return s.Mode
}

// Advance computes the state after running s.Mode at now. Dock always hands
// over to SynchronizedDance and restarts the dock clock; every other mode
// pulls the next entry from the cycle.
func Advance(s MachineState, now time.Time) MachineState {
	if s.Mode == ModeDock {
		s.LastDock = now
		s.Mode = ModeSynchronizedDance
		return s
	}
	s.Mode, s.Cycle = s.Cycle.Next()
	return s
}
