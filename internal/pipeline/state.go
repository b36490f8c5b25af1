package pipeline

import "fmt"

// State is a step of one request's lifecycle.
type State int

const (
	Received State = iota
	Sanitized
	Denied
	Executed
	Normalized
	Cached
	Completed
	Failed
)

var stateNames = map[State]string{
	Received:   "received",
	Sanitized:  "sanitized",
	Denied:     "denied",
	Executed:   "executed",
	Normalized: "normalized",
	Cached:     "cached",
	Completed:  "completed",
	Failed:     "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// transitions lists the legal successors of each state. Failed is reachable
// from every non-terminal state.
var transitions = map[State][]State{
	Received:   {Sanitized, Failed},
	Sanitized:  {Denied, Executed, Cached, Failed},
	Executed:   {Normalized, Failed},
	Normalized: {Cached, Completed, Failed},
	Cached:     {Completed, Failed},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// tracker walks one request through the state table and keeps its trail.
type tracker struct {
	state State
	trail []State
}

func newTracker() *tracker {
	return &tracker{state: Received, trail: []State{Received}}
}

func (t *tracker) to(next State) error {
	if !CanTransition(t.state, next) {
		return fmt.Errorf("illegal transition %s -> %s", t.state, next)
	}
	t.state = next
	t.trail = append(t.trail, next)
	return nil
}

// fail moves to Failed unless the request already ended.
func (t *tracker) fail() {
	if !t.state.Terminal() {
		_ = t.to(Failed)
	}
}
