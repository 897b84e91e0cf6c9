package jobs

type State string

const (
	StatePlanning          State = "planning"
	StateSpawning          State = "spawning"
	StateWatching          State = "watching"
	StateMerging           State = "merging"
	StateDeduplicating     State = "deduplicating"
	StateCheckingConflicts State = "checking_conflicts"
	StateComplete          State = "complete"
	StateFailed            State = "failed"
	StateStopped           State = "stopped"
)

// Failure reasons recorded on failed jobs.
const (
	ReasonCycleLimitExceeded = "cycle_limit_exceeded"
	ReasonChannelsMissing    = "channels_missing"
	ReasonInternal           = "internal_error"
)

// transitions lists the allowed successors of every non terminal state.
// failed and stopped are reachable from all of them.
var transitions = map[State][]State{
	StatePlanning:          {StateSpawning},
	StateSpawning:          {StateWatching},
	StateWatching:          {StateMerging, StateSpawning},
	StateMerging:           {StateDeduplicating},
	StateDeduplicating:     {StateCheckingConflicts},
	StateCheckingConflicts: {StateSpawning, StateComplete},
}

func (s State) String() string {
	return string(s)
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateStopped
}

func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateStopped {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
