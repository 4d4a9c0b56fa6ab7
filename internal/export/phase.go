package export

import "fmt"

// Phase is the lifecycle position of a job.
type Phase string

// Phases. A job owns exactly one at a time.
const (
	PhaseCreated     Phase = "Created"
	PhaseSubmitting  Phase = "Submitting"
	PhasePolling     Phase = "Polling"
	PhaseDownloading Phase = "Downloading"
	PhaseSucceeded   Phase = "Succeeded"
	PhaseFailed      Phase = "Failed"
)

var transitions = map[Phase][]Phase{
	PhaseCreated:     {PhaseSubmitting},
	PhaseSubmitting:  {PhasePolling, PhaseFailed},
	PhasePolling:     {PhasePolling, PhaseDownloading, PhaseFailed},
	PhaseDownloading: {PhaseSucceeded, PhaseFailed},
}

// Terminal reports whether no transition leaves p.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError is an attempt to leave a phase along a non-existent edge.
type TransitionError struct {
	From, To Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("export: invalid phase transition %s -> %s", e.From, e.To)
}
