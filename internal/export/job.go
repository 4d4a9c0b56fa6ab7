package export

import (
	"errors"
	"fmt"
	"time"

	"github.com/ligustah/exportctl/internal/trace"
)

// Errors reported as a job's terminal failure.
var (
	// ErrMalformedResponse is a 2xx response missing an expected field.
	ErrMalformedResponse = errors.New("export: malformed response")
	// ErrExportFailed means the service finished the export with status Failed.
	ErrExportFailed = errors.New("export: service reported failure")
	// ErrUnconfirmed means Succeeded arrived on a response other than HTTP 200.
	ErrUnconfirmed = errors.New("export: success not confirmed by HTTP 200")
	// ErrNoSink means a Persist job ran on a Runner without a Sink.
	ErrNoSink = errors.New("export: persist requested but runner has no sink")
)

// Disposition selects what happens to downloaded bytes.
type Disposition int

const (
	// Persist writes the artifact to the runner's sink.
	Persist Disposition = iota
	// Discard drains the artifact and keeps only its size.
	Discard
)

func (d Disposition) String() string {
	if d == Discard {
		return "discard"
	}
	return "persist"
}

// JobRequest is the immutable input of a job.
type JobRequest struct {
	ReportID    string
	WorkspaceID string
	// Options is the JSON export request body, e.g. {"format":"PDF"}.
	Options     []byte
	Disposition Disposition
}

// Artifact is the result of a download.
type Artifact struct {
	Name     string
	Location string
	Bytes    int64
	Elapsed  time.Duration
}

// State is the mutable state of one job.
type State struct {
	Phase     Phase
	Percent   *float64
	RequestID string
	ExportID  string
	Polls     int
	Durations map[Phase]time.Duration
	History   []Phase
	Artifact  *Artifact
	Err       error

	entered time.Time
}

// Outcome is the terminal result handed back to the orchestrator.
type Outcome struct {
	Job       int
	Worker    int
	Phase     Phase
	ExportID  string
	RequestID string
	Artifact  *Artifact
	Err       error
	Elapsed   time.Duration
	Durations map[Phase]time.Duration
	History   []Phase
}

// Succeeded reports whether the job reached PhaseSucceeded.
func (o Outcome) Succeeded() bool {
	return o.Phase == PhaseSucceeded
}

// Job is one export in flight.
type Job struct {
	Number  int
	Worker  int
	Request JobRequest
	State   State

	tracer  trace.Tracer
	now     func() time.Time
	started time.Time
}

func newJob(number, worker int, req JobRequest, tracer trace.Tracer, now func() time.Time) *Job {
	start := now()
	return &Job{
		Number:  number,
		Worker:  worker,
		Request: req,
		State: State{
			Phase:     PhaseCreated,
			Durations: make(map[Phase]time.Duration),
			History:   []Phase{PhaseCreated},
			entered:   start,
		},
		tracer:  tracer,
		now:     now,
		started: start,
	}
}

// advance moves the job along a lifecycle edge and accounts time spent in
// the phase being left. Polling -> Polling only counts the poll.
func (j *Job) advance(to Phase) error {
	from := j.State.Phase
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	if from == to {
		j.State.Polls++
		return nil
	}

	now := j.now()
	j.State.Durations[from] += now.Sub(j.State.entered)
	j.State.entered = now
	j.State.Phase = to
	j.State.History = append(j.State.History, to)
	j.tracef("%s -> %s", from, to)
	return nil
}

// fail records err and moves the job to PhaseFailed.
func (j *Job) fail(err error) Outcome {
	if advErr := j.advance(PhaseFailed); advErr != nil {
		err = errors.Join(err, advErr)
		j.State.Phase = PhaseFailed
		j.State.History = append(j.State.History, PhaseFailed)
	}
	j.State.Err = err
	j.tracef("Failed: %v", err)
	return j.outcome()
}

func (j *Job) outcome() Outcome {
	return Outcome{
		Job:       j.Number,
		Worker:    j.Worker,
		Phase:     j.State.Phase,
		ExportID:  j.State.ExportID,
		RequestID: j.State.RequestID,
		Artifact:  j.State.Artifact,
		Err:       j.State.Err,
		Elapsed:   j.now().Sub(j.started),
		Durations: j.State.Durations,
		History:   j.State.History,
	}
}

func (j *Job) tracef(format string, args ...any) {
	j.tracer.Trace(trace.Event{
		Time:      j.now(),
		Worker:    j.Worker,
		Job:       j.Number,
		Phase:     string(j.State.Phase),
		RequestID: j.State.RequestID,
		Message:   fmt.Sprintf(format, args...),
	})
}

// throttled is the rate-limit hook handed to the transport.
func (j *Job) throttled(n int, delay time.Duration) {
	j.tracef("Rate limited (429 #%d), retrying in %s", n, delay)
}
