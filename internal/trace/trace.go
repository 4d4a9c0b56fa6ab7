// Package trace defines the correlation-tagged event sink used by export jobs.
//
// Core packages emit [Event] values through a [Tracer] and never write logs
// directly. Two sinks are provided: [LineTracer] writes one bracketed line per
// event, [ZapTracer] emits structured records through zap.
//
// # Line format
//
//	[exportctl] [1718000000] [+2.015s] [run:5f0c1a2b] [w:1] [job:3] [Polling] [RAID:8e2f...] Export status: Running (40%)
package trace

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Event is one traced step of a job.
type Event struct {
	Time      time.Time
	Worker    int
	Job       int
	Phase     string
	RequestID string
	Message   string
}

// Tracer receives job events. Implementations must be safe for concurrent use.
type Tracer interface {
	Trace(ev Event)
}

// TracerFunc adapts a function to a Tracer.
type TracerFunc func(ev Event)

// Trace calls f(ev).
func (f TracerFunc) Trace(ev Event) { f(ev) }

// Nop discards every event.
var Nop Tracer = TracerFunc(func(Event) {})

// LineTracer writes human-readable lines to an io.Writer.
type LineTracer struct {
	mu    sync.Mutex
	w     io.Writer
	run   string
	start time.Time
}

// NewLineTracer creates a LineTracer. Elapsed time is measured from now.
func NewLineTracer(w io.Writer, runID string) *LineTracer {
	return &LineTracer{w: w, run: shortID(runID), start: time.Now()}
}

// Trace writes ev as a single line.
func (t *LineTracer) Trace(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	rid := ev.RequestID
	if rid == "" {
		rid = "-"
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "[exportctl] [%d] [+%.3fs] [run:%s] [w:%d] [job:%d] [%s] [RAID:%s] %s\n",
		ev.Time.Unix(),
		ev.Time.Sub(t.start).Seconds(),
		t.run,
		ev.Worker,
		ev.Job,
		ev.Phase,
		rid,
		ev.Message,
	)
}

// Multi fans events out to every tracer.
func Multi(tracers ...Tracer) Tracer {
	return TracerFunc(func(ev Event) {
		for _, t := range tracers {
			t.Trace(ev)
		}
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
