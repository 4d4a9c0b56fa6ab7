package trace

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLineTracerFormat(t *testing.T) {
	var buf bytes.Buffer
	tr := NewLineTracer(&buf, "5f0c1a2b-0000-4000-8000-000000000000")

	tr.Trace(Event{
		Time:      tr.start.Add(1500 * time.Millisecond),
		Worker:    2,
		Job:       7,
		Phase:     "Polling",
		RequestID: "rid-1",
		Message:   "Export status: Running (40%)",
	})

	line := buf.String()
	for _, want := range []string{
		"[exportctl]",
		"[+1.500s]",
		"[run:5f0c1a2b]",
		"[w:2]",
		"[job:7]",
		"[Polling]",
		"[RAID:rid-1]",
		"Export status: Running (40%)\n",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("expected line to contain %q, got %q", want, line)
		}
	}
}

func TestLineTracerMissingRequestID(t *testing.T) {
	var buf bytes.Buffer
	tr := NewLineTracer(&buf, "run")
	tr.Trace(Event{Job: 1, Phase: "Submitting", Message: "hello"})

	if !strings.Contains(buf.String(), "[RAID:-]") {
		t.Errorf("expected placeholder request id, got %q", buf.String())
	}
}

func TestLineTracerConcurrent(t *testing.T) {
	var buf bytes.Buffer
	tr := NewLineTracer(&buf, "run")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tr.Trace(Event{Job: n, Phase: "Created", Message: "msg"})
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, l := range lines {
		if !strings.HasPrefix(l, "[exportctl]") {
			t.Errorf("interleaved line: %q", l)
		}
	}
}

func TestZapTracer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	tr := NewZapTracer(zap.New(core), "run-1")

	tr.Trace(Event{Worker: 1, Job: 3, Phase: "Downloading", RequestID: "rid", Message: "downloaded"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Message != "downloaded" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	if ctx["run"] != "run-1" || ctx["phase"] != "Downloading" || ctx["request_id"] != "rid" {
		t.Errorf("unexpected fields %v", ctx)
	}
	if ctx["job"] != int64(3) || ctx["worker"] != int64(1) {
		t.Errorf("unexpected job/worker fields %v", ctx)
	}
}

func TestMulti(t *testing.T) {
	var a, b int
	m := Multi(TracerFunc(func(Event) { a++ }), TracerFunc(func(Event) { b++ }), Nop)
	m.Trace(Event{})
	if a != 1 || b != 1 {
		t.Errorf("expected both tracers called once, got %d %d", a, b)
	}
}
