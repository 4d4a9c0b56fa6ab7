package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer written by the update loop.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{1024 * 1024, "1.00 MB"},
		{256 * 1024 * 1024, "256.00 MB"},
		{1024 * 1024 * 1024, "1.00 GB"},
		{1024 * 1024 * 1024 * 1024, "1.00 TB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"8KB", 8192},
		{"8kb", 8192},
		{"1KiB", 1024},
		{"1.5KB", 1536},
		{"256MB", 256 * 1024 * 1024},
		{" 1GB ", 1024 * 1024 * 1024},
		{"1TB", 1024 * 1024 * 1024 * 1024},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	for _, s := range []string{"invalid", "", "-1KB", "KB"} {
		if _, err := ParseBytes(s); err == nil {
			t.Errorf("ParseBytes(%q): expected error", s)
		}
	}
}

func TestReporterJobTracking(t *testing.T) {
	reporter := NewReporter(Options{TotalJobs: 5, Workers: 2})

	reporter.JobStarted()
	reporter.JobStarted()
	s := reporter.Snapshot()
	if s.InFlight != 2 || s.Pending != 3 {
		t.Errorf("expected 2 in-flight 3 pending, got %+v", s)
	}

	reporter.JobSucceeded(256)
	reporter.JobFailed()
	s = reporter.Snapshot()
	if s.InFlight != 0 || s.Succeeded != 1 || s.Failed != 1 || s.Pending != 3 {
		t.Errorf("unexpected snapshot %+v", s)
	}
	if s.Bytes != 256 {
		t.Errorf("expected 256 bytes, got %d", s.Bytes)
	}
}

func TestReporterStartStop(t *testing.T) {
	var out syncBuffer
	reporter := NewReporter(Options{
		TotalJobs:      2,
		Workers:        2,
		Output:         &out,
		UpdateInterval: 10 * time.Millisecond,
		Target:         "report rep-1",
		RunID:          "run-1",
	})

	reporter.Start()

	reporter.JobStarted()
	reporter.JobSucceeded(1024)
	reporter.JobStarted()
	reporter.JobFailed()

	time.Sleep(50 * time.Millisecond)

	reporter.Stop()
	reporter.Stop()

	text := out.String()
	for _, want := range []string{
		"[exportctl] Exporting report rep-1 (run run-1)",
		"[exportctl] Jobs: 2 | Workers: 2",
		"[exportctl] Progress: 100.0% | 1 succeeded | 1 failed",
		"[exportctl] Done: 1 succeeded | 1 failed | 1.00 KB downloaded",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, text)
		}
	}
}

func TestReporterStopWithoutStart(t *testing.T) {
	reporter := NewReporter(Options{})
	reporter.Stop()
}
