package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalJobs is the number of export jobs in the run.
	TotalJobs int

	// Workers is the number of parallel workers.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 5s
	UpdateInterval time.Duration

	// Target names what is being exported (for display).
	Target string

	// RunID identifies the run (for display).
	RunID string
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Succeeded int
	Failed    int
	InFlight  int
	Pending   int
	Bytes     int64
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu        sync.Mutex
	succeeded atomic.Int32
	failed    atomic.Int32
	inFlight  atomic.Int32
	bytes     atomic.Int64
	startTime time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 5 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start prints the header and begins periodic updates.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.startTime = time.Now()

	fmt.Fprintf(r.opts.Output, "[exportctl] Exporting %s (run %s)\n", r.opts.Target, r.opts.RunID)
	fmt.Fprintf(r.opts.Output, "[exportctl] Jobs: %d | Workers: %d\n", r.opts.TotalJobs, r.opts.Workers)

	go r.updateLoop()
}

// Stop prints the final summary and stops periodic updates.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// JobStarted marks a job as in flight.
func (r *Reporter) JobStarted() {
	r.inFlight.Add(1)
}

// JobSucceeded marks an in-flight job as succeeded with n artifact bytes.
func (r *Reporter) JobSucceeded(n int64) {
	r.bytes.Add(n)
	r.succeeded.Add(1)
	r.inFlight.Add(-1)
}

// JobFailed marks an in-flight job as failed.
func (r *Reporter) JobFailed() {
	r.failed.Add(1)
	r.inFlight.Add(-1)
}

// Snapshot returns the current counters.
func (r *Reporter) Snapshot() Snapshot {
	s := Snapshot{
		Succeeded: int(r.succeeded.Load()),
		Failed:    int(r.failed.Load()),
		InFlight:  int(r.inFlight.Load()),
		Bytes:     r.bytes.Load(),
	}
	s.Pending = max(r.opts.TotalJobs-s.Succeeded-s.Failed-s.InFlight, 0)
	return s
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	s := r.Snapshot()

	var percent float64
	if r.opts.TotalJobs > 0 {
		percent = float64(s.Succeeded+s.Failed) / float64(r.opts.TotalJobs) * 100
	}

	fmt.Fprintf(r.opts.Output, "[exportctl] Progress: %.1f%% | %d succeeded | %d failed | %d in-flight | %d pending | %s downloaded\n",
		percent, s.Succeeded, s.Failed, s.InFlight, s.Pending, formatBytes(s.Bytes))
}

func (r *Reporter) printFinalStatus() {
	s := r.Snapshot()
	duration := time.Since(r.startTime)

	fmt.Fprintf(r.opts.Output, "[exportctl] Done: %d succeeded | %d failed | %s downloaded\n",
		s.Succeeded, s.Failed, formatBytes(s.Bytes))
	fmt.Fprintf(r.opts.Output, "[exportctl] Total time: %s | Average: %s/s\n",
		formatDuration(duration), formatBytes(int64(float64(s.Bytes)/max(duration.Seconds(), 0.001))))
}

var units = []struct {
	suffix string
	size   int64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	for _, u := range units {
		if b >= u.size {
			return fmt.Sprintf("%.2f %s", float64(b)/float64(u.size), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", b)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
	}
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// FormatDuration is exported for use by other packages.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}

// ParseBytes parses a human-readable byte string (e.g., "64KB"). Units are
// powers of 1024; an "iB" spelling is accepted as well.
func ParseBytes(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.Replace(v, "IB", "B", 1)

	multiplier := int64(1)
	for _, u := range units {
		if strings.HasSuffix(v, u.suffix) {
			multiplier = u.size
			v = strings.TrimSuffix(v, u.suffix)
			break
		}
	}
	if multiplier == 1 {
		v = strings.TrimSuffix(v, "B")
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}

	return int64(value * float64(multiplier)), nil
}
