package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/ligustah/exportctl/internal/export"
	"github.com/ligustah/exportctl/internal/progress"
)

// Executor drives one job to a terminal outcome. *export.Runner implements it.
type Executor interface {
	Run(ctx context.Context, number, worker int, req export.JobRequest) export.Outcome
}

// Options configures a run.
type Options struct {
	// Jobs is the number of export jobs to run.
	// Default: 1
	Jobs int

	// Workers is the maximum number of jobs in flight.
	// Default: 1
	Workers int

	// Request is the input of every job.
	Request export.JobRequest

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// Result holds the outcome of every job, ordered by job number.
type Result struct {
	Outcomes []export.Outcome
	Elapsed  time.Duration
}

// Succeeded returns the number of jobs that reached Succeeded.
func (r Result) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of jobs that reached Failed.
func (r Result) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Bytes returns the total artifact bytes downloaded.
func (r Result) Bytes() int64 {
	var n int64
	for _, o := range r.Outcomes {
		if o.Artifact != nil {
			n += o.Artifact.Bytes
		}
	}
	return n
}

// Err combines the errors of all failed jobs, or returns nil.
func (r Result) Err() error {
	var err error
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			continue
		}
		cause := o.Err
		if cause == nil {
			cause = fmt.Errorf("ended in phase %s", o.Phase)
		}
		err = multierr.Append(err, fmt.Errorf("job %d: %w", o.Job, cause))
	}
	return err
}

// Run executes opts.Jobs jobs with at most opts.Workers in flight and blocks
// until all of them are terminal. Cancelling ctx makes pending and in-flight
// jobs fail promptly; it does not skip them.
func Run(ctx context.Context, opts Options, exec Executor) Result {
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	workers := min(opts.Workers, opts.Jobs)

	start := time.Now()
	outcomes := make([]export.Outcome, opts.Jobs)

	jobs := make(chan int, workers)
	var wg sync.WaitGroup

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for n := range jobs {
				outcomes[n-1] = runJob(ctx, exec, n, worker, opts)
			}
		}(w)
	}

	for n := 1; n <= opts.Jobs; n++ {
		jobs <- n
	}
	close(jobs)
	wg.Wait()

	return Result{Outcomes: outcomes, Elapsed: time.Since(start)}
}

func runJob(ctx context.Context, exec Executor, number, worker int, opts Options) export.Outcome {
	if opts.Progress != nil {
		opts.Progress.JobStarted()
	}

	out := exec.Run(ctx, number, worker, opts.Request)

	if opts.Progress != nil {
		if out.Succeeded() {
			var n int64
			if out.Artifact != nil {
				n = out.Artifact.Bytes
			}
			opts.Progress.JobSucceeded(n)
		} else {
			opts.Progress.JobFailed()
		}
	}
	return out
}
