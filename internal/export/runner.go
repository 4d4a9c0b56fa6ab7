package export

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ligustah/exportctl/internal/auth"
	exporthttp "github.com/ligustah/exportctl/internal/http"
	"github.com/ligustah/exportctl/internal/progress"
	"github.com/ligustah/exportctl/internal/sink"
	"github.com/ligustah/exportctl/internal/trace"
)

// Service-reported export statuses.
const (
	StatusRunning   = "Running"
	StatusSucceeded = "Succeeded"
	StatusFailed    = "Failed"
)

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Client is the shared transport. Required.
	Client *exporthttp.Client

	// Token supplies the bearer credential. Required.
	Token auth.Provider

	// Host is the API base URL, e.g. https://api.powerbi.com.
	Host string

	// Sink stores artifacts of Persist jobs. Persist jobs fail with
	// ErrNoSink when it is nil.
	Sink sink.Sink

	// BufferSize is the read size for streamed downloads.
	// Default: 8KB
	BufferSize int

	// PollInterval is the sleep between non-terminal polls.
	// Default: 1s
	PollInterval time.Duration

	// Tracer receives job events. Default: trace.Nop
	Tracer trace.Tracer

	// Sleep replaces the poll interval timer. Used by tests.
	Sleep exporthttp.SleepFunc

	// Now replaces the clock. Used by tests.
	Now func() time.Time
}

// Runner executes export jobs. It is safe for concurrent use; all mutable
// state lives in the Job created by Run.
type Runner struct {
	opts RunnerOptions
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.BufferSize <= 0 {
		opts.BufferSize = sink.DefaultBufferSize
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	if opts.Sleep == nil {
		opts.Sleep = exporthttp.Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{opts: opts}
}

// PollResult is the last status response of a poll loop.
type PollResult struct {
	// HTTPStatus is the status code of the response carrying Status.
	HTTPStatus       int
	Status           string
	PercentComplete  *float64
	ResourceLocation string
}

type exportStatus struct {
	ID               string   `json:"id"`
	Status           string   `json:"status"`
	PercentComplete  *float64 `json:"percentComplete"`
	ResourceLocation string   `json:"resourceLocation"`
}

func (s exportStatus) terminal() bool {
	return s.Status == StatusSucceeded || s.Status == StatusFailed
}

// wait reports whether another poll should be preceded by a sleep.
// A null percentage never counts as complete.
func (s exportStatus) wait() bool {
	if s.terminal() {
		return false
	}
	if s.Status == StatusRunning || s.PercentComplete == nil {
		return true
	}
	return *s.PercentComplete < 100
}

// Run drives req to a terminal outcome.
func (r *Runner) Run(ctx context.Context, number, worker int, req JobRequest) Outcome {
	j := newJob(number, worker, req, r.opts.Tracer, r.opts.Now)

	if err := j.advance(PhaseSubmitting); err != nil {
		return j.fail(err)
	}
	id, err := r.Submit(ctx, j)
	if err != nil {
		return j.fail(err)
	}

	if err := j.advance(PhasePolling); err != nil {
		return j.fail(err)
	}
	res, err := r.Poll(ctx, j, id)
	if err != nil {
		return j.fail(err)
	}
	if res.Status != StatusSucceeded {
		return j.fail(fmt.Errorf("%w: export %s status %s", ErrExportFailed, id, res.Status))
	}
	if res.HTTPStatus != http.StatusOK {
		return j.fail(fmt.Errorf("%w: export %s status %s on HTTP %d", ErrUnconfirmed, id, res.Status, res.HTTPStatus))
	}

	if err := j.advance(PhaseDownloading); err != nil {
		return j.fail(err)
	}
	art, err := r.Download(ctx, j, res, id)
	if err != nil {
		return j.fail(err)
	}
	j.State.Artifact = art

	if err := j.advance(PhaseSucceeded); err != nil {
		return j.fail(err)
	}
	return j.outcome()
}

// Submit starts the export and returns its id.
func (r *Runner) Submit(ctx context.Context, j *Job) (string, error) {
	u := r.reportURL(j.Request) + "/ExportTo"
	header, err := r.header(ctx)
	if err != nil {
		return "", fmt.Errorf("submit export: %w", err)
	}

	resp, err := r.opts.Client.Do(ctx, exporthttp.Request{
		Method:     http.MethodPost,
		URL:        u,
		Header:     header,
		Body:       j.Request.Options,
		OnThrottle: j.throttled,
	})
	if err != nil {
		return "", fmt.Errorf("submit export: %w", err)
	}
	defer resp.Close()

	j.State.RequestID = resp.RequestID()
	j.tracef("Export started at %s for %s", r.opts.Now().Format("2006-01-02 15:04:05"), u)

	if err := resp.Expect(http.StatusAccepted); err != nil {
		return "", fmt.Errorf("submit export: %w", err)
	}

	var body exportStatus
	if err := json.Unmarshal(resp.Data, &body); err != nil {
		return "", fmt.Errorf("%w: submit: %v", ErrMalformedResponse, err)
	}
	if body.ID == "" {
		return "", fmt.Errorf("%w: submit: missing id", ErrMalformedResponse)
	}

	j.State.ExportID = body.ID
	j.tracef("Export id: %s started successfully", body.ID)
	return body.ID, nil
}

// Poll queries the export until the service reports a terminal status.
// Rate limiting is absorbed by the transport; any other non-200/202
// response ends the loop with an error.
func (r *Runner) Poll(ctx context.Context, j *Job, exportID string) (*PollResult, error) {
	u := r.reportURL(j.Request) + "/exports/" + url.PathEscape(exportID)

	for {
		if err := j.advance(PhasePolling); err != nil {
			return nil, err
		}

		st, code, err := r.pollOnce(ctx, j, u)
		if err != nil {
			return nil, err
		}

		j.State.Percent = st.PercentComplete
		j.tracef("Export status: %s (%s)", st.Status, formatPercent(st.PercentComplete))

		if st.terminal() {
			return &PollResult{
				HTTPStatus:       code,
				Status:           st.Status,
				PercentComplete:  st.PercentComplete,
				ResourceLocation: st.ResourceLocation,
			}, nil
		}
		if st.wait() {
			if err := r.opts.Sleep(ctx, r.opts.PollInterval); err != nil {
				return nil, fmt.Errorf("poll export: %w", err)
			}
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context, j *Job, u string) (exportStatus, int, error) {
	var st exportStatus

	header, err := r.header(ctx)
	if err != nil {
		return st, 0, fmt.Errorf("poll export: %w", err)
	}
	resp, err := r.opts.Client.Do(ctx, exporthttp.Request{
		Method:     http.MethodGet,
		URL:        u,
		Header:     header,
		OnThrottle: j.throttled,
	})
	if err != nil {
		return st, 0, fmt.Errorf("poll export: %w", err)
	}
	defer resp.Close()

	if rid := resp.RequestID(); rid != "" {
		j.State.RequestID = rid
	}
	if err := resp.Expect(http.StatusOK, http.StatusAccepted); err != nil {
		return st, resp.StatusCode, fmt.Errorf("poll export %s: %w", u, err)
	}
	if err := json.Unmarshal(resp.Data, &st); err != nil {
		return st, resp.StatusCode, fmt.Errorf("%w: poll: %v", ErrMalformedResponse, err)
	}
	if st.Status == "" {
		return st, resp.StatusCode, fmt.Errorf("%w: poll: missing status", ErrMalformedResponse)
	}
	return st, resp.StatusCode, nil
}

// Download streams the artifact at the result's resource location into the
// job's disposition and reports size and elapsed time.
func (r *Runner) Download(ctx context.Context, j *Job, res *PollResult, exportID string) (*Artifact, error) {
	if res.ResourceLocation == "" {
		return nil, fmt.Errorf("%w: download: missing resourceLocation", ErrMalformedResponse)
	}
	dst, err := r.sinkFor(j.Request)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	start := r.opts.Now()
	header, err := r.header(ctx)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	resp, err := r.opts.Client.Do(ctx, exporthttp.Request{
		Method:     http.MethodGet,
		URL:        res.ResourceLocation,
		Header:     header,
		Stream:     true,
		OnThrottle: j.throttled,
	})
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Close()

	if rid := resp.RequestID(); rid != "" {
		j.State.RequestID = rid
	}
	if err := resp.Expect(http.StatusOK); err != nil {
		return nil, fmt.Errorf("download %s: %w", res.ResourceLocation, err)
	}

	name := ArtifactName(j.Request.ReportID, exportID, start, ExportFormat(j.Request.Options), j.Number)
	out, err := dst.Write(ctx, name, resp.Body())
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}

	art := &Artifact{
		Name:     name,
		Location: out.Location,
		Bytes:    out.Bytes,
		Elapsed:  r.opts.Now().Sub(start),
	}
	if j.Request.Disposition == Discard {
		j.tracef("Discarded download of %s in %.2f seconds, size: %d bytes (%s)",
			res.ResourceLocation, art.Elapsed.Seconds(), art.Bytes, progress.FormatBytes(art.Bytes))
	} else {
		j.tracef("Downloaded file to %s in %.2f seconds, size: %d bytes (%s)",
			art.Location, art.Elapsed.Seconds(), art.Bytes, progress.FormatBytes(art.Bytes))
	}
	return art, nil
}

func (r *Runner) sinkFor(req JobRequest) (sink.Sink, error) {
	if req.Disposition == Discard {
		return sink.Discard{BufferSize: r.opts.BufferSize}, nil
	}
	if r.opts.Sink == nil {
		return nil, ErrNoSink
	}
	return r.opts.Sink, nil
}

func (r *Runner) reportURL(req JobRequest) string {
	u := r.opts.Host + "/v1.0/myorg/"
	if req.WorkspaceID != "" {
		u += "groups/" + url.PathEscape(req.WorkspaceID) + "/"
	}
	return u + "reports/" + url.PathEscape(req.ReportID)
}

func (r *Runner) header(ctx context.Context) (http.Header, error) {
	token, err := r.opts.Token.Token(ctx)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Authorization", "Bearer "+token)
	return h, nil
}

func formatPercent(p *float64) string {
	if p == nil {
		return "unknown%"
	}
	return fmt.Sprintf("%g%%", *p)
}
