package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/exportctl/internal/auth"
	"github.com/ligustah/exportctl/internal/config"
	"github.com/ligustah/exportctl/internal/export"
	exporthttp "github.com/ligustah/exportctl/internal/http"
	"github.com/ligustah/exportctl/internal/orchestrator"
	"github.com/ligustah/exportctl/internal/progress"
	"github.com/ligustah/exportctl/internal/sink"
	"github.com/ligustah/exportctl/internal/trace"
)

type runFlags struct {
	configFile string
	token      string
	bufferSize string
	overrides  config.Config
}

// RunCmd submits, polls and downloads the configured number of exports.
func RunCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run report exports with bounded parallelism",
		Long: `Run submits --exports export jobs for a report, at most --concurrency at a
time. Each job polls the service until the export finishes and then
downloads the artifact to --output, or drains it with --skip-download.

Configuration precedence: flags, then EXPORTCTL_* environment variables,
then the --config file, then defaults. The access token is read from
--token or ` + auth.EnvToken + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return withCode(ExitInvalidArgs, err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					fmt.Fprintln(cmd.ErrOrStderr(), "\n[exportctl] Received interrupt, shutting down...")
					cancel()
				case <-ctx.Done():
				}
			}()

			return runExports(ctx, cfg, auth.Resolve(f.token), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configFile, "config", "c", "", "YAML config file")
	fl.StringVar(&f.token, "token", "", "Bearer access token (default $"+auth.EnvToken+")")
	fl.StringVar(&f.overrides.Cluster, "cluster", "", "Deployment target: daily, dxt, msit or prod (default prod)")
	fl.StringVar(&f.overrides.Host, "host", "", "API base URL, overrides --cluster")
	fl.StringVarP(&f.overrides.WorkspaceID, "workspace-id", "w", "", "Workspace (group) id")
	fl.StringVarP(&f.overrides.ReportID, "report-id", "r", "", "Report id (required)")
	fl.IntVar(&f.overrides.Concurrency, "concurrency", 0, "Maximum exports in flight (default 1)")
	fl.IntVarP(&f.overrides.Exports, "exports", "n", 0, "Number of exports to run (default 1)")
	fl.BoolVar(&f.overrides.SkipDownload, "skip-download", false, "Drain artifacts without storing them")
	fl.StringVar(&f.overrides.ExportRequestFile, "export-request-file", "", `JSON export request body (default {"format":"PDF"})`)
	fl.StringVarP(&f.overrides.Output, "output", "o", "", "Artifact bucket URL (default file://./downloads?create_dir=true)")
	fl.StringVar(&f.bufferSize, "buffer-size", "", "Download read size (default 8KB)")
	fl.DurationVar(&f.overrides.Retry.TimeUnit, "time-unit", 0, "Poll interval and initial 429 backoff (default 1s)")
	fl.DurationVar(&f.overrides.Retry.MaxBackoff, "max-backoff", 0, "Maximum computed 429 backoff (default 16s)")
	fl.Float64Var(&f.overrides.Retry.RequestsPerSecond, "rps", 0, "Pace requests across all workers (0 = unlimited)")
	fl.DurationVar(&f.overrides.Retry.Timeout, "timeout", 0, "Per-request timeout including downloads (default 5m)")
	fl.BoolVar(&f.overrides.Progress, "progress", false, "Print periodic progress")
	fl.StringVar(&f.overrides.LogFormat, "log-format", "", "Trace format: text or json (default text)")

	return cmd
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(f runFlags) (config.Config, error) {
	cfg := config.Default()
	if f.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	overrides := f.overrides
	if f.bufferSize != "" {
		size, err := progress.ParseBytes(f.bufferSize)
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid --buffer-size: %w", err)
		}
		overrides.BufferSize = size
	}
	cfg = cfg.Merge(overrides)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runExports(ctx context.Context, cfg config.Config, token auth.Provider, stdout, stderr io.Writer) error {
	host, err := cfg.ResolveHost()
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}
	body, err := cfg.ExportRequestBody()
	if err != nil {
		return withCode(ExitInvalidArgs, err)
	}
	if _, err := token.Token(ctx); err != nil {
		return withCode(ExitAuthError, err)
	}

	runID := uuid.NewString()
	tracer, flush := newTracer(cfg.LogFormat, stderr, runID)
	defer flush()

	req := export.JobRequest{
		ReportID:    cfg.ReportID,
		WorkspaceID: cfg.WorkspaceID,
		Options:     body,
		Disposition: export.Persist,
	}

	var out sink.Sink
	if cfg.SkipDownload {
		req.Disposition = export.Discard
	} else {
		bucket, err := sink.Open(ctx, cfg.Output, int(cfg.BufferSize))
		if err != nil {
			return withCode(ExitStorageError, err)
		}
		defer bucket.Close()
		out = bucket
	}

	client := exporthttp.NewClient(exporthttp.Options{
		Timeout:           cfg.Retry.Timeout,
		RetryBackoff:      cfg.Retry.TimeUnit,
		RetryMaxBackoff:   cfg.Retry.MaxBackoff,
		RetryAfterUnit:    cfg.Retry.TimeUnit,
		RequestsPerSecond: cfg.Retry.RequestsPerSecond,
	})
	defer client.Close()

	runner := export.NewRunner(export.RunnerOptions{
		Client:       client,
		Token:        token,
		Host:         host,
		Sink:         out,
		BufferSize:   int(cfg.BufferSize),
		PollInterval: cfg.Retry.TimeUnit,
		Tracer:       tracer,
	})

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalJobs: cfg.Exports,
			Workers:   cfg.Concurrency,
			Output:    stderr,
			Target:    "report " + cfg.ReportID,
			RunID:     runID,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	res := orchestrator.Run(ctx, orchestrator.Options{
		Jobs:     cfg.Exports,
		Workers:  cfg.Concurrency,
		Request:  req,
		Progress: reporter,
	}, runner)

	if reporter != nil {
		reporter.Stop()
	}
	printSummary(stdout, runID, res)

	if err := res.Err(); err != nil {
		if ctx.Err() != nil {
			return withCode(ExitInterrupted, errors.Join(ctx.Err(), err))
		}
		if errors.Is(err, sink.ErrStorage) {
			return withCode(ExitStorageError, err)
		}
		return withCode(ExitJobsFailed, err)
	}
	return nil
}

// newTracer returns the tracer for format and a function flushing it.
func newTracer(format string, w io.Writer, runID string) (trace.Tracer, func()) {
	if format != "json" {
		return trace.NewLineTracer(w, runID), func() {}
	}

	encCfg := zap.NewProductionEncoderConfig()
	// Events carry their own "ts" field.
	encCfg.TimeKey = ""
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), zap.InfoLevel)
	zt := trace.NewZapTracer(zap.New(core), runID)
	return zt, func() { _ = zt.Sync() }
}

func printSummary(w io.Writer, runID string, res orchestrator.Result) {
	for _, o := range res.Outcomes {
		switch {
		case o.Succeeded() && o.Artifact.Location != "":
			fmt.Fprintf(w, "[exportctl] job %d: %s %s (%s) in %s\n",
				o.Job, o.Phase, o.Artifact.Location, progress.FormatBytes(o.Artifact.Bytes), progress.FormatDuration(o.Elapsed))
		case o.Succeeded():
			fmt.Fprintf(w, "[exportctl] job %d: %s, discarded %s in %s\n",
				o.Job, o.Phase, progress.FormatBytes(o.Artifact.Bytes), progress.FormatDuration(o.Elapsed))
		default:
			fmt.Fprintf(w, "[exportctl] job %d: %s: %v\n", o.Job, o.Phase, o.Err)
		}
	}
	fmt.Fprintf(w, "[exportctl] Run %s: %d succeeded, %d failed, %s downloaded in %s\n",
		runID, res.Succeeded(), res.Failed(), progress.FormatBytes(res.Bytes()), progress.FormatDuration(res.Elapsed))
}
