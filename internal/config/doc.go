// Package config defines configuration structures for the exportctl CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (EXPORTCTL_ prefix)
//   - YAML configuration file
//
// Precedence is flags, then environment, then file, then defaults.
//
// # Structure
//
//	type Config struct {
//	    Cluster       string
//	    Host          string
//	    WorkspaceID   string
//	    ReportID      string
//	    Concurrency   int
//	    Exports       int
//	    SkipDownload  bool
//	    ExportRequest map[string]any
//	    Output        string
//	    BufferSize    int64
//	    Retry         RetryConfig
//	}
//
//	type RetryConfig struct {
//	    TimeUnit          time.Duration
//	    MaxBackoff        time.Duration
//	    RequestsPerSecond float64
//	    Timeout           time.Duration
//	}
//
// # Example
//
//	cluster: prod
//	workspace_id: 7c1f...
//	report_id: 2b8e...
//	concurrency: 4
//	exports: 20
//	output: file://./downloads?create_dir=true
//	buffer_size: 64KB
//	export_request:
//	  format: PPTX
//	retry:
//	  time_unit: 1s
//	  max_backoff: 16s
package config
