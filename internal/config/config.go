package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ligustah/exportctl/internal/progress"
	"gopkg.in/yaml.v3"
)

// Hosts maps deployment targets to API base URLs.
var Hosts = map[string]string{
	"daily": "https://wabi-daily-us-east2-redirect.analysis.windows.net",
	"dxt":   "https://wabi-staging-us-east-redirect.analysis.windows.net",
	"msit":  "https://df-msit-scus-redirect.analysis.windows.net",
	"prod":  "https://api.powerbi.com",
}

// Clusters returns the known deployment targets in sorted order.
func Clusters() []string {
	names := make([]string, 0, len(Hosts))
	for name := range Hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Config defines configuration for the exportctl CLI.
type Config struct {
	Cluster           string         `yaml:"cluster"`
	Host              string         `yaml:"host"`
	WorkspaceID       string         `yaml:"workspace_id"`
	ReportID          string         `yaml:"report_id"`
	Concurrency       int            `yaml:"concurrency"`
	Exports           int            `yaml:"exports"`
	SkipDownload      bool           `yaml:"skip_download"`
	ExportRequest     map[string]any `yaml:"export_request"`
	ExportRequestFile string         `yaml:"export_request_file"`
	Output            string         `yaml:"output"`
	BufferSize        int64          `yaml:"buffer_size"`
	Progress          bool           `yaml:"progress"`
	LogFormat         string         `yaml:"log_format"`
	Retry             RetryConfig    `yaml:"retry"`
}

// RetryConfig defines pacing and rate-limit behavior.
type RetryConfig struct {
	// TimeUnit is the poll interval and the initial 429 backoff.
	TimeUnit time.Duration `yaml:"time_unit"`
	// MaxBackoff caps the computed 429 backoff.
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// RequestsPerSecond paces requests across workers; 0 disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// Timeout bounds a single HTTP request including a streamed download.
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Cluster:       "prod",
		Concurrency:   1,
		Exports:       1,
		ExportRequest: map[string]any{"format": "PDF"},
		Output:        "file://./downloads?create_dir=true",
		BufferSize:    8 * 1024,
		LogFormat:     "text",
		Retry: RetryConfig{
			TimeUnit:   time.Second,
			MaxBackoff: 16 * time.Second,
			Timeout:    5 * time.Minute,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string sizes and durations.
type yamlConfig struct {
	Cluster           string          `yaml:"cluster"`
	Host              string          `yaml:"host"`
	WorkspaceID       string          `yaml:"workspace_id"`
	ReportID          string          `yaml:"report_id"`
	Concurrency       int             `yaml:"concurrency"`
	Exports           int             `yaml:"exports"`
	SkipDownload      bool            `yaml:"skip_download"`
	ExportRequest     map[string]any  `yaml:"export_request"`
	ExportRequestFile string          `yaml:"export_request_file"`
	Output            string          `yaml:"output"`
	BufferSize        string          `yaml:"buffer_size"`
	Progress          bool            `yaml:"progress"`
	LogFormat         string          `yaml:"log_format"`
	Retry             yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	TimeUnit          string  `yaml:"time_unit"`
	MaxBackoff        string  `yaml:"max_backoff"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Timeout           string  `yaml:"timeout"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Cluster != "" {
		cfg.Cluster = yc.Cluster
	}
	cfg.Host = yc.Host
	cfg.WorkspaceID = yc.WorkspaceID
	cfg.ReportID = yc.ReportID
	if yc.Concurrency != 0 {
		cfg.Concurrency = yc.Concurrency
	}
	if yc.Exports != 0 {
		cfg.Exports = yc.Exports
	}
	cfg.SkipDownload = yc.SkipDownload
	if len(yc.ExportRequest) > 0 {
		cfg.ExportRequest = yc.ExportRequest
	}
	cfg.ExportRequestFile = yc.ExportRequestFile
	if yc.Output != "" {
		cfg.Output = yc.Output
	}
	if yc.BufferSize != "" {
		size, err := progress.ParseBytes(yc.BufferSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse buffer_size: %w", err)
		}
		cfg.BufferSize = size
	}
	cfg.Progress = yc.Progress
	if yc.LogFormat != "" {
		cfg.LogFormat = yc.LogFormat
	}
	if err := parseDuration("retry.time_unit", yc.Retry.TimeUnit, &cfg.Retry.TimeUnit); err != nil {
		return Config{}, err
	}
	if err := parseDuration("retry.max_backoff", yc.Retry.MaxBackoff, &cfg.Retry.MaxBackoff); err != nil {
		return Config{}, err
	}
	if err := parseDuration("retry.timeout", yc.Retry.Timeout, &cfg.Retry.Timeout); err != nil {
		return Config{}, err
	}
	if yc.Retry.RequestsPerSecond != 0 {
		cfg.Retry.RequestsPerSecond = yc.Retry.RequestsPerSecond
	}

	return cfg, nil
}

func parseDuration(name, v string, dst *time.Duration) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the EXPORTCTL_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("EXPORTCTL_CLUSTER"); v != "" {
		c.Cluster = v
	}
	if v := os.Getenv("EXPORTCTL_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("EXPORTCTL_WORKSPACE_ID"); v != "" {
		c.WorkspaceID = v
	}
	if v := os.Getenv("EXPORTCTL_REPORT_ID"); v != "" {
		c.ReportID = v
	}
	if v := os.Getenv("EXPORTCTL_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse EXPORTCTL_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("EXPORTCTL_EXPORTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse EXPORTCTL_EXPORTS: %w", err)
		}
		c.Exports = n
	}
	if v := os.Getenv("EXPORTCTL_SKIP_DOWNLOAD"); v != "" {
		c.SkipDownload = v == "true" || v == "1"
	}
	if v := os.Getenv("EXPORTCTL_EXPORT_REQUEST_FILE"); v != "" {
		c.ExportRequestFile = v
	}
	if v := os.Getenv("EXPORTCTL_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("EXPORTCTL_BUFFER_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse EXPORTCTL_BUFFER_SIZE: %w", err)
		}
		c.BufferSize = size
	}
	if v := os.Getenv("EXPORTCTL_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("EXPORTCTL_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if err := parseDuration("EXPORTCTL_TIME_UNIT", os.Getenv("EXPORTCTL_TIME_UNIT"), &c.Retry.TimeUnit); err != nil {
		return err
	}
	if err := parseDuration("EXPORTCTL_MAX_BACKOFF", os.Getenv("EXPORTCTL_MAX_BACKOFF"), &c.Retry.MaxBackoff); err != nil {
		return err
	}
	if err := parseDuration("EXPORTCTL_TIMEOUT", os.Getenv("EXPORTCTL_TIMEOUT"), &c.Retry.Timeout); err != nil {
		return err
	}
	if v := os.Getenv("EXPORTCTL_REQUESTS_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse EXPORTCTL_REQUESTS_PER_SECOND: %w", err)
		}
		c.Retry.RequestsPerSecond = f
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.ReportID == "" {
		return errors.New("config: report_id is required")
	}
	if c.Concurrency <= 0 {
		return errors.New("config: concurrency must be positive")
	}
	if c.Exports <= 0 {
		return errors.New("config: exports must be positive")
	}
	if _, err := c.ResolveHost(); err != nil {
		return err
	}
	if !c.SkipDownload && c.Output == "" {
		return errors.New("config: output is required unless skip_download is set")
	}
	if c.BufferSize <= 0 {
		return errors.New("config: buffer_size must be positive")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("config: log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Retry.TimeUnit <= 0 {
		return errors.New("config: retry.time_unit must be positive")
	}
	if c.Retry.MaxBackoff < c.Retry.TimeUnit {
		return errors.New("config: retry.max_backoff must be at least retry.time_unit")
	}
	if c.Retry.RequestsPerSecond < 0 {
		return errors.New("config: retry.requests_per_second must not be negative")
	}
	return nil
}

// ResolveHost returns the API base URL. Host overrides Cluster.
func (c *Config) ResolveHost() (string, error) {
	if c.Host != "" {
		return strings.TrimSuffix(c.Host, "/"), nil
	}
	host, ok := Hosts[c.Cluster]
	if !ok {
		return "", fmt.Errorf("config: unknown cluster %q (choose from %s)", c.Cluster, strings.Join(Clusters(), ", "))
	}
	return host, nil
}

// ExportRequestBody returns the JSON export options. ExportRequestFile wins
// over the inline ExportRequest.
func (c *Config) ExportRequestBody() ([]byte, error) {
	if c.ExportRequestFile != "" {
		data, err := os.ReadFile(c.ExportRequestFile)
		if err != nil {
			return nil, fmt.Errorf("read export request: %w", err)
		}
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("parse export request %s: %w", c.ExportRequestFile, err)
		}
		return data, nil
	}

	req := c.ExportRequest
	if len(req) == 0 {
		req = Default().ExportRequest
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode export request: %w", err)
	}
	return data, nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Cluster != "" {
		c.Cluster = override.Cluster
	}
	if override.Host != "" {
		c.Host = override.Host
	}
	if override.WorkspaceID != "" {
		c.WorkspaceID = override.WorkspaceID
	}
	if override.ReportID != "" {
		c.ReportID = override.ReportID
	}
	if override.Concurrency != 0 {
		c.Concurrency = override.Concurrency
	}
	if override.Exports != 0 {
		c.Exports = override.Exports
	}
	if override.SkipDownload {
		c.SkipDownload = override.SkipDownload
	}
	if len(override.ExportRequest) > 0 {
		c.ExportRequest = override.ExportRequest
	}
	if override.ExportRequestFile != "" {
		c.ExportRequestFile = override.ExportRequestFile
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.BufferSize != 0 {
		c.BufferSize = override.BufferSize
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.LogFormat != "" {
		c.LogFormat = override.LogFormat
	}
	if override.Retry.TimeUnit != 0 {
		c.Retry.TimeUnit = override.Retry.TimeUnit
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	if override.Retry.RequestsPerSecond != 0 {
		c.Retry.RequestsPerSecond = override.Retry.RequestsPerSecond
	}
	if override.Retry.Timeout != 0 {
		c.Retry.Timeout = override.Retry.Timeout
	}
	return c
}
