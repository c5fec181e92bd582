// Package config provides configuration types, defaults and validation for georefresh.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Transformer kinds.
const (
	TransformScript    = "script"
	TransformDeepState = "deepstate"
)

// Config holds all configuration options for georefresh.
type Config struct {
	// RepoDir is the git work tree the pipeline operates on. Empty means the
	// current directory.
	RepoDir string `mapstructure:"repo_dir"`

	// Subject fills the commit message "[update] Update <subject> data".
	Subject string `mapstructure:"subject"`

	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Transform TransformConfig `mapstructure:"transform"`
	Git       GitConfig       `mapstructure:"git"`
	Detect    DetectConfig    `mapstructure:"detect"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ArtifactsConfig lists the output paths that make up the published artifact.
type ArtifactsConfig struct {
	// Paths are files or directories relative to RepoDir.
	Paths []string `mapstructure:"paths"`
}

// TransformConfig selects and configures the transformer.
type TransformConfig struct {
	Kind    string          `mapstructure:"kind"`    // "script" (default) or "deepstate"
	Setup   string          `mapstructure:"setup"`   // dependency install command, run before fetching
	Command string          `mapstructure:"command"` // script command for kind=script
	Timeout time.Duration   `mapstructure:"timeout"` // bound on setup and command, 0 = none
	Deep    DeepStateConfig `mapstructure:"deepstate"`
}

// DeepStateConfig configures the native DeepState transformer.
type DeepStateConfig struct {
	URL         string        `mapstructure:"url"`
	UserAgent   string        `mapstructure:"user_agent"`
	Attempts    int           `mapstructure:"attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Timeout     time.Duration `mapstructure:"timeout"`
	OutputDir   string        `mapstructure:"output_dir"`
	FilePattern string        `mapstructure:"file_pattern"` // may contain {date} (YYYYMMDD)
	CSVName     string        `mapstructure:"csv_name"`     // empty disables CSV aggregation
	Names       []string      `mapstructure:"names"`        // feature names to keep
}

// GitConfig holds commit and push settings.
type GitConfig struct {
	Remote        string `mapstructure:"remote"`
	Branch        string `mapstructure:"branch"`
	Push          bool   `mapstructure:"push"`
	AllowEmpty    bool   `mapstructure:"allow_empty"`
	SyncBeforeRun bool   `mapstructure:"sync_before_run"`
	AuthorName    string `mapstructure:"author_name"`
	AuthorEmail   string `mapstructure:"author_email"`
	// TokenEnv names the environment variables checked, in order, for a push token.
	TokenEnv []string `mapstructure:"token_env"`
}

// DetectConfig tunes canonicalization.
type DetectConfig struct {
	// CoordinatePrecision rounds JSON numbers inside "coordinates" arrays to
	// this many decimals before hashing. 0 disables rounding.
	CoordinatePrecision int `mapstructure:"coordinate_precision"`

	// CacheTTL bounds how long canonical hashes of committed files are cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ScheduleConfig drives the daemon.
type ScheduleConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	TriggerFile string        `mapstructure:"trigger_file"` // touching it fires a manual run
	Debounce    time.Duration `mapstructure:"debounce"`
	RunOnStart  bool          `mapstructure:"run_on_start"`
}

// StoreConfig locates the run history database.
type StoreConfig struct {
	Path     string        `mapstructure:"path"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info (default), warn, error
	Path  string `mapstructure:"path"`  // empty or "-" = stderr
}

// TracingConfig holds tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultStorePath returns ~/.georefresh/state.db, or a relative fallback
// when the home directory is unavailable.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".georefresh", "state.db")
	}
	return filepath.Join(home, ".georefresh", "state.db")
}

// DefaultTracesFilePath returns ~/.config/georefresh/traces/traces.jsonl or
// empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "georefresh", "traces", "traces.jsonl")
}

// DefaultDeepStateNames are the territory classes kept from the DeepState map.
func DefaultDeepStateNames() []string {
	return []string{"CADR and CALR", "Occupied", "Occupied Crimea"}
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Subject: "GeoJSON",
		Artifacts: ArtifactsConfig{
			Paths: []string{"data"},
		},
		Transform: TransformConfig{
			Kind:    TransformScript,
			Command: "python3 script.py",
			Timeout: 15 * time.Minute,
			Deep: DeepStateConfig{
				URL:         "https://deepstatemap.live/api/history/last",
				UserAgent:   "Mozilla/5.0 (Windows Phone 10.0; Android 6.0.1; Microsoft; RM-1152) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/52.0.2743.116 Mobile Safari/537.36 Edge/15.15254",
				Attempts:    3,
				RetryDelay:  5 * time.Second,
				Timeout:     10 * time.Second,
				OutputDir:   "data",
				FilePattern: "deepstatemap_data_{date}.geojson",
				CSVName:     "aggregated_deepstatemap.csv",
				Names:       DefaultDeepStateNames(),
			},
		},
		Git: GitConfig{
			Remote:      "origin",
			Branch:      "main",
			Push:        true,
			AllowEmpty:  true,
			AuthorName:  "georefresh",
			AuthorEmail: "georefresh@users.noreply.github.com",
			TokenEnv:    []string{"GEOREFRESH_TOKEN", "GITHUB_TOKEN"},
		},
		Detect: DetectConfig{
			CoordinatePrecision: 0,
			CacheTTL:            time.Hour,
		},
		Schedule: ScheduleConfig{
			Interval:    24 * time.Hour,
			TriggerFile: filepath.Join(".georefresh", "trigger"),
			Debounce:    time.Second,
		},
		Store: StoreConfig{
			Path:     DefaultStorePath(),
			LeaseTTL: 30 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from home dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the configuration for errors.
func Validate(c Config) error {
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("subject is required")
	}
	if err := ValidateArtifactPaths(c.Artifacts.Paths); err != nil {
		return err
	}
	if err := validateTransform(c.Transform); err != nil {
		return err
	}
	if c.Git.Branch == "" {
		return fmt.Errorf("git.branch is required")
	}
	if c.Git.Push && c.Git.Remote == "" {
		return fmt.Errorf("git.remote is required when git.push is enabled")
	}
	if c.Detect.CoordinatePrecision < 0 || c.Detect.CoordinatePrecision > 15 {
		return fmt.Errorf("detect.coordinate_precision must be between 0 and 15, got %d", c.Detect.CoordinatePrecision)
	}
	if c.Schedule.Interval <= 0 {
		return fmt.Errorf("schedule.interval must be positive")
	}
	if c.Store.LeaseTTL <= 0 {
		return fmt.Errorf("store.lease_ttl must be positive")
	}
	return validateTracing(c.Tracing)
}

// ValidateArtifactPaths requires at least one path, each relative and inside the work tree.
func ValidateArtifactPaths(paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("artifacts.paths: at least one path is required")
	}
	for i, p := range paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("artifacts.paths[%d]: path is empty", i)
		}
		slashed := filepath.ToSlash(p)
		if path.IsAbs(slashed) || filepath.IsAbs(p) {
			return fmt.Errorf("artifacts.paths[%d] (%s): must be relative to the work tree", i, p)
		}
		clean := path.Clean(slashed)
		if clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("artifacts.paths[%d] (%s): escapes the work tree", i, p)
		}
	}
	return nil
}

func validateTransform(t TransformConfig) error {
	switch t.Kind {
	case "", TransformScript:
		if strings.TrimSpace(t.Command) == "" {
			return fmt.Errorf("transform.command is required for script transformer")
		}
	case TransformDeepState:
		d := t.Deep
		if d.URL == "" {
			return fmt.Errorf("transform.deepstate.url is required")
		}
		if d.Attempts < 1 {
			return fmt.Errorf("transform.deepstate.attempts must be at least 1")
		}
		if d.FilePattern == "" {
			return fmt.Errorf("transform.deepstate.file_pattern is required")
		}
		if len(d.Names) == 0 {
			return fmt.Errorf("transform.deepstate.names: at least one name is required")
		}
	default:
		return fmt.Errorf("transform.kind: invalid value %q (must be %q or %q)", t.Kind, TransformScript, TransformDeepState)
	}
	return nil
}

var validExporters = []string{"", "none", "file", "stdout", "otlp"}

func validateTracing(t TracingConfig) error {
	if !t.Enabled {
		return nil
	}
	if !slices.Contains(validExporters, t.Exporter) {
		return fmt.Errorf("tracing.exporter: invalid value %q", t.Exporter)
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}
	return nil
}

// CommitMessage renders the fixed commit message for a subject.
func CommitMessage(subject string) string {
	return fmt.Sprintf("[update] Update %s data", subject)
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# georefresh configuration
# Regenerates a derived data set, commits it only when its content changed,
# and pushes to the configured branch.

# Work tree to operate on (default: current directory)
# repo_dir: /path/to/checkout

# Commit message is "[update] Update <subject> data"
subject: GeoJSON

artifacts:
  # Files or directories, relative to the work tree
  paths:
    - data

transform:
  # "script" runs an external command; "deepstate" fetches the DeepState map natively
  kind: script
  # Dependency install step, run before fetching (optional)
  # setup: pip install -r requirements.txt
  command: python3 script.py
  timeout: 15m
  deepstate:
    url: https://deepstatemap.live/api/history/last
    attempts: 3
    retry_delay: 5s
    timeout: 10s
    output_dir: data
    file_pattern: deepstatemap_data_{date}.geojson
    csv_name: aggregated_deepstatemap.csv
    names:
      - CADR and CALR
      - Occupied
      - Occupied Crimea

git:
  remote: origin
  branch: main
  push: true
  # Commit even when nothing is staged after a detected change
  allow_empty: true
  # Fast-forward from the remote before fetching
  sync_before_run: false
  author_name: georefresh
  author_email: georefresh@users.noreply.github.com
  # Environment variables checked for a push token (never stored)
  token_env:
    - GEOREFRESH_TOKEN
    - GITHUB_TOKEN

detect:
  # Round coordinates to N decimals before comparing (0 = exact)
  coordinate_precision: 0
  cache_ttl: 1h

schedule:
  interval: 24h
  # Touch this file to trigger a manual run while the daemon is up
  trigger_file: .georefresh/trigger
  debounce: 1s
  run_on_start: false

store:
  # Run history and leases (default: ~/.georefresh/state.db)
  # path: ~/.georefresh/state.db
  lease_ttl: 30m

log:
  level: info
  # path: georefresh.log

tracing:
  enabled: false
  exporter: file
  # file_path: ~/.config/georefresh/traces/traces.jsonl
  otlp_endpoint: localhost:4317
  sample_rate: 1.0
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates parent directories if needed.
func WriteDefaultConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
