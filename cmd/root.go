package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/georefresh/internal/config"
	"github.com/zjrosen/georefresh/internal/log"
)

const (
	envPrefix        = "GEOREFRESH"
	localConfigPath  = ".georefresh/config.yaml"
	configNameInHome = "georefresh"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "georefresh",
	Short: "Regenerate a data set and commit it only when it changed",
	Long: `georefresh regenerates derived GeoJSON data inside a git work tree, compares
it with what HEAD already holds and commits and pushes only when the content
actually changed. Runs are safe to repeat and never overlap.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .georefresh/config.yaml, then ~/.config/georefresh/config.yaml)")
	rootCmd.PersistentFlags().StringP("repo", "r", "", "git work tree to operate on (default: current directory)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	_ = viper.BindPFlag("repo_dir", rootCmd.PersistentFlags().Lookup("repo"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	setDefaults(viper.GetViper())

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .georefresh/config.yaml (current directory)
		// 2. ~/.config/georefresh/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", configNameInHome))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}
}

// setDefaults registers every key so env overrides work without a config file.
func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("repo_dir", d.RepoDir)
	v.SetDefault("subject", d.Subject)
	v.SetDefault("artifacts.paths", d.Artifacts.Paths)

	v.SetDefault("transform.kind", d.Transform.Kind)
	v.SetDefault("transform.setup", d.Transform.Setup)
	v.SetDefault("transform.command", d.Transform.Command)
	v.SetDefault("transform.timeout", d.Transform.Timeout)
	v.SetDefault("transform.deepstate.url", d.Transform.Deep.URL)
	v.SetDefault("transform.deepstate.user_agent", d.Transform.Deep.UserAgent)
	v.SetDefault("transform.deepstate.attempts", d.Transform.Deep.Attempts)
	v.SetDefault("transform.deepstate.retry_delay", d.Transform.Deep.RetryDelay)
	v.SetDefault("transform.deepstate.timeout", d.Transform.Deep.Timeout)
	v.SetDefault("transform.deepstate.output_dir", d.Transform.Deep.OutputDir)
	v.SetDefault("transform.deepstate.file_pattern", d.Transform.Deep.FilePattern)
	v.SetDefault("transform.deepstate.csv_name", d.Transform.Deep.CSVName)
	v.SetDefault("transform.deepstate.names", d.Transform.Deep.Names)

	v.SetDefault("git.remote", d.Git.Remote)
	v.SetDefault("git.branch", d.Git.Branch)
	v.SetDefault("git.push", d.Git.Push)
	v.SetDefault("git.allow_empty", d.Git.AllowEmpty)
	v.SetDefault("git.sync_before_run", d.Git.SyncBeforeRun)
	v.SetDefault("git.author_name", d.Git.AuthorName)
	v.SetDefault("git.author_email", d.Git.AuthorEmail)
	v.SetDefault("git.token_env", d.Git.TokenEnv)

	v.SetDefault("detect.coordinate_precision", d.Detect.CoordinatePrecision)
	v.SetDefault("detect.cache_ttl", d.Detect.CacheTTL)

	v.SetDefault("schedule.interval", d.Schedule.Interval)
	v.SetDefault("schedule.trigger_file", d.Schedule.TriggerFile)
	v.SetDefault("schedule.debounce", d.Schedule.Debounce)
	v.SetDefault("schedule.run_on_start", d.Schedule.RunOnStart)

	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.lease_ttl", d.Store.LeaseTTL)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.path", d.Log.Path)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
}

// loadConfig reads the config file, if any, and validates the result.
func loadConfig(v *viper.Viper) (config.Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config.Config{}, fmt.Errorf("reading config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var c config.Config
	if err := v.Unmarshal(&c); err != nil {
		return config.Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if c.Tracing.Enabled && c.Tracing.FilePath == "" {
		c.Tracing.FilePath = config.DefaultTracesFilePath()
	}
	if err := config.Validate(c); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// prepare loads cfg and starts logging. The returned func flushes the log.
func prepare() (func(), error) {
	var err error
	if cfg, err = loadConfig(viper.GetViper()); err != nil {
		return nil, err
	}
	cleanup, err := log.Init(cfg.Log.Path, log.ParseLevel(cfg.Log.Level))
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug(log.CatConfig, "Loaded config", "path", used)
	}
	return cleanup, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
