// Package config handles loading and validating agentrouter configuration.
// Supports YAML config files and AGENTROUTER_* environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Defaults.
const (
	DefaultRef           = "main"
	DefaultBacklogLabel  = "agent-ready"
	DefaultAssignedLabel = "agent-assigned"
	DefaultHookTimeout   = "5s"
	DefaultStaleAfter    = "30m"
	DefaultCleanupAfter  = "24h"
	DefaultSpawnGrace    = "15m"
	DefaultOverflow      = OverflowQueue
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultRetentionDays = 7
	ProjectConfigName    = "agentrouter.yaml"

	envPrefix    = "AGENTROUTER"
	dashboardEnv = "DASHBOARD_URL"
)

// Validation errors.
var (
	ErrCronAndInterval   = errors.New("schedule: cron and interval are mutually exclusive")
	ErrInvalidInterval   = errors.New("schedule: invalid interval")
	ErrInvalidLogLevel   = errors.New("logging: level must be debug, info, warn or error")
	ErrInvalidLogFormat  = errors.New("logging: format must be json or text")
	ErrMissingRepository = errors.New("repository: owner and name are required")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidOverflow   = errors.New("orchestrator: overflow must be queue or fallback")
	ErrInvalidCapacity   = errors.New("orchestrator: capacity must not be negative")
)

// Overflow policies for a persona pool that is at capacity.
const (
	OverflowQueue    = "queue"    // leave the task queued until a slot frees up
	OverflowFallback = "fallback" // place it on another persona's pool
)

// Config holds all agentrouter configuration. Workflows maps a task type to
// the workflow file that runs its agent.
type Config struct {
	Repository   RepositoryConfig   `mapstructure:"repository"`
	GitHub       GitHubConfig       `mapstructure:"github"`
	TD           TDConfig           `mapstructure:"td"`
	Hooks        HooksConfig        `mapstructure:"hooks"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Workflows    map[string]string  `mapstructure:"workflows"`
}

// RepositoryConfig identifies the GitHub repository being automated.
type RepositoryConfig struct {
	Owner string `mapstructure:"owner"`
	Name  string `mapstructure:"name"`
	Ref   string `mapstructure:"ref"`
}

// Slug returns "owner/name", or "" if either part is missing.
func (r RepositoryConfig) Slug() string {
	if r.Owner == "" || r.Name == "" {
		return ""
	}
	return r.Owner + "/" + r.Name
}

// GitHubConfig controls which issues form the backlog.
type GitHubConfig struct {
	BacklogLabel  string `mapstructure:"backlog_label"`
	AssignedLabel string `mapstructure:"assigned_label"`
}

// TDConfig enables the local td task tracker as a second backlog source.
type TDConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"` // project dir td runs in; empty means cwd
}

// HooksConfig configures the hook pipeline.
type HooksConfig struct {
	DefaultTimeout string `mapstructure:"default_timeout"`
}

// OrchestratorConfig configures agent pools and registry housekeeping.
// Capacity maps a persona name to the most agents of that persona working
// at once; 0 or a missing persona means unbounded.
type OrchestratorConfig struct {
	StaleAfter   string         `mapstructure:"stale_after"`
	CleanupAfter string         `mapstructure:"cleanup_after"`
	SpawnGrace   string         `mapstructure:"spawn_grace"`
	Overflow     string         `mapstructure:"overflow"`
	Capacity     map[string]int `mapstructure:"capacity"`
}

// ScheduleConfig configures periodic rebalancing.
type ScheduleConfig struct {
	Cron     string        `mapstructure:"cron"`
	Interval string        `mapstructure:"interval"`
	Window   *WindowConfig `mapstructure:"window"`
}

// WindowConfig restricts scheduled runs to a daily time window.
type WindowConfig struct {
	Start    string `mapstructure:"start"` // HH:MM
	End      string `mapstructure:"end"`   // HH:MM, exclusive
	Timezone string `mapstructure:"timezone"`
}

// TelemetryConfig configures where lifecycle events go.
type TelemetryConfig struct {
	DashboardURL string `mapstructure:"dashboard_url"`
	DBPath       string `mapstructure:"db_path"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Path          string `mapstructure:"path"`
	Format        string `mapstructure:"format"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// HookTimeout returns the parsed default hook timeout.
func (c *Config) HookTimeout() time.Duration {
	return parseDurationOr(c.Hooks.DefaultTimeout, 5*time.Second)
}

// StaleAfter returns how long an agent may stay active before it is reported stale.
func (c *Config) StaleAfter() time.Duration {
	return parseDurationOr(c.Orchestrator.StaleAfter, 30*time.Minute)
}

// SpawnGrace returns how long a dispatched agent may go unseen by the
// directory before it is considered lost.
func (c *Config) SpawnGrace() time.Duration {
	return parseDurationOr(c.Orchestrator.SpawnGrace, 15*time.Minute)
}

// CleanupAfter returns the age after which offline and unhealthy agents are dropped.
func (c *Config) CleanupAfter() time.Duration {
	return parseDurationOr(c.Orchestrator.CleanupAfter, 24*time.Hour)
}

// WorkflowFor returns the workflow file for a task type.
func (c *Config) WorkflowFor(taskType string) (string, bool) {
	wf, ok := c.Workflows[strings.ToLower(taskType)]
	return wf, ok
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// DefaultWorkflows maps the built-in task types to their agent workflows.
func DefaultWorkflows() map[string]string {
	return map[string]string{
		"development":   "development-agent.yml",
		"testing":       "testing-agent.yml",
		"security":      "security-agent.yml",
		"documentation": "documentation-agent.yml",
		"migration":     "migration-agent.yml",
		"monitoring":    "monitoring-agent.yml",
	}
}

// DefaultCapacity returns the default agent pool sizes per persona.
func DefaultCapacity() map[string]int {
	return map[string]int{
		"architect":   2,
		"frontend":    2,
		"backend":     2,
		"security":    1,
		"performance": 1,
		"qa":          1,
		"devops":      1,
		"refactorer":  1,
		"scribe":      1,
	}
}

// GlobalConfigPath returns the user-wide config file path.
func GlobalConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agentrouter", "config.yaml")
}

// DefaultDBPath returns the default activity database path.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "agentrouter", "agentrouter.db")
}

// Load reads configuration from the working directory and the global path.
// A .env file in the working directory is loaded into the environment first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working dir: %w", err)
	}
	return LoadFromPaths(wd, GlobalConfigPath())
}

// LoadFromPaths reads globalPath, merges projectDir/agentrouter.yaml over it,
// then applies environment overrides and defaults. Missing files are not errors.
func LoadFromPaths(projectDir, globalPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := mergeFile(v, globalPath); err != nil {
		return nil, err
	}
	if projectDir != "" {
		if err := mergeFile(v, filepath.Join(projectDir, ProjectConfigName)); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.Telemetry.DashboardURL == "" {
		cfg.Telemetry.DashboardURL = os.Getenv(dashboardEnv)
	}
	if len(cfg.Workflows) == 0 {
		cfg.Workflows = DefaultWorkflows()
	}
	cfg.Telemetry.DBPath = ExpandPath(cfg.Telemetry.DBPath)
	cfg.Logging.Path = ExpandPath(cfg.Logging.Path)
	cfg.TD.Dir = ExpandPath(cfg.TD.Dir)

	return cfg, nil
}

func mergeFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("repository.owner", "")
	v.SetDefault("repository.name", "")
	v.SetDefault("repository.ref", DefaultRef)
	v.SetDefault("github.backlog_label", DefaultBacklogLabel)
	v.SetDefault("github.assigned_label", DefaultAssignedLabel)
	v.SetDefault("td.enabled", false)
	v.SetDefault("td.dir", "")
	v.SetDefault("hooks.default_timeout", DefaultHookTimeout)
	v.SetDefault("orchestrator.stale_after", DefaultStaleAfter)
	v.SetDefault("orchestrator.cleanup_after", DefaultCleanupAfter)
	v.SetDefault("orchestrator.spawn_grace", DefaultSpawnGrace)
	v.SetDefault("orchestrator.overflow", DefaultOverflow)
	v.SetDefault("orchestrator.capacity", DefaultCapacity())
	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.interval", "")
	v.SetDefault("telemetry.dashboard_url", "")
	v.SetDefault("telemetry.db_path", DefaultDBPath())
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.retention_days", DefaultRetentionDays)
}

// Validate checks cfg for inconsistent or malformed values.
// Empty fields are accepted; defaults fill them in at load time.
func Validate(cfg *Config) error {
	if cfg.Schedule.Cron != "" && cfg.Schedule.Interval != "" {
		return ErrCronAndInterval
	}
	if cfg.Schedule.Interval != "" {
		d, err := time.ParseDuration(cfg.Schedule.Interval)
		if err != nil || d <= 0 {
			return ErrInvalidInterval
		}
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "text":
	default:
		return ErrInvalidLogFormat
	}

	durations := map[string]string{
		"hooks.default_timeout":      cfg.Hooks.DefaultTimeout,
		"orchestrator.stale_after":   cfg.Orchestrator.StaleAfter,
		"orchestrator.cleanup_after": cfg.Orchestrator.CleanupAfter,
		"orchestrator.spawn_grace":   cfg.Orchestrator.SpawnGrace,
	}
	for key, raw := range durations {
		if raw == "" {
			continue
		}
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("%s %q: %w", key, raw, ErrInvalidDuration)
		}
	}

	switch strings.ToLower(cfg.Orchestrator.Overflow) {
	case "", OverflowQueue, OverflowFallback:
	default:
		return ErrInvalidOverflow
	}
	for name, n := range cfg.Orchestrator.Capacity {
		if n < 0 {
			return fmt.Errorf("capacity %s=%d: %w", name, n, ErrInvalidCapacity)
		}
	}

	return nil
}

// RequireRepository reports ErrMissingRepository unless owner and name are set.
// Commands that talk to GitHub call it; offline commands do not.
func RequireRepository(cfg *Config) error {
	if cfg.Repository.Slug() == "" {
		return ErrMissingRepository
	}
	return nil
}

// ExpandPath expands a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
