// Package config provides configuration loading and management for stepwise.
//
// Configuration is loaded using Viper, supporting YAML config files and environment
// variable overrides. The package provides sensible defaults that work out of the
// box, with the ability to customize the timer, role capabilities, pass/fail
// tokens, snapshot persistence, logging, and metrics.
//
// Key types:
//   - [Config] is the root configuration container with all settings
//   - [Loader] handles Viper-based configuration loading
//   - [TimerConfig] sets the tick interval and severity thresholds
//   - [SnapshotConfig] controls the continuous report writer
//
// Configuration priority (highest to lowest):
//  1. Environment variables (STEPWISE_ prefix)
//  2. Config file specified by STEPWISE_CONFIG_PATH
//  3. User config directory (platform-standard):
//     - Linux: ~/.config/stepwise/stepwise.yaml
//     - macOS: ~/Library/Application Support/stepwise/stepwise.yaml
//     - Windows: %APPDATA%\stepwise\stepwise.yaml
//  4. ./stepwise.yaml
//  5. [DefaultConfig] defaults
package config

import (
	"time"

	"stepwise/internal/auth"
	"stepwise/internal/result"
	"stepwise/internal/timer"
)

// Config represents the root configuration structure.
//
// This is the main configuration container loaded by [Loader] and handed to
// the CLI, which passes each section to the component that needs it. Use
// [DefaultConfig] to get sensible defaults.
type Config struct {
	// Station identifies the test bench. It is recorded in session metadata
	// and in snapshot file names. The --station flag overrides it.
	Station string `mapstructure:"station"`

	// Timer contains countdown settings.
	Timer TimerConfig `mapstructure:"timer"`

	// Roles maps role names to their capabilities.
	// Keys are lower-case role names (e.g., "admin", "operator").
	Roles map[string]auth.Capabilities `mapstructure:"roles"`

	// Tokens lists the accepted spellings of pass/fail verdicts.
	Tokens result.Tokens `mapstructure:"tokens"`

	// Snapshot contains continuous report writer settings.
	Snapshot SnapshotConfig `mapstructure:"snapshot"`

	// Log contains structured logging settings.
	Log LogConfig `mapstructure:"log"`

	// Metrics contains Prometheus exposition settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// TimerConfig contains countdown settings.
type TimerConfig struct {
	// Interval is the tick period.
	// Default: 1s
	Interval time.Duration `mapstructure:"interval"`

	// WarningPercent is the share of budget remaining at or below which a
	// step is in the warning tier.
	// Default: 20
	WarningPercent int `mapstructure:"warning_percent"`

	// CriticalPercent is the share of budget remaining at or below which a
	// step is in the critical tier.
	// Default: 10
	CriticalPercent int `mapstructure:"critical_percent"`
}

// SnapshotConfig contains continuous report writer settings.
type SnapshotConfig struct {
	// Enabled controls whether session snapshots are written at all.
	// Default: true
	Enabled bool `mapstructure:"enabled"`

	// Dir is the directory snapshot files are written to.
	// Default: "reports"
	Dir string `mapstructure:"dir"`

	// IntervalTicks is the number of timer ticks between periodic writes.
	// Zero disables periodic writes; lifecycle events still write.
	// Default: 5
	IntervalTicks int `mapstructure:"interval_ticks"`
}

// LogConfig contains structured logging settings.
type LogConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	// Default: "INFO"
	Level string `mapstructure:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `mapstructure:"format"`

	// File is the log file path. Logs go to stderr when empty.
	// Default: "stepwise.log"
	File string `mapstructure:"file"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `mapstructure:"addr"`
}

// DefaultConfig returns a new [Config] with sensible defaults.
//
// The role table grants every capability to admin and developer and none to
// operator; the token table accepts English and Turkish spellings.
func DefaultConfig() *Config {
	th := timer.DefaultThresholds()

	roles := make(map[string]auth.Capabilities)
	for role, caps := range auth.DefaultTable() {
		roles[role.String()] = caps
	}

	return &Config{
		Timer: TimerConfig{
			Interval:        timer.DefaultInterval,
			WarningPercent:  th.WarningPercent,
			CriticalPercent: th.CriticalPercent,
		},
		Roles:  roles,
		Tokens: result.DefaultTokens(),
		Snapshot: SnapshotConfig{
			Enabled:       true,
			Dir:           "reports",
			IntervalTicks: 5,
		},
		Log: LogConfig{
			Level:  "INFO",
			Format: "json",
			File:   "stepwise.log",
		},
	}
}

// Thresholds returns the timer severity thresholds.
func (c *Config) Thresholds() timer.Thresholds {
	return timer.Thresholds{
		WarningPercent:  c.Timer.WarningPercent,
		CriticalPercent: c.Timer.CriticalPercent,
	}
}

// RoleTable returns the role capability table.
func (c *Config) RoleTable() auth.Table {
	t := make(auth.Table, len(c.Roles))
	for name, caps := range c.Roles {
		t[auth.Role(name)] = caps
	}
	return t
}
