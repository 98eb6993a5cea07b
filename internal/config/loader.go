package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix      = "STEPWISE"
	envConfigPath  = "STEPWISE_CONFIG_PATH"
	appDirName     = "stepwise"
	configFileName = "stepwise.yaml"
)

// Loader handles configuration loading with Viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader with environment variable
// support already wired.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Load loads configuration from the first config file found in the priority
// order documented on the package, then applies environment overrides.
// A missing config file is not an error; defaults are used.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	path, err := l.findConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return l.unmarshal()
}

// LoadFromFile loads configuration from path, then applies environment
// overrides. The file type is taken from its extension.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.setDefaults()

	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return l.unmarshal()
}

// findConfigFile returns the config file to read, or "" when none exists.
// An explicit STEPWISE_CONFIG_PATH must exist.
func (l *Loader) findConfigFile() (string, error) {
	if path := os.Getenv(envConfigPath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("error reading config file: %w", err)
		}
		return path, nil
	}

	var candidates []string
	if p, err := DefaultConfigPath(); err == nil {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, configFileName)

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// setDefaults registers every scalar key so that environment overrides reach
// Unmarshal even when no config file mentions the key.
func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.v.SetDefault("station", d.Station)
	l.v.SetDefault("timer.interval", d.Timer.Interval)
	l.v.SetDefault("timer.warning_percent", d.Timer.WarningPercent)
	l.v.SetDefault("timer.critical_percent", d.Timer.CriticalPercent)
	l.v.SetDefault("tokens.pass", d.Tokens.Pass)
	l.v.SetDefault("tokens.fail", d.Tokens.Fail)
	l.v.SetDefault("snapshot.enabled", d.Snapshot.Enabled)
	l.v.SetDefault("snapshot.dir", d.Snapshot.Dir)
	l.v.SetDefault("snapshot.interval_ticks", d.Snapshot.IntervalTicks)
	l.v.SetDefault("log.level", d.Log.Level)
	l.v.SetDefault("log.format", d.Log.Format)
	l.v.SetDefault("log.file", d.Log.File)
	l.v.SetDefault("metrics.addr", d.Metrics.Addr)

	// Short aliases for the settings most often changed per bench.
	_ = l.v.BindEnv("snapshot.dir", "STEPWISE_SNAPSHOT_DIR", "STEPWISE_REPORT_DIR")
	_ = l.v.BindEnv("metrics.addr", "STEPWISE_METRICS_ADDR")
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail deep inside a
// session.
func (c *Config) Validate() error {
	var errs []error
	if c.Timer.Interval <= 0 {
		errs = append(errs, fmt.Errorf("timer.interval must be positive, got %s", c.Timer.Interval))
	}
	if c.Timer.CriticalPercent < 0 || c.Timer.WarningPercent > 100 || c.Timer.CriticalPercent > c.Timer.WarningPercent {
		errs = append(errs, fmt.Errorf("timer thresholds must satisfy 0 <= critical <= warning <= 100, got critical=%d warning=%d",
			c.Timer.CriticalPercent, c.Timer.WarningPercent))
	}
	if len(c.Roles) == 0 {
		errs = append(errs, errors.New("roles must define at least one role"))
	}
	if len(c.Tokens.Pass) == 0 || len(c.Tokens.Fail) == 0 {
		errs = append(errs, errors.New("tokens must list at least one pass and one fail spelling"))
	}
	if c.Snapshot.IntervalTicks < 0 {
		errs = append(errs, fmt.Errorf("snapshot.interval_ticks must not be negative, got %d", c.Snapshot.IntervalTicks))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := NewLoader().Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// ConfigDir returns the platform-standard configuration directory for
// stepwise.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}

// DefaultConfigPath returns the path of the config file in [ConfigDir].
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// EnsureConfigDir creates [ConfigDir] if it does not exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	return nil
}
