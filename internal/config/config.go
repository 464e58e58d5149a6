// Package config loads and persists ccmeter settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/theirongolddev/ccmeter/internal/source"
)

// Config holds all ccmeter configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	P90        P90Config        `toml:"p90"`
	Precision  PrecisionConfig  `toml:"precision"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// GeneralConfig holds the scan and refresh preferences.
type GeneralConfig struct {
	BasePaths              []string `toml:"base_paths,omitempty"`
	WindowDays             int      `toml:"window_days"`
	RefreshIntervalSeconds int      `toml:"refresh_interval_seconds"`
	SessionDurationHours   int      `toml:"session_duration_hours"`
	StrictUnknownModels    bool     `toml:"strict_unknown_models"`
	UseCache               bool     `toml:"use_cache"`
}

// P90Config holds the adaptive-limit estimator settings.
type P90Config struct {
	CommonLimits    []int64 `toml:"common_limits"`
	LimitThreshold  float64 `toml:"limit_threshold"`
	DefaultMinLimit int64   `toml:"default_min_limit"`
	CacheTTLSeconds int     `toml:"cache_ttl_seconds"`
}

// PrecisionConfig holds USD rounding decimals.
type PrecisionConfig struct {
	InternalDecimals int `toml:"internal_decimals"`
	DisplayDecimals  int `toml:"display_decimals"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			WindowDays:             7,
			RefreshIntervalSeconds: 8,
			SessionDurationHours:   5,
			UseCache:               true,
		},
		P90: P90Config{
			CommonLimits:    []int64{19000, 88000, 220000, 880000},
			LimitThreshold:  0.9,
			DefaultMinLimit: 44000,
			CacheTTLSeconds: 3600,
		},
		Precision: PrecisionConfig{
			InternalDecimals: 6,
			DisplayDecimals:  2,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ResolvedBasePaths returns the configured base paths, falling back to
// the standard log locations.
func (c Config) ResolvedBasePaths() []string {
	if len(c.General.BasePaths) > 0 {
		return c.General.BasePaths
	}
	return source.DefaultBasePaths()
}

// SessionDuration returns the block duration as a time.Duration.
func (c Config) SessionDuration() time.Duration {
	if c.General.SessionDurationHours <= 0 {
		return 5 * time.Hour
	}
	return time.Duration(c.General.SessionDurationHours) * time.Hour
}

// RefreshInterval returns the periodic refresh cadence.
func (c Config) RefreshInterval() time.Duration {
	if c.General.RefreshIntervalSeconds <= 0 {
		return 8 * time.Second
	}
	return time.Duration(c.General.RefreshIntervalSeconds) * time.Second
}

// Window returns the [start, end) analysis window ending at now.
func (c Config) Window(now time.Time) (time.Time, time.Time) {
	days := c.General.WindowDays
	if days <= 0 {
		days = 7
	}
	return now.AddDate(0, 0, -days), now
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ccmeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ccmeter")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
