// Package config loads the ppfinder YAML configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration loaded from config.yaml.
type Config struct {
	SongsDir    string      `yaml:"songs_dir"    json:"songs_dir"`
	Exclude     []string    `yaml:"exclude"      json:"exclude"`
	Schedule    string      `yaml:"schedule"     json:"schedule"`
	DBPath      string      `yaml:"db_path"      json:"-"`
	HTTPAddr    string      `yaml:"http_addr"    json:"-"`
	ScanWorkers ScanWorkers `yaml:"scan_workers" json:"scan_workers"`
	LogLevel    string      `yaml:"log_level"    json:"log_level"`
}

// ScanWorkers holds concurrency knobs for the scan pipeline.
type ScanWorkers struct {
	Walkers int `yaml:"walkers" json:"walkers"`
	Files   int `yaml:"files"   json:"files"`
	Compute int `yaml:"compute" json:"compute"`
}

// applyDefaults fills zero/empty fields with sensible defaults.
// An empty schedule disables periodic rescans.
func (c *Config) applyDefaults() {
	if c.DBPath == "" {
		c.DBPath = "ppfinder.db"
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.ScanWorkers.Walkers == 0 {
		c.ScanWorkers.Walkers = 4
	}
	if c.ScanWorkers.Files == 0 {
		c.ScanWorkers.Files = 16
	}
	if c.ScanWorkers.Compute == 0 {
		c.ScanWorkers.Compute = runtime.GOMAXPROCS(0)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", c.Schedule, err))
		}
	}
	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("exclude pattern %q is malformed", p))
		}
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	w := c.ScanWorkers
	if w.Walkers < 0 || w.Files < 0 || w.Compute < 0 {
		errs = append(errs, errors.New("scan_workers values must be positive"))
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps debug/info/warn/error to a slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// Load reads and parses the YAML config file at path.
// If the file does not exist, Load returns a default Config so the server
// can start without a config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %q: %w", path, err)
	}
	return &cfg, nil
}
