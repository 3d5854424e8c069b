package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrison/doctest/internal/fileutil"
	"github.com/harrison/doctest/internal/models"
	"github.com/harrison/doctest/internal/version"
)

// HistoryConfig represents run history configuration
type HistoryConfig struct {
	// Enabled records every run in the history database
	Enabled bool `yaml:"enabled"`

	// DBPath is the path to the history database
	DBPath string `yaml:"db_path"`

	// KeepRuns is the number of runs kept after pruning (0 = keep all)
	KeepRuns int `yaml:"keep_runs"`
}

// Config represents doctest configuration options
type Config struct {
	// OptionFlags are the module-wide default flags (e.g. ELLIPSIS)
	OptionFlags []string `yaml:"option_flags"`

	// Include and Exclude are doublestar globs used during discovery
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`

	// MaxConcurrency is the maximum number of documents run in parallel (0 = NumCPU)
	MaxConcurrency int `yaml:"max_concurrency"`

	// Timeout is the wall-clock limit per document (0 = none)
	Timeout time.Duration `yaml:"timeout"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where run logs will be written
	LogDir string `yaml:"log_dir"`

	// TargetVersion is checked against version gates; empty means the running Go version
	TargetVersion string `yaml:"target_version"`

	// AutoImports are imported into every document namespace
	AutoImports []string `yaml:"auto_imports"`

	// TracebackHeaders are extra lines accepted as traceback headers
	TracebackHeaders []string `yaml:"traceback_headers"`

	// FailFast stops reporting after the first failing document
	FailFast bool `yaml:"fail_fast"`

	// History contains run history configuration
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		Include:        append([]string(nil), fileutil.DefaultInclude...),
		MaxConcurrency: 0,
		Timeout:        2 * time.Minute,
		LogLevel:       "info",
		LogDir:         filepath.Join(DirName, "logs"),
		AutoImports:    []string{"fmt"},
		History: HistoryConfig{
			Enabled:  true,
			DBPath:   filepath.Join(DirName, "history.db"),
			KeepRuns: 50,
		},
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Durations are read as strings so "2m" parses
	type yamlConfig struct {
		OptionFlags      []string      `yaml:"option_flags"`
		Include          []string      `yaml:"include"`
		Exclude          []string      `yaml:"exclude"`
		MaxConcurrency   int           `yaml:"max_concurrency"`
		Timeout          string        `yaml:"timeout"`
		LogLevel         string        `yaml:"log_level"`
		LogDir           string        `yaml:"log_dir"`
		TargetVersion    string        `yaml:"target_version"`
		AutoImports      []string      `yaml:"auto_imports"`
		TracebackHeaders []string      `yaml:"traceback_headers"`
		FailFast         bool          `yaml:"fail_fast"`
		History          HistoryConfig `yaml:"history"`
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if yamlCfg.OptionFlags != nil {
		cfg.OptionFlags = yamlCfg.OptionFlags
	}
	if yamlCfg.Include != nil {
		cfg.Include = yamlCfg.Include
	}
	if yamlCfg.Exclude != nil {
		cfg.Exclude = yamlCfg.Exclude
	}
	if yamlCfg.MaxConcurrency != 0 {
		cfg.MaxConcurrency = yamlCfg.MaxConcurrency
	}
	if yamlCfg.Timeout != "" {
		timeout, err := time.ParseDuration(yamlCfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format %q: %w", yamlCfg.Timeout, err)
		}
		cfg.Timeout = timeout
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}
	if yamlCfg.LogDir != "" {
		cfg.LogDir = yamlCfg.LogDir
	}
	if yamlCfg.TargetVersion != "" {
		cfg.TargetVersion = yamlCfg.TargetVersion
	}
	if yamlCfg.AutoImports != nil {
		cfg.AutoImports = yamlCfg.AutoImports
	}
	if yamlCfg.TracebackHeaders != nil {
		cfg.TracebackHeaders = yamlCfg.TracebackHeaders
	}
	if yamlCfg.FailFast {
		cfg.FailFast = true
	}

	// Nested keys are merged only when present, so "enabled: false" sticks
	var rawMap map[string]any
	if err := yaml.Unmarshal(data, &rawMap); err == nil {
		if section, ok := rawMap["history"].(map[string]any); ok {
			if _, exists := section["enabled"]; exists {
				cfg.History.Enabled = yamlCfg.History.Enabled
			}
			if _, exists := section["db_path"]; exists {
				cfg.History.DBPath = yamlCfg.History.DBPath
			}
			if _, exists := section["keep_runs"]; exists {
				cfg.History.KeepRuns = yamlCfg.History.KeepRuns
			}
		}
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .doctest/config.yaml in the specified directory
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, DirName, "config.yaml"))
}

// Flags carries CLI overrides. Nil fields leave the configuration alone.
type Flags struct {
	Options        []string
	MaxConcurrency *int
	Timeout        *time.Duration
	LogDir         *string
	LogLevel       *string
	FailFast       *bool
	NoHistory      *bool
	TargetVersion  *string
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
func (c *Config) MergeWithFlags(f Flags) {
	if len(f.Options) > 0 {
		c.OptionFlags = append(c.OptionFlags, f.Options...)
	}
	if f.MaxConcurrency != nil {
		c.MaxConcurrency = *f.MaxConcurrency
	}
	if f.Timeout != nil {
		c.Timeout = *f.Timeout
	}
	if f.LogDir != nil {
		c.LogDir = *f.LogDir
	}
	if f.LogLevel != nil {
		c.LogLevel = *f.LogLevel
	}
	if f.FailFast != nil {
		c.FailFast = *f.FailFast
	}
	if f.NoHistory != nil && *f.NoHistory {
		c.History.Enabled = false
	}
	if f.TargetVersion != nil {
		c.TargetVersion = *f.TargetVersion
	}
}

// DefaultFlags resolves OptionFlags into a flag set. Entries may be bare
// names or carry a + or - prefix; a later entry wins over an earlier one.
func (c *Config) DefaultFlags() (models.FlagSet, error) {
	var set models.FlagSet
	for _, entry := range c.OptionFlags {
		name := strings.ToUpper(strings.TrimSpace(entry))
		on := true
		switch {
		case strings.HasPrefix(name, "+"):
			name = name[1:]
		case strings.HasPrefix(name, "-"):
			name, on = name[1:], false
		}
		flag, err := models.LookupFlag(name)
		if err != nil {
			return 0, err
		}
		if on {
			set = set.With(flag)
		} else {
			set = set.Without(flag)
		}
	}
	return set, nil
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	if c.MaxConcurrency < 0 {
		return fmt.Errorf("max_concurrency must be >= 0, got %d", c.MaxConcurrency)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %v", c.Timeout)
	}

	if _, err := c.DefaultFlags(); err != nil {
		return fmt.Errorf("option_flags: %w", err)
	}

	if c.TargetVersion != "" {
		if _, err := version.Normalize(c.TargetVersion); err != nil {
			return fmt.Errorf("target_version: %w", err)
		}
	}

	if err := (fileutil.ScanOptions{Include: c.Include, Exclude: c.Exclude}).Validate(); err != nil {
		return err
	}

	if c.History.Enabled {
		if c.History.DBPath == "" {
			return fmt.Errorf("history.db_path cannot be empty when history is enabled")
		}
		if c.History.KeepRuns < 0 {
			return fmt.Errorf("history.keep_runs must be >= 0, got %d", c.History.KeepRuns)
		}
	}

	return nil
}
