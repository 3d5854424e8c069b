package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/doctest/internal/config"
	"github.com/harrison/doctest/internal/fileutil"
	"github.com/harrison/doctest/internal/suite"
)

// addConfigFlags registers the flags shared by every command that loads
// documents.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "Path to config file (default: .doctest/config.yaml)")
	cmd.Flags().StringArrayP("option", "o", nil, "Default option flag such as ELLIPSIS or -NORMALIZE_WHITESPACE (repeatable)")
	cmd.Flags().Int("max-concurrency", 0, "Maximum number of documents run in parallel (0 = number of CPUs)")
	cmd.Flags().String("timeout", "", "Time limit per document (e.g., 30s, 2m)")
	cmd.Flags().String("log-dir", "", "Directory for run logs")
	cmd.Flags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.Flags().String("target-version", "", "Go version checked by version gates (default: running Go)")
}

// loadConfig loads the configuration file, applies CLI overrides and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	home, err := config.GetHome()
	if err != nil {
		return nil, err
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		configPath = config.ConfigPath(home)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}
	cfg.ResolvePaths(home)

	flags, err := flagsFrom(cmd)
	if err != nil {
		return nil, err
	}
	cfg.MergeWithFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// flagsFrom collects the flags the user actually set.
func flagsFrom(cmd *cobra.Command) (config.Flags, error) {
	fs := cmd.Flags()
	var f config.Flags

	f.Options, _ = fs.GetStringArray("option")

	if fs.Changed("max-concurrency") {
		v, _ := fs.GetInt("max-concurrency")
		f.MaxConcurrency = &v
	}
	if fs.Changed("timeout") {
		s, _ := fs.GetString("timeout")
		timeout, err := time.ParseDuration(s)
		if err != nil {
			return f, fmt.Errorf("invalid timeout format %q: %w", s, err)
		}
		f.Timeout = &timeout
	}
	if fs.Changed("log-dir") {
		v, _ := fs.GetString("log-dir")
		f.LogDir = &v
	}
	if fs.Changed("log-level") {
		v, _ := fs.GetString("log-level")
		f.LogLevel = &v
	}
	if fs.Changed("target-version") {
		v, _ := fs.GetString("target-version")
		f.TargetVersion = &v
	}
	if fs.Changed("fail-fast") {
		v, _ := fs.GetBool("fail-fast")
		f.FailFast = &v
	}
	if fs.Changed("no-history") {
		v, _ := fs.GetBool("no-history")
		f.NoHistory = &v
	}
	return f, nil
}

// newSuite builds a suite from the merged configuration.
func newSuite(cfg *config.Config, fixtures map[string]any, log suite.Logger, onDocument func(suite.DocumentResult)) (*suite.Suite, error) {
	defaults, err := cfg.DefaultFlags()
	if err != nil {
		return nil, err
	}
	return suite.New(suite.Options{
		Defaults:         defaults,
		TargetVersion:    cfg.TargetVersion,
		TracebackHeaders: cfg.TracebackHeaders,
		AutoImports:      cfg.AutoImports,
		Fixtures:         fixtures,
		MaxConcurrency:   cfg.MaxConcurrency,
		Timeout:          cfg.Timeout,
		Logger:           log,
		OnDocument:       onDocument,
	}), nil
}

func scanOptions(cfg *config.Config) fileutil.ScanOptions {
	return fileutil.ScanOptions{Include: cfg.Include, Exclude: cfg.Exclude}
}

// discover resolves args into document paths. Walk errors below a
// directory are returned as warnings.
func discover(cfg *config.Config, args []string) ([]string, []error, error) {
	result, err := fileutil.Discover(args, scanOptions(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover documents: %w", err)
	}
	return result.Files, result.Errors, nil
}

// targets returns args, or the current directory when none were given.
func targets(args []string) []string {
	if len(args) == 0 {
		return []string{"."}
	}
	return args
}
