package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/harrison/doctest/internal/config"
	"github.com/harrison/doctest/internal/display"
	"github.com/harrison/doctest/internal/filelock"
	"github.com/harrison/doctest/internal/history"
	"github.com/harrison/doctest/internal/logger"
	"github.com/harrison/doctest/internal/report"
	"github.com/harrison/doctest/internal/suite"
)

// historyLockTimeout bounds how long a run waits for a concurrent run to
// finish writing history.
const historyLockTimeout = 10 * time.Second

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run the examples in documents",
		Long: `Run every transcript example found in reST and Markdown documents.

Each path may be a document or a directory. Directories are searched
recursively for documents matching the include globs of the configuration
(by default *.md, *.markdown, *.myst, *.rst and *.rest). Documents named
explicitly are always run. Without paths the current directory is searched.

Documents run in parallel; examples within one document run in order and
share one namespace.

Configuration is loaded from .doctest/config.yaml if present.
CLI flags override configuration file settings.

Examples:
  doctest run                               # Every document below .
  doctest run README.md docs/               # A file and a directory
  doctest run -o ELLIPSIS -o NORMALIZE_WHITESPACE docs/
  doctest run --fail-fast --verbose docs/   # Stop reporting at the first failure
  doctest run --junit-xml report.xml        # Write a JUnit XML report
  doctest run --last-failed                 # Rerun what failed last time
  doctest run --fixture user=alice docs/    # Bind user = "alice" in every document`,
		RunE: runCommand,
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("fail-fast", false, "Stop reporting after the first failing document")
	cmd.Flags().Bool("verbose", false, "Show skipped examples, exception traces and progress")
	cmd.Flags().String("junit-xml", "", "Write a JUnit XML report to this path")
	cmd.Flags().Bool("last-failed", false, "Only run documents that failed in the previous run")
	cmd.Flags().Bool("no-history", false, "Do not record this run in the history database")
	cmd.Flags().StringArray("fixture", nil, "Bind name=value as a string in every document (repeatable)")

	return cmd
}

// runCommand implements the run command logic
func runCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	junitPath, _ := cmd.Flags().GetString("junit-xml")
	lastFailed, _ := cmd.Flags().GetBool("last-failed")
	fixtureArgs, _ := cmd.Flags().GetStringArray("fixture")

	fixtures, err := parseFixtures(fixtureArgs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	// Determine log level: verbose flag overrides config
	logLevel := cfg.LogLevel
	if verbose && logLevel != "trace" {
		logLevel = "debug"
	}
	consoleLog := logger.NewConsoleLogger(out, logLevel)
	fileLog, err := logger.NewFileLogger(cfg.LogDir, logLevel)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer fileLog.Close()
	log := logger.NewMultiLogger(consoleLog, fileLog)

	paths, walkErrs, err := discover(cfg, args)
	if err != nil {
		return err
	}
	for _, walkErr := range walkErrs {
		log.LogWarn(walkErr.Error())
	}
	if lastFailed {
		paths = selectLastFailed(cmd.Context(), cfg, paths, log)
	}
	if len(paths) == 0 {
		display.WarnNoDocuments(targets(args)).Display(errOut)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	finished := 0
	onDocument := func(doc suite.DocumentResult) {
		log.LogDocumentResult(doc)
		finished++
		if verbose {
			consoleLog.LogProgress(finished, len(paths))
		}
	}
	s, err := newSuite(cfg, fixtures, log, onDocument)
	if err != nil {
		return err
	}

	log.LogInfo(fmt.Sprintf("Running %d document(s)", len(paths)))
	startedAt := time.Now()
	result, runErr := s.Run(ctx, paths)

	printReports(out, log, result, cfg.FailFast, verbose)
	if w := display.WarnDocumentErrors(result); w != nil {
		w.Display(errOut)
	}
	log.LogSummary(result)

	if junitPath != "" {
		if err := report.WriteJUnit(junitPath, result.Summaries()); err != nil {
			return err
		}
		fmt.Fprintf(out, "JUnit report written to %s\n", junitPath)
	}

	if cfg.History.Enabled {
		runID, err := recordHistory(cmd.Context(), cfg, result, startedAt, invocation(cmd, args))
		if err != nil {
			log.LogWarn(fmt.Sprintf("failed to record run history: %v", err))
		} else {
			log.LogDebug(fmt.Sprintf("Recorded run %s", runID))
		}
	}

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	if !result.Passed() {
		return fmt.Errorf("%d of %d document(s) failed", result.FailedDocuments(), len(result.Documents))
	}
	return nil
}

// parseFixtures turns name=value arguments into string fixtures.
func parseFixtures(args []string) (map[string]any, error) {
	if len(args) == 0 {
		return nil, nil
	}
	fixtures := make(map[string]any, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid fixture %q: expected name=value", arg)
		}
		fixtures[name] = value
	}
	return fixtures, nil
}

// selectLastFailed narrows paths to the documents that failed in the most
// recent recorded run. Without a recorded failure among paths every path
// is kept.
func selectLastFailed(ctx context.Context, cfg *config.Config, paths []string, log logger.Logger) []string {
	if _, err := os.Stat(cfg.History.DBPath); err != nil {
		log.LogInfo("No run history found; running all documents")
		return paths
	}
	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		log.LogWarn(fmt.Sprintf("failed to open run history: %v", err))
		return paths
	}
	defer store.Close()

	failed, err := store.LastFailed(ctx)
	if err != nil {
		log.LogWarn(fmt.Sprintf("failed to read run history: %v", err))
		return paths
	}
	wanted := make(map[string]bool, len(failed))
	for _, p := range failed {
		wanted[absPath(p)] = true
	}

	var selected []string
	for _, p := range paths {
		if wanted[absPath(p)] {
			selected = append(selected, p)
		}
	}
	if len(selected) == 0 {
		log.LogInfo("No failures recorded in the last run; running all documents")
		return paths
	}
	log.LogInfo(fmt.Sprintf("Rerunning %d document(s) that failed last time", len(selected)))
	return selected
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// printReports writes the failure report of every document in order. With
// failFast only the first failing document is reported.
func printReports(w io.Writer, log logger.Logger, result *suite.Result, failFast, verbose bool) {
	opts := report.FormatOptions{
		OnlyFirstFailure: failFast,
		ShowSkips:        verbose,
		Verbose:          verbose,
	}
	for _, doc := range result.Documents {
		// Documents that never ran are listed by the warning instead.
		if doc.Err != nil && doc.Summary.Total() == 0 {
			continue
		}
		if err := report.Format(w, doc.Summary, opts); err != nil {
			log.LogError(fmt.Sprintf("failed to write report for %s: %v", doc.Path, err))
		}
		if failFast && !doc.Passed() {
			break
		}
	}
}

// recordHistory stores the run and prunes old runs while holding the
// history lock.
func recordHistory(ctx context.Context, cfg *config.Config, result *suite.Result, startedAt time.Time, args []string) (string, error) {
	var runID string
	err := filelock.WithLock(cfg.History.DBPath, historyLockTimeout, func() error {
		store, err := history.NewStore(cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		runID, err = store.RecordSuite(ctx, result, startedAt, args)
		if err != nil {
			return err
		}
		_, err = store.Prune(ctx, cfg.History.KeepRuns)
		return err
	})
	return runID, err
}

// invocation renders the command line stored with a run.
func invocation(cmd *cobra.Command, args []string) []string {
	parts := []string{cmd.Name()}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		parts = append(parts, fmt.Sprintf("--%s=%s", f.Name, f.Value.String()))
	})
	return append(parts, args...)
}
