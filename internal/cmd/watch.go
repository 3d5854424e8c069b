package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/doctest/internal/logger"
	"github.com/harrison/doctest/internal/report"
	"github.com/harrison/doctest/internal/suite"
	"github.com/harrison/doctest/internal/watch"
)

// watchBatchWindow groups changes to several documents saved together into
// one rerun.
const watchBatchWindow = 100 * time.Millisecond

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [paths...]",
		Short: "Rerun documents whenever they change",
		Long: `Run the documents once, then watch them and rerun every document
that is saved until interrupted with Ctrl+C.

Directories are watched recursively and filtered by the include and
exclude globs of the configuration, so new documents are picked up too.

Examples:
  doctest watch docs/
  doctest watch -o ELLIPSIS README.md`,
		RunE: watchCommand,
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("verbose", false, "Show skipped examples and exception traces")
	cmd.Flags().StringArray("fixture", nil, "Bind name=value as a string in every document (repeatable)")

	return cmd
}

func watchCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	fixtureArgs, _ := cmd.Flags().GetStringArray("fixture")
	fixtures, err := parseFixtures(fixtureArgs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	log := logger.NewConsoleLogger(out, cfg.LogLevel)

	s, err := newSuite(cfg, fixtures, log, nil)
	if err != nil {
		return err
	}

	// Watch before the first run so saves made during it are not lost.
	w, err := watch.New(targets(args), scanOptions(cfg))
	if err != nil {
		return err
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths, walkErrs, err := discover(cfg, args)
	if err != nil {
		return err
	}
	for _, walkErr := range walkErrs {
		log.LogWarn(walkErr.Error())
	}

	opts := report.FormatOptions{ShowSkips: verbose, Verbose: verbose, OnlyFirstFailure: cfg.FailFast}
	rerun := func(paths []string) {
		runOnce(ctx, s, out, log, paths, opts)
	}
	if len(paths) > 0 {
		rerun(paths)
	}

	fmt.Fprintf(out, "Watching %s for changes (Ctrl+C to stop)...\n", strings.Join(targets(args), ", "))
	watchLoop(ctx, w.Events(), w.Errors(), log, rerun)
	fmt.Fprintln(out, "Stopped watching.")
	return nil
}

// runOnce runs paths and prints their reports followed by a one-line total.
func runOnce(ctx context.Context, s *suite.Suite, out io.Writer, log logger.Logger, paths []string, opts report.FormatOptions) {
	result, err := s.Run(ctx, paths)
	if err != nil {
		return
	}
	for _, doc := range result.Documents {
		if doc.Err != nil {
			log.LogError(doc.Err.Error())
			continue
		}
		if doc.SetupErr != nil {
			log.LogError(fmt.Sprintf("%s: %v", doc.Path, doc.SetupErr))
		}
		if err := report.Format(out, doc.Summary, opts); err != nil {
			log.LogError(fmt.Sprintf("failed to write report for %s: %v", doc.Path, err))
		}
	}
	pass, fail, unexpected, skip := result.Totals()
	log.LogInfo(fmt.Sprintf("%d passed, %d failed, %d unexpected, %d skipped in %d document(s)",
		pass, fail, unexpected, skip, len(result.Documents)))
}

// watchLoop collects change events and calls rerun with the documents that
// changed, batching events that arrive within watchBatchWindow of each
// other. It returns when ctx is done or the event channel closes.
func watchLoop(ctx context.Context, events <-chan watch.Event, errs <-chan error, log logger.Logger, rerun func([]string)) {
	pending := make(map[string]bool)
	var flush <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.LogWarn(fmt.Sprintf("watch error: %v", err))
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Op == watch.Removed {
				delete(pending, event.Path)
				log.LogInfo(fmt.Sprintf("%s removed", event.Path))
				continue
			}
			pending[event.Path] = true
			flush = time.After(watchBatchWindow)
		case <-flush:
			flush = nil
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			clear(pending)
			log.LogInfo(fmt.Sprintf("Change detected: %s", strings.Join(paths, ", ")))
			rerun(paths)
		}
	}
}
