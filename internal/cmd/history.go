package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/doctest/internal/history"
	"github.com/harrison/doctest/internal/models"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Long: `Show recent runs recorded in the history database.

With --run, list the example results of one run instead.

Examples:
  doctest history
  doctest history --limit 3
  doctest history --run 6f1c2a9e-...`,
		Args: cobra.NoArgs,
		RunE: historyCommand,
	}

	cmd.Flags().String("config", "", "Path to config file (default: .doctest/config.yaml)")
	cmd.Flags().Int("limit", 10, "Number of runs to show")
	cmd.Flags().String("run", "", "Show the example results of this run")
	cmd.Flags().Bool("failures", false, "With --run, only show failing examples")

	return cmd
}

func historyCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runID, _ := cmd.Flags().GetString("run")
	failuresOnly, _ := cmd.Flags().GetBool("failures")
	out := cmd.OutOrStdout()

	if limit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", limit)
	}

	if _, err := os.Stat(cfg.History.DBPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	store, err := history.NewStore(cfg.History.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	if runID != "" {
		results, err := store.Results(cmd.Context(), runID)
		if err != nil {
			return err
		}
		return printRunResults(out, runID, results, failuresOnly)
	}

	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	printRuns(out, runs)
	return nil
}

func printRuns(w io.Writer, runs []*history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}

	fmt.Fprintf(w, "%-36s  %-19s  %8s  %5s  %5s  %5s  %5s  %s\n",
		"RUN ID", "STARTED", "DURATION", "DOCS", "PASS", "FAIL", "SKIP", "STATUS")
	for _, r := range runs {
		status := color.GreenString("PASSED")
		if !r.Success {
			status = color.RedString("FAILED")
		}
		fmt.Fprintf(w, "%-36s  %-19s  %8s  %5d  %5d  %5d  %5d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			roundDuration(r.Duration),
			r.Documents, r.Passed, r.Failed+r.Unexpected, r.Skipped,
			status)
	}
}

func printRunResults(w io.Writer, runID string, results []history.ExampleResult, failuresOnly bool) error {
	shown := 0
	for _, r := range results {
		failed := r.Kind == models.OutcomeFail || r.Kind == models.OutcomeUnexpected
		if failuresOnly && !failed {
			continue
		}
		line := fmt.Sprintf("%s:%d", r.Path, r.Line)
		if r.Block != "" {
			line += "  [" + r.Block + "]"
		}
		kind := strings.ToUpper(string(r.Kind))
		if failed {
			kind = color.RedString(kind)
		}
		line += "  " + kind
		if detail := firstLine(r.Detail); detail != "" {
			line += "  " + detail
		}
		fmt.Fprintln(w, line)
		shown++
	}
	if shown == 0 {
		fmt.Fprintf(w, "No example results recorded for run %s.\n", runID)
	}
	return nil
}

// roundDuration rounds sub-second durations to milliseconds and longer ones
// to seconds.
func roundDuration(d time.Duration) time.Duration {
	if d < time.Second {
		return d.Round(time.Millisecond)
	}
	return d.Round(time.Second)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
