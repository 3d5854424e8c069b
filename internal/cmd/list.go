package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/doctest/internal/display"
	"github.com/harrison/doctest/internal/logger"
	"github.com/harrison/doctest/internal/models"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [paths...]",
		Short: "List the examples in documents without running them",
		Long: `List every example found in the given documents or directories.

Each line shows the example location, its enclosing section titles, the
block it belongs to and its first source line. Nothing is executed.
Progress is written to stderr so the listing can be piped.

Examples:
  doctest list docs/
  doctest list README.md | grep Install`,
		RunE: listCommand,
	}

	addConfigFlags(cmd)
	return cmd
}

func listCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	paths, walkErrs, err := discover(cfg, args)
	if err != nil {
		return err
	}
	for _, walkErr := range walkErrs {
		fmt.Fprintf(errOut, "Warning: %v\n", walkErr)
	}
	if len(paths) == 0 {
		display.WarnNoDocuments(targets(args)).Display(errOut)
		return nil
	}

	s, err := newSuite(cfg, nil, logger.NewConsoleLogger(errOut, cfg.LogLevel), nil)
	if err != nil {
		return err
	}

	var progress *display.ProgressIndicator
	if len(paths) == 1 {
		display.DisplaySingleFile(errOut, paths[0])
	} else {
		progress = display.NewProgressIndicator(errOut, len(paths))
		progress.Start()
	}

	failed := 0
	for _, path := range paths {
		group, err := s.Collect(path)
		if progress != nil {
			progress.Step(path, len(group.Examples))
		}
		if err != nil {
			fmt.Fprintf(errOut, "Warning: %v\n", err)
			failed++
		}
		for i := range group.Examples {
			fmt.Fprintln(out, listLine(path, &group.Examples[i]))
		}
	}
	if progress != nil {
		progress.Complete()
	}

	if failed > 0 {
		return fmt.Errorf("%d document(s) could not be collected", failed)
	}
	return nil
}

// listLine renders "path:line  Section > Sub  [block]  first source line".
func listLine(path string, ex *models.Example) string {
	section := strings.Join(ex.Section, " > ")
	if section == "" {
		section = "-"
	}
	parts := []string{ex.Location(path), section}
	if ex.Block != "" {
		parts = append(parts, "["+ex.Block+"]")
	}
	if len(ex.Source) > 0 {
		first := strings.TrimSpace(ex.Source[0])
		if len(ex.Source) > 1 {
			first += " ..."
		}
		parts = append(parts, first)
	}
	if ex.SkipReason != "" {
		parts = append(parts, "(skip: "+ex.SkipReason+")")
	}
	return strings.Join(parts, "  ")
}
