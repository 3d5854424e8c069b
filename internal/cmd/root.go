package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for doctest
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctest",
		Short: "Run the interactive examples embedded in documentation",
		Long: `Doctest finds transcript examples (">>> " prompts followed by their
expected output) in reStructuredText and Markdown documents, runs them
with a Go interpreter and reports every example whose output differs.

Examples in one document share a namespace and run in order; documents
run in parallel.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
		// main prints the error
		SilenceErrors: true,
	}

	// Add subcommands
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewWatchCommand())

	return cmd
}
