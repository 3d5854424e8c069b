package display

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/harrison/doctest/internal/suite"
)

// Warning represents a user-facing warning message
type Warning struct {
	Title      string   // Main warning title
	Message    string   // Detailed explanation (optional)
	Files      []string // Related documents (optional)
	Suggestion string   // Action to take (optional)
}

// Display shows a formatted warning in yellow
func (w Warning) Display(out io.Writer) {
	var b strings.Builder

	b.WriteString("⚠️  Warning: ")
	b.WriteString(w.Title)
	b.WriteString("\n")

	if w.Message != "" {
		b.WriteString("    ")
		b.WriteString(w.Message)
		b.WriteString("\n")
	}

	if len(w.Files) > 0 {
		if len(w.Files) == 1 {
			b.WriteString("    Affected document:\n")
		} else {
			b.WriteString("    Affected documents:\n")
		}
		for i, file := range w.Files {
			fmt.Fprintf(&b, "      %d. %s\n", i+1, file)
		}
	}

	if w.Suggestion != "" {
		b.WriteString("    Suggestion:\n")
		b.WriteString("    ")
		b.WriteString(w.Suggestion)
		b.WriteString("\n")
	}

	fmt.Fprint(out, color.New(color.FgYellow).Sprint(b.String()))
}

// WarnDocumentErrors lists documents that stopped in the parse, walk or run
// phase. It returns nil when every document ran to completion.
func WarnDocumentErrors(result *suite.Result) *Warning {
	if result == nil {
		return nil
	}
	var files []string
	for _, doc := range result.Documents {
		var docErr *suite.DocumentError
		switch {
		case errors.As(doc.Err, &docErr):
			files = append(files, fmt.Sprintf("%s (%s: %v)", doc.Path, docErr.Phase, docErr.Err))
		case doc.Err != nil:
			files = append(files, fmt.Sprintf("%s (%v)", doc.Path, doc.Err))
		case doc.SetupErr != nil:
			files = append(files, fmt.Sprintf("%s (setup: %v)", doc.Path, doc.SetupErr))
		}
	}
	if len(files) == 0 {
		return nil
	}
	return &Warning{
		Title:      fmt.Sprintf("%d %s could not be run", len(files), plural(len(files), "document")),
		Files:      files,
		Suggestion: "Fix the documents above, then rerun them with `doctest run --last-failed`",
	}
}

// WarnNoDocuments reports that discovery matched nothing under paths.
func WarnNoDocuments(paths []string) Warning {
	return Warning{
		Title:      "No documents found",
		Message:    "Nothing matched the include globs under: " + strings.Join(paths, ", "),
		Suggestion: "Check include and exclude in .doctest/config.yaml",
	}
}
