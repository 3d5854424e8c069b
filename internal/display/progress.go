package display

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// ProgressIndicator prints one line per collected document.
type ProgressIndicator struct {
	writer   io.Writer
	total    int
	current  int
	examples int
}

// NewProgressIndicator creates a progress indicator for total documents.
func NewProgressIndicator(w io.Writer, total int) *ProgressIndicator {
	return &ProgressIndicator{writer: w, total: total}
}

// Start displays the header message
func (p *ProgressIndicator) Start() {
	fmt.Fprintf(p.writer, "Collecting examples from %d %s:\n", p.total, plural(p.total, "document"))
}

// Step displays "[N/Total] path (k examples)" in cyan.
func (p *ProgressIndicator) Step(path string, examples int) {
	p.current++
	p.examples += examples
	line := fmt.Sprintf("  [%d/%d] %s (%d %s)", p.current, p.total, path, examples, plural(examples, "example"))
	fmt.Fprintln(p.writer, color.New(color.FgCyan).Sprint(line))
}

// Complete displays the totals after a green check mark.
func (p *ProgressIndicator) Complete() {
	fmt.Fprintf(p.writer, "%s Collected %d %s from %d %s\n",
		color.New(color.FgGreen).Sprint("✓"),
		p.examples, plural(p.examples, "example"),
		p.current, plural(p.current, "document"))
}

// DisplaySingleFile shows a short message when only one document is collected.
func DisplaySingleFile(w io.Writer, path string) {
	fmt.Fprintf(w, "Collecting examples from %s...\n", path)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
