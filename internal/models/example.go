package models

import (
	"fmt"
	"strings"
)

// ExpectedException is the exception an example expects to raise, taken from
// the summary line of a traceback block.
type ExpectedException struct {
	Type    string // Type name, possibly package qualified (e.g. "runtime.Error")
	Message string // Message after "Type: ", empty when absent
}

// Summary renders the exception the way it appears in a transcript.
func (e ExpectedException) Summary() string {
	if e.Message == "" {
		return e.Type
	}
	return e.Type + ": " + e.Message
}

// Example is one input/expected-output unit extracted from a transcript.
type Example struct {
	Source     []string           // Statement lines with prompts and flag comments removed
	Want       string             // Expected output, "" when none is expected
	Exception  *ExpectedException // Expected exception, nil when output is expected
	Flags      FlagSet            // Effective flags after all layers were merged
	Line       int                // 1-based line in the originating document
	Indent     int                // Leading whitespace stripped from the region
	Section    []string           // Enclosing section titles, outermost first
	Block      string             // Label of the block the example came from
	SkipReason string             // Set when a version gate disabled the block
	SkipIf     string             // Go boolean expression; the example is skipped when it holds
}

// Code returns the source lines joined into one unit.
func (e *Example) Code() string {
	return strings.Join(e.Source, "\n")
}

// Location returns "path:line" for failure attribution.
func (e *Example) Location(path string) string {
	return fmt.Sprintf("%s:%d", path, e.Line)
}

// Snippet is raw setup or cleanup code attached to a document.
type Snippet struct {
	Code   string
	Line   int
	Block  string
	SkipIf string
}

// Group is the Document Example Group: every example of one document and the
// namespace they share. Groups never share a Globs map.
type Group struct {
	SourcePath string
	Examples   []Example
	Setup      []Snippet
	Cleanup    []Snippet
	Globs      map[string]any
}

// NewGroup creates an empty group for path with its own namespace seed.
func NewGroup(path string) *Group {
	return &Group{
		SourcePath: path,
		Examples:   []Example{},
		Globs:      make(map[string]any),
	}
}

// Seed copies fixture bindings into the group namespace.
func (g *Group) Seed(values map[string]any) {
	if g.Globs == nil {
		g.Globs = make(map[string]any, len(values))
	}
	for k, v := range values {
		g.Globs[k] = v
	}
}

// IsEmpty reports whether the document produced no examples.
func (g *Group) IsEmpty() bool {
	return len(g.Examples) == 0
}
