// Package walker turns a parsed document tree into a Document Example Group.
//
// Three node shapes carry transcripts: doctest blocks, "doctest" directives
// and code blocks tagged "doctest". "testsetup" and "testcleanup" directives
// contribute raw setup and cleanup code. Everything else is only descended
// into.
package walker

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/harrison/doctest/internal/doctree"
	"github.com/harrison/doctest/internal/models"
	"github.com/harrison/doctest/internal/transcript"
	"github.com/harrison/doctest/internal/version"
)

// Logger receives warnings about ignored directive options.
type Logger interface {
	LogWarn(message string)
}

// Options configures a walk.
type Options struct {
	// Path names the document in labels and messages.
	Path string
	// Defaults is the module-wide flag set.
	Defaults models.FlagSet
	// TargetVersion is checked against "version" options. Empty means the
	// running Go version.
	TargetVersion string
	// TracebackHeaders extends the transcript parser's traceback headers.
	TracebackHeaders []string
	// Logger may be nil.
	Logger Logger
}

// knownOptions are the directive options the walker understands. The
// presentation options are accepted and otherwise ignored.
var knownOptions = map[string]bool{
	"options":               true,
	"skipif":                true,
	"version":               true,
	"hide":                  true,
	"trim-doctest-flags":    true,
	"no-trim-doctest-flags": true,
}

// block carries what a directive contributes to the examples it holds.
type block struct {
	label      string
	overrides  models.FlagOverrides
	skipReason string
	skipIf     string
}

type walker struct {
	opts   Options
	target string
	group  *models.Group
	blocks int
}

// Walk collects every example, setup and cleanup snippet in root. On error
// the group holds everything collected before the failing block.
func Walk(root *doctree.Node, opts Options) (*models.Group, error) {
	w := &walker{
		opts:   opts,
		target: opts.TargetVersion,
		group:  models.NewGroup(opts.Path),
	}
	if w.target == "" {
		w.target = version.Runtime()
	}
	if root == nil {
		return w.group, nil
	}
	return w.group, w.visit(root, 0, nil)
}

// visit walks the children of n. origin is the number of document lines
// before the first line of n's scope.
func (w *walker) visit(n *doctree.Node, origin int, section []string) error {
	for _, c := range n.Children {
		if err := w.node(c, origin, section); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) node(n *doctree.Node, origin int, section []string) error {
	abs := origin + n.Line

	switch n.Kind {
	case doctree.KindSection:
		return w.visit(n, origin, append(slices.Clone(section), n.Name))

	case doctree.KindDoctestBlock:
		return w.transcript(n, abs, section, block{label: w.nextLabel("")})

	case doctree.KindCodeBlock:
		if n.Name != "doctest" {
			return nil
		}
		return w.transcript(n, abs, section, block{label: w.nextLabel("")})

	case doctree.KindDirective:
		switch n.Name {
		case "doctest", "testsetup", "testcleanup":
			b, err := w.directive(n, abs)
			if err != nil {
				return err
			}
			if n.Name == "doctest" {
				return w.transcript(n, abs, section, b)
			}
			w.snippet(n, abs, b)
			return nil
		}
		if n.OpensScope() {
			return w.visit(n, abs+n.BodyLine-1, section)
		}
		return nil

	case doctree.KindContainer:
		return w.visit(n, abs+n.BodyLine-1, section)
	}
	return nil
}

// directive reads the options of a doctest, testsetup or testcleanup
// directive.
func (w *walker) directive(n *doctree.Node, abs int) (block, error) {
	b := block{label: w.nextLabel(n.Args)}

	for _, name := range sortedKeys(n.Options) {
		if !knownOptions[name] {
			w.warn(fmt.Sprintf("%s:%d: ignoring unknown %s option %q", w.opts.Path, abs, n.Name, name))
		}
	}

	if raw, ok := n.Option("options"); ok {
		overrides, err := transcript.ParseOptionString(raw)
		if err != nil {
			return b, fmt.Errorf("line %d: %s directive: %w", abs, n.Name, err)
		}
		b.overrides = overrides
	}

	if req, ok := n.Option("version"); ok {
		allowed, err := version.IsAllowed(w.target, req)
		if err != nil {
			return b, fmt.Errorf("line %d: %s directive: %w", abs, n.Name, err)
		}
		if !allowed {
			b.skipReason = fmt.Sprintf("requires version %s (running %s)", req, w.target)
		}
	}

	if expr, ok := n.Option("skipif"); ok {
		b.skipIf = strings.TrimSpace(expr)
	}
	return b, nil
}

func (w *walker) transcript(n *doctree.Node, abs int, section []string, b block) error {
	examples, err := transcript.Parse(n.Text, transcript.Options{
		Defaults:         w.opts.Defaults,
		Overrides:        b.overrides,
		TracebackHeaders: w.opts.TracebackHeaders,
		LineOffset:       abs + n.BodyLine - 1,
	})
	for i := range examples {
		examples[i].Section = section
		examples[i].Block = b.label
		examples[i].SkipReason = b.skipReason
		examples[i].SkipIf = b.skipIf
	}
	w.group.Examples = append(w.group.Examples, examples...)
	if err != nil {
		return fmt.Errorf("%s: %w", b.label, err)
	}
	return nil
}

func (w *walker) snippet(n *doctree.Node, abs int, b block) {
	if b.skipReason != "" {
		w.warn(fmt.Sprintf("%s:%d: skipping %s: %s", w.opts.Path, abs, n.Name, b.skipReason))
		return
	}
	s := models.Snippet{
		Code:   n.Text,
		Line:   abs + n.BodyLine,
		Block:  b.label,
		SkipIf: b.skipIf,
	}
	if n.Name == "testsetup" {
		w.group.Setup = append(w.group.Setup, s)
	} else {
		w.group.Cleanup = append(w.group.Cleanup, s)
	}
}

// nextLabel names a block. The first comma-separated directive argument wins;
// "default" or no argument falls back to "<path>[<index>]".
func (w *walker) nextLabel(args string) string {
	idx := w.blocks
	w.blocks++
	label := strings.TrimSpace(strings.Split(args, ",")[0])
	if label == "" || label == "default" {
		return fmt.Sprintf("%s[%d]", w.opts.Path, idx)
	}
	return label
}

func (w *walker) warn(msg string) {
	if w.opts.Logger != nil {
		w.opts.Logger.LogWarn(msg)
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
