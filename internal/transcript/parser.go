// Package transcript splits interactive-session transcripts into examples.
//
// A transcript is a run of prompt lines (">>> "), continuation lines ("... ")
// and output lines:
//
//	>>> x := 40
//	>>> x + 2
//	42
//
// Output runs until a blank line, the next prompt or the end of the text. An
// output block whose first line is a traceback header expects an exception;
// only its summary line ("Type: message") is compared.
package transcript

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harrison/doctest/internal/models"
)

const (
	promptMarker       = ">>>"
	continuationMarker = "..."
	tabWidth           = 8
)

// DefaultTracebackHeaders are the header lines that open an expected
// exception block.
var DefaultTracebackHeaders = []string{
	"Traceback (most recent call last):",
	"Traceback (innermost last):",
}

var exceptionTypeRe = regexp.MustCompile(`^[A-Za-z_][\w.]*$`)

// Options controls how a transcript is turned into examples.
type Options struct {
	// Defaults is the module-wide flag set.
	Defaults models.FlagSet
	// Overrides holds the flags set by the enclosing directive.
	Overrides models.FlagOverrides
	// TracebackHeaders are accepted in addition to DefaultTracebackHeaders.
	TracebackHeaders []string
	// LineOffset is added to block-relative line numbers.
	LineOffset int
}

// ParseError reports a malformed transcript.
type ParseError struct {
	Line int    // Line of the offending text, already offset
	Msg  string // What is wrong
	Err  error  // Underlying cause, if any
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type state int

const (
	wantSource state = iota
	inSource
	wantOutput
)

// pending accumulates one example while the state machine runs.
type pending struct {
	line    int
	indent  int
	source  []string
	want    []string
	options models.FlagOverrides
}

// Parse splits text into examples in document order.
func Parse(text string, opts Options) ([]models.Example, error) {
	lines := splitLines(text)
	common := minIndent(lines)
	for i, line := range lines {
		if len(line) >= common {
			lines[i] = line[common:]
		} else {
			lines[i] = ""
		}
	}

	p := &parser{opts: opts, indent: common}
	for i, line := range lines {
		if err := p.feed(i+1, line); err != nil {
			return p.examples, err
		}
	}
	if err := p.finish(); err != nil {
		return p.examples, err
	}
	return p.examples, nil
}

type parser struct {
	opts     Options
	indent   int
	state    state
	cur      *pending
	examples []models.Example
}

func (p *parser) lineNo(rel int) int {
	return p.opts.LineOffset + rel
}

func (p *parser) feed(rel int, line string) error {
	trimmed := strings.TrimLeft(line, " ")
	ind := len(line) - len(trimmed)
	blank := strings.TrimSpace(line) == ""

	switch p.state {
	case wantSource:
		if strings.HasPrefix(trimmed, promptMarker) {
			return p.start(rel, ind, trimmed)
		}
		// Prose between examples is ignored.
		return nil

	case inSource:
		if ind == p.cur.indent && strings.HasPrefix(trimmed, continuationMarker) {
			body, err := p.afterMarker(rel, trimmed, continuationMarker)
			if err != nil {
				return err
			}
			return p.addSource(rel, body)
		}
		if strings.HasPrefix(trimmed, promptMarker) {
			if err := p.finish(); err != nil {
				return err
			}
			return p.start(rel, ind, trimmed)
		}
		if blank {
			return p.finish()
		}
		p.state = wantOutput
		p.addWant(line, ind)
		return nil

	case wantOutput:
		if blank {
			return p.finish()
		}
		if strings.HasPrefix(trimmed, promptMarker) {
			if err := p.finish(); err != nil {
				return err
			}
			return p.start(rel, ind, trimmed)
		}
		p.addWant(line, ind)
		return nil
	}
	return nil
}

func (p *parser) start(rel, ind int, trimmed string) error {
	body, err := p.afterMarker(rel, trimmed, promptMarker)
	if err != nil {
		return err
	}
	p.cur = &pending{line: rel, indent: ind}
	p.state = inSource
	return p.addSource(rel, body)
}

// afterMarker returns the text after a prompt marker, which must be followed
// by a space or the end of the line.
func (p *parser) afterMarker(rel int, trimmed, marker string) (string, error) {
	rest := trimmed[len(marker):]
	if rest == "" {
		return "", nil
	}
	if rest[0] != ' ' {
		return "", &ParseError{
			Line: p.lineNo(rel),
			Msg:  fmt.Sprintf("%q lacks blank after %s", trimmed, marker),
		}
	}
	return rest[1:], nil
}

func (p *parser) addSource(rel int, body string) error {
	stripped, inline, found, err := extractInline(body)
	if err != nil {
		return &ParseError{Line: p.lineNo(rel), Msg: "invalid inline option", Err: err}
	}
	if found {
		p.cur.options = p.cur.options.Merge(inline)
	}
	p.cur.source = append(p.cur.source, stripped)
	return nil
}

// addWant appends an output line with the example's own indentation removed.
// Lines indented less than the prompt are kept as they are.
func (p *parser) addWant(line string, ind int) {
	if ind >= p.cur.indent {
		line = line[p.cur.indent:]
	}
	p.cur.want = append(p.cur.want, line)
}

// finish turns the pending example into a record.
func (p *parser) finish() error {
	cur := p.cur
	p.cur = nil
	p.state = wantSource
	if cur == nil {
		return nil
	}

	if strings.TrimSpace(strings.Join(cur.source, "")) == "" {
		if !cur.options.IsZero() {
			return &ParseError{Line: p.lineNo(cur.line), Msg: "option directive on a line with no example"}
		}
	}

	ex := models.Example{
		Source: trimTrailingBlank(cur.source),
		Flags:  p.opts.Overrides.Merge(cur.options).Apply(p.opts.Defaults),
		Line:   p.lineNo(cur.line),
		Indent: p.indent + cur.indent,
	}

	if len(cur.want) > 0 && p.isTracebackHeader(cur.want[0]) {
		exc, err := parseSummary(cur.want[1:])
		if err != nil {
			return &ParseError{Line: p.lineNo(cur.line + len(cur.source)), Msg: err.Error()}
		}
		ex.Exception = exc
	} else if len(cur.want) > 0 {
		ex.Want = strings.Join(cur.want, "\n") + "\n"
	}

	p.examples = append(p.examples, ex)
	return nil
}

func (p *parser) isTracebackHeader(line string) bool {
	line = strings.TrimRight(line, " ")
	for _, h := range DefaultTracebackHeaders {
		if line == h {
			return true
		}
	}
	for _, h := range p.opts.TracebackHeaders {
		if line == strings.TrimSpace(h) {
			return true
		}
	}
	return false
}

// parseSummary finds the exception summary after a traceback header: the
// first unindented line that starts with a word character, through the end
// of the block. Frames before it are never inspected.
func parseSummary(body []string) (*models.ExpectedException, error) {
	start := -1
	for i, line := range body {
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}
		if isWordChar(line[0]) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("traceback has no exception summary line")
	}

	first := body[start]
	typ, msg, hasMsg := strings.Cut(first, ":")
	typ = strings.TrimSpace(typ)
	if !exceptionTypeRe.MatchString(typ) {
		return nil, fmt.Errorf("malformed exception summary %q", first)
	}
	if hasMsg {
		msg = strings.TrimPrefix(msg, " ")
	}

	rest := body[start+1:]
	if len(rest) > 0 {
		msg = strings.Join(append([]string{msg}, rest...), "\n")
	}
	return &models.ExpectedException{Type: typ, Message: msg}, nil
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func trimTrailingBlank(lines []string) []string {
	for len(lines) > 1 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// splitLines normalizes line endings, expands tabs and splits text.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.Contains(line, "\t") {
			lines[i] = expandTabs(line)
		}
	}
	return lines
}

func expandTabs(line string) string {
	var b strings.Builder
	col := 0
	for _, r := range line {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}

// minIndent returns the smallest indentation of any non-blank line.
func minIndent(lines []string) int {
	least := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ind := len(line) - len(strings.TrimLeft(line, " "))
		if least < 0 || ind < least {
			least = ind
		}
	}
	if least < 0 {
		return 0
	}
	return least
}
