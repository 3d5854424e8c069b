package doctree

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	directiveRe = regexp.MustCompile(`^\.\.\s+([A-Za-z][\w:.-]*)::(?:\s+(.*))?$`)
	bulletRe    = regexp.MustCompile(`^(?:[-*+]|\d+[.)]|#\.|\(\d+\))\s+`)
)

const adornmentChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// RSTParser builds a tree from the block structure of reStructuredText:
// sections, directives with options, literal blocks, doctest blocks, block
// quotes and list items. Inline markup is not interpreted.
type RSTParser struct{}

// NewRSTParser returns a reStructuredText parser.
func NewRSTParser() *RSTParser {
	return &RSTParser{}
}

// Parse reads a reStructuredText document.
func (p *RSTParser) Parse(r io.Reader) (*Node, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	children, err := p.scope(splitLines(string(content)))
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindDocument, Line: 1, Children: children}, nil
}

func (p *RSTParser) scope(lines []string) ([]*Node, error) {
	s := &rstScanner{parser: p, lines: lines, root: &Node{}}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.root.Children, nil
}

type rstScanner struct {
	parser *RSTParser
	lines  []string
	styles []string
	root   *Node
	stack  []sectionFrame
}

func (s *rstScanner) add(n *Node) {
	if len(s.stack) == 0 {
		s.root.Append(n)
		return
	}
	s.stack[len(s.stack)-1].node.Append(n)
}

func (s *rstScanner) run() error {
	i := 0
	for i < len(s.lines) {
		line := s.lines[i]
		var err error

		switch {
		case isBlank(line):
			i++

		case indentOf(line) > 0:
			i, err = s.blockQuote(i)

		case directiveRe.MatchString(line):
			i, err = s.directive(i)

		case line == ".." || strings.HasPrefix(line, ".. "):
			i = s.indentedEnd(i + 1)

		case strings.HasPrefix(line, ">>>"):
			end := s.paragraphEnd(i)
			s.add(&Node{Kind: KindDoctestBlock, Text: joinLines(s.lines[i:end]), Line: i + 1})
			i = end

		case s.isOverlineTitle(i):
			s.section("o"+line[:1], s.lines[i+1], i+1)
			i += 3

		case s.isUnderlineTitle(i):
			s.section("u"+s.lines[i+1][:1], line, i+1)
			i += 2

		case isAdornment(line):
			i++

		case bulletRe.MatchString(line):
			i, err = s.listItem(i)

		default:
			end := s.paragraphEnd(i)
			i = end
			if strings.HasSuffix(strings.TrimRight(s.lines[end-1], " "), "::") {
				i = s.literalBlock(end)
			}
		}

		if err != nil {
			return err
		}
	}
	return nil
}

func (s *rstScanner) section(style, title string, line int) {
	level := -1
	for idx, st := range s.styles {
		if st == style {
			level = idx
			break
		}
	}
	if level < 0 {
		s.styles = append(s.styles, style)
		level = len(s.styles) - 1
	}
	for len(s.stack) > 0 && s.stack[len(s.stack)-1].level >= level {
		s.stack = s.stack[:len(s.stack)-1]
	}
	sec := &Node{Kind: KindSection, Name: strings.TrimSpace(title), Line: line}
	s.add(sec)
	s.stack = append(s.stack, sectionFrame{level: level, node: sec})
}

func (s *rstScanner) isOverlineTitle(i int) bool {
	if i+2 >= len(s.lines) || !isAdornment(s.lines[i]) {
		return false
	}
	title, under := s.lines[i+1], s.lines[i+2]
	return !isBlank(title) && !isAdornment(title) && strings.TrimRight(under, " ") == strings.TrimRight(s.lines[i], " ")
}

func (s *rstScanner) isUnderlineTitle(i int) bool {
	if i+1 >= len(s.lines) || isAdornment(s.lines[i]) || !isAdornment(s.lines[i+1]) {
		return false
	}
	title := strings.TrimSpace(s.lines[i])
	return utf8.RuneCountInString(strings.TrimRight(s.lines[i+1], " ")) >= utf8.RuneCountInString(title)
}

func (s *rstScanner) directive(i int) (int, error) {
	m := directiveRe.FindStringSubmatch(s.lines[i])
	name, args := m[1], strings.TrimSpace(m[2])
	end := s.indentedEnd(i + 1)
	body := dedent(s.lines[i+1 : end])

	opts, content, consumed, err := splitDirectiveBody(body)
	if err != nil {
		return end, fmt.Errorf("line %d: directive %s: %w", i+1, name, err)
	}
	content, lead := trimLeadingBlank(content)
	n := &Node{
		Kind:     KindDirective,
		Name:     name,
		Args:     args,
		Options:  opts,
		Line:     i + 1,
		BodyLine: 1 + consumed + lead,
	}

	if IsLiteralDirective(name) {
		n.Text = joinLines(content)
	} else {
		n.Kind = KindContainer
		n.Children, err = s.parser.scope(content)
		if err != nil {
			return end, fmt.Errorf("line %d: %s: %w", i+1, name, err)
		}
	}
	s.add(n)
	return end, nil
}

func (s *rstScanner) blockQuote(i int) (int, error) {
	end := s.indentedEnd(i)
	children, err := s.parser.scope(dedent(s.lines[i:end]))
	if err != nil {
		return end, err
	}
	s.add(&Node{Kind: KindContainer, Name: "block_quote", Line: i + 1, Children: children})
	return end, nil
}

func (s *rstScanner) listItem(i int) (int, error) {
	line := s.lines[i]
	width := len(bulletRe.FindString(line))
	end := s.indentedEnd(i + 1)

	item := []string{line[width:]}
	for _, l := range s.lines[i+1 : end] {
		item = append(item, trimIndent(l, width))
	}
	children, err := s.parser.scope(item)
	if err != nil {
		return end, err
	}
	s.add(&Node{Kind: KindContainer, Name: "list_item", Line: i + 1, Children: children})
	return end, nil
}

// literalBlock consumes the indented block following a paragraph that ends
// in "::".
func (s *rstScanner) literalBlock(i int) int {
	j := i
	for j < len(s.lines) && isBlank(s.lines[j]) {
		j++
	}
	if j >= len(s.lines) || indentOf(s.lines[j]) == 0 {
		return i
	}
	end := s.indentedEnd(j)
	content := joinLines(dedent(s.lines[j:end]))
	kind := KindCodeBlock
	if startsWithPrompt(content) {
		kind = KindDoctestBlock
	}
	s.add(&Node{Kind: kind, Text: content, Line: j + 1})
	return end
}

// indentedEnd returns the index just past the run of blank or indented lines
// starting at start, not counting trailing blank lines.
func (s *rstScanner) indentedEnd(start int) int {
	j := start
	for j < len(s.lines) && (isBlank(s.lines[j]) || indentOf(s.lines[j]) > 0) {
		j++
	}
	for j > start && isBlank(s.lines[j-1]) {
		j--
	}
	return j
}

func (s *rstScanner) paragraphEnd(start int) int {
	j := start
	for j < len(s.lines) && !isBlank(s.lines[j]) {
		j++
	}
	return j
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " "))
}

func isAdornment(line string) bool {
	line = strings.TrimRight(line, " ")
	if len(line) < 3 || strings.HasPrefix(line, ">>>") {
		return false
	}
	c := line[0]
	if !strings.ContainsRune(adornmentChars, rune(c)) {
		return false
	}
	return strings.Count(line, line[:1]) == len(line)
}

func dedent(lines []string) []string {
	least := -1
	for _, l := range lines {
		if isBlank(l) {
			continue
		}
		if ind := indentOf(l); least < 0 || ind < least {
			least = ind
		}
	}
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = trimIndent(l, least)
	}
	return out
}

func trimIndent(line string, n int) string {
	if n <= 0 {
		return line
	}
	if ind := indentOf(line); ind < n {
		return line[ind:]
	}
	return line[n:]
}

func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		if strings.Contains(l, "\t") {
			lines[i] = expandTabs(l)
		}
	}
	return lines
}

func expandTabs(line string) string {
	var b strings.Builder
	col := 0
	for _, r := range line {
		if r == '\t' {
			n := 8 - col%8
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col++
	}
	return b.String()
}
