package doctree

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// MarkdownParser builds a tree from CommonMark with MyST directive fences.
type MarkdownParser struct {
	markdown goldmark.Markdown
	rst      *RSTParser
}

// NewMarkdownParser returns a parser that understands ```{name} and
// :::{name} directive fences in addition to CommonMark.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{
		markdown: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithBlockParsers(util.Prioritized(NewColonFenceParser(), 750)),
			),
		),
		rst: NewRSTParser(),
	}
}

// Parse reads a Markdown document.
func (p *MarkdownParser) Parse(r io.Reader) (*Node, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	children, err := p.scope(content)
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindDocument, Line: 1, Children: children}, nil
}

// scope parses content and returns its top-level nodes numbered from the
// first line of content.
func (p *MarkdownParser) scope(content []byte) ([]*Node, error) {
	source := blankFrontmatter(content)
	doc := p.markdown.Parser().Parse(text.NewReader(source))

	b := &mdBuilder{
		parser: p,
		source: source,
		starts: lineStarts(source),
		root:   &Node{Kind: KindDocument},
	}
	if err := b.visitChildren(doc); err != nil {
		return nil, err
	}
	return b.root.Children, nil
}

type sectionFrame struct {
	level int
	node  *Node
}

type mdBuilder struct {
	parser *MarkdownParser
	source []byte
	starts []int
	root   *Node
	stack  []sectionFrame
	last   int
}

func (b *mdBuilder) parent() *Node {
	if len(b.stack) == 0 {
		return b.root
	}
	return b.stack[len(b.stack)-1].node
}

// lineOf maps a byte offset to a 1-based line number.
func (b *mdBuilder) lineOf(offset int) int {
	return sort.Search(len(b.starts), func(i int) bool { return b.starts[i] > offset })
}

func (b *mdBuilder) visitChildren(n ast.Node) error {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if err := b.visit(c); err != nil {
			return err
		}
	}
	return nil
}

func (b *mdBuilder) visit(n ast.Node) error {
	switch node := n.(type) {
	case *ast.Heading:
		line := b.last
		if node.Lines().Len() > 0 {
			line = b.lineOf(node.Lines().At(0).Start)
		}
		b.last = line
		for len(b.stack) > 0 && b.stack[len(b.stack)-1].level >= node.Level {
			b.stack = b.stack[:len(b.stack)-1]
		}
		sec := &Node{Kind: KindSection, Name: extractText(node, b.source), Line: line}
		b.parent().Append(sec)
		b.stack = append(b.stack, sectionFrame{level: node.Level, node: sec})

	case *ast.FencedCodeBlock:
		body := segmentLines(node.Lines(), b.source)
		var info string
		var line int
		switch {
		case node.Info != nil:
			info = string(node.Info.Segment.Value(b.source))
			line = b.lineOf(node.Info.Segment.Start)
		case len(body) > 0:
			line = b.lineOf(node.Lines().At(0).Start) - 1
		default:
			return nil
		}
		return b.fence(info, body, line)

	case *ColonFence:
		return b.fence(node.Info, segmentLines(node.Lines(), b.source), b.lineOf(node.FenceStart))

	case *ast.CodeBlock:
		if node.Lines().Len() == 0 {
			return nil
		}
		line := b.lineOf(node.Lines().At(0).Start)
		b.last = line
		body := joinLines(segmentLines(node.Lines(), b.source))
		kind := KindCodeBlock
		if startsWithPrompt(body) {
			kind = KindDoctestBlock
		}
		b.parent().Append(&Node{Kind: kind, Text: body, Line: line})

	case *ast.Blockquote, *ast.List, *ast.ListItem:
		return b.visitChildren(node)
	}
	return nil
}

// fence turns a fenced block into a directive, a doctest block or a plain
// code block. line is the line of the opening fence.
func (b *mdBuilder) fence(info string, body []string, line int) error {
	b.last = line
	name, args, ok := parseDirectiveInfo(info)
	if !ok {
		lang := info
		if fields := strings.Fields(info); len(fields) > 0 {
			lang = fields[0]
		}
		content := joinLines(body)
		kind := KindCodeBlock
		if lang != "doctest" && startsWithPrompt(content) {
			kind = KindDoctestBlock
		}
		b.parent().Append(&Node{Kind: kind, Name: lang, Text: content, Line: line, BodyLine: 1})
		return nil
	}

	opts, content, consumed, err := splitDirectiveBody(body)
	if err != nil {
		return fmt.Errorf("line %d: directive %s: %w", line, name, err)
	}
	content, lead := trimLeadingBlank(content)
	n := &Node{
		Kind:     KindDirective,
		Name:     name,
		Args:     args,
		Options:  opts,
		Line:     line,
		BodyLine: 1 + consumed + lead,
	}

	switch {
	case name == "eval-rst":
		n.Kind = KindContainer
		n.Children, err = b.parser.rst.scope(content)
		if err != nil {
			return fmt.Errorf("line %d: eval-rst: %w", line, err)
		}
	case IsLiteralDirective(name):
		n.Text = joinLines(content)
	default:
		n.Kind = KindContainer
		n.Children, err = b.parser.scope([]byte(joinLines(content)))
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", line, name, err)
		}
	}
	b.parent().Append(n)
	return nil
}

func extractText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

func segmentLines(lines *text.Segments, source []byte) []string {
	out := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, strings.TrimRight(string(seg.Value(source)), "\r\n"))
	}
	return out
}

func lineStarts(source []byte) []int {
	starts := []int{0}
	for i, c := range source {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// blankFrontmatter replaces a leading yaml front matter block with empty
// lines so that line numbers stay put.
func blankFrontmatter(content []byte) []byte {
	if !bytes.HasPrefix(content, []byte("---\n")) && !bytes.HasPrefix(content, []byte("---\r\n")) {
		return content
	}
	lines := bytes.SplitAfter(content, []byte("\n"))
	end := -1
	for i := 1; i < len(lines); i++ {
		if string(bytes.TrimSpace(lines[i])) == "---" {
			end = i
			break
		}
	}
	if end < 0 {
		return content
	}

	out := make([]byte, 0, len(content))
	for i, l := range lines {
		if i <= end {
			out = append(out, '\n')
			continue
		}
		out = append(out, l...)
	}
	return out
}
