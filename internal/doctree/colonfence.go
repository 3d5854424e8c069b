package doctree

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// KindColonFence is the goldmark node kind of a ":::{name}" block.
var KindColonFence = ast.NewNodeKind("ColonFence")

// ColonFence is a MyST colon-fenced directive:
//
//	:::{note}
//	body
//	:::
//
// The body is kept raw in Lines().
type ColonFence struct {
	ast.BaseBlock
	Info       string // text after the colons, e.g. "{note} Title"
	FenceStart int    // byte offset of the opening fence line
	fenceLen   int
}

// Kind implements ast.Node.
func (n *ColonFence) Kind() ast.NodeKind {
	return KindColonFence
}

// IsRaw implements ast.Node.
func (n *ColonFence) IsRaw() bool {
	return true
}

// Dump implements ast.Node.
func (n *ColonFence) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{"Info": n.Info}, nil)
}

type colonFenceParser struct{}

// NewColonFenceParser returns a goldmark block parser for colon fences.
func NewColonFenceParser() parser.BlockParser {
	return &colonFenceParser{}
}

func (b *colonFenceParser) Trigger() []byte {
	return []byte{':'}
}

func (b *colonFenceParser) Open(parent ast.Node, reader text.Reader, pc parser.Context) (ast.Node, parser.State) {
	line, segment := reader.PeekLine()
	pos := pc.BlockOffset()
	if pos < 0 || pos >= len(line) || line[pos] != ':' {
		return nil, parser.NoChildren
	}
	i := pos
	for i < len(line) && line[i] == ':' {
		i++
	}
	if i-pos < 3 {
		return nil, parser.NoChildren
	}
	info := strings.TrimSpace(string(line[i:]))
	if _, _, ok := parseDirectiveInfo(info); !ok {
		return nil, parser.NoChildren
	}
	node := &ColonFence{Info: info, FenceStart: segment.Start, fenceLen: i - pos}
	return node, parser.NoChildren
}

func (b *colonFenceParser) Continue(node ast.Node, reader text.Reader, pc parser.Context) parser.State {
	fence := node.(*ColonFence)
	line, segment := reader.PeekLine()
	if len(line) == 0 {
		return parser.Close
	}
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) >= fence.fenceLen && len(bytes.Trim(trimmed, ":")) == 0 {
		newline := 1
		if line[len(line)-1] != '\n' {
			newline = 0
		}
		reader.Advance(segment.Stop - segment.Start - newline + segment.Padding)
		return parser.Close
	}
	node.Lines().Append(segment)
	return parser.Continue | parser.NoChildren
}

func (b *colonFenceParser) Close(node ast.Node, reader text.Reader, pc parser.Context) {}

func (b *colonFenceParser) CanInterruptParagraph() bool {
	return true
}

func (b *colonFenceParser) CanAcceptIndentedLine() bool {
	return false
}
