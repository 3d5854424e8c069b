// Package doctree is the parsed-document model the walker consumes, plus the
// adapters that build it from Markdown (goldmark) and reStructuredText.
//
// Line numbers on a node are relative. A node's Line is counted from the
// content origin of the nearest enclosing scope: the document itself, or a
// directive/container whose body was parsed separately. Sections do not open
// a scope. To get a document line, add up the origins while descending:
//
//	abs    = origin + node.Line
//	origin' = abs + node.BodyLine - 1   (for a scope-opening node)
package doctree

import (
	"fmt"
	"strings"
)

// Kind enumerates the node shapes an adapter can produce.
type Kind int

const (
	// KindDocument is the root node.
	KindDocument Kind = iota
	// KindSection is a titled section; Name holds the title.
	KindSection
	// KindDoctestBlock is a literal block whose text is a transcript.
	KindDoctestBlock
	// KindDirective is a named directive with a raw body in Text.
	KindDirective
	// KindCodeBlock is a fenced or literal code block; Name holds the language.
	KindCodeBlock
	// KindContainer wraps nodes parsed from a nested body (admonitions,
	// tabs, block quotes, embedded reST). It opens a new line scope.
	KindContainer
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindSection:
		return "section"
	case KindDoctestBlock:
		return "doctest_block"
	case KindDirective:
		return "directive"
	case KindCodeBlock:
		return "code_block"
	case KindContainer:
		return "container"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Node is one element of a parsed document.
type Node struct {
	Kind     Kind
	Name     string            // section title, directive name or code language
	Args     string            // directive arguments
	Options  map[string]string // directive options
	Text     string            // raw body text of leaf nodes
	Line     int               // 1-based line relative to the enclosing scope
	BodyLine int               // offset from Line to the first line of Text or Children
	Children []*Node
}

// OpensScope reports whether the node's children are numbered relative to
// the node's own body.
func (n *Node) OpensScope() bool {
	return n.Kind == KindContainer || (n.Kind == KindDirective && len(n.Children) > 0)
}

// Option returns a directive option and whether it was present.
func (n *Node) Option(name string) (string, bool) {
	if n.Options == nil {
		return "", false
	}
	v, ok := n.Options[name]
	return v, ok
}

// Append adds children to n.
func (n *Node) Append(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Find returns every node in the tree, in document order, for which match
// returns true.
func Find(root *Node, match func(*Node) bool) []*Node {
	var out []*Node
	var visit func(*Node)
	visit = func(n *Node) {
		if match(n) {
			out = append(out, n)
		}
		for _, c := range n.Children {
			visit(c)
		}
	}
	visit(root)
	return out
}

// Dump renders the tree for debugging and tests.
func Dump(root *Node) string {
	var b strings.Builder
	var visit func(*Node, int)
	visit = func(n *Node, depth int) {
		fmt.Fprintf(&b, "%s%s", strings.Repeat("  ", depth), n.Kind)
		if n.Name != "" {
			fmt.Fprintf(&b, " %q", n.Name)
		}
		fmt.Fprintf(&b, " line=%d", n.Line)
		if n.BodyLine != 0 {
			fmt.Fprintf(&b, " body=%d", n.BodyLine)
		}
		b.WriteString("\n")
		for _, c := range n.Children {
			visit(c, depth+1)
		}
	}
	visit(root, 0)
	return b.String()
}
