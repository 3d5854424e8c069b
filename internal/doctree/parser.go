package doctree

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format represents the markup language of a document
type Format int

const (
	// FormatUnknown represents an unknown or unsupported file format
	FormatUnknown Format = iota
	// FormatMarkdown represents a Markdown (.md, .markdown) document
	FormatMarkdown
	// FormatRST represents a reStructuredText (.rst, .rest, .txt) document
	FormatRST
)

// String returns the string representation of the Format
func (f Format) String() string {
	switch f {
	case FormatMarkdown:
		return "markdown"
	case FormatRST:
		return "rst"
	default:
		return "unknown"
	}
}

// Parser is the interface that all document adapters implement
type Parser interface {
	// Parse reads from an io.Reader and returns the document tree
	Parse(r io.Reader) (*Node, error)
}

// DetectFormat detects the markup format based on file extension
// Supported extensions:
//   - .md, .markdown, .myst -> FormatMarkdown
//   - .rst, .rest, .txt -> FormatRST
//   - all others -> FormatUnknown
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".markdown", ".myst":
		return FormatMarkdown
	case ".rst", ".rest", ".txt":
		return FormatRST
	default:
		return FormatUnknown
	}
}

// NewParser creates a new parser instance for the specified format
func NewParser(format Format) (Parser, error) {
	switch format {
	case FormatMarkdown:
		return NewMarkdownParser(), nil
	case FormatRST:
		return NewRSTParser(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %v", format)
	}
}

// Parse parses src using the format implied by name.
func Parse(name string, src []byte) (*Node, error) {
	format := DetectFormat(name)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .md, .markdown, .myst, .rst, .rest, .txt)", name)
	}
	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}
	return parser.Parse(bytes.NewReader(src))
}

// ParseFile detects the format of path, opens it and parses it.
func ParseFile(path string) (*Node, error) {
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, fmt.Errorf("unknown file format: %s (supported: .md, .markdown, .myst, .rst, .rest, .txt)", path)
	}

	parser, err := NewParser(format)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	root, err := parser.Parse(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return root, nil
}
