package doctesting

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeT records what check reports.
type fakeT struct {
	errors  []string
	fatal   string
	skipped string
}

func (f *fakeT) Helper() {}

func (f *fakeT) Error(args ...any) {
	f.errors = append(f.errors, fmt.Sprint(args...))
}

func (f *fakeT) Fatal(args ...any) {
	f.fatal = fmt.Sprint(args...)
}

func (f *fakeT) Skip(args ...any) {
	f.skipped = fmt.Sprint(args...)
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func checkDoc(t *testing.T, content string, opts ...Option) *fakeT {
	t.Helper()
	path := writeDoc(t, t.TempDir(), "doc.md", content)
	s, verbose, err := newSuite(opts)
	require.NoError(t, err)
	ft := &fakeT{}
	check(ft, s, path, verbose)
	return ft
}

func TestCheck_Passing(t *testing.T) {
	ft := checkDoc(t, "```doctest\n>>> x := 20\n>>> x * 2\n40\n```\n")
	assert.Empty(t, ft.errors)
	assert.Empty(t, ft.fatal)
	assert.Empty(t, ft.skipped)
}

func TestCheck_Failing(t *testing.T) {
	ft := checkDoc(t, "```doctest\n>>> 1 + 1\n3\n```\n")
	require.Len(t, ft.errors, 1)
	assert.Contains(t, ft.errors[0], "Failed example:")
	assert.Contains(t, ft.errors[0], "1 of 1 examples failed")
}

func TestCheck_EmptyDocumentSkipped(t *testing.T) {
	ft := checkDoc(t, "# Prose only\n\nNothing to run.\n")
	assert.Equal(t, "no examples", ft.skipped)
	assert.Empty(t, ft.errors)
}

func TestCheck_DocumentError(t *testing.T) {
	ft := checkDoc(t, "```{doctest}\n:version: not-a-clause\n\n>>> 1\n1\n```\n")
	assert.Contains(t, ft.fatal, "walk failed")
}

func TestCheck_Options(t *testing.T) {
	const doc = "```doctest\n>>> \"hello world\"\n\"hello...\"\n```\n"

	assert.Len(t, checkDoc(t, doc).errors, 1)
	assert.Empty(t, checkDoc(t, doc, WithFlags("ELLIPSIS")).errors)

	fixture := "```doctest\n>>> strings.ToUpper(name)\n\"ADA\"\n```\n"
	ft := checkDoc(t, fixture, WithFixtures(map[string]any{"name": "ada"}), WithAutoImports("fmt", "strings"))
	assert.Empty(t, ft.errors)
}

func TestNewSuite_UnknownFlag(t *testing.T) {
	_, _, err := newSuite([]Option{WithFlags("NOT_A_FLAG")})
	assert.Error(t, err)
}

func TestWithFixtures_Merges(t *testing.T) {
	var s settings
	WithFixtures(map[string]any{"a": 1})(&s)
	WithFixtures(map[string]any{"b": 2, "a": 3})(&s)
	assert.Equal(t, map[string]any{"a": 3, "b": 2}, s.fixtures)
}

func TestRunFile(t *testing.T) {
	path := writeDoc(t, t.TempDir(), "guide.md", "# Guide\n\n```doctest\n>>> len(\"abc\")\n3\n```\n")
	RunFile(t, path)
}

func TestRunGlob(t *testing.T) {
	dir := t.TempDir()
	writeDoc(t, dir, "a.md", "```doctest\n>>> 1 + 1\n2\n```\n")
	writeDoc(t, dir, "nested/b.rst", "Title\n=====\n\n>>> 2 * 2\n4\n")
	writeDoc(t, dir, "nested/empty.md", "No examples here.\n")

	pattern := filepath.ToSlash(dir) + "/**/*.{md,rst}"
	RunGlob(t, pattern)
}
