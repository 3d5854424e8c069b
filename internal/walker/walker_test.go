package walker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/doctest/internal/doctree"
	"github.com/harrison/doctest/internal/models"
	"github.com/harrison/doctest/internal/transcript"
	"github.com/harrison/doctest/internal/version"
)

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) LogWarn(message string) {
	l.warnings = append(l.warnings, message)
}

func walk(t *testing.T, name, src string, opts Options) (*models.Group, error) {
	t.Helper()
	root, err := doctree.Parse(name, []byte(src))
	require.NoError(t, err)
	if opts.Path == "" {
		opts.Path = name
	}
	return Walk(root, opts)
}

const rstDoc = `Guide
=====

.. doctest::
   :options: +ELLIPSIS

   >>> fmt.Println("a b c")
   a ...
   >>> fmt.Println("a b c") // doctest: -ELLIPSIS
   a b c

.. note::

   >>> inner
`

func TestWalk_RST(t *testing.T) {
	group, err := walk(t, "doc.rst", rstDoc, Options{})
	require.NoError(t, err)
	require.Len(t, group.Examples, 3)

	first := group.Examples[0]
	assert.Equal(t, 7, first.Line)
	assert.True(t, first.Flags.Has(models.Ellipsis), "directive option applies without an inline comment")
	assert.Equal(t, []string{"Guide"}, first.Section)
	assert.Equal(t, "doc.rst[0]", first.Block)

	second := group.Examples[1]
	assert.Equal(t, 9, second.Line)
	assert.False(t, second.Flags.Has(models.Ellipsis), "inline -ELLIPSIS wins over the directive")

	inner := group.Examples[2]
	assert.Equal(t, 14, inner.Line, "line resolved through the note body")
	assert.Equal(t, []string{"inner"}, inner.Source)
	assert.Equal(t, "doc.rst[1]", inner.Block)
	assert.Equal(t, models.FlagSet(0), inner.Flags)
}

func TestWalk_MarkdownNestedScopes(t *testing.T) {
	src := "# Intro\n" +
		"\n" +
		"::::{tab-set}\n" +
		":::{tab-item} Go\n" +
		"```{doctest}\n" +
		">>> 1 + 1\n" +
		"2\n" +
		"```\n" +
		":::\n" +
		"::::\n" +
		"\n" +
		"```{eval-rst}\n" +
		".. doctest:: labelled\n" +
		"\n" +
		"   >>> x\n" +
		"```\n"
	group, err := walk(t, "guide.md", src, Options{})
	require.NoError(t, err)
	require.Len(t, group.Examples, 2)

	assert.Equal(t, 6, group.Examples[0].Line)
	assert.Equal(t, "2\n", group.Examples[0].Want)
	assert.Equal(t, []string{"Intro"}, group.Examples[0].Section)

	assert.Equal(t, 15, group.Examples[1].Line)
	assert.Equal(t, "labelled", group.Examples[1].Block)
}

func TestWalk_ThreeShapes(t *testing.T) {
	src := "```doctest\n" +
		">>> a\n" +
		"```\n" +
		"\n" +
		"```{doctest}\n" +
		">>> b\n" +
		"```\n" +
		"\n" +
		"    >>> c\n" +
		"\n" +
		"```go\n" +
		"d := 1\n" +
		"```\n"
	group, err := walk(t, "shapes.md", src, Options{})
	require.NoError(t, err)

	var sources []string
	var lines []int
	for _, ex := range group.Examples {
		sources = append(sources, ex.Code())
		lines = append(lines, ex.Line)
	}
	assert.Equal(t, []string{"a", "b", "c"}, sources)
	assert.Equal(t, []int{2, 6, 9}, lines)
}

func TestWalk_EmptyDocument(t *testing.T) {
	group, err := walk(t, "empty.md", "# Nothing here\n\nJust prose.\n", Options{})
	require.NoError(t, err)
	assert.True(t, group.IsEmpty())
	assert.Equal(t, "empty.md", group.SourcePath)

	group, err = Walk(nil, Options{Path: "nil.md"})
	require.NoError(t, err)
	assert.True(t, group.IsEmpty())
}

func TestWalk_Defaults(t *testing.T) {
	group, err := walk(t, "d.rst", ">>> x\n", Options{Defaults: models.NewFlagSet(models.NormalizeWhitespace)})
	require.NoError(t, err)
	require.Len(t, group.Examples, 1)
	assert.True(t, group.Examples[0].Flags.Has(models.NormalizeWhitespace))
}

func TestWalk_VersionGate(t *testing.T) {
	tests := []struct {
		name     string
		req      string
		wantSkip bool
	}{
		{name: "allowed", req: ">=1.20, <2.0", wantSkip: false},
		{name: "too old", req: ">=99.0", wantSkip: true},
		{name: "pre-release boundary", req: "<1.22", wantSkip: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := ".. doctest::\n   :version: " + tt.req + "\n\n   >>> x\n"
			group, err := walk(t, "v.rst", src, Options{TargetVersion: "1.22rc1"})
			require.NoError(t, err)
			require.Len(t, group.Examples, 1)
			if tt.wantSkip {
				assert.Contains(t, group.Examples[0].SkipReason, "requires version")
			} else {
				assert.Empty(t, group.Examples[0].SkipReason)
			}
		})
	}
}

func TestWalk_MalformedVersionKeepsPartialGroup(t *testing.T) {
	src := ">>> first\n\n.. doctest::\n   :version: bogus\n\n   >>> second\n"
	group, err := walk(t, "bad.rst", src, Options{TargetVersion: "1.22"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, version.ErrInvalidRequirement))
	assert.Contains(t, err.Error(), "line 3")

	require.Len(t, group.Examples, 1)
	assert.Equal(t, []string{"first"}, group.Examples[0].Source)
}

func TestWalk_UnknownFlagOption(t *testing.T) {
	src := ".. doctest::\n   :options: +NOT_A_FLAG\n\n   >>> x\n"
	_, err := walk(t, "f.rst", src, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnknownFlag))
}

func TestWalk_TranscriptErrorKeepsPartialGroup(t *testing.T) {
	group, err := walk(t, "p.rst", ">>> a\n>>>b\n", Options{})
	var perr *transcript.ParseError
	require.True(t, errors.As(err, &perr), "got %v", err)
	assert.Equal(t, 2, perr.Line)
	require.Len(t, group.Examples, 1)
	assert.Equal(t, []string{"a"}, group.Examples[0].Source)
}

func TestWalk_SetupCleanupAndSkipIf(t *testing.T) {
	src := `.. testsetup::

   greeting := "hi"

.. doctest:: main
   :skipif: os.Getenv("CI") != ""
   :hide:
   :colour: blue

   >>> greeting
   "hi"

.. testcleanup::

   greeting = ""

.. testsetup::
   :version: >=99

   never := true
`
	log := &recordingLogger{}
	group, err := walk(t, "s.rst", src, Options{TargetVersion: "1.22", Logger: log})
	require.NoError(t, err)

	require.Len(t, group.Setup, 1, "version-gated setup is dropped")
	assert.Equal(t, "greeting := \"hi\"\n", group.Setup[0].Code)
	assert.Equal(t, 3, group.Setup[0].Line)

	require.Len(t, group.Cleanup, 1)
	assert.Equal(t, 15, group.Cleanup[0].Line)

	require.Len(t, group.Examples, 1)
	ex := group.Examples[0]
	assert.Equal(t, `os.Getenv("CI") != ""`, ex.SkipIf)
	assert.Equal(t, "main", ex.Block)
	assert.Equal(t, 10, ex.Line)

	require.Len(t, log.warnings, 2)
	assert.Contains(t, log.warnings[0], `unknown doctest option "colour"`)
	assert.Contains(t, log.warnings[1], "skipping testsetup")
}
