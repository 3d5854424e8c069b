package transcript

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/doctest/internal/models"
)

func TestParse_Basic(t *testing.T) {
	text := `>>> x := 40
>>> x + 2
42
>>> fmt.Println("a")
... fmt.Println("b")
a
b
`
	examples, err := Parse(text, Options{})
	require.NoError(t, err)
	require.Len(t, examples, 3)

	assert.Equal(t, []string{"x := 40"}, examples[0].Source)
	assert.Equal(t, "", examples[0].Want)
	assert.Equal(t, 1, examples[0].Line)

	assert.Equal(t, []string{"x + 2"}, examples[1].Source)
	assert.Equal(t, "42\n", examples[1].Want)
	assert.Equal(t, 2, examples[1].Line)

	assert.Equal(t, []string{`fmt.Println("a")`, `fmt.Println("b")`}, examples[2].Source)
	assert.Equal(t, "a\nb\n", examples[2].Want)
	assert.Equal(t, 4, examples[2].Line)
}

func TestParse_BlankLineEndsOutput(t *testing.T) {
	text := ">>> f()\nout\n\nnot output\n>>> g()\n"
	examples, err := Parse(text, Options{})
	require.NoError(t, err)
	require.Len(t, examples, 2)
	assert.Equal(t, "out\n", examples[0].Want)
	assert.Equal(t, "", examples[1].Want)
	assert.Equal(t, 5, examples[1].Line)
}

func TestParse_UnterminatedExampleAtEnd(t *testing.T) {
	examples, err := Parse(">>> x\n1", Options{})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "1\n", examples[0].Want)
}

func TestParse_EmptyText(t *testing.T) {
	examples, err := Parse("", Options{})
	require.NoError(t, err)
	assert.Empty(t, examples)

	examples, err = Parse("just prose\nno prompts\n", Options{})
	require.NoError(t, err)
	assert.Empty(t, examples)
}

func TestParse_IndentStripped(t *testing.T) {
	flat := ">>> x\n1\n"
	indented := "    >>> x\n    1\n"

	a, err := Parse(flat, Options{})
	require.NoError(t, err)
	b, err := Parse(indented, Options{})
	require.NoError(t, err)

	require.Len(t, b, 1)
	assert.Equal(t, a[0].Source, b[0].Source)
	assert.Equal(t, a[0].Want, b[0].Want)
	assert.Equal(t, 4, b[0].Indent)
}

func TestParse_ExtraIndentPreserved(t *testing.T) {
	text := ">>> fmt.Println(\"  x\")\n  x\n"
	examples, err := Parse(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, "  x\n", examples[0].Want)
}

func TestParse_PromptNeedsBlank(t *testing.T) {
	_, err := Parse(">>>x\n", Options{LineOffset: 10})
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 11, perr.Line)
	assert.Contains(t, perr.Error(), "lacks blank")
}

func TestParse_BarePromptAllowed(t *testing.T) {
	examples, err := Parse(">>>\n", Options{})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, []string{""}, examples[0].Source)
}

func TestParse_Traceback(t *testing.T) {
	text := `>>> parse("x")
Traceback (most recent call last):
  ...
ValueError: bad input
`
	examples, err := Parse(text, Options{})
	require.NoError(t, err)
	require.Len(t, examples, 1)

	ex := examples[0]
	assert.Equal(t, "", ex.Want)
	require.NotNil(t, ex.Exception)
	assert.Equal(t, "ValueError", ex.Exception.Type)
	assert.Equal(t, "bad input", ex.Exception.Message)
}

func TestParse_TracebackFramesIgnored(t *testing.T) {
	text := `>>> run()
Traceback (most recent call last):
  File "main.go", line 3, in run
    whatever: this frame looks like a summary
runtime.Error: runtime error: index out of range [3] with length 1
`
	examples, err := Parse(text, Options{})
	require.NoError(t, err)
	require.NotNil(t, examples[0].Exception)
	assert.Equal(t, "runtime.Error", examples[0].Exception.Type)
	assert.Equal(t, "runtime error: index out of range [3] with length 1", examples[0].Exception.Message)
}

func TestParse_TracebackCustomHeader(t *testing.T) {
	text := ">>> boom()\ngoroutine trace:\npanic: boom\n"
	examples, err := Parse(text, Options{TracebackHeaders: []string{"goroutine trace:"}})
	require.NoError(t, err)
	require.NotNil(t, examples[0].Exception)
	assert.Equal(t, "panic", examples[0].Exception.Type)
	assert.Equal(t, "boom", examples[0].Exception.Message)
}

func TestParse_TracebackMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{name: "no summary", text: ">>> f()\nTraceback (most recent call last):\n  ...\n"},
		{name: "bad type", text: ">>> f()\nTraceback (most recent call last):\nnot a type: x\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text, Options{})
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
		})
	}
}

func TestParse_InlineFlags(t *testing.T) {
	text := `>>> fmt.Println("a b c")  // doctest: +ELLIPSIS
a ...
>>> fmt.Println("a b c") # doctest: -ELLIPSIS, +NORMALIZE_WHITESPACE
a  b  c
>>> fmt.Println("x")
x
`
	var directive models.FlagOverrides
	directive.Set(models.Ellipsis, true)

	examples, err := Parse(text, Options{Overrides: directive})
	require.NoError(t, err)
	require.Len(t, examples, 3)

	assert.Equal(t, []string{`fmt.Println("a b c")`}, examples[0].Source)
	assert.True(t, examples[0].Flags.Has(models.Ellipsis))

	assert.Equal(t, []string{`fmt.Println("a b c")`}, examples[1].Source)
	assert.False(t, examples[1].Flags.Has(models.Ellipsis))
	assert.True(t, examples[1].Flags.Has(models.NormalizeWhitespace))

	assert.True(t, examples[2].Flags.Has(models.Ellipsis), "directive flag applies without inline comment")
}

func TestParse_FlagLayers(t *testing.T) {
	defaults := models.NewFlagSet(models.NormalizeWhitespace, models.Ellipsis)
	var directive models.FlagOverrides
	directive.Set(models.NormalizeWhitespace, false)

	examples, err := Parse(">>> x // doctest: -ELLIPSIS\n", Options{Defaults: defaults, Overrides: directive})
	require.NoError(t, err)
	assert.Equal(t, models.FlagSet(0), examples[0].Flags)
}

func TestParse_UnknownInlineFlag(t *testing.T) {
	_, err := Parse(">>> x // doctest: +MADE_UP\n", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUnknownFlag))
}

func TestParse_OptionOnEmptyExample(t *testing.T) {
	_, err := Parse(">>> // doctest: +SKIP\n", Options{})
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Msg, "no example")
}

func TestParse_Tabs(t *testing.T) {
	examples, err := Parse("\t>>> x\n\t1\n", Options{})
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Equal(t, "1\n", examples[0].Want)
}

func TestParseOptionString(t *testing.T) {
	o, err := ParseOptionString("+ELLIPSIS, -NORMALIZE_WHITESPACE +SKIP")
	require.NoError(t, err)
	got := o.Apply(models.NewFlagSet(models.NormalizeWhitespace))
	assert.Equal(t, models.NewFlagSet(models.Ellipsis, models.Skip), got)

	_, err = ParseOptionString("ELLIPSIS")
	assert.ErrorContains(t, err, "missing '+' or '-'")

	o, err = ParseOptionString("")
	require.NoError(t, err)
	assert.True(t, o.IsZero())
}
