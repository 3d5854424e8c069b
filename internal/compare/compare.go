// Package compare decides whether the output of an example matches what the
// transcript expected, and renders the difference when it does not.
package compare

import (
	"regexp"
	"strings"

	"github.com/harrison/doctest/internal/models"
)

// BlankLineMarker stands in for an empty output line inside a transcript.
const BlankLineMarker = "<BLANKLINE>"

// EllipsisMarker matches any run of characters when ELLIPSIS is set.
const EllipsisMarker = "..."

var (
	blanklineRe   = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(BlankLineMarker) + `[ \t]*$`)
	whitespaceRun = regexp.MustCompile(`(?m)^[ \t]+$`)
	dottedType    = regexp.MustCompile(`^(?:[A-Za-z_]\w*\.)+`)
)

// Match reports whether got satisfies want under flags.
func Match(got, want string, flags models.FlagSet) bool {
	got = normalizeNewline(got)
	want = normalizeNewline(want)

	if got == want {
		return true
	}

	if !flags.Has(models.DontAcceptBlankline) {
		want = blanklineRe.ReplaceAllString(want, "")
		got = whitespaceRun.ReplaceAllString(got, "")
		if got == want {
			return true
		}
	}

	if flags.Has(models.NormalizeWhitespace) {
		got = strings.Join(strings.Fields(got), " ")
		want = strings.Join(strings.Fields(want), " ")
		if got == want {
			return true
		}
	}

	if flags.Has(models.Ellipsis) {
		if ellipsisMatch(want, got) {
			return true
		}
	}

	return false
}

// MatchException reports whether the raised value satisfies the expected
// exception. The expected type must appear in the raised chain; the message is
// compared with Match unless IGNORE_EXCEPTION_DETAIL is set.
func MatchException(want *models.ExpectedException, got *models.Raised, flags models.FlagSet) bool {
	if want == nil || got == nil {
		return false
	}

	if flags.Has(models.IgnoreExceptionDetail) {
		short := dottedType.ReplaceAllString(want.Type, "")
		return got.Is(want.Type) || got.Is(short)
	}

	if !got.Is(want.Type) {
		return false
	}
	return Match(got.Message, want.Message, flags)
}

// normalizeNewline terminates non-empty text with a newline. Trailing blank
// lines are kept: they are part of the output.
func normalizeNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// ellipsisMatch splits want on the marker and finds every piece in got in
// order. The first piece anchors the start, the last anchors the end.
func ellipsisMatch(want, got string) bool {
	if !strings.Contains(want, EllipsisMarker) {
		return want == got
	}

	pieces := strings.Split(want, EllipsisMarker)
	first, last := pieces[0], pieces[len(pieces)-1]

	startPos, endPos := 0, len(got)
	if first != "" {
		if !strings.HasPrefix(got, first) {
			return false
		}
		startPos = len(first)
	}
	if last != "" {
		if !strings.HasSuffix(got, last) {
			return false
		}
		endPos = len(got) - len(last)
	}
	// The anchors must not overlap.
	if startPos > endPos {
		return false
	}

	for _, piece := range pieces[1 : len(pieces)-1] {
		idx := strings.Index(got[startPos:endPos], piece)
		if idx < 0 {
			return false
		}
		startPos += idx + len(piece)
	}
	return true
}
