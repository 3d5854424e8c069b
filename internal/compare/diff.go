package compare

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/harrison/doctest/internal/models"
)

// Difference renders how got differs from want. The report style follows the
// REPORT_* flags; without one it prints the expected and actual blocks.
func Difference(got, want string, flags models.FlagSet) string {
	if !flags.Has(models.DontAcceptBlankline) {
		got = markBlankLines(got)
	}

	gotLines := splitKeep(got)
	wantLines := splitKeep(want)

	// Diffs only help when there is more than one line on some side.
	if len(gotLines) > 2 || len(wantLines) > 2 {
		switch {
		case flags.Has(models.ReportUDiff):
			if d, err := unifiedDiff(wantLines, gotLines); err == nil {
				return "Differences (unified diff with -expected +actual):\n" + indent(d)
			}
		case flags.Has(models.ReportCDiff):
			if d, err := contextDiff(wantLines, gotLines); err == nil {
				return "Differences (context diff with expected followed by actual):\n" + indent(d)
			}
		case flags.Has(models.ReportNDiff):
			return "Differences (ndiff with -expected +actual):\n" + indent(lineDiff(want, got))
		}
	}

	var b strings.Builder
	if want != "" {
		b.WriteString("Expected:\n")
		b.WriteString(indent(want))
	} else {
		b.WriteString("Expected nothing\n")
	}
	if got != "" {
		b.WriteString("Got:\n")
		b.WriteString(indent(got))
	} else {
		b.WriteString("Got nothing\n")
	}
	return b.String()
}

// ExceptionDifference renders a mismatch between expected and raised
// exceptions.
func ExceptionDifference(want *models.ExpectedException, got *models.Raised) string {
	switch {
	case want != nil && got == nil:
		return fmt.Sprintf("expected exception %s, got no exception", want.Type)
	case want != nil && !got.Is(want.Type):
		return fmt.Sprintf("expected exception %s, got %s\n%s",
			want.Type, got.Type,
			Difference(got.Summary()+"\n", want.Summary()+"\n", 0))
	case want != nil:
		return "exception message differs\n" + Difference(got.Message+"\n", want.Message+"\n", 0)
	default:
		return "unexpected exception " + got.Summary()
	}
}

// markBlankLines shows empty and whitespace-only output lines as the blank
// line marker so they stay visible in the report.
func markBlankLines(s string) string {
	if s == "" {
		return s
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = BlankLineMarker
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func unifiedDiff(a, b []string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
}

func contextDiff(a, b []string) (string, error) {
	return difflib.GetContextDiffString(difflib.ContextDiff{
		A:        a,
		B:        b,
		FromFile: "expected",
		ToFile:   "actual",
		Context:  2,
	})
}

// lineDiff renders a line-oriented diff with "- ", "+ " and "  " prefixes.
func lineDiff(want, got string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(want, got)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
		}
	}
	return normalizeNewline(out.String())
}

func splitKeep(s string) []string {
	if s == "" {
		return nil
	}
	return difflib.SplitLines(normalizeNewline(s))
}

// indent prefixes every line with four spaces.
func indent(s string) string {
	s = normalizeNewline(s)
	if s == "" {
		return ""
	}
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString("    ")
		b.WriteString(line)
	}
	return b.String()
}
