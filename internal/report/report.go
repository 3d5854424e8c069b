// Package report reduces the outcomes of one document into a summary and
// renders failure reports in text and JUnit XML form.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/harrison/doctest/internal/models"
)

const separator = "**********************************************************************"

// Summary is the reduced result of one document.
type Summary struct {
	Path       string
	Outcomes   []models.Outcome
	Pass       int
	Fail       int
	Unexpected int
	Skip       int

	// Attempted counts every example that was executed.
	Attempted int
	// Empty marks a document without examples. It still passes.
	Empty bool
	// FirstFailure indexes the first fail or unexpected-exception outcome, -1
	// when there is none.
	FirstFailure int
}

// Summarize counts outcomes per kind.
func Summarize(path string, outcomes []models.Outcome) Summary {
	s := Summary{Path: path, Outcomes: outcomes, Empty: len(outcomes) == 0, FirstFailure: -1}
	for i, o := range outcomes {
		switch o.Kind {
		case models.OutcomePass:
			s.Pass++
		case models.OutcomeFail:
			s.Fail++
		case models.OutcomeUnexpected:
			s.Unexpected++
		case models.OutcomeSkip:
			s.Skip++
		}
		if o.Failed() && s.FirstFailure < 0 {
			s.FirstFailure = i
		}
	}
	s.Attempted = len(outcomes) - s.Skip
	return s
}

// Passed reports the document verdict: no fail and no unexpected-exception
// outcomes. An empty document passes.
func (s Summary) Passed() bool {
	return s.Fail == 0 && s.Unexpected == 0
}

// Failures is the number of outcomes counting against the verdict.
func (s Summary) Failures() int {
	return s.Fail + s.Unexpected
}

// Total is the number of examples in the document.
func (s Summary) Total() int {
	return len(s.Outcomes)
}

// Status is a one-word verdict used by the console and JUnit output.
func (s Summary) Status() string {
	switch {
	case !s.Passed():
		return "FAILED"
	case s.Empty:
		return "EMPTY"
	case s.Attempted == 0:
		return "SKIPPED"
	default:
		return "PASSED"
	}
}

// FormatOptions controls Format.
type FormatOptions struct {
	// OnlyFirstFailure reports only the first failure of the document.
	OnlyFirstFailure bool
	// ShowSkips lists skipped examples with their reason.
	ShowSkips bool
	// Verbose includes the raised trace of unexpected exceptions.
	Verbose bool
}

// Format writes a report of every non-pass outcome followed by a totals line.
// Failures of examples carrying REPORT_ONLY_FIRST_FAILURE or FAIL_FAST are
// suppressed once one failure has been reported.
func Format(w io.Writer, s Summary, opts FormatOptions) error {
	var b strings.Builder
	reported := 0

	for _, o := range s.Outcomes {
		switch {
		case o.Failed():
			if reported > 0 && (opts.OnlyFirstFailure || onlyFirst(o.Example)) {
				continue
			}
			writeFailure(&b, s.Path, o, opts.Verbose)
			reported++
		case o.Kind == models.OutcomeSkip && opts.ShowSkips:
			b.WriteString(separator + "\n")
			b.WriteString(header(s.Path, o.Example))
			fmt.Fprintf(&b, "Skipped: %s\n", o.Detail)
		}
	}
	b.WriteString(totals(s))

	_, err := io.WriteString(w, b.String())
	return err
}

func onlyFirst(ex *models.Example) bool {
	return ex != nil && (ex.Flags.Has(models.ReportOnlyFirstFailure) || ex.Flags.Has(models.FailFast))
}

func writeFailure(b *strings.Builder, path string, o models.Outcome, verbose bool) {
	b.WriteString(separator + "\n")
	b.WriteString(header(path, o.Example))
	if o.Example != nil {
		b.WriteString("Failed example:\n")
		b.WriteString(indent(o.Example.Code()))
	}

	if o.Kind == models.OutcomeUnexpected {
		b.WriteString("Exception raised:\n")
		if verbose && o.Raised != nil && o.Raised.Trace != "" {
			b.WriteString(indent(strings.TrimRight(o.Raised.Trace, "\n")))
		}
		if o.Raised != nil {
			b.WriteString(indent(o.Raised.Summary()))
		} else {
			b.WriteString(indent(o.Detail))
		}
		return
	}
	b.WriteString(o.Detail)
	if !strings.HasSuffix(o.Detail, "\n") {
		b.WriteString("\n")
	}
}

func header(path string, ex *models.Example) string {
	if ex == nil {
		return fmt.Sprintf("File %q\n", path)
	}
	block := ex.Block
	if block == "" {
		block = path
	}
	return fmt.Sprintf("File %q, line %d, in %s\n", path, ex.Line, block)
}

func totals(s Summary) string {
	switch {
	case s.Empty:
		return fmt.Sprintf("%s: no examples\n", s.Path)
	case s.Passed():
		return fmt.Sprintf("%s: %d passed, %d skipped\n", s.Path, s.Pass, s.Skip)
	default:
		return fmt.Sprintf("%s\n%s: %d of %d examples failed (%d unexpected exceptions), %d skipped\n",
			separator, s.Path, s.Failures(), s.Attempted, s.Unexpected, s.Skip)
	}
}

func indent(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("    ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String()
}
