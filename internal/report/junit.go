package report

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/harrison/doctest/internal/filelock"
	"github.com/harrison/doctest/internal/models"
)

type junitSuites struct {
	XMLName  xml.Name     `xml:"testsuites"`
	Tests    int          `xml:"tests,attr"`
	Failures int          `xml:"failures,attr"`
	Errors   int          `xml:"errors,attr"`
	Skipped  int          `xml:"skipped,attr"`
	Suites   []junitSuite `xml:"testsuite"`
}

type junitSuite struct {
	Name     string      `xml:"name,attr"`
	Tests    int         `xml:"tests,attr"`
	Failures int         `xml:"failures,attr"`
	Errors   int         `xml:"errors,attr"`
	Skipped  int         `xml:"skipped,attr"`
	Cases    []junitCase `xml:"testcase"`
}

type junitCase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	File      string        `xml:"file,attr,omitempty"`
	Line      int           `xml:"line,attr,omitempty"`
	Failure   *junitMessage `xml:"failure,omitempty"`
	Error     *junitMessage `xml:"error,omitempty"`
	Skipped   *junitMessage `xml:"skipped,omitempty"`
}

type junitMessage struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Body    string `xml:",chardata"`
}

// JUnit encodes summaries as a JUnit XML document, one testsuite per
// document and one testcase per example.
func JUnit(summaries []Summary) ([]byte, error) {
	doc := junitSuites{}
	for _, s := range summaries {
		suite := junitSuite{
			Name:     s.Path,
			Tests:    s.Total(),
			Failures: s.Fail,
			Errors:   s.Unexpected,
			Skipped:  s.Skip,
			Cases:    make([]junitCase, 0, len(s.Outcomes)),
		}
		for _, o := range s.Outcomes {
			suite.Cases = append(suite.Cases, junitCaseFor(s.Path, o))
		}
		doc.Tests += suite.Tests
		doc.Failures += suite.Failures
		doc.Errors += suite.Errors
		doc.Skipped += suite.Skipped
		doc.Suites = append(doc.Suites, suite)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode junit report: %w", err)
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

func junitCaseFor(path string, o models.Outcome) junitCase {
	c := junitCase{Classname: path, File: path}
	if ex := o.Example; ex != nil {
		c.Line = ex.Line
		c.Name = fmt.Sprintf("%s:%d", ex.Block, ex.Line)
		if ex.Block == "" {
			c.Name = ex.Location(path)
		}
	}

	switch o.Kind {
	case models.OutcomeFail:
		c.Failure = &junitMessage{Message: firstLine(o.Detail), Type: string(o.Kind), Body: o.Detail}
	case models.OutcomeUnexpected:
		msg := &junitMessage{Message: o.Detail, Type: string(o.Kind), Body: o.Detail}
		if o.Raised != nil {
			msg.Message = o.Raised.Summary()
			msg.Type = o.Raised.Type
			msg.Body = strings.TrimSpace(o.Raised.Summary() + "\n" + o.Raised.Trace)
		}
		c.Error = msg
	case models.OutcomeSkip:
		c.Skipped = &junitMessage{Message: o.Detail}
	}
	return c
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// WriteJUnit writes the JUnit XML report for summaries to path under a file
// lock.
func WriteJUnit(path string, summaries []Summary) error {
	data, err := JUnit(summaries)
	if err != nil {
		return err
	}
	if err := filelock.LockAndWrite(path, data); err != nil {
		return fmt.Errorf("failed to write junit report %s: %w", path, err)
	}
	return nil
}
