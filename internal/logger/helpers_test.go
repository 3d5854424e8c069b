package logger

import (
	"errors"
	"time"

	"github.com/harrison/doctest/internal/models"
	"github.com/harrison/doctest/internal/report"
	"github.com/harrison/doctest/internal/suite"
)

func passingDoc() suite.DocumentResult {
	ex := &models.Example{Line: 3, Block: "ok.md[0]", Source: []string{"x := 1"}}
	return suite.DocumentResult{
		Path: "ok.md",
		Summary: report.Summarize("ok.md", []models.Outcome{
			{Kind: models.OutcomePass, Example: ex},
			{Kind: models.OutcomePass, Example: ex},
			{Kind: models.OutcomeSkip, Example: ex, Detail: "SKIP flag"},
		}),
		Duration: time.Second,
	}
}

func failingDoc() suite.DocumentResult {
	ex := &models.Example{Line: 7, Block: "bad.md[1]", Source: []string{"1 + 1"}, Want: "3\n"}
	return suite.DocumentResult{
		Path: "bad.md",
		Summary: report.Summarize("bad.md", []models.Outcome{
			{Kind: models.OutcomeFail, Example: ex, Got: "2\n", Detail: "Expected:\n    3\nGot:\n    2\n"},
		}),
		Duration: 250 * time.Millisecond,
	}
}

func brokenDoc() suite.DocumentResult {
	return suite.DocumentResult{
		Path:    "broken.rst",
		Summary: report.Summarize("broken.rst", nil),
		Err:     &suite.DocumentError{Path: "broken.rst", Phase: suite.PhaseParse, Err: errors.New("unterminated fence")},
	}
}

func sampleResult() *suite.Result {
	return &suite.Result{
		Documents: []suite.DocumentResult{passingDoc(), failingDoc()},
		Duration:  90 * time.Second,
	}
}
