package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harrison/doctest/internal/logger"
	"github.com/harrison/doctest/internal/models"
	"github.com/harrison/doctest/internal/report"
	"github.com/harrison/doctest/internal/suite"
)

func TestRunCommand_Basic(t *testing.T) {
	tests := []struct {
		name           string
		docs           map[string]string
		args           []string
		wantErr        bool
		wantErrContain string
		wantOut        []string
		wantErrOut     []string
	}{
		{
			name:    "passing document",
			docs:    map[string]string{"counter.md": passingDoc},
			args:    []string{"run"},
			wantOut: []string{"counter.md: 2 passed, 0 skipped", "=== Doctest Summary ===", "Passed: 2", "Documents: 1 (0 failed)"},
		},
		{
			name:           "failing document",
			docs:           map[string]string{"math.rst": failingDoc},
			args:           []string{"run"},
			wantErr:        true,
			wantErrContain: "1 of 1 document(s) failed",
			wantOut:        []string{"Failed example:", "1 + 1", "math.rst: 1 of 1 examples failed", "Failed: 1 (0 unexpected exceptions)"},
		},
		{
			name:    "option flag from command line",
			docs:    map[string]string{"greet.md": "```doctest\n>>> \"hello world\"\n\"hello...\"\n```\n"},
			args:    []string{"run", "-o", "ELLIPSIS"},
			wantOut: []string{"greet.md: 1 passed"},
		},
		{
			name:           "option flag missing",
			docs:           map[string]string{"greet.md": "```doctest\n>>> \"hello world\"\n\"hello...\"\n```\n"},
			args:           []string{"run"},
			wantErr:        true,
			wantErrContain: "document(s) failed",
		},
		{
			name:           "unknown option flag",
			docs:           map[string]string{"counter.md": passingDoc},
			args:           []string{"run", "-o", "NOT_A_FLAG"},
			wantErr:        true,
			wantErrContain: "invalid configuration",
		},
		{
			name:    "string fixture",
			docs:    map[string]string{"fixture.md": "```doctest\n>>> greeting + \"!\"\n\"hello!\"\n```\n"},
			args:    []string{"run", "--fixture", "greeting=hello"},
			wantOut: []string{"fixture.md: 1 passed"},
		},
		{
			name:           "malformed fixture",
			docs:           map[string]string{"counter.md": passingDoc},
			args:           []string{"run", "--fixture", "greeting"},
			wantErr:        true,
			wantErrContain: "expected name=value",
		},
		{
			name:           "invalid timeout",
			docs:           map[string]string{"counter.md": passingDoc},
			args:           []string{"run", "--timeout", "soon"},
			wantErr:        true,
			wantErrContain: "invalid timeout format",
		},
		{
			name:       "no documents",
			docs:       map[string]string{"notes.json": "{}"},
			args:       []string{"run"},
			wantErrOut: []string{"No documents found"},
		},
		{
			name:           "document that cannot be parsed",
			docs:           map[string]string{"bad.md": "```{doctest}\n:version: not-a-clause\n\n>>> 1\n1\n```\n"},
			args:           []string{"run"},
			wantErr:        true,
			wantErrContain: "1 of 1 document(s) failed",
			wantErrOut:     []string{"1 document could not be run", "bad.md (walk:"},
		},
		{
			name:           "missing config file",
			docs:           map[string]string{"counter.md": passingDoc},
			args:           []string{"run", "--config", "does-not-exist.yaml"},
			wantErr:        true,
			wantErrContain: "failed to load config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateHome(t)
			dir := writeDocs(t, tt.docs)

			stdout, stderr, err := executeCommand(t, append(tt.args, dir)...)

			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v\nstdout:\n%s\nstderr:\n%s", err, tt.wantErr, stdout, stderr)
			}
			if tt.wantErrContain != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErrContain)) {
				t.Errorf("error %v should contain %q", err, tt.wantErrContain)
			}
			for _, want := range tt.wantOut {
				if !strings.Contains(stdout, want) {
					t.Errorf("stdout missing %q:\n%s", want, stdout)
				}
			}
			for _, want := range tt.wantErrOut {
				if !strings.Contains(stderr, want) {
					t.Errorf("stderr missing %q:\n%s", want, stderr)
				}
			}
		})
	}
}

func TestRunCommand_ConfigFile(t *testing.T) {
	isolateHome(t)
	dir := writeDocs(t, map[string]string{
		"greet.md":         "```doctest\n>>> \"hello world\"\n\"hello...\"\n```\n",
		"drafts/broken.md": failingDoc,
	})
	cfgPath := filepath.Join(t.TempDir(), "doctest.yaml")
	cfgYAML := "option_flags: [ELLIPSIS]\nexclude: [\"drafts/**\"]\nhistory:\n  enabled: false\n"
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := executeCommand(t, "run", "--config", cfgPath, dir)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stdout)
	}
	if strings.Contains(stdout, "broken.md") {
		t.Errorf("excluded document was run:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Documents: 1 (0 failed)") {
		t.Errorf("unexpected summary:\n%s", stdout)
	}
}

func TestRunCommand_ExplicitFileBypassesGlobs(t *testing.T) {
	isolateHome(t)
	dir := writeDocs(t, map[string]string{"session.txt": ">>> 2 * 3\n6\n"})

	stdout, _, err := executeCommand(t, "run", filepath.Join(dir, "session.txt"))
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "session.txt: 1 passed") {
		t.Errorf("explicit document was not run:\n%s", stdout)
	}
}

func TestRunCommand_JUnitXML(t *testing.T) {
	isolateHome(t)
	dir := writeDocs(t, map[string]string{"counter.md": passingDoc, "math.rst": failingDoc})
	junitPath := filepath.Join(t.TempDir(), "reports", "junit.xml")

	stdout, _, err := executeCommand(t, "run", "--junit-xml", junitPath, dir)
	if err == nil {
		t.Fatal("expected failure from math.rst")
	}
	if !strings.Contains(stdout, "JUnit report written to "+junitPath) {
		t.Errorf("missing junit message:\n%s", stdout)
	}

	data, err := os.ReadFile(junitPath)
	if err != nil {
		t.Fatalf("junit report not written: %v", err)
	}
	xml := string(data)
	for _, want := range []string{"<testsuites", "counter.md", "math.rst", "<failure"} {
		if !strings.Contains(xml, want) {
			t.Errorf("junit report missing %q:\n%s", want, xml)
		}
	}
}

func TestRunCommand_FailFast(t *testing.T) {
	isolateHome(t)
	dir := writeDocs(t, map[string]string{"a.rst": failingDoc, "b.rst": failingDoc})

	stdout, _, err := executeCommand(t, "run", "--fail-fast", "--max-concurrency", "1", dir)
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := strings.Count(stdout, "Failed example:"); got != 1 {
		t.Errorf("expected one reported failure, got %d:\n%s", got, stdout)
	}
	if !strings.Contains(stdout, "Documents: 2 (2 failed)") {
		t.Errorf("summary should still count every document:\n%s", stdout)
	}
}

func TestRunCommand_LogsAndHistory(t *testing.T) {
	home := isolateHome(t)
	dir := writeDocs(t, map[string]string{"counter.md": passingDoc})

	if _, _, err := executeCommand(t, "run", dir); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, err := os.Lstat(filepath.Join(home, "logs", "latest.log")); err != nil {
		t.Errorf("latest.log not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "history.db")); err != nil {
		t.Errorf("history database not created: %v", err)
	}
}

func TestRunCommand_NoHistory(t *testing.T) {
	home := isolateHome(t)
	dir := writeDocs(t, map[string]string{"counter.md": passingDoc})

	if _, _, err := executeCommand(t, "run", "--no-history", dir); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, "history.db")); !os.IsNotExist(err) {
		t.Errorf("history database should not exist, stat err = %v", err)
	}
}

func TestRunCommand_LastFailed(t *testing.T) {
	isolateHome(t)
	dir := writeDocs(t, map[string]string{"counter.md": passingDoc, "math.rst": failingDoc})

	if _, _, err := executeCommand(t, "run", dir); err == nil {
		t.Fatal("expected first run to fail")
	}

	stdout, _, err := executeCommand(t, "run", "--last-failed", dir)
	if err == nil {
		t.Fatal("expected rerun of math.rst to fail")
	}
	if !strings.Contains(stdout, "Rerunning 1 document(s) that failed last time") {
		t.Errorf("missing rerun message:\n%s", stdout)
	}
	if !strings.Contains(stdout, "Documents: 1 (1 failed)") {
		t.Errorf("only the failed document should run:\n%s", stdout)
	}

	// Fix the document; the next --last-failed run passes and the one
	// after falls back to every document.
	if err := os.WriteFile(filepath.Join(dir, "math.rst"), []byte("Math\n====\n\n>>> 1 + 1\n2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := executeCommand(t, "run", "--last-failed", dir); err != nil {
		t.Fatalf("fixed document should pass: %v", err)
	}
	stdout, _, err = executeCommand(t, "run", "--last-failed", dir)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stdout, "Documents: 2 (0 failed)") {
		t.Errorf("expected fallback to all documents:\n%s", stdout)
	}
}

func TestRunCommand_LastFailedWithoutHistory(t *testing.T) {
	isolateHome(t)
	dir := writeDocs(t, map[string]string{"counter.md": passingDoc})

	stdout, _, err := executeCommand(t, "run", "--last-failed", dir)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(stdout, "No run history found") {
		t.Errorf("missing fallback message:\n%s", stdout)
	}
}

func TestParseFixtures(t *testing.T) {
	fixtures, err := parseFixtures([]string{"user=alice", "empty=", "expr=a=b"})
	if err != nil {
		t.Fatalf("parseFixtures error: %v", err)
	}
	want := map[string]any{"user": "alice", "empty": "", "expr": "a=b"}
	for k, v := range want {
		if fixtures[k] != v {
			t.Errorf("fixtures[%q] = %v, want %v", k, fixtures[k], v)
		}
	}

	if fixtures, err := parseFixtures(nil); err != nil || fixtures != nil {
		t.Errorf("parseFixtures(nil) = %v, %v", fixtures, err)
	}
	for _, bad := range []string{"novalue", "=x", " =x"} {
		if _, err := parseFixtures([]string{bad}); err == nil {
			t.Errorf("parseFixtures(%q) should fail", bad)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestPrintReports_LogsWriteErrors(t *testing.T) {
	isolateHome(t)
	outcome := models.Outcome{
		Kind:    models.OutcomeFail,
		Example: &models.Example{Source: []string{"1 + 1"}, Want: "3\n", Line: 4},
		Got:     "2\n",
	}
	result := &suite.Result{Documents: []suite.DocumentResult{{
		Path:    "math.rst",
		Summary: report.Summarize("math.rst", []models.Outcome{outcome}),
	}}}

	var logs bytes.Buffer
	printReports(failingWriter{}, logger.NewConsoleLogger(&logs, "info"), result, false, false)

	if !strings.Contains(logs.String(), "failed to write report for math.rst: disk full") {
		t.Errorf("write error not logged:\n%s", logs.String())
	}
}
