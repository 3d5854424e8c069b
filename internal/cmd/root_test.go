package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/harrison/doctest/internal/config"
)

const passingDoc = "# Counter\n" +
	"\n" +
	"```doctest\n" +
	">>> x := 1\n" +
	">>> x + 1\n" +
	"2\n" +
	"```\n"

const failingDoc = "Math\n" +
	"====\n" +
	"\n" +
	">>> 1 + 1\n" +
	"3\n"

// writeDocs creates a directory holding the given documents.
func writeDocs(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range docs {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	return dir
}

// isolateHome points DOCTEST_HOME at a fresh directory so logs and history
// stay out of the repository.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)

	saved := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = saved })
	return home
}

// executeCommand runs the root command with args and returns stdout and
// stderr separately.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	rootCmd := NewRootCommand()
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	isolateHome(t)
	stdout, _, err := executeCommand(t, "--help")
	if err != nil {
		t.Fatalf("--help returned error: %v", err)
	}

	if !strings.Contains(stdout, "doctest") {
		t.Errorf("Help text should mention doctest, got: %s", stdout)
	}
	for _, sub := range []string{"run", "list", "history", "watch"} {
		if !strings.Contains(stdout, sub) {
			t.Errorf("Help text should list %q, got: %s", sub, stdout)
		}
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	if cmd.Use != "doctest" {
		t.Errorf("Expected Use to be 'doctest', got '%s'", cmd.Use)
	}
	if !cmd.SilenceUsage || !cmd.SilenceErrors {
		t.Error("root command should silence usage and errors")
	}

	want := map[string]bool{"run": false, "list": false, "history": false, "watch": false}
	for _, sub := range cmd.Commands() {
		if _, ok := want[sub.Name()]; ok {
			want[sub.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestVersionFlag(t *testing.T) {
	isolateHome(t)
	stdout, _, err := executeCommand(t, "--version")
	if err != nil {
		t.Fatalf("--version returned error: %v", err)
	}
	if !strings.Contains(stdout, Version) {
		t.Errorf("Version output should contain %q, got: %s", Version, stdout)
	}
}

func TestUnknownSubcommand(t *testing.T) {
	isolateHome(t)
	if _, _, err := executeCommand(t, "frobnicate"); err == nil {
		t.Error("expected error for unknown subcommand")
	}
}
