package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the per-project directory holding configuration, logs and
// history.
const DirName = ".doctest"

// HomeEnv relocates the DirName directory.
const HomeEnv = "DOCTEST_HOME"

// GetHome returns the doctest home directory
// Priority order:
//  1. DOCTEST_HOME environment variable (if set)
//  2. DirName in the nearest ancestor holding DirName, go.mod or .git
//  3. DirName in the current working directory (fallback)
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return home, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	if root, ok := findProjectRoot(cwd); ok {
		return filepath.Join(root, DirName), nil
	}
	return filepath.Join(cwd, DirName), nil
}

// findProjectRoot walks up from dir to the first directory holding DirName,
// go.mod or .git.
func findProjectRoot(dir string) (string, bool) {
	current := dir
	for {
		for _, marker := range []string{DirName, "go.mod", ".git"} {
			if _, err := os.Stat(filepath.Join(current, marker)); err == nil {
				return current, true
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// ConfigPath returns the default configuration file inside home.
func ConfigPath(home string) string {
	return filepath.Join(home, "config.yaml")
}

// ResolvePaths rebases relative paths under DirName (the defaults) onto home
// so DOCTEST_HOME moves logs and history together with the configuration.
func (c *Config) ResolvePaths(home string) {
	c.LogDir = rebase(c.LogDir, home)
	c.History.DBPath = rebase(c.History.DBPath, home)
}

func rebase(path, home string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == DirName {
		return home
	}
	if rest, ok := strings.CutPrefix(clean, DirName+"/"); ok {
		return filepath.Join(home, filepath.FromSlash(rest))
	}
	return path
}
