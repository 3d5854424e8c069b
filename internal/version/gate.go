// Package version decides whether a version satisfies a requirement such as
// ">=1.21, <2.0". It is used to skip examples that only hold on some
// releases.
package version

import (
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/blang/semver/v4"
)

var (
	// ErrInvalidRequirement is returned for a malformed requirement string.
	ErrInvalidRequirement = errors.New("invalid version requirement")
	// ErrInvalidVersion is returned for a version that cannot be parsed.
	ErrInvalidVersion = errors.New("invalid version")
)

var (
	clauseRe  = regexp.MustCompile(`^(==|!=|<=|>=|<|>)\s*(\S+)$`)
	versionRe = regexp.MustCompile(`^(?:go|v)?(\d+(?:\.\d+)*)(?:[-.]?(a|alpha|b|beta|rc|c)\.?(\d+)?)?$`)
)

// preRelease maps suffix spellings onto identifiers that sort a < b < rc.
var preRelease = map[string]string{
	"a":     "a",
	"alpha": "a",
	"b":     "b",
	"beta":  "b",
	"c":     "rc",
	"rc":    "rc",
}

// Operator is a comparison in a requirement clause.
type Operator string

// Supported operators
const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
)

// Clause is one "(operator, version)" pair.
type Clause struct {
	Op      Operator
	Version semver.Version
	Raw     string
}

// Requirement is a set of clauses that must all hold.
type Requirement []Clause

// Parse parses a comma-separated requirement. An empty string yields an
// empty requirement that allows every version.
func Parse(requirement string) (Requirement, error) {
	if strings.TrimSpace(requirement) == "" {
		return nil, nil
	}

	var req Requirement
	for _, part := range strings.Split(requirement, ",") {
		part = strings.TrimSpace(part)
		m := clauseRe.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("%w: %q is not a comparison clause", ErrInvalidRequirement, part)
		}
		v, err := Normalize(m[2])
		if err != nil {
			return nil, fmt.Errorf("%w: clause %q: %v", ErrInvalidRequirement, part, err)
		}
		req = append(req, Clause{Op: Operator(m[1]), Version: v, Raw: part})
	}
	return req, nil
}

// Allows reports whether v satisfies every clause.
func (r Requirement) Allows(v semver.Version) bool {
	for _, c := range r {
		if !c.holds(v) {
			return false
		}
	}
	return true
}

func (c Clause) holds(v semver.Version) bool {
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	}
	return false
}

// IsAllowed reports whether version satisfies requirement. A malformed
// requirement or version is an error, never silently allowed or denied.
func IsAllowed(version, requirement string) (bool, error) {
	req, err := Parse(requirement)
	if err != nil {
		return false, err
	}
	v, err := Normalize(version)
	if err != nil {
		return false, err
	}
	return req.Allows(v), nil
}

// Normalize converts dotted versions such as "3.3", "go1.22.3", "1.21rc2" or
// "v1.2.3-beta.1" into semantic versions. Missing components are zero and
// pre-release suffixes sort below the final release.
func Normalize(s string) (semver.Version, error) {
	s = strings.TrimSpace(s)
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		// Fall back to full semver syntax (build metadata, custom pre-releases).
		v, err := semver.ParseTolerant(s)
		if err != nil {
			return semver.Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		return v, nil
	}

	parts := strings.Split(m[1], ".")
	if len(parts) > 3 {
		return semver.Version{}, fmt.Errorf("%w: %q has more than three components", ErrInvalidVersion, s)
	}
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	canonical := strings.Join(parts, ".")
	if m[2] != "" {
		canonical += "-" + preRelease[m[2]]
		if m[3] != "" {
			canonical += "." + m[3]
		}
	}

	v, err := semver.Parse(canonical)
	if err != nil {
		return semver.Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	return v, nil
}

// Runtime returns the version of the running Go toolchain in the form
// Normalize accepts ("1.25.4"), or "0.0.0" for development builds.
func Runtime() string {
	v := runtime.Version()
	if _, err := Normalize(v); err != nil {
		return "0.0.0"
	}
	return strings.TrimPrefix(v, "go")
}
