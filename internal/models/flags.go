package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownFlag is returned when a flag name is not part of the vocabulary.
var ErrUnknownFlag = errors.New("unknown doctest flag")

// Flag is a single comparison or behavior modifier.
type Flag uint32

// Flag vocabulary. Names are stable and matched exactly.
const (
	Ellipsis Flag = 1 << iota
	NormalizeWhitespace
	DontAcceptBlankline
	IgnoreExceptionDetail
	Skip
	FailFast
	ReportOnlyFirstFailure
	ReportUDiff
	ReportCDiff
	ReportNDiff
)

var flagNames = map[string]Flag{
	"ELLIPSIS":                  Ellipsis,
	"NORMALIZE_WHITESPACE":      NormalizeWhitespace,
	"DONT_ACCEPT_BLANKLINE":     DontAcceptBlankline,
	"IGNORE_EXCEPTION_DETAIL":   IgnoreExceptionDetail,
	"SKIP":                      Skip,
	"FAIL_FAST":                 FailFast,
	"REPORT_ONLY_FIRST_FAILURE": ReportOnlyFirstFailure,
	"REPORT_UDIFF":              ReportUDiff,
	"REPORT_CDIFF":              ReportCDiff,
	"REPORT_NDIFF":              ReportNDiff,
}

// LookupFlag returns the flag registered under name.
func LookupFlag(name string) (Flag, error) {
	f, ok := flagNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFlag, name)
	}
	return f, nil
}

// FlagNames returns every registered flag name in sorted order.
func FlagNames() []string {
	names := make([]string, 0, len(flagNames))
	for name := range flagNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns the registered name of a single flag.
func (f Flag) String() string {
	for name, v := range flagNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("Flag(%d)", uint32(f))
}

// FlagSet is a bit set of flags.
type FlagSet uint32

// NewFlagSet builds a set from individual flags.
func NewFlagSet(flags ...Flag) FlagSet {
	var s FlagSet
	for _, f := range flags {
		s |= FlagSet(f)
	}
	return s
}

// ParseFlagNames builds a set from a list of flag names (module defaults).
func ParseFlagNames(names []string) (FlagSet, error) {
	var s FlagSet
	for _, name := range names {
		f, err := LookupFlag(strings.ToUpper(strings.TrimSpace(name)))
		if err != nil {
			return 0, err
		}
		s |= FlagSet(f)
	}
	return s, nil
}

// Has reports whether f is set.
func (s FlagSet) Has(f Flag) bool {
	return s&FlagSet(f) != 0
}

// With returns a copy of s with f set.
func (s FlagSet) With(f Flag) FlagSet {
	return s | FlagSet(f)
}

// Without returns a copy of s with f cleared.
func (s FlagSet) Without(f Flag) FlagSet {
	return s &^ FlagSet(f)
}

// Names returns the names of all flags in the set, sorted.
func (s FlagSet) Names() []string {
	var names []string
	for name, f := range flagNames {
		if s.Has(f) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s FlagSet) String() string {
	if s == 0 {
		return "none"
	}
	return strings.Join(s.Names(), "|")
}

// FlagOverrides records explicit +FLAG / -FLAG settings from one layer.
// Mask holds every flag the layer mentions and Value holds the ones it
// turns on. Flags outside Mask fall through to the previous layer.
type FlagOverrides struct {
	Mask  FlagSet
	Value FlagSet
}

// Set records an explicit setting for f.
func (o *FlagOverrides) Set(f Flag, on bool) {
	o.Mask |= FlagSet(f)
	if on {
		o.Value |= FlagSet(f)
	} else {
		o.Value &^= FlagSet(f)
	}
}

// IsZero reports whether the layer sets nothing.
func (o FlagOverrides) IsZero() bool {
	return o.Mask == 0
}

// Apply returns base with the layer's explicit settings applied.
func (o FlagOverrides) Apply(base FlagSet) FlagSet {
	return (base &^ o.Mask) | (o.Value & o.Mask)
}

// Merge stacks next on top of o; next wins for every flag it mentions.
func (o FlagOverrides) Merge(next FlagOverrides) FlagOverrides {
	return FlagOverrides{
		Mask:  o.Mask | next.Mask,
		Value: (o.Value &^ next.Mask) | (next.Value & next.Mask),
	}
}
