package transcript

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harrison/doctest/internal/models"
)

// inlineOptionRe finds "# doctest: ..." and "// doctest: ..." comments at the
// end of a source line.
var inlineOptionRe = regexp.MustCompile(`[ \t]*(?:#|//)\s*doctest:\s*([^\n'"]*)$`)

// ParseOptionString parses a flag list such as "+ELLIPSIS, -SKIP". Entries
// are separated by commas or whitespace and each needs a + or - prefix.
func ParseOptionString(s string) (models.FlagOverrides, error) {
	var o models.FlagOverrides
	for _, opt := range strings.Fields(strings.ReplaceAll(s, ",", " ")) {
		if len(opt) < 2 || (opt[0] != '+' && opt[0] != '-') {
			return o, fmt.Errorf("missing '+' or '-' in %q", opt)
		}
		flag, err := models.LookupFlag(opt[1:])
		if err != nil {
			return o, err
		}
		o.Set(flag, opt[0] == '+')
	}
	return o, nil
}

// extractInline removes an inline option comment from a source line and
// returns the parsed settings. ok is false when the line has no comment.
func extractInline(line string) (stripped string, opts models.FlagOverrides, ok bool, err error) {
	loc := inlineOptionRe.FindStringSubmatchIndex(line)
	if loc == nil {
		return line, opts, false, nil
	}
	opts, err = ParseOptionString(line[loc[2]:loc[3]])
	if err != nil {
		return line, opts, true, err
	}
	return line[:loc[0]], opts, true, nil
}
