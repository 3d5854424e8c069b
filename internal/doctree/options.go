package doctree

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var fieldOptionRe = regexp.MustCompile(`^:([A-Za-z][\w-]*):(?:\s+(.*))?$`)

// literalDirectives keep their body as raw text; every other directive is
// treated as a container whose body is parsed again.
var literalDirectives = map[string]bool{
	"doctest":        true,
	"testsetup":      true,
	"testcleanup":    true,
	"testcode":       true,
	"testoutput":     true,
	"code":           true,
	"code-block":     true,
	"sourcecode":     true,
	"literalinclude": true,
	"raw":            true,
	"math":           true,
	"eval-rst":       true,
}

// IsLiteralDirective reports whether a directive keeps its body as raw text.
func IsLiteralDirective(name string) bool {
	return literalDirectives[name]
}

// splitDirectiveBody separates leading options from a directive body. Options
// are either ":key: value" field lines or a yaml block between "---" lines.
// consumed is the number of body lines used by the options, including the
// blank line that may separate them from the content.
func splitDirectiveBody(lines []string) (opts map[string]string, content []string, consumed int, err error) {
	opts = map[string]string{}

	if len(lines) > 0 && strings.TrimSpace(lines[0]) == "---" {
		end := -1
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "---" {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, nil, 0, fmt.Errorf("unterminated option block")
		}
		var raw map[string]any
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &raw); err != nil {
			return nil, nil, 0, fmt.Errorf("parse option block: %w", err)
		}
		for k, v := range raw {
			if v == nil {
				opts[k] = ""
				continue
			}
			opts[k] = fmt.Sprint(v)
		}
		consumed = end + 1
	} else {
		for consumed < len(lines) {
			m := fieldOptionRe.FindStringSubmatch(strings.TrimSpace(lines[consumed]))
			if m == nil {
				break
			}
			opts[m[1]] = strings.TrimSpace(m[2])
			consumed++
		}
	}

	if consumed > 0 && consumed < len(lines) && strings.TrimSpace(lines[consumed]) == "" {
		consumed++
	}
	return opts, lines[consumed:], consumed, nil
}

// parseDirectiveInfo splits "{name} args" into its parts. ok is false when
// info is not in directive form.
func parseDirectiveInfo(info string) (name, args string, ok bool) {
	info = strings.TrimSpace(info)
	if !strings.HasPrefix(info, "{") {
		return "", "", false
	}
	end := strings.Index(info, "}")
	if end < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(info[1:end])
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(info[end+1:]), true
}

// trimLeadingBlank drops blank lines from the front of lines and reports how
// many were dropped.
func trimLeadingBlank(lines []string) ([]string, int) {
	n := 0
	for n < len(lines) && strings.TrimSpace(lines[n]) == "" {
		n++
	}
	return lines[n:], n
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// startsWithPrompt reports whether the first non-blank line of text is a
// transcript prompt.
func startsWithPrompt(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return strings.HasPrefix(trimmed, ">>>")
	}
	return false
}
