package widget

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher tests URLs against a list of wildcard patterns. '*' matches any run
// of characters, everything else is literal. Matching is anchored at both ends
// and case-insensitive.
type Matcher struct {
	patterns []*regexp.Regexp
}

// CompilePatterns builds a Matcher. Blank patterns are ignored.
func CompilePatterns(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		expr := "(?i)^" + strings.ReplaceAll(regexp.QuoteMeta(p), `\*`, ".*") + "$"
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether url matches any pattern.
func (m *Matcher) Match(url string) bool {
	for _, re := range m.patterns {
		if re.MatchString(url) {
			return true
		}
	}
	return false
}

// Empty reports whether the matcher holds no patterns.
func (m *Matcher) Empty() bool {
	return len(m.patterns) == 0
}
