// Package allowlist holds domains that must never be blocked.
//
// Pattern syntax:
//
//   - "example.com": that domain only, case-insensitive
//   - "*.example.com": wildcard, * matches any run of characters
//   - "~^intranet\.": regular expression, case-sensitive
//   - "~*^INTRANET\.": regular expression, case-insensitive
package allowlist

import (
	"fmt"
	"regexp"
	"strings"
)

type kind int

const (
	kindExact kind = iota
	kindWildcard
	kindRegexp
)

type rule struct {
	source string
	kind   kind
	text   string // lowercased for exact and wildcard rules
	re     *regexp.Regexp
}

// List is a compiled set of protected-domain patterns. The zero value and
// a nil *List protect nothing.
type List struct {
	rules []rule
}

// Compile parses patterns. Empty patterns are rejected.
func Compile(patterns []string) (*List, error) {
	l := &List{rules: make([]rule, 0, len(patterns))}
	for _, p := range patterns {
		r, err := compileRule(p)
		if err != nil {
			return nil, err
		}
		l.rules = append(l.rules, r)
	}
	return l, nil
}

func compileRule(p string) (rule, error) {
	if strings.TrimSpace(p) == "" {
		return rule{}, fmt.Errorf("pattern cannot be empty")
	}

	if expr, ok := strings.CutPrefix(p, "~"); ok {
		if rest, insensitive := strings.CutPrefix(expr, "*"); insensitive {
			expr = "(?i)" + rest
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return rule{}, fmt.Errorf("invalid regexp pattern '%s': %w", p, err)
		}
		return rule{source: p, kind: kindRegexp, re: re}, nil
	}

	r := rule{source: p, kind: kindExact, text: strings.ToLower(p)}
	if strings.Contains(p, "*") {
		r.kind = kindWildcard
	}
	return r, nil
}

// Match reports whether domain is protected and by which pattern.
func (l *List) Match(domain string) (string, bool) {
	if l == nil {
		return "", false
	}
	lower := strings.ToLower(domain)
	for _, r := range l.rules {
		var hit bool
		switch r.kind {
		case kindExact:
			hit = lower == r.text
		case kindWildcard:
			hit = globMatch(lower, r.text)
		case kindRegexp:
			hit = r.re.MatchString(domain)
		}
		if hit {
			return r.source, true
		}
	}
	return "", false
}

// Len returns the number of patterns.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.rules)
}

// globMatch matches s against a pattern whose only metacharacter is *.
func globMatch(s, pattern string) bool {
	segments := strings.Split(pattern, "*")

	head, tail := segments[0], segments[len(segments)-1]
	if len(s) < len(head)+len(tail) || !strings.HasPrefix(s, head) || !strings.HasSuffix(s, tail) {
		return false
	}
	s = s[len(head) : len(s)-len(tail)]

	for _, seg := range segments[1 : len(segments)-1] {
		i := strings.Index(s, seg)
		if i < 0 {
			return false
		}
		s = s[i+len(seg):]
	}
	return true
}
