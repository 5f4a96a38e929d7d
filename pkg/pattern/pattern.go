// Package pattern matches branch names and deployed file paths against
// user supplied retention patterns.
//
// Branch patterns are globs unless wrapped in slashes, in which case they are
// RE2 regular expressions: "feature/*", "**", "/^release-[0-9]+$/". A lone "*"
// matches every branch, including names with slashes.
//
// Path patterns are always globs. A glob without a slash is matched against
// the base name of the file, so "*.map" matches "static/js/app.js.map".
package pattern

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/wasilibs/go-re2"
)

var ErrEmptyPattern = errors.New("pattern is empty")

type Matcher interface {
	Match(string) bool
}

type globMatcher string

func (g globMatcher) Match(s string) bool {
	ok, _ := doublestar.Match(string(g), s)
	return ok
}

type anyMatcher struct{}

func (anyMatcher) Match(string) bool {
	return true
}

type regexpMatcher struct {
	re *re2.Regexp
}

func (m regexpMatcher) Match(s string) bool {
	return m.re.MatchString(s)
}

func isRegexp(p string) bool {
	return len(p) >= 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/")
}

// Branch compiles a branch pattern.
func Branch(p string) (Matcher, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return nil, ErrEmptyPattern
	}

	if p == "*" {
		return anyMatcher{}, nil
	}

	if isRegexp(p) {
		expr := p[1 : len(p)-1]
		if expr == "" {
			return nil, ErrEmptyPattern
		}

		re, err := re2.Compile(expr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid regular expression %q", expr)
		}

		return regexpMatcher{re: re}, nil
	}

	if !doublestar.ValidatePattern(p) {
		return nil, errors.Errorf("invalid glob %q", p)
	}

	return globMatcher(p), nil
}

// PathSet is an ordered list of path globs; a path matches the set when it
// matches any of them.
type PathSet struct {
	globs []string
}

func Paths(patterns []string) (*PathSet, error) {
	set := &PathSet{globs: make([]string, 0, len(patterns))}

	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimSpace(p), "/")
		if p == "" {
			return nil, ErrEmptyPattern
		}

		if !doublestar.ValidatePattern(p) {
			return nil, errors.Errorf("invalid glob %q", p)
		}

		set.globs = append(set.globs, p)
	}

	return set, nil
}

func (s *PathSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.globs)
}

func (s *PathSet) Match(file string) bool {
	if s == nil {
		return false
	}

	file = strings.TrimPrefix(file, "/")
	base := path.Base(file)

	for _, g := range s.globs {
		subject := file
		if !strings.Contains(g, "/") {
			subject = base
		}

		if ok, _ := doublestar.Match(g, subject); ok {
			return true
		}
	}

	return false
}
