package pathnorm

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcludePatterns are OS and NAS housekeeping files that are never
// worth migrating.
var DefaultExcludePatterns = []string{
	".DS_Store",
	"._*",
	".AppleDouble",
	"Thumbs.db",
	"desktop.ini",
	".Trash*",
	"*.tmp",
	"*.swp",
	"*.bak",
	".git",
	".svn",
	".hg",
	"@eaDir",
	"*@SynoEAStream",
	"*@SynoResource",
	"*@SynoStream",
}

// MatchExclude reports whether p matches any of the patterns. See Matcher.
func MatchExclude(p string, patterns []string) bool {
	return NewMatcher(patterns).Match(p)
}

// Matcher tests paths against a compiled set of exclude patterns. Globs
// follow shell fnmatch rules: '*' and '?' also match '/', and braces are
// literal.
type Matcher struct {
	patterns []excludePattern
}

type excludePattern struct {
	raw  string
	glob glob.Glob // nil when the pattern is not a valid glob
}

// NewMatcher compiles patterns. Empty patterns are dropped.
func NewMatcher(patterns []string) *Matcher {
	m := &Matcher{patterns: make([]excludePattern, 0, len(patterns))}
	for _, raw := range patterns {
		if raw == "" {
			continue
		}
		ep := excludePattern{raw: raw}
		if g, err := glob.Compile(literalBraces(raw)); err == nil {
			ep.glob = g
		}
		m.patterns = append(m.patterns, ep)
	}
	return m
}

// Match reports whether p is excluded. Each pattern is tried as an exact
// filename, a glob on the filename, a glob on the full path, a glob on each
// directory segment and finally a substring of the full path.
func (m *Matcher) Match(p string) bool {
	if len(m.patterns) == 0 {
		return false
	}
	full := strings.ReplaceAll(p, "\\", "/")
	name := path.Base(full)
	dirs := strings.Split(path.Dir(full), "/")

	for _, ep := range m.patterns {
		if name == ep.raw {
			return true
		}
		if ep.glob != nil {
			if ep.glob.Match(name) || ep.glob.Match(full) {
				return true
			}
			for _, d := range dirs {
				if d != "." && d != "" && ep.glob.Match(d) {
					return true
				}
			}
		}
		if strings.Contains(full, ep.raw) {
			return true
		}
	}

	return false
}

// literalBraces escapes the glob syntax fnmatch does not know about
func literalBraces(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '{', '}', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MergePatterns returns defaults followed by extra, without duplicates or blanks.
func MergePatterns(defaults, extra []string) []string {
	seen := make(map[string]bool, len(defaults)+len(extra))
	out := make([]string, 0, len(defaults)+len(extra))
	for _, list := range [][]string{defaults, extra} {
		for _, p := range list {
			p = strings.TrimSpace(p)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
