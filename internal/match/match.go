// Package match provides the glob and wildcard primitives shared by all
// validators. Path patterns use doublestar syntax (`*`, `**`); command and
// domain patterns use plain wildcards.
package match

import (
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Path reports whether path matches the doublestar pattern. Both sides are
// slash-normalized, and a leading "./" on the pattern is dropped because
// incoming paths are cleaned before matching ("./x" arrives as "x").
// Invalid patterns never match.
func Path(pattern, path string) bool {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	path = filepath.ToSlash(path)
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}

// PathAny reports whether any pattern in the list matches the path.
func PathAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if Path(p, path) {
			return true
		}
	}
	return false
}

var (
	cmdMu    sync.RWMutex
	cmdCache = map[string]*regexp.Regexp{}
)

// Command reports whether the full command string matches a wildcard
// pattern, where `*` spans any text (including spaces) and `?` matches one
// character. `pytest *` matches `pytest tests/` but not `pytest`.
func Command(pattern, command string) bool {
	re := compileWildcard(pattern)
	if re == nil {
		return false
	}
	return re.MatchString(command)
}

// CommandAny reports whether any pattern matches the command. The second
// return value is true when the match was exact (no wildcards involved).
func CommandAny(patterns []string, command string) (matched, exact bool) {
	for _, p := range patterns {
		if !HasWildcard(p) {
			if p == command {
				return true, true
			}
			continue
		}
		if Command(p, command) {
			matched = true
		}
	}
	return matched, false
}

// Domain reports whether host matches a domain pattern. `*` matches any
// host; `*.example.com` matches subdomains and the bare domain itself.
// Matching is case-insensitive.
func Domain(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	switch {
	case pattern == "":
		return false
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*."):
		base := pattern[2:]
		return host == base || strings.HasSuffix(host, "."+base)
	default:
		return host == pattern
	}
}

// DomainAny reports whether any pattern matches the host.
func DomainAny(patterns []string, host string) bool {
	for _, p := range patterns {
		if Domain(p, host) {
			return true
		}
	}
	return false
}

// Name reports whether a flat name (env var, agent id, tool name) matches a
// wildcard pattern.
func Name(pattern, name string) bool {
	return Command(pattern, name)
}

// NameAny reports whether any pattern matches the name.
func NameAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Name(p, name) {
			return true
		}
	}
	return false
}

// HasWildcard reports whether the string contains `*` or `?`.
func HasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?")
}

func compileWildcard(pattern string) *regexp.Regexp {
	cmdMu.RLock()
	re, ok := cmdCache[pattern]
	cmdMu.RUnlock()
	if ok {
		return re
	}

	var b strings.Builder
	b.WriteString(`\A`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}

	cmdMu.Lock()
	cmdCache[pattern] = re
	cmdMu.Unlock()
	return re
}
