// Package pathglob matches slash-separated repository paths against glob
// patterns where "**" spans any number of directories.
package pathglob

import (
	"path"
	"path/filepath"
	"strings"
)

// MatchAny reports whether p matches any of patterns. Patterns use
// path.Match syntax per segment; a "**" segment matches zero or more
// segments, so "**/.env" matches ".env" and "config/.env", and "vendor/**"
// matches everything under vendor. A malformed pattern matches nothing.
func MatchAny(p string, patterns []string) bool {
	segs := strings.Split(filepath.ToSlash(p), "/")
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if match(strings.Split(pattern, "/"), segs) {
			return true
		}
	}
	return false
}

func match(pattern, segs []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(segs); i++ {
				if match(rest, segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		ok, err := path.Match(pattern[0], segs[0])
		if err != nil || !ok {
			return false
		}
		pattern, segs = pattern[1:], segs[1:]
	}
	return len(segs) == 0
}
