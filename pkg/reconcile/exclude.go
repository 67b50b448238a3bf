package reconcile

import (
	"path"
	"strings"
)

// Patterns is a list of exclusion globs applied to relative paths before
// files are paired. Supported forms:
//   - basename globs: *.tmp, diff_*
//   - directory patterns: scratch/, .git/
//   - path globs: build/*, **/quicklook/*.png
type Patterns []string

// NewPatterns normalizes separators and drops empty entries
func NewPatterns(raw []string) Patterns {
	var p Patterns
	for _, r := range raw {
		r = strings.TrimSpace(strings.ReplaceAll(r, "\\", "/"))
		if r != "" {
			p = append(p, r)
		}
	}
	return p
}

// Match reports whether relativePath is excluded by any pattern
func (p Patterns) Match(relativePath string) bool {
	if len(p) == 0 {
		return false
	}

	normalized := strings.ReplaceAll(relativePath, "\\", "/")
	base := path.Base(normalized)

	for _, pattern := range p {
		if dir, ok := strings.CutSuffix(pattern, "/"); ok {
			if normalized == dir ||
				strings.HasPrefix(normalized, dir+"/") ||
				strings.Contains(normalized, "/"+dir+"/") {
				return true
			}
			continue
		}

		if suffix, ok := strings.CutPrefix(pattern, "**/"); ok {
			if matchGlob(base, suffix) || normalized == suffix ||
				strings.HasSuffix(normalized, "/"+suffix) ||
				matchAnyTail(normalized, suffix) {
				return true
			}
			continue
		}

		if strings.Contains(pattern, "/") {
			if matchAnyTail(normalized, pattern) {
				return true
			}
			continue
		}

		if matchGlob(base, pattern) {
			return true
		}
	}

	return false
}

func matchGlob(name, pattern string) bool {
	matched, _ := path.Match(pattern, name)
	return matched
}

// matchAnyTail matches pattern against p and every trailing sub-path of
// p, so quicklook/*.png matches a/b/quicklook/x.png
func matchAnyTail(p, pattern string) bool {
	for {
		if matchGlob(p, pattern) {
			return true
		}
		i := strings.IndexByte(p, '/')
		if i < 0 {
			return false
		}
		p = p[i+1:]
	}
}
