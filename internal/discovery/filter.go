package discovery

import (
	"path"
	"path/filepath"
	"strings"
)

// Filter filters test modules by name pattern
type Filter struct{}

// NewFilter creates a new Filter
func NewFilter() *Filter {
	return &Filter{}
}

// FilterByName filters modules by a pattern matched against the file name.
// Supports globs like "*_test.py", loose wildcards like "*linalg*" and plain
// substrings.
func (f *Filter) FilterByName(modules []string, pattern string) []string {
	if pattern == "" {
		return modules
	}

	var filtered []string
	for _, m := range modules {
		if matchName(path.Base(filepath.ToSlash(m)), pattern) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func matchName(name, pattern string) bool {
	if matched, err := filepath.Match(pattern, name); err == nil && matched {
		return true
	}
	if !strings.ContainsAny(pattern, "*?") {
		return strings.Contains(name, pattern)
	}
	if strings.Contains(pattern, "?") {
		return false
	}

	// Every literal part must appear, in order
	var parts []string
	for _, p := range strings.Split(pattern, "*") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return false
	}
	rest := name
	for _, p := range parts {
		i := strings.Index(rest, p)
		if i < 0 {
			return false
		}
		rest = rest[i+len(p):]
	}
	return true
}

// Exclusions is a static set of module ids that never run in a single-GPU batch
type Exclusions struct {
	ids map[string]bool
}

// NewExclusions creates an exclusion set from module ids relative to the project
func NewExclusions(ids []string) *Exclusions {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[path.Clean(filepath.ToSlash(id))] = true
	}
	return &Exclusions{ids: set}
}

// Excluded reports whether id is in the set
func (e *Exclusions) Excluded(id string) bool {
	return e.ids[path.Clean(filepath.ToSlash(id))]
}

// Apply splits modules into the ones to run and the ones excluded
func (e *Exclusions) Apply(modules []string) (kept, excluded []string) {
	for _, m := range modules {
		if e.Excluded(m) {
			excluded = append(excluded, m)
		} else {
			kept = append(kept, m)
		}
	}
	return kept, excluded
}
