package domain

import (
	"path"
	"sort"
	"strings"
)

// Module is one independently executable test file, dispatched to exactly one slot
type Module struct {
	ID   string // Path-like identifier relative to the project root, e.g. tests/foo_test.py
	Name string // Deterministic file stem used for the module's output files
}

// Slot identifies one physical accelerator
type Slot int

// NewModules builds modules from identifiers, sorted by ID, dropping duplicates.
// Names are the file stem; modules sharing a stem get their parent directories
// prepended until the names are unique.
func NewModules(ids []string) []Module {
	seen := make(map[string]bool)
	var unique []string
	for _, id := range ids {
		id = path.Clean(strings.ReplaceAll(id, "\\", "/"))
		if id == "." || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	sort.Strings(unique)

	depth := make(map[string]int, len(unique))
	for {
		byName := make(map[string][]string)
		for _, id := range unique {
			byName[moduleName(id, depth[id])] = append(byName[moduleName(id, depth[id])], id)
		}
		grew := false
		for _, clash := range byName {
			if len(clash) < 2 {
				continue
			}
			for _, id := range clash {
				if depth[id] < strings.Count(id, "/") {
					depth[id]++
					grew = true
				}
			}
		}
		if !grew {
			break
		}
	}

	modules := make([]Module, 0, len(unique))
	for _, id := range unique {
		modules = append(modules, Module{ID: id, Name: moduleName(id, depth[id])})
	}
	return modules
}

// moduleName joins the file stem with up to depth parent directories
func moduleName(id string, depth int) string {
	parts := strings.Split(id, "/")
	base := parts[len(parts)-1]
	base = strings.TrimSuffix(base, path.Ext(base))
	start := len(parts) - 1 - depth
	if start < 0 {
		start = 0
	}
	name := append(append([]string{}, parts[start:len(parts)-1]...), base)
	return strings.Join(name, "_")
}
