// Package report owns every file a batch writes into its log directory: the
// per-module structured (pytest-json-report) and human (pytest-html) reports,
// the abort sentinel left by crashed modules, and the aggregate documents.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gtp/internal/domain"
)

const (
	structuredSuffix = "_log.json"
	humanSuffix      = "_log.html"
	sentinelSuffix   = "_last_running.json"
	consoleSuffix    = "_console.log"

	// CombinedJSONName is the aggregate structured report
	CombinedJSONName = "final_compiled_report.json"
	// CombinedHTMLName is the aggregate human report
	CombinedHTMLName = "final_compiled_report.html"
	// CollectLogName is the pytest collection report log
	CollectLogName = "collect_module_log.jsonl"
	// SummaryName is the persisted batch summary
	SummaryName = "batch_summary.json"
)

// Layout names every file of a batch inside one directory
type Layout struct {
	Dir string
}

// NewLayout creates a layout rooted at dir
func NewLayout(dir string) Layout {
	return Layout{Dir: dir}
}

// StructuredPath is the module's pytest-json-report file
func (l Layout) StructuredPath(m domain.Module) string {
	return filepath.Join(l.Dir, m.Name+structuredSuffix)
}

// HumanPath is the module's pytest-html file
func (l Layout) HumanPath(m domain.Module) string {
	return filepath.Join(l.Dir, m.Name+humanSuffix)
}

// SentinelPath is where the module records the test it is running
func (l Layout) SentinelPath(m domain.Module) string {
	return filepath.Join(l.Dir, m.Name+sentinelSuffix)
}

// ConsolePath holds the module's captured stdout and stderr
func (l Layout) ConsolePath(m domain.Module) string {
	return filepath.Join(l.Dir, m.Name+consoleSuffix)
}

// HumanTitle is the title pytest-html gives the module's report
func (l Layout) HumanTitle(m domain.Module) string {
	return m.Name + humanSuffix
}

func (l Layout) CombinedJSONPath() string { return filepath.Join(l.Dir, CombinedJSONName) }
func (l Layout) CombinedHTMLPath() string { return filepath.Join(l.Dir, CombinedHTMLName) }
func (l Layout) CollectLogPath() string   { return filepath.Join(l.Dir, CollectLogName) }
func (l Layout) SummaryPath() string      { return filepath.Join(l.Dir, SummaryName) }

// IsModuleStructured reports whether a file name in the log dir is a per-module structured report
func IsModuleStructured(name string) bool {
	return strings.HasSuffix(name, structuredSuffix) && name != CombinedJSONName
}

// IsSentinel reports whether a file name in the log dir is an abort sentinel
func IsSentinel(name string) bool {
	return strings.HasSuffix(name, sentinelSuffix)
}

// IsModuleReport reports whether a file name in the log dir belongs to a single
// module: its structured or human report, or its sentinel
func IsModuleReport(name string) bool {
	switch {
	case name == CombinedJSONName || name == CombinedHTMLName:
		return false
	case IsModuleStructured(name), IsSentinel(name):
		return true
	}
	return strings.HasSuffix(name, humanSuffix)
}

// RemoveModuleFiles deletes the module's reports and sentinel. Missing files are fine.
func (l Layout) RemoveModuleFiles(m domain.Module) error {
	var errs []error
	for _, p := range []string{l.SentinelPath(m), l.StructuredPath(m), l.HumanPath(m)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset deletes every per-module report and sentinel in the directory so the
// aggregate only sees what the next batch writes. It returns how many files went.
func (l Layout) Reset() (int, error) {
	entries, err := os.ReadDir(l.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read log dir: %w", err)
	}
	var (
		removed int
		errs    []error
	)
	for _, e := range entries {
		if e.IsDir() || !IsModuleReport(e.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(l.Dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
