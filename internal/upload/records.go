// Package upload stores the per-module reports of a log directory in the CI
// results database.
package upload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"gtp/internal/report"
)

const maxTextLen = 1000

// Files in a log directory that are not per-module reports
var skipFiles = map[string]bool{
	report.CombinedJSONName: true,
	report.CombinedHTMLName: true,
	report.CollectLogName:   true,
	report.SummaryName:      true,
}

var nameRe = regexp.MustCompile(`^(?P<name>.+?)\.(?P<ext>json|html)$`)

// Metadata describes the CI job that produced a log directory
type Metadata struct {
	RunnerLabel   string
	UbuntuVersion string
	RocmVersion   string
	LogsDir       string
	GithubRunID   string
	CommitSHA     string
}

// Validate reports the metadata fields left empty
func (m Metadata) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"runner-label", m.RunnerLabel},
		{"ubuntu-version", m.UbuntuVersion},
		{"rocm-version", m.RocmVersion},
		{"github-run-id", m.GithubRunID},
		{"commit-sha", m.CommitSHA},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing upload metadata: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RunRow is one ci_test_runs row
type RunRow struct {
	Metadata
	Created time.Time
	Total   int
	Passed  int
	Failed  int
	Skipped int
}

// CaseRow is one ci_test_cases row
type CaseRow struct {
	NodeID   string
	Outcome  string
	Duration float64
	Longrepr string
	Message  string
}

// Record is everything uploaded for one report name
type Record struct {
	Name        string
	Run         RunRow
	Cases       []CaseRow
	Placeholder bool
}

// CollectNames lists the report names in dir: the stem of every .json or
// .html file, aggregate documents and abort sentinels excluded
func CollectNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log dir: %w", err)
	}

	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || skipFiles[e.Name()] || report.IsSentinel(e.Name()) {
			continue
		}
		if m := nameRe.FindStringSubmatch(e.Name()); m != nil {
			seen[m[nameRe.SubexpIndex("name")]] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// NewRecord converts a structured report
func NewRecord(name string, rep *report.StructuredReport, meta Metadata) Record {
	rec := Record{
		Name: name,
		Run: RunRow{
			Metadata: meta,
			Created:  unixTime(rep.Created),
			Total:    rep.Summary.Total,
			Passed:   rep.Summary.Passed,
			Failed:   rep.Summary.Failed,
			Skipped:  rep.Summary.Skipped,
		},
		Cases: make([]CaseRow, 0, len(rep.Tests)),
	}
	for _, tc := range rep.Tests {
		row := CaseRow{NodeID: tc.NodeID, Outcome: tc.Outcome}
		if tc.Call != nil {
			row.Duration = tc.Call.Duration
			row.Longrepr = truncate(tc.Call.Longrepr)
			if tc.Call.Crash != nil {
				row.Message = truncate(tc.Call.Crash.Message)
			}
		}
		rec.Cases = append(rec.Cases, row)
	}
	return rec
}

// NewPlaceholder stands in for a module whose structured report is missing,
// which happens when the process died before pytest could write it
func NewPlaceholder(name string, created time.Time, meta Metadata) Record {
	return Record{
		Name: name,
		Run: RunRow{
			Metadata: meta,
			Created:  created.UTC(),
			Total:    -1,
			Passed:   -1,
			Failed:   -1,
			Skipped:  -1,
		},
		Cases: []CaseRow{{
			NodeID:   strings.TrimSuffix(name, "_log") + ".py",
			Outcome:  "unknown",
			Duration: -1,
		}},
		Placeholder: true,
	}
}

// LoadRecords builds a record for every report name in meta.LogsDir.
// Placeholders reuse the creation time of the last readable report, or now.
// Unreadable reports are logged and skipped.
func LoadRecords(meta Metadata, now func() time.Time) ([]Record, error) {
	names, err := CollectNames(meta.LogsDir)
	if err != nil {
		return nil, err
	}

	var (
		records     []Record
		lastCreated time.Time
	)
	for _, name := range names {
		path := filepath.Join(meta.LogsDir, name+".json")
		rep, err := report.LoadStructured(path)
		switch {
		case err == nil:
			rec := NewRecord(name, rep, meta)
			lastCreated = rec.Run.Created
			records = append(records, rec)
		case errors.Is(err, os.ErrNotExist):
			created := lastCreated
			if created.IsZero() {
				created = now()
			}
			records = append(records, NewPlaceholder(name, created, meta))
		default:
			log.Warn().Err(err).Str("report", name).Msg("Report could not be read, skipping")
		}
	}
	return records, nil
}

func unixTime(seconds float64) time.Time {
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// truncate cuts s to at most maxTextLen bytes without splitting a rune
func truncate(s string) string {
	if len(s) <= maxTextLen {
		return s
	}
	cut := maxTextLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
