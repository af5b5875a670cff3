package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// StructuredReport is a pytest-json-report document.
// Fields it does not model are kept and written back unchanged.
type StructuredReport struct {
	Created     float64         `json:"created"`
	Duration    float64         `json:"duration"`
	ExitCode    int             `json:"exitcode"`
	Root        string          `json:"root"`
	Environment json.RawMessage `json:"environment,omitempty"`
	Summary     Summary         `json:"summary"`
	Collectors  []Collector     `json:"collectors,omitempty"`
	Tests       []TestCase      `json:"tests"`

	extra map[string]json.RawMessage
}

// Summary holds the per-outcome counts. Outcome keys pytest did not emit stay absent.
type Summary struct {
	Passed         int  `json:"passed,omitempty"`
	Failed         int  `json:"failed,omitempty"`
	Skipped        int  `json:"skipped,omitempty"`
	Error          int  `json:"error,omitempty"`
	XFailed        int  `json:"xfailed,omitempty"`
	XPassed        int  `json:"xpassed,omitempty"`
	Rerun          int  `json:"rerun,omitempty"`
	Deselected     int  `json:"deselected,omitempty"`
	Total          int  `json:"total"`
	Collected      int  `json:"collected"`
	UnskippedTotal *int `json:"unskipped_total,omitempty"`

	extra map[string]json.RawMessage
}

// Collector is a pytest collection node
type Collector struct {
	NodeID   string            `json:"nodeid"`
	Outcome  string            `json:"outcome"`
	Result   []CollectorResult `json:"result"`
	Longrepr string            `json:"longrepr,omitempty"`

	extra map[string]json.RawMessage
}

// CollectorResult is one item a collector produced
type CollectorResult struct {
	NodeID string `json:"nodeid"`
	Type   string `json:"type"`
	LineNo int    `json:"lineno,omitempty"`
}

// TestCase is one test result
type TestCase struct {
	NodeID   string   `json:"nodeid"`
	LineNo   int      `json:"lineno"`
	Outcome  string   `json:"outcome"`
	Keywords []string `json:"keywords"`
	Setup    *Stage   `json:"setup,omitempty"`
	Call     *Stage   `json:"call,omitempty"`
	Teardown *Stage   `json:"teardown,omitempty"`

	extra map[string]json.RawMessage
}

// Stage is the setup, call or teardown phase of a test
type Stage struct {
	Duration  float64         `json:"duration"`
	Outcome   string          `json:"outcome"`
	Crash     *Crash          `json:"crash,omitempty"`
	Traceback json.RawMessage `json:"traceback,omitempty"`
	Stdout    string          `json:"stdout,omitempty"`
	Stderr    string          `json:"stderr,omitempty"`
	Log       json.RawMessage `json:"log,omitempty"`
	Longrepr  string          `json:"longrepr,omitempty"`

	extra map[string]json.RawMessage
}

// Crash locates the failing assertion
type Crash struct {
	Path    string `json:"path"`
	LineNo  int    `json:"lineno"`
	Message string `json:"message"`
}

var (
	reportFields    = []string{"created", "duration", "exitcode", "root", "environment", "summary", "collectors", "tests"}
	caseFields      = []string{"nodeid", "lineno", "outcome", "keywords", "setup", "call", "teardown"}
	summaryFields   = []string{"passed", "failed", "skipped", "error", "xfailed", "xpassed", "rerun",
		"deselected", "total", "collected", "unskipped_total"}
	collectorFields = []string{"nodeid", "outcome", "result", "longrepr"}
	stageFields     = []string{"duration", "outcome", "crash", "traceback", "stdout", "stderr", "log", "longrepr"}
)

type structuredAlias StructuredReport
type testCaseAlias TestCase
type summaryAlias Summary
type collectorAlias Collector
type stageAlias Stage

func (r *StructuredReport) UnmarshalJSON(data []byte) error {
	var a structuredAlias
	extra, err := decodeWithExtra(data, &a, reportFields)
	if err != nil {
		return err
	}
	*r = StructuredReport(a)
	r.extra = extra
	return nil
}

func (r StructuredReport) MarshalJSON() ([]byte, error) {
	if r.Tests == nil {
		r.Tests = []TestCase{}
	}
	return encodeWithExtra(structuredAlias(r), r.extra)
}

func (c *TestCase) UnmarshalJSON(data []byte) error {
	var a testCaseAlias
	extra, err := decodeWithExtra(data, &a, caseFields)
	if err != nil {
		return err
	}
	*c = TestCase(a)
	c.extra = extra
	return nil
}

func (c TestCase) MarshalJSON() ([]byte, error) {
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	return encodeWithExtra(testCaseAlias(c), c.extra)
}

func (s *Summary) UnmarshalJSON(data []byte) error {
	var a summaryAlias
	extra, err := decodeWithExtra(data, &a, summaryFields)
	if err != nil {
		return err
	}
	*s = Summary(a)
	s.extra = extra
	return nil
}

func (s Summary) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(summaryAlias(s), s.extra)
}

func (c *Collector) UnmarshalJSON(data []byte) error {
	var a collectorAlias
	extra, err := decodeWithExtra(data, &a, collectorFields)
	if err != nil {
		return err
	}
	*c = Collector(a)
	c.extra = extra
	return nil
}

func (c Collector) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(collectorAlias(c), c.extra)
}

func (st *Stage) UnmarshalJSON(data []byte) error {
	var a stageAlias
	extra, err := decodeWithExtra(data, &a, stageFields)
	if err != nil {
		return err
	}
	*st = Stage(a)
	st.extra = extra
	return nil
}

func (st Stage) MarshalJSON() ([]byte, error) {
	return encodeWithExtra(stageAlias(st), st.extra)
}

// decodeWithExtra decodes data into v and returns the object members v does not model
func decodeWithExtra(data []byte, v any, known []string) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, v); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// encodeWithExtra encodes v and adds the preserved members back
func encodeWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, raw := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

// Failed reports whether the case ended in failure or error
func (c TestCase) Failed() bool {
	return c.Outcome == "failed" || c.Outcome == "error"
}

// FailureDetail returns the most useful description of why the case failed
func (c TestCase) FailureDetail() string {
	for _, st := range []*Stage{c.Call, c.Setup, c.Teardown} {
		if st == nil {
			continue
		}
		if st.Longrepr != "" {
			return st.Longrepr
		}
		if st.Crash != nil && st.Crash.Message != "" {
			return st.Crash.Message
		}
	}
	return ""
}

// CallDuration is the duration of the call phase, or 0
func (c TestCase) CallDuration() float64 {
	if c.Call == nil {
		return 0
	}
	return c.Call.Duration
}

// LoadStructured reads a structured report from path
func LoadStructured(path string) (*StructuredReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r StructuredReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &r, nil
}

// Save writes the report to path, replacing any previous file atomically
func (r *StructuredReport) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFileAtomic(path, data)
}

// AppendFailure adds a failed case and bumps every counter that tracks it
func (r *StructuredReport) AppendFailure(tc TestCase) {
	r.Tests = append(r.Tests, tc)
	r.Summary.Failed++
	r.Summary.Total++
	r.Summary.Collected++
	if r.Summary.UnskippedTotal != nil {
		n := *r.Summary.UnskippedTotal + 1
		r.Summary.UnskippedTotal = &n
	}
	r.ExitCode = 1
}

// FailedCases returns the failed or errored cases in order
func (r *StructuredReport) FailedCases() []TestCase {
	var failed []TestCase
	for _, tc := range r.Tests {
		if tc.Failed() {
			failed = append(failed, tc)
		}
	}
	return failed
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// nodePrefix makes a node id for a test running in module id
func nodePrefix(moduleID, test string) string {
	if strings.Contains(test, "::") {
		return test
	}
	return moduleID + "::" + test
}
