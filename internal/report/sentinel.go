package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// AbortReason is recorded for every case synthesized from a sentinel
const AbortReason = "Test aborted or crashed."

// AbortSentinel is written by a module before each test and removed when the
// module completes normally. Finding one after the process exits means the
// module died mid-test.
type AbortSentinel struct {
	TestName  string `json:"test_name"`
	StartTime string `json:"start_time"`
	GPUID     GPUID  `json:"gpu_id"`
}

// GPUID accepts the accelerator index as a JSON number or string
type GPUID string

func (g *GPUID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*g = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*g = GPUID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("gpu_id: %w", err)
	}
	*g = GPUID(n.String())
	return nil
}

func (g GPUID) String() string {
	if g == "" {
		return "unknown"
	}
	return string(g)
}

var startTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// Started parses the sentinel's start time. Times without a zone are local.
func (s AbortSentinel) Started() (time.Time, error) {
	for _, layout := range startTimeLayouts {
		if t, err := time.ParseInLocation(layout, s.StartTime, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised start_time %q", s.StartTime)
}

// LoadSentinel reads a sentinel file
func LoadSentinel(path string) (*AbortSentinel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s AbortSentinel
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse sentinel %s: %w", path, err)
	}
	if s.TestName == "" {
		return nil, fmt.Errorf("parse sentinel %s: missing test_name", path)
	}
	return &s, nil
}

// AbortInfo describes one recovered crash
type AbortInfo struct {
	ModuleID  string
	TestName  string
	GPUID     string
	Reason    string
	AbortTime time.Time
	Duration  time.Duration
}

// NewAbortInfo derives crash details from a sentinel at time now
func NewAbortInfo(moduleID string, s AbortSentinel, now time.Time) AbortInfo {
	info := AbortInfo{
		ModuleID:  moduleID,
		TestName:  s.TestName,
		GPUID:     s.GPUID.String(),
		Reason:    AbortReason,
		AbortTime: now,
	}
	if started, err := s.Started(); err == nil && now.After(started) {
		info.Duration = now.Sub(started)
	}
	return info
}

// NodeID is the synthetic case's node id
func (a AbortInfo) NodeID() string {
	return nodePrefix(a.ModuleID, a.TestName)
}

// Detail is the failure text stored with the synthetic case
func (a AbortInfo) Detail() string {
	return "Test aborted: " + a.Reason + "\n" +
		"Abort detected at: " + a.AbortTime.Format("2006-01-02T15:04:05.000000") + "\n" +
		"GPU ID: " + a.GPUID
}

// ClockDuration renders the duration as HH:MM:SS, the way pytest-html does
func (a AbortInfo) ClockDuration() string {
	return clockDuration(a.Duration)
}

func clockDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

// TestCase is the synthetic failed case for the structured report
func (a AbortInfo) TestCase(moduleName string) TestCase {
	return TestCase{
		NodeID:   a.NodeID(),
		LineNo:   1,
		Outcome:  "failed",
		Keywords: []string{a.TestName, moduleName, "abort", ""},
		Setup:    &Stage{Duration: 0, Outcome: "passed"},
		Call: &Stage{
			Duration: a.Duration.Seconds(),
			Outcome:  "failed",
			Longrepr: a.Detail(),
		},
		Teardown: &Stage{Duration: 0, Outcome: "skipped"},
	}
}

// NewAbortReport is the minimal structured report holding only the synthetic case
func NewAbortReport(moduleID, moduleName string, a AbortInfo) *StructuredReport {
	one := 1
	return &StructuredReport{
		Created:     float64(a.AbortTime.UnixNano()) / float64(time.Second),
		Duration:    a.Duration.Seconds(),
		ExitCode:    1,
		Root:        "",
		Environment: json.RawMessage(`{}`),
		Summary: Summary{
			Passed:         0,
			Failed:         1,
			Total:          1,
			Collected:      1,
			UnskippedTotal: &one,
		},
		Collectors: []Collector{{
			NodeID:  "",
			Outcome: "failed",
			Result:  []CollectorResult{{NodeID: moduleID, Type: "Module"}},
		}},
		Tests: []TestCase{a.TestCase(moduleName)},
	}
}
