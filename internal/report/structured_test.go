package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const structuredSample = `{
  "created": 1718000000.5,
  "duration": 12.25,
  "exitcode": 0,
  "root": "/src/jax",
  "environment": {"Python": "3.11"},
  "summary": {"passed": 3, "total": 3, "collected": 3, "subtests passed": 2},
  "collectors": [{"nodeid": "", "outcome": "passed", "result": [{"nodeid": "tests/a_test.py", "type": "Module"}], "plugin": "jax"}],
  "tests": [
    {"nodeid": "tests/a_test.py::test_one", "lineno": 10, "outcome": "passed", "keywords": ["test_one"], "metadata": {"k": "v"},
     "call": {"duration": 0.5, "outcome": "passed", "phase_info": 1}},
    {"nodeid": "tests/a_test.py::test_two", "lineno": 20, "outcome": "passed", "keywords": ["test_two"]},
    {"nodeid": "tests/a_test.py::test_three", "lineno": 30, "outcome": "passed", "keywords": ["test_three"]}
  ],
  "warnings": [{"message": "deprecated"}]
}`

func writeStructuredSample(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(structuredSample), 0644))
}

func TestStructuredReport_RoundTripKeepsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a_test_log.json")
	writeStructuredSample(t, path)

	rep, err := LoadStructured(path)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Summary.Passed)
	assert.Len(t, rep.Tests, 3)
	assert.Equal(t, 0.5, rep.Tests[0].CallDuration())

	require.NoError(t, rep.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "warnings")

	var tests []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["tests"], &tests))
	assert.JSONEq(t, `{"k": "v"}`, string(tests[0]["metadata"]))
	assert.JSONEq(t, `{"duration": 0.5, "outcome": "passed", "phase_info": 1}`, string(tests[0]["call"]))

	var collectors []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["collectors"], &collectors))
	assert.JSONEq(t, `"jax"`, string(collectors[0]["plugin"]))

	var summary map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["summary"], &summary))
	assert.NotContains(t, summary, "failed")
	assert.NotContains(t, summary, "unskipped_total")
	assert.JSONEq(t, `2`, string(summary["subtests passed"]))
}

func TestSummary_OmitsAbsentPassed(t *testing.T) {
	var rep StructuredReport
	require.NoError(t, json.Unmarshal([]byte(`{"summary": {"failed": 1, "total": 1, "collected": 1}, "tests": []}`), &rep))

	data, err := json.Marshal(rep.Summary)
	require.NoError(t, err)
	assert.JSONEq(t, `{"failed": 1, "total": 1, "collected": 1}`, string(data))
}

func TestStructuredReport_AppendFailure(t *testing.T) {
	tests := []struct {
		name         string
		unskipped    *int
		wantUnskiped *int
	}{
		{name: "without unskipped_total"},
		{name: "with unskipped_total", unskipped: intPtr(3), wantUnskiped: intPtr(4)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := &StructuredReport{
				Summary: Summary{Passed: 3, Total: 3, Collected: 3, UnskippedTotal: tt.unskipped},
				Tests:   make([]TestCase, 3),
			}
			rep.AppendFailure(TestCase{NodeID: "m::t", Outcome: "failed"})

			assert.Equal(t, 1, rep.Summary.Failed)
			assert.Equal(t, 4, rep.Summary.Total)
			assert.Equal(t, 4, rep.Summary.Collected)
			assert.Equal(t, 1, rep.ExitCode)
			assert.Len(t, rep.Tests, 4)
			assert.Equal(t, tt.wantUnskiped, rep.Summary.UnskippedTotal)
		})
	}
}

func TestStructuredReport_FailedCases(t *testing.T) {
	rep := &StructuredReport{Tests: []TestCase{
		{NodeID: "a", Outcome: "passed"},
		{NodeID: "b", Outcome: "failed", Call: &Stage{Longrepr: "assert 1 == 2"}},
		{NodeID: "c", Outcome: "error", Setup: &Stage{Crash: &Crash{Message: "fixture blew up"}}},
		{NodeID: "d", Outcome: "skipped"},
	}}

	failed := rep.FailedCases()
	require.Len(t, failed, 2)
	assert.Equal(t, "assert 1 == 2", failed[0].FailureDetail())
	assert.Equal(t, "fixture blew up", failed[1].FailureDetail())
}

func TestLoadStructured_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_log.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadStructured(path)
	assert.Error(t, err)
}

func intPtr(n int) *int { return &n }
