package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const humanSample = `<!DOCTYPE html>
<html>
<head><title id="head-title">a_test_log.html</title></head>
<body>
  <div class="summary__data">
    <p class="run-count">2 tests took 00:00:07.</p>
    <div class="summary__reload">
      <div class="summary__reload__button" onclick="location.reload()"><div>There are still tests running.</div></div>
    </div>
    <div class="filters">
      <input checked="true" class="filter" name="filter_checkbox" type="checkbox" data-test-result="failed" disabled/>
      <span class="failed">0 Failed,</span>
      <input checked="true" class="filter" name="filter_checkbox" type="checkbox" data-test-result="passed"/>
      <span class="passed">2 Passed,</span>
    </div>
  </div>
  <table id="results-table">
    <thead id="results-table-head"><tr><th>Result</th></tr></thead>
    <tbody class="results-table-row"><tr><td class="col-result">Passed</td></tr></tbody>
    <tbody class="results-table-row"><tr><td class="col-result">Passed</td></tr></tbody>
  </table>
  <div id="data-container" data-jsonblob='{"environment": {}, "tests": {"tests/a_test.py::test_one": [{"testId": "tests/a_test.py::test_one", "id": "test_0", "result": "Passed"}], "tests/a_test.py::test_two": [{"testId": "tests/a_test.py::test_two", "id": "test_1", "result": "Passed"}]}, "renderCollapsed": ["passed"]}'></div>
</body>
</html>`

func sampleAbort() AbortInfo {
	return AbortInfo{
		ModuleID:  "tests/a_test.py",
		TestName:  "test_crash",
		GPUID:     "1",
		Reason:    AbortReason,
		AbortTime: time.Date(2024, 6, 1, 10, 1, 5, 0, time.Local),
		Duration:  65 * time.Second,
	}
}

func renderAndParse(t *testing.T, h *HumanReport) (*HumanReport, string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, h.Render(&buf))
	out := buf.String()
	parsed, err := ParseHuman(strings.NewReader(out))
	require.NoError(t, err)
	return parsed, out
}

func TestParseHuman(t *testing.T) {
	h, err := ParseHuman(strings.NewReader(humanSample))
	require.NoError(t, err)

	assert.Equal(t, 2, h.RunCount.Tests)
	assert.Equal(t, "2 tests took 00:00:07.", h.RunCount.String())
	assert.Equal(t, 0, h.Counts["failed"])
	assert.Equal(t, 2, h.Counts["passed"])
	assert.Equal(t, 2, h.Rows())
	assert.Len(t, h.Blob.Tests, 2)
}

func TestHumanReport_AddAbort(t *testing.T) {
	h, err := ParseHuman(strings.NewReader(humanSample))
	require.NoError(t, err)
	require.NoError(t, h.AddAbort(sampleAbort()))

	got, out := renderAndParse(t, h)

	assert.Equal(t, 3, got.RunCount.Tests)
	assert.Equal(t, "3 tests took 00:00:07.", got.RunCount.String())
	assert.Equal(t, 1, got.Counts["failed"])
	assert.Equal(t, 2, got.Counts["passed"])
	assert.Equal(t, 3, got.Rows())
	assert.Contains(t, out, "tests/a_test.py::test_crash")
	assert.Contains(t, out, "GPU ID: 1")
	assert.Contains(t, out, "summary__reload__button hidden")
	assert.NotContains(t, out, `data-test-result="failed" disabled`)

	// pytest-html 4 keys tests by node id with a list of runs
	require.Contains(t, got.Blob.Tests, "tests/a_test.py::test_crash")
	var runs []blobTest
	require.NoError(t, json.Unmarshal(got.Blob.Tests["tests/a_test.py::test_crash"], &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "failed", runs[0].Result)
	assert.Contains(t, string(mustJSON(t, got.Blob)), `"renderCollapsed"`)
}

func TestHumanReport_AddAbortObjectBlob(t *testing.T) {
	doc := strings.Replace(humanSample,
		`data-jsonblob='{"environment": {}, "tests": {"tests/a_test.py::test_one": [{"testId": "tests/a_test.py::test_one", "id": "test_0", "result": "Passed"}], "tests/a_test.py::test_two": [{"testId": "tests/a_test.py::test_two", "id": "test_1", "result": "Passed"}]}, "renderCollapsed": ["passed"]}'`,
		`data-jsonblob='{"tests": {"test_0": {"testId": "a", "result": "Passed"}, "test_1": {"testId": "b", "result": "Passed"}}}'`, 1)

	h, err := ParseHuman(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, h.AddAbort(sampleAbort()))

	got, _ := renderAndParse(t, h)
	require.Contains(t, got.Blob.Tests, "test_2")
	var run blobTest
	require.NoError(t, json.Unmarshal(got.Blob.Tests["test_2"], &run))
	assert.Equal(t, "tests/a_test.py::test_crash", run.TestID)
}

func TestHumanReport_AddAbortAfterReruns(t *testing.T) {
	// two runs under one node id: the new id must not reuse test_1
	doc := strings.Replace(humanSample,
		`[{"testId": "tests/a_test.py::test_two", "id": "test_1", "result": "Passed"}]`,
		`[{"testId": "tests/a_test.py::test_two", "id": "test_1", "result": "Rerun"}, {"testId": "tests/a_test.py::test_two", "id": "test_2", "result": "Passed"}]`, 1)

	h, err := ParseHuman(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, h.AddAbort(sampleAbort()))

	got, _ := renderAndParse(t, h)
	var runs []blobTest
	require.NoError(t, json.Unmarshal(got.Blob.Tests["tests/a_test.py::test_crash"], &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "test_3", runs[0].ID)
}

func TestHumanReport_InProgressRunCount(t *testing.T) {
	doc := strings.Replace(humanSample, "2 tests took 00:00:07.", "2/5 test done.", 1)

	h, err := ParseHuman(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, h.AddAbort(sampleAbort()))

	got, _ := renderAndParse(t, h)
	assert.Equal(t, "3 tests took 00:01:05.", got.RunCount.String())
}

func TestHumanReport_LegacyRunCount(t *testing.T) {
	doc := strings.Replace(humanSample, "2 tests took 00:00:07.", "2 tests ran in 7.01 seconds.", 1)

	h, err := ParseHuman(strings.NewReader(doc))
	require.NoError(t, err)
	require.NoError(t, h.AddAbort(sampleAbort()))

	got, _ := renderAndParse(t, h)
	assert.Equal(t, "3 tests ran in 7.01 seconds.", got.RunCount.String())
}

func TestParseHuman_MarkersMissing(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not a report", doc: "<html><body><p>crashed</p></body></html>"},
		{name: "no results table", doc: strings.Replace(humanSample, `id="results-table"`, `id="other"`, 1)},
		{name: "no data container", doc: strings.Replace(humanSample, `id="data-container"`, `id="other"`, 1)},
		{name: "blob not json", doc: strings.Replace(humanSample, `data-jsonblob='{`, `data-jsonblob='{{`, 1)},
		{name: "no failed counter", doc: strings.Replace(humanSample, `<span class="failed">0 Failed,</span>`, "", 1)},
		{name: "run count unreadable", doc: strings.Replace(humanSample, "2 tests took 00:00:07.", "Tests are still running", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHuman(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrMarkersMissing)
		})
	}
}

func TestNewAbortHuman(t *testing.T) {
	data, err := NewAbortHuman("conv_test_log.html", sampleAbort())
	require.NoError(t, err)

	h, err := ParseHuman(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, h.RunCount.Tests)
	assert.Equal(t, "1 tests took 00:01:05.", h.RunCount.String())
	assert.Equal(t, 1, h.Counts["failed"])
	assert.Equal(t, 0, h.Counts["passed"])
	assert.Equal(t, 1, h.Rows())
	assert.Contains(t, h.Blob.Tests, "test_0")
	assert.Contains(t, string(data), "<title id=\"head-title\">conv_test_log.html</title>")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
