package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPUID_Unmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "number", input: `{"test_name": "t", "gpu_id": 3}`, expected: "3"},
		{name: "string", input: `{"test_name": "t", "gpu_id": "5"}`, expected: "5"},
		{name: "null", input: `{"test_name": "t", "gpu_id": null}`, expected: "unknown"},
		{name: "missing", input: `{"test_name": "t"}`, expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s AbortSentinel
			require.NoError(t, json.Unmarshal([]byte(tt.input), &s))
			assert.Equal(t, tt.expected, s.GPUID.String())
		})
	}
}

func TestAbortSentinel_Started(t *testing.T) {
	local := AbortSentinel{StartTime: "2024-06-01T10:00:00.123456"}
	got, err := local.Started()
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 1, 10, 0, 0, 123456000, time.Local)))
	assert.Equal(t, time.Local, got.Location())

	zoned := AbortSentinel{StartTime: "2024-06-01T10:00:00Z"}
	got, err = zoned.Started()
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)))

	_, err = AbortSentinel{StartTime: "yesterday"}.Started()
	assert.Error(t, err)
}

func TestLoadSentinel(t *testing.T) {
	dir := t.TempDir()

	ok := filepath.Join(dir, "ok.json")
	require.NoError(t, os.WriteFile(ok, []byte(`{"test_name": "test_matmul", "start_time": "2024-06-01T10:00:00", "gpu_id": 1}`), 0644))
	s, err := LoadSentinel(ok)
	require.NoError(t, err)
	assert.Equal(t, "test_matmul", s.TestName)

	noName := filepath.Join(dir, "noname.json")
	require.NoError(t, os.WriteFile(noName, []byte(`{"gpu_id": 1}`), 0644))
	_, err = LoadSentinel(noName)
	assert.Error(t, err)

	_, err = LoadSentinel(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewAbortInfo(t *testing.T) {
	now := time.Date(2024, 6, 1, 11, 2, 5, 0, time.Local)

	s := AbortSentinel{TestName: "test_conv", StartTime: "2024-06-01T10:00:00", GPUID: "2"}
	info := NewAbortInfo("tests/conv_test.py", s, now)
	assert.Equal(t, time.Hour+2*time.Minute+5*time.Second, info.Duration)
	assert.Equal(t, "01:02:05", info.ClockDuration())
	assert.Equal(t, "tests/conv_test.py::test_conv", info.NodeID())
	assert.Equal(t,
		"Test aborted: Test aborted or crashed.\nAbort detected at: 2024-06-01T11:02:05.000000\nGPU ID: 2",
		info.Detail())

	// Clock skew must not produce a negative duration
	future := AbortSentinel{TestName: "test_conv", StartTime: "2024-06-01T12:00:00"}
	assert.Zero(t, NewAbortInfo("m", future, now).Duration)

	qualified := AbortSentinel{TestName: "tests/conv_test.py::TestConv::test_conv"}
	assert.Equal(t, "tests/conv_test.py::TestConv::test_conv", NewAbortInfo("tests/conv_test.py", qualified, now).NodeID())
}

func TestNewAbortReport(t *testing.T) {
	info := AbortInfo{ModuleID: "tests/conv_test.py", TestName: "test_conv", GPUID: "0", Reason: AbortReason, AbortTime: time.Now()}
	rep := NewAbortReport("tests/conv_test.py", "conv_test", info)

	assert.Equal(t, 1, rep.ExitCode)
	assert.Equal(t, 0, rep.Summary.Passed)
	assert.Equal(t, 1, rep.Summary.Failed)
	assert.Equal(t, 1, rep.Summary.Total)
	assert.Equal(t, 1, rep.Summary.Collected)
	require.NotNil(t, rep.Summary.UnskippedTotal)
	assert.Equal(t, 1, *rep.Summary.UnskippedTotal)
	require.Len(t, rep.Tests, 1)
	assert.Equal(t, "failed", rep.Tests[0].Outcome)
	assert.Equal(t, info.Detail(), rep.Tests[0].FailureDetail())
	require.Len(t, rep.Collectors, 1)
	assert.Equal(t, "tests/conv_test.py", rep.Collectors[0].Result[0].NodeID)
}
