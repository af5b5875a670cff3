package ui

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtp/internal/discovery"
	"gtp/internal/domain"
)

func plainOutput(t *testing.T) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	text.DisableColors()
	t.Cleanup(func() {
		color.NoColor = prev
		text.EnableColors()
	})
}

func sampleOutput() *domain.TestResultsOutput {
	return &domain.TestResultsOutput{
		Meta: domain.TestResultsMeta{
			RunID:           "run-42",
			Mode:            "fail-fast",
			Slots:           8,
			TotalModules:    3,
			PassedModules:   1,
			FailedModules:   2,
			AbortedModules:  1,
			FailedTestCases: 2,
			ExitCode:        1,
			FirstFailure:    "tests/linalg_test.py",
			DurationSeconds: 12.5,
			Timestamp:       "2024-06-01T12:00:00Z",
		},
		Modules: []domain.ModuleSummary{
			{Module: "tests/api_test.py", Status: "passed", GPU: 0, Attempts: 1},
			{Module: "tests/linalg_test.py", Status: "failed", ExitCode: 1, GPU: 1, Attempts: 4},
			{Module: "tests/nn/conv_test.py", Status: "aborted", ExitCode: 1, GPU: 2, Attempts: 4, AbortTest: "test_conv3d"},
		},
		Details: []domain.TestFailure{
			{TestName: "LinalgTest::test_eigh", Module: "tests/linalg_test.py"},
			{TestName: "test_conv3d", Module: "tests/nn/conv_test.py", Aborted: true},
		},
	}
}

func TestFormatter_PrintSummary(t *testing.T) {
	plainOutput(t)
	var buf bytes.Buffer
	NewFormatterTo(&buf, "", discovery.NewParser()).PrintSummary(sampleOutput())
	out := buf.String()

	assert.Contains(t, out, "Test Execution Statistics")
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "12.50s")
	assert.Contains(t, out, "batch failed with exit code 1 at tests/linalg_test.py")
	assert.Contains(t, out, "2 module(s) failed with 2 test case failure(s)")
	assert.Contains(t, out, "aborted in test_conv3d")

	// Passed modules are left out of the module table
	assert.NotContains(t, out, "tests/api_test.py")

	// Failure tree
	assert.Contains(t, out, "linalg_test.py")
	assert.Contains(t, out, "LinalgTest::test_eigh")
	assert.Contains(t, out, "test_conv3d (aborted)")
	assert.Less(t, strings.Index(out, "├── linalg_test.py"), strings.Index(out, "└── nn"))
}

func TestFormatter_PrintSummary_AllPassed(t *testing.T) {
	plainOutput(t)
	var buf bytes.Buffer
	output := &domain.TestResultsOutput{
		Meta:    domain.TestResultsMeta{TotalModules: 1, PassedModules: 1},
		Modules: []domain.ModuleSummary{{Module: "tests/a_test.py", Status: "passed"}},
	}
	NewFormatterTo(&buf, "", discovery.NewParser()).PrintSummary(output)

	assert.Contains(t, buf.String(), "All modules passed!")
	assert.NotContains(t, buf.String(), "failed with")
}

func writeModule(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestFormatter_PrintModuleList(t *testing.T) {
	plainOutput(t)
	dir := t.TempDir()
	writeModule(t, dir, "tests/a_test.py", "def test_one():\n    pass\n\nclass ATest:\n    def test_two(self):\n        pass\n")
	writeModule(t, dir, "tests/b_test.py", "import jax\n")

	modules := domain.NewModules([]string{"tests/a_test.py", "tests/b_test.py"})
	f := NewFormatterTo(nil, dir, discovery.NewParser())

	var plain bytes.Buffer
	f.w = &plain
	f.PrintModuleList(modules, false, map[string]struct{}{"tests/b_test.py": {}})
	assert.Contains(t, plain.String(), "Found 2 test module(s)")
	assert.Contains(t, plain.String(), "├── tests/a_test.py\n")
	assert.Contains(t, plain.String(), "└── tests/b_test.py [F]")

	var tree bytes.Buffer
	f.w = &tree
	f.PrintModuleList(modules, true, nil)
	assert.Contains(t, tree.String(), "│   ├── ATest::test_two")
	assert.Contains(t, tree.String(), "│   └── test_one")
	assert.Contains(t, tree.String(), "    └── (no test cases found)")

	total, err := f.CountTestCases(modules)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestFormatter_CountTestCases_MissingModule(t *testing.T) {
	f := NewFormatterTo(nil, t.TempDir(), discovery.NewParser())
	_, err := f.CountTestCases([]domain.Module{{ID: "tests/missing_test.py"}})
	assert.Error(t, err)
}
