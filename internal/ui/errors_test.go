package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"gtp/internal/domain"
)

func TestFormatFailureDetails(t *testing.T) {
	failure := domain.TestFailure{
		TestName: "LinalgTest::test_eigh",
		Module:   "tests/linalg_test.py",
		Outcome:  "failed",
		Message:  "AssertionError: [1, 2] != [1, 3]",
		Detail:   "def test_eigh():\n>   assert x == [1, 3]\nE   AssertionError",
		Duration: 1.25,
	}

	out := formatFailureDetails(failure)
	assert.Contains(t, out, "✗ Test: LinalgTest::test_eigh")
	assert.Contains(t, out, "Module: tests/linalg_test.py")
	assert.Contains(t, out, "Duration: 1.25s")
	// Brackets in test output must not be read as color tags
	assert.Contains(t, out, "AssertionError: [1, 2[] != [1, 3[]")
	assert.Contains(t, out, ">   assert x == [1, 3[]")
}

func TestFormatFailureDetails_Aborted(t *testing.T) {
	out := formatFailureDetails(domain.TestFailure{TestName: "test_crash", Module: "tests/a_test.py", Aborted: true})
	assert.Contains(t, out, "Aborted: test_crash")
	assert.NotContains(t, out, "Details:")
}

func TestFormatFailureDetails_TruncatesLongDetail(t *testing.T) {
	detail := strings.Repeat("line\n", maxDetailLines+5)
	out := formatFailureDetails(domain.TestFailure{TestName: "t", Detail: detail})
	assert.Contains(t, out, "... and 5 more lines")
	assert.Equal(t, maxDetailLines, strings.Count(out, "line\n"))
}

func TestFormatFailureStats(t *testing.T) {
	out := formatFailureStats(domain.TestFailure{NodeID: "tests/a_test.py::test_x", Resolved: true}, 1)
	assert.Contains(t, out, "tests/a_test.py::test_x")
	assert.Contains(t, out, "resolved")
	assert.NotContains(t, out, "unresolved")

	out = formatFailureStats(domain.TestFailure{}, 3)
	assert.Contains(t, out, "Unknown module::Test 3")
	assert.Contains(t, out, "unresolved")
}

func TestListItemText(t *testing.T) {
	assert.Equal(t, "[yellow]1.[white] test_x", listItemText(domain.TestFailure{TestName: "test_x"}, 0))
	assert.Equal(t, "[gray]✓ [yellow]2.[gray] test_x[white]", listItemText(domain.TestFailure{TestName: "test_x", Resolved: true}, 1))
	assert.Contains(t, listItemText(domain.TestFailure{TestName: "test_x", Aborted: true}, 0), "⚡")
	assert.Equal(t, "[yellow]4.[white] Test 4", listItemText(domain.TestFailure{}, 3))
}

func TestCountUnresolved(t *testing.T) {
	failures := []domain.TestFailure{{Resolved: true}, {}, {}}
	assert.Equal(t, 2, countUnresolved(failures))
}
