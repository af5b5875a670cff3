package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_FilterByName(t *testing.T) {
	filter := NewFilter()

	tests := []struct {
		name     string
		tests    []string
		pattern  string
		expected int // Expected number of matches
	}{
		{
			name:     "empty pattern returns all",
			tests:    []string{"linalg_test.py", "random_test.py", "lax_test.py"},
			pattern:  "",
			expected: 3,
		},
		{
			name:     "wildcard pattern matches suffix",
			tests:    []string{"linalg_test.py", "random_test.py", "lax_test.py"},
			pattern:  "*linalg_test.py",
			expected: 1,
		},
		{
			name:     "wildcard pattern matches substring",
			tests:    []string{"lax_test.py", "lax_numpy_test.py", "random_test.py", "lax_control_flow_test.py"},
			pattern:  "*lax*",
			expected: 3,
		},
		{
			name:     "simple contains match",
			tests:    []string{"linalg_test.py", "random_test.py", "lax_test.py"},
			pattern:  "random",
			expected: 1,
		},
		{
			name:     "no matches",
			tests:    []string{"linalg_test.py", "random_test.py"},
			pattern:  "*pallas*",
			expected: 0,
		},
		{
			name:     "full path with wildcard",
			tests:    []string{"tests/linalg_test.py", "tests/pallas/linalg_test.py", "tests/random_test.py"},
			pattern:  "*linalg_test.py",
			expected: 2,
		},
		{
			name:     "directory names are not matched",
			tests:    []string{"tests/pallas/ops_test.py"},
			pattern:  "pallas",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filter.FilterByName(tt.tests, tt.pattern)
			if len(result) != tt.expected {
				t.Errorf("expected %d matches, got %d", tt.expected, len(result))
			}
		})
	}
}

func TestFilter_FilterByName_EdgeCases(t *testing.T) {
	filter := NewFilter()

	t.Run("empty test list", func(t *testing.T) {
		result := filter.FilterByName([]string{}, "*_test.py")
		if len(result) != 0 {
			t.Errorf("expected empty result, got %d items", len(result))
		}
	})

	t.Run("pattern with multiple wildcards keeps order", func(t *testing.T) {
		tests := []string{"lax_numpy_test.py", "lax_control_flow_test.py", "numpy_lax_test.py"}
		result := filter.FilterByName(tests, "*lax*numpy*")
		assert.Equal(t, []string{"lax_numpy_test.py"}, result)
	})
}

func TestExclusions_Apply(t *testing.T) {
	ex := NewExclusions([]string{"tests/pjit_test.py", "./tests/mosaic/gpu_test.py"})

	kept, excluded := ex.Apply([]string{
		"tests/linalg_test.py",
		"tests/pjit_test.py",
		"tests/mosaic/gpu_test.py",
		"tests/gpu_test.py",
	})

	assert.Equal(t, []string{"tests/linalg_test.py", "tests/gpu_test.py"}, kept)
	assert.Equal(t, []string{"tests/pjit_test.py", "tests/mosaic/gpu_test.py"}, excluded)
	assert.True(t, ex.Excluded("tests//pjit_test.py"))
}
