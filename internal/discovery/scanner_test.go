package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestScanner_Scan(t *testing.T) {
	tmpDir := t.TempDir()

	testFiles := []string{
		"tests/linalg_test.py",
		"tests/test_random.py",
		"tests/mosaic/gpu_test.py",
		"tests/__pycache__/linalg_test.py",
		"tests/.hidden/ignored_test.py",
		"tests/conftest.py",
		"tests/testdata/notes.txt",
		"tests/helpers.py",
	}
	for _, file := range testFiles {
		fullPath := filepath.Join(tmpDir, file)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create dir for %s: %v", file, err)
		}
		if err := os.WriteFile(fullPath, []byte("def test_x(): pass\n"), 0644); err != nil {
			t.Fatalf("failed to create file %s: %v", file, err)
		}
	}

	scanner := NewScanner(tmpDir, "tests", []string{"__pycache__"})

	t.Run("scans test files correctly", func(t *testing.T) {
		results, err := scanner.Scan(filepath.Join(tmpDir, "tests"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Should find 3 test modules, not the ones in __pycache__ or hidden dirs
		if len(results) != 3 {
			t.Errorf("expected 3 test files, got %d: %v", len(results), results)
		}
	})

	t.Run("discovers project relative ids", func(t *testing.T) {
		ids, err := scanner.Discover(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		expected := []string{"tests/linalg_test.py", "tests/mosaic/gpu_test.py", "tests/test_random.py"}
		if len(ids) != len(expected) {
			t.Fatalf("expected %v, got %v", expected, ids)
		}
		for i := range expected {
			if ids[i] != expected[i] {
				t.Errorf("expected %s at %d, got %s", expected[i], i, ids[i])
			}
		}
	})

	t.Run("returns error for non-existent directory", func(t *testing.T) {
		_, err := scanner.Scan("/non/existent/path")
		if err == nil {
			t.Error("expected error for non-existent directory")
		}
	})

	t.Run("returns error for file instead of directory", func(t *testing.T) {
		_, err := scanner.Scan(filepath.Join(tmpDir, "tests", "helpers.py"))
		if err == nil {
			t.Error("expected error for file path")
		}
	})
}

func TestIsTestModule(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"linalg_test.py", true},
		{"test_linalg.py", true},
		{"conftest.py", false},
		{"linalg_test.pyc", false},
		{"testing.py", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTestModule(tt.name); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
