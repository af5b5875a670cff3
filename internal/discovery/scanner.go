package discovery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner finds test modules by walking the test directory
type Scanner struct {
	projectPath string
	testPath    string
	skipDirs    map[string]bool
}

// NewScanner creates a new Scanner with the given directories to skip
func NewScanner(projectPath, testPath string, skipDirs []string) *Scanner {
	skipMap := make(map[string]bool)
	for _, dir := range skipDirs {
		skipMap[dir] = true
	}
	return &Scanner{projectPath: projectPath, testPath: testPath, skipDirs: skipMap}
}

// Discover returns every test module under the test path, relative to the project
func (s *Scanner) Discover(ctx context.Context) ([]string, error) {
	root := s.testPath
	if !filepath.IsAbs(root) {
		root = filepath.Join(s.projectPath, root)
	}
	files, err := s.Scan(root)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(s.projectPath, f)
		if err != nil {
			return nil, fmt.Errorf("relativise %s: %w", f, err)
		}
		ids = append(ids, filepath.ToSlash(rel))
	}
	sort.Strings(ids)
	return ids, nil
}

// Scan finds all test files in the given root directory
func (s *Scanner) Scan(root string) ([]string, error) {
	var testfiles []string

	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("test path does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("test path is not a directory: %s", root)
	}

	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			name := d.Name()
			// Skip hidden directories (starting with .)
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if s.skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}

		if IsTestModule(d.Name()) {
			testfiles = append(testfiles, path)
		}
		return nil
	})

	return testfiles, err
}

// IsTestModule matches pytest's default python_files patterns
func IsTestModule(name string) bool {
	if !strings.HasSuffix(name, ".py") {
		return false
	}
	stem := strings.TrimSuffix(name, ".py")
	return strings.HasPrefix(stem, "test_") || strings.HasSuffix(stem, "_test")
}
