package discovery

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// CollectError is returned when the collector exits non-zero.
// The batch exits with the same code.
type CollectError struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CollectError) Error() string {
	return fmt.Sprintf("test module discovery failed with exit code %d", e.ExitCode)
}

// PytestCollector lists modules with `pytest --collect-only` and reads the
// node ids back from its report log
type PytestCollector struct {
	Python      string
	ProjectPath string
	TestPath    string
	ReportLog   string
}

// NewPytestCollector creates a new PytestCollector
func NewPytestCollector(python, projectPath, testPath, reportLog string) *PytestCollector {
	return &PytestCollector{Python: python, ProjectPath: projectPath, TestPath: testPath, ReportLog: reportLog}
}

// Discover runs the collection and parses its report log
func (c *PytestCollector) Discover(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(filepath.Dir(c.ReportLog), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	args := []string{"-m", "pytest", "--collect-only", c.TestPath, "--report-log=" + c.ReportLog}
	cmd := exec.CommandContext(ctx, c.Python, args...)
	cmd.Dir = c.ProjectPath
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("python", c.Python).Strs("args", args).Msg("Collecting test modules")
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CollectError{ExitCode: exitErr.ExitCode(), Stdout: stdout.String(), Stderr: stderr.String()}
		}
		return nil, fmt.Errorf("run collector: %w", err)
	}

	f, err := os.Open(c.ReportLog)
	if err != nil {
		return nil, fmt.Errorf("open report log: %w", err)
	}
	defer f.Close()
	return ParseReportLog(f)
}

// ParseReportLog extracts the distinct module ids from a pytest report log,
// one JSON object per line
func ParseReportLog(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var entry struct {
			NodeID *string `json:"nodeid"`
		}
		if err := json.Unmarshal(text, &entry); err != nil {
			return nil, fmt.Errorf("report log line %d: %w", line, err)
		}
		if entry.NodeID == nil {
			continue
		}
		module, _, _ := strings.Cut(*entry.NodeID, "::")
		if module != "" && strings.Contains(module, ".py") {
			seen[module] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read report log: %w", err)
	}

	modules := make([]string, 0, len(seen))
	for m := range seen {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	return modules, nil
}
