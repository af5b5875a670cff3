package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/acarl005/stripansi"

	"gtp/internal/domain"
	"gtp/internal/report"
)

const maxMessageLen = 300

var (
	// ===== 2 failed, 10 passed, 1 skipped in 3.21s =====
	summaryLineRe = regexp.MustCompile(`(?m)^=+ (.+?) in [\d.]+s(?: \([^)]*\))? =+\s*$`)
	summaryPartRe = regexp.MustCompile(`(\d+) (passed|failed|errors?|skipped|xfailed|xpassed|deselected|warnings?|rerun)`)
)

// PytestParser reads pytest output and pytest-json-report documents
type PytestParser struct{}

// NewPytestParser creates a new PytestParser
func NewPytestParser() *PytestParser {
	return &PytestParser{}
}

// Counts is the terminal summary of one pytest run
type Counts struct {
	Passed  int
	Failed  int
	Errors  int
	Skipped int
	Rerun   int
}

// ParseCounts reads the last terminal summary line in output.
// ok is false when there is none, e.g. when the process crashed.
func (p *PytestParser) ParseCounts(output string) (c Counts, ok bool) {
	lines := summaryLineRe.FindAllStringSubmatch(stripansi.Strip(output), -1)
	if len(lines) == 0 {
		return c, false
	}
	for _, m := range summaryPartRe.FindAllStringSubmatch(lines[len(lines)-1][1], -1) {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "passed":
			c.Passed = n
		case "failed":
			c.Failed = n
		case "error", "errors":
			c.Errors = n
		case "skipped":
			c.Skipped = n
		case "rerun":
			c.Rerun = n
		}
	}
	return c, true
}

// ParseTestCounts returns (passed, failed) test cases for a finished module.
// Without a terminal summary the module counts as one case.
func (p *PytestParser) ParseTestCounts(res domain.ModuleResult) (passed, failed int) {
	if c, ok := p.ParseCounts(res.Outcome.Stdout); ok {
		failed = c.Failed + c.Errors
		if res.Aborted {
			failed++
		}
		return c.Passed, failed
	}
	if res.FinalCode == 0 {
		return 1, 0
	}
	return 0, 1
}

// ParseFailures converts the failed cases of a structured report
func (p *PytestParser) ParseFailures(m domain.Module, rep *report.StructuredReport) []domain.TestFailure {
	var failures []domain.TestFailure
	for _, tc := range rep.FailedCases() {
		detail := tc.FailureDetail()
		_, name, found := strings.Cut(tc.NodeID, "::")
		if !found {
			name = tc.NodeID
		}
		failures = append(failures, domain.TestFailure{
			TestName: name,
			NodeID:   tc.NodeID,
			Module:   m.ID,
			Outcome:  tc.Outcome,
			Message:  firstLine(crashMessage(tc, detail)),
			Detail:   detail,
			Duration: tc.CallDuration(),
			Aborted:  strings.HasPrefix(detail, "Test aborted:"),
		})
	}
	return failures
}

func crashMessage(tc report.TestCase, detail string) string {
	for _, st := range []*report.Stage{tc.Call, tc.Setup, tc.Teardown} {
		if st != nil && st.Crash != nil && st.Crash.Message != "" {
			return st.Crash.Message
		}
	}
	return detail
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > maxMessageLen {
		s = s[:maxMessageLen] + "..."
	}
	return s
}
