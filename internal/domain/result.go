package domain

import "time"

// RunMode selects how a module reacts to failing tests
type RunMode int

const (
	// FailFast stops the module at its first failure and stops further dispatch
	FailFast RunMode = iota
	// ContinueOnFail lets every module run regardless of failures
	ContinueOnFail
)

func (m RunMode) String() string {
	if m == ContinueOnFail {
		return "continue-on-fail"
	}
	return "fail-fast"
}

// RunOutcome is the result of one module invocation, across all its attempts
type RunOutcome struct {
	Module   Module
	Slot     Slot
	ExitCode int           // Exit code of the last attempt
	Stdout   string        // Captured stdout of the last attempt
	Stderr   string        // Captured stderr of the last attempt
	Duration time.Duration // Wall-clock time across all attempts
	Attempts int
	TimedOut bool
	Err      error // Local error (start failure, log write failure); never a test failure
}

// ModuleStatus is the final classification of a module in a batch
type ModuleStatus string

const (
	StatusPassed  ModuleStatus = "passed"
	StatusFailed  ModuleStatus = "failed"
	StatusAborted ModuleStatus = "aborted"
	StatusSkipped ModuleStatus = "skipped"
	StatusError   ModuleStatus = "error"
)

// ModuleResult is what a worker reports back for one dispatched (or skipped) module
type ModuleResult struct {
	Module    Module
	Outcome   RunOutcome
	Status    ModuleStatus
	Aborted   bool   // An abort sentinel was found and merged
	AbortTest string // Test that was running when the module died
	FinalCode int
	Err       error // Unexpected local error (panic, slot acquisition)
	ReportErr error // Abort recovery failed to write a report
}

// TestResultsMeta contains metadata about a batch
type TestResultsMeta struct {
	RunID           string  `json:"run_id"`
	Mode            string  `json:"mode"`
	Slots           int     `json:"slots"`
	TotalModules    int     `json:"total_modules"`
	PassedModules   int     `json:"passed_modules"`
	FailedModules   int     `json:"failed_modules"`
	AbortedModules  int     `json:"aborted_modules"`
	SkippedModules  int     `json:"skipped_modules"`
	FailedTestCases int     `json:"failed_test_cases"`
	ExitCode        int     `json:"exit_code"`
	FirstFailure    string  `json:"first_failure,omitempty"`
	Duration        string  `json:"duration"`
	DurationSeconds float64 `json:"duration_seconds"`
	Timestamp       string  `json:"timestamp"`
}

// ModuleSummary is the persisted view of a ModuleResult
type ModuleSummary struct {
	Module          string  `json:"module"`
	Name            string  `json:"name"`
	Status          string  `json:"status"`
	ExitCode        int     `json:"exit_code"`
	GPU             int     `json:"gpu"`
	Attempts        int     `json:"attempts"`
	DurationSeconds float64 `json:"duration_seconds"`
	AbortTest       string  `json:"abort_test,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// TestResultsOutput is the complete persisted batch summary
type TestResultsOutput struct {
	Meta    TestResultsMeta `json:"meta"`
	Modules []ModuleSummary `json:"modules"`
	Details []TestFailure   `json:"details"`
}
