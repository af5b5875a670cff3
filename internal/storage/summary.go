package storage

import (
	"time"

	"gtp/internal/domain"
)

// Batch is everything a finished batch contributes to its summary
type Batch struct {
	RunID        string
	Mode         domain.RunMode
	Slots        int
	Results      []domain.ModuleResult
	Failures     []domain.TestFailure
	ExitCode     int
	FirstFailure string
	Duration     time.Duration
	Finished     time.Time
}

// NewSummary builds the persisted summary of a batch
func NewSummary(b Batch) *domain.TestResultsOutput {
	out := &domain.TestResultsOutput{
		Meta: domain.TestResultsMeta{
			RunID:           b.RunID,
			Mode:            b.Mode.String(),
			Slots:           b.Slots,
			TotalModules:    len(b.Results),
			FailedTestCases: len(b.Failures),
			ExitCode:        b.ExitCode,
			FirstFailure:    b.FirstFailure,
			Duration:        b.Duration.Round(time.Millisecond).String(),
			DurationSeconds: b.Duration.Seconds(),
			Timestamp:       b.Finished.Format(time.RFC3339),
		},
		Modules: make([]domain.ModuleSummary, 0, len(b.Results)),
		Details: b.Failures,
	}

	for _, r := range b.Results {
		switch r.Status {
		case domain.StatusPassed:
			out.Meta.PassedModules++
		case domain.StatusAborted:
			out.Meta.AbortedModules++
			out.Meta.FailedModules++
		case domain.StatusSkipped:
			out.Meta.SkippedModules++
		default:
			out.Meta.FailedModules++
		}

		ms := domain.ModuleSummary{
			Module:          r.Module.ID,
			Name:            r.Module.Name,
			Status:          string(r.Status),
			ExitCode:        r.FinalCode,
			GPU:             int(r.Outcome.Slot),
			Attempts:        r.Outcome.Attempts,
			DurationSeconds: r.Outcome.Duration.Seconds(),
			AbortTest:       r.AbortTest,
		}
		if r.Status == domain.StatusSkipped {
			ms.GPU = -1
		}
		if r.Err != nil {
			ms.Error = r.Err.Error()
		} else if r.ReportErr != nil {
			ms.Error = r.ReportErr.Error()
		}
		out.Modules = append(out.Modules, ms)
	}
	return out
}
