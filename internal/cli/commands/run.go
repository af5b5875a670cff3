package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gtp/internal/cli"
	"gtp/internal/config"
	"gtp/internal/discovery"
	"gtp/internal/domain"
	"gtp/internal/execution"
	"gtp/internal/gpu"
	"gtp/internal/metrics"
	"gtp/internal/parser"
	"gtp/internal/report"
	"gtp/internal/storage"
	"gtp/internal/ui"
)

// exitInterrupted is the batch exit code after Ctrl-C when no module failed
const exitInterrupted = 130

// RunCommand handles the run command
type RunCommand struct {
	config         *config.Config
	flags          *cli.Flags
	counter        gpu.Counter
	parser         parser.Parser
	testCaseParser *discovery.Parser
}

// NewRunCommand creates a new RunCommand
func NewRunCommand(
	cfg *config.Config,
	flags *cli.Flags,
	counter gpu.Counter,
	parser parser.Parser,
	testCaseParser *discovery.Parser,
) *RunCommand {
	return &RunCommand{
		config:         cfg,
		flags:          flags,
		counter:        counter,
		parser:         parser,
		testCaseParser: testCaseParser,
	}
}

// Execute runs the command
func (rc *RunCommand) Execute(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := rc.config
	layout := report.NewLayout(cfg.GetLogDir())
	if err := os.MkdirAll(layout.Dir, 0755); err != nil {
		return &ExitError{Code: exitRuntime, Err: fmt.Errorf("failed to create log dir: %w", err)}
	}

	slots := cfg.Parallel
	if slots == 0 {
		n, err := rc.counter.Count(ctx)
		if err != nil {
			return &ExitError{Code: exitRuntime, Err: err}
		}
		color.Cyan("Detected %d GPU(s)", n)
		slots = n
	}

	d, err := discovery.New(cfg, layout)
	if err != nil {
		return &ExitError{Code: exitRuntime, Err: err}
	}
	sel, err := discovery.Resolve(ctx, d, cfg)
	if err != nil {
		var collectErr *discovery.CollectError
		if errors.As(err, &collectErr) && collectErr.ExitCode != 0 {
			return &ExitError{Code: collectErr.ExitCode, Err: err}
		}
		return &ExitError{Code: exitRuntime, Err: err}
	}
	if len(sel.Modules) == 0 {
		color.Yellow("No test modules to execute")
		return nil
	}

	removed, err := layout.Reset()
	if err != nil {
		return &ExitError{Code: exitRuntime, Err: fmt.Errorf("failed to clear previous reports: %w", err)}
	}
	if removed > 0 {
		log.Debug().Int("files", removed).Msg("Removed reports of a previous batch")
	}

	pool, err := gpu.NewPool(slots)
	if err != nil {
		return &ExitError{Code: exitRuntime, Err: err}
	}

	mode := domain.FailFast
	if cfg.ContinueOnFail {
		mode = domain.ContinueOnFail
	}

	runID := uuid.NewString()
	log.Info().Str("run_id", runID).Int("modules", len(sel.Modules)).Int("gpus", slots).Msg("Starting batch")

	scheduler := execution.NewScheduler(pool, execution.NewRunner(cfg, layout), report.NewRecoverer(layout), mode)
	progressBar := ui.NewProgressBar(len(sel.Modules))
	scheduler.SetProgress(progressBar)
	recorder := metrics.NewRecorder()
	scheduler.SetMetrics(recorder)

	batch, err := scheduler.Run(ctx, sel.Modules)
	progressBar.Finish()
	if err != nil {
		return &ExitError{Code: exitRuntime, Err: err}
	}

	// Reports are still written after Ctrl-C
	aggCtx := context.WithoutCancel(ctx)
	failures, aggErr := rc.aggregate(aggCtx, layout, sel.Modules)

	summary := storage.NewSummary(storage.Batch{
		RunID:        runID,
		Mode:         mode,
		Slots:        slots,
		Results:      batch.Results,
		Failures:     failures,
		ExitCode:     batch.ExitCode,
		FirstFailure: batch.FirstFailure,
		Duration:     batch.Duration,
		Finished:     time.Now(),
	})
	st := storage.NewJSONStorage(layout.SummaryPath())
	if err := st.Save(summary); err != nil {
		log.Warn().Err(err).Msg("Failed to save batch summary")
	}

	if path := cfg.GetMetricsPath(); path != "" {
		if err := recorder.WriteTextfile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to write metrics")
		}
	}

	ui.NewFormatter(cfg.ProjectPath, rc.testCaseParser).PrintSummary(summary)

	if rc.flags.OpenFailures && len(summary.Details) > 0 {
		if err := ui.NewErrorViewer(st).View(summary); err != nil {
			log.Warn().Err(err).Msg("Failures viewer exited with an error")
		}
	}

	switch {
	case batch.ExitCode != 0:
		return &ExitError{Code: batch.ExitCode}
	case aggErr != nil:
		return &ExitError{Code: exitRuntime, Err: aggErr}
	case ctx.Err() != nil:
		return &ExitError{Code: exitInterrupted, Err: errors.New("batch interrupted")}
	}
	return nil
}

// aggregate writes the combined reports and returns the failed test cases of
// this batch's modules. Merge failures are logged, not returned.
func (rc *RunCommand) aggregate(ctx context.Context, layout report.Layout, modules []domain.Module) ([]domain.TestFailure, error) {
	agg, err := report.NewAggregator(layout, merger(rc.config)).Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to write combined report")
		return nil, fmt.Errorf("aggregate reports: %w", err)
	}
	if agg.MergeErr != nil {
		log.Warn().Err(agg.MergeErr).Msg("HTML reports were not merged")
	}

	byName := make(map[string]domain.Module, len(modules))
	for _, m := range modules {
		byName[m.Name] = m
	}

	var failures []domain.TestFailure
	for _, r := range agg.Reports {
		m, ok := byName[r.Name]
		if !ok {
			log.Debug().Str("report", r.Name).Msg("Report is not from this batch")
			continue
		}
		failures = append(failures, rc.parser.ParseFailures(m, r.Report)...)
	}
	return failures, nil
}

// merger returns the configured HTML merger, or nil when merging is off
func merger(cfg *config.Config) report.HTMLMerger {
	if cfg.NoMerge || len(cfg.MergeTool) == 0 {
		return nil
	}
	return report.ExecMerger{Command: cfg.MergeTool}
}
