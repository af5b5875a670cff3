package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/rs/zerolog/log"

	"gtp/internal/config"
	"gtp/internal/domain"
	"gtp/internal/report"
)

const (
	// ExitTimeout is reported for an attempt killed by the module timeout
	ExitTimeout = 124
	// ExitStartFailure is reported when the command could not be started
	ExitStartFailure = 127
	// exitTestsFailed is pytest's code for failing tests
	exitTestsFailed = 1

	waitDelay = 10 * time.Second
)

// Runner executes one module in a subprocess pinned to a single GPU
type Runner struct {
	config *config.Config
	layout report.Layout
}

// NewRunner creates a new Runner
func NewRunner(cfg *config.Config, layout report.Layout) *Runner {
	return &Runner{config: cfg, layout: layout}
}

type attemptResult struct {
	exitCode int
	stdout   string
	stderr   string
	timedOut bool
	signaled bool
	err      error
}

// Run executes the module, rerunning failed attempts up to the configured
// limit. A failing module is not an error: the exit code is in the outcome.
func (r *Runner) Run(ctx context.Context, m domain.Module, slot domain.Slot, mode domain.RunMode) domain.RunOutcome {
	start := time.Now()
	out := domain.RunOutcome{Module: m, Slot: slot}
	maxAttempts := 1 + r.config.MaxReruns

	var console strings.Builder
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		r.removeStale(m)

		res := r.attempt(ctx, m, slot, mode)
		out.Attempts = attempt
		out.ExitCode = res.exitCode
		out.Stdout = res.stdout
		out.Stderr = res.stderr
		out.TimedOut = res.timedOut
		out.Err = res.err

		fmt.Fprintf(&console, "===== attempt %d/%d on gpu %d: exit code %d =====\n", attempt, maxAttempts, slot, res.exitCode)
		console.WriteString(stripansi.Strip(res.stdout))
		console.WriteString(stripansi.Strip(res.stderr))

		logger := log.With().Str("module", m.ID).Int("gpu", int(slot)).Int("attempt", attempt).Int("exit_code", res.exitCode).Logger()
		if !shouldRerun(res) || ctx.Err() != nil || attempt == maxAttempts {
			logger.Debug().Msg("Module attempt finished")
			break
		}
		logger.Info().Msg("Module failed, rerunning")
	}
	out.Duration = time.Since(start)

	if err := os.WriteFile(r.layout.ConsolePath(m), []byte(console.String()), 0644); err != nil {
		log.Warn().Err(err).Str("module", m.ID).Msg("Failed to write console log")
	}
	return out
}

// shouldRerun accepts test failures and crashes. Timeouts, usage errors and
// runs without tests are final.
func shouldRerun(res attemptResult) bool {
	if res.timedOut || res.err != nil {
		return false
	}
	return res.exitCode == exitTestsFailed || res.signaled
}

// removeStale deletes outputs of a previous attempt so they cannot be mistaken for this one's
func (r *Runner) removeStale(m domain.Module) {
	if err := r.layout.RemoveModuleFiles(m); err != nil {
		log.Warn().Err(err).Str("module", m.ID).Msg("Failed to remove stale files")
	}
}

func (r *Runner) attempt(ctx context.Context, m domain.Module, slot domain.Slot, mode domain.RunMode) attemptResult {
	args := r.command(m, slot, mode)

	attemptCtx := ctx
	if r.config.ModuleTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.config.ModuleTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(attemptCtx, args[0], args[1:]...)
	cmd.Dir = r.config.ProjectPath
	cmd.Env = append(os.Environ(), r.config.ModuleEnv(int(slot), r.layout.SentinelPath(m))...)
	cmd.WaitDelay = waitDelay
	configureCommand(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug().Str("module", m.ID).Int("gpu", int(slot)).Strs("args", args).Msg("Starting module")
	err := cmd.Run()

	res := attemptResult{stdout: stdout.String(), stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.exitCode = 0
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		res.exitCode = ExitTimeout
		res.timedOut = true
		log.Warn().Str("module", m.ID).Dur("timeout", r.config.ModuleTimeout).Msg("Module timed out")
	case errors.As(err, &exitErr):
		res.exitCode, res.signaled = exitStatus(exitErr.ProcessState)
	default:
		res.exitCode = ExitStartFailure
		res.err = fmt.Errorf("start %s: %w", args[0], err)
		log.Error().Err(err).Str("module", m.ID).Msg("Failed to start module")
	}
	return res
}

// command expands the command template for one attempt
func (r *Runner) command(m domain.Module, slot domain.Slot, mode domain.RunMode) []string {
	repl := strings.NewReplacer(
		"{module}", m.ID,
		"{json_report}", r.layout.StructuredPath(m),
		"{html_report}", r.layout.HumanPath(m),
		"{sentinel}", r.layout.SentinelPath(m),
		"{gpu}", strconv.Itoa(int(slot)),
	)
	args := make([]string, 0, len(r.config.Command)+len(r.config.FailFastArgs))
	for _, arg := range r.config.Command {
		if arg == "{failfast}" {
			if mode == domain.FailFast {
				args = append(args, r.config.FailFastArgs...)
			}
			continue
		}
		args = append(args, repl.Replace(arg))
	}
	return args
}
