package execution

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"gtp/internal/domain"
	"gtp/internal/gpu"
	"gtp/internal/metrics"
	"gtp/internal/report"
)

// State is the lifecycle phase of a Scheduler
type State int32

const (
	StateIdle State = iota
	StateDispatching
	StateDraining
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// exitInternal is the final code of a module whose worker panicked
const exitInternal = 2

// ModuleRunner runs one module on a held slot
type ModuleRunner interface {
	Run(ctx context.Context, m domain.Module, slot domain.Slot, mode domain.RunMode) domain.RunOutcome
}

// AbortRecoverer merges a crashed module's sentinel into its reports
type AbortRecoverer interface {
	Recover(m domain.Module, slot domain.Slot) (*report.AbortInfo, error)
}

// Progress observes modules as workers pick them up and finish them.
// Calls come from several goroutines.
type Progress interface {
	ModuleStarted(m domain.Module, slot domain.Slot)
	ModuleFinished(res domain.ModuleResult)
}

// BatchResult is the outcome of a whole batch
type BatchResult struct {
	Results      []domain.ModuleResult // In dispatch order, one per module
	ExitCode     int
	FirstFailure string // Module whose code became the batch exit code
	Duration     time.Duration
}

// Scheduler dispatches modules to a worker pool sized to the GPU pool.
// A Scheduler runs one batch.
type Scheduler struct {
	pool      *gpu.Pool
	runner    ModuleRunner
	recoverer AbortRecoverer
	mode      domain.RunMode
	batch     *BatchState
	state     atomic.Int32

	progress Progress
	metrics  *metrics.Recorder
}

// NewScheduler creates a new Scheduler
func NewScheduler(pool *gpu.Pool, runner ModuleRunner, recoverer AbortRecoverer, mode domain.RunMode) *Scheduler {
	return &Scheduler{
		pool:      pool,
		runner:    runner,
		recoverer: recoverer,
		mode:      mode,
		batch:     NewBatchState(),
	}
}

// SetProgress sets the progress observer for the scheduler
func (s *Scheduler) SetProgress(p Progress) {
	s.progress = p
}

// SetMetrics sets the metrics recorder for the scheduler
func (s *Scheduler) SetMetrics(m *metrics.Recorder) {
	s.metrics = m
}

// State returns the current lifecycle phase
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Batch exposes the shared fail-fast state
func (s *Scheduler) Batch() *BatchState {
	return s.batch
}

// Run dispatches every module and waits for all workers to finish. In
// fail-fast mode nothing is dispatched once a module has failed; modules
// already running are allowed to complete.
func (s *Scheduler) Run(ctx context.Context, modules []domain.Module) (*BatchResult, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateDispatching)) {
		return nil, errors.New("scheduler already started")
	}
	start := time.Now()

	ordered := append([]domain.Module(nil), modules...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	s.metrics.SetSlots(s.pool.Size())
	log.Info().Int("modules", len(ordered)).Int("slots", s.pool.Size()).Str("mode", s.mode.String()).Msg("Dispatching modules")

	results := make([]domain.ModuleResult, len(ordered))
	started := make([]bool, len(ordered))

	var g errgroup.Group
	g.SetLimit(s.pool.Size())
	for i, m := range ordered {
		if s.batch.Failed() || ctx.Err() != nil {
			break
		}
		// Blocks while every worker is busy
		g.Go(func() error {
			results[i], started[i] = s.runUnit(ctx, m)
			return nil
		})
	}

	s.state.Store(int32(StateDraining))
	_ = g.Wait()

	for i, m := range ordered {
		if started[i] {
			continue
		}
		results[i] = domain.ModuleResult{Module: m, Status: domain.StatusSkipped}
		s.metrics.RecordModule(results[i])
		if s.progress != nil {
			s.progress.ModuleFinished(results[i])
		}
	}

	code, first := s.batch.ExitCode()
	s.metrics.SetExitCode(code)
	s.state.Store(int32(StateDone))

	res := &BatchResult{
		Results:      results,
		ExitCode:     code,
		FirstFailure: first,
		Duration:     time.Since(start),
	}
	log.Info().Int("exit_code", code).Dur("duration", res.Duration).Msg("Batch finished")
	return res, nil
}

// runUnit is one worker's handling of one module: acquire, run, recover,
// release, record. It reports false when the module never ran.
func (s *Scheduler) runUnit(ctx context.Context, m domain.Module) (res domain.ModuleResult, ran bool) {
	if s.batch.Failed() || ctx.Err() != nil {
		return res, false
	}

	waitStart := time.Now()
	slot, err := s.pool.Acquire(ctx)
	if err != nil {
		return res, false
	}
	s.metrics.ObserveSlotWait(time.Since(waitStart))
	if s.batch.Failed() {
		if err := s.pool.Release(slot); err != nil {
			log.Error().Err(err).Str("module", m.ID).Msg("Failed to release gpu")
		}
		return res, false
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := s.pool.Release(slot); err != nil {
			log.Error().Err(err).Str("module", m.ID).Msg("Failed to release gpu")
		}
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("module", m.ID).Interface("panic", p).Bytes("stack", debug.Stack()).Msg("Worker panicked")
			res = domain.ModuleResult{
				Module:    m,
				Outcome:   domain.RunOutcome{Module: m, Slot: slot},
				Status:    domain.StatusError,
				FinalCode: exitInternal,
				Err:       fmt.Errorf("worker panic: %v", p),
			}
			ran = true
			s.finish(res)
		}
	}()
	defer release()

	if s.progress != nil {
		s.progress.ModuleStarted(m, slot)
	}

	outcome := s.runner.Run(ctx, m, slot, s.mode)
	info, recoverErr := s.recoverer.Recover(m, slot)
	release()

	res = classify(m, outcome, info, recoverErr)
	s.finish(res)
	return res, true
}

// finish records a module's final code and notifies observers
func (s *Scheduler) finish(res domain.ModuleResult) {
	if s.mode == domain.FailFast && s.batch.Record(res.Module, res.FinalCode) {
		log.Warn().Str("module", res.Module.ID).Int("exit_code", res.FinalCode).Msg("Module failed, stopping dispatch")
	}
	s.metrics.RecordModule(res)
	if s.progress != nil {
		s.progress.ModuleFinished(res)
	}

	ev := log.Info()
	if res.FinalCode != 0 {
		ev = log.Warn()
	}
	ev.Str("module", res.Module.ID).
		Int("gpu", int(res.Outcome.Slot)).
		Int("exit_code", res.FinalCode).
		Int("attempts", res.Outcome.Attempts).
		Dur("duration", res.Outcome.Duration).
		Str("status", string(res.Status)).
		Msg("Module finished")
}

// classify derives a module's status and final code. A recovered abort fails
// the module even when the process exited cleanly.
func classify(m domain.Module, outcome domain.RunOutcome, info *report.AbortInfo, recoverErr error) domain.ModuleResult {
	res := domain.ModuleResult{
		Module:    m,
		Outcome:   outcome,
		FinalCode: outcome.ExitCode,
		Err:       outcome.Err,
	}
	if recoverErr != nil {
		res.ReportErr = recoverErr
		log.Error().Err(recoverErr).Str("module", m.ID).Msg("Abort recovery failed")
	}

	switch {
	case info != nil:
		res.Status = domain.StatusAborted
		res.Aborted = true
		res.AbortTest = info.TestName
		if res.FinalCode == 0 {
			res.FinalCode = 1
		}
	case outcome.Err != nil:
		res.Status = domain.StatusError
	case outcome.ExitCode == 0:
		res.Status = domain.StatusPassed
	default:
		res.Status = domain.StatusFailed
	}
	return res
}
