package execution

import (
	"sync"
	"sync/atomic"

	"gtp/internal/domain"
)

// BatchState is the fail-fast signal shared by every worker of a batch.
// The first recorded failure wins; later ones only see the flag set.
type BatchState struct {
	failed atomic.Bool
	stop   chan struct{}

	mu     sync.Mutex
	code   int
	module string
}

// NewBatchState creates an unflagged batch state
func NewBatchState() *BatchState {
	return &BatchState{stop: make(chan struct{})}
}

// Record stores a non-zero exit code for m. It returns true when this call
// set the flag.
func (s *BatchState) Record(m domain.Module, code int) bool {
	if code == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed.Load() {
		return false
	}
	s.code = code
	s.module = m.ID
	s.failed.Store(true)
	close(s.stop)
	return true
}

// Failed reports whether a failure was recorded
func (s *BatchState) Failed() bool {
	return s.failed.Load()
}

// Done is closed when the first failure is recorded
func (s *BatchState) Done() <-chan struct{} {
	return s.stop
}

// ExitCode returns the first recorded code and its module, or 0 and ""
func (s *BatchState) ExitCode() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.code, s.module
}
