package report

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gtp/internal/domain"
)

// ErrAlreadyRecovered is returned when a module's abort was already merged in this batch
var ErrAlreadyRecovered = errors.New("abort already recovered")

// Recoverer turns a leftover abort sentinel into a failed case in both module reports
type Recoverer struct {
	layout Layout
	now    func() time.Time

	mu        sync.Mutex
	recovered map[string]struct{}
}

// NewRecoverer creates a recoverer for the batch's log layout
func NewRecoverer(layout Layout) *Recoverer {
	return &Recoverer{
		layout:    layout,
		now:       time.Now,
		recovered: make(map[string]struct{}),
	}
}

// Recover checks for the module's sentinel. It returns nil when the module
// finished normally, and the recovered crash otherwise. An error means the
// crash was detected but a report could not be written.
func (r *Recoverer) Recover(m domain.Module, slot domain.Slot) (*AbortInfo, error) {
	path := r.layout.SentinelPath(m)
	s, err := LoadSentinel(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("module", m.ID).Msg("Ignoring unreadable abort sentinel")
		}
		return nil, nil
	}

	r.mu.Lock()
	if _, done := r.recovered[m.ID]; done {
		r.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", m.ID, ErrAlreadyRecovered)
	}
	r.recovered[m.ID] = struct{}{}
	r.mu.Unlock()

	if s.GPUID == "" {
		s.GPUID = GPUID(fmt.Sprint(int(slot)))
	}
	info := NewAbortInfo(m.ID, *s, r.now())
	log.Warn().
		Str("module", m.ID).
		Str("test", info.TestName).
		Str("gpu", info.GPUID).
		Dur("duration", info.Duration).
		Msg("Module aborted mid-test, recovering")

	var errs []error
	if err := r.patchStructured(m, info); err != nil {
		errs = append(errs, err)
	}
	if err := r.patchHuman(m, info); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug().Err(err).Str("module", m.ID).Msg("Failed to remove abort sentinel")
	}
	return &info, errors.Join(errs...)
}

func (r *Recoverer) patchStructured(m domain.Module, info AbortInfo) error {
	path := r.layout.StructuredPath(m)
	rep, err := LoadStructured(path)
	switch {
	case err == nil:
		rep.AppendFailure(info.TestCase(m.Name))
	case errors.Is(err, os.ErrNotExist):
		rep = NewAbortReport(m.ID, m.Name, info)
	default:
		log.Warn().Err(err).Str("module", m.ID).Msg("Replacing unparsable structured report")
		rep = NewAbortReport(m.ID, m.Name, info)
	}
	if err := rep.Save(path); err != nil {
		return fmt.Errorf("save structured report for %s: %w", m.ID, err)
	}
	return nil
}

func (r *Recoverer) patchHuman(m domain.Module, info AbortInfo) error {
	path := r.layout.HumanPath(m)
	h, err := LoadHuman(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("module", m.ID).Msg("Rebuilding human report")
		}
		if err := WriteAbortHuman(path, r.layout.HumanTitle(m), info); err != nil {
			return fmt.Errorf("write human report for %s: %w", m.ID, err)
		}
		return nil
	}
	if err := h.AddAbort(info); err != nil {
		return fmt.Errorf("patch human report for %s: %w", m.ID, err)
	}
	if err := h.Save(path); err != nil {
		return fmt.Errorf("save human report for %s: %w", m.ID, err)
	}
	return nil
}
