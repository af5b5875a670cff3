// Package gpu owns the accelerator slots a batch runs on: the fixed pool of
// slot tokens and the detection of how many accelerators the host has.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gtp/internal/domain"
)

// ErrSlotNotHeld is returned when releasing a slot that is not checked out
var ErrSlotNotHeld = errors.New("slot not held")

// Pool is a fixed set of interchangeable execution slots.
// Waiting acquirers are served in no particular order.
type Pool struct {
	free chan domain.Slot

	mu   sync.Mutex
	held map[domain.Slot]bool
}

// NewPool creates a pool holding slots 0..size-1
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	p := &Pool{
		free: make(chan domain.Slot, size),
		held: make(map[domain.Slot]bool, size),
	}
	for i := 0; i < size; i++ {
		p.free <- domain.Slot(i)
	}
	return p, nil
}

// Size returns the number of slots, fixed for the pool's lifetime
func (p *Pool) Size() int {
	return cap(p.free)
}

// InUse returns how many slots are currently checked out
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

// Acquire blocks until a slot is free or ctx is done
func (p *Pool) Acquire(ctx context.Context) (domain.Slot, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case slot := <-p.free:
		p.mu.Lock()
		p.held[slot] = true
		p.mu.Unlock()
		return slot, nil
	}
}

// Release returns a slot obtained from Acquire. Each acquire must be released exactly once.
func (p *Pool) Release(slot domain.Slot) error {
	p.mu.Lock()
	if !p.held[slot] {
		p.mu.Unlock()
		return fmt.Errorf("release gpu %d: %w", slot, ErrSlotNotHeld)
	}
	delete(p.held, slot)
	p.mu.Unlock()

	p.free <- slot
	return nil
}
