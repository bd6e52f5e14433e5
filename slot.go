package crit

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/crit/internal/opt"
	"github.com/v2pro/plz/gls"
	"golang.org/x/sync/semaphore"
)

// slot is the in-process stand-in for the platform critical-section
// block: a fixed-size structure that must stay at a stable address from
// init until del. Every holder reaches it through a pointer, so the
// address is stable by construction; the padding keeps neighboring slots
// off the same cache line.
//
// Ownership is per goroutine. A goroutine that already holds the slot
// may enter again; leave decrements the recursion depth and releases the
// underlying semaphore only at zero.
type slot struct {
	slotState
	_ [(opt.CacheLineSize - unsafe.Sizeof(slotState{})%opt.CacheLineSize) % opt.CacheLineSize]byte
}

type slotState struct {
	// sem is the exclusion backend. Exactly one permit; TryAcquire
	// implements the non-blocking probe, Acquire the parked wait.
	sem *semaphore.Weighted

	// owner is the goroutine id currently holding the slot, 0 if none.
	owner atomic.Int64

	// depth is the recursion count. Touched only by the owning
	// goroutine while it holds the semaphore, so plain accesses are
	// fine: the semaphore hand-off orders them.
	depth int32

	// spin is the number of probe rounds before parking.
	spin atomic.Uint32

	// state is slotUninit / slotInitializing / slotReady.
	state atomic.Uint32
}

const (
	slotUninit = iota
	slotInitializing
	slotReady
)

// setup allocates the exclusion backend without publishing the state
// transition; init-once protocols drive the state word themselves. Any
// fault raised during setup is converted to ErrInitFailed rather than
// propagated, so a failed slot is simply never usable.
func (s *slot) setup() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrInitFailed
		}
	}()
	s.sem = semaphore.NewWeighted(1)
	return nil
}

func (s *slot) init() error {
	if err := s.setup(); err != nil {
		return err
	}
	s.state.Store(slotReady)
	return nil
}

// initWithSpin never fails per the underlying primitive's contract, but
// keeps the error in its signature for symmetry with init.
func (s *slot) initWithSpin(spin uint32) error {
	s.spin.Store(spin)
	return s.init()
}

// enter blocks until the calling goroutine holds the slot. Re-entry by
// the current owner succeeds immediately. The only failure is
// ErrPossibleDeadlock, and only when Opts.DeadlockTimeout is set.
func (s *slot) enter() error {
	id := gls.GoID()
	if s.owner.Load() == id {
		s.depth++
		return nil
	}
	if !s.spinAcquire() {
		if t := Opts.DeadlockTimeout; t > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), t)
			err := s.sem.Acquire(ctx, 1)
			cancel()
			if err != nil {
				reportPotentialDeadlock()
				return ErrPossibleDeadlock
			}
		} else {
			// Background context: Acquire cannot fail.
			_ = s.sem.Acquire(context.Background(), 1)
		}
	}
	s.owner.Store(id)
	s.depth = 1
	return nil
}

// tryEnter reports whether the slot was acquired without blocking.
func (s *slot) tryEnter() bool {
	id := gls.GoID()
	if s.owner.Load() == id {
		s.depth++
		return true
	}
	if s.sem.TryAcquire(1) {
		s.owner.Store(id)
		s.depth = 1
		return true
	}
	return false
}

// spinAcquire runs the pre-park spin phase: up to the configured spin
// count of probe-and-yield rounds. A spin count of zero degenerates to a
// single probe, which doubles as the uncontended fast path.
func (s *slot) spinAcquire() bool {
	n := s.spin.Load()
	for i := uint32(0); i < n; i++ {
		if s.sem.TryAcquire(1) {
			return true
		}
		runtime_doSpin()
	}
	return s.sem.TryAcquire(1)
}

// leave undoes one enter by the owning goroutine. Calling it from any
// other goroutine is a fatal misuse, reported like stdlib sync misuse.
func (s *slot) leave() {
	if s.owner.Load() != gls.GoID() {
		panic("crit: leave of slot not held by this goroutine")
	}
	s.depth--
	if s.depth == 0 {
		s.owner.Store(0)
		s.sem.Release(1)
	}
}

// del releases the slot's resources. Caller contract: no goroutine holds
// or is entering the slot. Use after del fails loudly on the nil
// backend.
func (s *slot) del() {
	s.state.Store(slotUninit)
	s.sem = nil
}

// setSpinCount updates the spin tuning and returns the previous value.
// It is independent of the entry state and safe from any goroutine.
func (s *slot) setSpinCount(spin uint32) uint32 {
	return s.spin.Swap(spin)
}
