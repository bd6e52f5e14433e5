package crit

import (
	"fmt"
	"sync/atomic"
)

// critShared is the single heap allocation behind a Critical: the slot
// plus the reference count that decides when the slot is deleted.
// References are held by live handles and by outstanding guards, so a
// currently-entered slot always has at least one reference and
// delete-while-held is unrepresentable.
type critShared struct {
	slot slot
	refs atomic.Int64
}

// Critical is a shareable, always-initialized critical section. The
// underlying slot is allocated and initialized exactly once, never
// moves, and is deleted strictly after the last handle is closed and
// the last guard is released.
//
// A handle may be duplicated with Clone; every handle refers to the same
// slot and any of them may enter it. Each handle must be closed exactly
// once. A Critical must not be copied; pass the pointer or Clone.
type Critical struct {
	_      noCopy
	shared *critShared
	closed atomic.Uint32
}

// New creates a critical section. It fails with ErrInitFailed when the
// slot cannot be initialized, in which case no slot exists.
func New() (*Critical, error) {
	sh := &critShared{}
	if err := sh.slot.init(); err != nil {
		return nil, err
	}
	sh.refs.Store(1)
	return &Critical{shared: sh}, nil
}

// WithSpinCount creates a critical section whose entry path spins the
// given number of rounds before parking.
func WithSpinCount(spin uint32) (*Critical, error) {
	sh := &critShared{}
	if err := sh.slot.initWithSpin(spin); err != nil {
		return nil, err
	}
	sh.refs.Store(1)
	return &Critical{shared: sh}, nil
}

// Clone returns a new handle to the same critical section.
func (c *Critical) Clone() *Critical {
	if c.closed.Load() != 0 {
		panic("crit: Clone of closed Critical")
	}
	c.shared.refs.Add(1)
	return &Critical{shared: c.shared}
}

// Close releases this handle. The slot is deleted when the last handle
// has been closed and no guard is outstanding. Closing a handle twice
// panics.
func (c *Critical) Close() {
	if !c.closed.CompareAndSwap(0, 1) {
		panic("crit: Close of closed Critical")
	}
	if c.shared.refs.Add(-1) == 0 {
		c.shared.slot.del()
	}
}

// Enter blocks until the calling goroutine holds the section and
// returns the guard for the new entry. Re-entry by the holding
// goroutine succeeds immediately. The only possible error is
// ErrPossibleDeadlock, and only when Opts.DeadlockTimeout is set.
func (c *Critical) Enter() (*Entered, error) {
	sh := c.liveShared()
	sh.refs.Add(1)
	if err := sh.slot.enter(); err != nil {
		sh.refs.Add(-1)
		return nil, err
	}
	return &Entered{s: &sh.slot, refs: &sh.refs}, nil
}

// TryEnter attempts to enter without blocking. It reports false while
// any other goroutine holds the section.
func (c *Critical) TryEnter() (*Entered, bool) {
	sh := c.liveShared()
	sh.refs.Add(1)
	if !sh.slot.tryEnter() {
		sh.refs.Add(-1)
		return nil, false
	}
	return &Entered{s: &sh.slot, refs: &sh.refs}, true
}

// SetSpinCount updates the spin tuning and returns the previous value.
func (c *Critical) SetSpinCount(spin uint32) uint32 {
	return c.liveShared().slot.setSpinCount(spin)
}

// Eq reports whether two handles refer to the same critical section.
func (c *Critical) Eq(other *Critical) bool {
	return c.shared == other.shared
}

func (c *Critical) String() string {
	return fmt.Sprintf("Critical(%p)", c.shared)
}

func (c *Critical) liveShared() *critShared {
	if c.closed.Load() != 0 {
		panic("crit: use of closed Critical")
	}
	return c.shared
}
