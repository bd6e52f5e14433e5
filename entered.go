package crit

import (
	"sync/atomic"

	"github.com/v2pro/plz/gls"
)

// Entered is proof that the calling goroutine holds one entry of a
// critical section. It is produced only by a successful Enter or
// TryEnter and performs exactly one matching leave, either through an
// explicit Leave or, the common pattern, a deferred one:
//
//	e, _ := c.Enter()
//	defer e.Leave()
//
// Because deferred calls also run during panic unwinding, a goroutine
// that panics while holding the section still releases it before the
// unwind passes the acquiring frame.
//
// An Entered must not be copied, must not be shared with other
// goroutines, and must be released by the goroutine that entered.
// Leaving twice panics, the same way unlocking an unlocked sync.Mutex
// does.
type Entered struct {
	_ noCopy
	s *slot

	// refs, when non-nil, is the owning Critical's reference count; the
	// guard holds one reference so the slot outlives every entry.
	refs *atomic.Int64

	// release, when non-nil, runs after the final leave in place of the
	// refs protocol. Used by Group to retire per-key entries.
	release func()

	done atomic.Uint32
}

// Leave releases one entry. The section becomes available to other
// goroutines once every entry obtained by the owner has been left.
func (e *Entered) Leave() {
	// Ownership is checked before the guard is consumed, so a misuse
	// panic from the wrong goroutine does not invalidate the guard held
	// by the owner.
	if e.s.owner.Load() != gls.GoID() {
		panic("crit: Leave from goroutine that did not Enter")
	}
	if !e.done.CompareAndSwap(0, 1) {
		panic("crit: Leave of already released Entered")
	}
	e.s.leave()
	switch {
	case e.release != nil:
		e.release()
	case e.refs != nil:
		if e.refs.Add(-1) == 0 {
			e.s.del()
		}
	}
}

// SetSpinCount updates the section's spin tuning and returns the
// previous value. It does not affect the entry state.
func (e *Entered) SetSpinCount(spin uint32) uint32 {
	return e.s.setSpinCount(spin)
}
