package crit

// CriticalStatic is a critical section intended for package-level
// variables, where the slot lives at one fixed address for the process
// lifetime and initialization timing is caller-controlled instead of
// automatic.
//
// The zero value is ready to use: the safe operations (Enter, TryEnter,
// SetSpinCount, Ref) initialize the slot on first use, racing
// initializers serialized by an internal state machine. Explicit
// lifecycle control goes through the state-token API: AssumeUninit and
// Delete hand out a StaticUninitRef, whose Init produces a StaticRef
// valid for entry operations. A CriticalStatic must not be copied and
// must not be deallocated while any goroutine can still reach it.
//
//	var section crit.CriticalStatic
//
//	func update() {
//		e, _ := section.Enter()
//		defer e.Leave()
//		...
//	}
type CriticalStatic struct {
	_ noCopy

	// InitSpinCount, when non-zero, is the spin count applied when the
	// slot is initialized by the safe operations:
	//
	//	var section = crit.CriticalStatic{InitSpinCount: 4000}
	//
	// It must only be set before first use and is never read again
	// afterwards.
	InitSpinCount uint32

	slot slot
}

// initOnce brings the slot to the ready state exactly once, however many
// goroutines race here. Losers spin; initialization is a handful of
// instructions, so the wait is short. An initialization failure on this
// implicit path is unrecoverable and panics; use AssumeUninit().Init()
// to observe the failure as an error instead.
func (c *CriticalStatic) initOnce() {
	if c.slot.state.Load() == slotReady {
		return
	}
	if c.slot.state.CompareAndSwap(slotUninit, slotInitializing) {
		if c.InitSpinCount != 0 {
			c.slot.spin.Store(c.InitSpinCount)
		}
		if err := c.slot.setup(); err != nil {
			c.slot.state.Store(slotUninit)
			panic(err)
		}
		c.slot.state.Store(slotReady)
		return
	}
	var spins int
	for c.slot.state.Load() != slotReady {
		delay(&spins)
	}
}

// Enter blocks until the calling goroutine holds the section. This will
// not deadlock if the calling goroutine already holds it.
func (c *CriticalStatic) Enter() (*Entered, error) {
	c.initOnce()
	if err := c.slot.enter(); err != nil {
		return nil, err
	}
	return &Entered{s: &c.slot}, nil
}

// TryEnter attempts to enter the section without blocking. This will
// not deadlock if the calling goroutine already holds it.
func (c *CriticalStatic) TryEnter() (*Entered, bool) {
	c.initOnce()
	if !c.slot.tryEnter() {
		return nil, false
	}
	return &Entered{s: &c.slot}, true
}

// SetSpinCount updates the spin tuning and returns the previous value.
func (c *CriticalStatic) SetSpinCount(spin uint32) uint32 {
	c.initOnce()
	return c.slot.setSpinCount(spin)
}

// Ref returns an initialized-state reference that bypasses the
// initialization check on all further operations.
func (c *CriticalStatic) Ref() StaticRef {
	c.initOnce()
	return StaticRef{s: &c.slot}
}

// AssumeUninit returns an uninitialized-state reference.
//
// Caller contract: the slot really is uninitialized, and no other
// goroutine initializes or uses it until the returned token's Init has
// completed. Only one live StaticUninitRef may exist per slot.
func (c *CriticalStatic) AssumeUninit() StaticUninitRef {
	return StaticUninitRef{s: &c.slot}
}

// Delete releases the slot's resources and returns a token eligible for
// exactly one further Init.
//
// Caller contract: no goroutine holds an entry, and no goroutine calls
// any operation on c between Delete and a subsequent Init.
func (c *CriticalStatic) Delete() StaticUninitRef {
	c.slot.del()
	return StaticUninitRef{s: &c.slot}
}

// StaticRef is a thin reference to an initialized CriticalStatic. All
// operations skip the initialization check, so a StaticRef may be
// copied and handed to other goroutines freely, as long as the backing
// CriticalStatic outlives every use.
type StaticRef struct {
	s *slot
}

// Enter blocks until the calling goroutine holds the section.
func (r StaticRef) Enter() (*Entered, error) {
	if err := r.s.enter(); err != nil {
		return nil, err
	}
	return &Entered{s: r.s}, nil
}

// TryEnter attempts to enter the section without blocking.
func (r StaticRef) TryEnter() (*Entered, bool) {
	if !r.s.tryEnter() {
		return nil, false
	}
	return &Entered{s: r.s}, true
}

// SetSpinCount updates the spin tuning and returns the previous value.
func (r StaticRef) SetSpinCount(spin uint32) uint32 {
	return r.s.setSpinCount(spin)
}

// Delete releases the slot's resources, consuming this reference.
//
// Caller contract: no goroutine holds an entry, this reference (and any
// copy of it) is never used again, and no safe operation runs on the
// backing CriticalStatic until the returned token is re-initialized.
func (r StaticRef) Delete() StaticUninitRef {
	r.s.del()
	return StaticUninitRef{s: r.s}
}

// StaticUninitRef is a reference to an uninitialized slot. The only
// valid operations are the state transitions Init and InitWithSpinCount,
// each of which consumes the token: using a StaticUninitRef after a
// successful Init, or copying it, is a contract violation.
type StaticUninitRef struct {
	s *slot
}

// Init initializes the slot and produces the initialized-state
// reference. On failure the slot stays uninitialized and the token
// remains valid for another attempt.
func (r StaticUninitRef) Init() (StaticRef, error) {
	if err := r.s.init(); err != nil {
		return StaticRef{}, err
	}
	return StaticRef{s: r.s}, nil
}

// InitWithSpinCount is Init with an initial spin count. It cannot fail
// per the underlying primitive's contract; the error is kept for
// symmetry.
func (r StaticUninitRef) InitWithSpinCount(spin uint32) (StaticRef, error) {
	if err := r.s.initWithSpin(spin); err != nil {
		return StaticRef{}, err
	}
	return StaticRef{s: r.s}, nil
}
