package crit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"
)

// ErrInitFailed is returned when a slot cannot be initialized, typically
// under memory pressure. The slot is left uninitialized and must not be
// used.
var ErrInitFailed = errors.New("crit: failed to initialize critical section")

// ErrPossibleDeadlock is returned by Enter when the calling goroutine
// blocked for longer than Opts.DeadlockTimeout. Per the underlying
// primitive's documentation this is a programming error: do not handle
// it, fix the deadlock. It is surfaced as a value rather than a fault so
// that a blocked goroutine never dies while callers assume it holds the
// section.
var ErrPossibleDeadlock = errors.New("crit: possible deadlock detected")

// Opts controls optional diagnostics. All fields may only be modified
// before the first Enter, or while no goroutine is blocked entering.
var Opts = struct {
	// DeadlockTimeout bounds how long a single Enter may block before it
	// gives up with ErrPossibleDeadlock. Zero (the default) means block
	// forever.
	DeadlockTimeout time.Duration

	// OnPotentialDeadlock, if non-nil, is called before Enter returns
	// ErrPossibleDeadlock.
	OnPotentialDeadlock func()

	// LogBuf receives a full goroutine dump when a potential deadlock is
	// detected. Defaults to os.Stderr.
	LogBuf io.Writer
}{}

func reportPotentialDeadlock() {
	w := Opts.LogBuf
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "POTENTIAL DEADLOCK: Enter blocked for more than %v\n", Opts.DeadlockTimeout)
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	w.Write(buf[:n])
	if fn := Opts.OnPotentialDeadlock; fn != nil {
		fn()
	}
}
