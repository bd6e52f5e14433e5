package crit

import (
	"github.com/llxisdsh/pb"
)

// Group provides critical sections keyed by arbitrary values (string,
// int, struct, etc.), created on demand and removed from memory once
// the last guard for a key is released.
//
// Usage:
//
//	var group crit.Group[string]
//
//	e, _ := group.Enter("user-123")
//	// critical section for user-123
//	e.Leave()
//
// Every key behaves like its own Critical: same-goroutine re-entry is
// counted, TryEnter never blocks, and guards released during a panic
// unwind (via defer) still retire the per-key entry.
//
// Implementation note: entries are reference counted, one reference per
// outstanding guard or in-flight enter; the count is only touched under
// the map's per-key entry processing, so retirement cannot race with a
// concurrent revival of the same key.
type Group[K comparable] struct {
	_ noCopy
	m pb.MapOf[K, *critShared]
}

// Enter blocks until the calling goroutine holds the section for k.
func (g *Group[K]) Enter(k K) (*Entered, error) {
	sh, err := g.acquire(k)
	if err != nil {
		return nil, err
	}
	if err := sh.slot.enter(); err != nil {
		g.release(k, sh)
		return nil, err
	}
	return &Entered{s: &sh.slot, release: func() { g.release(k, sh) }}, nil
}

// TryEnter attempts to enter the section for k without blocking.
func (g *Group[K]) TryEnter(k K) (*Entered, bool) {
	sh, err := g.acquire(k)
	if err != nil || !sh.slot.tryEnter() {
		if err == nil {
			g.release(k, sh)
		}
		return nil, false
	}
	return &Entered{s: &sh.slot, release: func() { g.release(k, sh) }}, true
}

// acquire takes one reference on k's entry, creating it if absent.
func (g *Group[K]) acquire(k K) (*critShared, error) {
	// Initialize the candidate outside the map callback so an init
	// failure never publishes a dead entry.
	fresh := &critShared{}
	if err := fresh.slot.init(); err != nil {
		return nil, err
	}
	fresh.refs.Store(1)

	sh, _ := g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *critShared]) (*pb.EntryOf[K, *critShared], *critShared, bool) {
			if l != nil {
				l.Value.refs.Add(1)
				return l, l.Value, true
			}
			return &pb.EntryOf[K, *critShared]{Value: fresh}, fresh, false
		},
	)
	return sh, nil
}

// release drops one reference; the entry is retired when the count
// reaches zero.
func (g *Group[K]) release(k K, sh *critShared) {
	g.m.ProcessEntry(
		k,
		func(l *pb.EntryOf[K, *critShared]) (*pb.EntryOf[K, *critShared], *critShared, bool) {
			if l != nil && l.Value == sh {
				if sh.refs.Add(-1) == 0 {
					sh.slot.del()
					return nil, nil, true
				}
			}
			return l, nil, false
		},
	)
}
