package crit

import (
	"runtime"
	"sync"
	"testing"
)

// Package-level sections, the intended habitat of CriticalStatic.
var (
	wallStatic    CriticalStatic
	wallRefStatic = CriticalStatic{InitSpinCount: 100}
)

// TestStaticThreadsOnTheWall is the unwind scenario against a
// package-level zero-value section: lazy init under a 100-goroutine
// race, one panic while held, 99 surviving increments.
func TestStaticThreadsOnTheWall(t *testing.T) {
	var x int
	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			defer func() {
				if i == 0 {
					if recover() == nil {
						t.Error("goroutine 0 did not panic")
					}
				}
			}()
			e, err := wallStatic.Enter()
			if err != nil {
				t.Error(err)
				return
			}
			defer e.Leave()
			if i == 0 {
				panic("take one down")
			}
			v := x + 1
			runtime.Gosched()
			x = v
		}()
	}
	wg.Wait()
	if x != n-1 {
		t.Fatalf("x = %d, want %d", x, n-1)
	}
}

// TestStaticRefThreadsOnTheWall repeats the scenario through a copied
// StaticRef, which skips the init check on every operation.
func TestStaticRefThreadsOnTheWall(t *testing.T) {
	ref := wallRefStatic.Ref()
	var x int
	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := range n {
		go func() {
			defer wg.Done()
			defer func() {
				if i == 0 {
					if recover() == nil {
						t.Error("goroutine 0 did not panic")
					}
				}
			}()
			e, err := ref.Enter()
			if err != nil {
				t.Error(err)
				return
			}
			defer e.Leave()
			if i == 0 {
				panic("take one down")
			}
			v := x + 1
			runtime.Gosched()
			x = v
		}()
	}
	wg.Wait()
	if x != n-1 {
		t.Fatalf("x = %d, want %d", x, n-1)
	}
}

func TestStaticZeroValueReentry(t *testing.T) {
	var section CriticalStatic

	e1, err := section.Enter()
	if err != nil {
		t.Fatal(err)
	}
	e2, ok := section.TryEnter()
	if !ok {
		t.Fatal("re-entrant TryEnter failed")
	}

	blocked := make(chan bool, 1)
	go func() {
		e, ok := section.TryEnter()
		if ok {
			e.Leave()
		}
		blocked <- !ok
	}()
	if !<-blocked {
		t.Fatal("TryEnter succeeded from another goroutine while held")
	}

	e2.Leave()
	e1.Leave()
}

func TestStaticInitSpinCount(t *testing.T) {
	section := CriticalStatic{InitSpinCount: 100}
	if prev := section.SetSpinCount(200); prev != 100 {
		t.Fatalf("previous spin count = %d, want 100", prev)
	}
	e, err := section.Enter()
	if err != nil {
		t.Fatal(err)
	}
	e.Leave()
}

// TestStaticDeleteInitCycle walks the state-token lifecycle: initialized
// by first use, deleted through the typed ref, re-initialized exactly
// once through the uninit token, then usable again.
func TestStaticDeleteInitCycle(t *testing.T) {
	var section CriticalStatic

	ref := section.Ref()
	e, err := ref.Enter()
	if err != nil {
		t.Fatal(err)
	}
	e.Leave()

	uninit := ref.Delete()
	if section.slot.state.Load() != slotUninit {
		t.Fatal("slot not uninitialized after Delete")
	}

	ref2, err := uninit.InitWithSpinCount(50)
	if err != nil {
		t.Fatal(err)
	}
	if prev := ref2.SetSpinCount(0); prev != 50 {
		t.Fatalf("previous spin count = %d, want 50", prev)
	}
	e, ok := ref2.TryEnter()
	if !ok {
		t.Fatal("TryEnter failed after re-initialization")
	}
	e.Leave()

	// And from the parent as well: Delete returns a fresh uninit token.
	uninit = section.Delete()
	ref3, err := uninit.Init()
	if err != nil {
		t.Fatal(err)
	}
	e, err = ref3.Enter()
	if err != nil {
		t.Fatal(err)
	}
	e.Leave()
}

// TestStaticAssumeUninit initializes a never-touched section through the
// explicit token instead of the lazy path.
func TestStaticAssumeUninit(t *testing.T) {
	var section CriticalStatic

	ref, err := section.AssumeUninit().Init()
	if err != nil {
		t.Fatal(err)
	}
	e, err := ref.Enter()
	if err != nil {
		t.Fatal(err)
	}
	e.Leave()

	// The lazy path must observe the explicit initialization rather
	// than re-initialize.
	e2, err := section.Enter()
	if err != nil {
		t.Fatal(err)
	}
	e2.Leave()
}
