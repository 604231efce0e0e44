package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Callbacks fire synchronously, in
// deadline order, from inside Advance.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	done     bool
}

// NewFake returns a Fake clock frozen at start.
func NewFake(start time.Time) *Fake {
	f := &Fake{now: start}
	f.changed = sync.NewCond(&f.mu)
	return f
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	t := &fakeTimer{clock: f, deadline: f.now.Add(d), fn: fn}
	if d <= 0 {
		t.done = true
		f.mu.Unlock()
		fn()
		return t
	}
	f.pending = append(f.pending, t)
	f.changed.Broadcast()
	f.mu.Unlock()
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.clock.changed.Broadcast()
	return true
}

// Advance moves the clock forward by d and fires every timer whose deadline
// is reached, including timers scheduled by callbacks during the advance.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	target := f.now
	f.mu.Unlock()

	for {
		due := f.collect(target)
		if len(due) == 0 {
			return
		}
		for _, t := range due {
			t.fn()
		}
	}
}

func (f *Fake) collect(target time.Time) []*fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due, keep []*fakeTimer
	for _, t := range f.pending {
		switch {
		case t.done:
		case !t.deadline.After(target):
			t.done = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	f.pending = keep
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})
	return due
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingLocked()
}

func (f *Fake) pendingLocked() int {
	n := 0
	for _, t := range f.pending {
		if !t.done {
			n++
		}
	}
	return n
}

// WaitForTimers blocks until at least n timers are pending. Use it before
// Advance when the timer is registered by another goroutine.
func (f *Fake) WaitForTimers(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.pendingLocked() < n {
		f.changed.Wait()
	}
}
