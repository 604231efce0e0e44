// Package loop runs the agent's single logical timeline. Every inbound
// message, timer and connection lifecycle callback is posted here and runs to
// completion before the next one starts, so the state it touches needs no
// locking.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/8bitsats/Alice-Eliza-Hyperfy-Agent/internal/clock"
)

// ErrStopped is returned when work is submitted to a stopped loop.
var ErrStopped = errors.New("event loop stopped")

const defaultQueueSize = 1024

// Loop is a FIFO of closures drained by one goroutine.
type Loop struct {
	clock  clock.Clock
	events chan func()

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a loop. A nil clock means the wall clock.
func New(clk clock.Clock) *Loop {
	if clk == nil {
		clk = clock.Real()
	}
	return &Loop{
		clock:  clk,
		events: make(chan func(), defaultQueueSize),
		done:   make(chan struct{}),
	}
}

// Clock returns the loop's time source.
func (l *Loop) Clock() clock.Clock { return l.clock }

// Run processes events until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.done:
			return
		case fn := <-l.events:
			fn()
		}
	}
}

// Stop terminates Run. Queued events are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop has been stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Post queues fn. It reports false if the loop is stopped.
// Safe to call from any goroutine.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish. Must not be called from
// the loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		fn()
		close(finished)
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Task is a cancellable scheduled callback that runs on the loop.
// Tasks are created and cancelled from the loop goroutine.
type Task struct {
	loop     *Loop
	fn       func()
	period   time.Duration
	timer    clock.Timer
	canceled bool
}

// After schedules fn to run on the loop once, after d.
func (l *Loop) After(d time.Duration, fn func()) *Task {
	t := &Task{loop: l, fn: fn}
	t.arm(d)
	return t
}

// Every schedules fn to run on the loop every d until cancelled.
func (l *Loop) Every(d time.Duration, fn func()) *Task {
	t := &Task{loop: l, fn: fn, period: d}
	t.arm(d)
	return t
}

func (t *Task) arm(d time.Duration) {
	t.timer = t.loop.clock.AfterFunc(d, func() {
		t.loop.Post(t.run)
	})
}

func (t *Task) run() {
	// A fire that was already queued when Cancel ran must not execute.
	if t.canceled {
		return
	}
	if t.period > 0 {
		t.arm(t.period)
	} else {
		t.canceled = true
	}
	t.fn()
}

// Cancel stops the task. Safe on a nil or already finished task.
func (t *Task) Cancel() {
	if t == nil || t.canceled {
		return
	}
	t.canceled = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Active reports whether the task can still fire.
func (t *Task) Active() bool {
	return t != nil && !t.canceled
}
