// Package clock abstracts the time source used by the agent's timers so that
// idle cycles, interaction windows and reconnect delays can be driven
// deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package the agent depends on.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f after d. The real clock calls f on its own goroutine;
	// the fake clock calls it synchronously from Advance.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call. It reports false if the call already fired or
	// was already stopped.
	Stop() bool
}

// Real returns the wall clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
