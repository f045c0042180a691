// Package clock abstracts time so the throttle and debounce timers of the
// viewport tracker can be driven deterministically in tests.
package clock

import "time"

// Clock returns the current time and schedules deferred callbacks.
type Clock interface {
	Now() time.Time
	// AfterFunc calls f on its own goroutine once d has elapsed.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports false when the
	// callback already ran or the timer was already stopped.
	Stop() bool
}
