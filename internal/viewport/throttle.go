package viewport

import (
	"time"

	"github.com/JakeFAU/readingprogress/internal/clock"
)

// poster hands a closure to the tracker loop. It reports false once the loop
// has stopped.
type poster func(func()) bool

// trailingThrottle admits at most one call to fn per window. The first signal
// in an idle period opens a window; further signals inside it are coalesced,
// and fn runs once when the window closes. A zero window calls fn for every
// signal. All methods must run on the tracker loop.
type trailingThrottle struct {
	window time.Duration
	clock  clock.Clock
	post   poster
	fn     func()
	timer  clock.Timer
}

func newTrailingThrottle(window time.Duration, clk clock.Clock, post poster, fn func()) *trailingThrottle {
	return &trailingThrottle{window: window, clock: clk, post: post, fn: fn}
}

func (th *trailingThrottle) signal() {
	if th.window <= 0 {
		th.fn()
		return
	}
	if th.timer != nil {
		return
	}
	th.timer = th.clock.AfterFunc(th.window, func() {
		th.post(th.flush)
	})
}

func (th *trailingThrottle) flush() {
	if th.timer == nil {
		return
	}
	th.timer = nil
	th.fn()
}

func (th *trailingThrottle) stop() {
	if th.timer != nil {
		th.timer.Stop()
		th.timer = nil
	}
}

// debouncer runs fn once signals have been quiet for delay. Each signal
// restarts the wait. All methods must run on the tracker loop.
type debouncer struct {
	delay time.Duration
	clock clock.Clock
	post  poster
	fn    func()
	timer clock.Timer
	gen   uint64
}

func newDebouncer(delay time.Duration, clk clock.Clock, post poster, fn func()) *debouncer {
	return &debouncer{delay: delay, clock: clk, post: post, fn: fn}
}

func (d *debouncer) signal() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.post(func() {
			// A newer signal may have raced with this expiry.
			if gen != d.gen {
				return
			}
			d.timer = nil
			d.fn()
		})
	})
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}
