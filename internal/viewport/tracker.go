package viewport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/readingprogress/internal/clock"
	"github.com/JakeFAU/readingprogress/internal/clock/system"
)

// ResizeDebounce is how long resize notifications must be quiet before the
// viewport height is re-read.
const ResizeDebounce = 300 * time.Millisecond

const defaultQueueSize = 256

var (
	// ErrNilPage is returned when a Tracker is built without a Page.
	ErrNilPage = errors.New("viewport: page is required")
	// ErrTrackerClosed is returned by operations on a closed Tracker.
	ErrTrackerClosed = errors.New("viewport: tracker closed")
)

// TrackerConfig controls a Tracker.
//   - ThrottleTime: minimum spacing between emitted states, trailing edge only
//     (default 0, i.e. one state per signal).
//   - Clock: time source for throttle and debounce timers (default system clock).
//   - Registry: container set to track (default a new Registry over the page).
//   - QueueSize: capacity of the event queue (default 256).
//   - Logger: optional structured logger.
type TrackerConfig struct {
	ThrottleTime time.Duration
	Clock        clock.Clock
	Registry     *Registry
	QueueSize    int
	Logger       *zap.Logger
}

// Tracker turns scroll and resize notifications into a stream of
// ViewportState snapshots.
//
// All tracking work runs on a single loop goroutine: page callbacks, timer
// expirations and subscriptions are queued as closures and executed in order,
// so subscribers observe states in the order they were computed and never
// concurrently.
type Tracker struct {
	page     Page
	registry *Registry
	clock    clock.Clock
	logger   *zap.Logger

	events    chan func()
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	cancelScroll func()
	cancelResize func()

	// Owned by the loop goroutine.
	throttle       *trailingThrottle
	resize         *debouncer
	viewportHeight float64
	active         TrackedContainer
	hasActive      bool
	lastActive     TrackedContainer
	hasLastActive  bool
	subscribers    map[uint64]func(ViewportState)
	nextSubscriber uint64

	// Read-side copies for callers outside the loop.
	snapMu       sync.RWMutex
	state        ViewportState
	snapLast     TrackedContainer
	snapHasLast  bool
	ticks        uint64
	snapViewport float64
}

// NewTracker registers the containers, computes the initial state and starts
// listening to the page. Close must be called to release the listeners.
func NewTracker(page Page, cfg TrackerConfig, containers ...Container) (*Tracker, error) {
	if page == nil {
		return nil, ErrNilPage
	}
	if cfg.ThrottleTime < 0 {
		return nil, fmt.Errorf("viewport: throttle time must be >= 0, got %s", cfg.ThrottleTime)
	}
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry(page)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &Tracker{
		page:        page,
		registry:    cfg.Registry,
		clock:       cfg.Clock,
		logger:      logger,
		events:      make(chan func(), cfg.QueueSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		subscribers: make(map[uint64]func(ViewportState)),
	}
	t.throttle = newTrailingThrottle(cfg.ThrottleTime, cfg.Clock, t.post, t.tick)
	t.resize = newDebouncer(ResizeDebounce, cfg.Clock, t.post, t.refreshViewport)

	t.viewportHeight = page.ViewportHeight()
	if len(containers) > 0 {
		t.registry.AddAll(containers)
	}
	t.recompute()

	go t.run()

	t.cancelScroll = page.OnScroll(func() { t.post(t.throttle.signal) })
	t.cancelResize = page.OnResize(func() { t.post(t.resize.signal) })

	logger.Debug("viewport tracker started",
		zap.Duration("throttle", cfg.ThrottleTime),
		zap.Int("containers", t.registry.Len()),
		zap.Float64("viewport_height", t.viewportHeight),
	)
	return t, nil
}

// Registry returns the container set the tracker reads on every tick.
func (t *Tracker) Registry() *Registry {
	return t.registry
}

// State returns the most recently computed snapshot.
func (t *Tracker) State() ViewportState {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return t.state
}

// LastActive returns the most recent container that was active, which is
// retained while nothing is active.
func (t *Tracker) LastActive() (TrackedContainer, bool) {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return t.snapLast, t.snapHasLast
}

// ViewportHeight returns the viewport height used by the latest tick.
func (t *Tracker) ViewportHeight() float64 {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return t.snapViewport
}

// Ticks returns how many states have been computed, including the initial one.
func (t *Tracker) Ticks() uint64 {
	t.snapMu.RLock()
	defer t.snapMu.RUnlock()
	return t.ticks
}

// Subscribe registers fn for every state computed from now on. fn first
// receives the current state, then each new one, on the tracker loop; it must
// not block. The returned function unsubscribes.
func (t *Tracker) Subscribe(fn func(ViewportState)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	var id uint64
	registered := t.post(func() {
		t.nextSubscriber++
		id = t.nextSubscriber
		t.subscribers[id] = fn
		fn(t.State())
	})
	if !registered {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			t.post(func() { delete(t.subscribers, id) })
		})
	}
}

// Invalidate schedules a recomputation through the throttle, as if the page
// had scrolled. Callers use it after mutating the registry.
func (t *Tracker) Invalidate() {
	t.post(t.throttle.signal)
}

// Sync blocks until every event queued before the call has been processed.
func (t *Tracker) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !t.post(func() { close(done) }) {
		return ErrTrackerClosed
	}
	select {
	case <-done:
		return nil
	case <-t.doneCh:
		return ErrTrackerClosed
	case <-ctx.Done():
		return fmt.Errorf("viewport sync: %w", ctx.Err())
	}
}

// Close removes the page listeners, stops pending timers and stops the loop.
// The Tracker is inert afterwards. It is safe to call multiple times.
func (t *Tracker) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		if t.cancelScroll != nil {
			t.cancelScroll()
		}
		if t.cancelResize != nil {
			t.cancelResize()
		}
		close(t.stopCh)
	})
	select {
	case <-t.doneCh:
	case <-ctx.Done():
		return fmt.Errorf("viewport tracker close wait: %w", ctx.Err())
	}
	// The loop has exited, so the timers are no longer shared.
	t.throttle.stop()
	t.resize.stop()
	return nil
}

func (t *Tracker) run() {
	defer close(t.doneCh)
	for {
		select {
		case fn := <-t.events:
			fn()
		case <-t.stopCh:
			t.logger.Debug("viewport tracker stopped")
			return
		}
	}
}

// post queues fn for the loop. It blocks while the queue is full and gives up
// once the tracker is closed.
func (t *Tracker) post(fn func()) bool {
	if t.closed.Load() {
		return false
	}
	select {
	case t.events <- fn:
		return true
	case <-t.stopCh:
		return false
	}
}

// tick recomputes the state and publishes it to subscribers.
func (t *Tracker) tick() {
	state := t.recompute()
	for _, fn := range t.subscribers {
		fn(state)
	}
}

func (t *Tracker) recompute() ViewportState {
	scrollY := t.page.ScrollY()
	active, ok := t.registry.FindActive(scrollY, t.viewportHeight)
	t.transition(active, ok)
	state := computeState(t.active, t.hasActive, t.lastActive, t.hasLastActive, scrollY, t.viewportHeight)

	t.snapMu.Lock()
	t.state = state
	t.snapLast = t.lastActive
	t.snapHasLast = t.hasLastActive
	t.snapViewport = t.viewportHeight
	t.ticks++
	t.snapMu.Unlock()
	return state
}

func (t *Tracker) transition(active TrackedContainer, ok bool) {
	switch {
	case ok && (!t.hasActive || t.active.ID != active.ID):
		t.logger.Debug("container activated", zap.String("container_id", string(active.ID)))
	case !ok && t.hasActive:
		t.logger.Debug("container deactivated", zap.String("container_id", string(t.active.ID)))
	}
	t.active, t.hasActive = active, ok
	switch {
	case ok:
		t.lastActive, t.hasLastActive = active, true
	case t.hasLastActive:
		// Positions may have been re-captured since the container was last
		// active. A container no longer registered keeps its cached position.
		if current, found := t.registry.Get(t.lastActive.ID); found {
			t.lastActive = current
		}
	}
}

// refreshViewport runs once resizing has settled. A changed height reflows
// content, so container positions are re-captured before the next tick.
func (t *Tracker) refreshViewport() {
	height := t.page.ViewportHeight()
	if height != t.viewportHeight {
		t.logger.Debug("viewport height changed",
			zap.Float64("from", t.viewportHeight),
			zap.Float64("to", height),
		)
		t.viewportHeight = height
		t.registry.Refresh()
	}
	t.throttle.signal()
}
