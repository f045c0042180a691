// Package widget assembles a reading progress bar: it discovers the content
// containers on a page, tracks them, and publishes every viewport state as a
// progress.Update for the renderers.
package widget

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/readingprogress/internal/clock"
	"github.com/JakeFAU/readingprogress/internal/clock/system"
	"github.com/JakeFAU/readingprogress/internal/progress"
	"github.com/JakeFAU/readingprogress/internal/progressbar"
	"github.com/JakeFAU/readingprogress/internal/viewport"
)

// Config controls a Widget.
type Config struct {
	Options progressbar.Options
	Clock   clock.Clock
	Logger  *zap.Logger
}

// Widget is one reading progress session over a page.
type Widget struct {
	page      viewport.Page
	tracker   *viewport.Tracker
	emitter   progress.Emitter
	clock     clock.Clock
	session   uuid.UUID
	className string
	logger    *zap.Logger

	// Owned by the tracker loop.
	seq  uint64
	prev viewport.ViewportState

	unsubscribe func()
}

// New discovers the containers carrying the configured class, starts a
// tracker over them and forwards each state to emitter.
func New(page viewport.Page, emitter progress.Emitter, cfg Config) (*Widget, error) {
	if page == nil {
		return nil, viewport.ErrNilPage
	}
	if emitter == nil {
		return nil, errors.New("widget: emitter is required")
	}
	opts := cfg.Options.WithDefaults()
	if cfg.Clock == nil {
		cfg.Clock = system.New()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	session := uuid.New()
	logger = logger.With(zap.String("session", session.String()))

	containers := viewport.DiscoverByClass(page, opts.ContentContainerClassName)
	tracker, err := viewport.NewTracker(page, viewport.TrackerConfig{
		ThrottleTime: opts.ThrottleTime,
		Clock:        cfg.Clock,
		Logger:       logger,
	}, containers...)
	if err != nil {
		return nil, fmt.Errorf("start tracker: %w", err)
	}

	w := &Widget{
		page:      page,
		tracker:   tracker,
		emitter:   emitter,
		clock:     cfg.Clock,
		session:   session,
		className: opts.ContentContainerClassName,
		logger:    logger,
	}
	w.unsubscribe = tracker.Subscribe(w.publish)

	logger.Info("reading progress started",
		zap.String("container_class", w.className),
		zap.Int("containers", len(containers)),
		zap.Duration("throttle", opts.ThrottleTime),
	)
	if len(containers) == 0 {
		logger.Warn("no content containers found", zap.String("container_class", w.className))
	}
	return w, nil
}

// publish runs on the tracker loop.
func (w *Widget) publish(state viewport.ViewportState) {
	w.seq++
	w.emitter.Emit(progress.Update{
		Session:    w.session,
		Seq:        w.seq,
		TS:         w.clock.Now().UTC(),
		State:      state,
		Transition: progress.Classify(w.prev, state),
	})
	w.prev = state
}

// Reset re-detects the content containers, replacing the tracked set, and
// schedules a recomputation. It returns the number of containers found.
func (w *Widget) Reset() int {
	containers := viewport.DiscoverByClass(w.page, w.className)
	w.tracker.Registry().Replace(containers)
	w.tracker.Invalidate()
	w.logger.Info("content containers re-detected", zap.Int("containers", len(containers)))
	return len(containers)
}

// Session returns the id attached to every update of this widget.
func (w *Widget) Session() uuid.UUID {
	return w.session
}

// State returns the latest viewport state.
func (w *Widget) State() viewport.ViewportState {
	return w.tracker.State()
}

// Containers returns the tracked containers.
func (w *Widget) Containers() []viewport.TrackedContainer {
	return w.tracker.Registry().Containers()
}

// Remove stops tracking the first container with id.
func (w *Widget) Remove(id viewport.ContainerID) bool {
	if !w.tracker.Registry().Remove(id) {
		return false
	}
	w.tracker.Invalidate()
	return true
}

// Clear stops tracking every container.
func (w *Widget) Clear() {
	w.tracker.Registry().Clear()
	w.tracker.Invalidate()
}

// Tracker exposes the underlying tracker.
func (w *Widget) Tracker() *viewport.Tracker {
	return w.tracker
}

// Close stops tracking. The emitter is left open for its owner to close.
func (w *Widget) Close(ctx context.Context) error {
	w.unsubscribe()
	if err := w.tracker.Close(ctx); err != nil {
		return fmt.Errorf("close tracker: %w", err)
	}
	w.logger.Info("reading progress stopped", zap.Float64("percentage", w.tracker.State().ScrollPercentage))
	return nil
}
