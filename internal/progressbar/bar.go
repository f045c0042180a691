// Package progressbar renders a reading progress percentage as the width of a
// bar. Painting is delegated to a Painter so the same Bar drives a DOM element
// in a browser tab or a line in a terminal.
package progressbar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Class names applied to the bar element and the track inside it.
const (
	ProgressBarElementClass = "readingProgressBar"
	TrackElementClass       = "readingProgressBar__track"
)

// Defaults for Options.
const (
	DefaultContentContainerClassName = "blogPost"
	DefaultCSSClass                  = "readingProgressBar"
)

// ErrDisposed is returned when painting a disposed Bar.
var ErrDisposed = errors.New("progressbar: disposed")

// Options configure a reading progress bar.
type Options struct {
	// ContentContainerClassName selects the containers whose progress is tracked.
	ContentContainerClassName string
	// CSSClass is added to the bar element alongside ProgressBarElementClass.
	CSSClass string
	// ThrottleTime is the minimum spacing between progress updates.
	ThrottleTime time.Duration
}

// DefaultOptions returns the stock options.
func DefaultOptions() Options {
	return Options{
		ContentContainerClassName: DefaultContentContainerClassName,
		CSSClass:                  DefaultCSSClass,
	}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.ContentContainerClassName == "" {
		o.ContentContainerClassName = def.ContentContainerClassName
	}
	if o.CSSClass == "" {
		o.CSSClass = def.CSSClass
	}
	if o.ThrottleTime < 0 {
		o.ThrottleTime = 0
	}
	return o
}

// Painter applies a bar's visual state.
type Painter interface {
	// Mount prepares the bar element, adding cssClass to it.
	Mount(ctx context.Context, cssClass string) error
	// Paint sets the filled width to percentage, already clamped to [0, 100].
	Paint(ctx context.Context, percentage float64) error
	// Unmount removes everything Mount added.
	Unmount(ctx context.Context, cssClass string) error
}

// Bar clamps percentages and forwards changes to its Painter. It is safe for
// concurrent use.
type Bar struct {
	painter Painter
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	value    float64
	painted  bool
	disposed bool
}

// New mounts a bar through painter.
func New(ctx context.Context, painter Painter, opts Options, logger *zap.Logger) (*Bar, error) {
	if painter == nil {
		return nil, errors.New("progressbar: painter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.WithDefaults()
	if err := painter.Mount(ctx, opts.CSSClass); err != nil {
		return nil, fmt.Errorf("mount progress bar: %w", err)
	}
	return &Bar{painter: painter, opts: opts, logger: logger}, nil
}

// Clamp limits v to [0, 100].
func Clamp(v float64) float64 {
	switch {
	case v > 100:
		return 100
	case v < 0 || v != v:
		return 0
	default:
		return v
	}
}

// SetPercentage clamps v and paints it unless it equals the current value.
func (b *Bar) SetPercentage(ctx context.Context, v float64) error {
	v = Clamp(v)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return ErrDisposed
	}
	if b.painted && b.value == v {
		return nil
	}
	if err := b.painter.Paint(ctx, v); err != nil {
		return fmt.Errorf("paint progress bar: %w", err)
	}
	b.value = v
	b.painted = true
	return nil
}

// Value returns the last painted percentage.
func (b *Bar) Value() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Options returns the options the bar was built with.
func (b *Bar) Options() Options {
	return b.opts
}

// Dispose unmounts the bar. Subsequent calls are no-ops.
func (b *Bar) Dispose(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed {
		return nil
	}
	b.disposed = true
	if err := b.painter.Unmount(ctx, b.opts.CSSClass); err != nil {
		return fmt.Errorf("unmount progress bar: %w", err)
	}
	b.logger.Debug("progress bar disposed", zap.Float64("last_value", b.value))
	return nil
}
