package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/JakeFAU/readingprogress/internal/progress"

// Config controls buffering and batching for the Hub.
//   - BufferSize: capacity of the update channel (default 256).
//   - MaxBatchEvents: flush once this many updates are queued (default 64).
//   - MaxBatchWait: flush after this long even if the batch is small
//     (default 16ms, roughly one frame).
//   - SinkTimeout: per-sink deadline while flushing (default 2s).
//   - BaseContext: parent context for sink calls (default context.Background()).
//   - Logger: optional structured logger used for warnings.
//   - Tracer: spans each flush and sink call (default the global provider's).
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	BaseContext    context.Context
	Logger         *zap.Logger
	Tracer         trace.Tracer
}

const (
	defaultBufferSize     = 256
	defaultMaxBatchEvents = 64
	defaultMaxBatchWait   = 16 * time.Millisecond
	defaultSinkTimeout    = 2 * time.Second
	dropLogInterval       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Tracer == nil {
		c.Tracer = otel.Tracer(tracerName)
	}
	return c
}

// Hub batches updates and fans them out to sinks on a background goroutine.
// Emit is safe for concurrent use and never blocks.
type Hub struct {
	cfg     Config
	sinks   []Sink
	updates chan Update
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger

	dropped     atomic.Int64
	lastDropLog atomic.Int64
	closed      atomic.Bool

	// overflow holds the newest update that did not fit in the buffer.
	overflow   atomic.Pointer[Update]
	overflowCh chan struct{}
	// delivered is the highest Seq flushed per session. Owned by run.
	delivered map[uuid.UUID]uint64

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts a Hub delivering to sinks. Nil sinks are ignored.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:     cfg,
		updates:    make(chan Update, cfg.BufferSize),
		overflowCh: make(chan struct{}, 1),
		delivered:  make(map[uuid.UUID]uint64),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		logger:     cfg.Logger,
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.run()
	return h
}

// Emit enqueues u. When the buffer is full the update is dropped and a
// rate-limited warning is logged. The newest dropped update is kept aside and
// delivered once the buffer has drained, unless a later update of the same
// session got there first, so sinks always end on the latest state.
func (h *Hub) Emit(u Update) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := u.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress update", zap.Error(err))
		return
	}
	select {
	case h.updates <- u:
	default:
		h.overflow.Store(&u)
		select {
		case h.overflowCh <- struct{}{}:
		default:
		}
		h.dropped.Add(1)
		h.logDrops(time.Now())
	}
}

// Dropped returns the number of updates dropped since the last warning.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close flushes queued updates, closes every sink and waits for the
// background goroutine. Later calls only wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)

	batch := make([]Update, 0, h.cfg.MaxBatchEvents)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	stopTimer(timer)
	var deadline <-chan time.Time

	for {
		select {
		case u := <-h.updates:
			batch = append(batch, u)
			if len(batch) >= h.cfg.MaxBatchEvents {
				batch = h.flush(batch)
				stopTimer(timer)
				deadline = nil
			} else if deadline == nil {
				timer.Reset(h.cfg.MaxBatchWait)
				deadline = timer.C
			}
		case <-deadline:
			deadline = nil
			batch = h.flush(batch)
		case <-h.overflowCh:
			stopTimer(timer)
			deadline = nil
			batch = h.catchUp(batch)
		case <-h.stopCh:
			stopTimer(timer)
			h.drain(batch)
			return
		}
	}
}

// drain flushes everything still buffered and closes the sinks.
func (h *Hub) drain(batch []Update) {
	h.catchUp(batch)
	h.closeSinks()
}

// catchUp flushes every queued update and then the overflow update, if it is
// newer than what its session already delivered. The overflow is only taken
// once the queue is empty, since queued updates predate it.
func (h *Hub) catchUp(batch []Update) []Update {
	for {
		batch = h.drainQueued(batch)
		late := h.overflow.Swap(nil)
		if late == nil {
			break
		}
		if len(h.updates) > 0 {
			h.overflow.CompareAndSwap(nil, late)
			continue
		}
		batch = h.flush(batch)
		if late.Seq > h.delivered[late.Session] {
			batch = h.flush(append(batch, *late))
		}
		break
	}
	return h.flush(batch)
}

func (h *Hub) drainQueued(batch []Update) []Update {
	for {
		select {
		case u := <-h.updates:
			batch = append(batch, u)
			if len(batch) >= h.cfg.MaxBatchEvents {
				batch = h.flush(batch)
			}
		default:
			return batch
		}
	}
}

// flush delivers batch to every sink and returns it emptied for reuse.
func (h *Hub) flush(batch []Update) []Update {
	if len(batch) == 0 {
		return batch
	}
	out := append([]Update(nil), batch...)
	for _, u := range out {
		if u.Seq > h.delivered[u.Session] {
			h.delivered[u.Session] = u.Seq
		}
	}
	ctx, span := h.cfg.Tracer.Start(h.cfg.BaseContext, "progress.flush",
		trace.WithAttributes(
			attribute.Int("progress.batch_size", len(out)),
			attribute.Int("progress.sinks", len(h.sinks)),
		),
	)
	defer span.End()
	for _, sink := range h.sinks {
		h.consume(ctx, sink, out)
	}
	return batch[:0]
}

func (h *Hub) consume(parent context.Context, sink Sink, batch []Update) {
	ctx, cancel := context.WithTimeout(parent, h.cfg.SinkTimeout)
	defer cancel()
	ctx, span := h.cfg.Tracer.Start(ctx, "progress.sink.consume",
		trace.WithAttributes(attribute.String("progress.sink", fmt.Sprintf("%T", sink))),
	)
	defer span.End()
	if err := sink.Consume(ctx, batch); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Warn("progress sink consume failed",
			zap.Int("batch", len(batch)),
			zap.Error(err),
		)
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

func (h *Hub) logDrops(now time.Time) {
	last := h.lastDropLog.Load()
	if now.UnixNano()-last < dropLogInterval.Nanoseconds() {
		return
	}
	if !h.lastDropLog.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	h.logger.Warn("progress updates dropped due to backpressure",
		zap.Int64("dropped", h.dropped.Swap(0)),
	)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
