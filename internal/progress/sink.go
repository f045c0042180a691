package progress

import "context"

// Sink consumes batches of updates in emission order. Consume honors ctx
// deadlines; Close releases whatever the sink renders to.
type Sink interface {
	Consume(ctx context.Context, batch []Update) error
	Close(ctx context.Context) error
}

// Emitter publishes individual updates. Hub satisfies it so the tracking side
// stays agnostic about how updates are buffered or rendered.
type Emitter interface {
	Emit(u Update)
}

// SinkFunc adapts a function to a Sink with a no-op Close.
type SinkFunc func(ctx context.Context, batch []Update) error

// Consume calls f.
func (f SinkFunc) Consume(ctx context.Context, batch []Update) error {
	return f(ctx, batch)
}

// Close implements Sink.
func (SinkFunc) Close(context.Context) error {
	return nil
}
