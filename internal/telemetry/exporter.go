package telemetry

import (
	"context"
	"sync/atomic"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// LogExporter writes finished spans to a zap logger at Debug.
type LogExporter struct {
	logger   *zap.Logger
	stopped  atomic.Bool
	exported atomic.Int64
}

var _ sdktrace.SpanExporter = (*LogExporter)(nil)

// NewLogExporter returns an exporter logging to logger.
func NewLogExporter(logger *zap.Logger) *LogExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogExporter{logger: logger}
}

// ExportSpans logs each span with its timing, status and attributes.
func (e *LogExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if e.stopped.Load() {
		return nil
	}
	for _, span := range spans {
		fields := []zap.Field{
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
			zap.Duration("duration", span.EndTime().Sub(span.StartTime())),
		}
		if span.Parent().IsValid() {
			fields = append(fields, zap.String("parent_id", span.Parent().SpanID().String()))
		}
		if code := span.Status().Code; code != 0 {
			fields = append(fields, zap.String("status", code.String()), zap.String("status_message", span.Status().Description))
		}
		for _, kv := range span.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug(span.Name(), fields...)
		e.exported.Add(1)
	}
	return nil
}

// Exported returns how many spans have been logged.
func (e *LogExporter) Exported() int64 {
	return e.exported.Load()
}

// Shutdown stops further exports.
func (e *LogExporter) Shutdown(context.Context) error {
	e.stopped.Store(true)
	return nil
}
