package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/readingprogress/internal/progress"
)

// LogSink writes one structured entry per update. Transitions are logged at
// Info and plain percentage changes at Debug, so production logs only show
// the reader moving between containers.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each update in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Update) error {
	for _, u := range batch {
		fields := []zap.Field{
			zap.String("session", u.Session.String()),
			zap.Uint64("seq", u.Seq),
			zap.String("container_id", string(u.State.ActiveContainerID)),
			zap.Bool("active", u.State.Active),
			zap.Float64("percentage", u.State.ScrollPercentage),
		}
		if u.Transition != progress.TransitionNone {
			s.logger.Info("reading progress transition",
				append(fields, zap.String("transition", string(u.Transition)))...)
			continue
		}
		s.logger.Debug("reading progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
