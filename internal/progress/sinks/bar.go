package sinks

import (
	"context"
	"fmt"

	"github.com/JakeFAU/readingprogress/internal/progress"
	"github.com/JakeFAU/readingprogress/internal/progressbar"
)

// BarSink paints the newest percentage of each batch on a progress bar.
// Earlier updates in the batch are superseded and skipped.
type BarSink struct {
	bar *progressbar.Bar
}

// NewBarSink renders updates on bar.
func NewBarSink(bar *progressbar.Bar) *BarSink {
	return &BarSink{bar: bar}
}

// Consume paints the last update in batch.
func (s *BarSink) Consume(ctx context.Context, batch []progress.Update) error {
	if s == nil || s.bar == nil || len(batch) == 0 {
		return nil
	}
	last := batch[len(batch)-1]
	if err := s.bar.SetPercentage(ctx, last.State.ScrollPercentage); err != nil {
		return fmt.Errorf("bar sink: %w", err)
	}
	return nil
}

// Close disposes the bar.
func (s *BarSink) Close(ctx context.Context) error {
	if s == nil || s.bar == nil {
		return nil
	}
	return s.bar.Dispose(ctx)
}
