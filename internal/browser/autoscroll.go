package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// AutoScroll scrolls by step pixels every interval until the end of the
// document is reached or ctx is done. It simulates a reader for unattended
// runs.
func (p *Page) AutoScroll(ctx context.Context, step float64, interval time.Duration) error {
	if step <= 0 {
		return fmt.Errorf("autoscroll step must be > 0, got %v", step)
	}
	if interval <= 0 {
		return fmt.Errorf("autoscroll interval must be > 0, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if err := p.ScrollBy(ctx, step); err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("autoscroll: %w", err)
		}
		done, err := p.AtBottom(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("autoscroll: %w", err)
		}
		if done {
			p.logger.Info("autoscroll reached end of document")
			return nil
		}
		p.logger.Debug("autoscroll step", zap.Float64("step", step))
	}
}
