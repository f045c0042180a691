package progressbar

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

const defaultTextWidth = 40

// TextPainter draws the bar as a single terminal line that is rewritten in
// place on every paint.
type TextPainter struct {
	mu     sync.Mutex
	w      io.Writer
	width  int
	filled string
	empty  string
}

// NewTextPainter writes a bar of width cells to w.
func NewTextPainter(w io.Writer, width int) *TextPainter {
	if width <= 0 {
		width = defaultTextWidth
	}
	return &TextPainter{w: w, width: width, filled: "█", empty: "░"}
}

// Mount implements Painter.
func (p *TextPainter) Mount(context.Context, string) error {
	return nil
}

// Paint implements Painter.
func (p *TextPainter) Paint(_ context.Context, percentage float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.w, "\r"+p.render(percentage)); err != nil {
		return fmt.Errorf("write text bar: %w", err)
	}
	return nil
}

// Unmount terminates the bar line.
func (p *TextPainter) Unmount(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := io.WriteString(p.w, "\n"); err != nil {
		return fmt.Errorf("write text bar: %w", err)
	}
	return nil
}

func (p *TextPainter) render(percentage float64) string {
	cells := int(percentage / 100 * float64(p.width))
	if cells > p.width {
		cells = p.width
	}
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(strings.Repeat(p.filled, cells))
	sb.WriteString(strings.Repeat(p.empty, p.width-cells))
	fmt.Fprintf(&sb, "] %5.1f%%", percentage)
	return sb.String()
}
