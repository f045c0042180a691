package browser

import (
	"context"
	"fmt"
	"strconv"

	"github.com/JakeFAU/readingprogress/internal/progressbar"
)

// DefaultBarSelector locates the bar element. When nothing matches, Mount
// creates a fixed bar at the top of the page.
const DefaultBarSelector = "." + progressbar.ProgressBarElementClass

// DOMPainter renders a progressbar.Bar into the page: a track div inside the
// bar element whose width follows the percentage.
type DOMPainter struct {
	page     *Page
	selector string
}

// NewDOMPainter paints into the element matching selector.
func NewDOMPainter(page *Page, selector string) *DOMPainter {
	if selector == "" {
		selector = DefaultBarSelector
	}
	return &DOMPainter{page: page, selector: selector}
}

// Mount implements progressbar.Painter.
func (d *DOMPainter) Mount(ctx context.Context, cssClass string) error {
	if err := d.page.Evaluate(ctx, mountExpr(d.selector, cssClass), nil); err != nil {
		return fmt.Errorf("mount bar: %w", err)
	}
	return nil
}

// Paint implements progressbar.Painter. The width is applied on the next
// animation frame.
func (d *DOMPainter) Paint(ctx context.Context, percentage float64) error {
	if err := d.page.Evaluate(ctx, paintExpr(d.selector, percentage), nil); err != nil {
		return fmt.Errorf("paint bar: %w", err)
	}
	return nil
}

// Unmount implements progressbar.Painter. A bar created by Mount is removed
// entirely; an existing element only loses the track and classes.
func (d *DOMPainter) Unmount(ctx context.Context, cssClass string) error {
	if err := d.page.Evaluate(ctx, unmountExpr(d.selector, cssClass), nil); err != nil {
		return fmt.Errorf("unmount bar: %w", err)
	}
	return nil
}

func mountExpr(selector, cssClass string) string {
	return fmt.Sprintf(`(() => {
  let bar = document.querySelector(%[1]s);
  if (!bar) {
    bar = document.createElement("div");
    bar.setAttribute("data-reading-progress-created", "");
    bar.style.cssText = "position:fixed;top:0;left:0;width:100%%;height:4px;z-index:2147483647;";
    document.body.prepend(bar);
  }
  bar.classList.add(%[2]s, %[3]s);
  let track = bar.querySelector("." + %[4]s);
  if (!track) {
    track = document.createElement("div");
    track.className = %[4]s;
    if (bar.hasAttribute("data-reading-progress-created")) {
      track.style.cssText = "height:100%%;background:#3b82f6;";
    }
    bar.appendChild(track);
  }
  track.style.width = "0%%";
})()`,
		jsString(selector),
		jsString(progressbar.ProgressBarElementClass),
		jsString(cssClass),
		jsString(progressbar.TrackElementClass),
	)
}

func paintExpr(selector string, percentage float64) string {
	return fmt.Sprintf(`requestAnimationFrame(() => {
  const bar = document.querySelector(%s);
  const track = bar && bar.querySelector("." + %s);
  if (track) track.style.width = %s + "%%";
})`,
		jsString(selector),
		jsString(progressbar.TrackElementClass),
		strconv.FormatFloat(percentage, 'f', -1, 64),
	)
}

func unmountExpr(selector, cssClass string) string {
	return fmt.Sprintf(`(() => {
  const bar = document.querySelector(%[1]s);
  if (!bar) return;
  if (bar.hasAttribute("data-reading-progress-created")) {
    bar.remove();
    return;
  }
  const track = bar.querySelector("." + %[2]s);
  if (track) track.remove();
  bar.classList.remove(%[3]s, %[4]s);
})()`,
		jsString(selector),
		jsString(progressbar.TrackElementClass),
		jsString(progressbar.ProgressBarElementClass),
		jsString(cssClass),
	)
}
