package browser

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/stretchr/testify/require"
)

// TestParseNotification accepts scroll and resize payloads only.
func TestParseNotification(t *testing.T) {
	t.Parallel()

	n, err := parseNotification(`{"kind":"scroll","scrollY":120.5,"innerHeight":800}`)
	require.NoError(t, err)
	require.Equal(t, notification{Kind: "scroll", ScrollY: 120.5, InnerHeight: 800}, n)

	_, err = parseNotification(`{"kind":"click"}`)
	require.Error(t, err)
	_, err = parseNotification(`not json`)
	require.Error(t, err)
}

// TestConfigDefaults fills unset launch settings.
func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := Config{WindowHeight: 600}.withDefaults()
	require.Equal(t, defaultNavigationTimeout, cfg.NavigationTimeout)
	require.Equal(t, defaultEvalTimeout, cfg.EvalTimeout)
	require.Equal(t, defaultWindowWidth, cfg.WindowWidth)
	require.Equal(t, 600, cfg.WindowHeight)
	require.NotNil(t, cfg.Logger)
	require.Len(t, Config{UserAgent: "reader"}.allocatorOptions(), len(cfg.allocatorOptions())+1)
}

// TestBindingEventsReachListeners routes binding calls to the matching listeners.
func TestBindingEventsReachListeners(t *testing.T) {
	t.Parallel()

	p := newPage(Config{})
	t.Cleanup(func() { require.NoError(t, p.Close()) })

	var scrolls, resizes atomic.Int32
	cancelScroll := p.OnScroll(func() { scrolls.Add(1) })
	p.OnResize(func() { resizes.Add(1) })

	p.onTargetEvent(&runtime.EventBindingCalled{
		Name:    bindingName,
		Payload: `{"kind":"scroll","scrollY":300,"innerHeight":700}`,
	})
	require.Eventually(t, func() bool { return scrolls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Zero(t, resizes.Load())

	p.onTargetEvent(&runtime.EventBindingCalled{Name: "other", Payload: `{"kind":"resize"}`})
	p.onTargetEvent(&runtime.EventBindingCalled{
		Name:    bindingName,
		Payload: `{"kind":"resize","scrollY":300,"innerHeight":500}`,
	})
	require.Eventually(t, func() bool { return resizes.Load() == 1 }, time.Second, 5*time.Millisecond)

	// No browser is attached, so reads fall back to the last reported geometry.
	require.Equal(t, 300.0, p.ScrollY())
	require.Equal(t, 500.0, p.ViewportHeight())

	cancelScroll()
	p.handleNotification(`{"kind":"scroll","scrollY":10,"innerHeight":500}`)
	p.handleNotification(`{"kind":"resize","scrollY":10,"innerHeight":500}`)
	require.Eventually(t, func() bool { return resizes.Load() == 2 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), scrolls.Load())
}

// TestClosedPageRejectsCommands ensures the page is inert after Close.
func TestClosedPageRejectsCommands(t *testing.T) {
	t.Parallel()

	p := newPage(Config{})
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	ctx := context.Background()
	require.ErrorIs(t, p.ScrollBy(ctx, 10), ErrClosed)
	require.ErrorIs(t, p.Resize(ctx, 800, 600), ErrClosed)
	_, err := p.AtBottom(ctx)
	require.ErrorIs(t, err, ErrClosed)
	require.Nil(t, p.QueryElementsByClass("blogPost"))
	require.NoError(t, p.AutoScroll(ctx, 100, time.Millisecond))
	require.Error(t, p.AutoScroll(ctx, 0, time.Millisecond))
}

// TestScriptsQuoteUserInput keeps class names and selectors inside string literals.
func TestScriptsQuoteUserInput(t *testing.T) {
	t.Parallel()

	require.Equal(t, `document.getElementsByClassName("blog\"Post").length`, countByClassExpr(`blog"Post`))
	require.Contains(t, rectByClassExpr("blogPost", 2), `getElementsByClassName("blogPost")[2]`)
	require.Equal(t, `window.scrollBy(0, 120.5)`, scrollByExpr(120.5))
	require.Equal(t, `window.scrollTo(0, 0)`, scrollToExpr(0))
	require.Contains(t, listenerScript, `"__readingProgressNotify"`)

	mount := mountExpr("#bar", "custom")
	require.Contains(t, mount, `document.querySelector("#bar")`)
	require.Contains(t, mount, `bar.classList.add("readingProgressBar", "custom")`)
	require.Contains(t, mount, `track.className = "readingProgressBar__track"`)
	require.Contains(t, mount, `width:100%;`)

	require.Contains(t, paintExpr("#bar", 42.5), `track.style.width = 42.5 + "%"`)
	require.Contains(t, unmountExpr("#bar", "custom"), `bar.classList.remove("readingProgressBar", "custom")`)
}
