// Package browser drives a Chrome tab through chromedp and exposes it as a
// viewport.Page, so the reading progress tracker can follow a real document.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/readingprogress/internal/viewport"
)

// ErrClosed is returned by operations on a closed Page.
var ErrClosed = errors.New("browser: page closed")

// Config controls how the tab is launched.
type Config struct {
	Headless          bool
	UserAgent         string
	NavigationTimeout time.Duration
	EvalTimeout       time.Duration
	WindowWidth       int
	WindowHeight      int
	Logger            *zap.Logger
}

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultEvalTimeout       = 5 * time.Second
	defaultWindowWidth       = 1280
	defaultWindowHeight      = 800
)

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.EvalTimeout <= 0 {
		c.EvalTimeout = defaultEvalTimeout
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = defaultWindowWidth
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = defaultWindowHeight
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

func (c Config) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if c.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(c.WindowWidth, c.WindowHeight),
	)
	if c.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.UserAgent))
	}
	return opts
}

// Page is a Chrome tab implementing viewport.Page. Geometry reads go to the
// browser; if a read fails the last value reported by the page is returned.
type Page struct {
	cfg    Config
	logger *zap.Logger

	ctx         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc

	scrollY        atomic.Uint64
	viewportHeight atomic.Uint64

	pendingScroll atomic.Bool
	pendingResize atomic.Bool
	wake          chan struct{}

	mu        sync.Mutex
	scrollFns map[uint64]func()
	resizeFns map[uint64]func()
	nextID    uint64

	closed    atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

var _ viewport.Page = (*Page)(nil)

// Open launches Chrome, installs the scroll and resize listeners and
// navigates to url. The tab stays open until Close.
func Open(ctx context.Context, url string, cfg Config) (*Page, error) {
	cfg = cfg.withDefaults()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), cfg.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	p := newPage(cfg)
	p.ctx, p.tabCancel, p.allocCancel = tabCtx, tabCancel, allocCancel

	// The first Run allocates the browser and must not carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		p.shutdown()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	chromedp.ListenTarget(tabCtx, p.onTargetEvent)

	navCtx, cancel := context.WithTimeout(tabCtx, cfg.NavigationTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(navCtx,
		p.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		p.shutdown()
		return nil, fmt.Errorf("open %s: %w", url, err)
	}
	storeFloat(&p.scrollY, p.evalFloat(scrollYExpr, 0))
	storeFloat(&p.viewportHeight, p.evalFloat(viewportHeightExpr, float64(cfg.WindowHeight)))

	p.logger.Info("browser page ready",
		zap.String("url", url),
		zap.Bool("headless", cfg.Headless),
		zap.Float64("viewport_height", loadFloat(&p.viewportHeight)),
	)
	return p, nil
}

func newPage(cfg Config) *Page {
	cfg = cfg.withDefaults()
	p := &Page{
		cfg:       cfg,
		logger:    cfg.Logger,
		ctx:       context.Background(),
		wake:      make(chan struct{}, 1),
		scrollFns: make(map[uint64]func()),
		resizeFns: make(map[uint64]func()),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go p.dispatch()
	return p
}

func (p *Page) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := runtime.AddBinding(bindingName).Do(ctx); err != nil {
			return fmt.Errorf("add binding: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(listenerScript).Do(ctx); err != nil {
			return fmt.Errorf("install listeners: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(
			int64(p.cfg.WindowWidth), int64(p.cfg.WindowHeight), 1, false,
		).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if p.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(p.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// onTargetEvent runs on chromedp's event goroutine and must not block or call
// back into the browser.
func (p *Page) onTargetEvent(ev any) {
	called, ok := ev.(*runtime.EventBindingCalled)
	if !ok || called.Name != bindingName {
		return
	}
	p.handleNotification(called.Payload)
}

func (p *Page) handleNotification(payload string) {
	n, err := parseNotification(payload)
	if err != nil {
		p.logger.Debug("ignoring page notification", zap.Error(err))
		return
	}
	storeFloat(&p.scrollY, n.ScrollY)
	storeFloat(&p.viewportHeight, n.InnerHeight)
	if n.Kind == "resize" {
		p.pendingResize.Store(true)
	} else {
		p.pendingScroll.Store(true)
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// dispatch calls listeners outside the event goroutine. Notifications that
// arrive while listeners run are coalesced into one call per kind.
func (p *Page) dispatch() {
	defer close(p.doneCh)
	for {
		select {
		case <-p.wake:
			if p.pendingResize.Swap(false) {
				p.notify(p.resizeFns)
			}
			if p.pendingScroll.Swap(false) {
				p.notify(p.scrollFns)
			}
		case <-p.stopCh:
			return
		}
	}
}

func (p *Page) notify(set map[uint64]func()) {
	p.mu.Lock()
	fns := make([]func(), 0, len(set))
	for _, fn := range set {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// ScrollY implements viewport.Page.
func (p *Page) ScrollY() float64 {
	v := p.evalFloat(scrollYExpr, loadFloat(&p.scrollY))
	storeFloat(&p.scrollY, v)
	return v
}

// ViewportHeight implements viewport.Page.
func (p *Page) ViewportHeight() float64 {
	v := p.evalFloat(viewportHeightExpr, loadFloat(&p.viewportHeight))
	storeFloat(&p.viewportHeight, v)
	return v
}

// OnScroll implements viewport.Page.
func (p *Page) OnScroll(fn func()) func() {
	return p.listen(p.scrollFns, fn)
}

// OnResize implements viewport.Page.
func (p *Page) OnResize(fn func()) func() {
	return p.listen(p.resizeFns, fn)
}

func (p *Page) listen(set map[uint64]func(), fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	set[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(set, id)
	}
}

// QueryElementsByClass implements viewport.Page. The returned elements are
// addressed by class and index and measured when asked.
func (p *Page) QueryElementsByClass(name string) []viewport.Element {
	var count int
	if err := p.eval(countByClassExpr(name), &count); err != nil {
		p.logger.Warn("query elements failed", zap.String("class", name), zap.Error(err))
		return nil
	}
	elements := make([]viewport.Element, 0, count)
	for i := 0; i < count; i++ {
		elements = append(elements, &element{page: p, class: name, index: i})
	}
	return elements
}

// ScrollBy scrolls the window vertically by dy pixels.
func (p *Page) ScrollBy(ctx context.Context, dy float64) error {
	return p.run(ctx, chromedp.Evaluate(scrollByExpr(dy), nil))
}

// ScrollTo scrolls the window to the vertical offset y.
func (p *Page) ScrollTo(ctx context.Context, y float64) error {
	return p.run(ctx, chromedp.Evaluate(scrollToExpr(y), nil))
}

// Resize changes the emulated viewport, which fires a resize event.
func (p *Page) Resize(ctx context.Context, width, height int) error {
	return p.run(ctx, emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1, false))
}

// AtBottom reports whether the window is scrolled to the end of the document.
func (p *Page) AtBottom(ctx context.Context) (bool, error) {
	var done bool
	if err := p.run(ctx, chromedp.Evaluate(atBottomExpr, &done)); err != nil {
		return false, err
	}
	return done, nil
}

// Evaluate runs a script in the page and decodes its result into res.
func (p *Page) Evaluate(ctx context.Context, expr string, res any) error {
	return p.run(ctx, chromedp.Evaluate(expr, res))
}

// Close removes every listener and shuts the browser down. It is safe to call
// multiple times.
func (p *Page) Close() error {
	p.shutdown()
	return nil
}

func (p *Page) shutdown() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.stopCh)
		<-p.doneCh
		p.mu.Lock()
		clear(p.scrollFns)
		clear(p.resizeFns)
		p.mu.Unlock()
		if p.tabCancel != nil {
			p.tabCancel()
		}
		if p.allocCancel != nil {
			p.allocCancel()
		}
	})
}

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed.Load() {
		return ErrClosed
	}
	runCtx, cancel := context.WithTimeout(p.ctx, p.cfg.EvalTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (p *Page) eval(expr string, res any) error {
	return p.run(context.Background(), chromedp.Evaluate(expr, res))
}

func (p *Page) evalFloat(expr string, fallback float64) float64 {
	var v float64
	if err := p.eval(expr, &v); err != nil {
		if !errors.Is(err, ErrClosed) {
			p.logger.Debug("page read failed, using cached value", zap.String("expr", expr), zap.Error(err))
		}
		return fallback
	}
	return v
}

func storeFloat(dst *atomic.Uint64, v float64) {
	dst.Store(math.Float64bits(v))
}

func loadFloat(src *atomic.Uint64) float64 {
	return math.Float64frombits(src.Load())
}

// element is a lazily measured DOM node.
type element struct {
	page  *Page
	class string
	index int
}

// BoundingRect implements viewport.Element. A node that has disappeared
// measures as an empty rect.
func (e *element) BoundingRect() viewport.Rect {
	var rect *viewport.Rect
	if err := e.page.eval(rectByClassExpr(e.class, e.index), &rect); err != nil {
		e.page.logger.Warn("measure element failed",
			zap.String("class", e.class),
			zap.Int("index", e.index),
			zap.Error(err),
		)
		return viewport.Rect{}
	}
	if rect == nil {
		return viewport.Rect{}
	}
	return *rect
}
