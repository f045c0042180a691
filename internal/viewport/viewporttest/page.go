// Package viewporttest provides an in-memory viewport.Page for tests.
package viewporttest

import (
	"sync"

	"github.com/JakeFAU/readingprogress/internal/viewport"
)

// Page is a scriptable document. Elements are laid out at fixed page-absolute
// positions and report rects relative to the current scroll offset, as a
// browser would.
type Page struct {
	mu             sync.Mutex
	scrollY        float64
	viewportHeight float64
	heightReads    int
	nextID         uint64
	scrollFns      map[uint64]func()
	resizeFns      map[uint64]func()
	elements       map[string][]*Element
}

// NewPage returns a Page with the given viewport height, scrolled to the top.
func NewPage(viewportHeight float64) *Page {
	return &Page{
		viewportHeight: viewportHeight,
		scrollFns:      make(map[uint64]func()),
		resizeFns:      make(map[uint64]func()),
		elements:       make(map[string][]*Element),
	}
}

// AddElement places an element with class at the page-absolute span
// [top, bottom] and returns it.
func (p *Page) AddElement(class string, top, bottom float64) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	el := &Element{page: p, top: top, bottom: bottom}
	p.elements[class] = append(p.elements[class], el)
	return el
}

// ScrollY implements viewport.Page.
func (p *Page) ScrollY() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrollY
}

// ViewportHeight implements viewport.Page.
func (p *Page) ViewportHeight() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heightReads++
	return p.viewportHeight
}

// HeightReads reports how many times ViewportHeight was called.
func (p *Page) HeightReads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heightReads
}

// OnScroll implements viewport.Page.
func (p *Page) OnScroll(fn func()) func() {
	return p.listen(p.scrollFns, fn)
}

// OnResize implements viewport.Page.
func (p *Page) OnResize(fn func()) func() {
	return p.listen(p.resizeFns, fn)
}

// QueryElementsByClass implements viewport.Page.
func (p *Page) QueryElementsByClass(name string) []viewport.Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]viewport.Element, 0, len(p.elements[name]))
	for _, el := range p.elements[name] {
		out = append(out, el)
	}
	return out
}

// Listeners reports the number of registered scroll and resize listeners.
func (p *Page) Listeners() (scroll, resize int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.scrollFns), len(p.resizeFns)
}

// ScrollTo sets the scroll offset and notifies scroll listeners.
func (p *Page) ScrollTo(y float64) {
	p.mu.Lock()
	p.scrollY = y
	fns := collect(p.scrollFns)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Resize sets the viewport height and notifies resize listeners.
func (p *Page) Resize(height float64) {
	p.mu.Lock()
	p.viewportHeight = height
	fns := collect(p.resizeFns)
	p.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
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

func collect(set map[uint64]func()) []func() {
	out := make([]func(), 0, len(set))
	for _, fn := range set {
		out = append(out, fn)
	}
	return out
}

// Element is a fixed block on a Page.
type Element struct {
	page        *Page
	top, bottom float64
}

// Move relocates the element to a new page-absolute span.
func (e *Element) Move(top, bottom float64) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	e.top, e.bottom = top, bottom
}

// BoundingRect implements viewport.Element.
func (e *Element) BoundingRect() viewport.Rect {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return viewport.Rect{Top: e.top - e.page.scrollY, Bottom: e.bottom - e.page.scrollY}
}
