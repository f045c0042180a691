package viewport

// Page is the capability the tracker needs from the document it observes.
// Implementations wrap a real browser tab or, in tests, an in-memory fake.
type Page interface {
	// ScrollY returns the current vertical scroll offset.
	ScrollY() float64
	// ViewportHeight returns the height of the layout viewport.
	ViewportHeight() float64
	// OnScroll registers fn for every scroll notification. The returned
	// function removes the listener.
	OnScroll(fn func()) (cancel func())
	// OnResize registers fn for every viewport resize notification.
	OnResize(fn func()) (cancel func())
	// QueryElementsByClass returns the elements carrying the class name in
	// document order.
	QueryElementsByClass(name string) []Element
}

// Element is a node whose geometry can be measured.
type Element interface {
	// BoundingRect returns the element's extent relative to the viewport.
	BoundingRect() Rect
}

// ScrollSource reports the current vertical scroll offset.
type ScrollSource interface {
	ScrollY() float64
}
