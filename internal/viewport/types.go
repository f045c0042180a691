package viewport

// ContainerID identifies a tracked container. Identity is by value, so two
// containers with identical positions but different IDs are distinct.
type ContainerID string

// Rect is the vertical extent of an element relative to the layout viewport,
// as reported by getBoundingClientRect.
type Rect struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// ContainerPosition is the page-absolute (scroll independent) vertical extent
// of a container in pixels. Bottom is never above Top.
type ContainerPosition struct {
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// positionFromRect converts a viewport-relative rect to page coordinates.
func positionFromRect(rect Rect, scrollY float64) ContainerPosition {
	top, bottom := rect.Top+scrollY, rect.Bottom+scrollY
	if bottom < top {
		top, bottom = bottom, top
	}
	return ContainerPosition{Top: top, Bottom: bottom}
}

// Height returns the vertical span of the container.
func (p ContainerPosition) Height() float64 {
	return p.Bottom - p.Top
}

// ContainsViewportBottom reports whether the viewport's bottom edge lies at or
// below the container's top and strictly above its bottom.
func (p ContainerPosition) ContainsViewportBottom(viewportBottom float64) bool {
	return p.Top <= viewportBottom && p.Bottom > viewportBottom
}

// ScrolledPast reports whether the container's bottom edge is strictly above
// the viewport's bottom edge. A bottom edge exactly on the viewport bottom is
// neither active nor scrolled past.
func (p ContainerPosition) ScrolledPast(viewportBottom float64) bool {
	return p.Bottom < viewportBottom
}

// Container is a content region offered for tracking.
type Container struct {
	ID      ContainerID
	Element Element
}

// TrackedContainer is a Container whose position has been captured.
type TrackedContainer struct {
	ID       ContainerID       `json:"id"`
	Position ContainerPosition `json:"position"`
	Element  Element           `json:"-"`
}

// ViewportState is a snapshot of reading progress. When Active is false,
// ActiveContainerID is empty and ScrollPercentage is either 0 or, once the
// last active container has been scrolled past, 100.
type ViewportState struct {
	ActiveContainerID ContainerID `json:"activeContainerId,omitempty"`
	Active            bool        `json:"active"`
	ScrollPercentage  float64     `json:"scrollPercentage"`
}
