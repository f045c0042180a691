// Package viewport tracks reading progress through content containers on a
// scrolling page. A Registry records the page-absolute vertical extent of each
// container; a Tracker listens to scroll and resize signals from a Page,
// decides which container is active, computes how far the reader has
// progressed through it, and publishes trailing-throttled ViewportState
// snapshots to its subscribers.
//
// A container is active when the bottom edge of the viewport lies inside its
// vertical span: top <= scrollY+viewportHeight < bottom.
package viewport
