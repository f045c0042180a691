package viewport

import "math"

// ScrollPercentage computes how far the reader has progressed through an
// active container, rounded to one decimal place. The result is not clamped.
//
// A container whose top was visible before any scrolling (top above the first
// viewport height) measures progress against the distance the page can scroll
// before its bottom reaches the viewport bottom; any other container measures
// against its own height.
func ScrollPercentage(pos ContainerPosition, scrollY, viewportHeight float64) float64 {
	viewportBottom := scrollY + viewportHeight
	remaining := pos.Bottom - viewportBottom

	if pos.Top < viewportHeight {
		total := pos.Bottom - viewportHeight
		return roundPercent(total-remaining, total)
	}
	height := pos.Height()
	return roundPercent(height-remaining, height)
}

// roundPercent returns scrolled/total as a percentage with one decimal. A
// non-positive total means there is nothing left to scroll, which reads as
// complete.
func roundPercent(scrolled, total float64) float64 {
	if total <= 0 {
		return 100
	}
	return math.Round(scrolled/total*1000) / 10
}

// computeState derives the snapshot for one tick.
func computeState(
	active TrackedContainer, hasActive bool,
	last TrackedContainer, hasLast bool,
	scrollY, viewportHeight float64,
) ViewportState {
	if hasActive {
		return ViewportState{
			ActiveContainerID: active.ID,
			Active:            true,
			ScrollPercentage:  ScrollPercentage(active.Position, scrollY, viewportHeight),
		}
	}
	state := ViewportState{}
	if hasLast && last.Position.ScrolledPast(scrollY+viewportHeight) {
		state.ScrollPercentage = 100
	}
	return state
}
