package viewport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestScrollPercentage covers the initial-view and regular branches.
func TestScrollPercentage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		pos            ContainerPosition
		scrollY        float64
		viewportHeight float64
		want           float64
	}{
		{
			name:           "initial view at top of page",
			pos:            ContainerPosition{Top: 0, Bottom: 1000},
			scrollY:        0,
			viewportHeight: 500,
			want:           0,
		},
		{
			name:           "initial view scrolled to container bottom",
			pos:            ContainerPosition{Top: 0, Bottom: 1000},
			scrollY:        500,
			viewportHeight: 500,
			want:           100,
		},
		{
			name:           "initial view partly visible",
			pos:            ContainerPosition{Top: 200, Bottom: 1500},
			scrollY:        250,
			viewportHeight: 500,
			want:           25,
		},
		{
			name:           "below the fold halfway",
			pos:            ContainerPosition{Top: 1000, Bottom: 2000},
			scrollY:        1000,
			viewportHeight: 500,
			want:           50,
		},
		{
			name:           "rounded to one decimal",
			pos:            ContainerPosition{Top: 1000, Bottom: 4000},
			scrollY:        1500,
			viewportHeight: 500,
			want:           33.3,
		},
		{
			name:           "viewport bottom at container top",
			pos:            ContainerPosition{Top: 1000, Bottom: 2000},
			scrollY:        500,
			viewportHeight: 500,
			want:           0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ScrollPercentage(tt.pos, tt.scrollY, tt.viewportHeight)
			require.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

// TestScrollPercentageDegenerateSpan ensures empty spans read as complete instead of NaN.
func TestScrollPercentageDegenerateSpan(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100.0, ScrollPercentage(ContainerPosition{Top: 800, Bottom: 800}, 600, 500))
	require.Equal(t, 100.0, ScrollPercentage(ContainerPosition{Top: 0, Bottom: 500}, 0, 500))
}

// TestComputeStatePolicies checks the no-active settle policy.
func TestComputeStatePolicies(t *testing.T) {
	t.Parallel()

	first := TrackedContainer{ID: "a", Position: ContainerPosition{Top: 0, Bottom: 1000}}

	state := computeState(first, true, first, true, 250, 500)
	require.Equal(t, ViewportState{ActiveContainerID: "a", Active: true, ScrollPercentage: 50}, state)

	state = computeState(TrackedContainer{}, false, first, true, 1200, 500)
	require.Equal(t, ViewportState{ScrollPercentage: 100}, state)

	state = computeState(TrackedContainer{}, false, TrackedContainer{}, false, 1200, 500)
	require.Equal(t, ViewportState{}, state)

	// Viewport bottom exactly on the last container's bottom edge.
	state = computeState(TrackedContainer{}, false, first, true, 500, 500)
	require.Equal(t, ViewportState{}, state)

	state = computeState(TrackedContainer{}, false, first, true, 501, 500)
	require.Equal(t, ViewportState{ScrollPercentage: 100}, state)

	below := TrackedContainer{ID: "b", Position: ContainerPosition{Top: 3000, Bottom: 4000}}
	state = computeState(TrackedContainer{}, false, below, true, 0, 500)
	require.Equal(t, ViewportState{}, state)
}

// TestPositionPredicates pins the active and scrolled-past boundaries.
func TestPositionPredicates(t *testing.T) {
	t.Parallel()

	pos := ContainerPosition{Top: 100, Bottom: 200}
	require.False(t, pos.ContainsViewportBottom(99))
	require.True(t, pos.ContainsViewportBottom(100))
	require.True(t, pos.ContainsViewportBottom(199.5))
	require.False(t, pos.ContainsViewportBottom(200))
	require.False(t, pos.ScrolledPast(199))
	require.False(t, pos.ScrolledPast(200))
	require.True(t, pos.ScrolledPast(200.5))

	require.Equal(t, ContainerPosition{Top: 50, Bottom: 150}, positionFromRect(Rect{Top: 100, Bottom: 0}, 50))
}
