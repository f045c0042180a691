package viewport

import "sync"

// Registry holds the containers whose reading progress is tracked. It is safe
// for concurrent use; every read observes a consistent snapshot.
//
// IDs are not validated for uniqueness. Containers sharing an ID coexist and
// lookups by ID resolve to the earliest inserted one.
type Registry struct {
	scroll ScrollSource

	mu         sync.RWMutex
	containers []TrackedContainer
}

// NewRegistry creates an empty Registry that reads the scroll offset from
// scroll when capturing positions. A nil scroll source is treated as an
// unscrolled page.
func NewRegistry(scroll ScrollSource) *Registry {
	return &Registry{scroll: scroll}
}

// Add captures the container's page-absolute position and inserts it. It
// returns a snapshot of the registry after insertion.
func (r *Registry) Add(c Container) []TrackedContainer {
	tracked := r.capture(c)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = append(r.containers, tracked)
	return r.snapshotLocked()
}

// AddAll adds each container in order, capturing positions one by one.
func (r *Registry) AddAll(containers []Container) []TrackedContainer {
	captured := make([]TrackedContainer, 0, len(containers))
	for _, c := range containers {
		captured = append(captured, r.capture(c))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = append(r.containers, captured...)
	return r.snapshotLocked()
}

// AddTracked inserts a container whose position is already known.
func (r *Registry) AddTracked(tc TrackedContainer) []TrackedContainer {
	if tc.Position.Bottom < tc.Position.Top {
		tc.Position.Top, tc.Position.Bottom = tc.Position.Bottom, tc.Position.Top
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = append(r.containers, tc)
	return r.snapshotLocked()
}

// Remove deletes the first container with the given ID and reports whether
// anything was removed.
func (r *Registry) Remove(id ContainerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.containers {
		if c.ID == id {
			r.containers = append(r.containers[:i], r.containers[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every container.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = nil
}

// Replace swaps the whole set for containers in one step, so a concurrent
// tick sees either the old set or the new one.
func (r *Registry) Replace(containers []Container) []TrackedContainer {
	captured := make([]TrackedContainer, 0, len(containers))
	for _, c := range containers {
		captured = append(captured, r.capture(c))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers = captured
	return r.snapshotLocked()
}

// Get returns the first container with the given ID.
func (r *Registry) Get(id ContainerID) (TrackedContainer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.containers {
		if c.ID == id {
			return c, true
		}
	}
	return TrackedContainer{}, false
}

// FindActive returns the first container, in insertion order, whose span
// contains the viewport's bottom edge.
func (r *Registry) FindActive(scrollY, viewportHeight float64) (TrackedContainer, bool) {
	viewportBottom := scrollY + viewportHeight

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.containers {
		if c.Position.ContainsViewportBottom(viewportBottom) {
			return c, true
		}
	}
	return TrackedContainer{}, false
}

// Containers returns a copy of the tracked containers in insertion order.
func (r *Registry) Containers() []TrackedContainer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Len returns the number of tracked containers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.containers)
}

// Refresh re-captures the position of every container that still has an
// element attached, e.g. after the viewport height changed and content
// reflowed. It returns the refreshed snapshot.
func (r *Registry) Refresh() []TrackedContainer {
	current := r.Containers()
	positions := make(map[int]ContainerPosition, len(current))
	for i, c := range current {
		if c.Element != nil {
			positions[i] = r.capture(Container{ID: c.ID, Element: c.Element}).Position
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.containers {
		if i >= len(current) || r.containers[i].ID != current[i].ID {
			// The set changed while measuring; keep whatever is there now.
			continue
		}
		if pos, ok := positions[i]; ok {
			r.containers[i].Position = pos
		}
	}
	return r.snapshotLocked()
}

func (r *Registry) capture(c Container) TrackedContainer {
	tracked := TrackedContainer{ID: c.ID, Element: c.Element}
	if c.Element == nil {
		return tracked
	}
	var scrollY float64
	if r.scroll != nil {
		scrollY = r.scroll.ScrollY()
	}
	tracked.Position = positionFromRect(c.Element.BoundingRect(), scrollY)
	return tracked
}

func (r *Registry) snapshotLocked() []TrackedContainer {
	out := make([]TrackedContainer, len(r.containers))
	copy(out, r.containers)
	return out
}
