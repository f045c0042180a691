package progress

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/readingprogress/internal/viewport"
)

// Transition classifies how the active container changed between two
// consecutive states of a session.
type Transition string

// Supported transitions.
const (
	TransitionNone   Transition = ""
	TransitionEnter  Transition = "enter"
	TransitionLeave  Transition = "leave"
	TransitionSwitch Transition = "switch"
)

// Update is one viewport state emitted by a tracking session.
type Update struct {
	// Session identifies the tracking session that produced the state.
	Session uuid.UUID `json:"session"`
	// Seq increases by one per state within a session, starting at 1.
	Seq uint64 `json:"seq"`
	// TS is the UTC time the state was observed.
	TS time.Time `json:"ts"`
	// State is the snapshot itself.
	State viewport.ViewportState `json:"state"`
	// Transition relative to the previous state of the session.
	Transition Transition `json:"transition,omitempty"`
}

// Validate performs coarse validation on Update payloads.
func (u Update) Validate() error {
	if u.Session == uuid.Nil {
		return errors.New("session id is required")
	}
	if u.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	pct := u.State.ScrollPercentage
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return errors.New("scroll percentage must be finite")
	}
	if u.State.Active && u.State.ActiveContainerID == "" {
		return errors.New("active state requires a container id")
	}
	return nil
}

// Classify reports the transition from prev to next.
func Classify(prev, next viewport.ViewportState) Transition {
	switch {
	case !prev.Active && next.Active:
		return TransitionEnter
	case prev.Active && !next.Active:
		return TransitionLeave
	case prev.Active && next.Active && prev.ActiveContainerID != next.ActiveContainerID:
		return TransitionSwitch
	default:
		return TransitionNone
	}
}
