package x11

import (
	"slate/internal/xi"
	"slate/pkg/tablet"
)

// Proximity synthesis thresholds. XInput2 has no native proximity or
// ring-release signal; an interaction is considered over once nothing has
// reported for this long.
const (
	// toolTimeoutMS is the tool proximity timeout in milliseconds.
	toolTimeoutMS xi.Timestamp = 500
	// ringTimeoutMS is the pad ring release timeout in milliseconds.
	ringTimeoutMS xi.Timestamp = 200
)

// phase is a tool's interaction state.
type phase int

const (
	// phaseOut: not interacting.
	phaseOut phase = iota
	// phaseIn: in proximity, not engaged.
	phaseIn
	// phaseDown: engaged (tip contact).
	phaseDown
)

func (p phase) String() string {
	switch p {
	case phaseOut:
		return "out"
	case phaseIn:
		return "in"
	case phaseDown:
		return "down"
	default:
		return "invalid"
	}
}

// transition is one atomic phase-machine event.
type transition int

const (
	transitionIn transition = iota
	transitionDown
	transitionUp
	transitionOut
)

// phaseTransitions returns the ordered atomic transitions needed to move
// from current to target. A tool never goes Down without an In first, and
// never Out without an Up first.
func phaseTransitions(current, target phase) []transition {
	switch current {
	case phaseOut:
		switch target {
		case phaseIn:
			return []transition{transitionIn}
		case phaseDown:
			return []transition{transitionIn, transitionDown}
		}
	case phaseIn:
		switch target {
		case phaseOut:
			return []transition{transitionOut}
		case phaseDown:
			return []transition{transitionDown}
		}
	case phaseDown:
		switch target {
		case phaseOut:
			return []transition{transitionUp, transitionOut}
		case phaseIn:
			return []transition{transitionUp}
		}
	}
	return nil
}

// interactionClock tracks the last genuine interaction timestamp for
// timeout synthesis.
type interactionClock struct {
	last xi.Timestamp
	set  bool
}

// touch records an interaction.
func (c *interactionClock) touch(t xi.Timestamp) {
	c.last = t
	c.set = true
}

// expire clears the clock and reports true when an interaction is recorded,
// not in the future, and at least threshold milliseconds old.
func (c *interactionClock) expire(now, threshold xi.Timestamp) bool {
	if !c.set || c.last > now {
		return false
	}
	if now-c.last < threshold {
		return false
	}
	c.set = false
	return true
}

// toolState is the per-tool translation table and interaction state.
type toolState struct {
	pressure *axisInfo
	tiltX    *axisInfo
	tiltY    *axisInfo
	wheel    *axisInfo

	// tablet is the owning tablet per name heuristics. In events reference
	// it because the protocol cannot say which tablet a tool entered over.
	tablet tablet.DeviceID

	phase phase

	// masterPointer is the master cursor whose Enter/Leave gates this
	// device's grab; masterKeyboard is its paired keyboard.
	masterPointer  uint16
	masterKeyboard uint16
	grabbed        bool

	// framePending is the timestamp of an event burst awaiting its Frame.
	framePending    xi.Timestamp
	framePendingSet bool

	clock interactionClock
}

// setPhase moves to target and returns the transitions to emit, in order.
func (s *toolState) setPhase(target phase) []transition {
	ts := phaseTransitions(s.phase, target)
	s.phase = target
	return ts
}

// ensureIn moves an Out tool to In, reporting whether an In event is due.
// No effect when already In or Down.
func (s *toolState) ensureIn() bool {
	if s.phase != phaseOut {
		return false
	}
	s.phase = phaseIn
	return true
}

// attachedTo reports whether master gates this device's grab.
func (s *toolState) attachedTo(master uint16) bool {
	return s.masterPointer == master || s.masterKeyboard == master
}

// replaceFrame records t as the pending frame time. It returns the
// previously pending time when one was set and differs from t, meaning the
// previous burst must be closed with a Frame before new events are
// appended.
func (s *toolState) replaceFrame(t xi.Timestamp) (xi.Timestamp, bool) {
	prev, wasSet := s.framePending, s.framePendingSet
	s.framePending = t
	s.framePendingSet = true
	return prev, wasSet && prev != t
}

// takeFrame clears and returns the pending frame time.
func (s *toolState) takeFrame() (xi.Timestamp, bool) {
	if !s.framePendingSet {
		return 0, false
	}
	s.framePendingSet = false
	return s.framePending, true
}

// ringState tracks a pad's ring axis.
type ringState struct {
	axis  axisInfo
	clock interactionClock
}

// padState is the per-pad translation table and interaction state.
type padState struct {
	// ring is nil for pads without a wheel-labeled absolute valuator.
	ring *ringState

	buttons int

	tablet tablet.DeviceID

	masterPointer  uint16
	masterKeyboard uint16
	grabbed        bool
}

func (p *padState) attachedTo(master uint16) bool {
	return p.masterPointer == master || p.masterKeyboard == master
}
