// Package events defines the abstract event batch produced by one pump
// tick of the slate backend.
//
// Events are emitted in order. Tool interaction follows a strict shape: a
// tool is In before any Pose, Button, Down or Up, and every burst of
// same-timestamp mutations is closed by exactly one Frame carrying that
// timestamp.
package events

import (
	"time"

	"slate/pkg/tablet"
)

// Event is one entry of a tick's batch. Implementations are the concrete
// types in this package.
type Event interface {
	event()
}

// FrameTime is a server timestamp at millisecond granularity, measured from
// an arbitrary server epoch. Zero is a valid instant; Valid distinguishes
// absence.
type FrameTime struct {
	Duration time.Duration
	Valid    bool
}

// At builds a valid FrameTime from a server timestamp in milliseconds.
func At(millis uint32) FrameTime {
	return FrameTime{Duration: time.Duration(millis) * time.Millisecond, Valid: true}
}

// Optional is an axis reading that a device may or may not supply.
type Optional struct {
	Value float64
	Valid bool
}

// Some wraps a supplied reading.
func Some(v float64) Optional { return Optional{Value: v, Valid: true} }

// Pose is a tool position report with whatever optional axes the motion
// event carried.
type Pose struct {
	// X, Y are window-local coordinates.
	X float64
	Y float64

	// Pressure is normalized to [0, 1].
	Pressure Optional

	// TiltX, TiltY are in radians. When the device reports only one tilt
	// axis the other is supplied as zero.
	TiltX Optional
	TiltY Optional
}

// ToolIn reports a tool entering proximity. Tablet is the tool's associated
// tablet, resolved heuristically at classification time; the protocol does
// not report which tablet a tool is hovering over.
type ToolIn struct {
	Tool   tablet.DeviceID
	Tablet tablet.DeviceID
}

// ToolOut reports a tool leaving proximity.
type ToolOut struct {
	Tool tablet.DeviceID
}

// ToolDown reports tip contact.
type ToolDown struct {
	Tool tablet.DeviceID
}

// ToolUp reports tip contact ending.
type ToolUp struct {
	Tool tablet.DeviceID
}

// ToolPose reports tool motion.
type ToolPose struct {
	Tool tablet.DeviceID
	Pose Pose
}

// ToolButton reports a non-tip tool button. Button is the protocol's
// 1-based button index; index 1 (the tip) never arrives here, it drives
// Down/Up instead.
type ToolButton struct {
	Tool    tablet.DeviceID
	Button  uint16
	Pressed bool
}

// ToolFrame closes a burst of tool events sharing one timestamp.
type ToolFrame struct {
	Tool tablet.DeviceID
	Time FrameTime
}

// PadEnter reports a pad's tablet attachment. Pads cannot roam between
// tablets, so this is emitted once per pad per enumeration.
type PadEnter struct {
	Pad    tablet.DeviceID
	Tablet tablet.DeviceID
}

// PadButton reports a pad button, rebased to 0-based indexing.
type PadButton struct {
	Pad     tablet.DeviceID
	Button  int
	Pressed bool
}

// RingPose reports the pad ring angle in radians, [0, 2π), clockwise from
// logical north.
type RingPose struct {
	Pad   tablet.DeviceID
	Angle float64
}

// RingUp reports the end of a ring interaction. The protocol has no native
// release signal for rings; this is synthesized by timeout.
type RingUp struct {
	Pad tablet.DeviceID
}

// RingFrame closes a ring event burst.
type RingFrame struct {
	Pad  tablet.DeviceID
	Time FrameTime
}

func (ToolIn) event()     {}
func (ToolOut) event()    {}
func (ToolDown) event()   {}
func (ToolUp) event()     {}
func (ToolPose) event()   {}
func (ToolButton) event() {}
func (ToolFrame) event()  {}
func (PadEnter) event()   {}
func (PadButton) event()  {}
func (RingPose) event()   {}
func (RingUp) event()     {}
func (RingFrame) event()  {}
