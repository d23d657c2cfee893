// Package xi models the slice of the XInput2 protocol that the backend
// consumes: the two overlapping device-description queries, the event kinds
// delivered to the window, fixed-point numbers, and the connection
// operations issued against the server.
//
// The backend core only sees the Conn interface and the plain snapshot
// types here. The wire implementation lives in conn_x11.go, wire.go and
// transport.go; tests use an in-memory fake.
package xi

import "errors"

// Timestamp is a server timestamp in milliseconds from an arbitrary epoch.
type Timestamp uint32

// Atom is a server-interned string handle.
type Atom uint32

// Protocol wildcard device ids.
const (
	// AllDevices selects every device in a SelectEvents mask.
	AllDevices uint16 = 0
	// AllMasterDevices selects every master device.
	AllMasterDevices uint16 = 1
)

// CurrentTime is the magic timestamp meaning "now" to the server.
const CurrentTime Timestamp = 0

// ErrExtensionMissing reports a server without a usable XInput extension.
var ErrExtensionMissing = errors.New("xi: XInput extension not present")

// Fp3232 is the protocol's 32.32 fixed-point format.
type Fp3232 struct {
	Integral int32
	Frac     uint32
}

// Float64 converts to floating point. The fractional word is an unsigned
// binary fraction of one; it moves the value away from zero in the sign of
// the integral part. A zero integral part counts as positive: {0, frac}
// reads as +frac, so the conversion is monotone across zero.
func (f Fp3232) Float64() float64 {
	frac := float64(f.Frac) / (1 << 32)
	if f.Integral >= 0 {
		return float64(f.Integral) + frac
	}
	return float64(f.Integral) - frac
}

// IsZero reports a wire-level all-zero value.
func (f Fp3232) IsZero() bool { return f.Integral == 0 && f.Frac == 0 }

// Fp1616 is the protocol's 16.16 fixed-point format, used for event
// coordinates.
type Fp1616 int32

// Float64 converts to floating point.
func (f Fp1616) Float64() float64 { return float64(f) / 65536.0 }

// Role is a device's place in the master/slave topology, as reported by the
// device query.
type Role uint16

const (
	RoleMasterPointer  Role = 1
	RoleMasterKeyboard Role = 2
	RoleSlavePointer   Role = 3
	RoleSlaveKeyboard  Role = 4
	RoleFloatingSlave  Role = 5
)

// ValuatorMode distinguishes absolute from relative axes.
type ValuatorMode uint8

const (
	ModeRelative ValuatorMode = 0
	ModeAbsolute ValuatorMode = 1
)

// ValuatorClass describes one continuous axis of a device.
type ValuatorClass struct {
	// Number is the axis's slot in motion-event valuator arrays.
	Number uint16
	// Label names the axis semantic; resolve with Conn.AtomName.
	Label Atom
	Min   Fp3232
	Max   Fp3232
	Mode  ValuatorMode
}

// DeviceQuery is one device as reported by the per-class device query
// (XIQueryDevice). It carries topology and axis detail but not the type
// atom.
type DeviceQuery struct {
	ID         uint16
	Role       Role
	Attachment uint16
	Name       string
	Valuators  []ValuatorClass
	// ButtonCount is the size of the device's button class, zero when the
	// device has none.
	ButtonCount uint16
}

// DeviceListing is one device as reported by the flat device list
// (ListInputDevices). It carries the device-type atom the query lacks.
type DeviceListing struct {
	ID uint16
	// Type is the device-type atom, zero when the device declares none.
	Type Atom
	Name string
}

// EventMaskBits selects event kinds in a SelectEvents registration. Values
// are the protocol's mask bit positions.
type EventMaskBits uint32

const (
	MaskDeviceChanged EventMaskBits = 1 << 1
	MaskButtonPress   EventMaskBits = 1 << 4
	MaskButtonRelease EventMaskBits = 1 << 5
	MaskMotion        EventMaskBits = 1 << 6
	MaskEnter         EventMaskBits = 1 << 7
	MaskLeave         EventMaskBits = 1 << 8
	MaskFocusIn       EventMaskBits = 1 << 9
	MaskFocusOut      EventMaskBits = 1 << 10
	MaskHierarchy     EventMaskBits = 1 << 11
)

// EventMask pairs a device (or wildcard) with the event kinds to deliver.
type EventMask struct {
	Device uint16
	Mask   EventMaskBits
}

// ChangeReason is the cause of a DeviceChangedEvent.
type ChangeReason uint8

const (
	// ReasonSlaveSwitch: a different physical device started driving a
	// master. Not acted upon.
	ReasonSlaveSwitch ChangeReason = 1
	// ReasonDeviceChange: a physical device changed its capabilities.
	ReasonDeviceChange ChangeReason = 2
)

// Event is a decoded protocol event. Concrete types below.
type Event interface {
	isEvent()
}

// HierarchyEvent reports devices added, removed, enabled or reassigned. The
// payload details are deliberately not modeled; the protocol documentation
// recommends a full rescan.
type HierarchyEvent struct {
	Time Timestamp
}

// DeviceChangedEvent reports a device's capabilities changing.
type DeviceChangedEvent struct {
	Time   Timestamp
	Device uint16
	Reason ChangeReason
}

// EnterEvent reports the pointer entering the window, or keyboard focus
// arriving (Focus true). Delivered for master devices only.
type EnterEvent struct {
	Time   Timestamp
	Master uint16
	Focus  bool
}

// LeaveEvent is the counterpart of EnterEvent.
type LeaveEvent struct {
	Time   Timestamp
	Master uint16
	Focus  bool
}

// ButtonEvent reports a button press or release on a tool or pad device.
type ButtonEvent struct {
	Time   Timestamp
	Device uint16
	// Button is the 1-based button index ("detail").
	Button  uint32
	Pressed bool
	// Emulated marks presses synthesized from another source, such as
	// scroll-wheel emulation.
	Emulated bool
}

// MotionEvent reports axis movement. ValuatorMask flags the valuators that
// reported; AxisValues layout varies by server (see the fetch quirk in the
// backend), so consumers index it defensively.
type MotionEvent struct {
	Time   Timestamp
	Device uint16
	EventX Fp1616
	EventY Fp1616

	ValuatorMask []uint32
	AxisValues   []Fp3232
}

func (HierarchyEvent) isEvent()     {}
func (DeviceChangedEvent) isEvent() {}
func (EnterEvent) isEvent()         {}
func (LeaveEvent) isEvent()         {}
func (ButtonEvent) isEvent()        {}
func (MotionEvent) isEvent()        {}

// Conn is the synchronous protocol surface the backend drives. All round
// trips are local-IPC-class request/reply pairs; none of them block waiting
// for events.
type Conn interface {
	// QueryVersion negotiates the extension version and returns what the
	// server supports.
	QueryVersion(major, minor uint16) (uint16, uint16, error)

	// QueryDevices snapshots all devices via the per-class query.
	QueryDevices() ([]DeviceQuery, error)

	// ListDevices snapshots all devices via the flat listing.
	ListDevices() ([]DeviceListing, error)

	// AtomName resolves an atom to its string.
	AtomName(a Atom) (string, error)

	// InternAtom looks up an existing atom by name. Zero with nil error
	// means the atom does not exist on this server.
	InternAtom(name string) (Atom, error)

	// DeviceProperty fetches up to numItems items of a device property,
	// widened to uint32 regardless of the property's storage format. A
	// missing property returns an empty slice.
	DeviceProperty(device uint16, property Atom, numItems uint32) ([]uint32, error)

	// SelectEvents registers event interest on the window. The protocol
	// rejects an empty mask list.
	SelectEvents(window uint32, masks []EventMask) error

	// GrabDevice attempts an exclusive asynchronous grab that does not
	// override the visible cursor. It reports whether the grab succeeded.
	GrabDevice(window uint32, device uint16, t Timestamp) (bool, error)

	// UngrabDevice releases a grab.
	UngrabDevice(device uint16, t Timestamp) error

	// PollEvent returns the next queued event without blocking, (nil, nil)
	// once the queue is drained, or an error when the connection is no
	// longer readable.
	PollEvent() (Event, error)
}
