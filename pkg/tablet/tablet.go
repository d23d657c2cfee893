// Package tablet defines the device records exposed by the slate backend:
// tools (styluses and erasers), pads, tablets, and the generation-tagged
// identifiers that tie them together for one enumeration epoch.
package tablet

import "fmt"

// DeviceID identifies a device for a single enumeration epoch.
//
// XInput reuses the numeric ids of removed devices, so a raw id alone is not
// safe to hold across a re-enumeration. The generation counter is bumped on
// every repopulation; a stale DeviceID from a previous epoch compares
// unequal to any current one and lookups with it intentionally miss.
//
// The zero value is the emulated-tablet sentinel: the placeholder tablet
// synthesized when a tool or pad cannot be matched to a real tablet device.
// The sentinel has no wire id, so it can never be passed to protocol
// operations that need one (see Wire).
type DeviceID struct {
	generation uint16
	device     uint16
}

// EmulatedTablet returns the sentinel id of the synthesized tablet.
func EmulatedTablet() DeviceID { return DeviceID{} }

// NewDeviceID builds an id for a raw protocol device id in the given
// generation. It reports false for raw id zero, which the protocol reserves
// as a wildcard and never assigns to a device.
func NewDeviceID(generation, raw uint16) (DeviceID, bool) {
	if raw == 0 {
		return DeviceID{}, false
	}
	return DeviceID{generation: generation, device: raw}, true
}

// IsEmulated reports whether id is the emulated-tablet sentinel.
func (id DeviceID) IsEmulated() bool { return id.device == 0 }

// Wire returns the raw protocol device id. The second result is false for
// the emulated-tablet sentinel, which has no wire representation.
func (id DeviceID) Wire() (uint16, bool) {
	if id.device == 0 {
		return 0, false
	}
	return id.device, true
}

// Less orders ids for stable registry iteration. The order carries no
// semantic meaning.
func (id DeviceID) Less(other DeviceID) bool {
	if id.generation != other.generation {
		return id.generation < other.generation
	}
	return id.device < other.device
}

func (id DeviceID) String() string {
	if id.device == 0 {
		return "emulated"
	}
	return fmt.Sprintf("%d@%d", id.device, id.generation)
}

// ToolKind classifies the business end of a stylus.
type ToolKind int

const (
	// Pen is a stylus tip.
	Pen ToolKind = iota
	// Eraser is the inverted end of a stylus.
	Eraser
)

func (k ToolKind) String() string {
	switch k {
	case Pen:
		return "pen"
	case Eraser:
		return "eraser"
	default:
		return "unknown"
	}
}

// Limits bounds an axis reading, in the axis's reported unit.
type Limits struct {
	Min float64
	Max float64
}

// ToolAxes describes which optional axes a tool reports.
type ToolAxes struct {
	// Pressure reports whether the tool has a pressure axis, normalized
	// to [0, 1].
	Pressure bool

	// Tilt holds the combined angular limits of the tilt axes in radians,
	// or nil when the tool reports no tilt.
	Tilt *Limits

	// Wheel reports whether the tool advertises a wheel axis.
	Wheel bool
}

// Tool is a stylus or eraser.
type Tool struct {
	ID DeviceID

	// Name is the human-readable device name with the serial and tool-type
	// suffixes stripped. Empty when the server supplied no usable name.
	Name string

	Kind ToolKind

	// Serial is the hardware serial parsed from the device name. Nil means
	// the device does not expose one; a pointer to zero means the device
	// reports the serial capability but with value zero.
	Serial *uint64

	Axes ToolAxes
}

// Pad is a tablet pad: a cluster of buttons and, optionally, one ring.
type Pad struct {
	ID DeviceID

	// Buttons is the total number of pad buttons.
	Buttons int

	// Ring reports whether the pad has an absolute ring axis.
	Ring bool
}

// USBID is a vendor/product identifier pair.
type USBID struct {
	Vendor  uint16
	Product uint16
}

// Tablet is a tablet device, possibly the synthesized placeholder.
type Tablet struct {
	ID DeviceID

	Name string

	// USB holds the vendor/product pair when the device publishes one.
	USB *USBID
}
