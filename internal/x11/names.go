package x11

import (
	"strconv"
	"strings"

	"slate/pkg/tablet"
)

// Device-type atoms are the only protocol-level statement of what a device
// is. The strings come from X11/extensions/XI.h; capability lists are not a
// usable signal (pads advertise absolute x/y and pressure that never
// report).
const (
	typeTablet   = "TABLET"
	typePad      = "PAD"
	typeTouchpad = "TOUCHPAD"
	typeStylus   = "STYLUS"
	typeEraser   = "ERASER"

	// Xwayland labels mice, styluses and erasers alike as a generic
	// pointer; the real role hides in the device name.
	typeXwaylandPointer = "xwayland-pointer"
)

// EmulatedTabletName is the name of the placeholder tablet synthesized when
// a tool or pad has no matching tablet device.
const EmulatedTabletName = "slate emulated"

// role is the inferred function of a device.
type role int

const (
	roleNone role = iota
	roleTool
	rolePad
	roleTablet
)

// classification is a resolved device role; Kind is meaningful only for
// roleTool.
type classification struct {
	Role role
	Kind tablet.ToolKind
}

// classifyTypeLabel maps a resolved device-type atom string to a role.
// needName reports the xwayland case, where the type label is useless and
// the device name must be consulted instead. ok is false for labels we do
// not handle (MOUSE, TOUCHSCREEN, keyboards, ...).
func classifyTypeLabel(label string) (c classification, needName, ok bool) {
	switch label {
	case typeStylus:
		return classification{Role: roleTool, Kind: tablet.Pen}, false, true
	case typeEraser:
		return classification{Role: roleTool, Kind: tablet.Eraser}, false, true
	case typePad, typeTouchpad:
		return classification{Role: rolePad}, false, true
	case typeTablet:
		return classification{Role: roleTablet}, false, true
	case typeXwaylandPointer:
		return classification{}, true, true
	default:
		return classification{}, false, false
	}
}

// classifyXwaylandName parses the role out of an xwayland device name:
//
//	"xwayland-tablet-pad:<n>"
//	"xwayland-tablet stylus:<n>"
//	"xwayland-tablet eraser:<n>"
//
// The numeric field after the colon has no known meaning. Note the
// inconsistent separator before "pad".
func classifyXwaylandName(name string) (classification, bool) {
	rest, found := strings.CutPrefix(name, "xwayland-tablet")
	if !found {
		return classification{}, false
	}
	colon := strings.LastIndexByte(rest, ':')
	if colon < 0 {
		return classification{}, false
	}
	switch rest[:colon] {
	case "-pad":
		return classification{Role: rolePad}, true
	case " stylus":
		return classification{Role: roleTool, Kind: tablet.Pen}, true
	case " eraser":
		return classification{Role: roleTool, Kind: tablet.Eraser}, true
	default:
		return classification{}, false
	}
}

// toolName is the result of parsing a tool's human-readable device name.
type toolName struct {
	// Human is the name minus the serial and tool-type suffixes.
	Human string
	// Serial is the parsed hardware serial; nil when the name carries
	// none. A literal "(0)" parses as present-with-value-zero: some
	// hardware reports it despite lacking a genuine serial capability.
	Serial *uint64
	// Tablet is the candidate owning tablet's name, empty when the name
	// gives no hint.
	Tablet string
}

// parseToolName extracts the fields X hides inside a tool's device name.
// The observed format is "<tablet name> <tool type> (<serial>)" where
// serial is a literal 0 or an 0x-prefixed hex number. Undocumented, and a
// heuristic: xwayland names, for one, do not follow it.
func parseToolName(name string) toolName {
	human := name
	var serial *uint64

	if open := strings.LastIndexByte(name, '('); open >= 0 {
		if close := strings.IndexByte(name[open+1:], ')'); close >= 0 {
			idText := name[open+1 : open+1+close]
			if v, ok := parseSerial(idText); ok {
				human = strings.TrimRight(name[:open], " ")
				serial = &v
			}
		}
	}

	// These are the suffixes Wacom-style naming uses; an airbrush may well
	// use another. The stripped prefix doubles as the display name; the
	// tool kind already says which end this is.
	candidate := ""
	if prefix, found := strings.CutSuffix(human, " Pen"); found {
		candidate = prefix
	} else if prefix, found := strings.CutSuffix(human, " Eraser"); found {
		candidate = prefix
	}
	if candidate != "" {
		human = candidate
	}

	return toolName{Human: human, Serial: serial, Tablet: candidate}
}

func parseSerial(text string) (uint64, bool) {
	if text == "0" {
		return 0, true
	}
	hex, found := strings.CutPrefix(text, "0x")
	if !found {
		return 0, false
	}
	v, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// padAssociatedTablet derives the candidate owning tablet's name from a pad
// device name, or "" when the name does not follow the "<prefix> Pad"
// convention. Hardware that names its pad "<prefix> Pad" names its tablet
// device "<prefix> Pen" (the XP-PEN DECO-01 does exactly this), so the
// candidate is the prefix with the tool suffix re-attached.
func padAssociatedTablet(name string) string {
	prefix, found := strings.CutSuffix(name, " Pad")
	if !found {
		return ""
	}
	return prefix + " Pen"
}

// valuatorAxis is a semantic axis recognized by its label atom.
type valuatorAxis int

const (
	axisPressure valuatorAxis = iota
	axisTiltX
	axisTiltY
	// axisWheel is the pad ring; under Xwayland it is also listed for
	// styluses.
	axisWheel
)

// parseAxisLabel maps a valuator label string to a semantic axis. Labels
// are defined in X11/extensions/XI.h. Absolute X/Y are deliberately
// unhandled; positions come from event coordinates.
func parseAxisLabel(label string) (valuatorAxis, bool) {
	switch label {
	case "Abs Pressure":
		return axisPressure, true
	case "Abs Tilt X":
		return axisTiltX, true
	case "Abs Tilt Y":
		return axisTiltY, true
	case "Abs Wheel":
		return axisWheel, true
	default:
		return 0, false
	}
}
