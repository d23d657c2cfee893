package xi

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Core protocol opcodes used by the transport.
const (
	opInternAtom     = 16
	opGetAtomName    = 17
	opGetInputFocus  = 43
	opQueryExtension = 98
)

// extensionName is the registered name of the input extension.
const extensionName = "XInputExtension"

// Extension minor opcodes. ListInputDevices is the one XInput 1.x request
// still needed; it is the only way to read a device's type atom.
const (
	xiOpListInputDevices = 2
	xiOpSelectEvents     = 46
	xiOpQueryVersion     = 47
	xiOpQueryDevice      = 48
	xiOpGrabDevice       = 51
	xiOpUngrabDevice     = 52
	xiOpGetProperty      = 59
)

// geEventCode is the core event code carrying all extension events.
const geEventCode = 35

// Generic-event type codes of the input extension.
const (
	geDeviceChanged = 1
	geButtonPress   = 4
	geButtonRelease = 5
	geMotion        = 6
	geEnter         = 7
	geLeave         = 8
	geFocusIn       = 9
	geFocusOut      = 10
	geHierarchy     = 11
)

// Device-class type codes in XIQueryDevice replies.
const (
	classButton   = 1
	classValuator = 2
)

// flagPointerEmulated marks button and motion events synthesized from
// another source, such as smooth-scroll emulation.
const flagPointerEmulated = 1 << 16

// All connection data is little-endian: the setup request asks for it.
func put16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func put32(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func get16(b []byte) uint16    { return binary.LittleEndian.Uint16(b) }
func get32(b []byte) uint32    { return binary.LittleEndian.Uint32(b) }

// pad4 rounds up to the protocol's 4-byte alignment.
func pad4(n int) int { return (n + 3) &^ 3 }

// newRequest allocates a request buffer with the header filled in: major
// opcode, the header data byte (the minor opcode for extension requests),
// and the total length in 4-byte units. body is the unpadded payload size.
func newRequest(major, data byte, body int) []byte {
	buf := make([]byte, 4+pad4(body))
	buf[0] = major
	buf[1] = data
	put16(buf[2:], uint16(len(buf)/4))
	return buf
}

// =============================================================================
// Core requests
// =============================================================================

func queryExtensionRequest(name string) []byte {
	buf := newRequest(opQueryExtension, 0, 4+len(name))
	put16(buf[4:], uint16(len(name)))
	copy(buf[8:], name)
	return buf
}

// parseQueryExtensionReply returns presence and the extension's major
// opcode.
func parseQueryExtensionReply(f []byte) (bool, byte) {
	return f[8] != 0, f[9]
}

func internAtomRequest(name string) []byte {
	// The data byte is only-if-exists: a missing atom answers zero instead
	// of creating one.
	buf := newRequest(opInternAtom, 1, 4+len(name))
	put16(buf[4:], uint16(len(name)))
	copy(buf[8:], name)
	return buf
}

func parseInternAtomReply(f []byte) Atom { return Atom(get32(f[8:])) }

func getAtomNameRequest(a Atom) []byte {
	buf := newRequest(opGetAtomName, 0, 4)
	put32(buf[4:], uint32(a))
	return buf
}

func parseGetAtomNameReply(f []byte) (string, error) {
	n := int(get16(f[8:]))
	if 32+n > len(f) {
		return "", fmt.Errorf("xi: truncated atom name reply")
	}
	return string(f[32 : 32+n]), nil
}

func getInputFocusRequest() []byte { return newRequest(opGetInputFocus, 0, 0) }

// =============================================================================
// Extension requests
// =============================================================================

func xiQueryVersionRequest(op byte, major, minor uint16) []byte {
	buf := newRequest(op, xiOpQueryVersion, 4)
	put16(buf[4:], major)
	put16(buf[6:], minor)
	return buf
}

func parseXIQueryVersionReply(f []byte) (uint16, uint16) {
	return get16(f[8:]), get16(f[10:])
}

func xiQueryDeviceRequest(op byte, device uint16) []byte {
	buf := newRequest(op, xiOpQueryDevice, 4)
	put16(buf[4:], device)
	return buf
}

// parseXIQueryDeviceReply walks the per-device info blocks. Classes other
// than button and valuator are skipped over by their length field.
func parseXIQueryDeviceReply(f []byte) ([]DeviceQuery, error) {
	count := int(get16(f[8:]))
	queries := make([]DeviceQuery, 0, count)

	off := 32
	for i := 0; i < count; i++ {
		if off+12 > len(f) {
			return nil, fmt.Errorf("xi: truncated device query reply")
		}
		q := DeviceQuery{
			ID:         get16(f[off:]),
			Role:       Role(get16(f[off+2:])),
			Attachment: get16(f[off+4:]),
		}
		classes := int(get16(f[off+6:]))
		nameLen := int(get16(f[off+8:]))
		off += 12
		if off+nameLen > len(f) {
			return nil, fmt.Errorf("xi: truncated device query reply")
		}
		q.Name = string(f[off : off+nameLen])
		off += pad4(nameLen)

		for c := 0; c < classes; c++ {
			if off+4 > len(f) {
				return nil, fmt.Errorf("xi: truncated device class")
			}
			ctype := get16(f[off:])
			clen := int(get16(f[off+2:])) * 4
			if clen < 4 || off+clen > len(f) {
				return nil, fmt.Errorf("xi: truncated device class")
			}
			switch ctype {
			case classButton:
				q.ButtonCount = get16(f[off+6:])
			case classValuator:
				q.Valuators = append(q.Valuators, ValuatorClass{
					Number: get16(f[off+6:]),
					Label:  Atom(get32(f[off+8:])),
					Min:    parseFp3232(f[off+12:]),
					Max:    parseFp3232(f[off+20:]),
					Mode:   ValuatorMode(f[off+40]),
				})
			}
			off += clen
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func parseFp3232(b []byte) Fp3232 {
	return Fp3232{Integral: int32(get32(b)), Frac: get32(b[4:])}
}

func xiListInputDevicesRequest(op byte) []byte {
	return newRequest(op, xiOpListInputDevices, 0)
}

// parseListInputDevicesReply decodes the XInput 1.x flat listing: fixed
// device records, then class blocks skipped by their byte length, then the
// counted name strings.
func parseListInputDevicesReply(f []byte) ([]DeviceListing, error) {
	count := int(f[8])
	listings := make([]DeviceListing, 0, count)
	classTotals := make([]int, 0, count)

	off := 32
	for i := 0; i < count; i++ {
		if off+8 > len(f) {
			return nil, fmt.Errorf("xi: truncated device listing")
		}
		listings = append(listings, DeviceListing{
			ID:   uint16(f[off+4]),
			Type: Atom(get32(f[off:])),
		})
		classTotals = append(classTotals, int(f[off+5]))
		off += 8
	}
	for _, n := range classTotals {
		for c := 0; c < n; c++ {
			if off+2 > len(f) {
				return nil, fmt.Errorf("xi: truncated device listing")
			}
			clen := int(f[off+1])
			if clen < 2 || off+clen > len(f) {
				return nil, fmt.Errorf("xi: truncated device listing")
			}
			off += clen
		}
	}
	for i := range listings {
		if off >= len(f) {
			return nil, fmt.Errorf("xi: truncated device listing")
		}
		n := int(f[off])
		if off+1+n > len(f) {
			return nil, fmt.Errorf("xi: truncated device listing")
		}
		listings[i].Name = string(f[off+1 : off+1+n])
		off += 1 + n
	}
	return listings, nil
}

func xiGetPropertyRequest(op byte, device uint16, property Atom, numItems uint32) []byte {
	buf := newRequest(op, xiOpGetProperty, 20)
	put16(buf[4:], device)
	// buf[6] delete: false. Type AnyPropertyType, offset zero.
	put32(buf[8:], uint32(property))
	put32(buf[20:], numItems)
	return buf
}

// parseXIGetPropertyReply widens the property data to uint32 items
// regardless of the 8/16/32-bit storage format.
func parseXIGetPropertyReply(f []byte) []uint32 {
	numItems := get32(f[16:])
	format := f[20]
	data := f[32:]

	items := make([]uint32, 0, numItems)
	for i := uint32(0); i < numItems; i++ {
		switch format {
		case 8:
			if int(i) >= len(data) {
				return items
			}
			items = append(items, uint32(data[i]))
		case 16:
			if int(2*i+1) >= len(data) {
				return items
			}
			items = append(items, uint32(get16(data[2*i:])))
		case 32:
			if int(4*i+3) >= len(data) {
				return items
			}
			items = append(items, get32(data[4*i:]))
		default:
			return nil
		}
	}
	return items
}

func xiSelectEventsRequest(op byte, window uint32, masks []EventMask) []byte {
	buf := newRequest(op, xiOpSelectEvents, 8+8*len(masks))
	put32(buf[4:], window)
	put16(buf[8:], uint16(len(masks)))
	off := 12
	for _, m := range masks {
		put16(buf[off:], m.Device)
		put16(buf[off+2:], 1) // mask length in words
		put32(buf[off+4:], uint32(m.Mask))
		off += 8
	}
	return buf
}

func xiGrabDeviceRequest(op byte, window uint32, t Timestamp, device uint16) []byte {
	buf := newRequest(op, xiOpGrabDevice, 20)
	put32(buf[4:], window)
	put32(buf[8:], uint32(t))
	// buf[12:16] cursor: zero keeps the visible cursor.
	put16(buf[16:], device)
	buf[18] = 1 // async: the device keeps sending events
	buf[19] = 1 // async: other devices keep sending events
	buf[20] = 1 // owner-events: deliver what was already selected
	// Empty grab mask; the selection made at enumeration stands.
	return buf
}

// parseXIGrabDeviceReply reports whether the grab succeeded (status zero).
func parseXIGrabDeviceReply(f []byte) bool { return f[8] == 0 }

func xiUngrabDeviceRequest(op byte, t Timestamp, device uint16) []byte {
	buf := newRequest(op, xiOpUngrabDevice, 8)
	put32(buf[4:], uint32(t))
	put16(buf[8:], device)
	return buf
}

// =============================================================================
// Generic events
// =============================================================================

// decodeGenericEvent turns a full input-extension generic-event frame into
// a typed event. Event kinds the backend has no use for report false.
func decodeGenericEvent(f []byte) (Event, bool) {
	if len(f) < 32 {
		return nil, false
	}
	evtype := get16(f[8:])
	device := get16(f[10:])
	time := Timestamp(get32(f[12:]))

	switch evtype {
	case geHierarchy:
		return HierarchyEvent{Time: time}, true
	case geDeviceChanged:
		if len(f) < 21 {
			return nil, false
		}
		return DeviceChangedEvent{Time: time, Device: device, Reason: ChangeReason(f[20])}, true
	case geEnter:
		return EnterEvent{Time: time, Master: device}, true
	case geFocusIn:
		return EnterEvent{Time: time, Master: device, Focus: true}, true
	case geLeave:
		return LeaveEvent{Time: time, Master: device}, true
	case geFocusOut:
		return LeaveEvent{Time: time, Master: device, Focus: true}, true
	case geButtonPress, geButtonRelease:
		if len(f) < 60 {
			return nil, false
		}
		return ButtonEvent{
			Time:     time,
			Device:   device,
			Button:   get32(f[16:]),
			Pressed:  evtype == geButtonPress,
			Emulated: get32(f[56:])&flagPointerEmulated != 0,
		}, true
	case geMotion:
		return decodeMotionEvent(f, device, time)
	default:
		return nil, false
	}
}

func decodeMotionEvent(f []byte, device uint16, time Timestamp) (Event, bool) {
	if len(f) < 80 {
		return nil, false
	}
	ev := MotionEvent{
		Time:   time,
		Device: device,
		EventX: Fp1616(int32(get32(f[40:]))),
		EventY: Fp1616(int32(get32(f[44:]))),
	}

	buttonWords := int(get16(f[48:]))
	valuatorWords := int(get16(f[50:]))
	off := 80 + 4*buttonWords
	if off+4*valuatorWords > len(f) {
		return nil, false
	}

	values := 0
	for i := 0; i < valuatorWords; i++ {
		w := get32(f[off+4*i:])
		ev.ValuatorMask = append(ev.ValuatorMask, w)
		values += bits.OnesCount32(w)
	}
	off += 4 * valuatorWords
	if off+8*values > len(f) {
		return nil, false
	}
	for i := 0; i < values; i++ {
		ev.AxisValues = append(ev.AxisValues, parseFp3232(f[off+8*i:]))
	}
	return ev, true
}
