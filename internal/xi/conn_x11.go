package xi

import "fmt"

// XConn implements Conn by speaking the wire protocol directly over its
// own server connection. The input extension delivers everything as X
// generic events, whose variable length the common Go core-protocol
// bindings do not frame, so the requests, replies and events this package
// needs are encoded in wire.go and carried by transport.go.
type XConn struct {
	t *transport

	// opcode is the extension's registered major opcode on this server,
	// stamped on every extension request and event.
	opcode byte
}

// Dial connects to the display (empty for $DISPLAY) and locates the XInput
// extension. A server without the extension is a construction-time
// failure.
func Dial(display string) (*XConn, error) {
	t, err := dialTransport(display)
	if err != nil {
		return nil, err
	}
	reply, err := t.roundTrip(queryExtensionRequest(extensionName))
	if err != nil {
		t.close()
		return nil, fmt.Errorf("xi: query extension: %w", err)
	}
	present, opcode := parseQueryExtensionReply(reply)
	if !present {
		t.close()
		return nil, ErrExtensionMissing
	}
	return &XConn{t: t, opcode: opcode}, nil
}

// Close tears down the connection.
func (x *XConn) Close() { x.t.close() }

func (x *XConn) QueryVersion(major, minor uint16) (uint16, uint16, error) {
	reply, err := x.t.roundTrip(xiQueryVersionRequest(x.opcode, major, minor))
	if err != nil {
		return 0, 0, fmt.Errorf("xi: query version: %w", err)
	}
	gotMajor, gotMinor := parseXIQueryVersionReply(reply)
	return gotMajor, gotMinor, nil
}

func (x *XConn) QueryDevices() ([]DeviceQuery, error) {
	reply, err := x.t.roundTrip(xiQueryDeviceRequest(x.opcode, AllDevices))
	if err != nil {
		return nil, fmt.Errorf("xi: query devices: %w", err)
	}
	return parseXIQueryDeviceReply(reply)
}

func (x *XConn) ListDevices() ([]DeviceListing, error) {
	reply, err := x.t.roundTrip(xiListInputDevicesRequest(x.opcode))
	if err != nil {
		return nil, fmt.Errorf("xi: list devices: %w", err)
	}
	return parseListInputDevicesReply(reply)
}

func (x *XConn) AtomName(a Atom) (string, error) {
	reply, err := x.t.roundTrip(getAtomNameRequest(a))
	if err != nil {
		return "", fmt.Errorf("xi: atom name: %w", err)
	}
	return parseGetAtomNameReply(reply)
}

func (x *XConn) InternAtom(name string) (Atom, error) {
	reply, err := x.t.roundTrip(internAtomRequest(name))
	if err != nil {
		return 0, fmt.Errorf("xi: intern atom: %w", err)
	}
	return parseInternAtomReply(reply), nil
}

func (x *XConn) DeviceProperty(device uint16, property Atom, numItems uint32) ([]uint32, error) {
	reply, err := x.t.roundTrip(xiGetPropertyRequest(x.opcode, device, property, numItems))
	if err != nil {
		return nil, fmt.Errorf("xi: get property: %w", err)
	}
	return parseXIGetPropertyReply(reply), nil
}

func (x *XConn) SelectEvents(window uint32, masks []EventMask) error {
	err := x.t.checkedVoid(xiSelectEventsRequest(x.opcode, window, masks))
	if err != nil {
		return fmt.Errorf("xi: select events: %w", err)
	}
	return nil
}

func (x *XConn) GrabDevice(window uint32, device uint16, t Timestamp) (bool, error) {
	reply, err := x.t.roundTrip(xiGrabDeviceRequest(x.opcode, window, t, device))
	if err != nil {
		return false, fmt.Errorf("xi: grab device %d: %w", device, err)
	}
	return parseXIGrabDeviceReply(reply), nil
}

func (x *XConn) UngrabDevice(device uint16, t Timestamp) error {
	err := x.t.checkedVoid(xiUngrabDeviceRequest(x.opcode, t, device))
	if err != nil {
		return fmt.Errorf("xi: ungrab device %d: %w", device, err)
	}
	return nil
}

func (x *XConn) PollEvent() (Event, error) {
	for {
		frame, ok, err := x.t.pollFrame()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		// Core events and protocol errors from unchecked requests share the
		// queue; only this extension's generic events matter here.
		if frame[0]&0x7f != geEventCode || frame[1] != x.opcode {
			continue
		}
		if ev, known := decodeGenericEvent(frame); known {
			return ev, nil
		}
	}
}
