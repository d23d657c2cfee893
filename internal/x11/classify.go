package x11

import (
	"fmt"

	"slate/internal/xi"
	"slate/pkg/events"
	"slate/pkg/tablet"
)

// Event interest per classified device.
const (
	toolMask = xi.MaskButtonPress | xi.MaskButtonRelease |
		xi.MaskEnter | xi.MaskLeave |
		xi.MaskFocusIn | xi.MaskFocusOut |
		xi.MaskMotion |
		xi.MaskDeviceChanged

	padMask = xi.MaskButtonPress | xi.MaskButtonRelease |
		xi.MaskMotion |
		xi.MaskDeviceChanged

	masterMask = xi.MaskEnter | xi.MaskLeave |
		xi.MaskFocusIn | xi.MaskFocusOut
)

// repopulate rebuilds every registry from scratch. It runs at construction
// and once per tick on the first hierarchy notification; the protocol's own
// documentation recommends a full rescan over interpreting partial
// hierarchy payloads.
func (b *Backend) repopulate() error {
	b.generation++
	b.met.Repopulations.Inc()

	b.tools = b.tools[:0]
	b.pads = b.pads[:0]
	b.tablets = b.tablets[:0]
	b.toolOrder = b.toolOrder[:0]
	b.padOrder = b.padOrder[:0]
	clear(b.toolStates)
	clear(b.padStates)

	// Two overlapping but non-identical description queries: the per-class
	// query carries topology and axis detail, the flat listing carries the
	// device-type atom. Both are needed; join them by raw device id.
	queries, err := b.conn.QueryDevices()
	if err != nil {
		return fmt.Errorf("query devices: %w", err)
	}
	listings, err := b.conn.ListDevices()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	queryByID := make(map[uint16]xi.DeviceQuery, len(queries))
	for _, q := range queries {
		queryByID[q.ID] = q
	}

	var toolListen, padListen []uint16

	for _, listing := range listings {
		query, ok := queryByID[listing.ID]
		if !ok {
			// Present in one snapshot only; the device raced the queries.
			continue
		}
		if listing.Type == 0 {
			// No declared type.
			continue
		}

		// Atom and name heuristics are the only usable classification
		// signal; advertised capabilities lie (see names.go).
		label, err := b.conn.AtomName(listing.Type)
		if err != nil {
			b.met.DevicesSkipped.Inc()
			continue
		}
		c, needName, ok := classifyTypeLabel(label)
		if !ok {
			b.met.DevicesSkipped.Inc()
			continue
		}
		if needName {
			if c, ok = classifyXwaylandName(listing.Name); !ok {
				b.met.DevicesSkipped.Inc()
				continue
			}
		}

		switch c.Role {
		case roleTool:
			if b.classifyTool(listing, query, queries, c.Kind) {
				toolListen = append(toolListen, listing.ID)
			}
		case rolePad:
			if b.classifyPad(listing, query, queries) {
				padListen = append(padListen, listing.ID)
			}
		case roleTablet:
			b.classifyTablet(listing)
		}
	}

	sortIDs(b.toolOrder)
	sortIDs(b.padOrder)
	b.resolveTabletRefs()

	b.met.Tools.Set(int64(len(b.tools)))
	b.met.Pads.Set(int64(len(b.pads)))
	b.met.Tablets.Set(int64(len(b.tablets)))
	b.log.Info("devices classified",
		"generation", b.generation,
		"tools", len(b.tools),
		"pads", len(b.pads),
		"tablets", len(b.tablets),
	)

	// The server rejects an empty interest list.
	if len(toolListen) == 0 && len(padListen) == 0 {
		return nil
	}

	masks := make([]xi.EventMask, 0, len(toolListen)+len(padListen)+1)
	for _, dev := range toolListen {
		masks = append(masks, xi.EventMask{Device: dev, Mask: toolMask})
	}
	for _, dev := range padListen {
		masks = append(masks, xi.EventMask{Device: dev, Mask: padMask})
	}
	// Enter/Leave and focus arrive on master devices; one wildcard
	// registration covers them all.
	masks = append(masks, xi.EventMask{Device: xi.AllMasterDevices, Mask: masterMask})

	if err := b.conn.SelectEvents(b.window, masks); err != nil {
		return fmt.Errorf("event interest: %w", err)
	}
	return nil
}

// classifyTool builds the public record and translation state for a stylus
// or eraser. It reports whether the device was accepted.
func (b *Backend) classifyTool(listing xi.DeviceListing, query xi.DeviceQuery, queries []xi.DeviceQuery, kind tablet.ToolKind) bool {
	// Only attached slave pointers work: masters collapse every device
	// into one stream, keyboards are not tools, and a floating slave
	// gives no usable signal for when to grab it.
	if query.Role != xi.RoleSlavePointer {
		b.met.DevicesSkipped.Inc()
		return false
	}
	id, ok := tablet.NewDeviceID(b.generation, listing.ID)
	if !ok {
		return false
	}

	name := parseToolName(listing.Name)

	assoc := tablet.EmulatedTablet()
	if name.Tablet != "" {
		if raw, found := deviceByName(queries, name.Tablet); found {
			if tid, ok := tablet.NewDeviceID(b.generation, raw); ok {
				assoc = tid
			}
		}
	}

	pub := tablet.Tool{
		ID:     id,
		Name:   name.Human,
		Kind:   kind,
		Serial: name.Serial,
	}
	st := &toolState{
		tablet:         assoc,
		phase:          phaseOut,
		masterPointer:  query.Attachment,
		masterKeyboard: attachmentOf(queries, query.Attachment),
	}

	for _, v := range query.Valuators {
		if v.Mode != xi.ModeAbsolute {
			continue
		}
		// Degenerate ranges happen in practice; the axis carries no
		// information.
		if v.Min == v.Max {
			continue
		}
		axis, ok := b.axisLabel(v.Label)
		if !ok {
			continue
		}
		min, max := v.Min.Float64(), v.Max.Float64()

		switch axis {
		case axisPressure:
			st.pressure = &axisInfo{index: v.Number, transform: pressureTransform(min, max)}
			pub.Axes.Pressure = true
		case axisTiltX:
			st.tiltX = &axisInfo{index: v.Number, transform: tiltTransform()}
			unionTilt(&pub.Axes, min, max)
		case axisTiltY:
			st.tiltY = &axisInfo{index: v.Number, transform: tiltTransform()}
			unionTilt(&pub.Axes, min, max)
		case axisWheel:
			// Listed for styluses under Xwayland; semantics unknown with
			// no hardware observed reporting it. Recorded, not posed.
			st.wheel = &axisInfo{index: v.Number, transform: transform{scale: 1}}
			pub.Axes.Wheel = true
		}
	}

	b.tools = append(b.tools, pub)
	b.toolStates[id] = st
	b.toolOrder = append(b.toolOrder, id)
	return true
}

// classifyPad builds the records for a pad device. It reports whether the
// device was accepted.
func (b *Backend) classifyPad(listing xi.DeviceListing, query xi.DeviceQuery, queries []xi.DeviceQuery) bool {
	// A master attachment is required to know when to grab.
	if query.Role == xi.RoleFloatingSlave {
		b.met.DevicesSkipped.Inc()
		return false
	}
	id, ok := tablet.NewDeviceID(b.generation, listing.ID)
	if !ok {
		return false
	}

	var ring *ringState
	for _, v := range query.Valuators {
		if v.Mode != xi.ModeAbsolute || v.Min == v.Max {
			continue
		}
		// The ring is a wheel-labeled absolute valuator. Xwayland's ring
		// axis is present but unlabeled, and misreports anyway.
		if axis, ok := b.axisLabel(v.Label); ok && axis == axisWheel {
			ring = &ringState{axis: axisInfo{
				index:     v.Number,
				transform: ringTransform(v.Min.Float64(), v.Max.Float64()),
			}}
		}
	}

	buttons := int(query.ButtonCount)
	if buttons == 0 && ring == nil {
		// Nothing observable.
		b.met.DevicesSkipped.Inc()
		return false
	}

	assoc := tablet.EmulatedTablet()
	if candidate := padAssociatedTablet(listing.Name); candidate != "" {
		if raw, found := deviceByName(queries, candidate); found {
			if tid, ok := tablet.NewDeviceID(b.generation, raw); ok {
				assoc = tid
			}
		}
	}

	// Depending on the flavor of pad, the attachment is a master pointer
	// or a master keyboard; its own attachment is the paired other master.
	primary := query.Attachment
	other := attachmentOf(queries, primary)
	st := &padState{
		ring:    ring,
		buttons: buttons,
		tablet:  assoc,
	}
	if query.Role == xi.RoleMasterKeyboard || query.Role == xi.RoleSlaveKeyboard {
		st.masterKeyboard = primary
		st.masterPointer = other
	} else {
		st.masterPointer = primary
		st.masterKeyboard = other
	}

	b.pads = append(b.pads, tablet.Pad{ID: id, Buttons: buttons, Ring: ring != nil})
	b.padStates[id] = st
	b.padOrder = append(b.padOrder, id)
	return true
}

// classifyTablet records a declared tablet device. Tablets carry no events
// of interest, but their identity anchors tool and pad associations, and
// they publish a USB id.
func (b *Backend) classifyTablet(listing xi.DeviceListing) {
	id, ok := tablet.NewDeviceID(b.generation, listing.ID)
	if !ok {
		return
	}

	var usb *tablet.USBID
	if b.atomUSBID != 0 {
		// Best effort; the property is stored as two items at 8, 16 or 32
		// bits depending on the driver.
		if items, err := b.conn.DeviceProperty(listing.ID, b.atomUSBID, 2); err == nil && len(items) >= 2 {
			usb = &tablet.USBID{Vendor: uint16(items[0]), Product: uint16(items[1])}
		}
	}

	b.tablets = append(b.tablets, tablet.Tablet{ID: id, Name: listing.Name, USB: usb})
}

// resolveTabletRefs re-checks every tool and pad association against the
// final tablet set. References to devices that did not survive the pass
// fall back to the emulated sentinel, and the placeholder tablet is
// appended iff something needs it. Pads also announce their attachment
// here: it is static in X11, so once per enumeration suffices.
func (b *Backend) resolveTabletRefs() {
	present := make(map[tablet.DeviceID]bool, len(b.tablets))
	for _, t := range b.tablets {
		present[t.ID] = true
	}

	wantsEmulated := false
	for _, id := range b.toolOrder {
		s := b.toolStates[id]
		if !s.tablet.IsEmulated() && !present[s.tablet] {
			s.tablet = tablet.EmulatedTablet()
		}
		if s.tablet.IsEmulated() {
			wantsEmulated = true
		}
	}
	for _, id := range b.padOrder {
		p := b.padStates[id]
		if !p.tablet.IsEmulated() && !present[p.tablet] {
			p.tablet = tablet.EmulatedTablet()
		}
		if p.tablet.IsEmulated() {
			wantsEmulated = true
		}
		b.emit(events.PadEnter{Pad: id, Tablet: p.tablet})
	}

	if wantsEmulated {
		b.tablets = append(b.tablets, tablet.Tablet{
			ID:   tablet.EmulatedTablet(),
			Name: EmulatedTabletName,
		})
	}
}

// axisLabel resolves a valuator label atom to a semantic axis, best effort.
func (b *Backend) axisLabel(a xi.Atom) (valuatorAxis, bool) {
	if a == 0 {
		return 0, false
	}
	name, err := b.conn.AtomName(a)
	if err != nil {
		return 0, false
	}
	return parseAxisLabel(name)
}

// unionTilt widens the public tilt limits to cover [min, max] degrees.
func unionTilt(axes *tablet.ToolAxes, minDeg, maxDeg float64) {
	min, max := tiltTransform().apply(minDeg), tiltTransform().apply(maxDeg)
	if axes.Tilt == nil {
		axes.Tilt = &tablet.Limits{Min: min, Max: max}
		return
	}
	if min < axes.Tilt.Min {
		axes.Tilt.Min = min
	}
	if max > axes.Tilt.Max {
		axes.Tilt.Max = max
	}
}

// deviceByName finds the raw id of the device with exactly this name.
func deviceByName(queries []xi.DeviceQuery, name string) (uint16, bool) {
	for _, q := range queries {
		if q.Name == name {
			return q.ID, true
		}
	}
	return 0, false
}

// attachmentOf returns the attachment of the device with the given id, or
// zero. Used to walk master pointer -> paired master keyboard.
func attachmentOf(queries []xi.DeviceQuery, id uint16) uint16 {
	for _, q := range queries {
		if q.ID == id {
			return q.Attachment
		}
	}
	return 0
}
