package x11

import (
	"slate/internal/xi"
	"slate/pkg/events"
	"slate/pkg/tablet"
)

// Grab arbitration. The server forwards tablet input as plain pointer
// motion unless the device is exclusively grabbed, so each tool and pad is
// grabbed while its master cursor is over the window and released when the
// cursor leaves. Grabs are asynchronous and non-owner-exclusive: events
// still reach other clients' passive grabs, but not the regular pointer
// stream.

// masterEntered acquires grabs for every ungrabbed device attached to the
// master that just entered the window.
func (b *Backend) masterEntered(master uint16) {
	for _, id := range b.toolOrder {
		s := b.toolStates[id]
		if s.grabbed || !s.attachedTo(master) {
			continue
		}
		s.grabbed = b.grab(id)
	}
	for _, id := range b.padOrder {
		p := b.padStates[id]
		if p.grabbed || !p.attachedTo(master) {
			continue
		}
		p.grabbed = b.grab(id)
	}
}

// masterLeft releases grabs for devices attached to the departing master.
// A grabbed tool still In or Down is forced Out first: with the grab gone
// its events will not arrive, and the phase machine must not be left
// dangling until the timeout fires.
func (b *Backend) masterLeft(master uint16, at xi.Timestamp) {
	for _, id := range b.toolOrder {
		s := b.toolStates[id]
		if !s.grabbed || !s.attachedTo(master) {
			continue
		}
		if s.phase != phaseOut {
			if prev, due := s.replaceFrame(at); due {
				b.emit(events.ToolFrame{Tool: id, Time: events.At(uint32(prev))})
			}
			b.emitTransitions(id, s, s.setPhase(phaseOut))
		}
		s.grabbed = !b.ungrab(id)
	}
	for _, id := range b.padOrder {
		p := b.padStates[id]
		if !p.grabbed || !p.attachedTo(master) {
			continue
		}
		p.grabbed = !b.ungrab(id)
	}
}

// grab acquires an exclusive grab on one device, reporting success.
func (b *Backend) grab(id tablet.DeviceID) bool {
	raw, ok := id.Wire()
	if !ok {
		return false
	}
	ok, err := b.conn.GrabDevice(b.window, raw, xi.CurrentTime)
	if err != nil || !ok {
		b.met.GrabsFailed.Inc()
		b.log.Warn("device grab failed", "device", id, "err", err)
		return false
	}
	b.met.GrabsAcquired.Inc()
	b.log.Debug("device grabbed", "device", id)
	return true
}

// ungrab releases a device grab, reporting success. On failure the device
// stays marked grabbed so a later leave retries.
func (b *Backend) ungrab(id tablet.DeviceID) bool {
	raw, ok := id.Wire()
	if !ok {
		return false
	}
	if err := b.conn.UngrabDevice(raw, xi.CurrentTime); err != nil {
		b.met.GrabsFailed.Inc()
		b.log.Warn("device ungrab failed", "device", id, "err", err)
		return false
	}
	b.met.GrabsReleased.Inc()
	b.log.Debug("device released", "device", id)
	return true
}
