package x11

import (
	"fmt"

	"slate/internal/xi"
	"slate/pkg/events"
	"slate/pkg/tablet"
)

// Pump drains every queued protocol event, translates them into the tick's
// batch, and runs end-of-tick synthesis. It must be called regularly; the
// proximity and ring timeouts only fire here.
//
// A connection-level failure is returned and the backend is unusable
// afterwards. Enumeration failures during the tick are logged and the
// previous registries stay in place until the next hierarchy change.
func (b *Backend) Pump() error {
	b.batch = b.batch[:0]

	repopulated := false
	for {
		ev, err := b.conn.PollEvent()
		if err != nil {
			return fmt.Errorf("x11: connection lost: %w", err)
		}
		if ev == nil {
			break
		}

		switch e := ev.(type) {
		case xi.HierarchyEvent:
			b.observeTime(e.Time)
			// Several hierarchy notifications can queue up between ticks;
			// one full rescan covers them all.
			if !repopulated {
				repopulated = true
				if err := b.repopulate(); err != nil {
					b.log.Warn("device enumeration failed", "err", err)
				}
			}
		case xi.DeviceChangedEvent:
			b.observeTime(e.Time)
			if e.Reason == xi.ReasonDeviceChange {
				b.met.CapabilityChanges.Inc()
				b.log.Debug("device capabilities changed", "device", e.Device)
			}
		case xi.EnterEvent:
			b.observeTime(e.Time)
			b.masterEntered(e.Master)
		case xi.LeaveEvent:
			b.observeTime(e.Time)
			b.masterLeft(e.Master, e.Time)
		case xi.ButtonEvent:
			b.observeTime(e.Time)
			b.handleButton(e)
		case xi.MotionEvent:
			b.observeTime(e.Time)
			b.handleMotion(e)
		}
	}

	b.postTick()
	return nil
}

// observeTime advances the server-time estimate. Timestamps are not
// guaranteed monotonic across devices, so keep the maximum.
func (b *Backend) observeTime(t xi.Timestamp) {
	if t > b.serverTime {
		b.serverTime = t
	}
}

func (b *Backend) handleButton(e xi.ButtonEvent) {
	if id, s, ok := b.toolByDevice(e.Device); ok {
		// Emulated presses are scroll emulation noise, not tool input.
		if e.Emulated {
			return
		}
		if prev, due := s.replaceFrame(e.Time); due {
			b.emit(events.ToolFrame{Tool: id, Time: events.At(uint32(prev))})
		}
		b.ensureIn(id, s)
		if e.Button == 1 {
			// The tip drives the phase machine rather than a button event.
			if e.Pressed {
				b.emitTransitions(id, s, s.setPhase(phaseDown))
			} else {
				b.emitTransitions(id, s, s.setPhase(phaseIn))
			}
		} else {
			b.emit(events.ToolButton{Tool: id, Button: uint16(e.Button), Pressed: e.Pressed})
		}
		s.clock.touch(e.Time)
		return
	}

	if id, p, ok := b.padByDevice(e.Device); ok {
		if e.Emulated {
			return
		}
		// Out-of-range details show up on some drivers; the public index
		// is 0-based and must stay within the advertised count.
		if e.Button == 0 || int(e.Button) > p.buttons {
			return
		}
		b.emit(events.PadButton{Pad: id, Button: int(e.Button) - 1, Pressed: e.Pressed})
	}
}

func (b *Backend) handleMotion(e xi.MotionEvent) {
	if id, s, ok := b.toolByDevice(e.Device); ok {
		b.motionAsTool(id, s, e)
		return
	}
	if id, p, ok := b.padByDevice(e.Device); ok {
		b.motionAsRing(id, p, e)
	}
}

// motionAsTool turns a motion report into a pose, closing the previous
// frame when the timestamp moved on.
func (b *Backend) motionAsTool(id tablet.DeviceID, s *toolState, e xi.MotionEvent) {
	if prev, due := s.replaceFrame(e.Time); due {
		b.emit(events.ToolFrame{Tool: id, Time: events.At(uint32(prev))})
	}
	b.ensureIn(id, s)

	pose := events.Pose{X: e.EventX.Float64(), Y: e.EventY.Float64()}
	if s.pressure != nil {
		if raw, ok := fetchValuator(e, s.pressure.index); ok {
			pose.Pressure = events.Some(s.pressure.transform.applyFixed(raw))
		}
	}

	var tiltX, tiltY events.Optional
	if s.tiltX != nil {
		if raw, ok := fetchValuator(e, s.tiltX.index); ok {
			tiltX = events.Some(s.tiltX.transform.applyFixed(raw))
		}
	}
	if s.tiltY != nil {
		if raw, ok := fetchValuator(e, s.tiltY.index); ok {
			tiltY = events.Some(s.tiltY.transform.applyFixed(raw))
		}
	}
	// Tilt is a pair; a lone axis gets a zero partner.
	if tiltX.Valid || tiltY.Valid {
		if !tiltX.Valid {
			tiltX = events.Some(0)
		}
		if !tiltY.Valid {
			tiltY = events.Some(0)
		}
		pose.TiltX, pose.TiltY = tiltX, tiltY
	}

	b.emit(events.ToolPose{Tool: id, Pose: pose})
	s.clock.touch(e.Time)
}

// motionAsRing handles pad motion, which only ever means the ring.
func (b *Backend) motionAsRing(id tablet.DeviceID, p *padState, e xi.MotionEvent) {
	if p.ring == nil {
		return
	}
	raw, ok := fetchValuator(e, p.ring.axis.index)
	if !ok {
		return
	}

	// A stale interaction expires against this event's time, not the tick
	// end: the ring may have been released and re-touched in between.
	if p.ring.clock.expire(e.Time, ringTimeoutMS) {
		b.emit(events.RingUp{Pad: id})
		b.met.SyntheticReleases.Inc()
	}

	// The ring snaps to wire zero when the finger lifts. That report is not
	// a pose and must not keep the interaction alive.
	if raw.IsZero() {
		return
	}

	b.emit(events.RingPose{Pad: id, Angle: p.ring.axis.transform.applyFixed(raw)})
	b.emit(events.RingFrame{Pad: id, Time: events.At(uint32(e.Time))})
	p.ring.clock.touch(e.Time)
}

// fetchValuator pulls the value in the given slot out of a sparse motion
// report. Some servers hand back a single-element value array regardless of
// which slot the mask names; in that case the lone element is the value.
func fetchValuator(e xi.MotionEvent, slot uint16) (xi.Fp3232, bool) {
	word, bit := int(slot/32), slot%32
	if word >= len(e.ValuatorMask) || e.ValuatorMask[word]&(1<<bit) == 0 {
		return xi.Fp3232{}, false
	}
	if len(e.AxisValues) == 1 {
		return e.AxisValues[0], true
	}
	if int(slot) >= len(e.AxisValues) {
		return xi.Fp3232{}, false
	}
	return e.AxisValues[slot], true
}

// postTick flushes pending frames and fires the timeout synthesis.
func (b *Backend) postTick() {
	now := b.serverTime

	for _, id := range b.padOrder {
		p := b.padStates[id]
		if p.ring != nil && p.ring.clock.expire(now, ringTimeoutMS) {
			b.emit(events.RingUp{Pad: id})
			b.met.SyntheticReleases.Inc()
		}
	}

	for _, id := range b.toolOrder {
		s := b.toolStates[id]
		if t, ok := s.takeFrame(); ok {
			b.emit(events.ToolFrame{Tool: id, Time: events.At(uint32(t))})
		}
		if s.clock.expire(now, toolTimeoutMS) {
			b.emitTransitions(id, s, s.setPhase(phaseOut))
			b.met.SyntheticReleases.Inc()
		}
	}
}
