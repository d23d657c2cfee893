// Package x11 implements the slate backend for X11 servers with the
// XInput2 extension.
//
// XInput2 has no native notion of a tablet, of proximity, or of which
// tablet owns a tool. The backend infers all three: device roles come from
// type atoms and name heuristics, tool-to-tablet ownership from structured
// device names, and proximity from a phase state machine with
// timeout-driven synthesis. Exclusive per-device grabs scoped to one window
// keep the server from double-delivering tool input as pointer motion.
package x11

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"slate/internal/logging"
	"slate/internal/metrics"
	"slate/internal/xi"
	"slate/pkg/events"
	"slate/pkg/tablet"
)

// Extension version floor. Raw per-device hierarchy and motion events need
// 2.4 behavior.
const (
	minMajor uint16 = 2
	minMinor uint16 = 4
)

// usbIDProperty names the device property carrying the [vendor, product]
// pair.
const usbIDProperty = "Device Product ID"

// ErrUnsupportedVersion reports a server whose XInput2 is too old.
var ErrUnsupportedVersion = errors.New("x11: server XInput version below 2.4")

// Options configures optional backend collaborators.
type Options struct {
	// Logger receives structured debug/warn output. Defaults to the
	// package default logger.
	Logger *slog.Logger

	// Metrics receives transition and arbitration counts. Defaults to the
	// process registry.
	Metrics *metrics.BackendMetrics
}

// Backend is the XInput2 implementation of the slate event source.
//
// It is single-threaded and cooperative: all state is mutated by Pump and
// the constructor, and callers must serialize access themselves.
type Backend struct {
	conn   xi.Conn
	window uint32
	log    *slog.Logger
	met    *metrics.BackendMetrics

	// generation tags every DeviceID issued by the current enumeration
	// epoch; it increments on each repopulation so stale ids cannot alias
	// a reused raw device id.
	generation uint16

	// serverTime is the most recent event timestamp seen.
	serverTime xi.Timestamp

	// atomUSBID is the interned usbIDProperty atom, zero when the server
	// does not have it.
	atomUSBID xi.Atom

	toolStates map[tablet.DeviceID]*toolState
	padStates  map[tablet.DeviceID]*padState

	// toolOrder and padOrder fix the iteration order for bulk per-tick
	// operations; the order is arbitrary but stable per epoch.
	toolOrder []tablet.DeviceID
	padOrder  []tablet.DeviceID

	tools   []tablet.Tool
	pads    []tablet.Pad
	tablets []tablet.Tablet

	// batch holds the events emitted by the current tick, exposed through
	// RawEvents until the next Pump clears it.
	batch []events.Event
}

// New constructs a backend over an established connection, scoping grabs to
// the given window. Version negotiation, hierarchy-interest registration
// and the initial enumeration are construction-time fatal; no degraded
// backend is produced.
func New(conn xi.Conn, window uint32, opts *Options) (*Backend, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	met := opts.Metrics
	if met == nil {
		met = metrics.NewBackendMetrics(nil)
	}

	major, minor, err := conn.QueryVersion(minMajor, minMinor)
	if err != nil {
		return nil, fmt.Errorf("x11: version negotiation: %w", err)
	}
	if major < minMajor {
		return nil, fmt.Errorf("%w: server reports %d.%d", ErrUnsupportedVersion, major, minor)
	}
	log.Debug("negotiated XInput version", "major", major, "minor", minor)

	b := &Backend{
		conn:       conn,
		window:     window,
		log:        logging.WithComponent(log, "x11"),
		met:        met,
		toolStates: make(map[tablet.DeviceID]*toolState),
		padStates:  make(map[tablet.DeviceID]*padState),
	}

	// Register hierarchy interest before enumerating, so a device arriving
	// in between is seen one way or the other. The race then runs the
	// opposite direction: an enumeration may overlap with an add/remove
	// notification for the same device, which the per-tick full rescan
	// absorbs.
	err = conn.SelectEvents(window, []xi.EventMask{
		{Device: xi.AllDevices, Mask: xi.MaskHierarchy},
	})
	if err != nil {
		return nil, fmt.Errorf("x11: hierarchy interest: %w", err)
	}

	// Best effort: a server without the property atom simply yields no USB
	// ids.
	if atom, err := conn.InternAtom(usbIDProperty); err == nil {
		b.atomUSBID = atom
	}

	if err := b.repopulate(); err != nil {
		return nil, fmt.Errorf("x11: initial enumeration: %w", err)
	}
	return b, nil
}

// Tools returns the current tool registry. The slice is owned by the
// backend and valid until the next Pump.
func (b *Backend) Tools() []tablet.Tool { return b.tools }

// Pads returns the current pad registry.
func (b *Backend) Pads() []tablet.Pad { return b.pads }

// Tablets returns the current tablet registry, including the emulated
// placeholder when present.
func (b *Backend) Tablets() []tablet.Tablet { return b.tablets }

// RawEvents returns the batch produced by the most recent Pump.
func (b *Backend) RawEvents() []events.Event { return b.batch }

// TimestampGranularity returns the resolution of frame timestamps.
func (b *Backend) TimestampGranularity() time.Duration { return time.Millisecond }

// emit appends one event to the tick's batch.
func (b *Backend) emit(ev events.Event) {
	b.batch = append(b.batch, ev)
	b.met.EventsTotal.Inc()
}

// emitTransitions maps phase-machine transitions onto tool events, in
// order.
func (b *Backend) emitTransitions(id tablet.DeviceID, s *toolState, ts []transition) {
	for _, t := range ts {
		switch t {
		case transitionIn:
			b.emit(events.ToolIn{Tool: id, Tablet: s.tablet})
		case transitionDown:
			b.emit(events.ToolDown{Tool: id})
		case transitionUp:
			b.emit(events.ToolUp{Tool: id})
		case transitionOut:
			b.emit(events.ToolOut{Tool: id})
		}
	}
	if len(ts) > 0 {
		b.log.Debug("tool phase", "tool", id, "phase", s.phase)
	}
}

// ensureIn emits the In a motion or button event implies for an Out tool.
func (b *Backend) ensureIn(id tablet.DeviceID, s *toolState) {
	if s.ensureIn() {
		b.emit(events.ToolIn{Tool: id, Tablet: s.tablet})
	}
}

// toolByDevice resolves a raw event device id against the current epoch.
// Stale or unknown devices miss.
func (b *Backend) toolByDevice(raw uint16) (tablet.DeviceID, *toolState, bool) {
	id, ok := tablet.NewDeviceID(b.generation, raw)
	if !ok {
		return tablet.DeviceID{}, nil, false
	}
	s, ok := b.toolStates[id]
	return id, s, ok
}

// padByDevice resolves a raw event device id to a pad.
func (b *Backend) padByDevice(raw uint16) (tablet.DeviceID, *padState, bool) {
	id, ok := tablet.NewDeviceID(b.generation, raw)
	if !ok {
		return tablet.DeviceID{}, nil, false
	}
	p, ok := b.padStates[id]
	return id, p, ok
}

// sortIDs orders an id slice for stable iteration.
func sortIDs(ids []tablet.DeviceID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
