package x11

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"testing"

	"slate/internal/metrics"
	"slate/internal/xi"
	"slate/pkg/events"
	"slate/pkg/tablet"
)

// =============================================================================
// Fake connection
// =============================================================================

// Atoms used by the fake server.
const (
	atomStylus xi.Atom = iota + 1
	atomEraser
	atomPad
	atomTabletType
	atomMouse
	atomXwayland
	atomUSB

	atomAbsPressure
	atomAbsTiltX
	atomAbsTiltY
	atomAbsWheel
	atomAbsX
)

type fakeConn struct {
	queries  []xi.DeviceQuery
	listings []xi.DeviceListing
	atoms    map[xi.Atom]string
	interned map[string]xi.Atom
	props    map[uint16][]uint32

	queue    []xi.Event
	selects  [][]xi.EventMask
	grabbed  map[uint16]bool
	grabDeny map[uint16]bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		atoms: map[xi.Atom]string{
			atomStylus:      "STYLUS",
			atomEraser:      "ERASER",
			atomPad:         "PAD",
			atomTabletType:  "TABLET",
			atomMouse:       "MOUSE",
			atomXwayland:    "xwayland-pointer",
			atomAbsPressure: "Abs Pressure",
			atomAbsTiltX:    "Abs Tilt X",
			atomAbsTiltY:    "Abs Tilt Y",
			atomAbsWheel:    "Abs Wheel",
			atomAbsX:        "Abs X",
		},
		interned: map[string]xi.Atom{"Device Product ID": atomUSB},
		props:    make(map[uint16][]uint32),
		grabbed:  make(map[uint16]bool),
		grabDeny: make(map[uint16]bool),
	}
}

func (f *fakeConn) QueryVersion(major, minor uint16) (uint16, uint16, error) {
	return major, minor, nil
}

func (f *fakeConn) QueryDevices() ([]xi.DeviceQuery, error)  { return f.queries, nil }
func (f *fakeConn) ListDevices() ([]xi.DeviceListing, error) { return f.listings, nil }
func (f *fakeConn) InternAtom(name string) (xi.Atom, error)  { return f.interned[name], nil }

func (f *fakeConn) AtomName(a xi.Atom) (string, error) {
	name, ok := f.atoms[a]
	if !ok {
		return "", fmt.Errorf("no such atom %d", a)
	}
	return name, nil
}

func (f *fakeConn) DeviceProperty(device uint16, property xi.Atom, numItems uint32) ([]uint32, error) {
	if property != atomUSB {
		return nil, nil
	}
	items := f.props[device]
	if uint32(len(items)) > numItems {
		items = items[:numItems]
	}
	return items, nil
}

func (f *fakeConn) SelectEvents(window uint32, masks []xi.EventMask) error {
	f.selects = append(f.selects, masks)
	return nil
}

func (f *fakeConn) GrabDevice(window uint32, device uint16, t xi.Timestamp) (bool, error) {
	if f.grabDeny[device] {
		return false, nil
	}
	f.grabbed[device] = true
	return true, nil
}

func (f *fakeConn) UngrabDevice(device uint16, t xi.Timestamp) error {
	f.grabbed[device] = false
	return nil
}

func (f *fakeConn) PollEvent() (xi.Event, error) {
	if len(f.queue) == 0 {
		return nil, nil
	}
	ev := f.queue[0]
	f.queue = f.queue[1:]
	return ev, nil
}

func (f *fakeConn) push(evs ...xi.Event) { f.queue = append(f.queue, evs...) }

// =============================================================================
// Test fixtures
// =============================================================================

// Raw device ids of the fake Wacom set.
const (
	devMasterPtr uint16 = 2
	devMasterKbd uint16 = 3
	devStylus    uint16 = 10
	devTablet    uint16 = 11
	devPad       uint16 = 12
	devMouse     uint16 = 13
)

func fp(v int32) xi.Fp3232 { return xi.Fp3232{Integral: v} }

// wacomConn builds a fake server with one tablet, its stylus, its pad, and
// an unrelated mouse.
func wacomConn() *fakeConn {
	f := newFakeConn()
	f.queries = []xi.DeviceQuery{
		{ID: devMasterPtr, Role: xi.RoleMasterPointer, Attachment: devMasterKbd, Name: "Virtual core pointer"},
		{ID: devMasterKbd, Role: xi.RoleMasterKeyboard, Attachment: devMasterPtr, Name: "Virtual core keyboard"},
		{
			ID: devStylus, Role: xi.RoleSlavePointer, Attachment: devMasterPtr,
			Name: "Intuos Pro S Pen (0x123abc)",
			Valuators: []xi.ValuatorClass{
				{Number: 2, Label: atomAbsPressure, Min: fp(0), Max: fp(65535), Mode: xi.ModeAbsolute},
				{Number: 3, Label: atomAbsTiltX, Min: fp(-64), Max: fp(63), Mode: xi.ModeAbsolute},
				{Number: 4, Label: atomAbsTiltY, Min: fp(-64), Max: fp(63), Mode: xi.ModeAbsolute},
			},
		},
		{ID: devTablet, Role: xi.RoleFloatingSlave, Name: "Intuos Pro S Pen"},
		{
			ID: devPad, Role: xi.RoleSlaveKeyboard, Attachment: devMasterKbd,
			Name:        "Intuos Pro S Pad",
			ButtonCount: 9,
			Valuators: []xi.ValuatorClass{
				{Number: 1, Label: atomAbsWheel, Min: fp(0), Max: fp(71), Mode: xi.ModeAbsolute},
			},
		},
		{ID: devMouse, Role: xi.RoleSlavePointer, Attachment: devMasterPtr, Name: "Logitech Mouse"},
	}
	f.listings = []xi.DeviceListing{
		{ID: devMasterPtr, Type: 0, Name: "Virtual core pointer"},
		{ID: devMasterKbd, Type: 0, Name: "Virtual core keyboard"},
		{ID: devStylus, Type: atomStylus, Name: "Intuos Pro S Pen (0x123abc)"},
		{ID: devTablet, Type: atomTabletType, Name: "Intuos Pro S Pen"},
		{ID: devPad, Type: atomPad, Name: "Intuos Pro S Pad"},
		{ID: devMouse, Type: atomMouse, Name: "Logitech Mouse"},
	}
	f.props[devTablet] = []uint32{0x056a, 0x0314}
	return f
}

func newTestBackend(t *testing.T, conn *fakeConn) (*Backend, *metrics.BackendMetrics) {
	t.Helper()
	met := metrics.NewBackendMetrics(metrics.NewRegistry("test"))
	b, err := New(conn, 99, &Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: met,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b, met
}

func pump(t *testing.T, b *Backend) []events.Event {
	t.Helper()
	if err := b.Pump(); err != nil {
		t.Fatalf("Pump failed: %v", err)
	}
	return b.RawEvents()
}

// kinds reduces a batch to type names for order assertions.
func kinds(batch []events.Event) []string {
	out := make([]string, len(batch))
	for i, ev := range batch {
		out[i] = fmt.Sprintf("%T", ev)
	}
	return out
}

func assertKinds(t *testing.T, batch []events.Event, want ...string) {
	t.Helper()
	got := kinds(batch)
	if len(got) != len(want) {
		t.Fatalf("batch = %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("batch = %v, want %v", got, want)
		}
	}
}

// =============================================================================
// Tests for enumeration and classification
// =============================================================================

func TestNewClassifiesWacomSet(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	tools := b.Tools()
	if len(tools) != 1 {
		t.Fatalf("got %d tools, want 1", len(tools))
	}
	tool := tools[0]
	if tool.Name != "Intuos Pro S" {
		t.Errorf("tool name = %q", tool.Name)
	}
	if tool.Kind != tablet.Pen {
		t.Errorf("tool kind = %v, want pen", tool.Kind)
	}
	if tool.Serial == nil || *tool.Serial != 0x123abc {
		t.Errorf("tool serial = %v, want 0x123abc", tool.Serial)
	}
	if !tool.Axes.Pressure {
		t.Error("tool should report pressure")
	}
	if tool.Axes.Tilt == nil {
		t.Fatal("tool should report tilt limits")
	}
	wantMin, wantMax := -64*math.Pi/180, 63*math.Pi/180
	if !almostEqual(tool.Axes.Tilt.Min, wantMin) || !almostEqual(tool.Axes.Tilt.Max, wantMax) {
		t.Errorf("tilt limits = [%v, %v], want [%v, %v]",
			tool.Axes.Tilt.Min, tool.Axes.Tilt.Max, wantMin, wantMax)
	}

	pads := b.Pads()
	if len(pads) != 1 {
		t.Fatalf("got %d pads, want 1", len(pads))
	}
	if pads[0].Buttons != 9 || !pads[0].Ring {
		t.Errorf("pad = %+v, want 9 buttons with ring", pads[0])
	}

	// The stylus name strips to "Intuos Pro S", which matches no device, so
	// the tool falls back to the placeholder and both tablets are present.
	tablets := b.Tablets()
	if len(tablets) != 2 {
		t.Fatalf("got %d tablets, want real + placeholder", len(tablets))
	}
	real := tablets[0]
	if real.ID.IsEmulated() || !tablets[1].ID.IsEmulated() {
		t.Fatalf("tablets = %+v, want the placeholder appended last", tablets)
	}
	if real.Name != "Intuos Pro S Pen" {
		t.Errorf("tablet name = %q", real.Name)
	}
	if real.USB == nil || real.USB.Vendor != 0x056a || real.USB.Product != 0x0314 {
		t.Errorf("tablet USB = %+v", real.USB)
	}

	// The pad announced its attachment to the real tablet: its name strips
	// and re-suffixes to "Intuos Pro S Pen", the tablet device's exact name.
	assertKinds(t, b.RawEvents(), "events.PadEnter")
	enter := b.RawEvents()[0].(events.PadEnter)
	if enter.Pad != pads[0].ID || enter.Tablet != real.ID {
		t.Errorf("PadEnter = %+v, want tablet %v", enter, real.ID)
	}

	// Hierarchy interest plus the bulk per-device registration.
	if len(conn.selects) != 2 {
		t.Fatalf("got %d SelectEvents calls, want 2", len(conn.selects))
	}
	bulk := conn.selects[1]
	if len(bulk) != 3 {
		t.Fatalf("bulk registration = %v, want tool, pad and wildcard", bulk)
	}
	if bulk[0].Device != devStylus || bulk[0].Mask != toolMask {
		t.Errorf("tool mask entry = %+v", bulk[0])
	}
	if bulk[1].Device != devPad || bulk[1].Mask != padMask {
		t.Errorf("pad mask entry = %+v", bulk[1])
	}
	if bulk[2].Device != xi.AllMasterDevices || bulk[2].Mask != masterMask {
		t.Errorf("wildcard mask entry = %+v", bulk[2])
	}
}

func TestMouseIsNotATool(t *testing.T) {
	b, met := newTestBackend(t, wacomConn())
	for _, tool := range b.Tools() {
		if tool.Name == "Logitech Mouse" {
			t.Fatal("mouse classified as a tool")
		}
	}
	if met.DevicesSkipped.Value() == 0 {
		t.Error("mouse should count as skipped")
	}
}

func TestUnmatchedToolGetsEmulatedTablet(t *testing.T) {
	f := newFakeConn()
	f.queries = []xi.DeviceQuery{
		{ID: devMasterPtr, Role: xi.RoleMasterPointer, Attachment: devMasterKbd},
		{ID: devMasterKbd, Role: xi.RoleMasterKeyboard, Attachment: devMasterPtr},
		{ID: devStylus, Role: xi.RoleSlavePointer, Attachment: devMasterPtr, Name: "xwayland-tablet stylus:14"},
	}
	f.listings = []xi.DeviceListing{
		{ID: devStylus, Type: atomXwayland, Name: "xwayland-tablet stylus:14"},
	}
	b, _ := newTestBackend(t, f)

	if len(b.Tools()) != 1 {
		t.Fatalf("got %d tools, want 1", len(b.Tools()))
	}
	tablets := b.Tablets()
	if len(tablets) != 1 {
		t.Fatalf("got %d tablets, want 1", len(tablets))
	}
	if !tablets[0].ID.IsEmulated() {
		t.Error("placeholder tablet should carry the sentinel id")
	}
	if tablets[0].Name != EmulatedTabletName {
		t.Errorf("placeholder name = %q", tablets[0].Name)
	}

	// The sentinel has no wire id.
	if _, ok := tablets[0].ID.Wire(); ok {
		t.Error("sentinel must not expose a wire id")
	}
}

func TestPadAssociatesTabletNamedPen(t *testing.T) {
	// DECO-01-style naming: the tablet device itself is "DECO-01 Pen", the
	// pad is "DECO-01 Pad". The pad must resolve to the real tablet, not the
	// placeholder.
	f := newFakeConn()
	f.queries = []xi.DeviceQuery{
		{ID: devMasterPtr, Role: xi.RoleMasterPointer, Attachment: devMasterKbd, Name: "Virtual core pointer"},
		{ID: devMasterKbd, Role: xi.RoleMasterKeyboard, Attachment: devMasterPtr, Name: "Virtual core keyboard"},
		{ID: devStylus, Role: xi.RoleSlavePointer, Attachment: devMasterPtr, Name: "DECO-01 Pen (0)"},
		{ID: devTablet, Role: xi.RoleFloatingSlave, Name: "DECO-01 Pen"},
		{ID: devPad, Role: xi.RoleSlaveKeyboard, Attachment: devMasterKbd, Name: "DECO-01 Pad", ButtonCount: 8},
	}
	f.listings = []xi.DeviceListing{
		{ID: devStylus, Type: atomStylus, Name: "DECO-01 Pen (0)"},
		{ID: devTablet, Type: atomTabletType, Name: "DECO-01 Pen"},
		{ID: devPad, Type: atomPad, Name: "DECO-01 Pad"},
	}
	b, _ := newTestBackend(t, f)

	tablets := b.Tablets()
	if len(tablets) != 2 || tablets[0].ID.IsEmulated() {
		t.Fatalf("tablets = %+v, want the real device first", tablets)
	}
	if tablets[0].Name != "DECO-01 Pen" {
		t.Errorf("tablet name = %q", tablets[0].Name)
	}

	assertKinds(t, b.RawEvents(), "events.PadEnter")
	enter := b.RawEvents()[0].(events.PadEnter)
	if enter.Tablet != tablets[0].ID {
		t.Errorf("PadEnter tablet = %v, want %v", enter.Tablet, tablets[0].ID)
	}

	// This hardware reports the "(0)" pseudo-serial.
	tool := b.Tools()[0]
	if tool.Serial == nil || *tool.Serial != 0 {
		t.Errorf("tool serial = %v, want present zero", tool.Serial)
	}
}

func TestToolAssociatesTabletByStrippedName(t *testing.T) {
	// The other naming family: the tablet device carries the bare prefix, so
	// the stylus's stripped name resolves it directly.
	f := newFakeConn()
	f.queries = []xi.DeviceQuery{
		{ID: devMasterPtr, Role: xi.RoleMasterPointer, Attachment: devMasterKbd, Name: "Virtual core pointer"},
		{ID: devMasterKbd, Role: xi.RoleMasterKeyboard, Attachment: devMasterPtr, Name: "Virtual core keyboard"},
		{ID: devStylus, Role: xi.RoleSlavePointer, Attachment: devMasterPtr, Name: "Graphire4 Pen (0x2a)"},
		{ID: devTablet, Role: xi.RoleFloatingSlave, Name: "Graphire4"},
	}
	f.listings = []xi.DeviceListing{
		{ID: devStylus, Type: atomStylus, Name: "Graphire4 Pen (0x2a)"},
		{ID: devTablet, Type: atomTabletType, Name: "Graphire4"},
	}
	b, _ := newTestBackend(t, f)

	tablets := b.Tablets()
	if len(tablets) != 1 || tablets[0].ID.IsEmulated() {
		t.Fatalf("tablets = %+v, want only the real device", tablets)
	}

	f.push(xi.MotionEvent{
		Time:   1000,
		Device: devStylus,
	})
	batch := pump(t, b)
	in := batch[0].(events.ToolIn)
	if in.Tablet != tablets[0].ID {
		t.Errorf("ToolIn tablet = %v, want %v", in.Tablet, tablets[0].ID)
	}
}

func TestNoInterestWithoutTabletDevices(t *testing.T) {
	f := newFakeConn()
	f.queries = []xi.DeviceQuery{
		{ID: devMouse, Role: xi.RoleSlavePointer, Attachment: devMasterPtr, Name: "Logitech Mouse"},
	}
	f.listings = []xi.DeviceListing{
		{ID: devMouse, Type: atomMouse, Name: "Logitech Mouse"},
	}
	b, _ := newTestBackend(t, f)

	if len(b.Tools())+len(b.Pads())+len(b.Tablets()) != 0 {
		t.Error("nothing should be classified")
	}
	// Only the hierarchy registration; the bulk request is skipped because
	// the server rejects an empty list.
	if len(f.selects) != 1 {
		t.Errorf("got %d SelectEvents calls, want 1", len(f.selects))
	}
}

// =============================================================================
// Tests for grab arbitration
// =============================================================================

func TestGrabOnEnterReleaseOnLeave(t *testing.T) {
	conn := wacomConn()
	b, met := newTestBackend(t, conn)

	conn.push(xi.EnterEvent{Time: 900, Master: devMasterPtr})
	pump(t, b)
	if !conn.grabbed[devStylus] {
		t.Error("stylus should be grabbed after enter")
	}
	// The pad hangs off the master keyboard, but the paired pointer's enter
	// covers it.
	if !conn.grabbed[devPad] {
		t.Error("pad should be grabbed after enter")
	}
	if met.GrabsAcquired.Value() != 2 {
		t.Errorf("grabs acquired = %d, want 2", met.GrabsAcquired.Value())
	}

	conn.push(xi.LeaveEvent{Time: 950, Master: devMasterPtr})
	pump(t, b)
	if conn.grabbed[devStylus] || conn.grabbed[devPad] {
		t.Error("devices should be released after leave")
	}
	if met.GrabsReleased.Value() != 2 {
		t.Errorf("grabs released = %d, want 2", met.GrabsReleased.Value())
	}
}

func TestGrabDenied(t *testing.T) {
	conn := wacomConn()
	conn.grabDeny[devStylus] = true
	b, met := newTestBackend(t, conn)

	conn.push(xi.EnterEvent{Time: 900, Master: devMasterPtr})
	pump(t, b)
	if conn.grabbed[devStylus] {
		t.Error("denied grab must not be recorded")
	}
	if met.GrabsFailed.Value() != 1 {
		t.Errorf("grabs failed = %d, want 1", met.GrabsFailed.Value())
	}

	// A later enter retries.
	conn.grabDeny[devStylus] = false
	conn.push(xi.LeaveEvent{Time: 950, Master: devMasterPtr})
	pump(t, b)
	conn.push(xi.EnterEvent{Time: 1000, Master: devMasterPtr})
	pump(t, b)
	if !conn.grabbed[devStylus] {
		t.Error("retry after a denied grab should succeed")
	}
}

// =============================================================================
// Tests for the pump: tool streams
// =============================================================================

// motion builds a slot-indexed motion report for the stylus.
func stylusMotion(time xi.Timestamp, x, y float64, pressure xi.Fp3232) xi.MotionEvent {
	return xi.MotionEvent{
		Time:         time,
		Device:       devStylus,
		EventX:       xi.Fp1616(x * 65536),
		EventY:       xi.Fp1616(y * 65536),
		ValuatorMask: []uint32{1 << 2},
		AxisValues:   []xi.Fp3232{{}, {}, pressure},
	}
}

func TestPenStrokeSequence(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(
		xi.EnterEvent{Time: 900, Master: devMasterPtr},
		stylusMotion(1000, 10, 20, fp(32768)),
		xi.ButtonEvent{Time: 1000, Device: devStylus, Button: 1, Pressed: true},
		stylusMotion(1010, 11, 21, fp(40000)),
	)
	batch := pump(t, b)

	assertKinds(t, batch,
		"events.ToolIn",
		"events.ToolPose",
		"events.ToolDown",
		"events.ToolFrame", // closes the 1000ms burst when 1010 arrives
		"events.ToolPose",
		"events.ToolFrame", // tick-end flush of the 1010ms burst
	)

	in := batch[0].(events.ToolIn)
	if in.Tool != b.Tools()[0].ID {
		t.Errorf("ToolIn tool = %v", in.Tool)
	}
	if !in.Tablet.IsEmulated() {
		t.Errorf("ToolIn tablet = %v, want the placeholder", in.Tablet)
	}

	pose := batch[1].(events.ToolPose).Pose
	if !almostEqual(pose.X, 10) || !almostEqual(pose.Y, 20) {
		t.Errorf("pose position = (%v, %v)", pose.X, pose.Y)
	}
	if !pose.Pressure.Valid || !almostEqual(pose.Pressure.Value, 32768.0/65535.0) {
		t.Errorf("pose pressure = %+v", pose.Pressure)
	}
	if pose.TiltX.Valid || pose.TiltY.Valid {
		t.Error("tilt must be absent when the report carries none")
	}

	f1 := batch[3].(events.ToolFrame)
	if !f1.Time.Valid || f1.Time.Duration.Milliseconds() != 1000 {
		t.Errorf("first frame time = %+v", f1.Time)
	}
	f2 := batch[5].(events.ToolFrame)
	if !f2.Time.Valid || f2.Time.Duration.Milliseconds() != 1010 {
		t.Errorf("second frame time = %+v", f2.Time)
	}
}

func TestSameTimestampEventsShareOneFrame(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(
		stylusMotion(1000, 1, 1, fp(100)),
		stylusMotion(1000, 2, 2, fp(200)),
	)
	batch := pump(t, b)
	assertKinds(t, batch,
		"events.ToolIn",
		"events.ToolPose",
		"events.ToolPose",
		"events.ToolFrame",
	)
}

func TestNonTipButton(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(xi.ButtonEvent{Time: 1000, Device: devStylus, Button: 2, Pressed: true})
	batch := pump(t, b)
	assertKinds(t, batch, "events.ToolIn", "events.ToolButton", "events.ToolFrame")
	btn := batch[1].(events.ToolButton)
	if btn.Button != 2 || !btn.Pressed {
		t.Errorf("ToolButton = %+v", btn)
	}
}

func TestEmulatedButtonIgnored(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(xi.ButtonEvent{Time: 1000, Device: devStylus, Button: 4, Pressed: true, Emulated: true})
	batch := pump(t, b)
	if len(batch) != 0 {
		t.Errorf("emulated press produced %v", kinds(batch))
	}
}

func TestValuatorSingleValueQuirk(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	// Mask names slot 2 but the value array has a single element; it is
	// the value regardless of slot.
	conn.push(xi.MotionEvent{
		Time:         1000,
		Device:       devStylus,
		ValuatorMask: []uint32{1 << 2},
		AxisValues:   []xi.Fp3232{fp(65535)},
	})
	batch := pump(t, b)
	pose := batch[1].(events.ToolPose).Pose
	if !pose.Pressure.Valid || !almostEqual(pose.Pressure.Value, 1) {
		t.Errorf("pressure = %+v, want full scale", pose.Pressure)
	}
}

func TestLoneTiltAxisGetsZeroPartner(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(xi.MotionEvent{
		Time:         1000,
		Device:       devStylus,
		ValuatorMask: []uint32{1 << 3},
		AxisValues:   []xi.Fp3232{{}, {}, {}, fp(45)},
	})
	batch := pump(t, b)
	pose := batch[1].(events.ToolPose).Pose
	if !pose.TiltX.Valid || !almostEqual(pose.TiltX.Value, 45*math.Pi/180) {
		t.Errorf("tilt x = %+v", pose.TiltX)
	}
	if !pose.TiltY.Valid || !almostEqual(pose.TiltY.Value, 0) {
		t.Errorf("tilt y = %+v, want supplied zero", pose.TiltY)
	}
}

// =============================================================================
// Tests for timeout synthesis
// =============================================================================

func TestToolProximityTimeout(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(
		stylusMotion(1000, 1, 1, fp(100)),
		xi.ButtonEvent{Time: 1000, Device: devStylus, Button: 1, Pressed: true},
	)
	pump(t, b)

	// Advance server time without touching the tool; a capability change
	// notification carries a timestamp too.
	conn.push(xi.DeviceChangedEvent{Time: 1500, Device: devMouse, Reason: xi.ReasonSlaveSwitch})
	batch := pump(t, b)

	// A Down tool leaving proximity passes through Up first.
	assertKinds(t, batch, "events.ToolUp", "events.ToolOut")
}

func TestToolTimeoutNotYetDue(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(stylusMotion(1000, 1, 1, fp(100)))
	pump(t, b)

	conn.push(xi.DeviceChangedEvent{Time: 1499, Device: devMouse, Reason: xi.ReasonSlaveSwitch})
	batch := pump(t, b)
	if len(batch) != 0 {
		t.Errorf("tool timed out early: %v", kinds(batch))
	}
}

func TestLeaveForcesProximityOut(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(
		xi.EnterEvent{Time: 900, Master: devMasterPtr},
		stylusMotion(1000, 1, 1, fp(100)),
		xi.ButtonEvent{Time: 1000, Device: devStylus, Button: 1, Pressed: true},
	)
	pump(t, b)

	// Without the grab the tool's events stop arriving; the phase machine
	// must not dangle until the timeout.
	conn.push(xi.LeaveEvent{Time: 1100, Master: devMasterPtr})
	batch := pump(t, b)
	assertKinds(t, batch,
		"events.ToolUp",
		"events.ToolOut",
		"events.ToolFrame", // closes the forced transitions at leave time
	)
	if conn.grabbed[devStylus] {
		t.Error("stylus should be released")
	}
}

// =============================================================================
// Tests for the pump: pad streams
// =============================================================================

func ringMotion(time xi.Timestamp, v xi.Fp3232) xi.MotionEvent {
	return xi.MotionEvent{
		Time:         time,
		Device:       devPad,
		ValuatorMask: []uint32{1 << 1},
		AxisValues:   []xi.Fp3232{{}, v},
	}
}

func TestRingPoseAndTimeout(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(ringMotion(1000, fp(18)))
	batch := pump(t, b)
	assertKinds(t, batch, "events.RingPose", "events.RingFrame")
	ring := batch[0].(events.RingPose)
	if !almostEqual(ring.Angle, 18*2*math.Pi/71) {
		t.Errorf("ring angle = %v", ring.Angle)
	}

	conn.push(xi.DeviceChangedEvent{Time: 1200, Device: devMouse, Reason: xi.ReasonSlaveSwitch})
	batch = pump(t, b)
	assertKinds(t, batch, "events.RingUp")
}

func TestRingZeroSnapBackDropped(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(ringMotion(1000, fp(18)))
	pump(t, b)

	// The lift report snaps the valuator to wire zero; it is neither a pose
	// nor an interaction.
	conn.push(ringMotion(1050, fp(0)))
	batch := pump(t, b)
	if len(batch) != 0 {
		t.Errorf("zero snap-back produced %v", kinds(batch))
	}

	// The clock was not touched by the zero, so the release still fires
	// 200ms after the genuine pose.
	conn.push(xi.DeviceChangedEvent{Time: 1200, Device: devMouse, Reason: xi.ReasonSlaveSwitch})
	batch = pump(t, b)
	assertKinds(t, batch, "events.RingUp")
}

func TestPadButtonRebased(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(xi.ButtonEvent{Time: 1000, Device: devPad, Button: 3, Pressed: true})
	batch := pump(t, b)
	assertKinds(t, batch, "events.PadButton")
	btn := batch[0].(events.PadButton)
	if btn.Button != 2 || !btn.Pressed {
		t.Errorf("PadButton = %+v, want 0-based index 2", btn)
	}
}

func TestPadButtonOutOfRangeDropped(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	conn.push(
		xi.ButtonEvent{Time: 1000, Device: devPad, Button: 0, Pressed: true},
		xi.ButtonEvent{Time: 1000, Device: devPad, Button: 10, Pressed: true},
	)
	batch := pump(t, b)
	if len(batch) != 0 {
		t.Errorf("out-of-range pad buttons produced %v", kinds(batch))
	}
}

// =============================================================================
// Tests for re-enumeration
// =============================================================================

func TestHierarchyChangeIssuesNewGeneration(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)
	oldID := b.Tools()[0].ID

	conn.push(xi.HierarchyEvent{Time: 2000})
	batch := pump(t, b)

	newID := b.Tools()[0].ID
	if newID == oldID {
		t.Error("re-enumeration must issue fresh ids")
	}
	// Pads re-announce their attachment after every enumeration.
	assertKinds(t, batch, "events.PadEnter")
}

func TestStaleDeviceEventsMiss(t *testing.T) {
	conn := wacomConn()
	b, _ := newTestBackend(t, conn)

	// The stylus disappears; a queued event for its old raw id must not
	// resolve against the new registry.
	conn.queries = conn.queries[:2]
	conn.listings = nil
	conn.push(
		xi.HierarchyEvent{Time: 2000},
		xi.ButtonEvent{Time: 2001, Device: devStylus, Button: 1, Pressed: true},
	)
	batch := pump(t, b)
	for _, k := range kinds(batch) {
		if k != "events.PadEnter" {
			t.Errorf("stale device produced %v", k)
		}
	}
}

func TestOneRescanPerTick(t *testing.T) {
	conn := wacomConn()
	b, met := newTestBackend(t, conn)
	before := met.Repopulations.Value()

	conn.push(
		xi.HierarchyEvent{Time: 2000},
		xi.HierarchyEvent{Time: 2001},
		xi.HierarchyEvent{Time: 2002},
	)
	pump(t, b)
	if got := met.Repopulations.Value() - before; got != 1 {
		t.Errorf("got %d rescans, want 1", got)
	}
}
