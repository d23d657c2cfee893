package tablet

import "testing"

func TestNewDeviceIDRejectsWildcard(t *testing.T) {
	// Raw id zero is the protocol's wildcard, never a device.
	if _, ok := NewDeviceID(1, 0); ok {
		t.Error("raw id 0 must be rejected")
	}
	if _, ok := NewDeviceID(1, 7); !ok {
		t.Error("raw id 7 should be accepted")
	}
}

func TestEmulatedSentinel(t *testing.T) {
	sentinel := EmulatedTablet()
	if !sentinel.IsEmulated() {
		t.Error("sentinel should report emulated")
	}
	if _, ok := sentinel.Wire(); ok {
		t.Error("sentinel must not have a wire id")
	}
	if sentinel.String() != "emulated" {
		t.Errorf("String() = %q", sentinel.String())
	}

	id, _ := NewDeviceID(3, 7)
	if id.IsEmulated() {
		t.Error("real id must not report emulated")
	}
	raw, ok := id.Wire()
	if !ok || raw != 7 {
		t.Errorf("Wire() = (%d, %v), want (7, true)", raw, ok)
	}
}

func TestGenerationDefeatsIDReuse(t *testing.T) {
	// The same raw id in two enumeration epochs must not alias.
	old, _ := NewDeviceID(1, 7)
	fresh, _ := NewDeviceID(2, 7)
	if old == fresh {
		t.Error("ids from different generations must differ")
	}
}

func TestDeviceIDOrdering(t *testing.T) {
	a, _ := NewDeviceID(1, 5)
	b, _ := NewDeviceID(1, 9)
	c, _ := NewDeviceID(2, 1)
	if !a.Less(b) || b.Less(a) {
		t.Error("device id should order within a generation")
	}
	if !b.Less(c) {
		t.Error("generation should dominate the order")
	}
	if a.Less(a) {
		t.Error("Less must be irreflexive")
	}
}
