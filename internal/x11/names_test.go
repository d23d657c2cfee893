package x11

import (
	"testing"

	"slate/pkg/tablet"
)

// =============================================================================
// Tests for classifyTypeLabel
// =============================================================================

func TestClassifyTypeLabel(t *testing.T) {
	tests := []struct {
		label    string
		role     role
		kind     tablet.ToolKind
		needName bool
		ok       bool
	}{
		{"STYLUS", roleTool, tablet.Pen, false, true},
		{"ERASER", roleTool, tablet.Eraser, false, true},
		{"PAD", rolePad, 0, false, true},
		{"TOUCHPAD", rolePad, 0, false, true},
		{"TABLET", roleTablet, 0, false, true},
		{"xwayland-pointer", roleNone, 0, true, true},
		{"MOUSE", roleNone, 0, false, false},
		{"TOUCHSCREEN", roleNone, 0, false, false},
		{"KEYBOARD", roleNone, 0, false, false},
		{"", roleNone, 0, false, false},
	}

	for _, tt := range tests {
		c, needName, ok := classifyTypeLabel(tt.label)
		if ok != tt.ok || needName != tt.needName {
			t.Errorf("classifyTypeLabel(%q) = ok %v, needName %v; want %v, %v",
				tt.label, ok, needName, tt.ok, tt.needName)
			continue
		}
		if !ok || needName {
			continue
		}
		if c.Role != tt.role {
			t.Errorf("classifyTypeLabel(%q) role = %v, want %v", tt.label, c.Role, tt.role)
		}
		if c.Role == roleTool && c.Kind != tt.kind {
			t.Errorf("classifyTypeLabel(%q) kind = %v, want %v", tt.label, c.Kind, tt.kind)
		}
	}
}

func TestClassifyXwaylandName(t *testing.T) {
	tests := []struct {
		name string
		role role
		kind tablet.ToolKind
		ok   bool
	}{
		{"xwayland-tablet-pad:14", rolePad, 0, true},
		{"xwayland-tablet stylus:14", roleTool, tablet.Pen, true},
		{"xwayland-tablet eraser:14", roleTool, tablet.Eraser, true},
		{"xwayland-pointer:12", roleNone, 0, false},
		{"xwayland-tablet unknown:3", roleNone, 0, false},
		{"xwayland-tablet stylus", roleNone, 0, false},
		{"Wacom Intuos Pro S Pen", roleNone, 0, false},
	}

	for _, tt := range tests {
		c, ok := classifyXwaylandName(tt.name)
		if ok != tt.ok {
			t.Errorf("classifyXwaylandName(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			continue
		}
		if !ok {
			continue
		}
		if c.Role != tt.role {
			t.Errorf("classifyXwaylandName(%q) role = %v, want %v", tt.name, c.Role, tt.role)
		}
		if c.Role == roleTool && c.Kind != tt.kind {
			t.Errorf("classifyXwaylandName(%q) kind = %v, want %v", tt.name, c.Kind, tt.kind)
		}
	}
}

// =============================================================================
// Tests for parseToolName
// =============================================================================

func TestParseToolNameHexSerial(t *testing.T) {
	got := parseToolName("Intuos Pro S Pen (0x123abc)")
	if got.Human != "Intuos Pro S" {
		t.Errorf("Human = %q, want %q", got.Human, "Intuos Pro S")
	}
	if got.Serial == nil || *got.Serial != 0x123abc {
		t.Errorf("Serial = %v, want 0x123abc", got.Serial)
	}
	if got.Tablet != "Intuos Pro S" {
		t.Errorf("Tablet = %q, want %q", got.Tablet, "Intuos Pro S")
	}
}

func TestParseToolNameZeroSerial(t *testing.T) {
	// Some hardware reports "(0)" despite lacking a genuine serial; that
	// still counts as present.
	got := parseToolName("Some Device (0)")
	if got.Human != "Some Device" {
		t.Errorf("Human = %q, want %q", got.Human, "Some Device")
	}
	if got.Serial == nil || *got.Serial != 0 {
		t.Errorf("Serial = %v, want present zero", got.Serial)
	}
	if got.Tablet != "" {
		t.Errorf("Tablet = %q, want empty", got.Tablet)
	}
}

func TestParseToolNameEraserSuffix(t *testing.T) {
	got := parseToolName("Intuos Pro S Eraser (0xab)")
	if got.Human != "Intuos Pro S" {
		t.Errorf("Human = %q", got.Human)
	}
	if got.Tablet != "Intuos Pro S" {
		t.Errorf("Tablet = %q, want %q", got.Tablet, "Intuos Pro S")
	}
}

func TestParseToolNameNoSerial(t *testing.T) {
	got := parseToolName("Graphire Pen")
	if got.Human != "Graphire" {
		t.Errorf("Human = %q", got.Human)
	}
	if got.Serial != nil {
		t.Errorf("Serial = %v, want nil", *got.Serial)
	}
	if got.Tablet != "Graphire" {
		t.Errorf("Tablet = %q, want %q", got.Tablet, "Graphire")
	}
}

func TestParseToolNameMalformedSerial(t *testing.T) {
	// A parenthesized chunk that is neither "0" nor hex is not a serial;
	// the whole name stands.
	got := parseToolName("Weird Pen (abc)")
	if got.Human != "Weird Pen (abc)" {
		t.Errorf("Human = %q", got.Human)
	}
	if got.Serial != nil {
		t.Error("Serial should be nil for a malformed suffix")
	}
	if got.Tablet != "" {
		t.Errorf("Tablet = %q, want empty", got.Tablet)
	}
}

func TestParseToolNameNoHint(t *testing.T) {
	got := parseToolName("xwayland-tablet stylus:14")
	if got.Tablet != "" {
		t.Errorf("Tablet = %q, want empty", got.Tablet)
	}
	if got.Serial != nil {
		t.Error("Serial should be nil")
	}
}

// =============================================================================
// Tests for padAssociatedTablet and parseAxisLabel
// =============================================================================

func TestPadAssociatedTablet(t *testing.T) {
	// The candidate is the prefix with " Pen" re-attached, matching how the
	// tablet device itself is named.
	if got := padAssociatedTablet("Intuos Pro S Pad"); got != "Intuos Pro S Pen" {
		t.Errorf("got %q, want %q", got, "Intuos Pro S Pen")
	}
	if got := padAssociatedTablet("DECO-01 Pad"); got != "DECO-01 Pen" {
		t.Errorf("got %q, want %q", got, "DECO-01 Pen")
	}
	if got := padAssociatedTablet("xwayland-tablet-pad:14"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestParseAxisLabel(t *testing.T) {
	tests := []struct {
		label string
		axis  valuatorAxis
		ok    bool
	}{
		{"Abs Pressure", axisPressure, true},
		{"Abs Tilt X", axisTiltX, true},
		{"Abs Tilt Y", axisTiltY, true},
		{"Abs Wheel", axisWheel, true},
		{"Abs X", 0, false},
		{"Abs Y", 0, false},
		{"Rel X", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		axis, ok := parseAxisLabel(tt.label)
		if ok != tt.ok {
			t.Errorf("parseAxisLabel(%q) ok = %v, want %v", tt.label, ok, tt.ok)
			continue
		}
		if ok && axis != tt.axis {
			t.Errorf("parseAxisLabel(%q) = %v, want %v", tt.label, axis, tt.axis)
		}
	}
}
