package metrics

import (
	"strings"
	"testing"
)

func TestCounter(t *testing.T) {
	r := NewRegistry("test")
	c := r.RegisterCounter("things_total", "Things counted")

	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("Value() = %d, want 5", c.Value())
	}
	if c.Name() != "test_things_total" {
		t.Errorf("Name() = %q", c.Name())
	}
}

func TestGauge(t *testing.T) {
	r := NewRegistry("test")
	g := r.RegisterGauge("level", "Current level")

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("Value() = %d, want 9", g.Value())
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry("test")
	a := r.RegisterCounter("dup_total", "first")
	b := r.RegisterCounter("dup_total", "second")
	if a != b {
		t.Error("same name should return the same counter")
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("slate")
	r.RegisterCounter("events_total", "Total events").Add(3)
	r.RegisterGauge("tools", "Current tools").Set(2)

	var sb strings.Builder
	if err := r.WritePrometheus(&sb); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	out := sb.String()

	for _, want := range []string{
		"# TYPE slate_events_total counter",
		"slate_events_total 3",
		"# TYPE slate_tools gauge",
		"slate_tools 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("exposition missing %q:\n%s", want, out)
		}
	}
}

func TestBackendMetricsRegistered(t *testing.T) {
	r := NewRegistry("slate")
	m := NewBackendMetrics(r)

	m.EventsTotal.Inc()
	m.Tools.Set(4)

	var sb strings.Builder
	if err := r.WritePrometheus(&sb); err != nil {
		t.Fatalf("WritePrometheus failed: %v", err)
	}
	if !strings.Contains(sb.String(), "slate_events_total 1") {
		t.Error("backend counter missing from exposition")
	}
	if !strings.Contains(sb.String(), "slate_tools 4") {
		t.Error("backend gauge missing from exposition")
	}
}
