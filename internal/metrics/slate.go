package metrics

// BackendMetrics holds all backend-specific metrics. It doubles as the
// backend's observability hook: state transitions and arbitration outcomes
// are recorded here instead of printed.
type BackendMetrics struct {
	registry *Registry

	// Counters
	EventsTotal       *Counter
	Repopulations     *Counter
	DevicesSkipped    *Counter
	GrabsAcquired     *Counter
	GrabsReleased     *Counter
	GrabsFailed       *Counter
	SyntheticReleases *Counter
	CapabilityChanges *Counter

	// Gauges
	Tools   *Gauge
	Pads    *Gauge
	Tablets *Gauge
}

// NewBackendMetrics creates and registers all backend metrics.
func NewBackendMetrics(registry *Registry) *BackendMetrics {
	if registry == nil {
		registry = Default()
	}

	return &BackendMetrics{
		registry: registry,

		EventsTotal: registry.RegisterCounter(
			"events_total",
			"Total abstract events emitted",
		),
		Repopulations: registry.RegisterCounter(
			"repopulations_total",
			"Total device re-enumerations",
		),
		DevicesSkipped: registry.RegisterCounter(
			"devices_skipped_total",
			"Devices excluded during classification",
		),
		GrabsAcquired: registry.RegisterCounter(
			"grabs_acquired_total",
			"Exclusive device grabs acquired",
		),
		GrabsReleased: registry.RegisterCounter(
			"grabs_released_total",
			"Exclusive device grabs released",
		),
		GrabsFailed: registry.RegisterCounter(
			"grabs_failed_total",
			"Grab or ungrab attempts the server refused",
		),
		SyntheticReleases: registry.RegisterCounter(
			"synthetic_releases_total",
			"Timeout-synthesized proximity-out and ring-up events",
		),
		CapabilityChanges: registry.RegisterCounter(
			"capability_changes_total",
			"Device capability-change notifications observed",
		),

		Tools: registry.RegisterGauge(
			"tools",
			"Tools in the current registry",
		),
		Pads: registry.RegisterGauge(
			"pads",
			"Pads in the current registry",
		),
		Tablets: registry.RegisterGauge(
			"tablets",
			"Tablets in the current registry",
		),
	}
}
