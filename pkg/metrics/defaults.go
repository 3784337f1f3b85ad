package metrics

import "sync"

// Broker metrics, initialized by Init. Callers check for nil so packages
// work unchanged when metrics are disabled.
//
// Label values are lowercase except command, which carries the frame
// command verbatim (CONNECT, SEND, ...).
var (
	// ConnectionsActive is the number of open client connections.
	// Labels: transport (tcp, websocket)
	ConnectionsActive *Gauge

	// ConnectionsTotal counts accepted connections.
	// Labels: transport
	ConnectionsTotal *Counter

	// FramesReceived counts inbound frames.
	// Labels: command
	FramesReceived *Counter

	// FramesSent counts outbound frames.
	// Labels: command
	FramesSent *Counter

	// FrameDuration is the time spent processing one inbound frame.
	// Labels: command
	FrameDuration *Histogram

	// MessagesPublished counts accepted SEND frames.
	MessagesPublished *Counter

	// MessagesDelivered counts MESSAGE frames handed to subscribers.
	MessagesDelivered *Counter

	// ProtocolErrors counts ERROR frames by reason.
	// Labels: reason (malformed, auth, state, missing_header, unknown_command)
	ProtocolErrors *Counter

	// Logins counts login attempts by outcome.
	// Labels: status
	Logins *Counter

	// UptimeSeconds is refreshed on every scrape.
	UptimeSeconds *Gauge

	// RuntimeCollectorInstance refreshes the go_* gauges on every scrape.
	RuntimeCollectorInstance *RuntimeCollector

	defaultRegistry *Registry
	initOnce        sync.Once
)

// Init creates the default registry and broker metrics. It is idempotent.
func Init() *Registry {
	initOnce.Do(func() {
		r := NewRegistry()

		ConnectionsActive = r.NewGauge(
			"stompd_connections_active",
			"Number of open client connections",
			"transport",
		)
		ConnectionsTotal = r.NewCounter(
			"stompd_connections_total",
			"Total number of accepted client connections",
			"transport",
		)
		FramesReceived = r.NewCounter(
			"stompd_frames_received_total",
			"Total number of frames received from clients",
			"command",
		)
		FramesSent = r.NewCounter(
			"stompd_frames_sent_total",
			"Total number of frames sent to clients",
			"command",
		)
		FrameDuration = r.NewHistogram(
			"stompd_frame_duration_seconds",
			"Time spent processing one inbound frame",
			DefaultBuckets,
			"command",
		)
		MessagesPublished = r.NewCounter(
			"stompd_messages_published_total",
			"Total number of SEND frames fanned out",
		)
		MessagesDelivered = r.NewCounter(
			"stompd_messages_delivered_total",
			"Total number of MESSAGE frames delivered to subscribers",
		)
		ProtocolErrors = r.NewCounter(
			"stompd_protocol_errors_total",
			"Total number of ERROR frames sent, by reason",
			"reason",
		)
		Logins = r.NewCounter(
			"stompd_logins_total",
			"Login attempts by outcome",
			"status",
		)
		UptimeSeconds = r.NewGauge(
			"stompd_uptime_seconds",
			"Broker uptime in seconds",
		)

		RuntimeCollectorInstance = NewRuntimeCollector(r, UptimeSeconds)
		r.OnScrape(RuntimeCollectorInstance.Collect)
		defaultRegistry = r
	})
	return defaultRegistry
}

// DefaultRegistry returns the default registry, or nil before Init.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Reset clears the default metrics so Init can run again. Tests only.
func Reset() {
	initOnce = sync.Once{}
	defaultRegistry = nil
	ConnectionsActive = nil
	ConnectionsTotal = nil
	FramesReceived = nil
	FramesSent = nil
	FrameDuration = nil
	MessagesPublished = nil
	MessagesDelivered = nil
	ProtocolErrors = nil
	Logins = nil
	UptimeSeconds = nil
	RuntimeCollectorInstance = nil
}

// IncCounter increments the child of c for labels, ignoring a nil counter.
func IncCounter(c *Counter, labels ...string) {
	if c == nil {
		return
	}
	if vec, err := c.WithLabels(labels...); err == nil {
		_ = vec.Inc()
	}
}

// AddGauge adds delta to the child of g for labels, ignoring a nil gauge.
func AddGauge(g *Gauge, delta float64, labels ...string) {
	if g == nil {
		return
	}
	if vec, err := g.WithLabels(labels...); err == nil {
		vec.Add(delta)
	}
}

// Observe records value in the child of h for labels, ignoring a nil
// histogram.
func Observe(h *Histogram, value float64, labels ...string) {
	if h == nil {
		return
	}
	if vec, err := h.WithLabels(labels...); err == nil {
		vec.Observe(value)
	}
}
