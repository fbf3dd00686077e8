package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "clinic"

// ClinicMetrics exposes counters/histograms for the appointment lifecycle,
// notification fan-out and their side effects. A nil *ClinicMetrics is a
// valid no-op recorder.
type ClinicMetrics struct {
	bookingsTotal        *prometheus.CounterVec
	schedulingLinksTotal *prometheus.CounterVec
	providerEventsTotal  *prometheus.CounterVec
	webhookLatency       *prometheus.HistogramVec
	transitionsTotal     *prometheus.CounterVec
	notificationsTotal   *prometheus.CounterVec
	broadcastsTotal      *prometheus.CounterVec
	dashboardSessions    prometheus.Gauge
	sideEffectFailures   *prometheus.CounterVec
	emailsTotal          *prometheus.CounterVec
	notificationsPurged  prometheus.Counter
}

func NewClinicMetrics(reg prometheus.Registerer) *ClinicMetrics {
	m := &ClinicMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "booking_requests_total",
			Help:      "Public booking requests by outcome",
		}, []string{"outcome"}),
		schedulingLinksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "scheduling_links_total",
			Help:      "Scheduling links handed out, by source (api or fallback)",
		}, []string{"source"}),
		providerEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "provider_events_total",
			Help:      "Scheduling provider webhook events by type and outcome",
		}, []string{"event_type", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhooks",
			Name:      "latency_seconds",
			Help:      "Latency of scheduling provider webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "emitted_total",
			Help:      "Dashboard notifications persisted, by type",
		}, []string{"type"}),
		broadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "broadcasts_total",
			Help:      "Dashboard broadcasts by event and outcome",
		}, []string{"event", "outcome"}),
		dashboardSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "dashboard_sessions",
			Help:      "Dashboard sessions currently in the broadcast room",
		}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed after the primary write succeeded",
		}, []string{"kind"}),
		emailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "email",
			Name:      "sent_total",
			Help:      "Patient emails by template and outcome",
		}, []string{"template", "outcome"}),
		notificationsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "purged_total",
			Help:      "Notifications deleted by the retention sweep",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal,
		m.schedulingLinksTotal,
		m.providerEventsTotal,
		m.webhookLatency,
		m.transitionsTotal,
		m.notificationsTotal,
		m.broadcastsTotal,
		m.dashboardSessions,
		m.sideEffectFailures,
		m.emailsTotal,
		m.notificationsPurged,
	)
	return m
}

func (m *ClinicMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *ClinicMetrics) ObserveSchedulingLink(source string) {
	if m == nil {
		return
	}
	m.schedulingLinksTotal.WithLabelValues(source).Inc()
}

func (m *ClinicMetrics) ObserveProviderEvent(eventType, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.providerEventsTotal.WithLabelValues(eventType, outcome).Inc()
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *ClinicMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *ClinicMetrics) ObserveNotification(notificationType string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(notificationType).Inc()
}

// ObserveBroadcast records a broadcast; delivered is the number of sessions reached.
func (m *ClinicMetrics) ObserveBroadcast(event string, delivered int, err error) {
	if m == nil {
		return
	}
	outcome := "delivered"
	switch {
	case err != nil:
		outcome = "error"
	case delivered == 0:
		outcome = "no_sessions"
	}
	m.broadcastsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *ClinicMetrics) SessionJoined() {
	if m == nil {
		return
	}
	m.dashboardSessions.Inc()
}

func (m *ClinicMetrics) SessionLeft() {
	if m == nil {
		return
	}
	m.dashboardSessions.Dec()
}

func (m *ClinicMetrics) ObserveSideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(kind).Inc()
}

func (m *ClinicMetrics) ObserveEmail(template, outcome string) {
	if m == nil {
		return
	}
	m.emailsTotal.WithLabelValues(template, outcome).Inc()
}

func (m *ClinicMetrics) ObservePurged(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.notificationsPurged.Add(float64(count))
}
