package metrics

import "github.com/prometheus/client_golang/prometheus"

// Booking outcomes recorded by ObserveBooking and ObserveUpdate.
const (
	OutcomeCreated   = "created"
	OutcomeReplayed  = "replayed"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeConflict  = "conflict"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Metrics exposes counters/histograms for the scheduling engine and its caches.
type Metrics struct {
	bookingsTotal     *prometheus.CounterVec
	updatesTotal      *prometheus.CounterVec
	statusChanges     *prometheus.CounterVec
	slotQueryLatency  *prometheus.HistogramVec
	slotsReturned     prometheus.Histogram
	ruleCacheRequests *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "create_total",
			Help:      "Booking create attempts by outcome",
		}, []string{"outcome"}),
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "update_total",
			Help:      "Booking edit and reschedule attempts by outcome",
		}, []string{"outcome"}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "booking",
			Name:      "status_change_total",
			Help:      "Booking status transitions by target status",
		}, []string{"status"}),
		slotQueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "slotbook",
			Subsystem: "slots",
			Name:      "query_latency_seconds",
			Help:      "Latency of availability slot queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		slotsReturned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slotbook",
			Subsystem: "slots",
			Name:      "returned",
			Help:      "Candidate slots returned per query",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ruleCacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "slotbook",
			Subsystem: "rule_cache",
			Name:      "requests_total",
			Help:      "Availability rule cache lookups by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.updatesTotal, m.statusChanges, m.slotQueryLatency, m.slotsReturned, m.ruleCacheRequests)
	return m
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpdate(outcome string) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveSlotQuery(ok bool, seconds float64, slots int) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.slotQueryLatency.WithLabelValues(status).Observe(seconds)
	if ok {
		m.slotsReturned.Observe(float64(slots))
	}
}

func (m *Metrics) ObserveRuleCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ruleCacheRequests.WithLabelValues(result).Inc()
}
