// Package metrics exposes Prometheus instrumentation for the bot.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// BotMetrics exposes counters/histograms for update handling, bookings and
// Sheets calls. All methods are nil-safe so wiring stays optional in tests.
type BotMetrics struct {
	updatesTotal  *prometheus.CounterVec
	bookingsTotal *prometheus.CounterVec
	sheetsLatency *prometheus.HistogramVec
	sheetsErrors  *prometheus.CounterVec
}

// NewBotMetrics registers the bot metric set on reg (default registerer when
// nil).
func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	m := &BotMetrics{
		updatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "periopbot",
			Subsystem: "dialog",
			Name:      "updates_total",
			Help:      "Inbound Telegram updates by kind and handling status",
		}, []string{"kind", "status"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "periopbot",
			Subsystem: "dialog",
			Name:      "bookings_total",
			Help:      "Slot booking attempts by outcome",
		}, []string{"outcome"}),
		sheetsLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "periopbot",
			Subsystem: "sheets",
			Name:      "call_latency_seconds",
			Help:      "Latency of Google Sheets calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		sheetsErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "periopbot",
			Subsystem: "sheets",
			Name:      "call_errors_total",
			Help:      "Failed Google Sheets calls",
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.updatesTotal, m.bookingsTotal, m.sheetsLatency, m.sheetsErrors)
	return m
}

// ObserveUpdate records one handled inbound update.
func (m *BotMetrics) ObserveUpdate(kind, status string) {
	if m == nil {
		return
	}
	m.updatesTotal.WithLabelValues(kind, status).Inc()
}

// ObserveBooking records one booking attempt outcome
// (booked, conflict, no_slots, cancelled, error).
func (m *BotMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSheetsCall records latency and failure of one Sheets call.
func (m *BotMetrics) ObserveSheetsCall(operation string, seconds float64, err error) {
	if m == nil {
		return
	}
	m.sheetsLatency.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		m.sheetsErrors.WithLabelValues(operation).Inc()
	}
}
