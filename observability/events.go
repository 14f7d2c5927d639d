package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	events      *prometheus.CounterVec
	payments    *prometheus.CounterVec
	paymentSum  *prometheus.CounterVec
	dropped     prometheus.Counter
	subscribers prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking committed royalty events and
// the health of the event stream.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ipchain",
				Subsystem: "royalty",
				Name:      "events_total",
				Help:      "Count of committed royalty events segmented by type.",
			}, []string{"type"}),
			payments: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ipchain",
				Subsystem: "royalty",
				Name:      "payments_total",
				Help:      "Count of royalty and minting fee payments segmented by token.",
			}, []string{"token"}),
			paymentSum: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "ipchain",
				Subsystem: "royalty",
				Name:      "payment_value_total",
				Help:      "Cumulative payment value in base token units segmented by token.",
			}, []string{"token"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "ipchain",
				Subsystem: "stream",
				Name:      "dropped_total",
				Help:      "Events dropped because a subscriber channel was full.",
			}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "ipchain",
				Subsystem: "stream",
				Name:      "subscribers",
				Help:      "Number of live event stream subscribers.",
			}),
		}
		prometheus.MustRegister(
			eventRegistry.events,
			eventRegistry.payments,
			eventRegistry.paymentSum,
			eventRegistry.dropped,
			eventRegistry.subscribers,
		)
	})
	return eventRegistry
}

// RecordEvent increments the event counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.events.WithLabelValues(normalized).Inc()
}

// RecordPayment tracks one settled payment for the supplied token label.
func (m *eventMetrics) RecordPayment(token string, amount float64) {
	if m == nil {
		return
	}
	if token == "" {
		token = "unknown"
	}
	m.payments.WithLabelValues(token).Inc()
	if amount > 0 {
		m.paymentSum.WithLabelValues(token).Add(amount)
	}
}

// RecordStreamDrop counts an event lost to a saturated subscriber.
func (m *eventMetrics) RecordStreamDrop() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// SetStreamSubscribers publishes the current subscriber count.
func (m *eventMetrics) SetStreamSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
