package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
	dropped prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by module.",
			}, []string{"module"}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "portfolium",
				Subsystem: "events",
				Name:      "stream_dropped_total",
				Help:      "Count of events dropped because a stream subscriber fell behind.",
			}),
		}
		prometheus.MustRegister(eventRegistry.emitted, eventRegistry.dropped)
	})
	return eventRegistry
}

// RecordEmitted increments the counter for the module prefix of eventType.
func (m *eventMetrics) RecordEmitted(eventType string) {
	if m == nil {
		return
	}
	module, _, _ := strings.Cut(strings.TrimSpace(eventType), ".")
	if module == "" {
		module = "unknown"
	}
	m.emitted.WithLabelValues(module).Inc()
}

// RecordDropped adds n dropped stream deliveries.
func (m *eventMetrics) RecordDropped(n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.dropped.Add(float64(n))
}
