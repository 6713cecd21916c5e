package collector

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Capture outcomes, the label values of schemawatch_captures_total.
const (
	outcomeStored     = "stored"
	outcomeQueued     = "queued"
	outcomeUnchanged  = "unchanged"
	outcomeOversized  = "size_exceeded"
	outcomeParseError = "parse_failure"
	outcomeNoData     = "no_data"
	outcomeCanceled   = "canceled"
	outcomeStoreError = "store_error"
)

type metrics struct {
	captures *prometheus.CounterVec
	retries  prometheus.Counter
}

func newMetrics(reg prometheus.Registerer, c *Collector) *metrics {
	m := &metrics{
		captures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "schemawatch",
				Name:      "captures_total",
				Help:      "Intercepted operations by capture outcome.",
			},
			[]string{"outcome"},
		),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "schemawatch",
			Name:      "store_retries_total",
			Help:      "Store calls retried after a transient failure.",
		}),
	}
	queueDepth := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "schemawatch",
		Name:      "queue_depth",
		Help:      "Captures buffered while the store is not ready.",
	}, func() float64 { return float64(c.queue.Len()) })
	operations := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "schemawatch",
		Name:      "operations",
		Help:      "Operations in the fingerprint cache.",
	}, func() float64 { return float64(c.detector().Len()) })

	reg.MustRegister(m.captures, m.retries, queueDepth, operations)
	return m
}

func (m *metrics) capture(outcome string) {
	m.captures.WithLabelValues(outcome).Inc()
}
