package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcomes of a product request
const (
	OutcomeComplete = "complete"
	OutcomeHalted   = "halted"
	OutcomeError    = "error"
)

// Metrics counts processed products for the /metrics endpoint
type Metrics struct {
	Products *prometheus.CounterVec
	Duration *prometheus.HistogramVec
	InFlight prometheus.Gauge
	Polls    *prometheus.CounterVec
}

// NewMetrics creates the worker collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Products: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "espa",
			Subsystem: "worker",
			Name:      "products_total",
			Help:      "Product requests handled, by product type and outcome.",
		}, []string{"product_type", "outcome"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "espa",
			Subsystem: "worker",
			Name:      "processing_seconds",
			Help:      "Time spent on a product request.",
			Buckets:   prometheus.ExponentialBuckets(30, 2, 10),
		}, []string{"product_type"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "espa",
			Subsystem: "worker",
			Name:      "products_in_flight",
			Help:      "Product requests being processed right now.",
		}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "espa",
			Subsystem: "worker",
			Name:      "polls_total",
			Help:      "Requests for work made to the production API, by product type and result.",
		}, []string{"product_type", "result"}),
	}
	reg.MustRegister(m.Products, m.Duration, m.InFlight, m.Polls)
	return m
}

func (m *Metrics) started() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) finished(productType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Products.WithLabelValues(productType, outcome).Inc()
	m.Duration.WithLabelValues(productType).Observe(elapsed.Seconds())
}

func (m *Metrics) polled(productType, result string) {
	if m != nil {
		m.Polls.WithLabelValues(productType, result).Inc()
	}
}
