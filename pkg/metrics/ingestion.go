package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Order outcome and invoice result label values.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"

	ResultSuccess   = "success"
	ResultFailure   = "failure"
	ResultDuplicate = "duplicate"
)

// IngestionMetrics records per-batch and per-order ingestion outcomes.
type IngestionMetrics struct {
	batchDuration *prometheus.HistogramVec
	batches       *prometheus.CounterVec
	orders        *prometheus.CounterVec
	invoices      *prometheus.CounterVec
}

// NewIngestionMetrics registers the ingestion metrics on the provided registerer.
func NewIngestionMetrics(reg prometheus.Registerer) *IngestionMetrics {
	if reg == nil {
		return &IngestionMetrics{}
	}
	batchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestion_batch_duration_seconds",
		Help:    "Duration of ingestion batches in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"marketplace"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_batches_total",
		Help: "Ingestion batches by result.",
	}, []string{"marketplace", "result"})
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_orders_total",
		Help: "Ingested orders by outcome.",
	}, []string{"marketplace", "outcome"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestion_invoices_total",
		Help: "Invoice push attempts by result.",
	}, []string{"marketplace", "result"})
	reg.MustRegister(batchDuration, batches, orders, invoices)
	return &IngestionMetrics{
		batchDuration: batchDuration,
		batches:       batches,
		orders:        orders,
		invoices:      invoices,
	}
}

// ObserveBatchDuration records how long a batch took.
func (m *IngestionMetrics) ObserveBatchDuration(marketplace string, duration time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.WithLabelValues(normalizeLabel(marketplace)).Observe(duration.Seconds())
}

// IncBatch counts one batch with the given result.
func (m *IngestionMetrics) IncBatch(marketplace, result string) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(normalizeLabel(marketplace), normalizeLabel(result)).Inc()
}

// AddOrders counts n orders with the given outcome.
func (m *IngestionMetrics) AddOrders(marketplace, outcome string, n int) {
	if m == nil || m.orders == nil || n <= 0 {
		return
	}
	m.orders.WithLabelValues(normalizeLabel(marketplace), normalizeLabel(outcome)).Add(float64(n))
}

// AddInvoices counts n invoice pushes with the given result.
func (m *IngestionMetrics) AddInvoices(marketplace, result string, n int) {
	if m == nil || m.invoices == nil || n <= 0 {
		return
	}
	m.invoices.WithLabelValues(normalizeLabel(marketplace), normalizeLabel(result)).Add(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
