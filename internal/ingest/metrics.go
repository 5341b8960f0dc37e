package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fyrsmithlabs/askd/internal/document"
)

// Metrics holds ingestion counters.
type Metrics struct {
	documents *prometheus.CounterVec
	batches   *prometheus.CounterVec
}

// NewMetrics creates ingestion metrics registered on reg. A nil reg
// uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askd",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents processed during ingestion by source and result.",
		}, []string{"source", "result"}),
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "askd",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Ingestion batches by source.",
		}, []string{"source"}),
	}
}

// RecordBatch records one batch summary.
func (m *Metrics) RecordBatch(src document.Source, summary Summary) {
	source := string(src)
	m.batches.WithLabelValues(source).Inc()
	m.documents.WithLabelValues(source, "added").Add(float64(summary.Added))
	m.documents.WithLabelValues(source, "updated").Add(float64(summary.Updated))
	m.documents.WithLabelValues(source, "failed").Add(float64(summary.Failed))
	m.documents.WithLabelValues(source, "deleted").Add(float64(summary.Deleted))
}
