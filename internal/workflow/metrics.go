package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Sessions      prometheus.Counter
	Uploads       *prometheus.CounterVec
	SlotErrors    *prometheus.CounterVec
	ApplyDuration prometheus.Histogram
	Exports       *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests and one-shot commands want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Sessions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "comparator",
			Name:      "sessions_created_total",
			Help:      "Comparison sessions created.",
		}),
		Uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comparator",
			Name:      "uploads_total",
			Help:      "Upload batches by outcome.",
		}, []string{"outcome"}),
		SlotErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comparator",
			Name:      "upload_item_errors_total",
			Help:      "Uploaded files that could not be applied, by error kind.",
		}, []string{"kind"}),
		ApplyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "comparator",
			Name:      "upload_apply_seconds",
			Help:      "Time to decode and reconstruct one upload batch.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		Exports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "comparator",
			Name:      "exports_total",
			Help:      "Export requests by outcome.",
		}, []string{"outcome"}),
	}
}
