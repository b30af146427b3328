// Package metrics provides Prometheus metrics for readmark.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExtractionsTotal counts save attempts by strategy and outcome.
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "readmark",
			Name:      "extractions_total",
			Help:      "Total number of content extractions",
		},
		[]string{"strategy", "outcome"},
	)

	// ExtractionDuration measures extraction time including fetches.
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "readmark",
			Name:      "extraction_duration_seconds",
			Help:      "Duration of content extractions in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"strategy"},
	)

	// HighlightsRendered counts highlights applied to rendered content.
	HighlightsRendered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "readmark",
			Name:      "highlights_rendered_total",
			Help:      "Total number of highlights applied while rendering",
		},
	)

	// QueueJobsTotal counts background save jobs by outcome.
	QueueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "readmark",
			Name:      "queue_jobs_total",
			Help:      "Total number of background save jobs processed",
		},
		[]string{"outcome"},
	)

	// HTTPRequests counts API requests by route and status code.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "readmark",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)
)

// RecordExtraction records one extraction attempt.
func RecordExtraction(strategy, outcome string, seconds float64) {
	ExtractionsTotal.WithLabelValues(strategy, outcome).Inc()
	ExtractionDuration.WithLabelValues(strategy).Observe(seconds)
}
