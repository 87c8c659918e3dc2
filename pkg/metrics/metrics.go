package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SolveWise metrics, registered explicitly on the default registry.
var (
	// ModelAttemptsTotal counts generation attempts per model and outcome.
	ModelAttemptsTotal *prometheus.CounterVec

	// GenerationDuration tracks provider latency per model.
	GenerationDuration *prometheus.HistogramVec

	// RetrievalTotal counts knowledge backend lookups by outcome (found, not_found, error, skipped).
	RetrievalTotal *prometheus.CounterVec

	// AnswersTotal counts accepted answers by prompt mode.
	AnswersTotal *prometheus.CounterVec
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	RetrievalFound    = "found"
	RetrievalNotFound = "not_found"
	RetrievalError    = "error"
	RetrievalSkipped  = "skipped"
)

func init() {
	ModelAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solvewise",
			Name:      "model_attempts_total",
			Help:      "Generation attempts per model and outcome",
		},
		[]string{"model", "status"},
	)

	GenerationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "solvewise",
			Name:      "generation_duration_seconds",
			Help:      "Provider generation latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60},
		},
		[]string{"model"},
	)

	RetrievalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solvewise",
			Name:      "retrieval_total",
			Help:      "Knowledge backend lookups by outcome",
		},
		[]string{"outcome"},
	)

	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solvewise",
			Name:      "answers_total",
			Help:      "Accepted answers by prompt mode",
		},
		[]string{"mode"},
	)

	prometheus.MustRegister(
		ModelAttemptsTotal,
		GenerationDuration,
		RetrievalTotal,
		AnswersTotal,
	)
}
