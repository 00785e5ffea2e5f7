package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EnrichmentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_enrichment_outcomes_total",
			Help: "Per-record enrichment outcomes",
		},
		[]string{"outcome"},
	)

	EnrichmentDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentiment_enrichment_call_duration_seconds",
			Help:    "Duration of a single enrichment call",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	DegradedFields = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_enrichment_degraded_fields_total",
			Help: "AI response fields replaced by defaults",
		},
		[]string{"field"},
	)

	RulesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_rules_skipped_total",
			Help: "Rules skipped during evaluation because of invalid configuration",
		},
		[]string{"rule_type"},
	)

	CandidateAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_candidate_alerts_total",
			Help: "Candidate alerts produced by rule evaluation",
		},
		[]string{"rule_type", "level"},
	)

	AlertAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_alert_admissions_total",
			Help: "Alert admission decisions",
		},
		[]string{"result"},
	)

	AlertTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_alert_transitions_total",
			Help: "Alert status transitions",
		},
		[]string{"from", "to", "result"},
	)

	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentiment_pipeline_runs_total",
			Help: "Pipeline runs by status",
		},
		[]string{"status"},
	)

	RecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentiment_records",
			Help: "Records in the store by source type",
		},
		[]string{"source"},
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(EnrichmentOutcomes)
		prometheus.MustRegister(EnrichmentDuration)
		prometheus.MustRegister(DegradedFields)
		prometheus.MustRegister(RulesSkipped)
		prometheus.MustRegister(CandidateAlerts)
		prometheus.MustRegister(AlertAdmissions)
		prometheus.MustRegister(AlertTransitions)
		prometheus.MustRegister(PipelineRuns)
		prometheus.MustRegister(RecordsTotal)
	})
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
