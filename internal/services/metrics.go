package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Metrics groups the pipeline's Prometheus collectors.
type Metrics struct {
	CacheLookups      *prometheus.CounterVec
	RetrievalFailures *prometheus.CounterVec
	Assessments       *prometheus.CounterVec
	AssessmentLatency *prometheus.HistogramVec
	SearchStrategy    *prometheus.CounterVec
}

// NewMetrics registers collectors on reg. Collectors that are already
// registered are reused, so building services twice in one process is safe.
func NewMetrics(reg prometheus.Registerer, logger *logrus.Logger) *Metrics {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		}, []string{"cache", "result"}),
		RetrievalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_retrieval_failures_total",
			Help: "Recovered retrieval failures during fan-out",
		}, []string{"kind"}),
		Assessments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Finished assessments by outcome and score source",
		}, []string{"outcome", "score_source"}),
		AssessmentLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "risk_assessment_stage_duration_seconds",
			Help:    "Duration of each assessment pipeline stage",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		SearchStrategy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "risk_similarity_search_total",
			Help: "Similarity searches by execution strategy",
		}, []string{"strategy"}),
	}

	m.CacheLookups = register(reg, m.CacheLookups, logger)
	m.RetrievalFailures = register(reg, m.RetrievalFailures, logger)
	m.Assessments = register(reg, m.Assessments, logger)
	m.AssessmentLatency = register(reg, m.AssessmentLatency, logger)
	m.SearchStrategy = register(reg, m.SearchStrategy, logger)

	return m
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T, logger *logrus.Logger) T {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		logger.WithError(err).Warn("Failed to register metric")
	}
	return c
}

// NewTestMetrics returns collectors bound to a throwaway registry.
func NewTestMetrics() *Metrics {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewMetrics(prometheus.NewRegistry(), logger)
}

func (m *Metrics) cacheHit(cache string) {
	m.CacheLookups.WithLabelValues(cache, "hit").Inc()
}

func (m *Metrics) cacheMiss(cache string) {
	m.CacheLookups.WithLabelValues(cache, "miss").Inc()
}
