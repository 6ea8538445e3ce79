// Package metrics provides Prometheus metrics for the pLTV pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace string
	subsystem string
	enabled   bool
	registry  prometheus.Registerer

	// Cleaning metrics
	eventsDeduplicated prometheus.Counter
	eventsQuarantined  *prometheus.CounterVec
	paymentsConverted  prometheus.Counter
	cleanDuration      prometheus.Histogram

	// Feature engine metrics
	featureRowsBuilt       prometheus.Counter
	featureComputeDuration prometheus.Histogram

	// Registry metrics
	datasetsRegistered prometheus.Counter
	modelsRegistered   prometheus.Counter

	// Training / analysis metrics
	trainDuration       prometheus.Histogram
	comparisonsRun      prometheus.Counter
	conflictScanSeconds prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "pltv",
		subsystem: "pipeline",
		enabled:   true,
		registry:  prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.eventsDeduplicated = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_deduplicated_total",
		Help:      "Duplicate events removed by the cleaning pipeline.",
	})
	m.eventsQuarantined = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_quarantined_total",
		Help:      "Events quarantined by the cleaning pipeline, by reason.",
	}, []string{"reason"})
	m.paymentsConverted = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "payments_converted_total",
		Help:      "Payment transactions standardized to the base currency.",
	})
	m.cleanDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "clean_duration_seconds",
		Help:      "Wall time of a full cleaning pass.",
		Buckets:   prometheus.DefBuckets,
	})
	m.featureRowsBuilt = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_rows_built_total",
		Help:      "Feature rows produced by the feature engine.",
	})
	m.featureComputeDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feature_compute_duration_seconds",
		Help:      "Wall time of a full feature computation pass.",
		Buckets:   prometheus.DefBuckets,
	})
	m.datasetsRegistered = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "datasets_registered_total",
		Help:      "Dataset versions appended to the dataset registry.",
	})
	m.modelsRegistered = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "models_registered_total",
		Help:      "Model versions appended to the model registry.",
	})
	m.trainDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "train_duration_seconds",
		Help:      "Wall time of a model training run.",
		Buckets:   prometheus.DefBuckets,
	})
	m.comparisonsRun = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "strategy_comparisons_total",
		Help:      "Strategy comparison runs completed.",
	})
	m.conflictScanSeconds = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "conflict_scan_duration_seconds",
		Help:      "Wall time of a label-conflict neighbor scan.",
		Buckets:   prometheus.DefBuckets,
	})
}

// Registry returns the registry the package-level metrics are registered
// against, for callers that want to expose or inspect them.
func Registry() *prometheus.Registry { return customRegistry }

// Package-level helpers recording against the global manager.

// AddEventsDeduplicated records removed duplicate events.
func AddEventsDeduplicated(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.eventsDeduplicated.Add(float64(n))
	}
}

// AddEventsQuarantined records quarantined events by reason.
func AddEventsQuarantined(reason string, n int) {
	if globalManager.enabled && n > 0 {
		globalManager.eventsQuarantined.WithLabelValues(reason).Add(float64(n))
	}
}

// AddPaymentsConverted records standardized payment transactions.
func AddPaymentsConverted(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.paymentsConverted.Add(float64(n))
	}
}

// ObserveCleanDuration records the wall time of a cleaning pass.
func ObserveCleanDuration(seconds float64) {
	if globalManager.enabled {
		globalManager.cleanDuration.Observe(seconds)
	}
}

// AddFeatureRowsBuilt records produced feature rows.
func AddFeatureRowsBuilt(n int) {
	if globalManager.enabled && n > 0 {
		globalManager.featureRowsBuilt.Add(float64(n))
	}
}

// ObserveFeatureComputeDuration records the wall time of a feature pass.
func ObserveFeatureComputeDuration(seconds float64) {
	if globalManager.enabled {
		globalManager.featureComputeDuration.Observe(seconds)
	}
}

// IncDatasetsRegistered records a dataset registry append.
func IncDatasetsRegistered() {
	if globalManager.enabled {
		globalManager.datasetsRegistered.Inc()
	}
}

// IncModelsRegistered records a model registry append.
func IncModelsRegistered() {
	if globalManager.enabled {
		globalManager.modelsRegistered.Inc()
	}
}

// ObserveTrainDuration records the wall time of a training run.
func ObserveTrainDuration(seconds float64) {
	if globalManager.enabled {
		globalManager.trainDuration.Observe(seconds)
	}
}

// IncComparisonsRun records a completed strategy comparison.
func IncComparisonsRun() {
	if globalManager.enabled {
		globalManager.comparisonsRun.Inc()
	}
}

// ObserveConflictScanDuration records the wall time of a conflict scan.
func ObserveConflictScanDuration(seconds float64) {
	if globalManager.enabled {
		globalManager.conflictScanSeconds.Observe(seconds)
	}
}
