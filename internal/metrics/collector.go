package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates prometheus metrics for the memory core. A nil
// *Collector is valid and records nothing, so components can be constructed
// without metrics in tests.
type Collector struct {
	// Memory store metrics
	entriesStored    *prometheus.CounterVec
	entriesForgotten *prometheus.CounterVec
	entriesEvicted   prometheus.Counter
	searchDuration   prometheus.Histogram
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	memoryPressure   prometheus.Gauge

	// Learning metrics
	feedbackEvents  *prometheus.CounterVec
	patternsLearned prometheus.Counter
	policyUpdates   prometheus.Counter

	// Case base metrics
	casesAdded     prometheus.Counter
	caseRetrievals prometheus.Histogram

	// Manager metrics
	consolidations *prometheus.CounterVec
	healthScore    prometheus.Gauge

	logger *zap.Logger
}

// NewCollector creates a collector registering under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.entriesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_entries_stored_total",
			Help:      "Total number of memory entries stored",
		},
		[]string{"agent_id", "kind"},
	)

	c.entriesForgotten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_entries_forgotten_total",
			Help:      "Total number of memory entries forgotten",
		},
		[]string{"strategy"},
	)

	c.entriesEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_entries_evicted_total",
			Help:      "Total number of cache evictions",
		},
	)

	c.searchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_search_duration_seconds",
			Help:      "Similarity search duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.cacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_cache_hits_total",
			Help:      "Total number of cache hits",
		},
	)

	c.cacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_cache_misses_total",
			Help:      "Total number of cache misses",
		},
	)

	c.memoryPressure = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_pressure",
			Help:      "Current memory pressure (cache size / capacity)",
		},
	)

	c.feedbackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learning_feedback_events_total",
			Help:      "Total number of processed feedback events",
		},
		[]string{"agent_id", "type"},
	)

	c.patternsLearned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learning_patterns_learned_total",
			Help:      "Total number of learned behavioral patterns",
		},
	)

	c.policyUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "learning_policy_updates_total",
			Help:      "Total number of Q-value updates",
		},
	)

	c.casesAdded = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "casebase_cases_added_total",
			Help:      "Total number of cases added to the case base",
		},
	)

	c.caseRetrievals = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "casebase_retrieval_duration_seconds",
			Help:      "Case retrieval duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.consolidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manager_consolidations_total",
			Help:      "Total number of consolidation operations",
		},
		[]string{"strategy"},
	)

	c.healthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "manager_health_score",
			Help:      "Derived memory health score in [0,1]",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordEntryStored records a stored entry.
func (c *Collector) RecordEntryStored(agentID, kind string) {
	if c == nil {
		return
	}
	c.entriesStored.WithLabelValues(agentID, kind).Inc()
}

// RecordEntriesForgotten records removed entries by strategy.
func (c *Collector) RecordEntriesForgotten(strategy string, count int) {
	if c == nil {
		return
	}
	c.entriesForgotten.WithLabelValues(strategy).Add(float64(count))
}

// RecordEviction records a capacity eviction.
func (c *Collector) RecordEviction() {
	if c == nil {
		return
	}
	c.entriesEvicted.Inc()
}

// RecordSearch records a similarity search duration.
func (c *Collector) RecordSearch(d time.Duration) {
	if c == nil {
		return
	}
	c.searchDuration.Observe(d.Seconds())
}

// RecordCacheHit records a cache hit.
func (c *Collector) RecordCacheHit() {
	if c == nil {
		return
	}
	c.cacheHits.Inc()
}

// RecordCacheMiss records a cache miss.
func (c *Collector) RecordCacheMiss() {
	if c == nil {
		return
	}
	c.cacheMisses.Inc()
}

// SetMemoryPressure publishes the current pressure.
func (c *Collector) SetMemoryPressure(p float64) {
	if c == nil {
		return
	}
	c.memoryPressure.Set(p)
}

// RecordFeedback records a processed feedback event.
func (c *Collector) RecordFeedback(agentID, feedbackType string) {
	if c == nil {
		return
	}
	c.feedbackEvents.WithLabelValues(agentID, feedbackType).Inc()
}

// RecordPatternLearned records a new behavioral pattern.
func (c *Collector) RecordPatternLearned() {
	if c == nil {
		return
	}
	c.patternsLearned.Inc()
}

// RecordPolicyUpdate records a Q-value update.
func (c *Collector) RecordPolicyUpdate() {
	if c == nil {
		return
	}
	c.policyUpdates.Inc()
}

// RecordCaseAdded records an admitted case.
func (c *Collector) RecordCaseAdded() {
	if c == nil {
		return
	}
	c.casesAdded.Inc()
}

// RecordCaseRetrieval records a case retrieval duration.
func (c *Collector) RecordCaseRetrieval(d time.Duration) {
	if c == nil {
		return
	}
	c.caseRetrievals.Observe(d.Seconds())
}

// RecordConsolidation records consolidation activity by strategy.
func (c *Collector) RecordConsolidation(strategy string, merged int) {
	if c == nil {
		return
	}
	c.consolidations.WithLabelValues(strategy).Add(float64(merged))
}

// SetHealthScore publishes the derived health score.
func (c *Collector) SetHealthScore(s float64) {
	if c == nil {
		return
	}
	c.healthScore.Set(s)
}
