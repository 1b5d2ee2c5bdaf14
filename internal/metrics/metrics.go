package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "mediakg"

// metricsStore holds Prometheus metrics for the quad storage engine.
type metricsStore struct {
	once sync.Once

	// Dictionary cache, labelled by category
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// Batched dictionary calls, labelled by group and operation
	backendBatches *prometheus.CounterVec

	// Quads
	quadsInserted  prometheus.Counter
	quadsCoalesced prometheus.Counter
	quadsRemoved   prometheus.Counter

	// Hybrid
	mirroredWrites prometheus.Counter
	skippedMirrors prometheus.Counter
}

var storeMetrics metricsStore

func (m *metricsStore) init() {
	m.once.Do(func() {
		m.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cache_hits_total", Help: "Dictionary cache hits"}, []string{"category"})
		m.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cache_misses_total", Help: "Dictionary cache misses"}, []string{"category"})

		m.backendBatches = prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "backend_batches_total", Help: "Batched dictionary backend calls"}, []string{"group", "op"})

		m.quadsInserted = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "quads_inserted_total", Help: "Quad rows inserted"})
		m.quadsCoalesced = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "quads_coalesced_total", Help: "Duplicate quad inserts absorbed by the identity constraint"})
		m.quadsRemoved = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "quads_removed_total", Help: "Quad rows removed"})

		m.mirroredWrites = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "hybrid_mirrored_total", Help: "Quads mirrored into the search store"})
		m.skippedMirrors = prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "hybrid_skipped_total", Help: "Quads kept out of the search store"})

		prometheus.MustRegister(
			m.cacheHits, m.cacheMisses,
			m.backendBatches,
			m.quadsInserted, m.quadsCoalesced, m.quadsRemoved,
			m.mirroredWrites, m.skippedMirrors,
		)
	})
}

// record helpers
func RecordCacheHits(category string, n int) {
	storeMetrics.init()
	storeMetrics.cacheHits.WithLabelValues(category).Add(float64(n))
}

func RecordCacheMisses(category string, n int) {
	storeMetrics.init()
	storeMetrics.cacheMisses.WithLabelValues(category).Add(float64(n))
}

func RecordBackendBatch(group, op string) {
	storeMetrics.init()
	storeMetrics.backendBatches.WithLabelValues(group, op).Inc()
}

func RecordQuadInserted()  { storeMetrics.init(); storeMetrics.quadsInserted.Inc() }
func RecordQuadCoalesced() { storeMetrics.init(); storeMetrics.quadsCoalesced.Inc() }

func RecordQuadsRemoved(n int) {
	storeMetrics.init()
	storeMetrics.quadsRemoved.Add(float64(n))
}

func RecordMirror(mirrored bool) {
	storeMetrics.init()
	if mirrored {
		storeMetrics.mirroredWrites.Inc()
	} else {
		storeMetrics.skippedMirrors.Inc()
	}
}

// Sample is one gathered counter value
type Sample struct {
	Name   string
	Labels string
	Value  float64
}

// Snapshot gathers the current values of this package's counters from the
// default registry, sorted by name and labels.
func Snapshot() ([]Sample, error) {
	storeMetrics.init()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	var samples []Sample
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), namespace+"_") {
			continue
		}
		for _, metric := range family.GetMetric() {
			samples = append(samples, Sample{
				Name:   family.GetName(),
				Labels: formatLabels(metric.GetLabel()),
				Value:  metric.GetCounter().GetValue(),
			})
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return samples[i].Labels < samples[j].Labels
	})
	return samples, nil
}

func formatLabels(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	return strings.Join(parts, ",")
}
