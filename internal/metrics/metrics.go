// Package metrics exposes pipeline and query counters on a private prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prepbot"

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	filesScanned     *prometheus.CounterVec
	chunksExtracted  prometheus.Counter
	chunksEmbedded   prometheus.Counter
	recordsIndexed   prometheus.Counter
	pipelineRuns     *prometheus.CounterVec
	answers          *prometheus.CounterVec
	retrievalLatency prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		filesScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_scanned_total",
			Help:      "Corpus files visited by the scanner, by outcome.",
		}, []string{"outcome"}),
		chunksExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_extracted_total",
			Help:      "Chunks produced by the extractor.",
		}),
		chunksEmbedded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_embedded_total",
			Help:      "Chunks that received a vector.",
		}),
		recordsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_indexed_total",
			Help:      "Records added to the vector index.",
		}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Update pipeline runs, by outcome.",
		}, []string{"outcome"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Generated answers, by outcome.",
		}, []string{"outcome"}),
		retrievalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Time to embed a query and search the index.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.filesScanned,
		m.chunksExtracted,
		m.chunksEmbedded,
		m.recordsIndexed,
		m.pipelineRuns,
		m.answers,
		m.retrievalLatency,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FileScanned(outcome string) {
	if m == nil {
		return
	}
	m.filesScanned.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ChunksExtracted(n int) {
	if m == nil {
		return
	}
	m.chunksExtracted.Add(float64(n))
}

func (m *Metrics) ChunksEmbedded(n int) {
	if m == nil {
		return
	}
	m.chunksEmbedded.Add(float64(n))
}

func (m *Metrics) RecordsIndexed(n int) {
	if m == nil {
		return
	}
	m.recordsIndexed.Add(float64(n))
}

func (m *Metrics) PipelineRun(err error) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) Answer(err error) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveRetrieval(d time.Duration) {
	if m == nil {
		return
	}
	m.retrievalLatency.Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
