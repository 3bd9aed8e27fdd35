package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry so tests and
// multiple services in one process do not collide
type Metrics struct {
	registry *prometheus.Registry

	imagesUploaded  prometheus.Counter
	imagesRejected  *prometheus.CounterVec
	jobsFinished    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	bytesSaved      prometheus.Counter
	queueRejections prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		imagesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepress",
			Name:      "images_uploaded_total",
			Help:      "Images accepted into a workspace.",
		}),
		imagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepress",
			Name:      "images_rejected_total",
			Help:      "Uploaded files rejected by validation.",
		}, []string{"reason"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagepress",
			Name:      "jobs_finished_total",
			Help:      "Processing jobs by kind and final status.",
		}, []string{"kind", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagepress",
			Name:      "job_duration_seconds",
			Help:      "Time spent running processing jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		bytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepress",
			Name:      "bytes_saved_total",
			Help:      "Bytes removed by compression across completed images.",
		}),
		queueRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "imagepress",
			Name:      "queue_rejections_total",
			Help:      "Jobs refused because the queue was full.",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.imagesUploaded, m.imagesRejected, m.jobsFinished, m.jobDuration, m.bytesSaved, m.queueRejections,
	)
	return m
}

// RegisterQueueDepth reports depth() as a gauge on every scrape
func (m *Metrics) RegisterQueueDepth(depth func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "imagepress",
		Name:      "queue_depth",
		Help:      "Jobs waiting or in flight.",
	}, func() float64 { return float64(depth()) }))
}

func (m *Metrics) ImageUploaded() {
	m.imagesUploaded.Inc()
}

func (m *Metrics) ImageRejected(reason string) {
	m.imagesRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) QueueRejected() {
	m.queueRejections.Inc()
}

// JobCompleted records a successful job and the bytes it saved
func (m *Metrics) JobCompleted(kind string, duration time.Duration, originalSize, compressedSize int64) {
	m.jobsFinished.WithLabelValues(kind, "completed").Inc()
	m.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if saved := originalSize - compressedSize; saved > 0 {
		m.bytesSaved.Add(float64(saved))
	}
}

// JobFailed records a job that will not be retried
func (m *Metrics) JobFailed(kind string) {
	m.jobsFinished.WithLabelValues(kind, "error").Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
