package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and the OCR
// pipeline they drive.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	images   *prometheus.CounterVec
	items    *prometheus.CounterVec
	prices   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ImageProcessed counts one image outcome ("processed" or "failed").
func (m *Metrics) ImageProcessed(outcome string) {
	if m == nil {
		return
	}
	m.images.WithLabelValues(outcome).Inc()
}

// ItemResolved counts one candidate item by how it was reconciled.
func (m *Metrics) ItemResolved(resolution string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(resolution).Inc()
}

// PricesRecorded adds written price observations of one type.
func (m *Metrics) PricesRecorded(priceType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.prices.WithLabelValues(priceType).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mercadoleve_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mercadoleve_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mercadoleve_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"job"})
	images := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mercadoleve_ocr_images_total",
		Help: "Images handled by the OCR pipeline grouped by outcome.",
	}, []string{"outcome"})
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mercadoleve_ocr_items_total",
		Help: "Extracted items grouped by catalog resolution.",
	}, []string{"resolution"})
	prices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mercadoleve_ocr_prices_total",
		Help: "Price observations written by the OCR pipeline.",
	}, []string{"price_type"})
	registerer.MustRegister(runs, failures, duration, images, items, prices)
	return &Metrics{runs: runs, failures: failures, duration: duration, images: images, items: items, prices: prices}
}
