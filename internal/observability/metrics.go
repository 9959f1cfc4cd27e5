// Package observability holds the Prometheus instruments and the request
// logging middleware shared by the HTTP server and the ingestion pipeline.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics instruments the gin engine.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billscan_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billscan_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records a counter and latency sample per request.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestsTotal.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(
			c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// IngestionMetrics instruments the bill processing pipeline.
type IngestionMetrics struct {
	jobsTotal          *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	extractionRequests *prometheus.CounterVec
	alertsCreated      prometheus.Counter
}

func NewIngestionMetrics() *IngestionMetrics {
	return &IngestionMetrics{
		jobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billscan_ingestion_jobs_total",
			Help: "Ingestion jobs by terminal outcome.",
		}, []string{"outcome"}),
		stageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billscan_ingestion_stage_duration_seconds",
			Help:    "Time spent per pipeline stage.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
		}, []string{"stage"}),
		extractionRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "billscan_extraction_requests_total",
			Help: "Vision extraction calls by kind and result.",
		}, []string{"kind", "result"}),
		alertsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "billscan_alerts_created_total",
			Help: "Alerts created by the detection pass.",
		}),
	}
}

func (m *IngestionMetrics) JobFinished(outcome string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
}

func (m *IngestionMetrics) ObserveStage(stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *IngestionMetrics) ExtractionCall(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.extractionRequests.WithLabelValues(kind, result).Inc()
}

func (m *IngestionMetrics) AlertsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.alertsCreated.Add(float64(n))
}
