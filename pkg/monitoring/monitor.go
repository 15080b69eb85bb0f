package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Duration of AI model calls by kind",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind", "outcome"},
	)

	PracticesGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "practices_generated_total",
			Help: "Total number of generated practices",
		},
	)

	SheetsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheets_processed_total",
			Help: "Total number of processed answer sheet images",
		},
		[]string{"status"},
	)

	ProgressClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "progress_ws_clients",
			Help: "Number of connected grading progress WebSocket clients",
		},
	)

	ProgressEventCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_events_total",
			Help: "Total number of grading progress events pushed",
		},
		[]string{"stage"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(PracticesGenerated)
	prometheus.MustRegister(SheetsProcessed)
	prometheus.MustRegister(ProgressClients)
	prometheus.MustRegister(ProgressEventCounter)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

// ObserveAIRequest 记录一次AI调用的耗时与结果。
func ObserveAIRequest(kind string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	AIRequestDuration.WithLabelValues(kind, outcome).Observe(time.Since(start).Seconds())
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
