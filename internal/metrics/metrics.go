// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"method", "route"})

	SignIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_sign_ins_total",
		Help: "Sign-in attempts by result",
	}, []string{"result"})

	SessionTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crm_session_timeouts_total",
		Help: "Session operations stopped by the watchdog",
	})

	GuardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_guard_decisions_total",
		Help: "Route guard decisions by route and kind",
	}, []string{"route", "decision"})

	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_emails_total",
		Help: "Outbound emails by template and delivery mode",
	}, []string{"template", "mode"})

	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_extractions_total",
		Help: "Extraction runs by extractor and result",
	}, []string{"extractor", "result"})
)

// Middleware records request count and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
