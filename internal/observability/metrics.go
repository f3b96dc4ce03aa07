package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Total number of messages persisted, by message type.",
		},
		[]string{"type"},
	)
	reactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_reactions_total",
			Help: "Total number of reaction mutations.",
		},
		[]string{"op"},
	)
	readReceiptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_read_receipts_total",
			Help: "Total number of messages marked read.",
		},
	)
	directConflictRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_direct_conflict_retries_total",
			Help: "Times a direct-conversation create lost the uniqueness race and was retried as a read.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		messagesSentTotal,
		reactionsTotal,
		readReceiptsTotal,
		directConflictRetriesTotal,
	)
}

// MetricsMiddleware records request counts and latency per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// ObserveMessageSent counts a persisted message.
func ObserveMessageSent(msgType string) {
	messagesSentTotal.WithLabelValues(msgType).Inc()
}

// ObserveReaction counts a reaction add or remove.
func ObserveReaction(op string) {
	reactionsTotal.WithLabelValues(op).Inc()
}

// ObserveReadReceipts counts messages newly marked read.
func ObserveReadReceipts(n int64) {
	if n > 0 {
		readReceiptsTotal.Add(float64(n))
	}
}

// ObserveDirectConflictRetry counts a lost direct-creation race.
func ObserveDirectConflictRetry() {
	directConflictRetriesTotal.Inc()
}
