package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ichat_http_requests_total",
			Help: "Total number of HTTP requests processed by the sync service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ichat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ichat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ichat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	reconcileOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ichat_reconcile_ops_total",
			Help: "Inbound events applied to the reconciliation engine, by outcome.",
		},
		[]string{"event", "outcome"},
	)
	routerDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ichat_notification_decisions_total",
			Help: "Notification router decisions.",
		},
		[]string{"decision"},
	)
	pushHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ichat_push_notifications_total",
			Help: "Push notifications handled by the delivery worker.",
		},
		[]string{"result"},
	)
	transportDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ichat_transport_dropped_sends_total",
			Help: "Emit calls dropped while the transport was disconnected.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ichat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		reconcileOpsTotal,
		routerDecisionsTotal,
		pushHandledTotal,
		transportDroppedTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncReconcileOp(event, outcome string) {
	reconcileOpsTotal.WithLabelValues(event, outcome).Inc()
}

func IncRouterDecision(decision string) {
	routerDecisionsTotal.WithLabelValues(decision).Inc()
}

func IncPushHandled(result string) {
	pushHandledTotal.WithLabelValues(result).Inc()
}

func IncTransportDroppedSend() {
	transportDroppedTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
