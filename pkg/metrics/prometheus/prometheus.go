// Package prometheus exports USSD server metrics through client_golang.
package prometheus

import (
	"strconv"
	"time"

	"kazichain-ussd/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var latencyBuckets = prometheus.ExponentialBuckets(0.0005, 2, 14) // 0.5ms to ~4s

// Collector implements metrics.Collector.
type Collector struct {
	callbacks       *prometheus.CounterVec
	callbackLatency *prometheus.HistogramVec
	authFailures    *prometheus.CounterVec
	lockouts        *prometheus.CounterVec
	transfers       *prometheus.CounterVec
	transferLatency *prometheus.HistogramVec

	sessionOps     *prometheus.CounterVec
	sessionLatency *prometheus.HistogramVec

	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	queueDepth           *prometheus.GaugeVec
	notificationsDropped *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	notificationAttempts *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewCollector builds the metric vectors under namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ussd_callbacks_total",
			Help:      "USSD callbacks handled, by menu branch and outcome",
		}, []string{"branch", "outcome"}),
		callbackLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ussd_callback_duration_seconds",
			Help:      "Time to compute a USSD response",
			Buckets:   latencyBuckets,
		}, []string{"branch"}),
		authFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ussd_auth_failures_total",
			Help:      "Incorrect PIN entries, by branch",
		}, []string{"branch"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ussd_lockouts_total",
			Help:      "Sessions locked out after too many incorrect PINs",
		}, []string{"branch"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfer attempts by outcome",
		}, []string{"outcome"}),
		transferLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Payment service latency",
			Buckets:   latencyBuckets,
		}, []string{"outcome"}),
		sessionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_ops_total",
			Help:      "Session store operations by layer, operation and status",
		}, []string{"layer", "op", "status"}),
		sessionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_op_duration_seconds",
			Help:      "Session store operation latency",
			Buckets:   latencyBuckets,
		}, []string{"layer", "op"}),
		circuitOpens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_opens_total",
			Help:      "Circuit breaker transitions to open",
		}, []string{"name"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_depth",
			Help:      "Pending notifications",
		}, []string{"queue"}),
		notificationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications rejected because the queue was full",
		}, []string{"queue"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications processed by status",
		}, []string{"queue", "status"}),
		notificationAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_attempts",
			Help:      "Delivery attempts per notification",
			Buckets:   []float64{1, 2, 3, 5},
		}, []string{"queue"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   latencyBuckets,
		}, []string{"route", "method"}),
	}
}

// Register registers all metrics with registry.
func (c *Collector) Register(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		c.callbacks,
		c.callbackLatency,
		c.authFailures,
		c.lockouts,
		c.transfers,
		c.transferLatency,
		c.sessionOps,
		c.sessionLatency,
		c.circuitOpens,
		c.circuitState,
		c.queueDepth,
		c.notificationsDropped,
		c.notifications,
		c.notificationAttempts,
		c.httpRequests,
		c.httpLatency,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordCallback(branch, outcome string, duration time.Duration) {
	c.callbacks.WithLabelValues(branch, outcome).Inc()
	c.callbackLatency.WithLabelValues(branch).Observe(duration.Seconds())
}

func (c *Collector) RecordAuthFailure(branch string) {
	c.authFailures.WithLabelValues(branch).Inc()
}

func (c *Collector) RecordLockout(branch string) {
	c.lockouts.WithLabelValues(branch).Inc()
}

func (c *Collector) RecordTransfer(outcome string, duration time.Duration) {
	c.transfers.WithLabelValues(outcome).Inc()
	c.transferLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) RecordSessionOp(layer, op string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	c.sessionOps.WithLabelValues(layer, op, status).Inc()
	c.sessionLatency.WithLabelValues(layer, op).Observe(duration.Seconds())
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}

func (c *Collector) RecordQueueDepth(queue string, depth int) {
	c.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (c *Collector) RecordNotificationDropped(queue string) {
	c.notificationsDropped.WithLabelValues(queue).Inc()
}

func (c *Collector) RecordNotification(queue string, success bool, attempts int, duration time.Duration) {
	status := "delivered"
	if !success {
		status = "failed"
	}
	c.notifications.WithLabelValues(queue, status).Inc()
	c.notificationAttempts.WithLabelValues(queue).Observe(float64(attempts))
}

func (c *Collector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(route, method).Observe(duration.Seconds())
}

var _ metrics.Collector = (*Collector)(nil)
