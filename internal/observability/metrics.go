package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API, worker and sweeper flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	notificationsTotal     *prometheus.CounterVec
	deliveryDuration       *prometheus.HistogramVec
	claimRacesTotal        prometheus.Counter
	staleClaimsFailedTotal prometheus.Counter
	queueDepth             *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_relay",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_relay",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_relay",
				Name:      "notifications_finalized_total",
				Help:      "Total number of notifications finalized by kind and terminal status.",
			},
			[]string{"kind", "status"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_relay",
				Name:      "delivery_duration_seconds",
				Help:      "Bridge send duration in seconds grouped by outcome.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"outcome"},
		),
		claimRacesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_relay",
				Name:      "claim_races_total",
				Help:      "Total number of claims lost to another worker.",
			},
		),
		staleClaimsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_relay",
				Name:      "stale_claims_failed_total",
				Help:      "Total number of abandoned claims finalized as failed.",
			},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "notify_relay",
				Name:      "queue_depth",
				Help:      "Number of notification records grouped by status.",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationsTotal,
		m.deliveryDuration,
		m.claimRacesTotal,
		m.staleClaimsFailedTotal,
		m.queueDepth,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncNotificationFinalized(kind string, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(normalizeLabel(kind), normalizeLabel(status)).Inc()
}

func (m *Metrics) ObserveDeliveryDuration(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryDuration.WithLabelValues(normalizeLabel(outcome)).Observe(seconds)
}

func (m *Metrics) IncClaimRace() {
	if m == nil {
		return
	}
	m.claimRacesTotal.Inc()
}

func (m *Metrics) AddStaleClaimsFailed(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.staleClaimsFailedTotal.Add(float64(count))
}

// SetQueueDepth replaces the depth gauge with counts; statuses missing from
// counts are reported as zero.
func (m *Metrics) SetQueueDepth(counts map[string]int64) {
	if m == nil {
		return
	}
	m.queueDepth.Reset()
	for status, count := range counts {
		m.queueDepth.WithLabelValues(normalizeLabel(status)).Set(float64(count))
	}
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
