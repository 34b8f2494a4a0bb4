package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const anonymousRole = "anonymous"

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Operator API requests by route, status and caller role",
		},
		[]string{"method", "route", "status", "role"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orchestrator",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Operator API latencies in seconds",
			// Campaign removal and token refresh call the Graph API per account.
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60, 120},
		},
		[]string{"method", "route"},
	)

	apiInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "orchestrator",
			Subsystem: "api",
			Name:      "inflight_requests",
			Help:      "Operator API requests currently being served",
		},
	)

	apiDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orchestrator",
			Subsystem: "api",
			Name:      "denials_total",
			Help:      "Requests rejected by authentication or the role check",
		},
		[]string{"route", "status"},
	)
)

// Metrics records request counts and latencies labelled by the matched route
// template. Paths in skip (health probes, the scrape endpoint) are not counted.
func Metrics(skip ...string) fiber.Handler {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c fiber.Ctx) error {
		if _, ok := skipped[c.Path()]; ok {
			return c.Next()
		}

		start := time.Now()
		apiInFlight.Inc()
		defer apiInFlight.Dec()

		err := c.Next()

		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		role, _ := c.Locals(LocalRole).(string)
		if role == "" {
			role = anonymousRole
		}
		status := c.Response().StatusCode()

		apiRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status), role).Inc()
		apiRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		if status == fiber.StatusUnauthorized || status == fiber.StatusForbidden {
			apiDenialsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		}
		return err
	}
}
