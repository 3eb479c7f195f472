// Package metrics exposes Prometheus collectors for HTTP traffic and
// reservation activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jimgabang/utils"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jimgabang",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jimgabang",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jimgabang",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jimgabang",
			Subsystem: "reservations",
			Name:      "bookings_total",
			Help:      "Booking lifecycle events.",
		},
		[]string{"event"},
	)

	capacityRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jimgabang",
			Subsystem: "reservations",
			Name:      "capacity_rejections_total",
			Help:      "Reservations refused for lack of available bags.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		bookings,
		capacityRejections,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Instrument wraps a route handler, labelling samples with the route
// pattern rather than the concrete path.
func Instrument(method, route string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sw := utils.NewStatusWriter(w)
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next(sw, r, ps)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(sw.Status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func BookingCreated()   { bookings.WithLabelValues("created").Inc() }
func BookingCancelled() { bookings.WithLabelValues("cancelled").Inc() }
func BookingRestored()  { bookings.WithLabelValues("restored").Inc() }
func BookingDeleted()   { bookings.WithLabelValues("deleted").Inc() }

// CapacityRejected counts a reservation refused for insufficient capacity.
func CapacityRejected() { capacityRejections.Inc() }
