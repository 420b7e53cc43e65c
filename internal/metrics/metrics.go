package metrics

import (
	"strconv"
	"sync"
	"time"

	"nursedesk/internal/events"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nursedesk",
			Name:      "http_requests_total",
			Help:      "Count of API requests by handler and status code.",
		},
		[]string{"handler", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nursedesk",
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by handler.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nursedesk",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by role.",
		},
		[]string{"role"},
	)

	bookingRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nursedesk",
			Name:      "booking_rejected_total",
			Help:      "Count of rejected booking requests by operation and reason.",
		},
		[]string{"operation", "reason"},
	)

	emergencyCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nursedesk",
			Name:      "emergency_booking_created_total",
			Help:      "Count of emergency bookings.",
		},
	)

	emergencySlotOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nursedesk",
			Name:      "emergency_slot_opened_total",
			Help:      "Count of emergency slots opened (one per day at most).",
		},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nursedesk",
			Name:      "rate_limited_total",
			Help:      "Count of requests rejected by the rate limiter.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			bookingCreated, bookingRejected,
			emergencyCreated, emergencySlotOpened,
			rateLimited,
		)
	})
}

// Subscribe feeds domain counters from the event bus.
func Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.BookingCreated, func(e events.Event) error {
		var p events.BookingPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		bookingCreated.WithLabelValues(p.Role).Inc()
		return nil
	})
	bus.Subscribe(events.BookingRejected, func(e events.Event) error {
		var p events.RejectionPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		bookingRejected.WithLabelValues(p.Operation, p.Reason).Inc()
		return nil
	})
	bus.Subscribe(events.EmergencyCreated, func(events.Event) error {
		emergencyCreated.Inc()
		return nil
	})
	bus.Subscribe(events.EmergencySlotOpened, func(events.Event) error {
		emergencySlotOpened.Inc()
		return nil
	})
}

func ObserveHTTP(handler string, code int, elapsed time.Duration) {
	httpRequests.WithLabelValues(handler, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(handler).Observe(elapsed.Seconds())
}

func IncRateLimited() {
	rateLimited.Inc()
}
