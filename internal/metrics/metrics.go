package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slot_booking"

var (
	once sync.Once

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Reservation attempts by slot kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	cancellations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Booking cancellations by outcome.",
		},
		[]string{"outcome"},
	)

	lockRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_retries_total",
			Help:      "Reservation transactions retried after a lock conflict.",
		},
	)

	reserveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reserve_duration_seconds",
			Help:      "Time spent in the reservation engine.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	approvals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "application_approvals_total",
			Help:      "Application approvals by notification result.",
		},
		[]string{"notified"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notification mails by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservations, cancellations, lockRetries, reserveDuration, approvals, notifications)
	})
}

func ObserveReservation(kind, outcome string, started time.Time) {
	reservations.WithLabelValues(kind, outcome).Inc()
	reserveDuration.Observe(time.Since(started).Seconds())
}

func IncCancellation(outcome string) {
	cancellations.WithLabelValues(outcome).Inc()
}

func IncLockRetry() {
	lockRetries.Inc()
}

func IncApproval(notified bool) {
	if notified {
		approvals.WithLabelValues("true").Inc()
		return
	}
	approvals.WithLabelValues("false").Inc()
}

func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}
