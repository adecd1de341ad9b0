package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"event-escrow/models"
	"event-escrow/ticketing"
)

// Metrics records engine operations and committed notifications. It is both
// a ticketing.Observer and a ticketing.Sink.
type Metrics struct {
	operations    *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	ticketsSold   prometheus.Counter
	refunds       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketing_operations_total",
				Help: "Total ledger operations by outcome",
			},
			[]string{"operation", "result"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ticketing_operation_duration_seconds",
				Help:    "Duration of ledger operations including external transfers",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"operation"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticketing_notifications_total",
				Help: "Committed notifications by kind",
			},
			[]string{"kind"},
		),
		ticketsSold: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketing_tickets_sold_total",
			Help: "Tickets sold",
		}),
		refunds: factory.NewCounter(prometheus.CounterOpts{
			Name: "ticketing_refunds_total",
			Help: "Refunds issued",
		}),
	}
}

// ObserveOperation labels failures with their error code, successes with "ok".
func (m *Metrics) ObserveOperation(op string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = ticketing.CodeOf(err)
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) Publish(_ context.Context, n models.Notification) error {
	m.notifications.WithLabelValues(string(n.Kind)).Inc()
	switch n.Kind {
	case models.KindTicketPurchased:
		m.ticketsSold.Inc()
	case models.KindRefundIssued:
		m.refunds.Inc()
	}
	return nil
}
