package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus instruments. A single instance
// is created at bootstrap and shared through DI.
type Metrics struct {
	OrdersCreated     *prometheus.CounterVec
	PaymentsConfirmed *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
	ReferralCredits   prometheus.Counter
	WebhooksRejected  *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OrdersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "store_orders_created_total",
			Help: "Purchase intents created, by provider and kind.",
		}, []string{"provider", "kind"}),
		PaymentsConfirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "store_payments_confirmed_total",
			Help: "Settlements observed, by provider and signal (push/pull).",
		}, []string{"provider", "signal"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "store_deliveries_total",
			Help: "Fulfillment outcomes, by kind and status.",
		}, []string{"kind", "status"}),
		ReferralCredits: factory.NewCounter(prometheus.CounterOpts{
			Name: "store_referral_credits_total",
			Help: "Referral ledger credit operations.",
		}),
		WebhooksRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "store_webhooks_rejected_total",
			Help: "Webhooks dropped before processing, by provider and reason.",
		}, []string{"provider", "reason"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "store_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
