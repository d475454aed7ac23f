package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlog_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	InboxActivitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlog_inbox_activities_total",
			Help: "Inbound activities by type and outcome.",
		},
		[]string{"type", "result"},
	)

	SignatureRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlog_signature_rejections_total",
			Help: "Inbound requests rejected during signature verification.",
		},
		[]string{"reason"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xlog_deliveries_total",
			Help: "Outbound delivery attempts by activity kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	DeliveryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xlog_delivery_duration_seconds",
			Help:    "Duration of outbound delivery POSTs.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	DeliveriesRequeuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "xlog_deliveries_requeued_total",
			Help: "Failed deliveries put back on the queue by the retry scheduler.",
		},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		InboxActivitiesTotal,
		SignatureRejectionsTotal,
		DeliveriesTotal,
		DeliveryDurationSeconds,
		DeliveriesRequeuedTotal,
	)
}
