package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_created_total",
		Help: "Total number of sales created with their line item",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_failed_total",
		Help: "Total number of failed sale creations",
	}, []string{"reason"})

	SaleCreationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sale_creation_latency_seconds",
		Help:    "Latency of the sale creation workflow",
		Buckets: prometheus.DefBuckets,
	})

	DeliveriesScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deliveries_scheduled_total",
		Help: "Total number of deliveries booked",
	})

	DeliveriesRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deliveries_rejected_total",
		Help: "Total number of rejected delivery bookings",
	}, []string{"reason"})

	AccessDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_denied_total",
		Help: "Total number of requests rejected by the access gate",
	}, []string{"reason"})

	PermissionCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "permission_cache_lookups_total",
		Help: "Permission cache lookups by result",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
