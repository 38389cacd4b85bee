package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Total number of persisted cart mutations",
	}, []string{"operation"})

	CartVersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_version_conflicts_total",
		Help: "Total number of cart writes rejected because the cart changed underneath",
	})

	CartsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carts_created_total",
		Help: "Total number of carts created",
	})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed orders",
	}, []string{"reason"})

	OrderNumberCollisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_number_collisions_total",
		Help: "Total number of generated order numbers that were already taken",
	})

	OrderCreateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_create_latency_seconds",
		Help:    "Latency of order creation",
		Buckets: prometheus.DefBuckets,
	})

	ProductCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_hits_total",
		Help: "Total number of product lookups served from cache",
	})

	ProductCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_cache_misses_total",
		Help: "Total number of product lookups that went to the store",
	})

	EventsPublishFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Total number of events that could not be published",
	}, []string{"type"})

	FulfillmentPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_messages_published_total",
		Help: "Total number of orders handed to the warehouse queue",
	})

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
