package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for simsub
type Metrics struct {
	// Client metrics
	RemoteCallsTotal   *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	RejectedCallsTotal *prometheus.CounterVec

	// Listener hub metrics
	ListenersActive         *prometheus.GaugeVec
	ListenerDeliveriesTotal *prometheus.CounterVec
	ListenersDroppedTotal   *prometheus.CounterVec
	ListenerPanicsTotal     prometheus.Counter
	ExecutorQueueDepth      prometheus.Histogram

	// Registry metrics
	RegistrySignalsTotal   *prometheus.CounterVec
	RegistryListeners      *prometheus.GaugeVec
	RegistryEvictionsTotal prometheus.Counter

	// Storage metrics
	StorageOperations        *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	CacheHitsTotal           *prometheus.CounterVec
	DBSize                   prometheus.Gauge

	// API metrics
	APIRequestsTotal     *prometheus.CounterVec
	APIRequestDuration   *prometheus.HistogramVec
	APIActiveConnections prometheus.Gauge
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	// Client metrics
	m.RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simsub_remote_calls_total",
			Help: "Total number of remote service calls issued by the client",
		},
		[]string{"operation", "outcome"}, // ok, error, denied
	)

	m.RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simsub_remote_call_duration_seconds",
			Help:    "Remote service call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // from 0.1ms to ~1.6s
		},
		[]string{"operation"},
	)

	m.RejectedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simsub_rejected_calls_total",
			Help: "Calls answered locally because an identifier failed validation",
		},
		[]string{"operation"},
	)

	// Listener hub metrics
	m.ListenersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simsub_listeners_active",
			Help: "Number of locally registered listeners",
		},
		[]string{"kind"},
	)

	m.ListenerDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simsub_listener_deliveries_total",
			Help: "Total number of change signals posted to listener executors",
		},
		[]string{"kind"},
	)

	m.ListenersDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simsub_listeners_dropped_total",
			Help: "Listeners unregistered because delivery to them failed",
		},
		[]string{"reason"},
	)

	m.ListenerPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simsub_listener_panics_total",
			Help: "Listener callbacks that panicked",
		},
	)

	m.ExecutorQueueDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simsub_executor_queue_depth",
			Help:    "Serial executor queue depth observed at enqueue",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // from 1 to 512
		},
	)

	// Registry metrics
	m.RegistrySignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simsub_registry_signals_total",
			Help: "Total number of change signals emitted by the registry",
		},
		[]string{"kind"},
	)

	m.RegistryListeners = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simsub_registry_listeners",
			Help: "Number of registrations held by the registry",
		},
		[]string{"kind"},
	)

	m.RegistryEvictionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simsub_registry_evictions_total",
			Help: "Registrations removed after a failed delivery",
		},
	)

	// Storage metrics
	m.StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simsub_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "success"},
	)

	m.StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simsub_storage_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // from 0.1ms to ~1.6s
		},
		[]string{"operation"},
	)

	m.CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simsub_cache_lookups_total",
			Help: "Record cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	m.DBSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simsub_storage_db_size_bytes",
			Help: "Size of the on-disk record store in bytes",
		},
	)

	// API metrics
	m.APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simsub_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"service", "method", "status"},
	)

	m.APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "simsub_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // from 1ms to ~16s
		},
		[]string{"service", "method"},
	)

	m.APIActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "simsub_api_notification_connections",
			Help: "Number of open notification channel connections",
		},
	)

	return m
}
