// Package metrics holds the process-wide prometheus collectors. Components
// record through these; the API surface exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Event bus.
var (
	BusPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grabby_bus_published_total",
		Help: "Total events published, by event type",
	}, []string{"type"})

	BusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grabby_bus_dropped_total",
		Help: "Total subscriber deliveries dropped on publish timeout",
	}, []string{"type"})
)

// Queue and scheduler.
var (
	QueueItemsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grabby_queue_items_added_total",
		Help: "Total items admitted to the queue",
	})

	QueueDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grabby_queue_duplicates_skipped_total",
		Help: "Total additions rejected by duplicate detection",
	})

	QueueItemsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grabby_queue_items_completed_total",
		Help: "Total items that finished successfully",
	})

	QueueItemsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grabby_queue_items_failed_total",
		Help: "Total items that reached the failed state",
	})

	QueueRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grabby_queue_retries_scheduled_total",
		Help: "Total retry attempts scheduled after failures",
	})

	QueueActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grabby_queue_active_downloads",
		Help: "Items currently in the downloading state",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grabby_queue_depth",
		Help: "Items waiting in pending or retrying state",
	})

	BandwidthReserved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grabby_bandwidth_reserved_bytes_per_second",
		Help: "Sum of active bandwidth reservations",
	})
)

// Engines.
var (
	EngineStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grabby_engine_starts_total",
		Help: "External fetcher process starts, by engine tag",
	}, []string{"engine"})

	EngineExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grabby_engine_exits_total",
		Help: "External fetcher process exits, by engine tag and reason",
	}, []string{"engine", "reason"})
)

// Rules.
var (
	RulesTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grabby_rules_triggered_total",
		Help: "Rule matches, by rule id",
	}, []string{"rule"})
)

// Persistence.
var (
	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grabby_store_errors_total",
		Help: "Queue store operation failures, by operation",
	}, []string{"op"})
)
