package streamable

import (
	"ocm.software/open-component-model/streaming/internal/metrics"
)

const (
	// CacheMissCounterLabel tracks how many promises had to load their key.
	CacheMissCounterLabel = "cache_miss"
	// CacheHitCounterLabel tracks how many promises were resolved from the cache.
	CacheHitCounterLabel = "cache_hit"
	// CacheShareCounterLabel tracks how many promises joined a load that was already in flight.
	CacheShareCounterLabel = "cache_share"
	// CacheUnloadedCounterLabel tracks how many idle entries were dropped from caches.
	CacheUnloadedCounterLabel = "cache_unloaded"
	// IrrecoverableFailureCounterLabel tracks how many keys were marked as not loadable.
	IrrecoverableFailureCounterLabel = "irrecoverable_failures"
	// InProgressGaugeLabel tracks the number of loads currently running.
	InProgressGaugeLabel = "in_progress"
	// BudgetInFlightGaugeLabel tracks the number of budget slots currently held.
	BudgetInFlightGaugeLabel = "budget_in_flight"
	// DecodeQueueSizeGaugeLabel tracks the current size of the decode queue.
	DecodeQueueSizeGaugeLabel = "decode_queue_size"
	// LoadDurationHistogramLabel tracks how long loads take.
	LoadDurationHistogramLabel = "load_duration_seconds"
	// Component is the name of the component registering these metrics.
	Component = "streamable"
)

const (
	// LoaderLabel is the name of the label carrying the loader or cache name.
	LoaderLabel = "loader"
	// OutcomeLabel is the name of the label carrying the load outcome category.
	OutcomeLabel = "outcome"
)

// CacheMissCounterTotal counts the number of times a cache miss occurred.
// [loader].
var CacheMissCounterTotal = metrics.MustRegisterCounterVec(
	metrics.Namespace,
	Component,
	CacheMissCounterLabel,
	"Number of times a cache miss occurred.",
	LoaderLabel,
)

// CacheHitCounterTotal counts the number of times a cache hit occurred.
// [loader].
var CacheHitCounterTotal = metrics.MustRegisterCounterVec(
	metrics.Namespace,
	Component,
	CacheHitCounterLabel,
	"Number of times a cache hit occurred.",
	LoaderLabel,
)

// CacheShareCounterTotal counts the number of times a promise joined a running load.
// [loader].
var CacheShareCounterTotal = metrics.MustRegisterCounterVec(
	metrics.Namespace,
	Component,
	CacheShareCounterLabel,
	"Number of times a promise joined a load that was already in flight.",
	LoaderLabel,
)

// CacheUnloadedCounterTotal counts idle entries dropped from caches.
// [loader].
var CacheUnloadedCounterTotal = metrics.MustRegisterCounterVec(
	metrics.Namespace,
	Component,
	CacheUnloadedCounterLabel,
	"Number of idle cache entries that were unloaded.",
	LoaderLabel,
)

// IrrecoverableFailureCounterTotal counts keys that were marked as not loadable.
// [loader].
var IrrecoverableFailureCounterTotal = metrics.MustRegisterCounterVec(
	metrics.Namespace,
	Component,
	IrrecoverableFailureCounterLabel,
	"Number of keys recorded as irrecoverable failures.",
	LoaderLabel,
)

// InProgressGauge tracks the number of loads currently running.
// [loader].
var InProgressGauge = metrics.MustRegisterGaugeVec(
	metrics.Namespace,
	Component,
	InProgressGaugeLabel,
	"Number of loads currently in progress.",
	LoaderLabel,
)

// BudgetInFlightGauge tracks the number of budget slots currently held.
var BudgetInFlightGauge = metrics.MustRegisterGauge(
	metrics.Namespace,
	Component,
	BudgetInFlightGaugeLabel,
	"Number of concurrency budget slots currently held.",
)

// DecodeQueueSizeGauge tracks the current size of the decode queue.
var DecodeQueueSizeGauge = metrics.MustRegisterGauge(
	metrics.Namespace,
	Component,
	DecodeQueueSizeGaugeLabel,
	"Current size of the decode work queue.",
)

// LoadDurationHistogram tracks the duration of loads.
// [loader, outcome].
var LoadDurationHistogram = metrics.MustRegisterHistogramVec(
	metrics.Namespace,
	Component,
	LoadDurationHistogramLabel,
	"Duration of loads in seconds.",
	[]float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	LoaderLabel, OutcomeLabel,
)
