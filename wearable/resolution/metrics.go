package resolution

import (
	"ocm.software/open-component-model/streaming/internal/metrics"
)

const (
	// BatchesPublishedCounterLabel tracks how many batches published an outcome.
	BatchesPublishedCounterLabel = "batches_published"
	// DefaultSubstitutionCounterLabel tracks how many items were replaced with defaults.
	DefaultSubstitutionCounterLabel = "default_substitutions"
	// PendingTasksGaugeLabel tracks the loads the driver waits for.
	PendingTasksGaugeLabel = "pending_tasks"
	// BatchDurationHistogramLabel tracks how long batches take to publish.
	BatchDurationHistogramLabel = "batch_duration_seconds"
	// Component is the name of the component registering these metrics.
	Component = "resolution"
)

const (
	// OutcomeLabel is the name of the label carrying the batch outcome.
	OutcomeLabel = "outcome"
	// CategoryLabel is the name of the label carrying the wearable category.
	CategoryLabel = "category"
	// StageLabel is the name of the label carrying the pipeline stage.
	StageLabel = "stage"
)

const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeCancelled = "cancelled"

	stageDefinitions = "definitions"
	stageManifests   = "manifests"
	stageBundles     = "bundles"
)

// BatchesPublishedCounterTotal counts published batches.
// [outcome].
var BatchesPublishedCounterTotal = metrics.MustRegisterCounterVec(
	metrics.Namespace,
	Component,
	BatchesPublishedCounterLabel,
	"Number of batches that published an outcome.",
	OutcomeLabel,
)

// DefaultSubstitutionCounterTotal counts items replaced with defaults.
// [category].
var DefaultSubstitutionCounterTotal = metrics.MustRegisterCounterVec(
	metrics.Namespace,
	Component,
	DefaultSubstitutionCounterLabel,
	"Number of items replaced with default wearables.",
	CategoryLabel,
)

// PendingTasksGauge tracks the loads the driver is waiting for.
// [stage].
var PendingTasksGauge = metrics.MustRegisterGaugeVec(
	metrics.Namespace,
	Component,
	PendingTasksGaugeLabel,
	"Number of loads the resolution driver is waiting for.",
	StageLabel,
)

// BatchDurationHistogram tracks the time from request to publication.
// [outcome].
var BatchDurationHistogram = metrics.MustRegisterHistogramVec(
	metrics.Namespace,
	Component,
	BatchDurationHistogramLabel,
	"Time from batch request to publication in seconds.",
	[]float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	OutcomeLabel,
)
