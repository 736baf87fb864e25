// This file contains predefined attribute keys that keep log records
// consistent across all tabflow stages.
//
// Keys follow a hierarchical naming convention (e.g. "model.name",
// "data.samples") to enable structured log analysis and filtering.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "random_forest", "svr", "StandardScaler"
	ModelNameKey = "model.name"

	// TaskKey identifies the learning task ("classification" or "regression").
	TaskKey = "model.task"

	// OperationKey specifies the machine learning operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	ComponentKey = "ml.component"
)

// Pipeline Context
const (
	// StageKey names the pipeline stage ("dataset", "features", "train", "predict", "plots").
	StageKey = "pipeline.stage"

	// StatusKey records a stage outcome as reported by the orchestrator.
	StatusKey = "pipeline.status"

	// ArtifactPathKey records a file produced or consumed by a stage.
	ArtifactPathKey = "artifact.path"

	// SourceKey describes where a dataset was fetched from.
	SourceKey = "data.source"

	// TargetKey names the target column resolved by the features stage.
	TargetKey = "data.target"

	// RunIDKey identifies an experiment tracking run.
	RunIDKey = "tracking.run_id"

	// ExperimentKey names an experiment tracking experiment.
	ExperimentKey = "tracking.experiment"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// ClassesKey indicates the number of distinct class labels.
	ClassesKey = "data.classes"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AccuracyKey records model accuracy for evaluation operations.
	AccuracyKey = "metrics.accuracy"

	// R2ScoreKey records R² coefficient of determination for regression.
	R2ScoreKey = "metrics.r2_score"

	// IterationKey records the current iteration number during iterative processes.
	IterationKey = "training.iteration"
)

// Error and Warning Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	// Populated by the zerolog backend from cockroachdb/errors details.
	StacktraceKey = "error.stacktrace"
)

// Hyperparameters and Configuration
const (
	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Standard attribute value constants.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"
)
