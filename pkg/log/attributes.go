// Standard attribute keys for training and inference logs.
//
// Keys follow a hierarchical naming convention ("training.epoch",
// "metrics.loss") so log pipelines can filter on prefixes.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of model. Examples: "LinearRegression", "PCA"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "optimize", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is logging. Examples: "optim", "linear"
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// BatchSizeKey indicates the configured mini-batch size.
	BatchSizeKey = "data.batch_size"

	// PathKey records the file a dataset or artifact was read from or written to.
	PathKey = "data.path"
)

// Training progress
const (
	// EpochKey records the current epoch number (0-based).
	EpochKey = "training.epoch"

	// EpochsKey records the total number of epochs of a run.
	EpochsKey = "training.epochs"

	// BatchKey records the index of the mini-batch inside an epoch.
	BatchKey = "training.batch"

	// SkippedBatchesKey counts batches whose update was skipped in an epoch.
	SkippedBatchesKey = "training.skipped_batches"

	// GradNormKey records the weight-gradient L2 norm before clipping.
	GradNormKey = "training.grad_norm"

	// ShuffleKey records whether rows are reshuffled every epoch.
	ShuffleKey = "training.shuffle"
)

// Metrics and timing
const (
	// LossKey records the loss value during training or evaluation.
	LossKey = "metrics.loss"

	// AccuracyKey records classification accuracy in [0, 1].
	AccuracyKey = "metrics.accuracy"

	// R2ScoreKey records the R² coefficient of determination.
	R2ScoreKey = "metrics.r2_score"

	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"
)

// Hyperparameters
const (
	// LearningRateKey records the learning rate of a gradient step.
	LearningRateKey = "hyperparams.learning_rate"

	// SchedulerKey records the learning-rate scheduler in use.
	SchedulerKey = "hyperparams.scheduler"

	// LossFunctionKey records the loss function in use.
	LossFunctionKey = "hyperparams.loss"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"
)

// Error context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey provides a hint for resolving an issue.
	SuggestionKey = "error.suggestion"
)

// Standard attribute values.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationOptimize  = "optimize"
	OperationTransform = "transform"
	OperationScore     = "score"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
