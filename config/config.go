// Package config loads the YAML training configuration used by cmd/sgdkit.
package config

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
)

// Model kinds understood by the CLI.
const (
	ModelLinear   = "linear"
	ModelLogistic = "logistic"
	ModelKNN      = "knn"
	ModelTree     = "tree"
	ModelPCA      = "pca"
	ModelKMeans   = "kmeans"
)

// TrainConfig is the root of the YAML file.
type TrainConfig struct {
	Data     DataConfig     `yaml:"data"`
	Model    ModelConfig    `yaml:"model"`
	Training TrainingConfig `yaml:"training"`
	Output   OutputConfig   `yaml:"output"`
	Log      LogConfig      `yaml:"log"`
}

// DataConfig はCSV入力と分割の設定
type DataConfig struct {
	Path        string   `yaml:"path"`
	Features    []string `yaml:"features"` // 空なら target 以外の全列
	Target      string   `yaml:"target"`
	TestSize    float64  `yaml:"test_size"`
	Seed        int64    `yaml:"seed"`
	Standardize bool     `yaml:"standardize"`
}

// ModelConfig selects the model and its structural hyperparameters.
type ModelConfig struct {
	Kind        string `yaml:"kind"`
	K           int    `yaml:"k"` // knn の近傍数 / kmeans のクラスタ数
	MaxDepth    int    `yaml:"max_depth"`
	Criterion   string `yaml:"criterion"`
	NComponents int    `yaml:"n_components"`
	Solver      string `yaml:"solver"`
}

// TrainingConfig holds the gradient descent settings.
type TrainingConfig struct {
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batch_size"`
	LearningRate float64 `yaml:"learning_rate"`
	DecayRate    float64 `yaml:"decay_rate"`
	StepSize     int     `yaml:"step_size"`
	Shuffle      bool    `yaml:"shuffle"`
	Scheduler    string  `yaml:"scheduler"`
	Verbose      bool    `yaml:"verbose"`
}

// OutputConfig は成果物の出力先。空文字なら書き出さない。
type OutputConfig struct {
	WeightsPath string `yaml:"weights_path"`
	PlotPath    string `yaml:"plot_path"`
}

// LogConfig is passed to log.SetupLogger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *TrainConfig {
	return &TrainConfig{
		Data: DataConfig{
			TestSize:    0.2,
			Seed:        42,
			Standardize: true,
		},
		Model: ModelConfig{
			Kind:        ModelLinear,
			K:           3,
			MaxDepth:    -1,
			Criterion:   "gini",
			NComponents: 2,
			Solver:      "sgd",
		},
		Training: TrainingConfig{
			Epochs:       1000,
			BatchSize:    32,
			LearningRate: 0.01,
			DecayRate:    0.01,
			StepSize:     100,
			Shuffle:      true,
			Scheduler:    "exponential",
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path and overlays it on Default. The result is validated.
func Load(path string) (*TrainConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open config %s", path)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML from r over Default and validates it. Unknown keys are
// rejected.
func Parse(r io.Reader) (*TrainConfig, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	// 空ファイル (コメントのみを含む) は io.EOF になる
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges and enumerations. Data.Path and Data.Target
// are not required here since flags may still supply them.
func (c *TrainConfig) Validate() error {
	if c.Data.TestSize < 0 || c.Data.TestSize >= 1 {
		return errors.NewValidationError("data.test_size", "must be in [0, 1)", c.Data.TestSize)
	}

	switch c.Model.Kind {
	case ModelLinear, ModelLogistic, ModelKNN, ModelTree, ModelPCA, ModelKMeans:
	default:
		return errors.NewValidationError("model.kind",
			"must be one of linear, logistic, knn, tree, pca, kmeans", c.Model.Kind)
	}
	if (c.Model.Kind == ModelKNN || c.Model.Kind == ModelKMeans) && c.Model.K <= 0 {
		return errors.NewValidationError("model.k", "must be positive", c.Model.K)
	}
	if c.Model.Kind == ModelPCA && c.Model.NComponents <= 0 {
		return errors.NewValidationError("model.n_components", "must be positive", c.Model.NComponents)
	}
	if c.Model.Criterion != "gini" && c.Model.Criterion != "entropy" {
		return errors.NewValidationError("model.criterion", "must be one of gini, entropy", c.Model.Criterion)
	}
	if c.Model.Solver != "sgd" && c.Model.Solver != "normal" {
		return errors.NewValidationError("model.solver", "must be one of sgd, normal", c.Model.Solver)
	}

	t := c.Training
	if t.Epochs <= 0 {
		return errors.NewValidationError("training.epochs", "must be positive", t.Epochs)
	}
	if t.BatchSize <= 0 {
		return errors.NewValidationError("training.batch_size", "must be positive", t.BatchSize)
	}
	if t.LearningRate <= 0 {
		return errors.NewValidationError("training.learning_rate", "must be positive", t.LearningRate)
	}
	if t.DecayRate < 0 {
		return errors.NewValidationError("training.decay_rate", "must be non-negative", t.DecayRate)
	}
	switch t.Scheduler {
	case "constant", "exponential":
	case "step":
		if t.StepSize <= 0 {
			return errors.NewValidationError("training.step_size", "must be positive", t.StepSize)
		}
	default:
		return errors.NewValidationError("training.scheduler",
			"must be one of constant, exponential, step", t.Scheduler)
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != log.FormatConsole && c.Log.Format != log.FormatJSON {
		return errors.NewValidationError("log.format", "must be one of console, json", c.Log.Format)
	}
	return nil
}
