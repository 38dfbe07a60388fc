package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	body := `
data:
  path: houses.csv
  target: price
  features: [area, rooms]
  test_size: 0.25
model:
  kind: logistic
training:
  epochs: 50
  scheduler: constant
output:
  plot_path: loss.svg
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Data.Path != "houses.csv" || cfg.Data.Target != "price" {
		t.Errorf("data = %+v", cfg.Data)
	}
	if len(cfg.Data.Features) != 2 || cfg.Data.TestSize != 0.25 {
		t.Errorf("data = %+v", cfg.Data)
	}
	if cfg.Model.Kind != ModelLogistic || cfg.Training.Epochs != 50 {
		t.Errorf("model = %+v, training = %+v", cfg.Model, cfg.Training)
	}
	// 未指定のキーは既定値のまま
	if cfg.Training.BatchSize != 32 || cfg.Data.Seed != 42 || !cfg.Data.Standardize {
		t.Errorf("defaults lost: %+v %+v", cfg.Training, cfg.Data)
	}
	if cfg.Output.PlotPath != "loss.svg" || cfg.Log.Format != "json" {
		t.Errorf("output = %+v, log = %+v", cfg.Output, cfg.Log)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Kind != ModelLinear {
		t.Errorf("Kind = %q, want %q", cfg.Model.Kind, ModelLinear)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TrainConfig)
		param  string
	}{
		{"test size", func(c *TrainConfig) { c.Data.TestSize = 1 }, "data.test_size"},
		{"kind", func(c *TrainConfig) { c.Model.Kind = "svm" }, "model.kind"},
		{"knn k", func(c *TrainConfig) { c.Model.Kind = ModelKNN; c.Model.K = 0 }, "model.k"},
		{"components", func(c *TrainConfig) { c.Model.Kind = ModelPCA; c.Model.NComponents = 0 }, "model.n_components"},
		{"criterion", func(c *TrainConfig) { c.Model.Criterion = "mse" }, "model.criterion"},
		{"solver", func(c *TrainConfig) { c.Model.Solver = "lbfgs" }, "model.solver"},
		{"epochs", func(c *TrainConfig) { c.Training.Epochs = 0 }, "training.epochs"},
		{"batch", func(c *TrainConfig) { c.Training.BatchSize = -1 }, "training.batch_size"},
		{"rate", func(c *TrainConfig) { c.Training.LearningRate = 0 }, "training.learning_rate"},
		{"decay", func(c *TrainConfig) { c.Training.DecayRate = -0.1 }, "training.decay_rate"},
		{"scheduler", func(c *TrainConfig) { c.Training.Scheduler = "cosine" }, "training.scheduler"},
		{"step size", func(c *TrainConfig) { c.Training.Scheduler = "step"; c.Training.StepSize = 0 }, "training.step_size"},
		{"log level", func(c *TrainConfig) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *TrainConfig) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ve *errors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.ParamName != tt.param {
				t.Errorf("ParamName = %q, want %q", ve.ParamName, tt.param)
			}
		})
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse(strings.NewReader("model:\n  kind: linear\n  depth: 3\n")); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
