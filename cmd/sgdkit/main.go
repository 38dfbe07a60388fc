// Command sgdkit trains a model on a CSV file and reports its metrics.
//
//	sgdkit -data houses.csv -target price -model linear -epochs 500
//	sgdkit -config train.yaml -log-level debug
//
// Flags override the values read from -config.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/cluster"
	"github.com/YuminosukeSato/sgdkit/config"
	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/decomposition"
	"github.com/YuminosukeSato/sgdkit/linear"
	"github.com/YuminosukeSato/sgdkit/metrics"
	"github.com/YuminosukeSato/sgdkit/neighbors"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
	"github.com/YuminosukeSato/sgdkit/pkg/log"
	"github.com/YuminosukeSato/sgdkit/preprocessing"
	"github.com/YuminosukeSato/sgdkit/report"
	"github.com/YuminosukeSato/sgdkit/schedule"
	"github.com/YuminosukeSato/sgdkit/tree"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		slog.Error("sgdkit failed", log.ErrAttr(err))
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := parseFlags(args)
	if err != nil {
		return err
	}
	if err := log.SetupLogger(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("sgdkit")

	train, test, err := loadData(cfg)
	if err != nil {
		return err
	}
	logger.Info("Dataset loaded",
		log.PathKey, cfg.Data.Path,
		log.SamplesKey, train.Rows(),
		log.FeaturesKey, train.NumFeatures(),
		log.RandomSeedKey, cfg.Data.Seed,
		"test_samples", test.Rows(),
	)

	m, err := buildModel(cfg)
	if err != nil {
		return err
	}
	if err := m.Fit(train); err != nil {
		return errors.Wrapf(err, "failed to fit %s", m.Name())
	}

	fmt.Fprintf(stdout, "Model: %s\n", m.Name())
	if err := evaluate(stdout, m, test); err != nil {
		return err
	}
	if lm, ok := m.(model.LinearModel); ok {
		printWeights(stdout, train.FeatureNames(), lm)
	}
	return writeOutputs(cfg, m, logger)
}

// parseFlags は -config を読み込み、明示的に指定されたフラグだけで上書きする
func parseFlags(args []string) (*config.TrainConfig, error) {
	fs := flag.NewFlagSet("sgdkit", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	dataPath := fs.String("data", "", "CSV file with a header row")
	target := fs.String("target", "", "target column name")
	kind := fs.String("model", "", "linear, logistic, knn, tree, pca or kmeans")
	epochs := fs.Int("epochs", 0, "training epochs")
	level := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "failed to parse flags")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "data":
			cfg.Data.Path = *dataPath
		case "target":
			cfg.Data.Target = *target
		case "model":
			cfg.Model.Kind = *kind
		case "epochs":
			cfg.Training.Epochs = *epochs
		case "log-level":
			cfg.Log.Level = *level
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Data.Path == "" {
		return nil, errors.NewValidationError("data.path", "is required", cfg.Data.Path)
	}
	if cfg.Data.Target == "" {
		return nil, errors.NewValidationError("data.target", "is required", cfg.Data.Target)
	}
	return cfg, nil
}

// loadData reads the CSV, splits it and standardises the features with
// statistics from the training part only. A test size of 0 evaluates on the
// training data.
func loadData(cfg *config.TrainConfig) (train, test *dataset.Dataset, err error) {
	loader := dataset.NewCSVLoader(',')
	if err := loader.LoadFile(cfg.Data.Path); err != nil {
		return nil, nil, err
	}
	ds, err := loader.ToDataset(cfg.Data.Features, cfg.Data.Target)
	if err != nil {
		return nil, nil, err
	}

	train, test = ds, ds
	if cfg.Data.TestSize > 0 {
		if train, test, err = ds.TrainTestSplit(cfg.Data.TestSize, cfg.Data.Seed); err != nil {
			return nil, nil, err
		}
	}
	if !cfg.Data.Standardize {
		return train, test, nil
	}

	scaled, scaler, err := preprocessing.StandardizeDataset(train)
	if err != nil {
		return nil, nil, err
	}
	if test, err = applyTransform(scaler, test); err != nil {
		return nil, nil, err
	}
	return scaled, test, nil
}

// applyTransform は学習済みの変換を ds の特徴量に適用する
func applyTransform(tr model.Transformer, ds *dataset.Dataset) (*dataset.Dataset, error) {
	X, err := tr.Transform(ds.Features())
	if err != nil {
		return nil, err
	}
	return ds.WithColumns(X)
}

func buildModel(cfg *config.TrainConfig) (model.Model, error) {
	tc, mc := cfg.Training, cfg.Model
	switch mc.Kind {
	case config.ModelLinear:
		return linear.NewLinearRegression(
			linear.WithLearningRate(tc.LearningRate),
			linear.WithEpochs(tc.Epochs),
			linear.WithBatchSize(tc.BatchSize),
			linear.WithDecayRate(tc.DecayRate),
			linear.WithShuffle(tc.Shuffle),
			linear.WithSolver(mc.Solver),
			linear.WithVerbose(tc.Verbose),
		)
	case config.ModelLogistic:
		lg, err := linear.NewLogisticRegression(
			linear.WithLearningRate(tc.LearningRate),
			linear.WithEpochs(tc.Epochs),
			linear.WithBatchSize(tc.BatchSize),
			linear.WithShuffle(tc.Shuffle),
			linear.WithVerbose(tc.Verbose),
		)
		if err != nil {
			return nil, err
		}
		if tc.Scheduler == "constant" {
			return lg, nil
		}
		s, err := schedule.New(tc.Scheduler, tc.LearningRate, tc.DecayRate, tc.StepSize)
		if err != nil {
			return nil, err
		}
		return &scheduledLogistic{LogisticRegression: lg, sched: s, epochs: tc.Epochs, batch: tc.BatchSize}, nil
	case config.ModelKNN:
		return neighbors.NewKNearestNeighbors(mc.K)
	case config.ModelTree:
		return tree.NewDecisionTreeClassifier(tree.WithCriterion(mc.Criterion), tree.WithMaxDepth(mc.MaxDepth))
	case config.ModelPCA:
		return decomposition.NewPCA(mc.NComponents)
	case config.ModelKMeans:
		return cluster.NewKMeans(cluster.WithNClusters(mc.K), cluster.WithRandomState(cfg.Data.Seed))
	}
	return nil, errors.NewValidationError("model.kind", "unknown model", mc.Kind)
}

// scheduledLogistic trains a LogisticRegression through the gradient descent
// engine when a decaying learning rate is configured.
type scheduledLogistic struct {
	*linear.LogisticRegression
	sched  schedule.Scheduler
	epochs int
	batch  int
}

func (s *scheduledLogistic) Fit(ds *dataset.Dataset) error {
	return s.FitWithOptimizer(ds, nil, nil, s.sched, s.epochs, min(s.batch, ds.Rows()))
}

func evaluate(w io.Writer, m model.Model, test *dataset.Dataset) error {
	yTrue := test.Targets()
	switch m := m.(type) {
	case *scheduledLogistic:
		return evaluate(w, m.LogisticRegression, test)
	case *linear.LogisticRegression:
		proba, err := m.Predict(test.Features())
		if err != nil {
			return err
		}
		acc, err := metrics.Accuracy(yTrue, proba, m.Threshold())
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Accuracy: %.4f\n", acc)
		return printRegression(w, yTrue, proba)
	case *tree.DecisionTreeClassifier:
		acc, err := m.Score(test)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Accuracy: %.4f\nDepth: %d\nLeaves: %d\n", acc, m.Depth(), m.NLeaves())
		return nil
	case *cluster.KMeans:
		if _, err := m.Predict(test.Features()); err != nil {
			return err
		}
		fmt.Fprintf(w, "Inertia: %.4f\nIterations: %d\nCentroids:\n%v\n",
			m.Inertia(), m.NIter(), mat.Formatted(m.Centroids(), mat.Prefix("  ")))
		return nil
	case *decomposition.PCA:
		fmt.Fprintf(w, "Explained variance: %.4f\nExplained variance ratio: %.4f\n",
			m.ExplainedVariance(), m.ExplainedVarianceRatio())
		return nil
	}

	yPred, err := m.Predict(test.Features())
	if err != nil {
		return err
	}
	return printRegression(w, yTrue, yPred)
}

func printRegression(w io.Writer, yTrue, yPred mat.Vector) error {
	r, err := metrics.Regression(yTrue, yPred)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "MSE: %.4f\nRMSE: %.4f\nMAE: %.4f\nR2: %.4f\n", r.MSE, r.RMSE, r.MAE, r.R2)
	return nil
}

func printWeights(w io.Writer, names []string, lm model.LinearModel) {
	fmt.Fprintln(w, "Weights:")
	for i, v := range lm.Weights() {
		fmt.Fprintf(w, "  %s: %.6f\n", names[i], v)
	}
	fmt.Fprintf(w, "  intercept: %.6f\n", lm.Intercept())
}

type lossHistorian interface {
	LossHistory() []float64
}

func writeOutputs(cfg *config.TrainConfig, m model.Model, logger log.Logger) error {
	if path := cfg.Output.WeightsPath; path != "" {
		exp, ok := m.(model.WeightExporter)
		if !ok {
			logger.Warn("Model has no exportable weights, skipping", log.ModelNameKey, m.Name())
		} else {
			if err := model.SaveWeights(exp, path); err != nil {
				return err
			}
			logger.Info("Weights saved", "path", path)
		}
	}

	if path := cfg.Output.PlotPath; path != "" {
		h, ok := m.(lossHistorian)
		if !ok || len(h.LossHistory()) == 0 {
			logger.Warn("No loss history to plot, skipping", log.ModelNameKey, m.Name())
			return nil
		}
		if err := report.PlotLossCurve(h.LossHistory(), m.Name()+" training loss", path); err != nil {
			return err
		}
		logger.Info("Loss curve saved", "path", path)
	}
	return nil
}
