// Package sgdkit is a small machine learning toolkit for Go built on gonum
// dense matrices, centred on a generic mini-batch gradient descent engine.
//
// Gradient-trained models (linear and logistic regression) expose their
// parameters through the core/model contract, and the optim package drives
// them with any loss.Loss and schedule.Scheduler. Non-gradient models
// (decision tree, k-nearest-neighbours, k-means, PCA) share the same
// prediction interface but refuse parameter updates.
//
// # Installation
//
//	go get github.com/YuminosukeSato/sgdkit
//
// # Quick Start
//
//	X := mat.NewDense(4, 2, []float64{
//	    1, 2,
//	    2, 1,
//	    3, 3,
//	    0, 1,
//	})
//	y := mat.NewVecDense(4, []float64{3, 3, 6, 1})
//	ds, err := dataset.New(X, y)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	model, err := linear.NewLinearRegression(
//	    linear.WithLearningRate(0.1),
//	    linear.WithEpochs(200),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := model.Fit(ds); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(model.Weights(), model.Intercept())
//
// Driving the engine directly:
//
//	gd, _ := optim.NewGradientDescent(optim.WithShuffle(false))
//	err = gd.Optimize(model, ds, loss.MeanSquaredError{}, schedule.NewConstant(0.1), 200, 4)
//
// # Packages
//
//   - dataset: immutable feature/target container, shuffling, slicing, CSV loading
//   - loss: MeanSquaredError, CrossEntropy, BinaryCrossEntropy
//   - schedule: Constant, ExponentialDecay, StepDecay learning rates
//   - optim: GradientDescent (mini-batch SGD), batching helpers, grid search
//   - core/model: Predictor / ParameterUpdater / Model contracts, weight persistence
//   - core/parallel: parallel row processing
//   - linear: LinearRegression, LogisticRegression
//   - tree, neighbors, cluster, decomposition: non-gradient models
//   - metrics, preprocessing: evaluation metrics and scalers
//   - report: loss curve plots
//   - config, cmd/sgdkit: YAML-configured command line trainer
//   - pkg/errors, pkg/log: structured errors and logging
//
// # License
//
// sgdkit is released under the MIT License.
package sgdkit
