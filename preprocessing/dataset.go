package preprocessing

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// StandardizeDataset は特徴量の各列を z-score に変換した新しい Dataset と、
// 学習済みのスケーラーを返す。標準偏差が ZeroVarianceThreshold 以下の列は
// 変換しない（スケーラー上も平均0・スケール1として記録される）。
func StandardizeDataset(ds *dataset.Dataset) (*dataset.Dataset, *StandardScaler, error) {
	if ds == nil || ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return nil, nil, errors.NewModelError("StandardizeDataset", "empty data", errors.ErrEmptyData)
	}

	X := ds.Features()
	scaler := NewStandardScalerDefault()
	if err := scaler.Fit(X); err != nil {
		return nil, nil, err
	}
	for j, constant := range scaler.constant {
		if constant {
			scaler.Mean[j] = 0
		}
	}

	XScaled, err := scaler.Transform(X)
	if err != nil {
		return nil, nil, err
	}
	out, err := ds.WithColumns(XScaled)
	if err != nil {
		return nil, nil, err
	}
	return out, scaler, nil
}

// StandardizeTargets は目的変数を z-score に変換した新しい Dataset と、
// 変換に使った平均・母標準偏差を返す。分散がほぼ0の場合は変換しない。
func StandardizeTargets(ds *dataset.Dataset) (out *dataset.Dataset, mean, std float64, err error) {
	if ds == nil || ds.Rows() == 0 {
		return nil, 0, 0, errors.NewModelError("StandardizeTargets", "empty data", errors.ErrEmptyData)
	}

	y := ds.Targets()
	mean, std = stat.PopMeanStdDev(y.RawVector().Data, nil)
	if std <= ZeroVarianceThreshold {
		return ds, mean, std, nil
	}

	scaled := mat.NewVecDense(y.Len(), nil)
	for i := 0; i < y.Len(); i++ {
		scaled.SetVec(i, (y.AtVec(i)-mean)/std)
	}
	out, err = ds.WithTargets(scaled)
	if err != nil {
		return nil, 0, 0, err
	}
	return out, mean, std, nil
}
