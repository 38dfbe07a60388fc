// Package decomposition provides principal component analysis.
package decomposition

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// PCA は共分散行列の固有値分解による主成分分析
type PCA struct {
	state       *model.StateManager
	nComponents int

	mean              []float64
	components        *mat.Dense // nComponents x nFeatures
	explainedVariance []float64
	totalVariance     float64
}

var (
	_ model.Model       = (*PCA)(nil)
	_ model.Transformer = (*PCA)(nil)
)

// NewPCA creates a PCA keeping nComponents principal axes.
func NewPCA(nComponents int) (*PCA, error) {
	if nComponents <= 0 {
		return nil, errors.NewValidationError("n_components", "must be positive", nComponents)
	}
	return &PCA{state: model.NewStateManager(), nComponents: nComponents}, nil
}

// Fit は特徴量を中心化し、標本共分散 (n-1 で割る) を固有値分解する。
// 目的変数は使わない。
func (p *PCA) Fit(ds *dataset.Dataset) error {
	if ds == nil || ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return errors.NewModelError("PCA.Fit", "empty data", errors.ErrEmptyData)
	}
	r, c := ds.Rows(), ds.NumFeatures()
	if p.nComponents > c {
		return errors.NewValidationError("n_components",
			"must not exceed the number of features", p.nComponents)
	}
	if r < 2 {
		return errors.NewValueError("PCA.Fit", "at least two samples are required")
	}

	X := ds.Features()
	mean := make([]float64, c)
	for j := 0; j < c; j++ {
		mean[j] = stat.Mean(mat.Col(nil, j, X), nil)
	}

	cov := mat.NewSymDense(c, nil)
	stat.CovarianceMatrix(cov, X, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, true); !ok {
		return errors.NewModelError("PCA.Fit", "eigendecomposition failed", errors.Newf("EigenSym did not converge on %dx%d covariance", c, c))
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// 固有値の降順
	order := make([]int, c)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	components := mat.NewDense(p.nComponents, c, nil)
	explained := make([]float64, p.nComponents)
	for k := 0; k < p.nComponents; k++ {
		axis := mat.Col(nil, order[k], &vectors)
		flipSign(axis)
		components.SetRow(k, axis)
		explained[k] = math.Max(values[order[k]], 0)
	}

	var total float64
	for _, v := range values {
		total += math.Max(v, 0)
	}

	p.mean = mean
	p.components = components
	p.explainedVariance = explained
	p.totalVariance = total
	p.state.SetDimensions(c, r)
	p.state.SetFitted()
	return nil
}

// flipSign は絶対値最大の要素が正になるよう符号を揃える
func flipSign(v []float64) {
	idx := 0
	for i := range v {
		if math.Abs(v[i]) > math.Abs(v[idx]) {
			idx = i
		}
	}
	if v[idx] < 0 {
		floats.Scale(-1, v)
	}
}

// Transform projects centred rows of X onto the principal axes.
func (p *PCA) Transform(X mat.Matrix) (*mat.Dense, error) {
	if err := p.state.RequireFitted("PCA", "Transform"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := p.state.RequireFeatures("PCA.Transform", c); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, errors.NewValueError("PCA.Transform", "input has no rows")
	}

	centred := mat.NewDense(r, c, nil)
	centred.Apply(func(_, j int, v float64) float64 { return v - p.mean[j] }, X)

	out := mat.NewDense(r, p.nComponents, nil)
	out.Mul(centred, p.components.T())
	return out, nil
}

// InverseTransform maps projected rows back to feature space.
func (p *PCA) InverseTransform(Z mat.Matrix) (*mat.Dense, error) {
	if err := p.state.RequireFitted("PCA", "InverseTransform"); err != nil {
		return nil, err
	}
	r, k := Z.Dims()
	if k != p.nComponents {
		return nil, errors.NewDimensionError("PCA.InverseTransform", p.nComponents, k, 1)
	}
	_, c := p.components.Dims()
	out := mat.NewDense(r, c, nil)
	out.Mul(Z, p.components)
	out.Apply(func(_, j int, v float64) float64 { return v + p.mean[j] }, out)
	return out, nil
}

// Predict は射影後の各行の L2 ノルムを返す
func (p *PCA) Predict(X mat.Matrix) (*mat.VecDense, error) {
	Z, err := p.Transform(X)
	if err != nil {
		return nil, err
	}
	r, _ := Z.Dims()
	out := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		out.SetVec(i, floats.Norm(Z.RawRowView(i), 2))
	}
	return out, nil
}

// Components returns a copy of the principal axes, one per row.
func (p *PCA) Components() *mat.Dense {
	if p.components == nil {
		return nil
	}
	return mat.DenseCopyOf(p.components)
}

// ExplainedVariance returns the eigenvalue of each kept component.
func (p *PCA) ExplainedVariance() []float64 {
	return append([]float64(nil), p.explainedVariance...)
}

// ExplainedVarianceRatio returns each kept eigenvalue divided by the total
// variance. All zeros when the data has no variance.
func (p *PCA) ExplainedVarianceRatio() []float64 {
	ratio := make([]float64, len(p.explainedVariance))
	if p.totalVariance <= 0 {
		return ratio
	}
	for i, v := range p.explainedVariance {
		ratio[i] = v / p.totalVariance
	}
	return ratio
}

// UpdateParameters is not supported: PCA has no gradient-trained parameters.
func (p *PCA) UpdateParameters(mat.Vector, float64) error {
	return errors.NewUnsupportedOperationError("PCA", "UpdateParameters")
}

func (p *PCA) Name() string { return "PCA" }

func (p *PCA) Description() string {
	return "Principal Component Analysis for dimensionality reduction"
}

func (p *PCA) Formula() string {
	return "X_transformed = (X - μ) * W, W = top eigenvectors of Cov(X)"
}

func (p *PCA) GradientFormula() string {
	return "N/A (closed-form eigendecomposition)"
}
