// Package neighbors provides k-nearest-neighbours regression.
package neighbors

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/core/parallel"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// 並列予測の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 256

// KNearestNeighbors は k 近傍回帰モデル
// 予測値はユークリッド距離で最も近い k 個の訓練サンプルの目的変数の平均
type KNearestNeighbors struct {
	state *model.StateManager
	k     int

	rows [][]float64 // 訓練データ（行ごとのコピー）
	y    []float64
}

var _ model.Model = (*KNearestNeighbors)(nil)

// NewKNearestNeighbors creates a regressor averaging the k nearest targets.
func NewKNearestNeighbors(k int) (*KNearestNeighbors, error) {
	if k <= 0 {
		return nil, errors.NewValidationError("k", "number of neighbors must be a positive integer", k)
	}
	return &KNearestNeighbors{state: model.NewStateManager(), k: k}, nil
}

// K returns the number of neighbours.
func (m *KNearestNeighbors) K() int { return m.k }

// Fit は訓練データをコピーして保持する
func (m *KNearestNeighbors) Fit(ds *dataset.Dataset) error {
	if ds == nil || ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return errors.NewModelError("KNearestNeighbors.Fit", "empty data", errors.ErrEmptyData)
	}
	n := ds.Rows()
	m.rows = make([][]float64, n)
	m.y = make([]float64, n)
	X := ds.Features()
	for i := 0; i < n; i++ {
		m.rows[i] = mat.Row(nil, i, X)
		m.y[i] = ds.Target(i)
	}
	m.state.SetDimensions(ds.NumFeatures(), n)
	m.state.SetFitted()
	return nil
}

// Predict は X の各行について近傍平均を返す。行数が閾値を超えると並列に計算する。
func (m *KNearestNeighbors) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if err := m.state.RequireFitted("KNearestNeighbors", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := m.state.RequireFeatures("KNearestNeighbors.Predict", c); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, errors.NewValueError("KNearestNeighbors.Predict", "no rows to predict")
	}

	out := make([]float64, r)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		buf := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(buf, i, X)
			out[i] = m.predictRow(buf)
		}
	})
	return mat.NewVecDense(r, out), nil
}

type neighbor struct {
	dist float64
	idx  int
}

// predictRow は1行分の予測。距離が等しい場合は訓練データ上の順序で決める。
func (m *KNearestNeighbors) predictRow(x []float64) float64 {
	neighbors := make([]neighbor, len(m.rows))
	for i, row := range m.rows {
		neighbors[i] = neighbor{dist: floats.Distance(x, row, 2), idx: i}
	}
	sort.Slice(neighbors, func(a, b int) bool {
		if neighbors[a].dist != neighbors[b].dist {
			return neighbors[a].dist < neighbors[b].dist
		}
		return neighbors[a].idx < neighbors[b].idx
	})

	k := min(m.k, len(neighbors))
	var sum float64
	for _, nb := range neighbors[:k] {
		sum += m.y[nb.idx]
	}
	return sum / float64(k)
}

// UpdateParameters is not supported: the model has no learnable parameters.
func (m *KNearestNeighbors) UpdateParameters(mat.Vector, float64) error {
	return errors.NewUnsupportedOperationError("KNearestNeighbors", "UpdateParameters")
}

func (m *KNearestNeighbors) Name() string { return "KNearestNeighbors" }

func (m *KNearestNeighbors) Description() string { return "K-Nearest Neighbors regression model." }

func (m *KNearestNeighbors) Formula() string { return "y = mean(y_neighbors) for k nearest neighbors" }

func (m *KNearestNeighbors) GradientFormula() string { return "Not applicable for KNN" }
