// Package cluster provides k-means clustering.
package cluster

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/core/parallel"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// Initialisation methods.
const (
	InitRandom   = "random"
	InitKMeansPP = "k-means++"
)

// 収束判定: セントロイド移動量のノルム
const defaultTol = 1e-6

// 割り当てを並列化する行数の閾値
const parallelThreshold = 1000

// KMeans は Lloyd 法による K-means クラスタリング
type KMeans struct {
	state *model.StateManager
	mu    sync.RWMutex

	// ハイパーパラメータ
	nClusters   int    // クラスタ数
	maxIter     int    // 最大イテレーション数
	init        string // 初期化方法: "k-means++", "random"
	randomState int64  // 乱数シード（負なら時刻から）
	tol         float64

	// 学習パラメータ
	centroids [][]float64 // nClusters x nFeatures
	labels    []int
	inertia   float64
	nIter     int
}

var _ model.Model = (*KMeans)(nil)

// Option は KMeans の設定オプション
type Option func(*KMeans)

// WithNClusters はクラスタ数を設定 (default 3)
func WithNClusters(n int) Option {
	return func(km *KMeans) { km.nClusters = n }
}

// WithMaxIter は最大イテレーション数を設定 (default 100)
func WithMaxIter(n int) Option {
	return func(km *KMeans) { km.maxIter = n }
}

// WithInit は初期化方法を設定 ("random" または "k-means++")
func WithInit(init string) Option {
	return func(km *KMeans) { km.init = init }
}

// WithRandomState は乱数シードを設定。同じシードなら Fit の結果は同じになる。
func WithRandomState(seed int64) Option {
	return func(km *KMeans) { km.randomState = seed }
}

// WithTol は収束判定の許容誤差を設定
func WithTol(tol float64) Option {
	return func(km *KMeans) { km.tol = tol }
}

// NewKMeans は新しい KMeans を作成
func NewKMeans(opts ...Option) (*KMeans, error) {
	km := &KMeans{
		state:       model.NewStateManager(),
		nClusters:   3,
		maxIter:     100,
		init:        InitRandom,
		randomState: -1,
		tol:         defaultTol,
	}
	for _, opt := range opts {
		opt(km)
	}
	if km.nClusters <= 0 {
		return nil, errors.NewValidationError("n_clusters", "number of clusters must be positive", km.nClusters)
	}
	if km.maxIter <= 0 {
		return nil, errors.NewValidationError("max_iter", "maximum iterations must be positive", km.maxIter)
	}
	if km.init != InitRandom && km.init != InitKMeansPP {
		return nil, errors.NewValidationError("init", "must be one of random, k-means++", km.init)
	}
	if km.tol < 0 {
		return nil, errors.NewValidationError("tol", "must be non-negative", km.tol)
	}
	return km, nil
}

// Fit はデータをクラスタリングする。目的変数は使わない。
func (km *KMeans) Fit(ds *dataset.Dataset) error {
	if ds == nil || ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return errors.NewModelError("KMeans.Fit", "empty data", errors.ErrEmptyData)
	}
	if ds.Rows() < km.nClusters {
		return errors.NewValidationError("n_clusters",
			"number of samples must be at least the number of clusters", km.nClusters)
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	X := toRows(ds.Features())
	seed := km.randomState
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	centroids := km.initializeCenters(X, rng)
	labels := make([]int, len(X))
	iter := 0
	for iter < km.maxIter {
		iter++
		assign(X, centroids, labels)
		next := updateCentroids(X, labels, centroids)

		var shift float64
		for c := range next {
			d := floats.Distance(next[c], centroids[c], 2)
			shift += d * d
		}
		centroids = next
		if math.Sqrt(shift) < km.tol {
			break
		}
	}

	km.centroids = centroids
	km.labels = labels
	km.inertia = assign(X, centroids, labels)
	km.nIter = iter
	km.state.SetDimensions(ds.NumFeatures(), ds.Rows())
	km.state.SetFitted()
	return nil
}

// Predict は各行に最も近いセントロイドのラベルを float として返す
func (km *KMeans) Predict(X mat.Matrix) (*mat.VecDense, error) {
	if err := km.state.RequireFitted("KMeans", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := km.state.RequireFeatures("KMeans.Predict", c); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, errors.NewValueError("KMeans.Predict", "no rows to predict")
	}

	km.mu.RLock()
	defer km.mu.RUnlock()
	labels := make([]int, r)
	assign(toRows(X), km.centroids, labels)
	out := mat.NewVecDense(r, nil)
	for i, l := range labels {
		out.SetVec(i, float64(l))
	}
	return out, nil
}

// Centroids はクラスタ中心（nClusters x nFeatures）のコピーを返す
func (km *KMeans) Centroids() *mat.Dense {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.centroids == nil {
		return nil
	}
	out := mat.NewDense(len(km.centroids), len(km.centroids[0]), nil)
	for i, c := range km.centroids {
		out.SetRow(i, c)
	}
	return out
}

// Labels は訓練データの各サンプルのクラスタラベルを返す
func (km *KMeans) Labels() []int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return append([]int(nil), km.labels...)
}

// Inertia はクラスタ内平方和誤差を返す
func (km *KMeans) Inertia() float64 {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.inertia
}

// NIter は実行されたイテレーション数を返す
func (km *KMeans) NIter() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.nIter
}

// UpdateParameters is not supported: centroids are not trained by gradients.
func (km *KMeans) UpdateParameters(mat.Vector, float64) error {
	return errors.NewUnsupportedOperationError("KMeans", "UpdateParameters")
}

func (km *KMeans) Name() string { return "KMeans" }

func (km *KMeans) Description() string {
	return "KMeans is a clustering algorithm that partitions the data into k clusters."
}

func (km *KMeans) Formula() string {
	return "argmin_S sum_{i=1}^k sum_{x in S_i} ||x - mu_i||^2"
}

func (km *KMeans) GradientFormula() string {
	return "Not applicable - KMeans is not a gradient-based algorithm"
}

// initializeCenters はクラスタ中心を初期化
func (km *KMeans) initializeCenters(X [][]float64, rng *rand.Rand) [][]float64 {
	if km.init == InitKMeansPP {
		return initKMeansPlusPlus(X, km.nClusters, rng)
	}
	// 重複しないサンプルをランダムに選ぶ
	perm := rng.Perm(len(X))
	centers := make([][]float64, km.nClusters)
	for i := range centers {
		centers[i] = append([]float64(nil), X[perm[i]]...)
	}
	return centers
}

// initKMeansPlusPlus は k-means++ 初期化を実行
func initKMeansPlusPlus(X [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), X[rng.Intn(len(X))]...))

	distances := make([]float64, len(X))
	for len(centers) < k {
		// 各サンプルから最近傍クラスタ中心までの距離の二乗
		total := 0.0
		for i, x := range X {
			_, d := nearest(x, centers)
			distances[i] = d
			total += d
		}

		selected := 0
		if total > 0 {
			target := rng.Float64() * total
			cumSum := 0.0
			for i, d := range distances {
				cumSum += d
				if cumSum >= target {
					selected = i
					break
				}
			}
		} else {
			selected = rng.Intn(len(X))
		}
		centers = append(centers, append([]float64(nil), X[selected]...))
	}
	return centers
}

// nearest は最も近い中心のインデックスと距離の二乗を返す
func nearest(x []float64, centers [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, center := range centers {
		d := floats.Distance(x, center, 2)
		if d*d < bestDist {
			best, bestDist = c, d*d
		}
	}
	return best, bestDist
}

// assign は labels を更新し、慣性（平方和誤差）を返す
func assign(X [][]float64, centers [][]float64, labels []int) float64 {
	dists := make([]float64, len(X))
	parallel.ParallelizeWithThreshold(len(X), parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			labels[i], dists[i] = nearest(X[i], centers)
		}
	})
	return floats.Sum(dists)
}

// updateCentroids は各クラスタの平均を新しい中心とする。
// 空のクラスタは前回の中心を保持する。
func updateCentroids(X [][]float64, labels []int, prev [][]float64) [][]float64 {
	k, d := len(prev), len(prev[0])
	next := make([][]float64, k)
	counts := make([]int, k)
	for c := range next {
		next[c] = make([]float64, d)
	}
	for i, x := range X {
		floats.Add(next[labels[i]], x)
		counts[labels[i]]++
	}
	for c := range next {
		if counts[c] == 0 {
			copy(next[c], prev[c])
			continue
		}
		floats.Scale(1/float64(counts[c]), next[c])
	}
	return next
}

func toRows(X mat.Matrix) [][]float64 {
	r, _ := X.Dims()
	rows := make([][]float64, r)
	for i := range rows {
		rows[i] = mat.Row(nil, i, X)
	}
	return rows
}
