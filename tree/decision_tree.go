// Package tree provides a CART decision tree classifier.
package tree

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/core/model"
	"github.com/YuminosukeSato/sgdkit/dataset"
	"github.com/YuminosukeSato/sgdkit/metrics"
	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// Split criteria.
const (
	CriterionGini    = "gini"
	CriterionEntropy = "entropy"
)

// node は木のノード。葉でなければ x[feature] <= threshold で左に進む
type node struct {
	leaf      bool
	feature   int
	threshold float64
	left      *node
	right     *node

	// 葉のデータ
	proba     []float64 // classes に対応するクラス分布
	predIndex int       // 多数派クラスの classes 上のインデックス
}

// DecisionTreeClassifier は CART 方式の決定木分類器
type DecisionTreeClassifier struct {
	state *model.StateManager

	criterion       string
	maxDepth        int // -1 => 無制限
	minSamplesSplit int

	root    *node
	classes []float64 // 昇順のクラスラベル
}

var (
	_ model.Model  = (*DecisionTreeClassifier)(nil)
	_ model.Scorer = (*DecisionTreeClassifier)(nil)
)

// Option configures a DecisionTreeClassifier.
type Option func(*DecisionTreeClassifier)

// WithCriterion selects "gini" (default) or "entropy".
func WithCriterion(c string) Option {
	return func(t *DecisionTreeClassifier) { t.criterion = c }
}

// WithMaxDepth limits the depth of the tree (root depth = 0). -1 means unlimited.
func WithMaxDepth(d int) Option {
	return func(t *DecisionTreeClassifier) { t.maxDepth = d }
}

// WithMinSamplesSplit sets the minimum number of samples needed to split a node.
func WithMinSamplesSplit(n int) Option {
	return func(t *DecisionTreeClassifier) { t.minSamplesSplit = n }
}

// NewDecisionTreeClassifier returns a classifier with gini impurity, unlimited
// depth and a minimum of 2 samples per split.
func NewDecisionTreeClassifier(opts ...Option) (*DecisionTreeClassifier, error) {
	t := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       CriterionGini,
		maxDepth:        -1,
		minSamplesSplit: 2,
	}
	for _, o := range opts {
		o(t)
	}
	if t.criterion != CriterionGini && t.criterion != CriterionEntropy {
		return nil, errors.NewValidationError("criterion", "must be one of gini, entropy", t.criterion)
	}
	if t.maxDepth < -1 {
		return nil, errors.NewValidationError("max_depth", "must be -1 (unlimited) or non-negative", t.maxDepth)
	}
	if t.minSamplesSplit < 2 {
		return nil, errors.NewValidationError("min_samples_split", "must be at least 2", t.minSamplesSplit)
	}
	return t, nil
}

// Fit は訓練データから木を構築する。目的変数はクラスラベルとして扱う。
func (t *DecisionTreeClassifier) Fit(ds *dataset.Dataset) error {
	if ds == nil || ds.Rows() == 0 || ds.NumFeatures() == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	n := ds.Rows()

	// クラス一覧（昇順）とラベルのインデックス
	seen := map[float64]bool{}
	t.classes = t.classes[:0]
	for i := 0; i < n; i++ {
		c := ds.Target(i)
		if math.IsNaN(c) {
			return errors.NewValueError("DecisionTreeClassifier.Fit", "target contains NaN")
		}
		if !seen[c] {
			seen[c] = true
			t.classes = append(t.classes, c)
		}
	}
	sort.Float64s(t.classes)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = sort.SearchFloat64s(t.classes, ds.Target(i))
	}

	b := &builder{tree: t, ds: ds, labels: labels}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	t.root = b.build(idx, 0)
	t.state.SetDimensions(ds.NumFeatures(), n)
	t.state.SetFitted()
	return nil
}

type builder struct {
	tree   *DecisionTreeClassifier
	ds     *dataset.Dataset
	labels []int
}

func (b *builder) counts(idx []int) []float64 {
	counts := make([]float64, len(b.tree.classes))
	for _, i := range idx {
		counts[b.labels[i]]++
	}
	return counts
}

func (b *builder) leaf(counts []float64, n int) *node {
	nd := &node{leaf: true, proba: make([]float64, len(counts))}
	best := 0
	for c, cnt := range counts {
		nd.proba[c] = cnt / float64(n)
		if cnt > counts[best] {
			best = c
		}
	}
	nd.predIndex = best
	return nd
}

func (b *builder) build(idx []int, depth int) *node {
	counts := b.counts(idx)
	impurity := b.tree.impurity(counts, len(idx))

	if impurity == 0 || len(idx) < b.tree.minSamplesSplit ||
		(b.tree.maxDepth >= 0 && depth >= b.tree.maxDepth) {
		return b.leaf(counts, len(idx))
	}

	feature, threshold, score, ok := b.bestSplit(idx)
	if !ok || score >= impurity-1e-12 {
		return b.leaf(counts, len(idx))
	}

	var left, right []int
	for _, i := range idx {
		if b.ds.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &node{
		feature:   feature,
		threshold: threshold,
		left:      b.build(left, depth+1),
		right:     b.build(right, depth+1),
	}
}

// bestSplit はソート済みのユニーク値の中点を閾値候補とし、
// 重み付き不純度が最小となる分割を探す
func (b *builder) bestSplit(idx []int) (feature int, threshold, score float64, ok bool) {
	n := len(idx)
	nClasses := len(b.tree.classes)
	score = math.Inf(1)
	sorted := make([]int, n)

	for f := 0; f < b.ds.NumFeatures(); f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.ds.At(sorted[a], f) < b.ds.At(sorted[c], f)
		})

		left := make([]float64, nClasses)
		right := b.counts(sorted)
		for k := 0; k < n-1; k++ {
			lab := b.labels[sorted[k]]
			left[lab]++
			right[lab]--

			v, next := b.ds.At(sorted[k], f), b.ds.At(sorted[k+1], f)
			if v == next {
				continue
			}
			nl, nr := k+1, n-k-1
			s := (float64(nl)*b.tree.impurity(left, nl) + float64(nr)*b.tree.impurity(right, nr)) / float64(n)
			if s < score {
				feature, threshold, score, ok = f, (v+next)/2, s, true
			}
		}
	}
	return feature, threshold, score, ok
}

func (t *DecisionTreeClassifier) impurity(counts []float64, n int) float64 {
	if n == 0 {
		return 0
	}
	var sum float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := c / float64(n)
		if t.criterion == CriterionEntropy {
			sum -= p * math.Log2(p)
		} else {
			sum += p * p
		}
	}
	if t.criterion == CriterionEntropy {
		return sum
	}
	return 1 - sum
}

func (t *DecisionTreeClassifier) leafFor(x []float64) *node {
	nd := t.root
	for !nd.leaf {
		if x[nd.feature] <= nd.threshold {
			nd = nd.left
		} else {
			nd = nd.right
		}
	}
	return nd
}

func (t *DecisionTreeClassifier) checkInput(op string, X mat.Matrix) (int, int, error) {
	if err := t.state.RequireFitted("DecisionTreeClassifier", op); err != nil {
		return 0, 0, err
	}
	r, c := X.Dims()
	if err := t.state.RequireFeatures("DecisionTreeClassifier."+op, c); err != nil {
		return 0, 0, err
	}
	if r == 0 {
		return 0, 0, errors.NewValueError("DecisionTreeClassifier."+op, "no rows to predict")
	}
	return r, c, nil
}

// Predict は各行の多数派クラスを返す
func (t *DecisionTreeClassifier) Predict(X mat.Matrix) (*mat.VecDense, error) {
	r, c, err := t.checkInput("Predict", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewVecDense(r, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetVec(i, t.classes[t.leafFor(row).predIndex])
	}
	return out, nil
}

// PredictProba は各行のクラス分布（列は Classes() の順）を返す
func (t *DecisionTreeClassifier) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	r, c, err := t.checkInput("PredictProba", X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(r, len(t.classes), nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, t.leafFor(row).proba)
	}
	return out, nil
}

// Score は正解率を返す
func (t *DecisionTreeClassifier) Score(ds *dataset.Dataset) (float64, error) {
	pred, err := t.Predict(ds.Features())
	if err != nil {
		return 0, err
	}
	return metrics.AccuracyScore(ds.Targets(), pred)
}

// Classes returns the sorted class labels seen during Fit.
func (t *DecisionTreeClassifier) Classes() []float64 {
	return append([]float64(nil), t.classes...)
}

// Depth returns the depth of the fitted tree (a single leaf has depth 0).
func (t *DecisionTreeClassifier) Depth() int {
	var walk func(nd *node) int
	walk = func(nd *node) int {
		if nd == nil || nd.leaf {
			return 0
		}
		return 1 + max(walk(nd.left), walk(nd.right))
	}
	return walk(t.root)
}

// NLeaves returns the number of leaves of the fitted tree.
func (t *DecisionTreeClassifier) NLeaves() int {
	var walk func(nd *node) int
	walk = func(nd *node) int {
		if nd == nil {
			return 0
		}
		if nd.leaf {
			return 1
		}
		return walk(nd.left) + walk(nd.right)
	}
	return walk(t.root)
}

// UpdateParameters is not supported: trees are not trained by gradients.
func (t *DecisionTreeClassifier) UpdateParameters(mat.Vector, float64) error {
	return errors.NewUnsupportedOperationError("DecisionTreeClassifier", "UpdateParameters")
}

func (t *DecisionTreeClassifier) Name() string { return "DecisionTreeClassifier" }

func (t *DecisionTreeClassifier) Description() string {
	return "CART decision tree classifier with greedy threshold splits."
}

func (t *DecisionTreeClassifier) Formula() string {
	return "split = argmin_{f,t} (n_L*I(L) + n_R*I(R)) / n"
}

func (t *DecisionTreeClassifier) GradientFormula() string {
	return "Not applicable - decision trees are not gradient-based"
}
