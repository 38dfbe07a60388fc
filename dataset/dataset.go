// Package dataset provides the immutable feature/target container consumed by
// every model and by the optim training engine.
package dataset

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// Dataset は特徴量行列 X (n×d) と目的変数 y (n) の組です。
// 生成時に入力をコピーし、以後変更されません。Shuffle などはすべて新しい Dataset を返します。
type Dataset struct {
	x     *mat.Dense // nil when rows or cols is 0
	y     *mat.VecDense
	rows  int
	cols  int
	names []string
}

// New creates a Dataset from X and y. The rows of X must match the length of y.
//
// 使用例:
//
//	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
//	y := mat.NewVecDense(3, []float64{1, 0, 1})
//	ds, err := dataset.New(X, y)
func New(X mat.Matrix, y mat.Vector) (*Dataset, error) {
	return NewWithNames(X, y, nil)
}

// NewWithNames is New with column names attached. A nil names slice yields
// the default names X0..Xd-1.
func NewWithNames(X mat.Matrix, y mat.Vector, names []string) (*Dataset, error) {
	if X == nil || y == nil {
		return nil, errors.NewValidationError("X/y", "must not be nil", nil)
	}
	r, c := X.Dims()
	if r != y.Len() {
		return nil, errors.NewDimensionError("dataset.New", r, y.Len(), 0)
	}
	if names != nil && len(names) != c {
		return nil, errors.NewDimensionError("dataset.New", c, len(names), 1)
	}
	if names == nil {
		names = defaultNames(c)
	}

	ds := &Dataset{rows: r, cols: c, names: append([]string(nil), names...)}
	if r > 0 && c > 0 {
		ds.x = mat.DenseCopyOf(X)
	}
	if r > 0 {
		ds.y = mat.VecDenseCopyOf(y)
	}
	return ds, nil
}

// FromRows builds a Dataset from row slices. All rows must have the same length.
func FromRows(rows [][]float64, targets []float64) (*Dataset, error) {
	if len(rows) != len(targets) {
		return nil, errors.NewDimensionError("dataset.FromRows", len(rows), len(targets), 0)
	}
	if len(rows) == 0 {
		return nil, errors.ErrEmptyData
	}
	c := len(rows[0])
	if c == 0 {
		return nil, errors.ErrEmptyData
	}
	data := make([]float64, 0, len(rows)*c)
	for _, row := range rows {
		if len(row) != c {
			return nil, errors.NewDimensionError("dataset.FromRows", c, len(row), 1)
		}
		data = append(data, row...)
	}
	return New(mat.NewDense(len(rows), c, data), mat.NewVecDense(len(targets), append([]float64(nil), targets...)))
}

func defaultNames(c int) []string {
	names := make([]string, c)
	for j := range names {
		names[j] = fmt.Sprintf("X%d", j)
	}
	return names
}

// Rows returns the number of samples.
func (d *Dataset) Rows() int { return d.rows }

// NumFeatures returns the number of feature columns.
func (d *Dataset) NumFeatures() int { return d.cols }

// Features returns a copy of the feature matrix.
func (d *Dataset) Features() *mat.Dense {
	if d.x == nil {
		return &mat.Dense{}
	}
	return mat.DenseCopyOf(d.x)
}

// Targets returns a copy of the target vector.
func (d *Dataset) Targets() *mat.VecDense {
	if d.y == nil {
		return &mat.VecDense{}
	}
	return mat.VecDenseCopyOf(d.y)
}

// FeatureNames returns a copy of the column names.
func (d *Dataset) FeatureNames() []string {
	return append([]string(nil), d.names...)
}

// At returns the feature value at row i, column j.
func (d *Dataset) At(i, j int) float64 { return d.x.At(i, j) }

// Target returns y[i].
func (d *Dataset) Target(i int) float64 { return d.y.AtVec(i) }

// Row returns a non-owning view of row i.
func (d *Dataset) Row(i int) mat.Vector { return d.x.RowView(i) }

// Shuffle returns a new Dataset whose rows are permuted by a permutation
// derived only from seed. The receiver is left untouched.
func (d *Dataset) Shuffle(seed int64) *Dataset {
	perm := rand.New(rand.NewSource(seed)).Perm(d.rows)
	return d.permute(perm)
}

func (d *Dataset) permute(idx []int) *Dataset {
	out := &Dataset{rows: len(idx), cols: d.cols, names: d.FeatureNames()}
	if len(idx) == 0 {
		return out
	}
	out.y = mat.NewVecDense(len(idx), nil)
	if d.cols > 0 {
		out.x = mat.NewDense(len(idx), d.cols, nil)
	}
	for i, src := range idx {
		if out.x != nil {
			out.x.SetRow(i, d.x.RawRowView(src))
		}
		out.y.SetVec(i, d.y.AtVec(src))
	}
	return out
}

// Slice returns non-owning views of rows [start, end). It panics like gonum
// slicing when the range is out of bounds or empty.
func (d *Dataset) Slice(start, end int) (mat.Matrix, mat.Vector) {
	if start < 0 || end > d.rows || start >= end {
		panic(fmt.Sprintf("dataset: slice [%d:%d] out of range for %d rows", start, end, d.rows))
	}
	return d.x.Slice(start, end, 0, d.cols), d.y.SliceVec(start, end)
}

// TopRows returns a new Dataset holding the first n rows.
func (d *Dataset) TopRows(n int) (*Dataset, error) {
	return d.MiddleRows(0, n)
}

// BottomRows returns a new Dataset holding the last n rows.
func (d *Dataset) BottomRows(n int) (*Dataset, error) {
	return d.MiddleRows(d.rows-n, n)
}

// MiddleRows returns a new Dataset holding n rows starting at start.
func (d *Dataset) MiddleRows(start, n int) (*Dataset, error) {
	if n < 0 || start < 0 || start+n > d.rows {
		return nil, errors.NewValidationError("rows",
			fmt.Sprintf("range [%d, %d) is outside [0, %d)", start, start+n, d.rows), n)
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = start + i
	}
	return d.permute(idx), nil
}

// TrainTestSplit shuffles the rows with seed and returns the first
// floor(n*(1-testSize)) rows as train and the rest as test.
func (d *Dataset) TrainTestSplit(testSize float64, seed int64) (train, test *Dataset, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTrain := int(float64(d.rows) * (1 - testSize))
	// testSize が極小だと 1-testSize が 1.0 に丸められ nTrain == rows になる
	if nTrain == 0 || nTrain == d.rows {
		return nil, nil, errors.NewValidationError("test_size",
			fmt.Sprintf("split of %d rows leaves an empty partition", d.rows), testSize)
	}
	shuffled := d.Shuffle(seed)
	if train, err = shuffled.TopRows(nTrain); err != nil {
		return nil, nil, err
	}
	if test, err = shuffled.BottomRows(d.rows - nTrain); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

// WithColumns returns a new Dataset with X replaced by columns, keeping y.
// Used by transforms such as standardisation.
func (d *Dataset) WithColumns(X mat.Matrix) (*Dataset, error) {
	return NewWithNames(X, d.yOrEmpty(), d.namesFor(X))
}

// WithTargets returns a new Dataset with y replaced, keeping X.
func (d *Dataset) WithTargets(y mat.Vector) (*Dataset, error) {
	if y.Len() != d.rows {
		return nil, errors.NewDimensionError("Dataset.WithTargets", d.rows, y.Len(), 0)
	}
	out := d.permute(identity(d.rows))
	if d.rows > 0 {
		out.y = mat.VecDenseCopyOf(y)
	}
	return out, nil
}

func (d *Dataset) namesFor(X mat.Matrix) []string {
	if _, c := X.Dims(); c == d.cols {
		return d.FeatureNames()
	}
	return nil
}

func (d *Dataset) yOrEmpty() mat.Vector {
	if d.y == nil {
		return &mat.VecDense{}
	}
	return d.y
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// String implements fmt.Stringer.
func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset(rows=%d, features=%d)", d.rows, d.cols)
}
