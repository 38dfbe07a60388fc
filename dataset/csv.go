package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// CSVLoader はヘッダー行付きの区切り文字ファイルを読み込み、列名で Dataset を組み立てます。
type CSVLoader struct {
	delimiter rune
	header    []string
	records   [][]string
	index     map[string]int
}

// NewCSVLoader creates a loader for the given delimiter (',' when zero).
func NewCSVLoader(delimiter rune) *CSVLoader {
	if delimiter == 0 {
		delimiter = ','
	}
	return &CSVLoader{delimiter: delimiter}
}

// LoadFile reads path.
func (l *CSVLoader) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return l.Load(f)
}

// Load reads all records from r. The first record is the header.
// Quoted fields may contain the delimiter; rows may have varying lengths.
func (l *CSVLoader) Load(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.Comma = l.delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return errors.Wrap(err, "read csv")
	}
	if len(records) == 0 {
		return errors.ErrEmptyData
	}

	l.header = make([]string, len(records[0]))
	l.index = make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		l.header[i] = name
		l.index[name] = i
	}
	l.records = records[1:]
	return nil
}

// ColumnNames returns the trimmed header names.
func (l *CSVLoader) ColumnNames() ([]string, error) {
	if l.header == nil {
		return nil, errNotLoaded("ColumnNames")
	}
	return append([]string(nil), l.header...), nil
}

// HasColumn reports whether the header contains name (surrounding whitespace ignored).
func (l *CSVLoader) HasColumn(name string) bool {
	_, ok := l.index[strings.TrimSpace(name)]
	return ok
}

// ColumnIndex returns the position of name in the header.
func (l *CSVLoader) ColumnIndex(name string) (int, error) {
	if l.header == nil {
		return 0, errNotLoaded("ColumnIndex")
	}
	i, ok := l.index[strings.TrimSpace(name)]
	if !ok {
		return 0, errors.NewValidationError("column", "not found in header", name)
	}
	return i, nil
}

// NumRecords returns the number of data rows read (header excluded).
func (l *CSVLoader) NumRecords() int { return len(l.records) }

// ToDataset builds a Dataset from the named feature columns and target column.
// An empty featureColumns selects every column except the target. Rows with a
// missing or non-numeric cell in any selected column are skipped and reported
// once through errors.Warn as a DataConversionWarning.
func (l *CSVLoader) ToDataset(featureColumns []string, target string) (*Dataset, error) {
	if l.header == nil {
		return nil, errNotLoaded("ToDataset")
	}
	targetIdx, err := l.ColumnIndex(target)
	if err != nil {
		return nil, err
	}

	var featureIdx []int
	var names []string
	if len(featureColumns) == 0 {
		for i, name := range l.header {
			if i != targetIdx {
				featureIdx = append(featureIdx, i)
				names = append(names, name)
			}
		}
	} else {
		for _, col := range featureColumns {
			i, err := l.ColumnIndex(col)
			if err != nil {
				return nil, err
			}
			featureIdx = append(featureIdx, i)
			names = append(names, l.header[i])
		}
	}
	if len(featureIdx) == 0 {
		return nil, errors.NewValidationError("features", "at least one feature column is required", featureColumns)
	}

	data := make([]float64, 0, len(l.records)*len(featureIdx))
	targets := make([]float64, 0, len(l.records))
	row := make([]float64, len(featureIdx))
	var skipped []int

	for n, rec := range l.records {
		y, ok := parseCell(rec, targetIdx)
		for j := 0; ok && j < len(featureIdx); j++ {
			row[j], ok = parseCell(rec, featureIdx[j])
		}
		if !ok {
			skipped = append(skipped, n+2) // 1-based line number, header is line 1
			continue
		}
		data = append(data, row...)
		targets = append(targets, y)
	}

	if len(skipped) > 0 {
		errors.Warn(errors.NewDataConversionWarning("string", "float64",
			fmt.Sprintf("skipped %d of %d rows with missing or non-numeric values (first at line %d)",
				len(skipped), len(l.records), skipped[0])))
	}
	if len(targets) == 0 {
		return nil, errors.ErrEmptyData
	}
	return NewWithNames(
		mat.NewDense(len(targets), len(featureIdx), data),
		mat.NewVecDense(len(targets), targets),
		names,
	)
}

func errNotLoaded(method string) error {
	return errors.NewValueError("CSVLoader."+method, "no data loaded, call Load first")
}

func parseCell(rec []string, i int) (float64, bool) {
	if i >= len(rec) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// WriteCSV writes the dataset with the header X0..Xd-1,y.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := append(defaultNames(d.cols), "y")
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "write csv header")
	}
	rec := make([]string, d.cols+1)
	for i := 0; i < d.rows; i++ {
		for j := 0; j < d.cols; j++ {
			rec[j] = strconv.FormatFloat(d.x.At(i, j), 'g', -1, 64)
		}
		rec[d.cols] = strconv.FormatFloat(d.y.AtVec(i), 'g', -1, 64)
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "write csv row %d", i)
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the dataset to path.
func (d *Dataset) SaveCSV(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return d.WriteCSV(f)
}
