package model

import (
	"io"
	"os"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// SaveWeights はモデルの重みをJSONファイルに保存する
//
// 使用例:
//
//	reg, _ := linear.NewLinearRegression()
//	// ... モデルの学習 ...
//	err := model.SaveWeights(reg, "weights.json")
func SaveWeights(m WeightExporter, filename string) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "create %s", filename)
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteWeights(m, file)
}

// LoadWeights はJSONファイルから重みを読み込みモデルに設定する
func LoadWeights(m WeightExporter, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "open %s", filename)
	}
	defer file.Close()
	return ReadWeights(m, file)
}

// WriteWeights はモデルの重みを w に書き出す
func WriteWeights(m WeightExporter, w io.Writer) error {
	weights, err := m.ExportWeights()
	if err != nil {
		return err
	}
	data, err := weights.ToJSON()
	if err != nil {
		return errors.Wrap(err, "encode model weights")
	}
	if _, err := w.Write(data); err != nil {
		return errors.Wrap(err, "write model weights")
	}
	return nil
}

// ReadWeights は r から重みを読み込みモデルに設定する
func ReadWeights(m WeightExporter, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "read model weights")
	}
	var weights ModelWeights
	if err := weights.FromJSON(data); err != nil {
		return err
	}
	if err := weights.Validate(); err != nil {
		return err
	}
	return m.ImportWeights(&weights)
}
