// Package report renders training diagnostics with gonum/plot.
package report

import (
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/sgdkit/pkg/errors"
)

// 出力画像サイズ
const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// PlotLossCurve draws the per-epoch loss as a line with points and saves it to
// path. The image format follows the extension: .png or .svg.
func PlotLossCurve(losses []float64, title, path string) error {
	if len(losses) == 0 {
		return errors.NewValueError("PlotLossCurve", "loss history is empty")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".svg" {
		return errors.NewValidationError("path", "extension must be .png or .svg", path)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(losses))
	for i, l := range losses {
		pts[i].X = float64(i + 1)
		pts[i].Y = l
	}
	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return errors.Wrap(err, "failed to build loss curve")
	}
	line.LineStyle.Width = vg.Points(1.5)
	points.Radius = vg.Points(2)
	p.Add(line, points)

	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return errors.Wrapf(err, "failed to save plot to %s", path)
	}
	return nil
}
