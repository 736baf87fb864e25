package plots

import (
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	pointColor = color.RGBA{R: 31, G: 119, B: 180, A: 180}
	guideColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

func scatter(xs, ys []float64) (*plotter.Scatter, error) {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	s.GlyphStyle.Color = pointColor
	s.GlyphStyle.Radius = vg.Points(2.5)
	return s, nil
}

func guide(x0, y0, x1, y1 float64) (*plotter.Line, error) {
	l, err := plotter.NewLine(plotter.XYs{{X: x0, Y: y0}, {X: x1, Y: y1}})
	if err != nil {
		return nil, err
	}
	l.LineStyle.Color = guideColor
	l.LineStyle.Width = vg.Points(2)
	l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	return l, nil
}

func bounds(v []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, x := range v {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// PredictionsVsActual scatters predicted against actual values with the
// y = x reference line.
func PredictionsVsActual(yTrue, yPred []float64, path string, opts ...Option) error {
	if err := checkPairs("plots.PredictionsVsActual", len(yTrue), len(yPred)); err != nil {
		return err
	}
	cfg := newConfig("Predictions vs Actual", opts)

	p := plot.New()
	p.Title.Text = cfg.title
	p.X.Label.Text = "Actual"
	p.Y.Label.Text = "Predicted"

	pts, err := scatter(yTrue, yPred)
	if err != nil {
		return err
	}
	lo, hi := bounds(yTrue)
	ideal, err := guide(lo, lo, hi, hi)
	if err != nil {
		return err
	}
	p.Add(pts, ideal)
	p.Legend.Add("Predictions", pts)
	p.Legend.Add("Ideal", ideal)
	p.Legend.Top = true
	p.Legend.Left = true

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := p.Save(cfg.width, cfg.height, path); err != nil {
		return err
	}
	saved("predictions_vs_actual", path)
	return nil
}

// Residuals scatters yTrue - yPred against yPred with a zero-error line.
func Residuals(yTrue, yPred []float64, path string, opts ...Option) error {
	if err := checkPairs("plots.Residuals", len(yTrue), len(yPred)); err != nil {
		return err
	}
	cfg := newConfig("Residuals vs Predicted", opts)

	residuals := make([]float64, len(yTrue))
	for i := range yTrue {
		residuals[i] = yTrue[i] - yPred[i]
	}

	p := plot.New()
	p.Title.Text = cfg.title
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Residual"

	pts, err := scatter(yPred, residuals)
	if err != nil {
		return err
	}
	lo, hi := bounds(yPred)
	zero, err := guide(lo, 0, hi, 0)
	if err != nil {
		return err
	}
	p.Add(pts, zero)
	p.Legend.Add("Residuals", pts)
	p.Legend.Add("Zero error", zero)
	p.Legend.Top = true

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := p.Save(cfg.width, cfg.height, path); err != nil {
		return err
	}
	saved("residuals", path)
	return nil
}
