package plots

import (
	"math"
	"os"

	chart "github.com/wcharczuk/go-chart"

	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// FrameLines draws every numeric column of f as a line against the row
// index. Missing cells are skipped. Only PNG output is supported.
func FrameLines(f *frame.Frame, path string, opts ...Option) error {
	cfg := newConfig("Dataset", opts)

	var series []chart.Series
	for _, c := range f.Columns() {
		if c.Kind != frame.Numeric {
			continue
		}
		var xs, ys []float64
		for i, v := range c.Floats {
			if math.IsNaN(v) {
				continue
			}
			xs = append(xs, float64(i))
			ys = append(ys, v)
		}
		if len(xs) == 0 {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    c.Name,
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				Show:        true,
				StrokeColor: chart.GetAlternateColor(len(series)),
			},
		})
	}
	if len(series) == 0 {
		return errors.NewValueError("plots.FrameLines", "frame has no numeric values to plot")
	}
	if f.Len() < 2 {
		return errors.NewValueError("plots.FrameLines", "at least two rows are required")
	}

	graph := chart.Chart{
		Title:      cfg.title,
		TitleStyle: chart.StyleShow(),
		Width:      int(cfg.width.Dots(100)),
		Height:     int(cfg.height.Dots(100)),
		XAxis: chart.XAxis{
			Name:      "Row",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      "Value",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}

	if err := ensureDir(path); err != nil {
		return err
	}
	out, err := os.Create(path) // nolint:gosec // caller-chosen output path
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := graph.Render(chart.PNG, out); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "render %s", path)
	}
	if err := out.Close(); err != nil {
		return err
	}
	saved("frame_lines", path)
	return nil
}
