// Package plots renders diagnostic charts for the train and plots stages.
//
// Every function is a pure function of its inputs plus the destination path:
// parent directories are created on demand and the image format follows the
// file extension (png, svg, pdf...). Scatter and heatmap charts use
// gonum/plot; FrameLines uses go-chart.
package plots

import (
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
)

type config struct {
	title  string
	width  vg.Length
	height vg.Length
}

// Option customizes a chart.
type Option func(*config)

// WithTitle overrides the default title.
func WithTitle(title string) Option {
	return func(c *config) { c.title = title }
}

// WithSize sets the image size.
func WithSize(width, height vg.Length) Option {
	return func(c *config) {
		c.width = width
		c.height = height
	}
}

func newConfig(title string, opts []Option) config {
	c := config{title: title, width: 6 * vg.Inch, height: 5 * vg.Inch}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	return nil
}

func saved(op, path string) {
	log.GetLoggerWithName("plots").Info("Figure saved",
		log.OperationKey, op,
		log.ArtifactPathKey, path,
	)
}

func checkPairs(op string, yTrue, yPred int) error {
	if yTrue != yPred {
		return errors.NewDimensionError(op, yTrue, yPred, 0)
	}
	if yTrue == 0 {
		return errors.NewValueError(op, "empty labels")
	}
	return nil
}

// palette.Palette over a fixed color list.
type colorList []color.Color

func (c colorList) Colors() []color.Color { return c }

// blues interpolates from near-white to dark blue in n steps.
func blues(n int) colorList {
	from := color.RGBA{R: 247, G: 251, B: 255, A: 255}
	to := color.RGBA{R: 8, G: 48, B: 107, A: 255}
	out := make(colorList, n)
	for i := range out {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		out[i] = color.RGBA{
			R: lerp(from.R, to.R, t),
			G: lerp(from.G, to.G, t),
			B: lerp(from.B, to.B, t),
			A: 255,
		}
	}
	return out
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}
