package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/YuminosukeSato/tabflow/estimator"
	"github.com/YuminosukeSato/tabflow/features"
	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/plots"
)

func readPairs(truthPath, predPath string) (truth, pred *frame.Column, err error) {
	truth, err = readLabels(truthPath, features.LabelColumn)
	if err != nil {
		return nil, nil, err
	}
	pred, err = readLabels(predPath, estimator.PredictionColumn)
	if err != nil {
		return nil, nil, err
	}
	return truth, pred, nil
}

func numeric(c *frame.Column, path string) ([]float64, error) {
	if c.Kind != frame.Numeric {
		return nil, errors.NewValueError("pipeline.Plot", fmt.Sprintf("column '%s' in %s is not numeric", c.Name, path))
	}
	return c.Floats, nil
}

// PlotConfusion renders the confusion matrix of a labels CSV against a
// predictions CSV.
func (r *Runner) PlotConfusion(truthPath, predPath, out string) error {
	truth, pred, err := readPairs(truthPath, predPath)
	if err != nil {
		return err
	}
	return plots.ConfusionMatrix(truth.Labels(), pred.Labels(), out)
}

// PlotReport writes the classification report CSV next to out and renders
// the confusion matrix to out. It returns the CSV path.
func (r *Runner) PlotReport(truthPath, predPath, out string) (string, error) {
	truth, pred, err := readPairs(truthPath, predPath)
	if err != nil {
		return "", err
	}
	return plots.ClassificationReport(truth.Labels(), pred.Labels(), out)
}

// PlotRegression renders predictions.png and residuals.png into outDir.
func (r *Runner) PlotRegression(truthPath, predPath, outDir string) ([]string, error) {
	truth, pred, err := readPairs(truthPath, predPath)
	if err != nil {
		return nil, err
	}
	yTrue, err := numeric(truth, truthPath)
	if err != nil {
		return nil, err
	}
	yPred, err := numeric(pred, predPath)
	if err != nil {
		return nil, err
	}
	pv := filepath.Join(outDir, "predictions.png")
	if err := plots.PredictionsVsActual(yTrue, yPred, pv); err != nil {
		return nil, err
	}
	rs := filepath.Join(outDir, "residuals.png")
	if err := plots.Residuals(yTrue, yPred, rs); err != nil {
		return nil, err
	}
	return []string{pv, rs}, nil
}

// PlotFrame draws the numeric columns of a CSV as lines.
func (r *Runner) PlotFrame(input, out string) error {
	f, err := frame.ReadCSVFile(input)
	if err != nil {
		return err
	}
	return plots.FrameLines(f, out)
}
