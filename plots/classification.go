package plots

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"

	"github.com/YuminosukeSato/tabflow/metrics"
)

// confusionGrid はヒートマップ用に混同行列を GridXYZ として公開する。
// 行 0 (最初のクラス) が上に来るように Y 軸を反転する。
type confusionGrid struct {
	cm *mat.Dense
	n  int
}

func (g confusionGrid) Dims() (c, r int)   { return g.n, g.n }
func (g confusionGrid) Z(c, r int) float64 { return g.cm.At(g.n-1-r, c) }
func (g confusionGrid) X(c int) float64    { return float64(c) }
func (g confusionGrid) Y(r int) float64    { return float64(r) }

// ConfusionMatrix renders the confusion matrix of yTrue vs yPred as an
// annotated heatmap. Rows are actual classes, columns predicted classes,
// both in sorted label order.
func ConfusionMatrix(yTrue, yPred []string, path string, opts ...Option) error {
	if err := checkPairs("plots.ConfusionMatrix", len(yTrue), len(yPred)); err != nil {
		return err
	}
	cm, labels, err := metrics.ConfusionMatrix(yTrue, yPred, nil)
	if err != nil {
		return err
	}
	cfg := newConfig("Confusion Matrix", opts)
	n := len(labels)

	p := plot.New()
	p.Title.Text = cfg.title
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Actual"

	hm := plotter.NewHeatMap(confusionGrid{cm: cm, n: n}, blues(9))
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	var (
		xys   plotter.XYs
		texts []string
	)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			xys = append(xys, plotter.XY{X: float64(j), Y: float64(n - 1 - i)})
			texts = append(texts, fmt.Sprintf("%d", int(cm.At(i, j))))
		}
	}
	annotations, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: texts})
	if err != nil {
		return err
	}
	p.Add(annotations)

	p.NominalX(labels...)
	reversed := slices.Clone(labels)
	slices.Reverse(reversed)
	p.NominalY(reversed...)

	if err := ensureDir(path); err != nil {
		return err
	}
	if err := p.Save(cfg.width, cfg.height, path); err != nil {
		return err
	}
	saved("confusion_matrix", path)
	return nil
}

// ReportPath returns the CSV path written next to a report image.
func ReportPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".csv"
}

// ClassificationReport writes the per-class precision/recall/f1 table to
// ReportPath(path) and renders the confusion matrix to path.
// It returns the CSV path.
func ClassificationReport(yTrue, yPred []string, path string, opts ...Option) (string, error) {
	if err := checkPairs("plots.ClassificationReport", len(yTrue), len(yPred)); err != nil {
		return "", err
	}
	report, err := metrics.ClassificationReport(yTrue, yPred, nil, metrics.ZeroDivisionZero)
	if err != nil {
		return "", err
	}
	csvPath := ReportPath(path)
	if err := metrics.WriteCSV(csvPath, &report); err != nil {
		return "", err
	}
	saved("classification_report", csvPath)

	if err := ConfusionMatrix(yTrue, yPred, path, opts...); err != nil {
		return "", err
	}
	return csvPath, nil
}
