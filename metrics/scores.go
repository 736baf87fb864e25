package metrics

import (
	"cmp"
	"math"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// Scores is a flat metric-name -> value report, written as a one-row CSV.
type Scores interface {
	// Values returns every metric by name.
	Values() map[string]float64
	// Primary is the headline metric (accuracy or r2).
	Primary() (string, float64)
}

// ClassificationScores holds accuracy and support-weighted precision,
// recall and F1.
type ClassificationScores struct {
	Accuracy  float64 `csv:"accuracy"`
	Precision float64 `csv:"precision"`
	Recall    float64 `csv:"recall"`
	F1Score   float64 `csv:"f1_score"`
}

// Values implements Scores.
func (s *ClassificationScores) Values() map[string]float64 {
	return map[string]float64{
		"accuracy":  s.Accuracy,
		"precision": s.Precision,
		"recall":    s.Recall,
		"f1_score":  s.F1Score,
	}
}

// Primary implements Scores.
func (s *ClassificationScores) Primary() (string, float64) { return "accuracy", s.Accuracy }

// RegressionScores holds MSE, RMSE and R².
type RegressionScores struct {
	MSE  float64 `csv:"mse"`
	RMSE float64 `csv:"rmse"`
	R2   float64 `csv:"r2"`
}

// Values implements Scores.
func (s *RegressionScores) Values() map[string]float64 {
	return map[string]float64{"mse": s.MSE, "rmse": s.RMSE, "r2": s.R2}
}

// Primary implements Scores.
func (s *RegressionScores) Primary() (string, float64) { return "r2", s.R2 }

// ScoreClassification computes ClassificationScores. Undefined precision or
// recall counts as 0; zeroDivision only decides whether that is reported.
func ScoreClassification[T cmp.Ordered](yTrue, yPred []T, zeroDivision ZeroDivision) (*ClassificationScores, error) {
	acc, err := AccuracyLabels(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	stats, err := PerClass(yTrue, yPred, nil, zeroDivision)
	if err != nil {
		return nil, err
	}
	p, r, f1 := Weighted(stats)
	return &ClassificationScores{Accuracy: acc, Precision: p, Recall: r, F1Score: f1}, nil
}

// ScoreRegression computes RegressionScores.
func ScoreRegression(yTrue, yPred []float64) (*RegressionScores, error) {
	if len(yTrue) == 0 {
		return nil, errors.NewValueError("ScoreRegression", "empty vector")
	}
	if len(yPred) != len(yTrue) {
		return nil, errors.NewDimensionError("ScoreRegression", len(yTrue), len(yPred), 0)
	}
	t := mat.NewVecDense(len(yTrue), yTrue)
	p := mat.NewVecDense(len(yPred), yPred)

	mse, err := MSE(t, p)
	if err != nil {
		return nil, err
	}
	r2, err := R2Score(t, p)
	if err != nil {
		return nil, err
	}
	return &RegressionScores{MSE: mse, RMSE: math.Sqrt(mse), R2: r2}, nil
}

// WriteCSV writes rows (a pointer to a slice of csv-tagged structs) to path,
// creating the directory first.
func WriteCSV(path string, rows interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "write %s", path)
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}

// WriteScores writes s as a single-row CSV.
func WriteScores(path string, s Scores) error {
	switch v := s.(type) {
	case *ClassificationScores:
		return WriteCSV(path, &[]*ClassificationScores{v})
	case *RegressionScores:
		return WriteCSV(path, &[]*RegressionScores{v})
	default:
		return errors.Newf("unsupported scores type %T", s)
	}
}

// ReadClassificationScores reads a metrics CSV written by WriteScores.
func ReadClassificationScores(path string) (*ClassificationScores, error) {
	var rows []*ClassificationScores
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, errors.NewDimensionError("ReadClassificationScores", 1, len(rows), 0)
	}
	return rows[0], nil
}

// ReadRegressionScores reads a metrics CSV written by WriteScores.
func ReadRegressionScores(path string) (*RegressionScores, error) {
	var rows []*RegressionScores
	if err := readCSV(path, &rows); err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, errors.NewDimensionError("ReadRegressionScores", 1, len(rows), 0)
	}
	return rows[0], nil
}

func readCSV(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return errors.Wrapf(gocsv.UnmarshalFile(f, out), "parse %s", path)
}
