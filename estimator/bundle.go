package estimator

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/linear"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/preprocessing"
	"github.com/YuminosukeSato/tabflow/sklearn/ensemble"
	"github.com/YuminosukeSato/tabflow/sklearn/neighbors"
	"github.com/YuminosukeSato/tabflow/sklearn/svm"
)

func init() {
	gob.Register(&ensemble.RandomForestClassifier{})
	gob.Register(&ensemble.RandomForestRegressor{})
	gob.Register(&neighbors.KNeighborsClassifier{})
	gob.Register(&neighbors.KNeighborsRegressor{})
	gob.Register(&linear.LinearRegression{})
	gob.Register(&svm.SVR{})
}

// PredictionColumn is the name of the single column of a prediction set.
const PredictionColumn = "prediction"

// Bundle is a fitted model together with the feature schema it was fitted
// on and, for classification, the label encoding.
type Bundle struct {
	Kind         Kind
	Task         Task
	Params       map[string]interface{}
	FeatureNames []string
	Labels       *preprocessing.LabelEncoder
	Model        model.Estimator
	CreatedAt    time.Time
}

// Fit fits a new estimator of kind on X and the label column y.
// Classification labels are encoded with a LabelEncoder fitted on y;
// regression labels must be numeric.
func Fit(kind Kind, task Task, seed uint64, X *frame.Frame, y *frame.Column) (*Bundle, error) {
	m, err := New(kind, task, seed)
	if err != nil {
		return nil, err
	}
	if X.Len() != y.Len() {
		return nil, errors.NewDimensionError("estimator.Fit", X.Len(), y.Len(), 0)
	}
	dense, err := X.Dense()
	if err != nil {
		return nil, err
	}

	b := &Bundle{
		Kind:         kind,
		Task:         task,
		FeatureNames: X.Names(),
		Model:        m,
		CreatedAt:    time.Now().UTC(),
	}
	target, err := b.encodeTarget(y)
	if err != nil {
		return nil, err
	}
	if err := m.Fit(dense, mat.NewDense(len(target), 1, target)); err != nil {
		return nil, errors.Wrapf(err, "fit %s", kind)
	}
	b.Params = Params(m)
	return b, nil
}

func (b *Bundle) encodeTarget(y *frame.Column) ([]float64, error) {
	if b.Task == Classification {
		b.Labels = preprocessing.NewLabelEncoder()
		return b.Labels.FitTransform(y.Labels())
	}
	if y.Kind != frame.Numeric {
		return nil, errors.NewValueError("estimator.Fit", fmt.Sprintf("regression target '%s' must be numeric", y.Name))
	}
	for i := range y.Floats {
		if y.IsNA(i) {
			return nil, errors.NewValueError("estimator.Fit", fmt.Sprintf("missing target value at row %d", i))
		}
	}
	return slices.Clone(y.Floats), nil
}

// Classes returns the class labels of a classification bundle.
func (b *Bundle) Classes() []string {
	if b.Labels == nil {
		return nil
	}
	return slices.Clone(b.Labels.Classes)
}

// CheckSchema verifies that X has exactly the fitted feature columns in the
// fitted order.
func (b *Bundle) CheckSchema(X *frame.Frame) error {
	if !slices.Equal(b.FeatureNames, X.Names()) {
		return errors.NewSchemaMismatchError(b.FeatureNames, X.Names())
	}
	return nil
}

// Predict returns the predictions for X as a single column named
// "prediction", row-aligned with X. Classification predictions are decoded
// back to the original labels.
func (b *Bundle) Predict(X *frame.Frame) (*frame.Column, error) {
	if err := b.CheckSchema(X); err != nil {
		return nil, err
	}
	dense, err := X.Dense()
	if err != nil {
		return nil, err
	}
	raw, err := b.Model.Predict(dense)
	if err != nil {
		return nil, err
	}
	r, _ := raw.Dims()
	values := make([]float64, r)
	for i := range values {
		values[i] = raw.At(i, 0)
	}
	if b.Task == Regression {
		return frame.NewNumeric(PredictionColumn, values), nil
	}
	labels, err := b.Labels.InverseTransform(values)
	if err != nil {
		return nil, err
	}
	return frame.NewCategorical(PredictionColumn, labels), nil
}

// Save writes the bundle with gob to path, creating parent directories.
func (b *Bundle) Save(path string) error {
	return model.SaveModel(b, path)
}

// Load reads a bundle written by Save.
func Load(path string) (*Bundle, error) {
	var b Bundle
	if err := model.LoadModel(&b, path); err != nil {
		return nil, err
	}
	if b.Model == nil {
		return nil, errors.NewValueError("estimator.Load", fmt.Sprintf("%s does not contain a model", path))
	}
	return &b, nil
}

// TimestampLayout is the suffix format used when a model path is taken.
const TimestampLayout = "20060102_150405"

// ResolvePath applies the persistence policy: with overwrite, or when path
// does not exist yet, path itself; otherwise <stem>_<timestamp><ext>, with a
// numeric suffix appended when that name is also taken.
func ResolvePath(path string, overwrite bool, now time.Time) (string, error) {
	if overwrite {
		return path, nil
	}
	exists, err := fileExists(path)
	if err != nil || !exists {
		return path, err
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	candidate := fmt.Sprintf("%s_%s%s", stem, now.Format(TimestampLayout), ext)
	for i := 1; ; i++ {
		exists, err := fileExists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%s_%d%s", stem, now.Format(TimestampLayout), i, ext)
	}
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", path)
}

// SaveWithPolicy resolves the destination with ResolvePath, saves the bundle
// there and returns the path written.
func (b *Bundle) SaveWithPolicy(path string, overwrite bool, now time.Time) (string, error) {
	dest, err := ResolvePath(path, overwrite, now)
	if err != nil {
		return "", err
	}
	if err := b.Save(dest); err != nil {
		return "", err
	}
	return dest, nil
}
