package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

func bandData() (*mat.Dense, *mat.Dense) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	y := mat.NewDense(6, 1, []float64{0, 0, 1, 1, 0, 0})
	return X, y
}

func TestDecisionTreeClassifierFitsBand(t *testing.T) {
	for _, criterion := range []string{"gini", "entropy"} {
		t.Run(criterion, func(t *testing.T) {
			X, y := bandData()
			dt := NewDecisionTreeClassifier(WithCriterion(criterion))
			require.NoError(t, dt.Fit(X, y))

			score, err := dt.Score(X, y)
			require.NoError(t, err)
			assert.Equal(t, 1.0, score)
			assert.Equal(t, []float64{0, 1}, dt.Classes())
			assert.Equal(t, 2, dt.GetDepth())
			assert.Equal(t, 3, dt.GetNLeaves())
		})
	}
}

func TestDecisionTreeClassifierMaxDepth(t *testing.T) {
	X, y := bandData()
	dt := NewDecisionTreeClassifier(WithMaxDepth(1))
	require.NoError(t, dt.Fit(X, y))
	assert.LessOrEqual(t, dt.GetDepth(), 1)
}

func TestDecisionTreeClassifierPredictProba(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 10, 11})
	y := mat.NewDense(4, 1, []float64{3, 3, 7, 7})

	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	proba, err := dt.PredictProba(mat.NewDense(2, 1, []float64{0, 12}))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, mat.Row(nil, 0, proba))
	assert.Equal(t, []float64{0, 1}, mat.Row(nil, 1, proba))

	pred, err := dt.Predict(mat.NewDense(2, 1, []float64{0, 12}))
	require.NoError(t, err)
	assert.Equal(t, 3.0, pred.At(0, 0))
	assert.Equal(t, 7.0, pred.At(1, 0))

	imp := dt.GetFeatureImportances()
	assert.InDelta(t, 1.0, imp[0], 1e-12)
}

func TestDecisionTreeRegressor(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 2, 3, 10, 11, 12})
	y := mat.NewDense(6, 1, []float64{1, 1, 1, 5, 5, 5})

	dt := NewDecisionTreeRegressor()
	require.NoError(t, dt.Fit(X, y))

	pred, err := dt.Predict(mat.NewDense(2, 1, []float64{0, 20}))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pred.At(0, 0), 1e-12)
	assert.InDelta(t, 5.0, pred.At(1, 0), 1e-12)

	score, err := dt.Score(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score, 1e-12)
	assert.Equal(t, 1, dt.GetDepth())
}

func TestDecisionTreeMinSamplesLeaf(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{1, 2, 3, 4})
	y := mat.NewDense(4, 1, []float64{0, 1, 1, 1})

	dt := NewDecisionTreeClassifier(WithMinSamplesLeaf(2))
	require.NoError(t, dt.Fit(X, y))
	for _, n := range dt.Tree.Nodes {
		if n.IsLeaf() {
			assert.GreaterOrEqual(t, n.NSamples, 2)
		}
	}
}

func TestDecisionTreeErrors(t *testing.T) {
	dt := NewDecisionTreeClassifier()
	_, err := dt.Predict(mat.NewDense(1, 2, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	X, y := bandData()
	require.NoError(t, dt.Fit(X, y))
	_, err = dt.Predict(mat.NewDense(1, 3, nil))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))

	bad := NewDecisionTreeClassifier(WithCriterion("squared_error"))
	assert.Error(t, bad.Fit(X, y))

	assert.Error(t, dt.Fit(X, mat.NewDense(3, 1, nil)))
}

func TestDecisionTreeParams(t *testing.T) {
	dt := NewDecisionTreeClassifier(WithMaxDepth(3), WithMinSamplesSplit(4))
	params := dt.GetParams()
	assert.Equal(t, 3, params["max_depth"])
	assert.Equal(t, 4, params["min_samples_split"])

	require.NoError(t, dt.SetParams(map[string]interface{}{"max_depth": 5, "criterion": "entropy"}))
	assert.Equal(t, 5, dt.MaxDepth)
	assert.Equal(t, "entropy", dt.Criterion)
	assert.Error(t, dt.SetParams(map[string]interface{}{"unknown": 1}))
}

func TestDecisionTreePersistence(t *testing.T) {
	X, y := bandData()
	dt := NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	path := t.TempDir() + "/tree.gob"
	require.NoError(t, model.SaveModel(dt, path))

	loaded := NewDecisionTreeClassifier()
	require.NoError(t, model.LoadModel(loaded, path))

	want, err := dt.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}

func TestEncodeClasses(t *testing.T) {
	enc, classes := EncodeClasses(mat.NewDense(4, 1, []float64{5, 2, 5, 9}))
	assert.Equal(t, []float64{2, 5, 9}, classes)
	assert.Equal(t, []float64{1, 0, 1, 2}, enc)
}
