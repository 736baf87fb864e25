package neighbors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

func TestKNeighborsClassifier(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{0, 1, 2, 10, 11, 12})
	y := mat.NewDense(6, 1, []float64{0, 0, 0, 1, 1, 1})

	tests := []struct {
		name    string
		weights string
	}{
		{"uniform", WeightsUniform},
		{"distance", WeightsDistance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			knn := NewKNeighborsClassifier(WithNNeighbors(3), WithWeights(tt.weights))
			require.NoError(t, knn.Fit(X, y))

			pred, err := knn.Predict(mat.NewDense(2, 1, []float64{1.5, 10.5}))
			require.NoError(t, err)
			assert.Equal(t, 0.0, pred.At(0, 0))
			assert.Equal(t, 1.0, pred.At(1, 0))

			score, err := knn.Score(X, y)
			require.NoError(t, err)
			assert.Equal(t, 1.0, score)
		})
	}
}

func TestKNeighborsClassifierDistanceWeightsExactMatch(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{0, 1, 1.2})
	y := mat.NewDense(3, 1, []float64{7, 9, 9})

	knn := NewKNeighborsClassifier(WithNNeighbors(3))
	require.NoError(t, knn.Fit(X, y))

	proba, err := knn.PredictProba(mat.NewDense(1, 1, []float64{0}))
	require.NoError(t, err)
	assert.Equal(t, 1.0, proba.At(0, 0))
	assert.Equal(t, 0.0, proba.At(0, 1))
	assert.Equal(t, []float64{7, 9}, knn.Classes())
}

func TestKNeighborsRegressor(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := mat.NewDense(4, 1, []float64{0, 10, 20, 30})

	knn := NewKNeighborsRegressor(WithNNeighbors(2))
	require.NoError(t, knn.Fit(X, y))

	pred, err := knn.Predict(mat.NewDense(1, 1, []float64{0.4}))
	require.NoError(t, err)
	assert.InDelta(t, 5.0, pred.At(0, 0), 1e-12)

	knn = NewKNeighborsRegressor(WithNNeighbors(2), WithWeights(WeightsDistance))
	require.NoError(t, knn.Fit(X, y))
	pred, err = knn.Predict(mat.NewDense(1, 1, []float64{0.25}))
	require.NoError(t, err)
	// weights 1/0.25 and 1/0.75
	assert.InDelta(t, (0*4+10*(4.0/3))/(4+4.0/3), pred.At(0, 0), 1e-12)
}

func TestKNeighborsValidation(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{0, 1})
	y := mat.NewDense(2, 1, []float64{0, 1})

	assert.Error(t, NewKNeighborsClassifier().Fit(X, y), "k=5 exceeds 2 samples")
	assert.Error(t, NewKNeighborsClassifier(WithNNeighbors(1), WithWeights("gaussian")).Fit(X, y))

	_, err := NewKNeighborsRegressor().Predict(X)
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	knn := NewKNeighborsRegressor(WithNNeighbors(1))
	require.NoError(t, knn.Fit(X, y))
	_, err = knn.Predict(mat.NewDense(1, 2, nil))
	var dim *errors.DimensionError
	assert.True(t, errors.As(err, &dim))
}

func TestKNeighborsPersistence(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{0, 0, 0, 1, 5, 5, 5, 6})
	y := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	knn := NewKNeighborsClassifier(WithNNeighbors(3))
	require.NoError(t, knn.Fit(X, y))

	path := t.TempDir() + "/knn.gob"
	require.NoError(t, model.SaveModel(knn, path))
	loaded := NewKNeighborsClassifier()
	require.NoError(t, model.LoadModel(loaded, path))

	assert.Equal(t, 3, loaded.NNeighbors)
	want, err := knn.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
}
