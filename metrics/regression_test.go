package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

func TestRegressionMetrics(t *testing.T) {
	type metricFn func(yTrue, yPred *mat.VecDense) (float64, error)
	fns := map[string]metricFn{"MSE": MSE, "RMSE": RMSE, "MAE": MAE, "R2Score": R2Score}

	tests := []struct {
		name   string
		metric string
		yTrue  *mat.VecDense
		yPred  *mat.VecDense
		want   float64
	}{
		{"mse perfect", "MSE", vec(1, 2, 3), vec(1, 2, 3), 0},
		{"mse simple", "MSE", vec(1, 2, 3, 4), vec(1.5, 2.5, 2.5, 3.5), 0.25},
		{"mse larger errors", "MSE", vec(10, 20, 30), vec(12, 18, 33), 17.0 / 3.0},
		{"rmse", "RMSE", vec(0, 0, 0, 0), vec(1, 1, 1, 1), 1},
		{"mae", "MAE", vec(1, 2, 3, 4), vec(2, 1, 4, 3), 1},
		{"r2 perfect", "R2Score", vec(1, 2, 3, 4, 5), vec(1, 2, 3, 4, 5), 1},
		{"r2 worse than mean", "R2Score", vec(1, 2, 3, 4), vec(4, 3, 2, 1), -3},
		{"r2 constant target, imperfect", "R2Score", vec(3, 3, 3), vec(2, 3, 4), 0},
		{"r2 constant target, perfect", "R2Score", vec(3, 3, 3), vec(3, 3, 3), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fns[tt.metric](tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-10)
		})
	}
}

func TestRegressionMetricErrors(t *testing.T) {
	_, err := MSE(vec(1, 2, 3), vec(1, 2))
	assert.Error(t, err)
	_, err = R2Score(&mat.VecDense{}, &mat.VecDense{})
	assert.Error(t, err)
	_, err = MAE(nil, nil)
	assert.Error(t, err)
	_, err = MSEMatrix(mat.NewDense(2, 2, nil), mat.NewDense(2, 2, nil))
	assert.Error(t, err)
}

func TestMSEMatrix(t *testing.T) {
	got, err := MSEMatrix(mat.NewDense(2, 1, []float64{1, 3}), mat.NewDense(2, 1, []float64{2, 3}))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-12)
}

func TestScoreRegression(t *testing.T) {
	s, err := ScoreRegression([]float64{1, 2, 3, 4}, []float64{1.5, 2.5, 2.5, 3.5})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, s.MSE, 1e-12)
	assert.InDelta(t, 0.5, s.RMSE, 1e-12)
	assert.InDelta(t, 0.8, s.R2, 1e-12)

	name, v := s.Primary()
	assert.Equal(t, "r2", name)
	assert.Equal(t, s.R2, v)
	assert.Len(t, s.Values(), 3)

	_, err = ScoreRegression([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
	_, err = ScoreRegression(nil, nil)
	assert.Error(t, err)
}

func BenchmarkMSE(b *testing.B) {
	size := 10000
	yTrue := mat.NewVecDense(size, nil)
	yPred := mat.NewVecDense(size, nil)
	for i := 0; i < size; i++ {
		yTrue.SetVec(i, float64(i))
		yPred.SetVec(i, float64(i)+0.1*math.Mod(float64(i), 10))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = MSE(yTrue, yPred)
	}
}
