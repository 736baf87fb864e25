package linear

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// createBenchmarkData returns X uniform in [-1, 1) and
// y = 1 + Σ 0.5·(j+1)·x_j + noise(±0.05).
func createBenchmarkData(rows, cols int) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(42, 42))
	X := mat.NewDense(rows, cols, nil)
	y := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		target := 1.0
		for j := 0; j < cols; j++ {
			v := 2*rng.Float64() - 1
			X.Set(i, j, v)
			target += 0.5 * float64(j+1) * v
		}
		y.Set(i, 0, target+(rng.Float64()-0.5)*0.1)
	}
	return X, y
}

// withOneHot appends a k-level one-hot block, the shape the feature stage
// produces for a categorical column. The block is collinear with the intercept.
func withOneHot(X *mat.Dense, k int) *mat.Dense {
	rows, cols := X.Dims()
	out := mat.NewDense(rows, cols+k, nil)
	out.Slice(0, rows, k, cols+k).(*mat.Dense).Copy(X)
	for i := 0; i < rows; i++ {
		out.Set(i, i%k, 1)
	}
	return out
}

func BenchmarkLinearRegressionFit(b *testing.B) {
	for _, tc := range []struct {
		rows, cols, levels int
	}{
		{500, 10, 0},
		{2000, 10, 0}, // 並列処理の閾値を超える
		{2000, 10, 5},
		{10000, 20, 8},
	} {
		X, y := createBenchmarkData(tc.rows, tc.cols)
		if tc.levels > 0 {
			X = withOneHot(X, tc.levels)
		}
		b.Run(fmt.Sprintf("%dx%d_onehot%d", tc.rows, tc.cols, tc.levels), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if err := NewLinearRegression().Fit(X, y); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkLinearRegressionPredict(b *testing.B) {
	X, y := createBenchmarkData(10000, 20)
	lr := NewLinearRegression()
	if err := lr.Fit(X, y); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := lr.Predict(X); err != nil {
			b.Fatal(err)
		}
	}
}
