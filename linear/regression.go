// Package linear implements ordinary least squares regression.
package linear

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/core/parallel"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// 並列処理の閾値（この値以下の行数では逐次処理を使用）
const parallelThreshold = 1000

// LinearRegression は最小二乗法による線形回帰モデル。
// 特異値分解で最小ノルム解を求めるため、one-hot 列のような共線性のある特徴量でも学習できる。
type LinearRegression struct {
	State *model.StateManager

	Weights   []float64 // 重み（係数）
	Intercept float64   // 切片

	FitIntercept bool
	Rcond        float64
}

// NewLinearRegression は新しい線形回帰モデルを作成する
func NewLinearRegression(opts ...Option) *LinearRegression {
	lr := &LinearRegression{
		State:        model.NewStateManager(),
		FitIntercept: true,
		Rcond:        1e-10,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// Fit はモデルを訓練データで学習させる。
// 切片ありの場合は X と y を中心化してから min ||Xw - y|| を解く。
func (lr *LinearRegression) Fit(X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()

	if r == 0 || c == 0 {
		return errors.NewModelError("LinearRegression.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("LinearRegression.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("LinearRegression.Fit", "y must be a column vector")
	}

	xMean := make([]float64, c)
	var yMean float64
	if lr.FitIntercept {
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				xMean[j] += X.At(i, j)
			}
			yMean += y.At(i, 0)
		}
		for j := range xMean {
			xMean[j] /= float64(r)
		}
		yMean /= float64(r)
	}

	Xc := mat.NewDense(r, c, nil)
	yc := mat.NewDense(r, 1, nil)
	parallel.Parallelize(r, workersFor(r), func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				Xc.Set(i, j, X.At(i, j)-xMean[j])
			}
			yc.Set(i, 0, y.At(i, 0)-yMean)
		}
	})

	var svd mat.SVD
	if ok := svd.Factorize(Xc, mat.SVDThin); !ok {
		return errors.NewModelError("LinearRegression.Fit", "svd failed to converge", errors.ErrSingularMatrix)
	}
	values := svd.Values(nil)
	rank := 0
	for _, s := range values {
		if s > lr.Rcond*values[0] {
			rank++
		}
	}
	if rank == 0 {
		return errors.NewModelError("LinearRegression.Fit", "singular matrix", errors.ErrSingularMatrix)
	}

	var w mat.Dense
	svd.SolveTo(&w, yc, rank)

	lr.Weights = make([]float64, c)
	lr.Intercept = yMean
	for j := 0; j < c; j++ {
		lr.Weights[j] = w.At(j, 0)
		lr.Intercept -= xMean[j] * lr.Weights[j]
	}
	if err := errors.CheckNumericalStability("LinearRegression.Fit", lr.Weights, 0); err != nil {
		return err
	}

	lr.State.SetFitted(c, r)
	return nil
}

// Predict は入力データに対する予測を行う
func (lr *LinearRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := lr.State.RequireFitted("LinearRegression", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := lr.State.CheckFeatures("LinearRegression.Predict", c); err != nil {
		return nil, err
	}

	// 予測: y = X * weights + intercept
	predictions := mat.NewDense(r, 1, nil)
	parallel.Parallelize(r, workersFor(r), func(start, end int) {
		for i := start; i < end; i++ {
			pred := lr.Intercept
			for j := 0; j < c; j++ {
				pred += X.At(i, j) * lr.Weights[j]
			}
			predictions.Set(i, 0, pred)
		}
	})
	return predictions, nil
}

// Score はモデルの決定係数（R²）を計算する
func (lr *LinearRegression) Score(X, y mat.Matrix) (float64, error) {
	yPred, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()

	var yMean float64
	for i := 0; i < r; i++ {
		yMean += y.At(i, 0)
	}
	yMean /= float64(r)

	var tss, rss float64
	for i := 0; i < r; i++ {
		t, p := y.At(i, 0), yPred.At(i, 0)
		tss += (t - yMean) * (t - yMean)
		rss += (t - p) * (t - p)
	}
	if tss == 0 {
		return 0, errors.Newf("total sum of squares is zero")
	}
	return 1 - rss/tss, nil
}

// Coefficients は学習された重み（係数）のコピーを返す
func (lr *LinearRegression) Coefficients() []float64 {
	return append([]float64(nil), lr.Weights...)
}

// InterceptValue は学習された切片を返す
func (lr *LinearRegression) InterceptValue() float64 {
	return lr.Intercept
}

// GetParams はハイパーパラメータを返す
func (lr *LinearRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"fit_intercept": lr.FitIntercept,
		"rcond":         lr.Rcond,
	}
}

// SetParams はハイパーパラメータを設定する
func (lr *LinearRegression) SetParams(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "fit_intercept":
			b, ok := v.(bool)
			if !ok {
				return errors.NewValidationError(k, "must be bool", v)
			}
			lr.FitIntercept = b
		case "rcond":
			f, ok := v.(float64)
			if !ok || f < 0 {
				return errors.NewValidationError(k, "must be a non-negative float", v)
			}
			lr.Rcond = f
		default:
			return errors.NewValidationError(k, "unknown parameter", v)
		}
	}
	return nil
}

func (lr *LinearRegression) String() string {
	return fmt.Sprintf("LinearRegression(fit_intercept=%t)", lr.FitIntercept)
}

func workersFor(rows int) int {
	if rows <= parallelThreshold {
		return 1
	}
	return 0
}

var (
	_ model.Regressor   = (*LinearRegression)(nil)
	_ model.LinearModel = (*LinearRegression)(nil)
)
