// Package svm implements epsilon-support vector regression.
package svm

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/core/parallel"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/sklearn/tree"
)

// Kernels.
const (
	KernelRBF    = "rbf"
	KernelLinear = "linear"
)

// SVR は ε-不感帯損失のサポートベクター回帰。
// 双対問題
//
//	min_β ½βᵀKβ − (y−b)ᵀβ + ε‖β‖₁  s.t. −C ≤ β_i ≤ C
//
// を座標降下法で解く。切片 b は学習データの目的変数の平均に固定する。
type SVR struct {
	State *model.StateManager

	Kernel  string
	C       float64
	Epsilon float64
	// Gamma <= 0 means "scale": 1 / (n_features * Var(X)).
	Gamma   float64
	Tol     float64
	MaxIter int

	GammaValue     float64
	SupportVectors []float64 // row-major, NFeatures columns
	DualCoef       []float64
	Intercept      float64
	NIter          int
}

// Option configures an SVR.
type Option func(*SVR)

// WithKernel sets the kernel, "rbf" or "linear".
func WithKernel(k string) Option { return func(s *SVR) { s.Kernel = k } }

// WithC sets the box constraint.
func WithC(c float64) Option { return func(s *SVR) { s.C = c } }

// WithEpsilon sets the width of the insensitive tube.
func WithEpsilon(eps float64) Option { return func(s *SVR) { s.Epsilon = eps } }

// WithGamma sets the RBF coefficient. Zero selects the "scale" heuristic.
func WithGamma(g float64) Option { return func(s *SVR) { s.Gamma = g } }

// WithTol sets the stopping tolerance on the largest coefficient change.
func WithTol(tol float64) Option { return func(s *SVR) { s.Tol = tol } }

// WithMaxIter caps the number of coordinate descent sweeps.
func WithMaxIter(n int) Option { return func(s *SVR) { s.MaxIter = n } }

// NewSVR creates an RBF SVR with C=1, epsilon=0.1 and gamma="scale".
func NewSVR(opts ...Option) *SVR {
	s := &SVR{
		State:   model.NewStateManager(),
		Kernel:  KernelRBF,
		C:       1.0,
		Epsilon: 0.1,
		Tol:     1e-3,
		MaxIter: 1000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SVR) validate() error {
	switch {
	case s.Kernel != KernelRBF && s.Kernel != KernelLinear:
		return errors.NewValidationError("kernel", "must be rbf or linear", s.Kernel)
	case s.C <= 0:
		return errors.NewValidationError("C", "must be positive", s.C)
	case s.Epsilon < 0:
		return errors.NewValidationError("epsilon", "must be non-negative", s.Epsilon)
	case s.MaxIter < 1:
		return errors.NewValidationError("max_iter", "must be at least 1", s.MaxIter)
	}
	return nil
}

func (s *SVR) kernel(a, b []float64) float64 {
	if s.Kernel == KernelLinear {
		var dot float64
		for j := range a {
			dot += a[j] * b[j]
		}
		return dot
	}
	var d float64
	for j := range a {
		diff := a[j] - b[j]
		d += diff * diff
	}
	return math.Exp(-s.GammaValue * d)
}

// scaleGamma は sklearn の gamma="scale" と同じく 1 / (n_features * X.var()) を返す
func scaleGamma(data []float64, nFeatures int) float64 {
	v := stat.PopVariance(data, nil)
	if v == 0 {
		return 1
	}
	return 1 / (float64(nFeatures) * v)
}

func softThreshold(z, t float64) float64 {
	switch {
	case z > t:
		return z - t
	case z < -t:
		return z + t
	}
	return 0
}

// Fit solves the dual problem on X and y.
func (s *SVR) Fit(X, y mat.Matrix) error {
	if err := s.validate(); err != nil {
		return err
	}
	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("SVR.Fit", "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError("SVR.Fit", r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError("SVR.Fit", "y must be a column vector")
	}

	rows := make([]float64, 0, r*c)
	buf := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(buf, i, X)
		rows = append(rows, buf...)
	}
	row := func(i int) []float64 { return rows[i*c : (i+1)*c] }

	s.GammaValue = s.Gamma
	if s.GammaValue <= 0 {
		s.GammaValue = scaleGamma(rows, c)
	}

	target := make([]float64, r)
	for i := range target {
		target[i] = y.At(i, 0)
	}
	s.Intercept = stat.Mean(target, nil)
	for i := range target {
		target[i] -= s.Intercept
	}

	// カーネル行列（対称）
	K := mat.NewSymDense(r, nil)
	parallel.Parallelize(r, 0, func(start, end int) {
		for i := start; i < end; i++ {
			for j := i; j < r; j++ {
				K.SetSym(i, j, s.kernel(row(i), row(j)))
			}
		}
	})

	beta := make([]float64, r)
	kBeta := make([]float64, r) // Kβ
	converged := false
	rng := tree.NewRand(0)
	order := make([]int, r)
	for i := range order {
		order[i] = i
	}

	for iter := 1; iter <= s.MaxIter; iter++ {
		s.NIter = iter
		rng.Shuffle(r, func(a, b int) { order[a], order[b] = order[b], order[a] })

		maxDelta := 0.0
		for _, i := range order {
			kii := K.At(i, i)
			if kii <= 0 {
				continue
			}
			grad := kBeta[i] - target[i]
			z := kii*beta[i] - grad
			updated := errors.ClipValue(softThreshold(z, s.Epsilon)/kii, -s.C, s.C)
			delta := updated - beta[i]
			if delta == 0 {
				continue
			}
			beta[i] = updated
			for j := 0; j < r; j++ {
				kBeta[j] += delta * K.At(j, i)
			}
			maxDelta = math.Max(maxDelta, math.Abs(delta))
		}
		if err := errors.CheckNumericalStability("SVR.Fit", beta, iter); err != nil {
			return err
		}
		if maxDelta < s.Tol {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("SVR", s.MaxIter, "Consider increasing max_iter or scaling the features."))
	}

	s.SupportVectors = s.SupportVectors[:0]
	s.DualCoef = s.DualCoef[:0]
	for i, b := range beta {
		if b != 0 {
			s.SupportVectors = append(s.SupportVectors, row(i)...)
			s.DualCoef = append(s.DualCoef, b)
		}
	}
	s.State.SetFitted(c, r)
	return nil
}

// NSupport returns the number of support vectors.
func (s *SVR) NSupport() int { return len(s.DualCoef) }

// Predict evaluates Σ β_i K(x_i, x) + b for each row.
func (s *SVR) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := s.State.RequireFitted("SVR", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := s.State.CheckFeatures("SVR.Predict", c); err != nil {
		return nil, err
	}
	if r == 0 {
		return nil, errors.NewModelError("SVR.Predict", "empty data", errors.ErrEmptyData)
	}
	out := mat.NewDense(r, 1, nil)
	parallel.Parallelize(r, 0, func(start, end int) {
		q := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(q, i, X)
			pred := s.Intercept
			for k, b := range s.DualCoef {
				pred += b * s.kernel(s.SupportVectors[k*c:(k+1)*c], q)
			}
			out.Set(i, 0, pred)
		}
	})
	return out, nil
}

// Score returns R².
func (s *SVR) Score(X, y mat.Matrix) (float64, error) {
	return tree.R2(s, X, y)
}

// GetParams returns the hyperparameters.
func (s *SVR) GetParams() map[string]interface{} {
	gamma := interface{}("scale")
	if s.Gamma > 0 {
		gamma = s.Gamma
	}
	return map[string]interface{}{
		"kernel":   s.Kernel,
		"C":        s.C,
		"epsilon":  s.Epsilon,
		"gamma":    gamma,
		"tol":      s.Tol,
		"max_iter": s.MaxIter,
	}
}

func (s *SVR) String() string {
	return fmt.Sprintf("SVR(kernel=%s, C=%g, epsilon=%g)", s.Kernel, s.C, s.Epsilon)
}

var _ model.Regressor = (*SVR)(nil)
