// Package neighbors implements k-nearest-neighbour estimators with
// Euclidean distance. Fitting stores the training set; prediction is a
// brute-force search, parallelised over query rows.
package neighbors

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/core/parallel"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/sklearn/tree"
)

// Weighting schemes.
const (
	WeightsUniform  = "uniform"
	WeightsDistance = "distance"
)

// Params are the hyperparameters shared by both estimators.
type Params struct {
	NNeighbors int
	Weights    string
	NJobs      int
}

// Option configures Params.
type Option func(*Params)

// WithNNeighbors sets k.
func WithNNeighbors(k int) Option { return func(p *Params) { p.NNeighbors = k } }

// WithWeights sets the weighting scheme, "uniform" or "distance".
func WithWeights(w string) Option { return func(p *Params) { p.Weights = w } }

// WithNJobs sets the number of goroutines used for queries.
func WithNJobs(n int) Option { return func(p *Params) { p.NJobs = n } }

func (p Params) validate(nSamples int) error {
	if p.NNeighbors < 1 {
		return errors.NewValidationError("n_neighbors", "must be at least 1", p.NNeighbors)
	}
	if p.NNeighbors > nSamples {
		return errors.NewValidationError("n_neighbors", fmt.Sprintf("must not exceed n_samples=%d", nSamples), p.NNeighbors)
	}
	if p.Weights != WeightsUniform && p.Weights != WeightsDistance {
		return errors.NewValidationError("weights", "must be uniform or distance", p.Weights)
	}
	return nil
}

// GetParams returns the hyperparameters.
func (p Params) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": p.NNeighbors,
		"weights":     p.Weights,
	}
}

type neighbor struct {
	index int
	dist  float64
}

// NeighborsBase holds the stored training set.
type NeighborsBase struct {
	State *model.StateManager
	Params
	XTrain []float64 // row-major copy of the training matrix
	YTrain []float64
}

func (b *NeighborsBase) fit(op string, X, y mat.Matrix) error {
	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return errors.NewDimensionError(op, r, ry, 0)
	}
	if cy != 1 {
		return errors.NewValueError(op, "y must be a column vector")
	}
	if err := b.Params.validate(r); err != nil {
		return err
	}
	b.XTrain = make([]float64, 0, r*c)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		b.XTrain = append(b.XTrain, row...)
	}
	b.YTrain = make([]float64, r)
	for i := range b.YTrain {
		b.YTrain[i] = y.At(i, 0)
	}
	b.State.SetFitted(c, r)
	return nil
}

// kNearest returns the k nearest training rows to q, nearest first. Ties in
// distance keep the lower training index.
func (b *NeighborsBase) kNearest(q []float64) []neighbor {
	c := len(q)
	n := len(b.YTrain)
	all := make([]neighbor, n)
	for i := 0; i < n; i++ {
		var d float64
		row := b.XTrain[i*c : (i+1)*c]
		for j, v := range row {
			diff := v - q[j]
			d += diff * diff
		}
		all[i] = neighbor{index: i, dist: math.Sqrt(d)}
	}
	slices.SortStableFunc(all, func(a, b neighbor) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})
	return all[:b.NNeighbors]
}

// weights returns the vote weight of each neighbour. With distance weights
// an exact match takes all the weight.
func (b *NeighborsBase) weights(nb []neighbor) []float64 {
	w := make([]float64, len(nb))
	if b.Weights == WeightsUniform {
		for i := range w {
			w[i] = 1
		}
		return w
	}
	exact := false
	for i, n := range nb {
		if n.dist == 0 {
			w[i] = 1
			exact = true
		}
	}
	if exact {
		return w
	}
	for i, n := range nb {
		w[i] = 1 / n.dist
	}
	return w
}

func (b *NeighborsBase) query(op string, X mat.Matrix, fn func(i int, nb []neighbor, w []float64)) error {
	if err := b.State.RequireFitted(op, "Predict"); err != nil {
		return err
	}
	r, c := X.Dims()
	if err := b.State.CheckFeatures(op+".Predict", c); err != nil {
		return err
	}
	parallel.Parallelize(r, b.NJobs, func(start, end int) {
		q := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(q, i, X)
			nb := b.kNearest(q)
			fn(i, nb, b.weights(nb))
		}
	})
	return nil
}

// KNeighborsClassifier votes among the k nearest training rows.
type KNeighborsClassifier struct {
	NeighborsBase
	ClassList []float64
	Encoded   []float64
}

// NewKNeighborsClassifier creates a classifier with k=5 and distance weights.
func NewKNeighborsClassifier(opts ...Option) *KNeighborsClassifier {
	p := Params{NNeighbors: 5, Weights: WeightsDistance}
	for _, opt := range opts {
		opt(&p)
	}
	return &KNeighborsClassifier{NeighborsBase: NeighborsBase{State: model.NewStateManager(), Params: p}}
}

// Fit stores the training set.
func (k *KNeighborsClassifier) Fit(X, y mat.Matrix) error {
	if err := k.fit("KNeighborsClassifier.Fit", X, y); err != nil {
		return err
	}
	k.Encoded, k.ClassList = tree.EncodeClasses(y)
	return nil
}

// PredictProba returns normalized neighbour votes per class.
func (k *KNeighborsClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	if r == 0 {
		return nil, errors.NewModelError("KNeighborsClassifier.PredictProba", "empty data", errors.ErrEmptyData)
	}
	out := mat.NewDense(r, max(len(k.ClassList), 1), nil)
	err := k.query("KNeighborsClassifier", X, func(i int, nb []neighbor, w []float64) {
		var total float64
		for j, n := range nb {
			out.Set(i, int(k.Encoded[n.index]), out.At(i, int(k.Encoded[n.index]))+w[j])
			total += w[j]
		}
		for c := range k.ClassList {
			out.Set(i, c, errors.SafeDivide(out.At(i, c), total))
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Predict returns the class with the largest weighted vote.
func (k *KNeighborsClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := k.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxClasses(proba, k.ClassList), nil
}

// Score returns the mean accuracy.
func (k *KNeighborsClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := k.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return errors.SafeDivide(float64(correct), float64(r)), nil
}

// Classes returns the sorted class values seen during Fit.
func (k *KNeighborsClassifier) Classes() []float64 { return slices.Clone(k.ClassList) }

func (k *KNeighborsClassifier) String() string {
	return fmt.Sprintf("KNeighborsClassifier(n_neighbors=%d, weights=%s)", k.NNeighbors, k.Weights)
}

// KNeighborsRegressor averages the targets of the k nearest training rows.
type KNeighborsRegressor struct {
	NeighborsBase
}

// NewKNeighborsRegressor creates a regressor with k=5 and uniform weights.
func NewKNeighborsRegressor(opts ...Option) *KNeighborsRegressor {
	p := Params{NNeighbors: 5, Weights: WeightsUniform}
	for _, opt := range opts {
		opt(&p)
	}
	return &KNeighborsRegressor{NeighborsBase: NeighborsBase{State: model.NewStateManager(), Params: p}}
}

// Fit stores the training set.
func (k *KNeighborsRegressor) Fit(X, y mat.Matrix) error {
	return k.fit("KNeighborsRegressor.Fit", X, y)
}

// Predict returns the weighted mean target of the neighbours.
func (k *KNeighborsRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	r, _ := X.Dims()
	if r == 0 {
		return nil, errors.NewModelError("KNeighborsRegressor.Predict", "empty data", errors.ErrEmptyData)
	}
	out := mat.NewDense(r, 1, nil)
	err := k.query("KNeighborsRegressor", X, func(i int, nb []neighbor, w []float64) {
		var sum, total float64
		for j, n := range nb {
			sum += w[j] * k.YTrain[n.index]
			total += w[j]
		}
		out.Set(i, 0, errors.SafeDivide(sum, total))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Score returns R².
func (k *KNeighborsRegressor) Score(X, y mat.Matrix) (float64, error) {
	return tree.R2(k, X, y)
}

func (k *KNeighborsRegressor) String() string {
	return fmt.Sprintf("KNeighborsRegressor(n_neighbors=%d, weights=%s)", k.NNeighbors, k.Weights)
}

var (
	_ model.Classifier = (*KNeighborsClassifier)(nil)
	_ model.Regressor  = (*KNeighborsRegressor)(nil)
)
