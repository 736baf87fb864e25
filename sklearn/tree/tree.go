package tree

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// DecisionTreeClassifier is a CART classifier.
type DecisionTreeClassifier struct {
	State *model.StateManager
	Params
	Tree      *Tree
	ClassList []float64
}

// NewDecisionTreeClassifier creates a classifier with gini impurity and no depth limit.
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	p := defaultParams("gini")
	for _, opt := range opts {
		opt(&p)
	}
	return &DecisionTreeClassifier{State: model.NewStateManager(), Params: p}
}

// EncodeClasses maps arbitrary float labels to indices 0..k-1 over the sorted
// distinct values.
func EncodeClasses(y mat.Matrix) (encoded, classes []float64) {
	r, _ := y.Dims()
	raw := make([]float64, r)
	for i := range raw {
		raw[i] = y.At(i, 0)
	}
	classes = slices.Clone(raw)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	encoded = make([]float64, r)
	for i, v := range raw {
		k, _ := slices.BinarySearch(classes, v)
		encoded[i] = float64(k)
	}
	return encoded, classes
}

func checkXY(op string, X, y mat.Matrix) (int, int, error) {
	r, c := X.Dims()
	ry, cy := y.Dims()
	if r == 0 || c == 0 {
		return 0, 0, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	if ry != r {
		return 0, 0, errors.NewDimensionError(op, r, ry, 0)
	}
	if cy != 1 {
		return 0, 0, errors.NewValueError(op, "y must be a column vector")
	}
	return r, c, nil
}

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// Fit grows the tree on X and y.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	r, c, err := checkXY("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	encoded, classes := EncodeClasses(y)
	t, err := Build(AsDense(X), encoded, allRows(r), len(classes), dt.Params, NewRand(dt.RandomState))
	if err != nil {
		return err
	}
	dt.Tree = t
	dt.ClassList = classes
	dt.State.SetFitted(c, r)
	return nil
}

// PredictProba returns the class distribution of the leaf reached by each row.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.State.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := dt.State.CheckFeatures("DecisionTreeClassifier.PredictProba", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, len(dt.ClassList), nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.Tree.Leaf(row).Value)
	}
	return out, nil
}

// Predict returns the most probable class for each row.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return ArgmaxClasses(proba, dt.ClassList), nil
}

// ArgmaxClasses picks, per row, the class with the highest probability.
// Ties go to the smaller class.
func ArgmaxClasses(proba mat.Matrix, classes []float64) *mat.Dense {
	r, k := proba.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		best := 0
		for j := 1; j < k; j++ {
			if proba.At(i, j) > proba.At(i, best) {
				best = j
			}
		}
		out.Set(i, 0, classes[best])
	}
	return out
}

// Score returns the mean accuracy on X and y.
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) (float64, error) {
	return accuracy(dt, X, y)
}

func accuracy(p model.Predictor, X, y mat.Matrix) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	if pr, _ := pred.Dims(); pr != r {
		return 0, errors.NewDimensionError("Score", r, pr, 0)
	}
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return errors.SafeDivide(float64(correct), float64(r)), nil
}

// Classes returns the sorted class values seen during Fit.
func (dt *DecisionTreeClassifier) Classes() []float64 { return slices.Clone(dt.ClassList) }

// GetFeatureImportances returns impurity-based importances normalized to sum to 1.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	if dt.Tree == nil {
		return nil
	}
	return dt.Tree.NormalizedImportances()
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeClassifier) GetDepth() int {
	if dt.Tree == nil {
		return 0
	}
	return dt.Tree.Depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	if dt.Tree == nil {
		return 0
	}
	return dt.Tree.NLeaves()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} { return dt.Params.toMap() }

// SetParams updates hyperparameters by name.
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	return dt.Params.set(params)
}

func (dt *DecisionTreeClassifier) String() string {
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, max_depth=%d)", dt.Criterion, dt.MaxDepth)
}

// DecisionTreeRegressor is a CART regressor minimizing squared error.
type DecisionTreeRegressor struct {
	State *model.StateManager
	Params
	Tree *Tree
}

// NewDecisionTreeRegressor creates a regressor with squared error and no depth limit.
func NewDecisionTreeRegressor(opts ...Option) *DecisionTreeRegressor {
	p := defaultParams("squared_error")
	for _, opt := range opts {
		opt(&p)
	}
	return &DecisionTreeRegressor{State: model.NewStateManager(), Params: p}
}

// Fit grows the tree on X and y.
func (dt *DecisionTreeRegressor) Fit(X, y mat.Matrix) error {
	r, c, err := checkXY("DecisionTreeRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	target := make([]float64, r)
	for i := range target {
		target[i] = y.At(i, 0)
	}
	t, err := Build(AsDense(X), target, allRows(r), 0, dt.Params, NewRand(dt.RandomState))
	if err != nil {
		return err
	}
	dt.Tree = t
	dt.State.SetFitted(c, r)
	return nil
}

// Predict returns the leaf mean for each row.
func (dt *DecisionTreeRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.State.RequireFitted("DecisionTreeRegressor", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := dt.State.CheckFeatures("DecisionTreeRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	row := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, dt.Tree.Leaf(row).Value[0])
	}
	return out, nil
}

// Score returns R² on X and y.
func (dt *DecisionTreeRegressor) Score(X, y mat.Matrix) (float64, error) {
	return R2(dt, X, y)
}

// R2 computes the coefficient of determination of p on X and y.
// A constant target yields 1 for a perfect fit and 0 otherwise.
func R2(p model.Predictor, X, y mat.Matrix) (float64, error) {
	pred, err := p.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	if r == 0 {
		return 0, errors.ErrEmptyData
	}
	var mean float64
	for i := 0; i < r; i++ {
		mean += y.At(i, 0)
	}
	mean /= float64(r)
	var tss, rss float64
	for i := 0; i < r; i++ {
		d := y.At(i, 0) - mean
		e := y.At(i, 0) - pred.At(i, 0)
		tss += d * d
		rss += e * e
	}
	if tss == 0 {
		if rss == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - rss/tss, nil
}

// GetFeatureImportances returns impurity-based importances normalized to sum to 1.
func (dt *DecisionTreeRegressor) GetFeatureImportances() []float64 {
	if dt.Tree == nil {
		return nil
	}
	return dt.Tree.NormalizedImportances()
}

// GetDepth returns the depth of the fitted tree.
func (dt *DecisionTreeRegressor) GetDepth() int {
	if dt.Tree == nil {
		return 0
	}
	return dt.Tree.Depth()
}

// GetNLeaves returns the number of leaves of the fitted tree.
func (dt *DecisionTreeRegressor) GetNLeaves() int {
	if dt.Tree == nil {
		return 0
	}
	return dt.Tree.NLeaves()
}

// GetParams returns the hyperparameters.
func (dt *DecisionTreeRegressor) GetParams() map[string]interface{} { return dt.Params.toMap() }

// SetParams updates hyperparameters by name.
func (dt *DecisionTreeRegressor) SetParams(params map[string]interface{}) error {
	return dt.Params.set(params)
}

func (p Params) toMap() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         p.Criterion,
		"max_depth":         p.MaxDepth,
		"min_samples_split": p.MinSamplesSplit,
		"min_samples_leaf":  p.MinSamplesLeaf,
		"max_features":      p.MaxFeatures,
		"random_state":      p.RandomState,
	}
}

func (p *Params) set(params map[string]interface{}) error {
	for k, v := range params {
		switch k {
		case "criterion":
			s, ok := v.(string)
			if !ok {
				return errors.NewValidationError(k, "must be a string", v)
			}
			p.Criterion = s
		case "max_depth", "min_samples_split", "min_samples_leaf", "max_features":
			n, ok := v.(int)
			if !ok {
				return errors.NewValidationError(k, "must be an int", v)
			}
			switch k {
			case "max_depth":
				p.MaxDepth = n
			case "min_samples_split":
				p.MinSamplesSplit = n
			case "min_samples_leaf":
				p.MinSamplesLeaf = n
			default:
				p.MaxFeatures = n
			}
		case "random_state":
			switch s := v.(type) {
			case uint64:
				p.RandomState = s
			case int:
				p.RandomState = uint64(s)
			default:
				return errors.NewValidationError(k, "must be an integer", v)
			}
		default:
			return errors.NewValidationError(k, "unknown parameter", v)
		}
	}
	return nil
}

var (
	_ model.Classifier = (*DecisionTreeClassifier)(nil)
	_ model.Regressor  = (*DecisionTreeRegressor)(nil)
)
