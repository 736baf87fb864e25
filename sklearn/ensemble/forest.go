// Package ensemble implements bagged random forests over sklearn/tree.
//
// Each tree sees a bootstrap sample of the rows and a random subset of the
// features at every split. Trees are grown concurrently with core/parallel;
// every tree draws from its own PCG stream seeded from RandomState, so a
// fitted forest does not depend on scheduling.
package ensemble

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/core/parallel"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
	"github.com/YuminosukeSato/tabflow/sklearn/tree"
)

// MaxFeatures rules understood by the forests.
const (
	MaxFeaturesSqrt = "sqrt"
	MaxFeaturesLog2 = "log2"
	MaxFeaturesAll  = "all"
)

// ForestParams are the hyperparameters shared by both forests.
type ForestParams struct {
	NEstimators     int
	Criterion       string
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     string
	Bootstrap       bool
	RandomState     uint64
	NJobs           int
}

// Option configures ForestParams.
type Option func(*ForestParams)

// WithNEstimators sets the number of trees.
func WithNEstimators(n int) Option { return func(p *ForestParams) { p.NEstimators = n } }

// WithCriterion sets the split criterion of every tree.
func WithCriterion(c string) Option { return func(p *ForestParams) { p.Criterion = c } }

// WithMaxDepth limits tree depth. Zero means unlimited.
func WithMaxDepth(d int) Option { return func(p *ForestParams) { p.MaxDepth = d } }

// WithMinSamplesSplit sets the minimum samples needed to split a node.
func WithMinSamplesSplit(n int) Option { return func(p *ForestParams) { p.MinSamplesSplit = n } }

// WithMinSamplesLeaf sets the minimum samples per leaf.
func WithMinSamplesLeaf(n int) Option { return func(p *ForestParams) { p.MinSamplesLeaf = n } }

// WithMaxFeatures sets the per-split feature rule: "sqrt", "log2" or "all".
func WithMaxFeatures(rule string) Option { return func(p *ForestParams) { p.MaxFeatures = rule } }

// WithBootstrap toggles bootstrap sampling of rows.
func WithBootstrap(b bool) Option { return func(p *ForestParams) { p.Bootstrap = b } }

// WithRandomState seeds the forest.
func WithRandomState(seed uint64) Option { return func(p *ForestParams) { p.RandomState = seed } }

// WithNJobs sets the number of goroutines used to grow trees. Zero or
// negative means runtime.NumCPU.
func WithNJobs(n int) Option { return func(p *ForestParams) { p.NJobs = n } }

func (p ForestParams) validate() error {
	if p.NEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", p.NEstimators)
	}
	switch p.MaxFeatures {
	case MaxFeaturesSqrt, MaxFeaturesLog2, MaxFeaturesAll:
		return nil
	}
	return errors.NewValidationError("max_features", "must be sqrt, log2 or all", p.MaxFeatures)
}

func (p ForestParams) featuresPerSplit(nFeatures int) int {
	var k int
	switch p.MaxFeatures {
	case MaxFeaturesSqrt:
		k = int(math.Sqrt(float64(nFeatures)))
	case MaxFeaturesLog2:
		k = int(math.Log2(float64(nFeatures)))
	default:
		k = nFeatures
	}
	return max(k, 1)
}

func (p ForestParams) treeParams(nFeatures int, seed uint64) tree.Params {
	return tree.Params{
		Criterion:       p.Criterion,
		MaxDepth:        p.MaxDepth,
		MinSamplesSplit: p.MinSamplesSplit,
		MinSamplesLeaf:  p.MinSamplesLeaf,
		MaxFeatures:     p.featuresPerSplit(nFeatures),
		RandomState:     seed,
	}
}

// GetParams returns the hyperparameters.
func (p ForestParams) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      p.NEstimators,
		"criterion":         p.Criterion,
		"max_depth":         p.MaxDepth,
		"min_samples_split": p.MinSamplesSplit,
		"min_samples_leaf":  p.MinSamplesLeaf,
		"max_features":      p.MaxFeatures,
		"bootstrap":         p.Bootstrap,
		"random_state":      p.RandomState,
	}
}

// growForest fits NEstimators trees on X/y. nClasses is 0 for regression.
func growForest(op string, p ForestParams, X *mat.Dense, y []float64, nClasses int) ([]*tree.Tree, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	r, c := X.Dims()

	// 木ごとのシードは逐次に引いておく（並列実行順に依存しないように）
	master := tree.NewRand(p.RandomState)
	seeds := make([]uint64, p.NEstimators)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	logger := log.GetLoggerWithName("ensemble")
	logger.Debug("Growing forest",
		log.ModelNameKey, op,
		log.SamplesKey, r,
		log.FeaturesKey, c,
		"n_estimators", p.NEstimators,
	)

	trees := make([]*tree.Tree, p.NEstimators)
	err := parallel.ForEach(p.NEstimators, p.NJobs, func(i int) error {
		rng := tree.NewRand(seeds[i])
		indices := make([]int, r)
		for j := range indices {
			if p.Bootstrap {
				indices[j] = rng.IntN(r)
			} else {
				indices[j] = j
			}
		}
		t, err := tree.Build(X, y, indices, nClasses, p.treeParams(c, seeds[i]), rng)
		if err != nil {
			return errors.Wrapf(err, "%s: tree %d", op, i)
		}
		trees[i] = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trees, nil
}

func importances(trees []*tree.Tree, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	for _, t := range trees {
		for j, v := range t.NormalizedImportances() {
			out[j] += v
		}
	}
	var total float64
	for _, v := range out {
		total += v
	}
	for j := range out {
		out[j] = errors.SafeDivide(out[j], total)
	}
	return out
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

// RandomForestClassifier averages the class distributions of its trees.
type RandomForestClassifier struct {
	State *model.StateManager
	ForestParams
	Trees     []*tree.Tree
	ClassList []float64
}

// NewRandomForestClassifier creates a forest of 100 gini trees using
// sqrt(n_features) candidates per split.
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	p := ForestParams{
		NEstimators:     100,
		Criterion:       "gini",
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeaturesSqrt,
		Bootstrap:       true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &RandomForestClassifier{State: model.NewStateManager(), ForestParams: p}
}

// Fit grows the forest.
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	r, c, err := checkXY("RandomForestClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	encoded, classes := tree.EncodeClasses(y)
	trees, err := growForest("RandomForestClassifier", rf.ForestParams, tree.AsDense(X), encoded, len(classes))
	if err != nil {
		return err
	}
	rf.Trees = trees
	rf.ClassList = classes
	rf.State.SetFitted(c, r)
	return nil
}

// PredictProba returns the mean class distribution over all trees.
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.State.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.State.CheckFeatures("RandomForestClassifier.PredictProba", c); err != nil {
		return nil, err
	}
	k := len(rf.ClassList)
	out := mat.NewDense(r, k, nil)
	n := float64(len(rf.Trees))
	parallel.Parallelize(r, rf.NJobs, func(start, end int) {
		row := make([]float64, c)
		acc := make([]float64, k)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			clear(acc)
			for _, t := range rf.Trees {
				for j, v := range t.Leaf(row).Value {
					acc[j] += v
				}
			}
			for j := range acc {
				out.Set(i, j, acc[j]/n)
			}
		}
	})
	return out, nil
}

// Predict returns the class with the highest mean probability.
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return tree.ArgmaxClasses(proba, rf.ClassList), nil
}

// Score returns the mean accuracy.
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := y.Dims()
	if pr, _ := pred.Dims(); pr != r {
		return 0, errors.NewDimensionError("RandomForestClassifier.Score", r, pr, 0)
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
func (rf *RandomForestClassifier) Classes() []float64 { return slices.Clone(rf.ClassList) }

// GetFeatureImportances averages the normalized tree importances.
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	nFeatures, _ := rf.State.GetDimensions()
	return importances(rf.Trees, nFeatures)
}

func (rf *RandomForestClassifier) String() string {
	return fmt.Sprintf("RandomForestClassifier(n_estimators=%d, random_state=%d)", rf.NEstimators, rf.RandomState)
}

// RandomForestRegressor averages the predictions of its trees.
type RandomForestRegressor struct {
	State *model.StateManager
	ForestParams
	Trees []*tree.Tree
}

// NewRandomForestRegressor creates a forest of 100 squared-error trees that
// consider every feature at each split.
func NewRandomForestRegressor(opts ...Option) *RandomForestRegressor {
	p := ForestParams{
		NEstimators:     100,
		Criterion:       "squared_error",
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     MaxFeaturesAll,
		Bootstrap:       true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return &RandomForestRegressor{State: model.NewStateManager(), ForestParams: p}
}

// Fit grows the forest.
func (rf *RandomForestRegressor) Fit(X, y mat.Matrix) error {
	r, c, err := checkXY("RandomForestRegressor.Fit", X, y)
	if err != nil {
		return err
	}
	target := make([]float64, r)
	for i := range target {
		target[i] = y.At(i, 0)
	}
	trees, err := growForest("RandomForestRegressor", rf.ForestParams, tree.AsDense(X), target, 0)
	if err != nil {
		return err
	}
	rf.Trees = trees
	rf.State.SetFitted(c, r)
	return nil
}

// Predict returns the mean tree prediction for each row.
func (rf *RandomForestRegressor) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.State.RequireFitted("RandomForestRegressor", "Predict"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if err := rf.State.CheckFeatures("RandomForestRegressor.Predict", c); err != nil {
		return nil, err
	}
	out := mat.NewDense(r, 1, nil)
	n := float64(len(rf.Trees))
	parallel.Parallelize(r, rf.NJobs, func(start, end int) {
		row := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			var sum float64
			for _, t := range rf.Trees {
				sum += t.Leaf(row).Value[0]
			}
			out.Set(i, 0, sum/n)
		}
	})
	return out, nil
}

// Score returns R².
func (rf *RandomForestRegressor) Score(X, y mat.Matrix) (float64, error) {
	return tree.R2(rf, X, y)
}

// GetFeatureImportances averages the normalized tree importances.
func (rf *RandomForestRegressor) GetFeatureImportances() []float64 {
	nFeatures, _ := rf.State.GetDimensions()
	return importances(rf.Trees, nFeatures)
}

func (rf *RandomForestRegressor) String() string {
	return fmt.Sprintf("RandomForestRegressor(n_estimators=%d, random_state=%d)", rf.NEstimators, rf.RandomState)
}

var (
	_ model.Classifier = (*RandomForestClassifier)(nil)
	_ model.Regressor  = (*RandomForestRegressor)(nil)
)
