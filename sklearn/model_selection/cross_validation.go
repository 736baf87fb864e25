package model_selection

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/core/model"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

// KFoldSplitter defines interface for cross-validation splitters
type KFoldSplitter interface {
	Split(X, y mat.Matrix) []CVFold
	GetNSplits() int
}

// CVFold represents a single fold in cross-validation
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed uint64) *KFold {
	if nSplits < 2 {
		nSplits = 5 // Default to 5-fold
	}
	return &KFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold.
// The first n % k folds get one extra test row.
func (kf *KFold) Split(X, _ mat.Matrix) []CVFold {
	nSamples, _ := X.Dims()

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := newRand(kf.RandomSeed)
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	folds := make([]CVFold, kf.NSplits)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits

	current := 0
	for i := 0; i < kf.NSplits; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		folds[i] = CVFold{
			TestIndices:  append([]int(nil), indices[current:current+testSize]...),
			TrainIndices: append(append([]int(nil), indices[:current]...), indices[current+testSize:]...),
		}
		current += testSize
	}
	return folds
}

// StratifiedKFold implements stratified k-fold cross-validation
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed uint64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed uint64) *StratifiedKFold {
	if nSplits < 2 {
		nSplits = 5
	}
	return &StratifiedKFold{NSplits: nSplits, Shuffle: shuffle, RandomSeed: randomSeed}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split distributes each class round-robin-by-block over the folds.
// Classes are visited in ascending label order so the result is deterministic.
func (skf *StratifiedKFold) Split(X, y mat.Matrix) []CVFold {
	nSamples, _ := X.Dims()

	labels := make([]float64, nSamples)
	for i := range labels {
		labels[i] = y.At(i, 0)
	}
	classes := slices.Clone(labels)
	slices.Sort(classes)
	classes = slices.Compact(classes)

	classIndices := make(map[float64][]int, len(classes))
	for i, l := range labels {
		classIndices[l] = append(classIndices[l], i)
	}

	if skf.Shuffle {
		r := newRand(skf.RandomSeed)
		for _, c := range classes {
			indices := classIndices[c]
			r.Shuffle(len(indices), func(i, j int) {
				indices[i], indices[j] = indices[j], indices[i]
			})
		}
	}

	folds := make([]CVFold, skf.NSplits)
	for _, c := range classes {
		indices := classIndices[c]
		nClass := len(indices)
		foldSize := nClass / skf.NSplits
		remainder := nClass % skf.NSplits

		current := 0
		for i := 0; i < skf.NSplits; i++ {
			testSize := foldSize
			if i < remainder {
				testSize++
			}
			folds[i].TestIndices = append(folds[i].TestIndices, indices[current:current+testSize]...)
			current += testSize
		}
	}

	for i := range folds {
		testSet := make(map[int]bool, len(folds[i].TestIndices))
		for _, idx := range folds[i].TestIndices {
			testSet[idx] = true
		}
		for j := 0; j < nSamples; j++ {
			if !testSet[j] {
				folds[i].TrainIndices = append(folds[i].TrainIndices, j)
			}
		}
	}
	return folds
}

// ScoredEstimator is any estimator that can score itself, classifiers and
// regressors alike.
type ScoredEstimator interface {
	model.Estimator
	model.Scorer
}

// CrossValScore fits a fresh estimator from newModel on every fold's train
// rows and returns its Score on the fold's test rows.
func CrossValScore(newModel func() ScoredEstimator, X, y mat.Matrix, cv KFoldSplitter) ([]float64, error) {
	folds := cv.Split(X, y)
	scores := make([]float64, 0, len(folds))
	for i, fold := range folds {
		if len(fold.TrainIndices) == 0 || len(fold.TestIndices) == 0 {
			return nil, errors.NewValueError("CrossValScore", "empty fold; reduce the number of splits")
		}
		m := newModel()
		if err := m.Fit(TakeRows(X, fold.TrainIndices), TakeRows(y, fold.TrainIndices)); err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
		s, err := m.Score(TakeRows(X, fold.TestIndices), TakeRows(y, fold.TestIndices))
		if err != nil {
			return nil, errors.Wrapf(err, "fold %d", i)
		}
		scores = append(scores, s)
	}
	return scores, nil
}
