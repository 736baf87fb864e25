package model_selection

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/linear"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

func TestTrainTestSplitSizes(t *testing.T) {
	tests := []struct {
		n         int
		testSize  float64
		wantTest  int
		wantTrain int
	}{
		{150, 0.2, 30, 120},
		{10, 0.25, 3, 7},
		{506, 0.2, 102, 404},
		{3, 0.5, 2, 1},
	}
	for _, tt := range tests {
		train, test, err := TrainTestSplit(tt.n, tt.testSize, 42)
		require.NoError(t, err)
		assert.Len(t, test, tt.wantTest)
		assert.Len(t, train, tt.wantTrain)

		all := append(slices.Clone(train), test...)
		slices.Sort(all)
		for i, v := range all {
			assert.Equal(t, i, v)
		}
	}
}

func TestTrainTestSplitDeterministic(t *testing.T) {
	trainA, testA, err := TrainTestSplit(100, 0.2, 7)
	require.NoError(t, err)
	trainB, testB, err := TrainTestSplit(100, 0.2, 7)
	require.NoError(t, err)
	assert.Equal(t, trainA, trainB)
	assert.Equal(t, testA, testB)

	_, testC, err := TrainTestSplit(100, 0.2, 8)
	require.NoError(t, err)
	assert.NotEqual(t, testA, testC)
}

func TestTrainTestSplitErrors(t *testing.T) {
	_, _, err := TrainTestSplit(10, 0, 1)
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, _, err = TrainTestSplit(1, 0.5, 1)
	var valErr *errors.ValueError
	assert.True(t, errors.As(err, &valErr))
}

func TestStratifiedTrainTestSplit(t *testing.T) {
	labels := make([]string, 0, 100)
	for i := 0; i < 80; i++ {
		labels = append(labels, "+")
	}
	for i := 0; i < 20; i++ {
		labels = append(labels, "-")
	}

	train, test, err := StratifiedTrainTestSplit(labels, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)

	count := func(rows []int, label string) int {
		n := 0
		for _, r := range rows {
			if labels[r] == label {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 16, count(test, "+"))
	assert.Equal(t, 4, count(test, "-"))
}

func TestStratifiedTrainTestSplitRejectsSingletonClass(t *testing.T) {
	_, _, err := StratifiedTrainTestSplit([]float64{0, 0, 0, 1}, 0.5, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only 1 member")
}

func TestAllocate(t *testing.T) {
	assert.Equal(t, []int{10, 10, 10}, allocate([]int{50, 50, 50}, 30))
	assert.Equal(t, []int{1, 1}, allocate([]int{3, 2}, 2))
	assert.Equal(t, []int{1, 1}, allocate([]int{2, 2}, 3), "no class gives up every member")
}

func TestKFold(t *testing.T) {
	X := mat.NewDense(10, 1, nil)
	folds := NewKFold(3, false, 0).Split(X, nil)
	require.Len(t, folds, 3)
	assert.Equal(t, []int{0, 1, 2, 3}, folds[0].TestIndices)
	assert.Equal(t, []int{4, 5, 6}, folds[1].TestIndices)
	assert.Len(t, folds[2].TrainIndices, 7)

	shuffled := NewKFold(3, true, 42).Split(X, nil)
	seen := map[int]bool{}
	for _, f := range shuffled {
		for _, i := range f.TestIndices {
			assert.False(t, seen[i])
			seen[i] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestStratifiedKFold(t *testing.T) {
	X := mat.NewDense(9, 1, nil)
	y := mat.NewDense(9, 1, []float64{0, 0, 0, 1, 1, 1, 2, 2, 2})
	folds := NewStratifiedKFold(3, true, 1).Split(X, y)
	for _, f := range folds {
		assert.Len(t, f.TestIndices, 3)
		classes := map[float64]bool{}
		for _, i := range f.TestIndices {
			classes[y.At(i, 0)] = true
		}
		assert.Len(t, classes, 3)
	}
}

func TestCrossValScore(t *testing.T) {
	n := 20
	X := mat.NewDense(n, 1, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i))
		y.Set(i, 0, 3*float64(i)-2)
	}
	scores, err := CrossValScore(func() ScoredEstimator { return linear.NewLinearRegression() }, X, y, NewKFold(4, true, 42))
	require.NoError(t, err)
	require.Len(t, scores, 4)
	for _, s := range scores {
		assert.InDelta(t, 1.0, s, 1e-9)
	}
}

func TestTakeRows(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6})
	got := TakeRows(X, []int{2, 0})
	assert.Equal(t, []float64{5, 6}, mat.Row(nil, 0, got))
	assert.Equal(t, []string{"c", "a"}, TakeValues([]string{"a", "b", "c"}, []int{2, 0}))
}
