// Package model_selection provides deterministic train/test splitting and
// k-fold cross-validation.
package model_selection

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// splitSizes は sklearn と同じく n_test = ceil(n * testSize), n_train = n - n_test を返す
func splitSizes(n int, testSize float64) (nTrain, nTest int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return 0, 0, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTest = int(math.Ceil(float64(n) * testSize))
	nTrain = n - nTest
	if nTrain < 1 || nTest < 1 {
		return 0, 0, errors.NewValueError("TrainTestSplit",
			fmt.Sprintf("with n_samples=%d and test_size=%g the resulting train set would be empty", n, testSize))
	}
	return nTrain, nTest, nil
}

// TrainTestSplit shuffles row indices 0..n-1 with a PCG stream seeded by
// seed and returns the train and test indices.
func TrainTestSplit(n int, testSize float64, seed uint64) (train, test []int, err error) {
	_, nTest, err := splitSizes(n, testSize)
	if err != nil {
		return nil, nil, err
	}
	perm := newRand(seed).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// StratifiedTrainTestSplit splits like TrainTestSplit while preserving the
// class proportions of labels in both parts. Every class needs at least two
// members, and both parts must be able to hold one row per class.
func StratifiedTrainTestSplit[T cmp.Ordered](labels []T, testSize float64, seed uint64) (train, test []int, err error) {
	n := len(labels)
	nTrain, nTest, err := splitSizes(n, testSize)
	if err != nil {
		return nil, nil, err
	}

	groups := make(map[T][]int)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	classes := make([]T, 0, len(groups))
	for c := range groups {
		classes = append(classes, c)
	}
	slices.Sort(classes)

	for _, c := range classes {
		if len(groups[c]) < 2 {
			return nil, nil, errors.NewValueError("StratifiedTrainTestSplit",
				fmt.Sprintf("the least populated class in y (%v) has only 1 member, which is too few. The minimum number of groups for any class cannot be less than 2", c))
		}
	}
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, nil, errors.NewValueError("StratifiedTrainTestSplit",
			fmt.Sprintf("test size %d and train size %d should be greater or equal to the number of classes %d", nTest, nTrain, len(classes)))
	}

	counts := make([]int, len(classes))
	for k, c := range classes {
		counts[k] = len(groups[c])
	}
	alloc := allocate(counts, nTest)

	rng := newRand(seed)
	for k, c := range classes {
		idx := groups[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		test = append(test, idx[:alloc[k]]...)
		train = append(train, idx[alloc[k]:]...)
	}
	rng.Shuffle(len(test), func(i, j int) { test[i], test[j] = test[j], test[i] })
	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	return train, test, nil
}

// allocate distributes total draws over classes proportionally to counts
// with the largest remainder method. Ties go to the earlier class, and no
// class receives all of its members.
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}
	alloc := make([]int, len(counts))
	type rem struct {
		k    int
		frac float64
	}
	rems := make([]rem, len(counts))
	assigned := 0
	for k, c := range counts {
		exact := float64(total) * float64(c) / float64(n)
		alloc[k] = min(int(math.Floor(exact)), c-1)
		assigned += alloc[k]
		rems[k] = rem{k: k, frac: exact - float64(alloc[k])}
	}
	slices.SortStableFunc(rems, func(a, b rem) int { return cmp.Compare(b.frac, a.frac) })
	for assigned < total {
		progressed := false
		for _, r := range rems {
			if assigned == total {
				break
			}
			if alloc[r.k] < counts[r.k]-1 {
				alloc[r.k]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return alloc
}

// TakeRows copies the listed rows of X into a new matrix.
func TakeRows(X mat.Matrix, rows []int) *mat.Dense {
	_, c := X.Dims()
	out := mat.NewDense(len(rows), c, nil)
	buf := make([]float64, c)
	for i, r := range rows {
		mat.Row(buf, r, X)
		out.SetRow(i, buf)
	}
	return out
}

// TakeValues returns values[rows[i]] for every i.
func TakeValues[T any](values []T, rows []int) []T {
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}
