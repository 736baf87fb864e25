package metrics

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

func TestAccuracy(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{name: "perfect", yTrue: []float64{0, 1, 2, 1, 0}, yPred: []float64{0, 1, 2, 1, 0}, want: 1},
		{name: "80%", yTrue: []float64{0, 1, 2, 1, 0}, yPred: []float64{0, 1, 1, 1, 0}, want: 0.8},
		{name: "zero", yTrue: []float64{0, 0, 0}, yPred: []float64{1, 1, 1}, want: 0},
		{name: "empty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var yTrue, yPred *mat.VecDense
			if len(tt.yTrue) > 0 {
				yTrue = mat.NewVecDense(len(tt.yTrue), tt.yTrue)
				yPred = mat.NewVecDense(len(tt.yPred), tt.yPred)
			}
			got, err := Accuracy(yTrue, yPred)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)

			byLabel, err := AccuracyLabels(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.Equal(t, got, byLabel)
		})
	}
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := []string{"cat", "dog", "cat", "bird", "dog"}
	yPred := []string{"cat", "cat", "cat", "bird", "dog"}

	cm, labels, err := ConfusionMatrix(yTrue, yPred, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"bird", "cat", "dog"}, labels)
	want := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 2, 0,
		0, 1, 1,
	})
	assert.True(t, mat.Equal(want, cm))

	_, _, err = ConfusionMatrix(yTrue, yPred[:2], nil)
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestWeightedScoresWithZeroDivision(t *testing.T) {
	tests := []struct {
		name         string
		zeroDivision ZeroDivision
		wantWarnings int
	}{
		{name: "warn", zeroDivision: ZeroDivisionWarn, wantWarnings: 1},
		{name: "zero is silent", zeroDivision: ZeroDivisionZero, wantWarnings: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu       sync.Mutex
				warnings []error
			)
			errors.SetZerologWarnFunc(func(w error) {
				mu.Lock()
				defer mu.Unlock()
				warnings = append(warnings, w)
			})
			defer errors.SetZerologWarnFunc(nil)

			// class 2 is never predicted: its precision is 0 instead of an error
			yTrue := []float64{0, 0, 1, 1, 2, 2}
			yPred := []float64{0, 0, 1, 1, 1, 1}

			s, err := ScoreClassification(yTrue, yPred, tt.zeroDivision)
			require.NoError(t, err)

			assert.InDelta(t, 4.0/6.0, s.Accuracy, 1e-12)
			// per class precision: 1, 0.5, 0 ; recall: 1, 1, 0 ; support 2 each
			assert.InDelta(t, 0.5, s.Precision, 1e-12)
			assert.InDelta(t, 4.0/6.0, s.Recall, 1e-12)
			assert.InDelta(t, (1+2.0/3.0+0)/3, s.F1Score, 1e-12)

			require.Len(t, warnings, tt.wantWarnings)
			if tt.wantWarnings > 0 {
				var undefined *errors.UndefinedMetricWarning
				require.True(t, errors.As(warnings[0], &undefined))
				assert.Equal(t, "precision", undefined.Metric)
			}

			name, v := s.Primary()
			assert.Equal(t, "accuracy", name)
			assert.Equal(t, s.Accuracy, v)
		})
	}
}

func TestClassificationReport(t *testing.T) {
	errors.SetZerologWarnFunc(func(error) {})
	defer errors.SetZerologWarnFunc(nil)

	report, err := ClassificationReport([]string{"a", "a", "b"}, []string{"a", "b", "b"}, nil, ZeroDivisionWarn)
	require.NoError(t, err)
	require.Len(t, report, 5)

	assert.Equal(t, "a", report[0].Label)
	assert.InDelta(t, 1.0, report[0].Precision, 1e-12)
	assert.InDelta(t, 0.5, report[0].Recall, 1e-12)
	assert.Equal(t, 2.0, report[0].Support)

	assert.Equal(t, "accuracy", report[2].Label)
	assert.InDelta(t, 2.0/3.0, report[2].F1Score, 1e-12)
	assert.Equal(t, "macro avg", report[3].Label)
	assert.Equal(t, "weighted avg", report[4].Label)
	assert.Equal(t, 3.0, report[4].Support)
}

func TestWriteAndReadScores(t *testing.T) {
	dir := t.TempDir()

	cls := &ClassificationScores{Accuracy: 0.9, Precision: 0.8, Recall: 0.7, F1Score: 0.75}
	path := filepath.Join(dir, "figures", "metrics_random_forest.csv")
	require.NoError(t, WriteScores(path, cls))
	got, err := ReadClassificationScores(path)
	require.NoError(t, err)
	assert.Equal(t, cls, got)

	reg := &RegressionScores{MSE: 2, RMSE: 1.4142135623730951, R2: 0.5}
	regPath := filepath.Join(dir, "metrics_svr.csv")
	require.NoError(t, WriteScores(regPath, reg))
	gotReg, err := ReadRegressionScores(regPath)
	require.NoError(t, err)
	assert.Equal(t, reg, gotReg)
}
