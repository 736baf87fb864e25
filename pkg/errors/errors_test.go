package errors

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "tabflow: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			wantMsg: "tabflow: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())

			// スタックトレースの存在確認
			assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")

			var modelErr *ModelError
			assert.True(t, As(err, &modelErr))
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Predict", 4, 3, 1)
	assert.Equal(t, "tabflow: Predict: dimension mismatch on axis 1 (features). Expected 4, got 3", err.Error())

	var dimErr *DimensionError
	require.True(t, As(err, &dimErr))
	assert.Equal(t, 4, dimErr.Expected)
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("RandomForestClassifier", "Predict")
	assert.Equal(t, "tabflow: RandomForestClassifier: this model is not fitted yet. Call Fit() before using Predict()", err.Error())

	var notFitted *NotFittedError
	assert.True(t, As(err, &notFitted))
}

func TestPipelineErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains []string
		check    func(t *testing.T, err error)
	}{
		{
			name:     "source format",
			err:      NewSourceFormatError("preset iris", "bunch with 4 feature names but 3 columns"),
			contains: []string{"preset iris", "3 columns"},
			check: func(t *testing.T, err error) {
				var target *SourceFormatError
				assert.True(t, As(err, &target))
			},
		},
		{
			name:     "missing column lists available columns",
			err:      NewMissingColumnError("medv", "", []string{"a", "b"}),
			contains: []string{"'medv'", "[a, b]"},
			check: func(t *testing.T, err error) {
				var target *MissingColumnError
				require.True(t, As(err, &target))
				assert.Equal(t, []string{"a", "b"}, target.Available)
			},
		},
		{
			name:     "missing column with fallback",
			err:      NewMissingColumnError("target", "x", []string{"x"}),
			contains: []string{"fallback 'x'"},
		},
		{
			name:     "unsupported model",
			err:      NewUnsupportedModelError("svr", "classification", []string{"random_forest", "knn"}),
			contains: []string{"'svr'", "classification", "random_forest, knn"},
		},
		{
			name:     "tracking unwraps",
			err:      NewTrackingError("log_metrics", ErrEmptyData),
			contains: []string{"tracking log_metrics failed"},
			check: func(t *testing.T, err error) {
				assert.True(t, Is(err, ErrEmptyData))
			},
		},
		{
			name:     "stage unwraps",
			err:      NewStageError("train", ErrSingularMatrix),
			contains: []string{"stage train failed", "singular matrix"},
			check: func(t *testing.T, err error) {
				assert.True(t, Is(err, ErrSingularMatrix))
				var target *StageError
				require.True(t, As(err, &target))
				assert.Equal(t, "train", target.Stage)
			},
		},
		{
			name:     "schema mismatch",
			err:      NewSchemaMismatchError([]string{"a", "b"}, []string{"a"}),
			contains: []string{"expects 2 columns", "got 1 columns"},
		},
		{
			name:     "numerical instability truncates values",
			err:      NewNumericalInstabilityError("dual_update", []float64{1, 2, 3, 4, 5, 6, 7}, 3),
			contains: []string{"dual_update", "iteration 3", "..."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.err)
			for _, s := range tt.contains {
				assert.Contains(t, tt.err.Error(), s)
			}
			if tt.check != nil {
				tt.check(t, tt.err)
			}
		})
	}
}

func TestMissingColumnErrorCopiesAvailable(t *testing.T) {
	cols := []string{"a", "b"}
	err := NewMissingColumnError("target", "", cols)
	cols[0] = "mutated"

	var target *MissingColumnError
	require.True(t, As(err, &target))
	assert.Equal(t, "a", target.Available[0])
}

func TestWarnUsesRegisteredFunc(t *testing.T) {
	var (
		mu  sync.Mutex
		got []error
	)
	SetZerologWarnFunc(func(w error) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, w)
	})
	defer SetZerologWarnFunc(nil)

	Warn(NewConvergenceWarning("SVR", 100, ""))

	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0].Error(), "SVR failed to converge after 100 iterations"))
}

func TestWarnFallsBackToHandler(t *testing.T) {
	var got error
	SetWarningHandler(func(w error) { got = w })
	defer SetWarningHandler(nil)

	Warn(NewUndefinedMetricWarning("precision", "no predicted samples", 0))
	require.Error(t, got)
	assert.Contains(t, got.Error(), "'precision' is ill-defined")
}

func TestWrapfAndIs(t *testing.T) {
	wrapped := Wrapf(ErrEmptyData, "in %s: expected %d, got %d", "Predict", 10, 5)
	assert.True(t, Is(wrapped, ErrEmptyData))
	assert.Contains(t, wrapped.Error(), "in Predict: expected 10, got 5")
}

func TestNumericalHelpers(t *testing.T) {
	err := CheckNumericalStability("scaler", []float64{1, math.NaN(), math.Inf(1)}, 0)
	var instab *NumericalInstabilityError
	require.True(t, As(err, &instab))
	assert.Len(t, instab.Values, 2)
	assert.NoError(t, CheckNumericalStability("scaler", []float64{1, 2}, 0))

	// zero_division=0
	assert.Equal(t, 0.0, SafeDivide(3, 0))
	assert.Equal(t, 0.0, SafeDivide(3, 1e-12))

	assert.Equal(t, 2.0, SafeDivide(4, 2))

	assert.Equal(t, -1.0, ClipValue(-3, -1, 1))
	assert.Equal(t, 1.0, ClipValue(3, -1, 1))
	assert.Equal(t, 0.5, ClipValue(0.5, -1, 1))
}
