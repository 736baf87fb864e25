package estimator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name    string
		task    Task
		want    Kind
		wantErr bool
	}{
		{"random_forest", Classification, RandomForest, false},
		{"KNN", Classification, KNN, false},
		{"svr", Regression, SVR, false},
		{" linear_regression ", Regression, LinearRegression, false},
		{"svr", Classification, 0, true},
		{"xgboost", Regression, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.task.String(), func(t *testing.T) {
			got, err := ParseKind(tt.name, tt.task)
			if tt.wantErr {
				var unsupported *errors.UnsupportedModelError
				require.True(t, errors.As(err, &unsupported))
				assert.Equal(t, tt.name, unsupported.Requested)
				assert.Equal(t, SupportedNames(tt.task), unsupported.Supported)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTask(t *testing.T) {
	task, err := ParseTask("Regression")
	require.NoError(t, err)
	assert.Equal(t, Regression, task)

	_, err = ParseTask("clustering")
	assert.Error(t, err)
}

func TestNewEverySupportedKind(t *testing.T) {
	for _, task := range []Task{Classification, Regression} {
		for _, kind := range Supported(task) {
			m, err := New(kind, task, 42)
			require.NoError(t, err, "%s/%s", kind, task)
			assert.NotEmpty(t, Params(m), "%s/%s", kind, task)
		}
	}
	_, err := New(LinearRegression, Classification, 0)
	assert.Error(t, err)
}

func toyFrame(t *testing.T) (*frame.Frame, *frame.Column) {
	t.Helper()
	X, err := frame.New(
		frame.NewNumeric("a", []float64{0, 0.1, 0.2, 5, 5.1, 5.2, 0.05, 5.05}),
		frame.NewNumeric("b", []float64{1, 1.1, 0.9, 9, 9.1, 8.9, 1, 9}),
	)
	require.NoError(t, err)
	y := frame.NewCategorical("target", []string{"no", "no", "no", "yes", "yes", "yes", "no", "yes"})
	return X, y
}

func TestBundleClassificationRoundTrip(t *testing.T) {
	X, y := toyFrame(t)
	b, err := Fit(RandomForest, Classification, 42, X, y)
	require.NoError(t, err)
	assert.Equal(t, []string{"no", "yes"}, b.Classes())
	assert.Equal(t, uint64(42), b.Params["random_state"])

	path := filepath.Join(t.TempDir(), "models", "model.gob")
	require.NoError(t, b.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RandomForest, loaded.Kind)
	assert.Equal(t, []string{"a", "b"}, loaded.FeatureNames)

	pred, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, PredictionColumn, pred.Name)
	assert.Equal(t, y.Strings, pred.Strings)
}

func TestBundleRegression(t *testing.T) {
	X, _ := toyFrame(t)
	y := frame.NewNumeric("target", []float64{1, 1.2, 1.4, 11, 11.2, 11.4, 1.1, 11.1})

	for _, kind := range Supported(Regression) {
		t.Run(kind.String(), func(t *testing.T) {
			b, err := Fit(kind, Regression, 1, X, y)
			require.NoError(t, err)
			pred, err := b.Predict(X)
			require.NoError(t, err)
			assert.Equal(t, frame.Numeric, pred.Kind)
			assert.Len(t, pred.Floats, X.Len())
		})
	}

	_, err := Fit(LinearRegression, Regression, 0, X, frame.NewCategorical("target", make([]string, 8)))
	assert.Error(t, err)
}

func TestBundlePredictSchemaMismatch(t *testing.T) {
	X, y := toyFrame(t)
	b, err := Fit(KNN, Classification, 0, X, y)
	require.NoError(t, err)

	swapped, err := X.Select("b", "a")
	require.NoError(t, err)
	_, err = b.Predict(swapped)
	var mismatch *errors.SchemaMismatchError
	assert.True(t, errors.As(err, &mismatch))
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gob")
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	got, err := ResolvePath(path, false, now)
	require.NoError(t, err)
	assert.Equal(t, path, got, "free path is used as is")

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	got, err = ResolvePath(path, true, now)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	got, err = ResolvePath(path, false, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model_20240309_140507.gob"), got)

	require.NoError(t, os.WriteFile(got, []byte("x"), 0o600))
	got, err = ResolvePath(path, false, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "model_20240309_140507_1.gob"), got)
}

func TestSaveWithPolicy(t *testing.T) {
	X, y := toyFrame(t)
	b, err := Fit(KNN, Classification, 0, X, y)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "model.gob")
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first, err := b.SaveWithPolicy(path, false, now)
	require.NoError(t, err)
	second, err := b.SaveWithPolicy(path, false, now)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	dir = t.TempDir()
	path = filepath.Join(dir, "model.gob")
	_, err = b.SaveWithPolicy(path, true, now)
	require.NoError(t, err)
	_, err = b.SaveWithPolicy(path, true, now)
	require.NoError(t, err)
	entries, err = os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
