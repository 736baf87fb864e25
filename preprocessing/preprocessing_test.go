package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

func column(m mat.Matrix, j int) []float64 {
	r, _ := m.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.At(i, j)
	}
	return out
}

func TestStandardScaler(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		1, 7,
		2, 7,
		3, 7,
		4, 7,
	})
	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	scaled := column(out, 0)
	mean, std := stat.PopMeanStdDev(scaled, nil)
	assert.InDelta(t, 0, mean, 1e-12)
	assert.InDelta(t, 1, std, 1e-12)

	// constant column keeps scale 1
	assert.Equal(t, 1.0, s.Scale[1])
	assert.Equal(t, []float64{0, 0, 0, 0}, column(out, 1))

	back, err := s.InverseTransform(out)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(X, back, 1e-12))

	_, err = s.Transform(mat.NewDense(1, 3, nil))
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))
}

func TestStandardScalerNotFitted(t *testing.T) {
	_, err := NewStandardScalerDefault().Transform(mat.NewDense(1, 1, nil))
	var nf *errors.NotFittedError
	assert.True(t, errors.As(err, &nf))
}

func TestMinMaxScaler(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{10, 20, 30})
	out, err := NewMinMaxScalerDefault().FitTransform(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, column(out, 0))

	err = NewMinMaxScaler([2]float64{1, 0}).Fit(X)
	var valErr *errors.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestMeanImputer(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		1, math.NaN(),
		math.NaN(), math.NaN(),
		3, math.NaN(),
	})
	out, err := NewMeanImputer().FitTransform(X)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, column(out, 0))
	assert.Equal(t, []float64{0, 0, 0}, column(out, 1))
}

func TestOneHotEncoder(t *testing.T) {
	cols := [][]string{
		{"red", "blue", "green", "", "blue"},
		{"10", "9", "10", "9", "10"},
	}
	enc := NewOneHotEncoder()
	out, err := enc.FitTransform(cols, []string{"color", "size"})
	require.NoError(t, err)

	assert.Equal(t, []string{"color_blue", "color_green", "color_red", "size_9", "size_10"}, enc.FeatureNames())
	r, c := out.Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 5, c)

	assert.Equal(t, []float64{0, 0, 1, 0, 1}, mat.Row(nil, 0, out))
	assert.Equal(t, []float64{0, 0, 0}, mat.Row(nil, 3, out)[:3], "missing value encodes as all zeros")

	unseen, err := enc.Transform([][]string{{"purple"}, {"9"}})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 1, 0}, mat.Row(nil, 0, unseen))

	_, err = enc.Transform([][]string{{"red"}})
	assert.Error(t, err)
}

func TestOrdinalEncoder(t *testing.T) {
	enc := NewOrdinalEncoder()
	out, err := enc.FitTransform([][]string{{"b", "a", "", "c"}}, []string{"grade"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, -1, 2}, column(out, 0))
	assert.Equal(t, []string{"grade"}, enc.FeatureNames())
}

func TestLabelEncoder(t *testing.T) {
	enc := NewLabelEncoder()
	codes, err := enc.FitTransform([]string{"2", "10", "1", "10"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "10"}, enc.Classes)
	assert.Equal(t, []float64{1, 2, 0, 2}, codes)

	labels, err := enc.InverseTransform([]float64{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "1"}, labels)

	_, err = enc.InverseTransform([]float64{3})
	assert.Error(t, err)
	_, err = enc.Transform([]string{"7"})
	assert.Error(t, err)
	assert.Error(t, NewLabelEncoder().Fit([]string{"a", ""}))
}
