package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

type fakeModel struct {
	Name    string
	Weights []float64
	State   *StateManager
}

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	assert.False(t, s.IsFitted())

	err := s.RequireFitted("Fake", "Predict")
	var notFitted *errors.NotFittedError
	require.True(t, errors.As(err, &notFitted))
	assert.Equal(t, "Predict", notFitted.Method)

	s.SetFitted(3, 10)
	assert.NoError(t, s.RequireFitted("Fake", "Predict"))
	nf, ns := s.GetDimensions()
	assert.Equal(t, 3, nf)
	assert.Equal(t, 10, ns)

	assert.NoError(t, s.CheckFeatures("Fake.Predict", 3))
	var dimErr *errors.DimensionError
	require.True(t, errors.As(s.CheckFeatures("Fake.Predict", 4), &dimErr))
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 4, dimErr.Got)

	s.Reset()
	assert.False(t, s.IsFitted())
}

func TestSaveLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "model.gob")

	in := &fakeModel{Name: "fake", Weights: []float64{1.5, -2}, State: NewStateManager()}
	in.State.SetFitted(2, 5)
	require.NoError(t, SaveModel(in, path))

	var out fakeModel
	require.NoError(t, LoadModel(&out, path))
	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Weights, out.Weights)
	assert.True(t, out.State.IsFitted())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func TestLoadModelMissingFile(t *testing.T) {
	var out fakeModel
	err := LoadModel(&out, filepath.Join(t.TempDir(), "absent.gob"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
