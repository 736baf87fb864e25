package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tabflow dev\n", out)
}

func TestPipelineThenRuns(t *testing.T) {
	root := t.TempDir()
	common := []string{"--root", root, "--log-level", "error", "--log-format", "json"}

	out, err := execute(t, append([]string{"pipeline", "--source", "iris", "--stratify"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCEEDED")
	assert.NotContains(t, out, "SKIPPED_ON_FAILURE")
	assert.FileExists(t, filepath.Join(root, "models", "random_forest_model.gob"))
	assert.FileExists(t, filepath.Join(root, "mlruns", "tracking.db"))

	out, err = execute(t, append([]string{"runs"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "train_random_forest")
	assert.Contains(t, out, "FINISHED")
	assert.Contains(t, out, "accuracy=")
}

func TestFlagValidation(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown model", args: []string{"train", "--model-type", "svm"}},
		{name: "svr for classification", args: []string{"train", "--model-type", "svr"}},
		{name: "bad encoding", args: []string{"features", "--encoding", "hash"}},
		{name: "bad scale", args: []string{"features", "--scale", "robust"}},
		{name: "unknown preset", args: []string{"dataset", "--source", "mnist", "--progress=false"}},
		{name: "runs needs sqlite", args: []string{"runs", "--tracking-backend", "mlflow"}},
		{name: "bad log level", args: []string{"version", "--log-level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(append([]string{}, tt.args...), "--root", root)
			_, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestPipelineNoTracking(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, "pipeline", "--root", root, "--log-level", "error",
		"--tracking-backend", "none", "--model-type", "knn")
	require.NoError(t, err)
	assert.Contains(t, out, "accuracy")
	assert.NoFileExists(t, filepath.Join(root, "mlruns", "tracking.db"))
	assert.FileExists(t, filepath.Join(root, "models", "knn_model.gob"))
}

func TestPipelineTrainFailureExitsZero(t *testing.T) {
	root := t.TempDir()
	out, err := execute(t, "pipeline", "--root", root, "--log-level", "error",
		"--tracking-backend", "none", "--model-type", "svr")
	require.NoError(t, err)
	assert.Regexp(t, `load\s+SUCCEEDED`, out)
	assert.Regexp(t, `featurize\s+SUCCEEDED`, out)
	assert.Regexp(t, `train\s+SKIPPED_ON_FAILURE`, out)
	assert.FileExists(t, filepath.Join(root, "data", "processed", "dataset.csv"))
	assert.NoFileExists(t, filepath.Join(root, "models", "svr_model.gob"))
}
