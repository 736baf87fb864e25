package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tferrors "github.com/YuminosukeSato/tabflow/pkg/errors"
)

func TestTestLogger(t *testing.T) {
	logger, buffer := NewTestLogger(LevelDebug)

	logger.Debug("debug message", "key1", "value1", "number", 42)
	logger.Info("info message", OperationKey, OperationFit)
	logger.Warn("warning message", fmt.Errorf("boom"))
	logger.Error("error message", "dangling")

	require.NotEmpty(t, buffer.String())
	assert.True(t, logger.ContainsMessage("debug message"))
	assert.True(t, logger.ContainsField("key1", "value1"))
	assert.True(t, logger.ContainsField("number", 42.0))
	assert.True(t, logger.ContainsField(OperationKey, OperationFit))
	assert.True(t, logger.ContainsField(ErrAttrKey, "boom"))
	assert.Equal(t, 1, logger.CountLevel(LevelWarn))

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Nil(t, entries[3]["dangling"])
}

func TestTestLoggerWithSharesBuffer(t *testing.T) {
	root, _ := NewTestLogger(LevelInfo)
	stage := root.With(StageKey, "features")
	stage.Info("writing features")
	root.Debug("suppressed")

	assert.True(t, root.ContainsField(StageKey, "features"))
	assert.False(t, root.ContainsMessage("suppressed"))
	assert.False(t, root.Enabled(context.Background(), LevelDebug))
	assert.True(t, root.Enabled(context.Background(), LevelWarn))
}

func TestTestLoggerConcurrent(t *testing.T) {
	logger, _ := NewTestLogger(LevelInfo)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logger.With("worker", id).Info("tree fitted")
		}(i)
	}
	wg.Wait()

	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 8)
}

func TestZerologProviderJSON(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(LevelInfo, WithWriter(&buf))
	logger := provider.GetLoggerWithName("train").With(ModelNameKey, "random_forest")

	logger.Debug("hidden")
	logger.Info("model saved", ArtifactPathKey, "models/model.gob", SamplesKey, 120)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "model saved", entry["message"])
	assert.Equal(t, "train", entry[NameKey])
	assert.Equal(t, "random_forest", entry[ModelNameKey])
	assert.Equal(t, "models/model.gob", entry[ArtifactPathKey])
	assert.Equal(t, 120.0, entry[SamplesKey])
}

func TestZerologProviderSetLevelAppliesToExistingLoggers(t *testing.T) {
	var buf bytes.Buffer
	provider := NewZerologProvider(LevelWarn, WithWriter(&buf))
	logger := provider.GetLogger()

	logger.Info("before")
	assert.Empty(t, buf.String())

	provider.SetLevel(LevelDebug)
	assert.True(t, logger.Enabled(context.Background(), LevelDebug))
	logger.Debug("after")
	assert.Contains(t, buf.String(), "after")
}

func TestZerologErrorCarriesStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologProvider(LevelDebug, WithWriter(&buf)).GetLogger()

	logger.Warn("features failed", errors.New("target missing"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "target missing", entry[ErrAttrKey])
	assert.NotEmpty(t, entry[StacktraceKey])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Panics(t, func() { ToLogLevel("verbose") })
}

func TestSetupLoggerRoutesWarnings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SetupLogger("warn", "json", &buf))
	defer SetGlobalLoggerProvider(NewZerologProvider(LevelInfo))

	tferrors.Warn(tferrors.NewConvergenceWarning("SVR", 10, ""))
	assert.Contains(t, buf.String(), "SVR failed to converge")
	assert.Contains(t, buf.String(), "ConvergenceWarning")

	GetLoggerWithName("cli").Info("not shown")
	assert.NotContains(t, buf.String(), "not shown")

	assert.Error(t, SetupLogger("info", "xml", nil))
}
