package tracking

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
)

type failingStore struct{}

func (failingStore) SaveRun(context.Context, *Record) error { return errors.New("disk full") }
func (failingStore) Close() error                           { return nil }

type memoryStore struct {
	mu   sync.Mutex
	runs []Record
}

func (m *memoryStore) SaveRun(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *rec)
	return nil
}

func (m *memoryStore) Close() error { return nil }

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestRunLifecycle(t *testing.T) {
	store := &memoryStore{}
	logger, _ := log.NewTestLogger(log.LevelDebug)
	tr := NewTracker(store, WithLogger(logger), WithClock(fixedClock()))

	run := tr.StartRun("exp", "train_random_forest")
	run.LogParam("model_type", "random_forest")
	run.LogParams(map[string]any{"n_estimators": 100, "test_size": 0.2})
	run.LogMetrics(map[string]float64{"accuracy": 0.9})
	run.LogMetric("accuracy", 0.95)
	run.LogArtifact("model.gob")

	require.NoError(t, run.End(context.Background(), StatusFinished))
	require.Len(t, store.runs, 1)

	rec := store.runs[0]
	assert.Equal(t, run.ID(), rec.ID)
	assert.Equal(t, StatusFinished, rec.Status)
	assert.Equal(t, "100", rec.Params["n_estimators"])
	assert.Equal(t, "0.2", rec.Params["test_size"])
	assert.Equal(t, 0.95, rec.Metrics["accuracy"])
	assert.Equal(t, []string{"model.gob"}, rec.Artifacts)
	assert.True(t, rec.EndTime.After(rec.StartTime))
	assert.Equal(t, []string{"model_type", "n_estimators", "test_size"}, rec.ParamKeys())
	assert.True(t, logger.ContainsField(log.RunIDKey, run.ID()))

	err := run.End(context.Background(), StatusFinished)
	var te *errors.TrackingError
	require.True(t, errors.As(err, &te))
	assert.Len(t, store.runs, 1)
}

func TestRunEndStoreFailure(t *testing.T) {
	tr := NewTracker(failingStore{})
	run := tr.StartRun("exp", "r")

	err := run.End(context.Background(), StatusFinished)
	require.Error(t, err)
	var te *errors.TrackingError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunIDsAreUnique(t *testing.T) {
	tr := NewTracker(nil)
	a := tr.StartRun("exp", "a")
	b := tr.StartRun("exp", "b")
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NoError(t, a.End(context.Background(), StatusFinished))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "mlruns", "tracking.db"), filepath.Join(dir, "mlruns", "artifacts"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	artifact := filepath.Join(dir, "metrics.csv")
	require.NoError(t, os.WriteFile(artifact, []byte("accuracy\n1\n"), 0o600))

	tr := NewTracker(store, WithClock(fixedClock()))
	run := tr.StartRun("iris", "train_knn")
	run.LogParam("model_type", "knn")
	run.LogMetric("accuracy", 1)
	run.LogArtifact(artifact)
	require.NoError(t, run.End(context.Background(), StatusFinished))

	rec, err := store.GetRun(context.Background(), run.ID())
	require.NoError(t, err)
	assert.Equal(t, "iris", rec.Experiment)
	assert.Equal(t, "train_knn", rec.Name)
	assert.Equal(t, StatusFinished, rec.Status)
	assert.Equal(t, map[string]string{"model_type": "knn"}, rec.Params)
	assert.Equal(t, map[string]float64{"accuracy": 1}, rec.Metrics)
	require.Len(t, rec.Artifacts, 1)
	assert.Equal(t, filepath.Join(store.ArtifactDir("iris", run.ID()), "metrics.csv"), rec.Artifacts[0])

	copied, err := os.ReadFile(rec.Artifacts[0])
	require.NoError(t, err)
	assert.Equal(t, "accuracy\n1\n", string(copied))

	second := tr.StartRun("other", "train_svr")
	require.NoError(t, second.End(context.Background(), StatusFailed))

	all, err := store.ListRuns(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, second.ID(), all[0].ID)

	iris, err := store.ListRuns(context.Background(), "iris")
	require.NoError(t, err)
	require.Len(t, iris, 1)
	assert.Equal(t, run.ID(), iris[0].ID)

	_, err = store.GetRun(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSQLiteStoreMissingArtifactWritesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "tracking.db"), "")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	run := NewTracker(store).StartRun("exp", "r")
	run.LogMetric("mse", 1)
	run.LogArtifact(filepath.Join(dir, "nope.png"))
	require.Error(t, run.End(context.Background(), StatusFinished))

	runs, err := store.ListRuns(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestMLflowStore(t *testing.T) {
	var (
		mu       sync.Mutex
		calls    []string
		batch    map[string]any
		uploaded string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/mlflow/experiments/get-by-name", func(w http.ResponseWriter, r *http.Request) {
		record("get-by-name:" + r.URL.Query().Get("experiment_name"))
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error_code":"RESOURCE_DOES_NOT_EXIST","message":"no experiment"}`)
	})
	mux.HandleFunc("/api/2.0/mlflow/experiments/create", func(w http.ResponseWriter, _ *http.Request) {
		record("experiments/create")
		_, _ = io.WriteString(w, `{"experiment_id":"7"}`)
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/create", func(w http.ResponseWriter, _ *http.Request) {
		record("runs/create")
		_, _ = io.WriteString(w, `{"run":{"info":{"run_id":"abc"}}}`)
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/log-batch", func(w http.ResponseWriter, r *http.Request) {
		record("runs/log-batch")
		mu.Lock()
		defer mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&batch)
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/api/2.0/mlflow-artifacts/artifacts/", func(w http.ResponseWriter, r *http.Request) {
		record("upload")
		mu.Lock()
		uploaded = r.URL.Path
		mu.Unlock()
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/api/2.0/mlflow/runs/update", func(w http.ResponseWriter, _ *http.Request) {
		record("runs/update")
		_, _ = io.WriteString(w, `{}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	artifact := filepath.Join(t.TempDir(), "residuals.png")
	require.NoError(t, os.WriteFile(artifact, []byte("png"), 0o600))

	store, err := NewMLflowStore(srv.URL+"/", srv.Client())
	require.NoError(t, err)
	run := NewTracker(store).StartRun("boston", "train_svr")
	run.LogParam("model_type", "svr")
	run.LogMetric("rmse", 3.5)
	run.LogArtifact(artifact)
	require.NoError(t, run.End(context.Background(), StatusFinished))

	assert.Equal(t, []string{
		"get-by-name:boston",
		"experiments/create",
		"runs/create",
		"runs/log-batch",
		"upload",
		"runs/update",
	}, calls)
	assert.Equal(t, "abc", batch["run_id"])
	assert.Len(t, batch["metrics"], 1)
	assert.Equal(t, "/api/2.0/mlflow-artifacts/artifacts/7/abc/artifacts/residuals.png", uploaded)
}

func TestMLflowStoreServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "boom")
	}))
	defer srv.Close()

	store, err := NewMLflowStore(srv.URL, srv.Client())
	require.NoError(t, err)
	err = NewTracker(store).StartRun("exp", "r").End(context.Background(), StatusFinished)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		check   func(t *testing.T, s Store)
	}{
		{
			name: "sqlite",
			cfg:  Config{Backend: BackendSQLite, DSN: filepath.Join(dir, "t.db")},
			check: func(t *testing.T, s Store) {
				_, ok := s.(*SQLiteStore)
				assert.True(t, ok)
			},
		},
		{
			name: "mlflow",
			cfg:  Config{Backend: BackendMLflow, URI: "http://localhost:5000"},
			check: func(t *testing.T, s Store) {
				_, ok := s.(*MLflowStore)
				assert.True(t, ok)
			},
		},
		{
			name: "none",
			cfg:  Config{Backend: BackendNone},
			check: func(t *testing.T, s Store) {
				assert.Equal(t, NoopStore{}, s)
			},
		},
		{name: "unknown backend", cfg: Config{Backend: "redis"}, wantErr: true},
		{name: "sqlite without dsn", cfg: Config{Backend: BackendSQLite}, wantErr: true},
		{name: "mlflow relative uri", cfg: Config{Backend: BackendMLflow, URI: "mlruns"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer func() { _ = s.Close() }()
			tt.check(t, s)
		})
	}
}
