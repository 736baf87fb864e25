// Package tracking records experiment runs: parameters, metrics and artifact
// files of one training invocation.
//
// A Run buffers everything in memory and End flushes it to a Store in one
// step, so a run is either fully recorded or not at all. Stores are SQLite
// (local, the default), an MLflow tracking server over REST, or a no-op.
package tracking

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusRunning  Status = "RUNNING"
	StatusFinished Status = "FINISHED"
	StatusFailed   Status = "FAILED"
)

// Record is a completed experiment run as persisted by a Store.
type Record struct {
	ID         string
	Experiment string
	Name       string
	Status     Status
	StartTime  time.Time
	EndTime    time.Time
	Params     map[string]string
	Metrics    map[string]float64
	Artifacts  []string
}

// ParamKeys returns the parameter names in sorted order.
func (r *Record) ParamKeys() []string {
	keys := make([]string, 0, len(r.Params))
	for k := range r.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MetricKeys returns the metric names in sorted order.
func (r *Record) MetricKeys() []string {
	keys := make([]string, 0, len(r.Metrics))
	for k := range r.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store persists finished runs.
type Store interface {
	SaveRun(ctx context.Context, rec *Record) error
	Close() error
}

// Tracker creates runs bound to a store.
type Tracker struct {
	store  Store
	logger log.Logger
	now    func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for run lifecycle messages.
func WithLogger(l log.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithClock overrides time.Now. Tests use it for stable timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a tracker writing to store. A nil store records nothing.
func NewTracker(store Store, opts ...Option) *Tracker {
	if store == nil {
		store = NoopStore{}
	}
	t := &Tracker{
		store:  store,
		logger: log.GetLoggerWithName("tracking"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Close closes the underlying store.
func (t *Tracker) Close() error {
	return t.store.Close()
}

// StartRun opens a run under experiment.
func (t *Tracker) StartRun(experiment, name string) *Run {
	r := &Run{
		tracker: t,
		record: Record{
			ID:         uuid.NewString(),
			Experiment: experiment,
			Name:       name,
			Status:     StatusRunning,
			StartTime:  t.now(),
			Params:     make(map[string]string),
			Metrics:    make(map[string]float64),
		},
	}
	t.logger.Debug("Run started",
		log.RunIDKey, r.record.ID,
		log.ExperimentKey, experiment,
	)
	return r
}

// Run is an open experiment run. It is safe for concurrent use.
type Run struct {
	mu      sync.Mutex
	tracker *Tracker
	record  Record
	ended   bool
}

// ID returns the run id.
func (r *Run) ID() string { return r.record.ID }

// LogParam records a parameter. Values are stored in their fmt form.
func (r *Run) LogParam(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Params[key] = fmt.Sprint(value)
}

// LogParams records every entry of params.
func (r *Run) LogParams(params map[string]any) {
	for k, v := range params {
		r.LogParam(k, v)
	}
}

// LogMetric records a metric. A later value for the same key wins.
func (r *Run) LogMetric(key string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Metrics[key] = value
}

// LogMetrics records every entry of metrics.
func (r *Run) LogMetrics(metrics map[string]float64) {
	for k, v := range metrics {
		r.LogMetric(k, v)
	}
}

// LogArtifact attaches a local file to the run. The file is read at End.
func (r *Run) LogArtifact(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record.Artifacts = append(r.record.Artifacts, path)
}

// Snapshot returns a copy of the buffered record.
func (r *Run) Snapshot() Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record
	rec.Params = maps.Clone(r.record.Params)
	rec.Metrics = maps.Clone(r.record.Metrics)
	rec.Artifacts = append([]string(nil), r.record.Artifacts...)
	return rec
}

// End closes the run with status and flushes it to the store.
// Store failures are returned as TrackingError.
func (r *Run) End(ctx context.Context, status Status) error {
	r.mu.Lock()
	if r.ended {
		r.mu.Unlock()
		return errors.NewTrackingError("end_run", errors.Newf("run %s already ended", r.record.ID))
	}
	r.ended = true
	r.record.Status = status
	r.record.EndTime = r.tracker.now()
	r.mu.Unlock()

	rec := r.Snapshot()
	if err := r.tracker.store.SaveRun(ctx, &rec); err != nil {
		return errors.NewTrackingError("save_run", err)
	}
	r.tracker.logger.Info("Run recorded",
		log.RunIDKey, rec.ID,
		log.ExperimentKey, rec.Experiment,
		log.StatusKey, string(status),
	)
	return nil
}

// NoopStore discards runs.
type NoopStore struct{}

func (NoopStore) SaveRun(context.Context, *Record) error { return nil }
func (NoopStore) Close() error                           { return nil }

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMLflow = "mlflow"
	BackendNone   = "none"
)

// Config selects and configures a store.
type Config struct {
	Backend      string `mapstructure:"backend"`
	DSN          string `mapstructure:"dsn"`
	ArtifactRoot string `mapstructure:"artifact_root"`
	URI          string `mapstructure:"uri"`
}

// Open creates the store described by cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return NewSQLiteStore(cfg.DSN, cfg.ArtifactRoot)
	case BackendMLflow:
		return NewMLflowStore(cfg.URI, nil)
	case BackendNone:
		return NoopStore{}, nil
	default:
		return nil, errors.NewValidationError("tracking.backend", "must be sqlite, mlflow or none", cfg.Backend)
	}
}
