// Package pipeline sequences the tabflow stages over file artifacts.
//
// Each stage reads its inputs from and writes its outputs to the paths of a
// Config, so every stage can be invoked on its own:
//
//	dataset  -> data/raw/dataset_raw.csv, data/processed/dataset.csv
//	features -> data/processed/features.csv, data/processed/labels.csv
//	train    -> models/<kind>_model.gob, reports/figures/metrics_<kind>.csv + plots
//	predict  -> data/processed/predictions.csv
//
// Run chains dataset, features and train with the orchestrator failure
// policy (see Run).
package pipeline

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/YuminosukeSato/tabflow/dataset"
	"github.com/YuminosukeSato/tabflow/features"
	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pkg/log"
	"github.com/YuminosukeSato/tabflow/tracking"
)

// Artifact file names.
const (
	RawFileName         = "dataset_raw.csv"
	ProcessedFileName   = "dataset.csv"
	FeaturesFileName    = "features.csv"
	LabelsFileName      = "labels.csv"
	PredictionsFileName = "predictions.csv"
)

// Runner executes stages against one Config.
type Runner struct {
	cfg      Config
	logger   log.Logger
	tracker  *tracking.Tracker
	now      func() time.Time
	progress func(description string) io.Writer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the stage logger.
func WithLogger(l log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithTracker replaces the tracker opened from Config.Tracking.
func WithTracker(t *tracking.Tracker) Option {
	return func(r *Runner) { r.tracker = t }
}

// WithClock overrides time.Now for timestamped model paths.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithProgress supplies a writer that receives the bytes of every dataset
// file as it is written. fn is called once per file.
func WithProgress(fn func(description string) io.Writer) Option {
	return func(r *Runner) { r.progress = fn }
}

// NewRunner validates cfg and opens its tracking store. A store that cannot
// be opened is replaced by a no-op store with a warning.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:    cfg,
		logger: log.GetLoggerWithName("pipeline"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracker == nil {
		store, err := tracking.Open(cfg.Tracking)
		if err != nil {
			r.logger.Warn("Experiment tracking unavailable; runs will not be recorded", err)
			store = tracking.NoopStore{}
		}
		r.tracker = tracking.NewTracker(store,
			tracking.WithLogger(r.logger.With(log.ComponentKey, "tracking")),
			tracking.WithClock(r.now),
		)
	}
	return r, nil
}

// Config returns the runner configuration.
func (r *Runner) Config() Config { return r.cfg }

// Close releases the tracking store.
func (r *Runner) Close() error {
	return r.tracker.Close()
}

func (r *Runner) stage(name string) log.Logger {
	return r.logger.With(log.StageKey, name)
}

// DatasetResult lists the files written by the dataset stage.
type DatasetResult struct {
	RawPath       string
	ProcessedPath string
	Rows          int
	Columns       int
}

// Dataset fetches src and writes the raw and processed CSVs.
func (r *Runner) Dataset(ctx context.Context, src dataset.Source) (*DatasetResult, error) {
	lg := r.stage("dataset")
	lg.Info("Loading dataset", log.SourceKey, src.Describe())

	f, err := dataset.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	rawPath, err := dataset.SaveRaw(f, r.cfg.RawDir, RawFileName, r.saveOptions("raw")...)
	if err != nil {
		return nil, err
	}
	processedPath, err := dataset.SaveProcessed(f, r.cfg.ProcessedDir, ProcessedFileName, r.saveOptions("processed")...)
	if err != nil {
		return nil, err
	}
	lg.Info("Dataset ready",
		log.SamplesKey, f.Len(),
		log.FeaturesKey, f.Width(),
		log.ArtifactPathKey, processedPath,
	)
	return &DatasetResult{
		RawPath:       rawPath,
		ProcessedPath: processedPath,
		Rows:          f.Len(),
		Columns:       f.Width(),
	}, nil
}

func (r *Runner) saveOptions(description string) []dataset.SaveOption {
	if r.progress == nil {
		return nil
	}
	return []dataset.SaveOption{dataset.WithProgress(r.progress(description))}
}

// FeaturesOptions configure the feature stage.
type FeaturesOptions struct {
	InputPath string
	Target    string
	Fallback  features.Fallback
	Encoding  features.Encoding
	Scale     features.Scaling
}

// DefaultFeaturesOptions reads the processed dataset and uses "target".
func (r *Runner) DefaultFeaturesOptions() FeaturesOptions {
	return FeaturesOptions{
		InputPath: filepath.Join(r.cfg.ProcessedDir, ProcessedFileName),
		Target:    dataset.TargetColumn,
	}
}

// FeaturesResult lists the files written by the feature stage.
type FeaturesResult struct {
	FeaturesPath string
	LabelsPath   string
	X            features.FeatureMatrix
	Y            features.LabelVector
}

// Features builds the feature matrix and label vector from opts.InputPath
// and writes them to ProcessedDir.
func (r *Runner) Features(opts FeaturesOptions) (*FeaturesResult, error) {
	lg := r.stage("features")
	f, err := frame.ReadCSVFile(opts.InputPath)
	if err != nil {
		return nil, err
	}
	X, y, err := features.Separate(f, features.Options{
		Target:   opts.Target,
		Fallback: opts.Fallback,
		Encoding: opts.Encoding,
		Scale:    opts.Scale,
		Logger:   lg,
	})
	if err != nil {
		return nil, err
	}

	featuresPath := filepath.Join(r.cfg.ProcessedDir, FeaturesFileName)
	if err := X.WriteCSVFile(featuresPath); err != nil {
		return nil, err
	}
	labels, err := frame.New(y.Column)
	if err != nil {
		return nil, err
	}
	labelsPath := filepath.Join(r.cfg.ProcessedDir, LabelsFileName)
	if err := labels.WriteCSVFile(labelsPath); err != nil {
		return nil, err
	}
	lg.Info("Features saved",
		log.ArtifactPathKey, featuresPath,
		"labels_path", labelsPath,
	)
	return &FeaturesResult{FeaturesPath: featuresPath, LabelsPath: labelsPath, X: X, Y: y}, nil
}

// readLabels reads a single-column CSV. preferred names the column to use
// when the file has several.
func readLabels(path, preferred string) (*frame.Column, error) {
	f, err := frame.ReadCSVFile(path)
	if err != nil {
		return nil, err
	}
	if c, ok := f.Column(preferred); ok {
		return c, nil
	}
	if f.Width() == 0 {
		return nil, frameEmpty(path)
	}
	return f.ColumnAt(0), nil
}
