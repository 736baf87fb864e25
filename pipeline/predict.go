package pipeline

import (
	"path/filepath"

	"github.com/YuminosukeSato/tabflow/estimator"
	"github.com/YuminosukeSato/tabflow/features"
	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/metrics"
	"github.com/YuminosukeSato/tabflow/pkg/log"
)

// PredictOptions configure the predict stage.
type PredictOptions struct {
	ModelPath    string
	FeaturesPath string
	OutputPath   string
}

// DefaultPredictOptions scores the feature stage output with the random
// forest model and writes data/processed/predictions.csv.
func (r *Runner) DefaultPredictOptions() PredictOptions {
	return PredictOptions{
		ModelPath:    filepath.Join(r.cfg.ModelsDir, estimator.RandomForest.String()+"_model.gob"),
		FeaturesPath: filepath.Join(r.cfg.ProcessedDir, FeaturesFileName),
		OutputPath:   filepath.Join(r.cfg.ProcessedDir, PredictionsFileName),
	}
}

type predictionRow struct {
	Prediction string `csv:"prediction"`
}

// PredictResult holds the predictions, row-aligned with the input.
type PredictResult struct {
	Predictions *frame.Column
	OutputPath  string
}

// Predict loads a saved model, scores the feature CSV and writes a single
// "prediction" column. A "target" column left in the features is ignored.
func (r *Runner) Predict(opts PredictOptions) (*PredictResult, error) {
	lg := r.stage("predict")

	lg.Info("Loading model", log.ArtifactPathKey, opts.ModelPath)
	bundle, err := estimator.Load(opts.ModelPath)
	if err != nil {
		return nil, err
	}
	X, err := frame.ReadCSVFile(opts.FeaturesPath)
	if err != nil {
		return nil, err
	}
	if X.Has(features.LabelColumn) {
		lg.Debug("Ignoring label column in features", "column", features.LabelColumn)
		X = X.Drop(features.LabelColumn)
	}

	pred, err := bundle.Predict(X)
	if err != nil {
		return nil, err
	}
	rows := make([]*predictionRow, pred.Len())
	for i := range rows {
		rows[i] = &predictionRow{Prediction: pred.Cell(i)}
	}
	if err := metrics.WriteCSV(opts.OutputPath, &rows); err != nil {
		return nil, err
	}
	lg.Info("Predictions saved",
		log.SamplesKey, pred.Len(),
		log.ArtifactPathKey, opts.OutputPath,
	)
	return &PredictResult{Predictions: pred, OutputPath: opts.OutputPath}, nil
}
