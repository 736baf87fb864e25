package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/tabflow/estimator"
	"github.com/YuminosukeSato/tabflow/features"
	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/metrics"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
	"github.com/YuminosukeSato/tabflow/plots"
	"github.com/YuminosukeSato/tabflow/preprocessing"
	"github.com/YuminosukeSato/tabflow/sklearn/model_selection"
	"github.com/YuminosukeSato/tabflow/tracking"
)

// TrainOptions configure the train stage.
type TrainOptions struct {
	FeaturesPath string
	LabelsPath   string
	Task         estimator.Task
	Kind         estimator.Kind
	// ModelType, when set, is resolved against Task by Train and overrides
	// Kind, so an unknown name fails the train stage rather than the caller.
	ModelType string
	TestSize  float64
	Seed      uint64
	// Stratify splits classification data per class. Classes with a single
	// member are dropped first.
	Stratify  bool
	Overwrite bool
	// ModelPath defaults to <models>/<kind>_model.gob.
	ModelPath  string
	Experiment string
	// RunName defaults to train_<kind>.
	RunName string
	// CVFolds > 1 additionally reports k-fold cross-validation scores on
	// the whole data set.
	CVFolds int
}

// DefaultTrainOptions trains a random forest classifier on the feature
// stage outputs with the configured seed and test size.
func (r *Runner) DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		FeaturesPath: filepath.Join(r.cfg.ProcessedDir, FeaturesFileName),
		LabelsPath:   filepath.Join(r.cfg.ProcessedDir, LabelsFileName),
		Task:         estimator.Classification,
		Kind:         estimator.RandomForest,
		TestSize:     r.cfg.TestSize,
		Seed:         r.cfg.Seed,
		Experiment:   r.cfg.Experiment,
	}
}

// TrainResult describes a fitted model and its artifacts.
type TrainResult struct {
	Bundle      *estimator.Bundle
	ModelPath   string
	Scores      metrics.Scores
	MetricsPath string
	// ReportPath is the per-class report CSV (classification only).
	ReportPath string
	Plots      []string
	CVScores   []float64
	RunID      string
	NTrain     int
	NTest      int
}

func frameEmpty(path string) error {
	return errors.NewModelError("pipeline", fmt.Sprintf("%s has no columns", path), errors.ErrEmptyData)
}

func takeColumn(c *frame.Column, rows []int) *frame.Column {
	f, _ := frame.New(c)
	return f.Take(rows).ColumnAt(0)
}

// Train splits the features, fits the estimator on the train rows, scores
// it on the test rows, writes the metrics CSV and diagnostic plots, saves
// the model under the persistence policy and records everything in one
// tracking run. A tracking failure is logged and does not fail the stage.
func (r *Runner) Train(ctx context.Context, opts TrainOptions) (res *TrainResult, err error) {
	if opts.ModelType != "" {
		if opts.Kind, err = estimator.ParseKind(opts.ModelType, opts.Task); err != nil {
			return nil, err
		}
	}
	if !slices.Contains(estimator.Supported(opts.Task), opts.Kind) {
		return nil, errors.NewUnsupportedModelError(opts.Kind.String(), opts.Task.String(), estimator.SupportedNames(opts.Task))
	}
	lg := r.stage("train").With(
		log.ModelNameKey, opts.Kind.String(),
		log.TaskKey, opts.Task.String(),
	)

	X, err := frame.ReadCSVFile(opts.FeaturesPath)
	if err != nil {
		return nil, err
	}
	X = X.Drop(features.LabelColumn)
	y, err := readLabels(opts.LabelsPath, features.LabelColumn)
	if err != nil {
		return nil, err
	}
	if X.Len() != y.Len() {
		return nil, errors.NewDimensionError("pipeline.Train", X.Len(), y.Len(), 0)
	}

	runName := opts.RunName
	if runName == "" {
		runName = "train_" + opts.Kind.String()
	}
	experiment := opts.Experiment
	if experiment == "" {
		experiment = r.cfg.Experiment
	}
	run := r.tracker.StartRun(experiment, runName)
	defer func() {
		status := tracking.StatusFinished
		if err != nil {
			status = tracking.StatusFailed
		}
		if terr := run.End(ctx, status); terr != nil {
			lg.Warn("Experiment tracking failed; local artifacts are kept", terr)
		}
	}()

	res = &TrainResult{RunID: run.ID()}
	Xf, yv := features.FeatureMatrix{Frame: X}, features.LabelVector{Column: y}
	var trainIdx, testIdx []int
	if opts.Task == estimator.Classification && opts.Stratify {
		var dropped []string
		Xf, yv, dropped = features.FilterRareClasses(Xf, yv, 2)
		if len(dropped) > 0 {
			lg.Info("Dropped classes with a single member before stratified split", "classes", dropped)
		}
		trainIdx, testIdx, err = model_selection.StratifiedTrainTestSplit(yv.Labels(), opts.TestSize, opts.Seed)
	} else {
		trainIdx, testIdx, err = model_selection.TrainTestSplit(Xf.Len(), opts.TestSize, opts.Seed)
	}
	if err != nil {
		return nil, err
	}
	res.NTrain, res.NTest = len(trainIdx), len(testIdx)

	lg.Info("Training started",
		log.SamplesKey, res.NTrain,
		log.FeaturesKey, Xf.Width(),
		log.RandomSeedKey, opts.Seed,
	)
	bundle, err := estimator.Fit(opts.Kind, opts.Task, opts.Seed, Xf.Take(trainIdx), takeColumn(yv.Column, trainIdx))
	if err != nil {
		return nil, err
	}
	res.Bundle = bundle

	yTest := takeColumn(yv.Column, testIdx)
	pred, err := bundle.Predict(Xf.Take(testIdx))
	if err != nil {
		return nil, err
	}

	if err := r.evaluate(opts, yTest, pred, res); err != nil {
		return nil, err
	}

	if opts.CVFolds > 1 {
		res.CVScores, err = crossValidate(opts, Xf.Frame, yv.Column)
		if err != nil {
			return nil, err
		}
		mean, std := stat.MeanStdDev(res.CVScores, nil)
		lg.Info("Cross-validation finished", "folds", opts.CVFolds, "cv_mean", mean, "cv_std", std)
		run.LogMetric("cv_mean", mean)
		run.LogMetric("cv_std", std)
	}

	modelPath := opts.ModelPath
	if modelPath == "" {
		modelPath = filepath.Join(r.cfg.ModelsDir, opts.Kind.String()+"_model.gob")
	}
	res.ModelPath, err = bundle.SaveWithPolicy(modelPath, opts.Overwrite, r.now())
	if err != nil {
		return nil, err
	}

	run.LogParam("model_type", opts.Kind.String())
	run.LogParam("task", opts.Task.String())
	run.LogParam("test_size", opts.TestSize)
	run.LogParam("seed", opts.Seed)
	run.LogParam("stratify", opts.Stratify)
	run.LogParams(bundle.Params)
	run.LogMetrics(res.Scores.Values())
	run.LogArtifact(res.ModelPath)
	run.LogArtifact(res.MetricsPath)
	if res.ReportPath != "" {
		run.LogArtifact(res.ReportPath)
	}
	for _, p := range res.Plots {
		run.LogArtifact(p)
	}

	name, value := res.Scores.Primary()
	lg.Info("Training finished",
		name, value,
		log.ArtifactPathKey, res.ModelPath,
		log.RunIDKey, res.RunID,
	)
	return res, nil
}

// evaluate computes the test scores and writes the metrics CSV and plots.
func (r *Runner) evaluate(opts TrainOptions, yTest, pred *frame.Column, res *TrainResult) error {
	kind := opts.Kind.String()
	res.MetricsPath = filepath.Join(r.cfg.FiguresDir, "metrics_"+kind+".csv")

	if opts.Task == estimator.Classification {
		yTrue, yPred := yTest.Labels(), pred.Labels()
		scores, err := metrics.ScoreClassification(yTrue, yPred, metrics.ZeroDivisionZero)
		if err != nil {
			return err
		}
		res.Scores = scores

		report, err := metrics.ClassificationReport(yTrue, yPred, nil, metrics.ZeroDivisionZero)
		if err != nil {
			return err
		}
		res.ReportPath = filepath.Join(r.cfg.FiguresDir, "classification_report_"+kind+".csv")
		if err := metrics.WriteCSV(res.ReportPath, &report); err != nil {
			return err
		}
		cm := filepath.Join(r.cfg.FiguresDir, "confusion_matrix_"+kind+".png")
		if err := plots.ConfusionMatrix(yTrue, yPred, cm); err != nil {
			return err
		}
		res.Plots = []string{cm}
	} else {
		scores, err := metrics.ScoreRegression(yTest.Floats, pred.Floats)
		if err != nil {
			return err
		}
		res.Scores = scores

		pv := filepath.Join(r.cfg.FiguresDir, "predictions_"+kind+".png")
		if err := plots.PredictionsVsActual(yTest.Floats, pred.Floats, pv); err != nil {
			return err
		}
		rs := filepath.Join(r.cfg.FiguresDir, "residuals_"+kind+".png")
		if err := plots.Residuals(yTest.Floats, pred.Floats, rs); err != nil {
			return err
		}
		res.Plots = []string{pv, rs}
	}
	return metrics.WriteScores(res.MetricsPath, res.Scores)
}

func crossValidate(opts TrainOptions, X *frame.Frame, y *frame.Column) ([]float64, error) {
	dense, err := X.Dense()
	if err != nil {
		return nil, err
	}
	var (
		target []float64
		cv     model_selection.KFoldSplitter
	)
	if opts.Task == estimator.Classification {
		target, err = preprocessing.NewLabelEncoder().FitTransform(y.Labels())
		if err != nil {
			return nil, err
		}
		cv = model_selection.NewStratifiedKFold(opts.CVFolds, true, opts.Seed)
	} else {
		if y.Kind != frame.Numeric {
			return nil, errors.NewValueError("pipeline.Train", "regression target must be numeric")
		}
		target = y.Floats
		cv = model_selection.NewKFold(opts.CVFolds, true, opts.Seed)
	}

	if _, err := estimator.New(opts.Kind, opts.Task, opts.Seed); err != nil {
		return nil, err
	}
	return model_selection.CrossValScore(func() model_selection.ScoredEstimator {
		m, _ := estimator.New(opts.Kind, opts.Task, opts.Seed)
		return m.(model_selection.ScoredEstimator)
	}, dense, mat.NewDense(len(target), 1, target), cv)
}
