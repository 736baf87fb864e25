package pipeline

import (
	"context"

	"github.com/YuminosukeSato/tabflow/dataset"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
)

// Stage names of the orchestrator.
const (
	StageLoad      = "load"
	StageFeaturize = "featurize"
	StageTrain     = "train"
)

// Status is the outcome of one orchestrated stage.
type Status string

const (
	Succeeded        Status = "SUCCEEDED"
	SkippedOnFailure Status = "SKIPPED_ON_FAILURE"
	NotRun           Status = "NOT_RUN"
)

// StageResult records how one stage ended.
type StageResult struct {
	Stage  string
	Status Status
	// Err is the cause when Status is SkippedOnFailure.
	Err error
}

// Report is the outcome of Run.
type Report struct {
	Stages   []StageResult
	Dataset  *DatasetResult
	Features *FeaturesResult
	Train    *TrainResult
}

// Status returns the status of stage, NotRun when absent.
func (r *Report) Status(stage string) Status {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s.Status
		}
	}
	return NotRun
}

// RunOptions configure Run. Start from DefaultFeaturesOptions and
// DefaultTrainOptions; an empty Target, TestSize or Experiment falls back to
// the runner defaults. InputPath, FeaturesPath and LabelsPath are always
// taken from the previous stage.
type RunOptions struct {
	Source   dataset.Source
	Features FeaturesOptions
	Train    TrainOptions
}

// Run executes load -> featurize -> train.
//
// A load failure is returned. A featurize failure (error or panic) is
// logged once as a warning and train is not run. A train failure is logged
// as a warning. In both soft-fail cases Run returns a nil error and the
// report carries the per-stage status.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	lg := r.stage("pipeline")
	report := &Report{}

	lg.Info("Loading dataset and saving raw/processed copies")
	ds, err := r.Dataset(ctx, opts.Source)
	if err != nil {
		return nil, errors.NewStageError(StageLoad, err)
	}
	report.Dataset = ds
	report.Stages = append(report.Stages, StageResult{Stage: StageLoad, Status: Succeeded})

	fopts := opts.Features
	if fopts.Target == "" {
		fopts.Target = dataset.TargetColumn
	}
	fopts.InputPath = ds.ProcessedPath

	lg.Info("Building features and labels")
	var feats *FeaturesResult
	err = errors.SafeExecute(StageFeaturize, func() error {
		var ferr error
		feats, ferr = r.Features(fopts)
		return ferr
	})
	if err != nil {
		lg.Warn("Feature stage failed; training skipped", errors.NewStageError(StageFeaturize, err))
		report.Stages = append(report.Stages,
			StageResult{Stage: StageFeaturize, Status: SkippedOnFailure, Err: err},
			StageResult{Stage: StageTrain, Status: NotRun},
		)
		return report, nil
	}
	report.Features = feats
	report.Stages = append(report.Stages, StageResult{Stage: StageFeaturize, Status: Succeeded})

	topts := opts.Train
	if topts.TestSize == 0 {
		topts.TestSize = r.cfg.TestSize
	}
	if topts.Experiment == "" {
		topts.Experiment = r.cfg.Experiment
	}
	topts.FeaturesPath = feats.FeaturesPath
	topts.LabelsPath = feats.LabelsPath

	lg.Info("Training model")
	var trained *TrainResult
	err = errors.SafeExecute(StageTrain, func() error {
		var terr error
		trained, terr = r.Train(ctx, topts)
		return terr
	})
	if err != nil {
		lg.Warn("Train stage failed", errors.NewStageError(StageTrain, err))
		report.Stages = append(report.Stages, StageResult{Stage: StageTrain, Status: SkippedOnFailure, Err: err})
		return report, nil
	}
	report.Train = trained
	report.Stages = append(report.Stages, StageResult{Stage: StageTrain, Status: Succeeded})

	lg.Info("Pipeline complete", log.RunIDKey, trained.RunID)
	return report, nil
}
