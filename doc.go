// Package tabflow is a tabular machine learning experiment pipeline for Go.
//
// A run moves through five file-backed stages:
//
//	dataset -> features -> train -> predict -> plots
//
// Each stage reads the artifacts of the previous one from the project
// layout (data/raw, data/processed, models, reports/figures) and writes its
// own, so stages can be re-run independently. The pipeline orchestrator
// chains dataset, features and train: a dataset failure aborts the run,
// while feature and training failures are logged as warnings.
//
// # Quick Start
//
// Run the whole pipeline on the builtin Iris data:
//
//	tabflow pipeline --source iris --model-type random_forest
//
// or drive the stages from Go:
//
//	cfg := pipeline.DefaultConfig(".")
//	r, err := pipeline.NewRunner(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	src, _ := dataset.Preset("iris")
//	report, err := r.Run(ctx, pipeline.RunOptions{Source: src})
//
// # Packages
//
//   - frame: column-typed table with CSV input and output
//   - dataset: builtin, URL and OpenML sources, normalization, raw and processed CSVs
//   - features: target resolution, categorical encoding, numeric scaling
//   - estimator: supported model kinds per task and the persisted model bundle
//   - linear, sklearn/...: the estimators (linear regression, CART, random forest, KNN, SVR)
//   - metrics: regression and classification scores
//   - plots: confusion matrix, classification report, regression diagnostics
//   - tracking: experiment runs stored in SQLite or sent to an MLflow server
//   - pipeline: configuration, the stage runner and the orchestrator
//   - core/model, core/parallel: estimator interfaces, persistence, parallel loops
//   - pkg/errors, pkg/log: typed errors and structured logging
package tabflow
