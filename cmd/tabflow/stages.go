package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/tabflow/dataset"
	"github.com/YuminosukeSato/tabflow/estimator"
	"github.com/YuminosukeSato/tabflow/features"
	"github.com/YuminosukeSato/tabflow/frame"
	"github.com/YuminosukeSato/tabflow/pipeline"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
)

func progressWriter(description string) io.Writer {
	return progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("writing "+description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}

func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "iris", fmt.Sprintf("builtin dataset %v", dataset.PresetNames()))
	cmd.Flags().String("url", "", "fetch a CSV from this URL instead of a builtin dataset")
	cmd.Flags().Bool("no-header", false, "the CSV at --url has no header row")
	cmd.Flags().StringSlice("names", nil, "column names for a header-less CSV")
	cmd.Flags().StringSlice("na-values", nil, "extra cell values treated as missing")
}

func sourceFromFlags(cmd *cobra.Command) (dataset.Source, error) {
	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		name, _ := cmd.Flags().GetString("source")
		return dataset.Preset(name)
	}
	noHeader, _ := cmd.Flags().GetBool("no-header")
	names, _ := cmd.Flags().GetStringSlice("names")
	na, _ := cmd.Flags().GetStringSlice("na-values")
	return &dataset.URLSource{
		URL: url,
		Options: frame.ReadOptions{
			NoHeader: noHeader,
			Names:    names,
			NAValues: na,
		},
	}, nil
}

func datasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Fetch a dataset and write its raw and processed CSVs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := sourceFromFlags(cmd)
			if err != nil {
				return err
			}
			var opts []pipeline.Option
			if show, _ := cmd.Flags().GetBool("progress"); show {
				opts = append(opts, pipeline.WithProgress(progressWriter))
			}
			r, err := newRunner(opts...)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			res, err := r.Dataset(cmd.Context(), src)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "raw: %s\nprocessed: %s (%d rows, %d columns)\n",
				res.RawPath, res.ProcessedPath, res.Rows, res.Columns)
			return nil
		},
	}
	addSourceFlags(cmd)
	cmd.Flags().Bool("progress", true, "show a progress bar while writing")
	return cmd
}

func addFeatureFlags(cmd *cobra.Command) {
	cmd.Flags().String("target-col", dataset.TargetColumn, "label column")
	cmd.Flags().Bool("no-fallback", false, "fail instead of using the last column when the label column is missing")
	cmd.Flags().String("encoding", "onehot", "categorical encoding (onehot, ordinal)")
	cmd.Flags().String("scale", "standard", "numeric scaling (standard, minmax, none)")
}

func featureOptions(cmd *cobra.Command, opts pipeline.FeaturesOptions) (pipeline.FeaturesOptions, error) {
	opts.Target, _ = cmd.Flags().GetString("target-col")
	if noFallback, _ := cmd.Flags().GetBool("no-fallback"); noFallback {
		opts.Fallback = features.FallbackNone
	}

	enc, _ := cmd.Flags().GetString("encoding")
	switch strings.ToLower(enc) {
	case "onehot", "one-hot":
		opts.Encoding = features.OneHot
	case "ordinal":
		opts.Encoding = features.Ordinal
	default:
		return opts, errors.NewValidationError("encoding", "must be onehot or ordinal", enc)
	}

	scale, _ := cmd.Flags().GetString("scale")
	switch strings.ToLower(scale) {
	case "standard":
		opts.Scale = features.Standard
	case "minmax":
		opts.Scale = features.MinMax
	case "none":
		opts.Scale = features.NoScaling
	default:
		return opts, errors.NewValidationError("scale", "must be standard, minmax or none", scale)
	}
	return opts, nil
}

func featuresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Split the processed dataset into features.csv and labels.csv",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRunner()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			opts, err := featureOptions(cmd, r.DefaultFeaturesOptions())
			if err != nil {
				return err
			}
			if input, _ := cmd.Flags().GetString("input"); input != "" {
				opts.InputPath = input
			}
			res, err := r.Features(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "features: %s (%d columns)\nlabels: %s\n",
				res.FeaturesPath, res.X.Width(), res.LabelsPath)
			return nil
		},
	}
	addFeatureFlags(cmd)
	cmd.Flags().String("input", "", "processed dataset CSV (default: <processed>/dataset.csv)")
	return cmd
}

func addTrainFlags(cmd *cobra.Command) {
	cmd.Flags().String("task", "classification", "learning task (classification, regression)")
	cmd.Flags().String("model-type", "random_forest", "estimator (random_forest, knn, linear_regression, svr)")
	cmd.Flags().Bool("stratify", false, "stratify the split by class (classification only)")
	cmd.Flags().Bool("overwrite", false, "overwrite an existing model file instead of timestamping")
	cmd.Flags().String("model-path", "", "model file (default: <models>/<model-type>_model.gob)")
	cmd.Flags().String("run-name", "", "tracking run name (default: train_<model-type>)")
	cmd.Flags().Int("cv", 0, "also report k-fold cross-validation scores with this many folds")
}

func trainOptions(cmd *cobra.Command, opts pipeline.TrainOptions) (pipeline.TrainOptions, error) {
	taskName, _ := cmd.Flags().GetString("task")
	task, err := estimator.ParseTask(taskName)
	if err != nil {
		return opts, err
	}
	opts.Task = task
	opts.ModelType, _ = cmd.Flags().GetString("model-type")
	opts.Stratify, _ = cmd.Flags().GetBool("stratify")
	opts.Overwrite, _ = cmd.Flags().GetBool("overwrite")
	opts.ModelPath, _ = cmd.Flags().GetString("model-path")
	opts.RunName, _ = cmd.Flags().GetString("run-name")
	opts.CVFolds, _ = cmd.Flags().GetInt("cv")
	return opts, nil
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit a model on features.csv / labels.csv and record the run",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRunner()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			opts, err := trainOptions(cmd, r.DefaultTrainOptions())
			if err != nil {
				return err
			}
			if p, _ := cmd.Flags().GetString("features"); p != "" {
				opts.FeaturesPath = p
			}
			if p, _ := cmd.Flags().GetString("labels"); p != "" {
				opts.LabelsPath = p
			}
			res, err := r.Train(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printTrainResult(cmd, res)
			return nil
		},
	}
	addTrainFlags(cmd)
	cmd.Flags().String("features", "", "features CSV (default: <processed>/features.csv)")
	cmd.Flags().String("labels", "", "labels CSV (default: <processed>/labels.csv)")
	return cmd
}

func printTrainResult(cmd *cobra.Command, res *pipeline.TrainResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "model: %s\nmetrics: %s\nrun: %s\n", res.ModelPath, res.MetricsPath, res.RunID)
	values := res.Scores.Values()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		fmt.Fprintf(out, "  %-10s %.4f\n", k, values[k])
	}
}

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score a features CSV with a saved model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := newRunner()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			opts := r.DefaultPredictOptions()
			if p, _ := cmd.Flags().GetString("model-path"); p != "" {
				opts.ModelPath = p
			}
			if p, _ := cmd.Flags().GetString("features"); p != "" {
				opts.FeaturesPath = p
			}
			if p, _ := cmd.Flags().GetString("output"); p != "" {
				opts.OutputPath = p
			}
			res, err := r.Predict(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "predictions: %s (%d rows)\n", res.OutputPath, res.Predictions.Len())
			return nil
		},
	}
	cmd.Flags().String("model-path", "", "model file (default: <models>/random_forest_model.gob)")
	cmd.Flags().String("features", "", "features CSV (default: <processed>/features.csv)")
	cmd.Flags().String("output", "", "predictions CSV (default: <processed>/predictions.csv)")
	return cmd
}

func plotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plots",
		Short: "Render diagnostic plots from label and prediction CSVs",
	}

	pairFlags := func(c *cobra.Command) {
		c.Flags().String("labels", "", "true labels CSV (default: <processed>/labels.csv)")
		c.Flags().String("predictions", "", "predictions CSV (default: <processed>/predictions.csv)")
	}
	pairPaths := func(c *cobra.Command, cfg pipeline.Config) (string, string) {
		truth, _ := c.Flags().GetString("labels")
		if truth == "" {
			truth = filepath.Join(cfg.ProcessedDir, pipeline.LabelsFileName)
		}
		pred, _ := c.Flags().GetString("predictions")
		if pred == "" {
			pred = filepath.Join(cfg.ProcessedDir, pipeline.PredictionsFileName)
		}
		return truth, pred
	}
	output := func(c *cobra.Command, cfg pipeline.Config, name string) string {
		if out, _ := c.Flags().GetString("output"); out != "" {
			return out
		}
		return filepath.Join(cfg.FiguresDir, name)
	}

	confusion := &cobra.Command{
		Use:   "confusion",
		Short: "Confusion matrix heatmap",
		RunE: func(c *cobra.Command, _ []string) error {
			r, err := newRunner()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			truth, pred := pairPaths(c, r.Config())
			out := output(c, r.Config(), "confusion_matrix.png")
			if err := r.PlotConfusion(truth, pred, out); err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), out)
			return nil
		},
	}
	pairFlags(confusion)
	confusion.Flags().String("output", "", "image path (default: <figures>/confusion_matrix.png)")

	report := &cobra.Command{
		Use:   "report",
		Short: "Classification report CSV plus confusion matrix",
		RunE: func(c *cobra.Command, _ []string) error {
			r, err := newRunner()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			truth, pred := pairPaths(c, r.Config())
			out := output(c, r.Config(), "classification_report.png")
			csvPath, err := r.PlotReport(truth, pred, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "%s\n%s\n", out, csvPath)
			return nil
		},
	}
	pairFlags(report)
	report.Flags().String("output", "", "image path (default: <figures>/classification_report.png)")

	regression := &cobra.Command{
		Use:   "regression",
		Short: "Predictions-vs-actual and residual scatter plots",
		RunE: func(c *cobra.Command, _ []string) error {
			r, err := newRunner()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			truth, pred := pairPaths(c, r.Config())
			dir, _ := c.Flags().GetString("output-dir")
			if dir == "" {
				dir = r.Config().FiguresDir
			}
			paths, err := r.PlotRegression(truth, pred, dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), strings.Join(paths, "\n"))
			return nil
		},
	}
	pairFlags(regression)
	regression.Flags().String("output-dir", "", "directory for the images (default: <figures>)")

	frameCmd := &cobra.Command{
		Use:   "frame",
		Short: "Line plot of every numeric column of a CSV",
		RunE: func(c *cobra.Command, _ []string) error {
			r, err := newRunner()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			input, _ := c.Flags().GetString("input")
			if input == "" {
				input = filepath.Join(r.Config().ProcessedDir, pipeline.ProcessedFileName)
			}
			out := output(c, r.Config(), "plot.png")
			if err := r.PlotFrame(input, out); err != nil {
				return err
			}
			fmt.Fprintln(c.OutOrStdout(), out)
			return nil
		},
	}
	frameCmd.Flags().String("input", "", "CSV to plot (default: <processed>/dataset.csv)")
	frameCmd.Flags().String("output", "", "image path (default: <figures>/plot.png)")

	cmd.AddCommand(confusion, report, regression, frameCmd)
	return cmd
}

func pipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run dataset -> features -> train",
		Long: `Run the dataset, features and train stages in order.

A dataset failure aborts the pipeline. A features failure is logged as a
warning and training is skipped; a training failure is logged as a warning.
Both still exit successfully.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, err := sourceFromFlags(cmd)
			if err != nil {
				return err
			}
			r, err := newRunner()
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			fopts, err := featureOptions(cmd, r.DefaultFeaturesOptions())
			if err != nil {
				return err
			}
			topts, err := trainOptions(cmd, r.DefaultTrainOptions())
			if err != nil {
				return err
			}
			report, err := r.Run(cmd.Context(), pipeline.RunOptions{Source: src, Features: fopts, Train: topts})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range report.Stages {
				fmt.Fprintf(out, "%-10s %s\n", s.Stage, s.Status)
			}
			if report.Train != nil {
				printTrainResult(cmd, report.Train)
			}
			return nil
		},
	}
	addSourceFlags(cmd)
	addFeatureFlags(cmd)
	addTrainFlags(cmd)
	return cmd
}
