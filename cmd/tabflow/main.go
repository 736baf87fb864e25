// Command tabflow runs the tabular ML pipeline stages from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/YuminosukeSato/tabflow/pipeline"
	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/pkg/log"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:   "tabflow",
		Short: "Tabular ML experiment pipeline",
		Long: `tabflow fetches a dataset, builds features, trains and evaluates a model,
scores new rows and renders diagnostic plots. Every stage reads and writes
plain files under the project root, so stages can be run one at a time or
chained with "tabflow pipeline".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./tabflow.yaml)")
	flags.String("root", ".", "project root directory")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.Uint64("seed", 42, "random seed for splits and estimators")
	flags.Float64("test-size", 0.2, "fraction of rows held out for evaluation")
	flags.String("experiment-name", "tabflow", "experiment name used for tracking")
	flags.String("tracking-backend", "sqlite", "tracking backend (sqlite, mlflow, none)")
	flags.String("tracking-uri", "", "MLflow tracking server URL")

	_ = viper.BindPFlag("root", flags.Lookup("root"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("seed", flags.Lookup("seed"))
	_ = viper.BindPFlag("test_size", flags.Lookup("test-size"))
	_ = viper.BindPFlag("experiment", flags.Lookup("experiment-name"))
	_ = viper.BindPFlag("tracking.backend", flags.Lookup("tracking-backend"))
	_ = viper.BindPFlag("tracking.uri", flags.Lookup("tracking-uri"))

	root.AddCommand(
		datasetCmd(),
		featuresCmd(),
		trainCmd(),
		predictCmd(),
		plotsCmd(),
		pipelineCmd(),
		runsCmd(),
		versionCmd(),
	)
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("tabflow")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("TABFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "failed to read config")
		}
	}

	if err := log.SetupLogger(viper.GetString("logging.level"), viper.GetString("logging.format"), os.Stderr); err != nil {
		return errors.Wrap(err, "failed to setup logging")
	}
	return nil
}

// loadConfig resolves the project layout: DefaultConfig(root) overlaid with
// whatever the config file, TABFLOW_* variables and flags set.
func loadConfig() (pipeline.Config, error) {
	def := pipeline.DefaultConfig(viper.GetString("root"))
	defaults := map[string]interface{}{
		"raw_dir":                def.RawDir,
		"interim_dir":            def.InterimDir,
		"processed_dir":          def.ProcessedDir,
		"external_dir":           def.ExternalDir,
		"models_dir":             def.ModelsDir,
		"reports_dir":            def.ReportsDir,
		"figures_dir":            def.FiguresDir,
		"tracking.dsn":           def.Tracking.DSN,
		"tracking.artifact_root": def.Tracking.ArtifactRoot,
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}

	var cfg pipeline.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to decode config")
	}
	return cfg, cfg.Validate()
}

func newRunner(opts ...pipeline.Option) (*pipeline.Runner, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cfg, opts...)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tabflow %s\n", version)
		},
	}
}
