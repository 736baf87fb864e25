package pipeline

import (
	"os"
	"path/filepath"

	"github.com/YuminosukeSato/tabflow/pkg/errors"
	"github.com/YuminosukeSato/tabflow/tracking"
)

// Paths is the project directory layout.
type Paths struct {
	Root         string `mapstructure:"root"`
	RawDir       string `mapstructure:"raw_dir"`
	InterimDir   string `mapstructure:"interim_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
	ExternalDir  string `mapstructure:"external_dir"`
	ModelsDir    string `mapstructure:"models_dir"`
	ReportsDir   string `mapstructure:"reports_dir"`
	FiguresDir   string `mapstructure:"figures_dir"`
}

// Config holds the project layout and the run-wide defaults.
type Config struct {
	Paths      `mapstructure:",squash"`
	Seed       uint64          `mapstructure:"seed"`
	TestSize   float64         `mapstructure:"test_size"`
	Experiment string          `mapstructure:"experiment"`
	Tracking   tracking.Config `mapstructure:"tracking"`
}

// DefaultConfig returns the layout rooted at root:
//
//	data/{raw,interim,processed,external}
//	models/
//	reports/figures/
//	mlruns/
func DefaultConfig(root string) Config {
	data := filepath.Join(root, "data")
	reports := filepath.Join(root, "reports")
	mlruns := filepath.Join(root, "mlruns")
	return Config{
		Paths: Paths{
			Root:         root,
			RawDir:       filepath.Join(data, "raw"),
			InterimDir:   filepath.Join(data, "interim"),
			ProcessedDir: filepath.Join(data, "processed"),
			ExternalDir:  filepath.Join(data, "external"),
			ModelsDir:    filepath.Join(root, "models"),
			ReportsDir:   reports,
			FiguresDir:   filepath.Join(reports, "figures"),
		},
		Seed:       42,
		TestSize:   0.2,
		Experiment: "tabflow",
		Tracking: tracking.Config{
			Backend:      tracking.BackendSQLite,
			DSN:          filepath.Join(mlruns, "tracking.db"),
			ArtifactRoot: filepath.Join(mlruns, "artifacts"),
		},
	}
}

// Validate checks the run-wide defaults.
func (c Config) Validate() error {
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return errors.NewValidationError("test_size", "must be in (0, 1)", c.TestSize)
	}
	if c.Experiment == "" {
		return errors.NewValidationError("experiment", "must not be empty", c.Experiment)
	}
	return nil
}

// EnsureDirs creates every directory of the layout.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{
		c.RawDir, c.InterimDir, c.ProcessedDir, c.ExternalDir,
		c.ModelsDir, c.ReportsDir, c.FiguresDir,
	} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.Wrapf(err, "create %s", dir)
		}
	}
	return nil
}
